package entity

import (
	"fmt"
)

// SearchResponse is the decoded body of a search request.
type SearchResponse struct {
	Data         []map[string]interface{} `json:"data"`
	Total        int                      `json:"total"`
	Aggregations map[string]interface{}   `json:"aggregations,omitempty"`
}

// Hydrator turns raw API records into entities. Nested objects become
// *Entity values and nested arrays become *EntityCollection values when the
// field was requested as an association, is declared in the schema, or the
// value looks like a record (an object carrying an id).
type Hydrator struct {
	schema *Schema
}

// NewHydrator creates a hydrator. schema may be nil.
func NewHydrator(schema *Schema) *Hydrator {
	return &Hydrator{schema: schema}
}

// HydrateSearchResult builds the collection for a search response. The
// collection keeps a copy of criteria so callers can match it against the
// request they issued.
func (h *Hydrator) HydrateSearchResult(
	source, entityName string,
	resp *SearchResponse,
	criteria *Criteria,
	apiCtx APIContext,
) (*EntityCollection, error) {
	collection := NewEntityCollection(source, entityName, apiCtx, criteria.Clone())
	collection.Total = resp.Total
	collection.Aggregations = resp.Aggregations

	for i, record := range resp.Data {
		e, err := h.hydrate(entityName, record, criteria, apiCtx)
		if err != nil {
			return nil, fmt.Errorf("hydrating %s record %d: %w", entityName, i, err)
		}

		collection.Set(e)
	}

	if collection.Total < collection.Len() {
		collection.Total = collection.Len()
	}

	return collection, nil
}

// HydrateRecord builds a single entity.
func (h *Hydrator) HydrateRecord(
	entityName string,
	record map[string]interface{},
	criteria *Criteria,
	apiCtx APIContext,
) (*Entity, error) {
	return h.hydrate(entityName, record, criteria, apiCtx)
}

func (h *Hydrator) hydrate(
	entityName string,
	record map[string]interface{},
	criteria *Criteria,
	apiCtx APIContext,
) (*Entity, error) {
	id, _ := record[fieldID].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: %s record without id", ErrUnexpectedResponse, entityName)
	}

	def := h.schema.Definition(entityName)
	fields := make(map[string]interface{}, len(record))

	var translated map[string]interface{}
	if raw, ok := record[fieldTranslated].(map[string]interface{}); ok {
		translated = raw
	}

	for field, value := range record {
		if field == fieldID || field == fieldTranslated {
			continue
		}

		hydrated, err := h.hydrateField(entityName, id, field, value, def, criteria, apiCtx)
		if err != nil {
			return nil, err
		}

		fields[field] = hydrated
	}

	// Requested to-many associations always materialize, even when empty.
	if criteria != nil {
		for _, name := range criteria.AssociationNames() {
			if _, present := fields[name]; present {
				continue
			}

			if assoc, ok := def.Association(name); ok && assoc.ToMany {
				child, _ := criteria.Association(name)
				fields[name] = NewEntityCollection(
					nestedSource(entityName, id, name), assoc.Entity, apiCtx, child.Clone())
			}
		}
	}

	return newLoadedEntity(entityName, id, apiCtx.LanguageID, fields, translated), nil
}

func (h *Hydrator) hydrateField(
	parentName, parentID, field string,
	value interface{},
	def *Definition,
	criteria *Criteria,
	apiCtx APIContext,
) (interface{}, error) {
	var (
		child     *Criteria
		requested bool
	)

	if criteria != nil {
		child, requested = criteria.Association(field)
	}

	assoc, declared := def.Association(field)

	switch v := value.(type) {
	case map[string]interface{}:
		if !requested && !declared && !hasID(v) {
			return v, nil
		}

		target := assoc.Entity
		if target == "" {
			target = snakeCase(field)
		}

		nested, err := h.hydrate(target, v, child, apiCtx)
		if err != nil {
			return nil, fmt.Errorf("association %s: %w", field, err)
		}

		return nested, nil
	case []interface{}:
		if !requested && !(declared && assoc.ToMany) && !allRecords(v) {
			return v, nil
		}

		target := assoc.Entity
		if target == "" {
			target = singular(snakeCase(field))
		}

		collection := NewEntityCollection(nestedSource(parentName, parentID, field), target, apiCtx, child.Clone())

		for i, item := range v {
			record, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: association %s item %d is not an object", ErrUnexpectedResponse, field, i)
			}

			nested, err := h.hydrate(target, record, child, apiCtx)
			if err != nil {
				return nil, fmt.Errorf("association %s: %w", field, err)
			}

			collection.Set(nested)
		}

		collection.Total = collection.Len()

		return collection, nil
	case nil:
		if declared && assoc.ToMany {
			return NewEntityCollection(nestedSource(parentName, parentID, field), assoc.Entity, apiCtx, child.Clone()), nil
		}

		return nil, nil
	}

	return value, nil
}

// nestedSource is the sub-collection endpoint of a to-many association,
// e.g. "/user/<id>/access-keys".
func nestedSource(parentName, parentID, field string) string {
	return EntitySource(parentName) + "/" + parentID + "/" + kebabCase(field)
}

func hasID(record map[string]interface{}) bool {
	id, ok := record[fieldID].(string)

	return ok && id != ""
}

func allRecords(items []interface{}) bool {
	if len(items) == 0 {
		return false
	}

	for _, item := range items {
		record, ok := item.(map[string]interface{})
		if !ok || !hasID(record) {
			return false
		}
	}

	return true
}
