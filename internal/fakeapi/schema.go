package fakeapi

import (
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// Association links an entity to another one. To-one associations store the
// target id in LocalKey on the owning record; to-many associations store the
// owner id in ForeignKey on every target record.
type Association struct {
	Entity     string
	ToMany     bool
	LocalKey   string
	ForeignKey string
}

// EntitySchema describes one entity served by the fake API.
type EntitySchema struct {
	Name         string
	Required     []string
	Unique       []string
	Translated   []string
	Associations map[string]Association
	// Computed derives read-only fields from a rendered record.
	Computed func(record map[string]interface{})
	// ComputedFields lists the names Computed writes; they are ignored on write.
	ComputedFields []string
}

func (s *EntitySchema) isTranslated(field string) bool {
	return contains(s.Translated, field)
}

func (s *EntitySchema) isReadOnly(field string) bool {
	return field == fieldCreatedAt || field == fieldUpdatedAt || field == fieldTranslated ||
		contains(s.ComputedFields, field)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}

// DefaultSchemas returns the entities served by "entityctl serve": users
// with a locale and access keys, locales, products with a computed total and
// rules.
func DefaultSchemas() []EntitySchema {
	return []EntitySchema{
		{
			Name:       "user",
			Required:   []string{"username", "email"},
			Unique:     []string{"username", "email"},
			Translated: nil,
			Associations: map[string]Association{
				"locale":     {Entity: "locale", LocalKey: "localeId"},
				"accessKeys": {Entity: "user_access_key", ToMany: true, ForeignKey: "userId"},
			},
		},
		{
			Name:       "locale",
			Required:   []string{"code"},
			Unique:     []string{"code"},
			Translated: []string{"name"},
		},
		{
			Name:     "user_access_key",
			Required: []string{"accessKey"},
			Unique:   []string{"accessKey"},
			Associations: map[string]Association{
				"user": {Entity: "user", LocalKey: "userId"},
			},
		},
		{
			Name:       "product",
			Required:   []string{"productNumber"},
			Unique:     []string{"productNumber"},
			Translated: []string{"name", "description"},
			Computed: func(record map[string]interface{}) {
				price, _ := record["price"].(float64)
				quantity, _ := record["stock"].(float64)
				record["totalPrice"] = price * quantity
			},
			ComputedFields: []string{"totalPrice"},
		},
		{
			Name:     "rule",
			Required: []string{"name"},
			Associations: map[string]Association{
				"conditions": {Entity: "rule_condition", ToMany: true, ForeignKey: "ruleId"},
			},
		},
		{
			Name:     "rule_condition",
			Required: []string{"type"},
			Associations: map[string]Association{
				"rule": {Entity: "rule", LocalKey: "ruleId"},
			},
		},
	}
}

// ClientSchema converts schemas into the client side field descriptors.
func ClientSchema(schemas []EntitySchema) *entity.Schema {
	schema := entity.NewSchema()

	for _, s := range schemas {
		def := entity.Definition{
			Name:         s.Name,
			Associations: make(map[string]entity.Association, len(s.Associations)),
			ReadOnly:     append([]string{fieldCreatedAt, fieldUpdatedAt}, s.ComputedFields...),
		}

		for field, assoc := range s.Associations {
			def.Associations[field] = entity.Association{Entity: assoc.Entity, ToMany: assoc.ToMany}
		}

		schema.Register(def)
	}

	return schema
}
