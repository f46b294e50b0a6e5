package fakeapi

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// scope restricts a search to the children of one parent record.
type scope struct {
	foreignKey string
	parentID   string
}

// SearchResult is one page of rendered records.
type SearchResult struct {
	Records []map[string]interface{}
	IDs     []string
	Total   int
}

// Search runs criteria against entityName in language lang.
func (s *Store) Search(entityName string, criteria *entity.Criteria, lang string, sc *scope) SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.begin(lang)

	matched := t.query(entityName, criteria, sc, true)

	result := SearchResult{
		Records: make([]map[string]interface{}, 0, len(matched.records)),
		IDs:     make([]string, 0, len(matched.records)),
		Total:   matched.total,
	}

	for _, rec := range matched.records {
		result.Records = append(result.Records, t.render(entityName, rec, criteria))
		result.IDs = append(result.IDs, rec.id)
	}

	return result
}

// Get renders one record, nil when absent.
func (s *Store) Get(entityName, id string, criteria *entity.Criteria, lang string) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.begin(lang)

	rec := t.lookup(entityName, id)
	if rec == nil {
		return nil
	}

	return t.render(entityName, rec, criteria)
}

type queryResult struct {
	records []*record
	total   int
}

// query filters, sorts and paginates. Without paginate every match is kept,
// which is how nested to-many associations without a limit are resolved.
func (t *tx) query(entityName string, criteria *entity.Criteria, sc *scope, paginate bool) queryResult {
	schema := t.store.schemas[entityName]
	if criteria == nil {
		criteria = entity.NewCriteria()
	}

	var matched []*record

	for _, rec := range t.all(entityName) {
		if sc != nil && rec.fields[sc.foreignKey] != sc.parentID {
			continue
		}

		if t.matches(schema, rec, criteria) {
			matched = append(matched, rec)
		}
	}

	if sortings := criteria.Sortings(); len(sortings) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, sorting := range sortings {
				cmp := compareValues(
					t.resolve(schema, matched[i], sorting.Field),
					t.resolve(schema, matched[j], sorting.Field),
					sorting.NaturalSorting,
				)
				if cmp == 0 {
					continue
				}

				if sorting.Order == entity.SortDescending {
					return cmp > 0
				}

				return cmp < 0
			}

			return false
		})
	}

	total := len(matched)

	limit := criteria.Limit()
	if limit == 0 && paginate {
		limit = constants.DefaultPageSize
	}

	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}

	if limit > 0 {
		page := criteria.Page()
		if page < 1 {
			page = 1
		}

		start := (page - 1) * limit
		if start > len(matched) {
			start = len(matched)
		}

		end := start + limit
		if end > len(matched) {
			end = len(matched)
		}

		matched = matched[start:end]
	}

	return queryResult{records: matched, total: total}
}

func (t *tx) matches(schema *EntitySchema, rec *record, criteria *entity.Criteria) bool {
	if ids := criteria.IDs(); len(ids) > 0 && !contains(ids, rec.id) {
		return false
	}

	if term := criteria.Term(); term != "" && !t.matchesTerm(schema, rec, term) {
		return false
	}

	for _, filter := range criteria.Filters() {
		if !matchesFilter(filter, t.resolve(schema, rec, filter.Field)) {
			return false
		}
	}

	return true
}

func (t *tx) matchesTerm(schema *EntitySchema, rec *record, term string) bool {
	needle := strings.ToLower(term)

	if strings.Contains(strings.ToLower(rec.id), needle) {
		return true
	}

	for _, value := range rec.fields {
		if s, ok := value.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}

	for _, field := range schema.Translated {
		if s, ok := t.store.fieldValue(schema, rec, field, t.lang).(string); ok &&
			strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}

	return false
}

func matchesFilter(filter entity.Filter, value interface{}) bool {
	switch filter.Type {
	case entity.FilterEquals:
		return jsonEqual(value, filter.Value)
	case entity.FilterEqualsAny:
		candidates, _ := filter.Value.([]interface{})
		for _, candidate := range candidates {
			if jsonEqual(value, candidate) {
				return true
			}
		}

		return false
	case entity.FilterContains:
		return value != nil && strings.Contains(
			strings.ToLower(stringify(value)), strings.ToLower(stringify(filter.Value)))
	case entity.FilterPrefix:
		return value != nil && strings.HasPrefix(
			strings.ToLower(stringify(value)), strings.ToLower(stringify(filter.Value)))
	}

	return false
}

// resolve reads a dot path such as "locale.code" through to-one associations.
func (t *tx) resolve(schema *EntitySchema, rec *record, path string) interface{} {
	head, rest, nested := strings.Cut(path, ".")

	if nested {
		if assoc, ok := schema.Associations[head]; ok && !assoc.ToMany {
			targetID, _ := rec.fields[assoc.LocalKey].(string)

			target := t.lookup(assoc.Entity, targetID)
			if target == nil {
				return nil
			}

			return t.resolve(t.store.schemas[assoc.Entity], target, rest)
		}
	}

	value := t.store.fieldValue(schema, rec, head, t.lang)
	if !nested {
		return value
	}

	for _, part := range strings.Split(rest, ".") {
		object, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}

		value = object[part]
	}

	return value
}

// render builds the API representation of rec including the associations
// requested by criteria.
func (t *tx) render(entityName string, rec *record, criteria *entity.Criteria) map[string]interface{} {
	schema := t.store.schemas[entityName]

	out := make(map[string]interface{}, len(rec.fields)+4)
	for k, v := range rec.fields {
		out[k] = v
	}

	out[fieldID] = rec.id
	out[fieldCreatedAt] = t.store.fieldValue(schema, rec, fieldCreatedAt, t.lang)
	out[fieldUpdatedAt] = t.store.fieldValue(schema, rec, fieldUpdatedAt, t.lang)

	translated := make(map[string]interface{}, len(schema.Translated))

	for _, field := range schema.Translated {
		out[field] = rec.translations[t.lang][field]
		translated[field] = t.store.fieldValue(schema, rec, field, t.lang)
	}

	out[fieldTranslated] = translated

	if schema.Computed != nil {
		schema.Computed(out)
	}

	if criteria == nil {
		return out
	}

	for _, name := range criteria.AssociationNames() {
		assoc, ok := schema.Associations[name]
		if !ok {
			continue
		}

		child, _ := criteria.Association(name)

		if !assoc.ToMany {
			targetID, _ := rec.fields[assoc.LocalKey].(string)

			target := t.lookup(assoc.Entity, targetID)
			if target == nil {
				out[name] = nil

				continue
			}

			out[name] = t.render(assoc.Entity, target, child)

			continue
		}

		children := t.query(assoc.Entity, child, &scope{foreignKey: assoc.ForeignKey, parentID: rec.id}, false)

		items := make([]interface{}, 0, len(children.records))
		for _, c := range children.records {
			items = append(items, t.render(assoc.Entity, c, child))
		}

		out[name] = items
	}

	return out
}

// compareValues orders nil first, then numbers, booleans and strings.
func compareValues(a, b interface{}, natural bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if x, ok := a.(float64); ok {
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}

			return 0
		}
	}

	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}

			return 1
		}
	}

	left, right := stringify(a), stringify(b)

	if natural {
		return naturalCompare(left, right)
	}

	return strings.Compare(left, right)
}

// naturalCompare compares digit runs by numeric value: "item2" < "item10".
func naturalCompare(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0

	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}

			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}

			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")

			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}

				return 1
			}

			if cmp := strings.Compare(na, nb); cmp != 0 {
				return cmp
			}

			continue
		}

		ca, cb := unicode.ToLower(ra[i]), unicode.ToLower(rb[j])
		if ca != cb {
			if ca < cb {
				return -1
			}

			return 1
		}

		i++
		j++
	}

	switch {
	case len(ra)-i < len(rb)-j:
		return -1
	case len(ra)-i > len(rb)-j:
		return 1
	}

	return 0
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	}

	return fmt.Sprint(value)
}
