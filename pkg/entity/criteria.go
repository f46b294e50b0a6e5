package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SortOrder is the direction of a sort clause.
type SortOrder string

// Sort directions.
const (
	SortAscending  SortOrder = "ASC"
	SortDescending SortOrder = "DESC"
)

// Sorting is one compound sort key. Keys apply in the order they were added.
type Sorting struct {
	Field          string    `json:"field"          yaml:"field"`
	Order          SortOrder `json:"order"          yaml:"order"`
	NaturalSorting bool      `json:"naturalSorting" yaml:"naturalSorting"`
}

// Sort builds a sort clause. The order is normalized to upper case.
func Sort(field string, order SortOrder, natural ...bool) Sorting {
	s := Sorting{
		Field: field,
		Order: SortOrder(strings.ToUpper(string(order))),
	}

	if len(natural) > 0 {
		s.NaturalSorting = natural[0]
	}

	return s
}

// FilterType names a filter operator understood by the API.
type FilterType string

// Supported filter operators.
const (
	FilterEquals    FilterType = "equals"
	FilterEqualsAny FilterType = "equalsAny"
	FilterContains  FilterType = "contains"
	FilterPrefix    FilterType = "prefix"
)

// Filter is an equality or set constraint on one field. Value must hold
// JSON-native data (string, bool, float64, nil or []interface{}).
type Filter struct {
	Type  FilterType  `json:"type"  yaml:"type"`
	Field string      `json:"field" yaml:"field"`
	Value interface{} `json:"value" yaml:"value"`
}

// Equals matches records whose field equals value.
func Equals(field string, value interface{}) Filter {
	return Filter{Type: FilterEquals, Field: field, Value: value}
}

// EqualsAny matches records whose field equals one of values.
func EqualsAny(field string, values ...string) Filter {
	list := make([]interface{}, 0, len(values))
	for _, v := range values {
		list = append(list, v)
	}

	return Filter{Type: FilterEqualsAny, Field: field, Value: list}
}

// Contains matches records whose string field contains value.
func Contains(field, value string) Filter {
	return Filter{Type: FilterContains, Field: field, Value: value}
}

// Prefix matches records whose string field starts with value.
func Prefix(field, value string) Filter {
	return Filter{Type: FilterPrefix, Field: field, Value: value}
}

// Criteria describes what a search fetches: an association tree, compound
// sorting, pagination, a free-text term, filters and an id list.
//
// Building is purely local. Contradictory values such as a negative limit
// are kept as given and rejected by Validate, which repositories call before
// sending a request.
type Criteria struct {
	page         int
	limit        int
	term         string
	ids          []string
	filters      []Filter
	sorting      []Sorting
	associations map[string]*Criteria
}

// NewCriteria creates an empty criteria. Limit and page are unset, which
// lets the server apply its defaults.
func NewCriteria() *Criteria {
	return &Criteria{
		associations: make(map[string]*Criteria),
	}
}

// Page returns the requested page, 0 when unset.
func (c *Criteria) Page() int { return c.page }

// Limit returns the requested page size, 0 when unset.
func (c *Criteria) Limit() int { return c.limit }

// Term returns the free-text search term.
func (c *Criteria) Term() string { return c.term }

// IDs returns a copy of the explicit id list.
func (c *Criteria) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Filters returns a copy of the filters.
func (c *Criteria) Filters() []Filter {
	return append([]Filter(nil), c.filters...)
}

// Sortings returns a copy of the sort clauses in application order.
func (c *Criteria) Sortings() []Sorting {
	return append([]Sorting(nil), c.sorting...)
}

// SetPage sets the 1-based page.
func (c *Criteria) SetPage(page int) *Criteria {
	c.page = page

	return c
}

// SetLimit sets the page size. 0 restores the server default.
func (c *Criteria) SetLimit(limit int) *Criteria {
	c.limit = limit

	return c
}

// SetTerm sets the free-text search term.
func (c *Criteria) SetTerm(term string) *Criteria {
	c.term = term

	return c
}

// SetIDs restricts the search to the given ids.
func (c *Criteria) SetIDs(ids ...string) *Criteria {
	if len(ids) == 0 {
		c.ids = nil

		return c
	}

	c.ids = append([]string(nil), ids...)

	return c
}

// AddFilter appends filters. All filters must match.
func (c *Criteria) AddFilter(filters ...Filter) *Criteria {
	c.filters = append(c.filters, filters...)

	return c
}

// AddSorting appends sort clauses. Every clause is applied, earlier clauses
// take precedence and later ones break ties.
func (c *Criteria) AddSorting(sortings ...Sorting) *Criteria {
	c.sorting = append(c.sorting, sortings...)

	return c
}

// ResetSorting drops all sort clauses.
func (c *Criteria) ResetSorting() *Criteria {
	c.sorting = nil

	return c
}

// AddAssociation adds a dot-delimited association path ("a.b" nests b under
// a). Adding an existing path merges into the existing nodes.
func (c *Criteria) AddAssociation(path string) *Criteria {
	c.GetAssociation(path)

	return c
}

// GetAssociation returns the criteria node for path, creating missing nodes
// on the way. It returns the receiver for an empty path.
func (c *Criteria) GetAssociation(path string) *Criteria {
	node := c

	for _, name := range splitPath(path) {
		if node.associations == nil {
			node.associations = make(map[string]*Criteria)
		}

		child, ok := node.associations[name]
		if !ok {
			child = NewCriteria()
			node.associations[name] = child
		}

		node = child
	}

	return node
}

// HasAssociation reports whether path exists in the tree.
func (c *Criteria) HasAssociation(path string) bool {
	_, ok := c.lookupAssociation(path)

	return ok
}

// Association returns the direct child named name.
func (c *Criteria) Association(name string) (*Criteria, bool) {
	child, ok := c.associations[name]

	return child, ok
}

// AssociationNames returns the direct child names in sorted order.
func (c *Criteria) AssociationNames() []string {
	names := make([]string, 0, len(c.associations))
	for name := range c.associations {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (c *Criteria) lookupAssociation(path string) (*Criteria, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}

	node := c

	for _, name := range segments {
		child, ok := node.associations[name]
		if !ok {
			return nil, false
		}

		node = child
	}

	return node, true
}

func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	segments := parts[:0]

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			segments = append(segments, part)
		}
	}

	return segments
}

// Validate rejects contradictory state. The returned error is a
// *ValidationFailure whose field errors point into the payload.
func (c *Criteria) Validate() error {
	var fieldErrors []FieldError

	c.collectErrors("", &fieldErrors)

	if len(fieldErrors) > 0 {
		return &ValidationFailure{Errors: fieldErrors}
	}

	return nil
}

func (c *Criteria) collectErrors(prefix string, out *[]FieldError) {
	if c.limit < 0 {
		*out = append(*out, FieldError{
			Field:   prefix + "limit",
			Code:    "INVALID_LIMIT",
			Message: fmt.Sprintf("limit must not be negative, got %d", c.limit),
		})
	}

	if c.page < 0 {
		*out = append(*out, FieldError{
			Field:   prefix + "page",
			Code:    "INVALID_PAGE",
			Message: fmt.Sprintf("page must not be negative, got %d", c.page),
		})
	}

	for i, s := range c.sorting {
		field := prefix + "sort." + strconv.Itoa(i)

		if s.Field == "" {
			*out = append(*out, FieldError{Field: field, Code: "INVALID_SORT", Message: "sort field is empty"})
		}

		if s.Order != SortAscending && s.Order != SortDescending {
			*out = append(*out, FieldError{
				Field:   field,
				Code:    "INVALID_SORT",
				Message: fmt.Sprintf("sort order must be ASC or DESC, got %q", s.Order),
			})
		}
	}

	for i, f := range c.filters {
		field := prefix + "filter." + strconv.Itoa(i)

		if f.Field == "" {
			*out = append(*out, FieldError{Field: field, Code: "INVALID_FILTER", Message: "filter field is empty"})
		}

		switch f.Type {
		case FilterEquals:
		case FilterEqualsAny:
			if _, ok := f.Value.([]interface{}); !ok {
				*out = append(*out, FieldError{Field: field, Code: "INVALID_FILTER", Message: "equalsAny needs a list value"})
			}
		case FilterContains, FilterPrefix:
			if _, ok := f.Value.(string); !ok {
				*out = append(*out, FieldError{Field: field, Code: "INVALID_FILTER", Message: string(f.Type) + " needs a string value"})
			}
		default:
			*out = append(*out, FieldError{
				Field:   field,
				Code:    "INVALID_FILTER",
				Message: fmt.Sprintf("unknown filter type %q", f.Type),
			})
		}
	}

	for _, name := range c.AssociationNames() {
		c.associations[name].collectErrors(prefix+"associations."+name+".", out)
	}
}

// Clone returns a deep copy.
func (c *Criteria) Clone() *Criteria {
	if c == nil {
		return nil
	}

	clone := &Criteria{
		page:         c.page,
		limit:        c.limit,
		term:         c.term,
		associations: make(map[string]*Criteria, len(c.associations)),
	}

	if c.ids != nil {
		clone.ids = append([]string(nil), c.ids...)
	}

	if c.filters != nil {
		clone.filters = make([]Filter, len(c.filters))
		for i, f := range c.filters {
			f.Value = cloneJSONValue(f.Value)
			clone.filters[i] = f
		}
	}

	if c.sorting != nil {
		clone.sorting = append([]Sorting(nil), c.sorting...)
	}

	for name, child := range c.associations {
		clone.associations[name] = child.Clone()
	}

	return clone
}

// criteriaPayload is the wire form. Field order and sorted map keys keep the
// encoding stable.
type criteriaPayload struct {
	Associations map[string]*Criteria `json:"associations,omitempty"`
	Filter       []Filter             `json:"filter,omitempty"`
	IDs          []string             `json:"ids,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	Page         int                  `json:"page,omitempty"`
	Sort         []Sorting            `json:"sort,omitempty"`
	Term         string               `json:"term,omitempty"`
}

// MarshalJSON encodes the criteria as a request payload.
func (c *Criteria) MarshalJSON() ([]byte, error) {
	payload := criteriaPayload{
		Filter: c.filters,
		IDs:    c.ids,
		Limit:  c.limit,
		Page:   c.page,
		Sort:   c.sorting,
		Term:   c.term,
	}

	if len(c.associations) > 0 {
		payload.Associations = c.associations
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding criteria: %w", err)
	}

	return data, nil
}

// UnmarshalJSON decodes a request payload.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	var payload criteriaPayload

	err := json.Unmarshal(data, &payload)
	if err != nil {
		return fmt.Errorf("decoding criteria: %w", err)
	}

	*c = Criteria{
		page:         payload.Page,
		limit:        payload.Limit,
		term:         payload.Term,
		associations: make(map[string]*Criteria, len(payload.Associations)),
	}

	if len(payload.IDs) > 0 {
		c.ids = payload.IDs
	}

	if len(payload.Filter) > 0 {
		c.filters = payload.Filter
	}

	if len(payload.Sort) > 0 {
		c.sorting = payload.Sort
	}

	for name, child := range payload.Associations {
		if child == nil {
			child = NewCriteria()
		}

		c.associations[name] = child
	}

	return nil
}

// Equal reports whether both criteria serialize identically.
func (c *Criteria) Equal(other *Criteria) bool {
	if c == nil || other == nil {
		return c == other
	}

	left, err := json.Marshal(c)
	if err != nil {
		return false
	}

	right, err := json.Marshal(other)
	if err != nil {
		return false
	}

	return bytes.Equal(left, right)
}

// Fingerprint is a short stable hash of the serialized criteria. Equal
// criteria have equal fingerprints.
func (c *Criteria) Fingerprint() string {
	if c == nil {
		return ""
	}

	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
