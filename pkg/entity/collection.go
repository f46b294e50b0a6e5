package entity

import (
	"encoding/json"
	"fmt"
)

// EntityCollection is an ordered, id-indexed result set plus the request
// that produced it. It never holds two entities with the same id.
type EntityCollection struct {
	// Source is the collection endpoint, e.g. "/user" or "/user/<id>/access-keys".
	Source string
	// Entity is the entity name of the items.
	Entity string
	// Context is the API context the collection was loaded with.
	Context APIContext
	// Criteria is a copy of the criteria that produced the collection.
	Criteria *Criteria
	// Total is the server reported match count. It may exceed Len().
	Total int
	// Aggregations holds raw aggregation results, if any were returned.
	Aggregations map[string]interface{}

	items []*Entity
	index map[string]int
}

// NewEntityCollection creates an empty collection.
func NewEntityCollection(source, entityName string, apiCtx APIContext, criteria *Criteria) *EntityCollection {
	if criteria == nil {
		criteria = NewCriteria()
	}

	return &EntityCollection{
		Source:   source,
		Entity:   entityName,
		Context:  apiCtx,
		Criteria: criteria,
		index:    make(map[string]int),
	}
}

// Add appends an entity. It fails when the id is already present.
func (c *EntityCollection) Add(e *Entity) error {
	if e == nil {
		return ErrNilEntity
	}

	if _, ok := c.index[e.id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, e.id)
	}

	c.index[e.id] = len(c.items)
	c.items = append(c.items, e)

	return nil
}

// Set appends an entity or replaces the one with the same id in place.
func (c *EntityCollection) Set(e *Entity) {
	if e == nil {
		return
	}

	if pos, ok := c.index[e.id]; ok {
		c.items[pos] = e

		return
	}

	c.index[e.id] = len(c.items)
	c.items = append(c.items, e)
}

// Get returns the entity with id.
func (c *EntityCollection) Get(id string) (*Entity, bool) {
	pos, ok := c.index[id]
	if !ok {
		return nil, false
	}

	return c.items[pos], true
}

// Has reports whether id is present.
func (c *EntityCollection) Has(id string) bool {
	_, ok := c.index[id]

	return ok
}

// Remove drops the entity with id and reports whether it was present.
func (c *EntityCollection) Remove(id string) bool {
	pos, ok := c.index[id]
	if !ok {
		return false
	}

	c.items = append(c.items[:pos], c.items[pos+1:]...)
	delete(c.index, id)

	for i := pos; i < len(c.items); i++ {
		c.index[c.items[i].id] = i
	}

	return true
}

// Len returns the number of loaded items.
func (c *EntityCollection) Len() int { return len(c.items) }

// At returns the item at position i.
func (c *EntityCollection) At(i int) *Entity { return c.items[i] }

// First returns the first item or nil.
func (c *EntityCollection) First() *Entity {
	if len(c.items) == 0 {
		return nil
	}

	return c.items[0]
}

// Items returns the items in insertion order.
func (c *EntityCollection) Items() []*Entity {
	return append([]*Entity(nil), c.items...)
}

// IDs returns the item ids in insertion order.
func (c *EntityCollection) IDs() []string {
	ids := make([]string, len(c.items))
	for i, e := range c.items {
		ids[i] = e.id
	}

	return ids
}

// Fingerprint identifies the request that produced the collection.
func (c *EntityCollection) Fingerprint() string {
	return RequestFingerprint(c.Criteria, c.Context)
}

// MatchesRequest reports whether the collection answers a request made with
// criteria and apiCtx. Callers use it to discard results of superseded
// requests.
func (c *EntityCollection) MatchesRequest(criteria *Criteria, apiCtx APIContext) bool {
	if criteria == nil {
		criteria = NewCriteria()
	}

	return c.Context == apiCtx && c.Criteria.Equal(criteria)
}

// Clone returns a deep copy.
func (c *EntityCollection) Clone() *EntityCollection {
	if c == nil {
		return nil
	}

	clone := NewEntityCollection(c.Source, c.Entity, c.Context, c.Criteria.Clone())
	clone.Total = c.Total

	if c.Aggregations != nil {
		clone.Aggregations, _ = cloneJSONValue(c.Aggregations).(map[string]interface{})
	}

	for _, item := range c.items {
		clone.Set(item.Clone())
	}

	return clone
}

// MarshalJSON encodes the items as a list.
func (c *EntityCollection) MarshalJSON() ([]byte, error) {
	items := c.items
	if items == nil {
		items = []*Entity{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding %s collection: %w", c.Entity, err)
	}

	return data, nil
}
