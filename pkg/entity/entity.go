package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	fieldID         = "id"
	fieldTranslated = "translated"
	refPrefix       = "\x00ref:"
	collectionMark  = "\x00collection"
)

// Entity is a schema-less record: an opaque id, a field map and the
// translated values of the language it was loaded in. Field values are
// scalars, JSON maps and lists, nested *Entity values or nested
// *EntityCollection values for to-many associations.
//
// An Entity tracks which fields changed since it was loaded or created so
// that saving transmits only the delta.
type Entity struct {
	id         string
	name       string
	isNew      bool
	languageID string
	fields     map[string]interface{}
	translated map[string]interface{}
	origin     map[string]string
}

// NewEntity creates an entity that has never been persisted. An empty id is
// replaced by a generated one.
func NewEntity(entityName, id string) *Entity {
	if id == "" {
		id = NewID()
	}

	return &Entity{
		id:         id,
		name:       entityName,
		isNew:      true,
		fields:     make(map[string]interface{}),
		translated: make(map[string]interface{}),
		origin:     make(map[string]string),
	}
}

// NewEntityInContext creates a new entity whose translated values belong to
// the language of apiCtx.
func NewEntityInContext(entityName, id string, apiCtx APIContext) *Entity {
	e := NewEntity(entityName, id)
	e.languageID = apiCtx.LanguageID

	return e
}

// NewID generates a client side id in the 32 character hex form the API uses.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newLoadedEntity builds a server confirmed entity and snapshots its fields.
func newLoadedEntity(entityName, id, languageID string, fields, translated map[string]interface{}) *Entity {
	if fields == nil {
		fields = make(map[string]interface{})
	}

	if translated == nil {
		translated = make(map[string]interface{})
	}

	e := &Entity{
		id:         id,
		name:       entityName,
		languageID: languageID,
		fields:     fields,
		translated: translated,
	}
	e.snapshot()

	return e
}

func (e *Entity) snapshot() {
	e.origin = make(map[string]string, len(e.fields))
	for field, value := range e.fields {
		e.origin[field] = canonical(value)
	}
}

// ID returns the entity id.
func (e *Entity) ID() string { return e.id }

// Name returns the entity name, e.g. "user".
func (e *Entity) Name() string { return e.name }

// IsNew reports whether the server has never confirmed this entity.
func (e *Entity) IsNew() bool { return e.isNew }

// Language returns the language id the translated values belong to.
func (e *Entity) Language() string { return e.languageID }

// Get returns a field value.
func (e *Entity) Get(field string) (interface{}, bool) {
	if field == fieldID {
		return e.id, true
	}

	value, ok := e.fields[field]

	return value, ok
}

// GetString returns a string field or "".
func (e *Entity) GetString(field string) string {
	value, _ := e.Get(field)

	s, _ := value.(string)

	return s
}

// GetFloat returns a numeric field or 0.
func (e *Entity) GetFloat(field string) float64 {
	value, _ := e.Get(field)

	switch n := value.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()

		return f
	}

	return 0
}

// GetBool returns a boolean field or false.
func (e *Entity) GetBool(field string) bool {
	value, _ := e.Get(field)

	b, _ := value.(bool)

	return b
}

// Entity returns a nested to-one association, nil when absent.
func (e *Entity) Entity(field string) *Entity {
	child, _ := e.fields[field].(*Entity)

	return child
}

// Collection returns a nested to-many association, nil when absent.
func (e *Entity) Collection(field string) *EntityCollection {
	child, _ := e.fields[field].(*EntityCollection)

	return child
}

// Set assigns a field. The id of a new entity may be replaced with Set("id",
// value); the id of a persisted entity never changes and the call is ignored.
func (e *Entity) Set(field string, value interface{}) *Entity {
	if field == fieldID {
		if id, ok := value.(string); ok && e.isNew && id != "" {
			e.id = id
		}

		return e
	}

	e.fields[field] = value

	return e
}

// Unset removes a field. Saving a persisted entity sends it as null.
func (e *Entity) Unset(field string) *Entity {
	delete(e.fields, field)

	return e
}

// Fields returns a shallow copy of the field map without the id.
func (e *Entity) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}

	return out
}

// FieldNames returns the field names in sorted order.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Translated returns the value of a translated field in the entity language.
func (e *Entity) Translated(field string) (interface{}, bool) {
	value, ok := e.translated[field]

	return value, ok
}

// TranslatedString returns a translated string field or "".
func (e *Entity) TranslatedString(field string) string {
	value, _ := e.Translated(field)

	s, _ := value.(string)

	return s
}

// TranslatedFields returns a copy of the translated values.
func (e *Entity) TranslatedFields() map[string]interface{} {
	out := make(map[string]interface{}, len(e.translated))
	for k, v := range e.translated {
		out[k] = v
	}

	return out
}

// Changes returns the changeset that saving this entity would send. New
// entities return every field.
func (e *Entity) Changes() map[string]interface{} {
	return BuildChangeset(e, nil)
}

// HasChanges reports whether saving would send anything.
func (e *Entity) HasChanges() bool {
	if e.isNew {
		return true
	}

	return len(BuildChangeset(e, nil)) > 0
}

// IsChanged reports whether field differs from its loaded value.
func (e *Entity) IsChanged(field string) bool {
	value, present := e.fields[field]
	before, loaded := e.origin[field]

	if !present || !loaded {
		return present != loaded
	}

	return canonical(value) != before
}

// Clone returns a deep copy including change tracking state.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}

	clone := &Entity{
		id:         e.id,
		name:       e.name,
		isNew:      e.isNew,
		languageID: e.languageID,
		fields:     make(map[string]interface{}, len(e.fields)),
		translated: make(map[string]interface{}, len(e.translated)),
		origin:     make(map[string]string, len(e.origin)),
	}

	for k, v := range e.fields {
		switch value := v.(type) {
		case *Entity:
			clone.fields[k] = value.Clone()
		case *EntityCollection:
			clone.fields[k] = value.Clone()
		default:
			clone.fields[k] = cloneJSONValue(value)
		}
	}

	for k, v := range e.translated {
		clone.translated[k] = cloneJSONValue(v)
	}

	for k, v := range e.origin {
		clone.origin[k] = v
	}

	return clone
}

// MarshalJSON encodes the full record including the translated sub-object.
func (e *Entity) MarshalJSON() ([]byte, error) {
	record := make(map[string]interface{}, len(e.fields)+2)
	for k, v := range e.fields {
		record[k] = v
	}

	record[fieldID] = e.id

	if len(e.translated) > 0 {
		record[fieldTranslated] = e.translated
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding %s %s: %w", e.name, e.id, err)
	}

	return data, nil
}

// canonical encodes a value for change detection. Nested entities compare by
// reference id, collections are tracked through their items.
func canonical(value interface{}) string {
	switch v := value.(type) {
	case *Entity:
		if v == nil {
			return "null"
		}

		return refPrefix + v.id
	case *EntityCollection:
		if v == nil {
			return "null"
		}

		return collectionMark
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%#v", value)
	}

	return string(data)
}

// cloneJSONValue deep copies JSON shaped data.
func cloneJSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = cloneJSONValue(item)
		}

		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = cloneJSONValue(item)
		}

		return out
	default:
		return v
	}
}
