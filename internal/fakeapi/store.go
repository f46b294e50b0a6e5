package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

const (
	fieldID         = "id"
	fieldCreatedAt  = "createdAt"
	fieldUpdatedAt  = "updatedAt"
	fieldTranslated = "translated"
)

type writeMode int

const (
	modeCreate writeMode = iota
	modeUpdate
	modeUpsert
)

// record is one stored row. Translated fields live per language.
type record struct {
	id           string
	seq          uint64
	fields       map[string]interface{}
	translations map[string]map[string]interface{}
	createdAt    time.Time
	updatedAt    time.Time
}

func (r *record) clone() *record {
	out := &record{
		id:           r.id,
		seq:          r.seq,
		fields:       make(map[string]interface{}, len(r.fields)),
		translations: make(map[string]map[string]interface{}, len(r.translations)),
		createdAt:    r.createdAt,
		updatedAt:    r.updatedAt,
	}

	for k, v := range r.fields {
		out.fields[k] = v
	}

	for lang, values := range r.translations {
		copied := make(map[string]interface{}, len(values))
		for k, v := range values {
			copied[k] = v
		}

		out.translations[lang] = copied
	}

	return out
}

// Store is an in-memory entity database. Every exported method is safe for
// concurrent use; each write either commits completely or not at all.
type Store struct {
	mu              sync.RWMutex
	schemas         map[string]*EntitySchema
	tables          map[string]map[string]*record
	seq             uint64
	defaultLanguage string
	now             func() time.Time
}

// NewStore creates an empty store serving schemas.
func NewStore(schemas []EntitySchema) *Store {
	s := &Store{
		schemas:         make(map[string]*EntitySchema, len(schemas)),
		tables:          make(map[string]map[string]*record, len(schemas)),
		defaultLanguage: constants.DefaultLanguageID,
		now:             time.Now,
	}

	for i := range schemas {
		schema := schemas[i]
		s.schemas[schema.Name] = &schema
		s.tables[schema.Name] = make(map[string]*record)
	}

	return s
}

// HasEntity reports whether entityName is served.
func (s *Store) HasEntity(entityName string) bool {
	_, ok := s.schemas[entityName]

	return ok
}

// EntityNames returns the served entity names in sorted order.
func (s *Store) EntityNames() []string {
	names := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Count returns the number of stored records of entityName.
func (s *Store) Count(entityName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tables[entityName])
}

// writeError is a failed write: the HTTP status plus the error document.
type writeError struct {
	status int
	errors []entity.APIError
}

func (e *writeError) Error() string {
	return (&entity.ResponseError{Errors: e.errors}).Error()
}

func newWriteError(status int, code, title, detail, pointer string) *writeError {
	apiErr := entity.APIError{
		Status: strconv.Itoa(status),
		Code:   code,
		Title:  title,
		Detail: detail,
	}

	if pointer != "" {
		apiErr.Source = &entity.ErrorSource{Pointer: pointer}
	}

	return &writeError{status: status, errors: []entity.APIError{apiErr}}
}

// Write creates or updates a record from payload in language lang and
// returns the record id.
func (s *Store) Write(entityName string, payload map[string]interface{}, lang string, mode writeMode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.begin(lang)

	id := t.write(entityName, payload, "", mode)
	if err := t.err(); err != nil {
		return "", err
	}

	t.commit()

	return id, nil
}

// Delete removes a record and its to-many children.
func (s *Store) Delete(entityName, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.begin(s.defaultLanguage)
	t.remove(entityName, id)

	if err := t.err(); err != nil {
		return err
	}

	t.commit()

	return nil
}

// SyncItemOutcome is the result of one sync item.
type SyncItemOutcome struct {
	ID  string
	Err error
}

// Sync applies items one by one. Each item commits on its own; a failing
// item leaves the others untouched.
func (s *Store) Sync(items []entity.SyncItem, lang string) []SyncItemOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := make([]SyncItemOutcome, len(items))

	for i, item := range items {
		t := s.begin(lang)

		switch item.Action {
		case constants.SyncActionUpsert:
			outcomes[i].ID = t.write(item.Entity, item.Payload, "", modeUpsert)
		case constants.SyncActionDelete:
			id, _ := item.Payload[fieldID].(string)
			outcomes[i].ID = id
			t.remove(item.Entity, id)
		default:
			t.fail(newWriteError(http.StatusBadRequest, constants.ErrorCodeMalformedRequest,
				"Malformed request", fmt.Sprintf("unknown sync action %q", item.Action), ""))
		}

		if err := t.err(); err != nil {
			outcomes[i].Err = err

			continue
		}

		t.commit()
	}

	return outcomes
}

// tx buffers the writes of one operation until commit.
type tx struct {
	store   *Store
	lang    string
	pending map[string]map[string]*record
	failure *writeError
}

func (s *Store) begin(lang string) *tx {
	if lang == "" {
		lang = s.defaultLanguage
	}

	return &tx{store: s, lang: lang, pending: make(map[string]map[string]*record)}
}

func (t *tx) fail(err *writeError) {
	if t.failure == nil {
		t.failure = err

		return
	}

	t.failure.errors = append(t.failure.errors, err.errors...)
	if err.status > t.failure.status {
		t.failure.status = err.status
	}
}

func (t *tx) err() error {
	if t.failure == nil {
		return nil
	}

	return t.failure
}

func (t *tx) lookup(entityName, id string) *record {
	if pending, ok := t.pending[entityName]; ok {
		if rec, found := pending[id]; found {
			return rec
		}
	}

	return t.store.tables[entityName][id]
}

// all returns the visible records of entityName in creation order.
func (t *tx) all(entityName string) []*record {
	merged := make(map[string]*record, len(t.store.tables[entityName]))
	for id, rec := range t.store.tables[entityName] {
		merged[id] = rec
	}

	for id, rec := range t.pending[entityName] {
		merged[id] = rec
	}

	out := make([]*record, 0, len(merged))

	for _, rec := range merged {
		if rec != nil {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })

	return out
}

func (t *tx) put(entityName string, rec *record) {
	if t.pending[entityName] == nil {
		t.pending[entityName] = make(map[string]*record)
	}

	t.pending[entityName][rec.id] = rec
}

func (t *tx) commit() {
	for entityName, records := range t.pending {
		for id, rec := range records {
			if rec == nil {
				delete(t.store.tables[entityName], id)

				continue
			}

			t.store.tables[entityName][id] = rec
		}
	}
}

func (t *tx) write(entityName string, payload map[string]interface{}, pointer string, mode writeMode) string {
	schema, ok := t.store.schemas[entityName]
	if !ok {
		t.fail(newWriteError(http.StatusBadRequest, constants.ErrorCodeUnknownEntity,
			"Unknown entity", fmt.Sprintf("entity %q is not defined", entityName), pointer))

		return ""
	}

	id, _ := payload[fieldID].(string)
	if id == "" {
		id = entity.NewID()
	}

	existing := t.lookup(entityName, id)

	switch {
	case mode == modeCreate && existing != nil:
		t.fail(newWriteError(http.StatusBadRequest, constants.ErrorCodeDuplicateID,
			"Duplicate id", fmt.Sprintf("%s %q already exists", entityName, id), pointer+"/"+fieldID))

		return id
	case mode == modeUpdate && existing == nil:
		t.fail(newWriteError(http.StatusNotFound, constants.ErrorCodeNotFound,
			"Not found", fmt.Sprintf("%s %q not found", entityName, id), ""))

		return id
	}

	var rec *record

	now := t.store.now().UTC()

	if existing != nil {
		rec = existing.clone()
		rec.updatedAt = now
	} else {
		t.store.seq++
		rec = &record{
			id:           id,
			seq:          t.store.seq,
			fields:       make(map[string]interface{}),
			translations: make(map[string]map[string]interface{}),
			createdAt:    now,
		}
	}

	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		if key == fieldID || schema.isReadOnly(key) {
			continue
		}

		t.applyField(schema, rec, key, payload[key], pointer)
	}

	t.validate(schema, rec, pointer)
	t.put(entityName, rec)

	return id
}

func (t *tx) applyField(schema *EntitySchema, rec *record, key string, value interface{}, pointer string) {
	fieldPointer := pointer + "/" + key

	assoc, isAssoc := schema.Associations[key]

	switch {
	case isAssoc && !assoc.ToMany:
		switch v := value.(type) {
		case nil:
			delete(rec.fields, assoc.LocalKey)
		case map[string]interface{}:
			rec.fields[assoc.LocalKey] = t.write(assoc.Entity, v, fieldPointer, modeUpsert)
		default:
			t.fail(newWriteError(http.StatusBadRequest, constants.ErrorCodeInvalid,
				"Invalid value", key+" must be an object", fieldPointer))
		}
	case isAssoc:
		items, ok := value.([]interface{})
		if !ok {
			t.fail(newWriteError(http.StatusBadRequest, constants.ErrorCodeInvalid,
				"Invalid value", key+" must be a list", fieldPointer))

			return
		}

		for i, item := range items {
			child, ok := item.(map[string]interface{})
			if !ok {
				t.fail(newWriteError(http.StatusBadRequest, constants.ErrorCodeInvalid,
					"Invalid value", key+" items must be objects", fieldPointer+"/"+strconv.Itoa(i)))

				continue
			}

			withOwner := make(map[string]interface{}, len(child)+1)
			for k, v := range child {
				withOwner[k] = v
			}

			withOwner[assoc.ForeignKey] = rec.id

			t.write(assoc.Entity, withOwner, fieldPointer+"/"+strconv.Itoa(i), modeUpsert)
		}
	case schema.isTranslated(key):
		if rec.translations[t.lang] == nil {
			rec.translations[t.lang] = make(map[string]interface{})
		}

		if value == nil {
			delete(rec.translations[t.lang], key)
		} else {
			rec.translations[t.lang][key] = value
		}
	case value == nil:
		delete(rec.fields, key)
	default:
		rec.fields[key] = value
	}
}

func (t *tx) validate(schema *EntitySchema, rec *record, pointer string) {
	for _, field := range schema.Required {
		value := t.store.fieldValue(schema, rec, field, t.lang)
		if value == nil || value == "" {
			t.fail(newWriteError(http.StatusBadRequest, constants.ErrorCodeRequired,
				"Value required", field+" must not be blank", pointer+"/"+field))
		}
	}

	for _, field := range schema.Unique {
		value := t.store.fieldValue(schema, rec, field, t.lang)
		if value == nil {
			continue
		}

		for _, other := range t.all(schema.Name) {
			if other.id == rec.id {
				continue
			}

			if jsonEqual(t.store.fieldValue(schema, other, field, t.lang), value) {
				t.fail(newWriteError(http.StatusConflict, constants.ErrorCodeUnique,
					"Unique violation", fmt.Sprintf("%s %v is already taken", field, value), pointer+"/"+field))

				break
			}
		}
	}
}

func (t *tx) remove(entityName, id string) {
	schema, ok := t.store.schemas[entityName]
	if !ok {
		t.fail(newWriteError(http.StatusBadRequest, constants.ErrorCodeUnknownEntity,
			"Unknown entity", fmt.Sprintf("entity %q is not defined", entityName), ""))

		return
	}

	if id == "" || t.lookup(entityName, id) == nil {
		t.fail(newWriteError(http.StatusNotFound, constants.ErrorCodeNotFound,
			"Not found", fmt.Sprintf("%s %q not found", entityName, id), ""))

		return
	}

	if t.pending[entityName] == nil {
		t.pending[entityName] = make(map[string]*record)
	}

	t.pending[entityName][id] = nil

	for _, assoc := range schema.Associations {
		if !assoc.ToMany {
			continue
		}

		for _, child := range t.all(assoc.Entity) {
			if child.fields[assoc.ForeignKey] == id {
				t.remove(assoc.Entity, child.id)
			}
		}
	}
}

// fieldValue reads a field of rec. Translated fields fall back to the
// default language.
func (s *Store) fieldValue(schema *EntitySchema, rec *record, field, lang string) interface{} {
	switch field {
	case fieldID:
		return rec.id
	case fieldCreatedAt:
		return rec.createdAt.Format(time.RFC3339Nano)
	case fieldUpdatedAt:
		if rec.updatedAt.IsZero() {
			return nil
		}

		return rec.updatedAt.Format(time.RFC3339Nano)
	}

	if schema.isTranslated(field) {
		if value, ok := rec.translations[lang][field]; ok {
			return value
		}

		return rec.translations[s.defaultLanguage][field]
	}

	return rec.fields[field]
}

func jsonEqual(a, b interface{}) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}

	right, err := json.Marshal(b)
	if err != nil {
		return false
	}

	return string(left) == string(right)
}
