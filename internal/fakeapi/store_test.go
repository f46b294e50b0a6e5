package fakeapi

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store := NewStore(DefaultSchemas())
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	return store
}

func requireWriteError(t *testing.T, err error, status int, code string) *writeError {
	t.Helper()

	var we *writeError
	require.True(t, errors.As(err, &we), "expected writeError, got %v", err)
	assert.Equal(t, status, we.status)
	require.NotEmpty(t, we.errors)
	assert.Equal(t, code, we.errors[0].Code)

	return we
}

func TestStore_WriteAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	id, err := store.Write("user", map[string]interface{}{
		"username": "admin",
		"email":    "admin@example.com",
	}, "", modeCreate)
	require.NoError(t, err)
	assert.Len(t, id, 32)

	data := store.Get("user", id, nil, "")
	require.NotNil(t, data)
	assert.Equal(t, id, data["id"])
	assert.Equal(t, "admin", data["username"])
	assert.Equal(t, "2026-01-02T03:04:05Z", data["createdAt"])
	assert.Nil(t, data["updatedAt"])

	assert.Nil(t, store.Get("user", "missing", nil, ""))
}

func TestStore_WriteModes(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Write("locale", map[string]interface{}{"id": "l1", "code": "en-GB"}, "", modeCreate)
	require.NoError(t, err)

	_, err = store.Write("locale", map[string]interface{}{"id": "l1", "code": "de-DE"}, "", modeCreate)
	requireWriteError(t, err, http.StatusBadRequest, constants.ErrorCodeDuplicateID)

	_, err = store.Write("locale", map[string]interface{}{"id": "l2", "code": "de-DE"}, "", modeUpdate)
	requireWriteError(t, err, http.StatusNotFound, constants.ErrorCodeNotFound)

	_, err = store.Write("locale", map[string]interface{}{"id": "l1", "code": "fr-FR"}, "", modeUpsert)
	require.NoError(t, err)
	assert.Equal(t, "fr-FR", store.Get("locale", "l1", nil, "")["code"])
	assert.NotNil(t, store.Get("locale", "l1", nil, "")["updatedAt"])

	_, err = store.Write("unknown", map[string]interface{}{}, "", modeCreate)
	requireWriteError(t, err, http.StatusBadRequest, constants.ErrorCodeUnknownEntity)
}

func TestStore_Validation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Write("user", map[string]interface{}{"username": "admin"}, "", modeCreate)
	we := requireWriteError(t, err, http.StatusBadRequest, constants.ErrorCodeRequired)
	require.NotNil(t, we.errors[0].Source)
	assert.Equal(t, "/email", we.errors[0].Source.Pointer)

	_, err = store.Write("user", map[string]interface{}{"username": "admin", "email": "a@example.com"}, "", modeCreate)
	require.NoError(t, err)

	_, err = store.Write("user", map[string]interface{}{"username": "admin", "email": "b@example.com"}, "", modeCreate)
	we = requireWriteError(t, err, http.StatusConflict, constants.ErrorCodeUnique)
	assert.Equal(t, "/username", we.errors[0].Source.Pointer)

	assert.Equal(t, 1, store.Count("user"))
}

func TestStore_FailedWriteIsAtomic(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Write("user", map[string]interface{}{
		"username": "admin",
		"email":    "admin@example.com",
		"accessKeys": []interface{}{
			map[string]interface{}{"accessKey": "k1"},
			map[string]interface{}{"label": "missing key"},
		},
	}, "", modeCreate)
	we := requireWriteError(t, err, http.StatusBadRequest, constants.ErrorCodeRequired)
	assert.Equal(t, "/accessKeys/1/accessKey", we.errors[0].Source.Pointer)

	assert.Equal(t, 0, store.Count("user"))
	assert.Equal(t, 0, store.Count("user_access_key"))
}

func TestStore_NestedWrites(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	id, err := store.Write("user", map[string]interface{}{
		"username": "admin",
		"email":    "admin@example.com",
		"locale":   map[string]interface{}{"id": "l1", "code": "en-GB"},
		"accessKeys": []interface{}{
			map[string]interface{}{"accessKey": "k1"},
			map[string]interface{}{"accessKey": "k2"},
		},
	}, "", modeCreate)
	require.NoError(t, err)

	criteria := entity.NewCriteria().AddAssociation("locale").AddAssociation("accessKeys")

	data := store.Get("user", id, criteria, "")
	require.NotNil(t, data)
	assert.Equal(t, "l1", data["localeId"])

	locale, ok := data["locale"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "en-GB", locale["code"])

	keys, ok := data["accessKeys"].([]interface{})
	require.True(t, ok)
	assert.Len(t, keys, 2)

	require.NoError(t, store.Delete("user", id))
	assert.Equal(t, 0, store.Count("user_access_key"), "to-many children are removed with the owner")
	assert.Equal(t, 1, store.Count("locale"), "to-one targets survive")

	requireWriteError(t, store.Delete("user", id), http.StatusNotFound, constants.ErrorCodeNotFound)
}

func TestStore_Translations(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	german := "0fa91ce3e96a4bc2be4bd9ce752c3425"

	_, err := store.Write("locale", map[string]interface{}{"id": "l1", "code": "de-DE", "name": "German"}, "", modeCreate)
	require.NoError(t, err)

	_, err = store.Write("locale", map[string]interface{}{"id": "l1", "name": "Deutsch"}, german, modeUpdate)
	require.NoError(t, err)

	system := store.Get("locale", "l1", nil, "")
	assert.Equal(t, "German", system["name"])

	translatedDE := store.Get("locale", "l1", nil, german)
	assert.Equal(t, "Deutsch", translatedDE["name"])

	other := store.Get("locale", "l1", nil, "ffffffffffffffffffffffffffffffff")
	assert.Nil(t, other["name"], "raw value is language specific")
	assert.Equal(t, map[string]interface{}{"name": "German"}, other["translated"], "translated falls back")
}

func TestStore_ComputedFieldsAreReadOnly(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	id, err := store.Write("product", map[string]interface{}{
		"productNumber": "SW1",
		"price":         2.5,
		"stock":         4.0,
		"totalPrice":    1000.0,
	}, "", modeCreate)
	require.NoError(t, err)

	data := store.Get("product", id, nil, "")
	assert.InDelta(t, 10.0, data["totalPrice"], 0.0001)
}

func TestStore_Sync(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	outcomes := store.Sync([]entity.SyncItem{
		{Entity: "locale", Action: constants.SyncActionUpsert, Payload: map[string]interface{}{"id": "l1", "code": "a"}},
		{Entity: "locale", Action: constants.SyncActionUpsert, Payload: map[string]interface{}{"id": "l2"}},
		{Entity: "locale", Action: constants.SyncActionUpsert, Payload: map[string]interface{}{"id": "l3", "code": "c"}},
		{Entity: "locale", Action: constants.SyncActionDelete, Payload: map[string]interface{}{"id": "missing"}},
		{Entity: "locale", Action: "merge", Payload: map[string]interface{}{"id": "l1"}},
	}, "")

	require.Len(t, outcomes, 5)
	assert.NoError(t, outcomes[0].Err)
	requireWriteError(t, outcomes[1].Err, http.StatusBadRequest, constants.ErrorCodeRequired)
	assert.NoError(t, outcomes[2].Err)
	requireWriteError(t, outcomes[3].Err, http.StatusNotFound, constants.ErrorCodeNotFound)
	requireWriteError(t, outcomes[4].Err, http.StatusBadRequest, constants.ErrorCodeMalformedRequest)

	assert.Equal(t, 2, store.Count("locale"))
}

func TestStore_Search(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	for _, name := range []string{"item10", "item2", "Item1", "item3", "item20"} {
		_, err := store.Write("rule", map[string]interface{}{"name": name, "priority": float64(len(name))}, "", modeCreate)
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		criteria  *entity.Criteria
		wantNames []string
		wantTotal int
	}{
		{
			name:      "insertion order",
			criteria:  entity.NewCriteria(),
			wantNames: []string{"item10", "item2", "Item1", "item3", "item20"},
			wantTotal: 5,
		},
		{
			name:      "limit keeps total",
			criteria:  entity.NewCriteria().SetLimit(2),
			wantNames: []string{"item10", "item2"},
			wantTotal: 5,
		},
		{
			name:      "second page",
			criteria:  entity.NewCriteria().SetLimit(2).SetPage(2),
			wantNames: []string{"Item1", "item3"},
			wantTotal: 5,
		},
		{
			name:      "natural sort",
			criteria:  entity.NewCriteria().AddSorting(entity.Sort("name", entity.SortAscending, true)),
			wantNames: []string{"Item1", "item2", "item3", "item10", "item20"},
			wantTotal: 5,
		},
		{
			name: "compound sort",
			criteria: entity.NewCriteria().AddSorting(
				entity.Sort("priority", entity.SortDescending),
				entity.Sort("name", entity.SortAscending),
			),
			wantNames: []string{"item10", "item20", "Item1", "item2", "item3"},
			wantTotal: 5,
		},
		{
			name:      "prefix filter",
			criteria:  entity.NewCriteria().AddFilter(entity.Prefix("name", "item1")),
			wantNames: []string{"item10", "Item1"},
			wantTotal: 2,
		},
		{
			name:      "equals any",
			criteria:  entity.NewCriteria().AddFilter(entity.EqualsAny("name", "item2", "item3")),
			wantNames: []string{"item2", "item3"},
			wantTotal: 2,
		},
		{
			name:      "term",
			criteria:  entity.NewCriteria().SetTerm("EM20"),
			wantNames: []string{"item20"},
			wantTotal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := store.Search("rule", tt.criteria, "", nil)
			assert.Equal(t, tt.wantTotal, result.Total)

			names := make([]string, 0, len(result.Records))
			for _, record := range result.Records {
				names = append(names, record["name"].(string))
			}

			assert.Equal(t, tt.wantNames, names)
			assert.Len(t, result.IDs, len(result.Records))
		})
	}
}

func TestStore_SearchDotPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Write("user", map[string]interface{}{
		"username": "a", "email": "a@example.com",
		"locale": map[string]interface{}{"id": "l1", "code": "en-GB"},
	}, "", modeCreate)
	require.NoError(t, err)

	_, err = store.Write("user", map[string]interface{}{
		"username": "b", "email": "b@example.com",
		"locale": map[string]interface{}{"id": "l2", "code": "de-DE"},
	}, "", modeCreate)
	require.NoError(t, err)

	result := store.Search("user", entity.NewCriteria().AddFilter(entity.Equals("locale.code", "de-DE")), "", nil)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "b", result.Records[0]["username"])
}

func TestNaturalCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"item2", "item10", -1},
		{"item10", "item2", 1},
		{"item02", "item2", 0},
		{"A", "a", 0},
		{"abc", "abcd", -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, naturalCompare(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
