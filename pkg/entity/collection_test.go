package entity_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

func TestEntityCollection_AddSetRemove(t *testing.T) {
	t.Parallel()

	c := entity.NewEntityCollection("/user", "user", testCtx, nil)
	require.NotNil(t, c.Criteria)

	require.NoError(t, c.Add(entity.NewEntity("user", "a")))
	require.NoError(t, c.Add(entity.NewEntity("user", "b")))
	require.NoError(t, c.Add(entity.NewEntity("user", "c")))

	err := c.Add(entity.NewEntity("user", "b"))
	require.ErrorIs(t, err, entity.ErrDuplicateID)
	require.ErrorIs(t, c.Add(nil), entity.ErrNilEntity)
	assert.Equal(t, 3, c.Len())

	replacement := entity.NewEntity("user", "b").Set("username", "bob")
	c.Set(replacement)
	c.Set(nil)
	assert.Equal(t, []string{"a", "b", "c"}, c.IDs(), "Set replaces in place")

	got, ok := c.Get("b")
	require.True(t, ok)
	assert.Same(t, replacement, got)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, []string{"b", "c"}, c.IDs())
	assert.Equal(t, "c", c.At(1).ID())

	got, ok = c.Get("c")
	require.True(t, ok, "index is rebuilt after removal")
	assert.Equal(t, "c", got.ID())

	assert.Equal(t, "b", c.First().ID())
	assert.False(t, c.Has("a"))
	assert.Len(t, c.Items(), 2)

	empty := entity.NewEntityCollection("/user", "user", testCtx, nil)
	assert.Nil(t, empty.First())
}

func TestEntityCollection_MatchesRequest(t *testing.T) {
	t.Parallel()

	criteria := entity.NewCriteria().SetLimit(10)
	c := entity.NewEntityCollection("/user", "user", testCtx, criteria.Clone())

	assert.True(t, c.MatchesRequest(entity.NewCriteria().SetLimit(10), testCtx))
	assert.False(t, c.MatchesRequest(entity.NewCriteria().SetLimit(20), testCtx))
	assert.False(t, c.MatchesRequest(criteria, testCtx.WithLanguage("other")))

	unfiltered := entity.NewEntityCollection("/user", "user", testCtx, nil)
	assert.True(t, unfiltered.MatchesRequest(nil, testCtx))
	assert.Equal(t, entity.RequestFingerprint(entity.NewCriteria(), testCtx), unfiltered.Fingerprint())
}

func TestEntityCollection_Clone(t *testing.T) {
	t.Parallel()

	c := entity.NewEntityCollection("/user", "user", testCtx, entity.NewCriteria().SetTerm("a"))
	c.Total = 7
	c.Aggregations = map[string]interface{}{"count": map[string]interface{}{"value": 7.0}}
	c.Set(entity.NewEntity("user", "a").Set("username", "amy"))

	clone := c.Clone()
	clone.At(0).Set("username", "changed")
	clone.Criteria.SetTerm("b")
	clone.Aggregations["count"].(map[string]interface{})["value"] = 0.0

	assert.Equal(t, 7, clone.Total)
	assert.Equal(t, "amy", c.At(0).GetString("username"))
	assert.Equal(t, "a", c.Criteria.Term())
	assert.InDelta(t, 7.0, c.Aggregations["count"].(map[string]interface{})["value"], 0)
}

func TestEntityCollection_MarshalJSON(t *testing.T) {
	t.Parallel()

	c := entity.NewEntityCollection("/user", "user", testCtx, nil)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	c.Set(entity.NewEntity("user", "a").Set("username", "amy"))

	data, err = json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","username":"amy"}]`, string(data))
}
