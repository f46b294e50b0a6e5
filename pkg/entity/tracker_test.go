package entity_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

func TestRequestFingerprint(t *testing.T) {
	t.Parallel()

	base := entity.RequestFingerprint(entity.NewCriteria().SetLimit(5), testCtx)

	assert.Equal(t, base, entity.RequestFingerprint(entity.NewCriteria().SetLimit(5), testCtx))
	assert.NotEqual(t, base, entity.RequestFingerprint(entity.NewCriteria().SetLimit(6), testCtx))
	assert.NotEqual(t, base, entity.RequestFingerprint(entity.NewCriteria().SetLimit(5), testCtx.WithCurrency("c")))
	assert.NotEqual(t, base, entity.RequestFingerprint(entity.NewCriteria().SetLimit(5), testCtx.WithVersion("v")))
}

func TestRequestTracker_LastRequestWins(t *testing.T) {
	t.Parallel()

	var tracker entity.RequestTracker

	slowCriteria := entity.NewCriteria().SetTerm("a")
	fastCriteria := entity.NewCriteria().SetTerm("ab")

	slow := tracker.Begin(slowCriteria, testCtx)
	fast := tracker.Begin(fastCriteria, testCtx)

	fastResult := entity.NewEntityCollection("/user", "user", testCtx, fastCriteria.Clone())
	slowResult := entity.NewEntityCollection("/user", "user", testCtx, slowCriteria.Clone())

	assert.True(t, tracker.Accept(fast, fastResult))
	assert.False(t, tracker.Accept(slow, slowResult), "superseded request")
	assert.False(t, tracker.Accept(fast, slowResult), "result of another request")
	assert.False(t, fast.Matches(nil))
	assert.False(t, tracker.IsLatest(slow))
	assert.True(t, tracker.IsLatest(fast))
}

func TestRequestTracker_Concurrent(t *testing.T) {
	t.Parallel()

	var (
		tracker entity.RequestTracker
		wg      sync.WaitGroup
	)

	tokens := make([]entity.RequestToken, 50)

	for i := range tokens {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			tokens[i] = tracker.Begin(entity.NewCriteria().SetPage(i+1), testCtx)
		}(i)
	}

	wg.Wait()

	latest := 0

	for _, token := range tokens {
		if tracker.IsLatest(token) {
			latest++
		}
	}

	assert.Equal(t, 1, latest)
}

func TestRequestTracker_NilCriteria(t *testing.T) {
	t.Parallel()

	var tracker entity.RequestTracker

	token := tracker.Begin(nil, testCtx)
	result := entity.NewEntityCollection("/user", "user", testCtx, entity.NewCriteria())

	assert.Equal(t, entity.RequestFingerprint(entity.NewCriteria(), testCtx), entity.RequestFingerprint(nil, testCtx))
	assert.True(t, result.MatchesRequest(nil, testCtx))
	assert.True(t, tracker.Accept(token, result), "a search without criteria echoes empty criteria")
}
