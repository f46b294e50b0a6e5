package entity

import (
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// RequestFingerprint identifies a search request by its criteria and the
// context values that influence the result. A nil criteria is the empty
// criteria a search sends in its place.
func RequestFingerprint(criteria *Criteria, apiCtx APIContext) string {
	if criteria == nil {
		criteria = NewCriteria()
	}

	h := xxhash.New()
	_, _ = h.WriteString(criteria.Fingerprint())

	for _, part := range []string{
		apiCtx.Endpoint, apiCtx.LanguageID, apiCtx.CurrencyID, apiCtx.APIVersion, apiCtx.LiveVersionID,
	} {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(part)
	}

	return fmt.Sprintf("%016x", h.Sum64())
}

// RequestToken marks one issued request.
type RequestToken struct {
	seq         uint64
	fingerprint string
}

// Matches reports whether collection is the answer to the request the token
// was issued for.
func (t RequestToken) Matches(collection *EntityCollection) bool {
	return collection != nil && collection.Fingerprint() == t.fingerprint
}

// RequestTracker implements "last request wins" for callers that reload the
// same view concurrently. Each Begin supersedes the tokens issued before it.
// It is safe for concurrent use.
type RequestTracker struct {
	seq atomic.Uint64
}

// Begin issues a token for a new request.
func (t *RequestTracker) Begin(criteria *Criteria, apiCtx APIContext) RequestToken {
	return RequestToken{
		seq:         t.seq.Add(1),
		fingerprint: RequestFingerprint(criteria, apiCtx),
	}
}

// IsLatest reports whether no request was issued after token.
func (t *RequestTracker) IsLatest(token RequestToken) bool {
	return t.seq.Load() == token.seq
}

// Accept reports whether collection should be displayed: it must answer the
// token's request and that request must still be the latest.
func (t *RequestTracker) Accept(token RequestToken, collection *EntityCollection) bool {
	return t.IsLatest(token) && token.Matches(collection)
}
