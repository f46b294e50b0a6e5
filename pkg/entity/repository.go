package entity

import (
	"context"
	"time"
)

// Repository is the CRUD and sync facade for one entity name. It holds no
// per-call state: every operation receives its own criteria and context, so
// concurrent calls never contend.
//
// Failures are always typed: *RequestFailure, *NotFoundError,
// *ValidationFailure or *ConflictFailure. No operation mutates the entities
// passed to it.
type Repository interface {
	// EntityName returns the entity name the repository is bound to.
	EntityName() string
	// Source returns the collection endpoint, e.g. "/user".
	Source() string

	// Create returns a new, unsaved entity. An empty id is generated.
	Create(apiCtx APIContext, id string) *Entity

	// Search returns the entities matching criteria. The returned
	// collection carries a copy of criteria and apiCtx.
	Search(ctx context.Context, criteria *Criteria, apiCtx APIContext) (*EntityCollection, error)
	// SearchIDs returns only the ids matching criteria.
	SearchIDs(ctx context.Context, criteria *Criteria, apiCtx APIContext) (*IDSearchResult, error)
	// Get fetches one entity. criteria may be nil or request associations.
	Get(ctx context.Context, id string, apiCtx APIContext, criteria *Criteria) (*Entity, error)

	// Save sends the changes of e and returns the server's canonical record.
	// Saving an unchanged persisted entity is a no-op.
	Save(ctx context.Context, e *Entity, apiCtx APIContext) (*Entity, error)
	// Delete removes the entity with id.
	Delete(ctx context.Context, id string, apiCtx APIContext) error
	// Sync upserts entities in a single round trip.
	Sync(ctx context.Context, entities []*Entity, apiCtx APIContext) ([]SyncResult, error)
	// SyncOperations sends mixed upserts and deletes in a single round trip.
	SyncOperations(ctx context.Context, operations []SyncOperation, apiCtx APIContext) ([]SyncResult, error)
}

// IDSearchResult is the answer to an id-only search.
type IDSearchResult struct {
	IDs      []string  `json:"data"  yaml:"data"`
	Total    int       `json:"total" yaml:"total"`
	Criteria *Criteria `json:"-"     yaml:"-"`
}

// SyncOperation is one item of a sync batch.
type SyncOperation struct {
	// Action is SyncActionUpsert or SyncActionDelete.
	Action string
	// EntityName defaults to the repository's entity name.
	EntityName string
	// ID names the record to delete.
	ID string
	// Entity is the record to upsert. Its changeset becomes the payload.
	Entity *Entity
	// Payload is sent verbatim when Entity is nil.
	Payload map[string]interface{}
}

// SyncResult is the outcome of one sync item, aligned by Index with the
// submitted operations. A failed item never prevents the others from
// committing; Success is false and Error holds a typed failure.
type SyncResult struct {
	Index   int
	Entity  string
	Action  string
	ID      string
	Success bool
	// Skipped marks upserts of unchanged entities that were not sent.
	Skipped bool
	// Data is the server record after an upsert, when returned.
	Data  *Entity
	Error error
}

// SyncSummary counts the outcomes of a sync.
type SyncSummary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Summarize counts results.
func Summarize(results []SyncResult) SyncSummary {
	var summary SyncSummary

	for _, r := range results {
		switch {
		case !r.Success:
			summary.Failed++
		case r.Skipped:
			summary.Skipped++
			summary.Succeeded++
		default:
			summary.Succeeded++
		}
	}

	return summary
}

// WriteEvent describes a committed write.
type WriteEvent struct {
	Entity     string    `json:"entity"`
	Action     string    `json:"action"`
	IDs        []string  `json:"ids"`
	LanguageID string    `json:"languageId,omitempty"`
	VersionID  string    `json:"versionId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Write event actions.
const (
	WriteActionCreate = "create"
	WriteActionUpdate = "update"
	WriteActionDelete = "delete"
	WriteActionSync   = "sync"
)

// WritePublisher is notified after writes commit. Publishing errors are
// logged and never turn a committed write into a failure.
type WritePublisher interface {
	PublishWrite(ctx context.Context, event WriteEvent) error
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NopLogger discards all records.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]interface{}) {}
func (NopLogger) Info(string, map[string]interface{})  {}
func (NopLogger) Warn(string, map[string]interface{})  {}
func (NopLogger) Error(string, map[string]interface{}) {}
