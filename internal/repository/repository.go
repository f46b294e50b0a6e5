// Package repository implements entity.Repository over the entity admin API.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	internalhttp "github.com/fivetwenty-io/entity-client/internal/http"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// Operation labels passed to interceptors.
const (
	opSearch    = "search"
	opSearchIDs = "search_ids"
	opGet       = "get"
	opCreate    = "create"
	opUpdate    = "update"
	opDelete    = "delete"
	opSync      = "sync"
)

// Repository implements entity.Repository for one entity name.
type Repository struct {
	entityName string
	source     string
	httpClient *internalhttp.Client
	schema     *entity.Schema
	hydrator   *entity.Hydrator
	publisher  entity.WritePublisher
	logger     entity.Logger
	now        func() time.Time
}

var _ entity.Repository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithSchema sets the field descriptors used for hydration and changesets.
func WithSchema(schema *entity.Schema) Option {
	return func(r *Repository) {
		r.schema = schema
	}
}

// WithPublisher publishes an event after every committed write.
func WithPublisher(publisher entity.WritePublisher) Option {
	return func(r *Repository) {
		r.publisher = publisher
	}
}

// WithLogger sets the logger.
func WithLogger(logger entity.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// New creates a repository bound to entityName. An empty source uses the
// entity's default endpoint.
func New(entityName, source string, httpClient *internalhttp.Client, opts ...Option) *Repository {
	if source == "" {
		source = entity.EntitySource(entityName)
	}

	r := &Repository{
		entityName: entityName,
		source:     source,
		httpClient: httpClient,
		logger:     entity.NopLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.hydrator = entity.NewHydrator(r.schema)

	return r
}

// EntityName returns the entity name.
func (r *Repository) EntityName() string { return r.entityName }

// Source returns the collection endpoint.
func (r *Repository) Source() string { return r.source }

// Create returns a new, unsaved entity.
func (r *Repository) Create(apiCtx entity.APIContext, id string) *entity.Entity {
	return entity.NewEntityInContext(r.entityName, id, apiCtx)
}

// Search returns the entities matching criteria.
func (r *Repository) Search(
	ctx context.Context,
	criteria *entity.Criteria,
	apiCtx entity.APIContext,
) (*entity.EntityCollection, error) {
	criteria, err := r.prepare(criteria, apiCtx)
	if err != nil {
		return nil, err
	}

	resp, err := r.do(ctx, apiCtx, &internalhttp.Request{
		Method:    http.MethodPost,
		Path:      constants.APIPathSearch + r.source,
		Body:      criteria,
		Operation: opSearch,
	})
	if err != nil {
		return nil, r.failure(resp, err, "")
	}

	var result entity.SearchResponse

	err = json.Unmarshal(resp.Body, &result)
	if err != nil {
		return nil, r.decodeFailure(resp, err)
	}

	collection, err := r.hydrator.HydrateSearchResult(r.source, r.entityName, &result, criteria, apiCtx)
	if err != nil {
		return nil, r.decodeFailure(resp, err)
	}

	return collection, nil
}

// SearchIDs returns the ids matching criteria.
func (r *Repository) SearchIDs(
	ctx context.Context,
	criteria *entity.Criteria,
	apiCtx entity.APIContext,
) (*entity.IDSearchResult, error) {
	criteria, err := r.prepare(criteria, apiCtx)
	if err != nil {
		return nil, err
	}

	resp, err := r.do(ctx, apiCtx, &internalhttp.Request{
		Method:    http.MethodPost,
		Path:      constants.APIPathSearchIDs + r.source,
		Body:      criteria,
		Operation: opSearchIDs,
	})
	if err != nil {
		return nil, r.failure(resp, err, "")
	}

	var result entity.IDSearchResult

	err = json.Unmarshal(resp.Body, &result)
	if err != nil {
		return nil, r.decodeFailure(resp, err)
	}

	result.Criteria = criteria.Clone()

	return &result, nil
}

// Get fetches one entity.
func (r *Repository) Get(
	ctx context.Context,
	id string,
	apiCtx entity.APIContext,
	criteria *entity.Criteria,
) (*entity.Entity, error) {
	if id == "" {
		return nil, entity.ErrEmptyID
	}

	criteria, err := r.prepare(criteria, apiCtx)
	if err != nil {
		return nil, err
	}

	var query url.Values

	encoded, err := json.Marshal(criteria)
	if err != nil {
		return nil, fmt.Errorf("encoding criteria: %w", err)
	}

	if string(encoded) != "{}" {
		query = url.Values{constants.QueryParamCriteria: []string{string(encoded)}}
	}

	resp, err := r.do(ctx, apiCtx, &internalhttp.Request{
		Method:    http.MethodGet,
		Path:      r.source + "/" + url.PathEscape(id),
		Query:     query,
		Operation: opGet,
	})
	if err != nil {
		return nil, r.failure(resp, err, id)
	}

	return r.decodeRecord(resp, criteria, apiCtx)
}

// Save sends the changes of e and returns the canonical record. e itself is
// never modified.
func (r *Repository) Save(ctx context.Context, e *entity.Entity, apiCtx entity.APIContext) (*entity.Entity, error) {
	if e == nil {
		return nil, entity.ErrNilEntity
	}

	if e.Name() != r.entityName {
		return nil, fmt.Errorf("%w: %s is not %s", entity.ErrEntityMismatch, e.Name(), r.entityName)
	}

	err := apiCtx.Validate()
	if err != nil {
		return nil, fmt.Errorf("saving %s: %w", r.entityName, err)
	}

	changes := entity.BuildChangeset(e, r.schema)

	if !e.IsNew() && len(changes) == 0 {
		r.logger.Debug("save skipped, no changes", map[string]interface{}{
			"entity": r.entityName,
			"id":     e.ID(),
		})

		return e, nil
	}

	req := &internalhttp.Request{Body: changes}
	action := entity.WriteActionUpdate

	if e.IsNew() {
		req.Method = http.MethodPost
		req.Path = r.source
		req.Operation = opCreate
		action = entity.WriteActionCreate
	} else {
		req.Method = http.MethodPatch
		req.Path = r.source + "/" + url.PathEscape(e.ID())
		req.Operation = opUpdate
	}

	resp, err := r.do(ctx, apiCtx, req)
	if err != nil {
		return nil, r.failure(resp, err, e.ID())
	}

	r.publish(ctx, apiCtx, action, []string{e.ID()})

	if len(resp.Body) == 0 {
		return r.Get(ctx, e.ID(), apiCtx, nil)
	}

	return r.decodeRecord(resp, nil, apiCtx)
}

// Delete removes the entity with id.
func (r *Repository) Delete(ctx context.Context, id string, apiCtx entity.APIContext) error {
	if id == "" {
		return entity.ErrEmptyID
	}

	err := apiCtx.Validate()
	if err != nil {
		return fmt.Errorf("deleting %s: %w", r.entityName, err)
	}

	resp, err := r.do(ctx, apiCtx, &internalhttp.Request{
		Method:    http.MethodDelete,
		Path:      r.source + "/" + url.PathEscape(id),
		Operation: opDelete,
	})
	if err != nil {
		return r.failure(resp, err, id)
	}

	r.publish(ctx, apiCtx, entity.WriteActionDelete, []string{id})

	return nil
}

// Sync upserts entities in one round trip.
func (r *Repository) Sync(
	ctx context.Context,
	entities []*entity.Entity,
	apiCtx entity.APIContext,
) ([]entity.SyncResult, error) {
	operations := make([]entity.SyncOperation, len(entities))
	for i, e := range entities {
		operations[i] = entity.SyncOperation{
			Action:     entity.SyncActionUpsert,
			EntityName: r.entityName,
			Entity:     e,
		}
	}

	return r.SyncOperations(ctx, operations, apiCtx)
}

// SyncOperations sends mixed upserts and deletes in one round trip. Items
// that cannot be sent fail locally; unchanged upserts succeed without being
// sent. The returned error is non-nil only when the round trip itself
// failed, in which case no item outcome is known.
func (r *Repository) SyncOperations(
	ctx context.Context,
	operations []entity.SyncOperation,
	apiCtx entity.APIContext,
) ([]entity.SyncResult, error) {
	err := apiCtx.Validate()
	if err != nil {
		return nil, fmt.Errorf("syncing %s: %w", r.entityName, err)
	}

	results := make([]entity.SyncResult, len(operations))
	items := make([]*entity.SyncItem, 0, len(operations))
	positions := make([]int, 0, len(operations))

	for i, op := range operations {
		results[i] = entity.SyncResult{
			Index:  i,
			Entity: r.entityName,
			Action: op.Action,
			ID:     op.OperationID(),
		}

		item, prepErr := entity.PrepareSyncItem(op, r.entityName, r.schema)

		switch {
		case prepErr != nil:
			results[i].Error = prepErr
		case item == nil:
			results[i].Success = true
			results[i].Skipped = true
			results[i].Data = op.Entity
		default:
			results[i].Entity = item.Entity
			items = append(items, item)
			positions = append(positions, i)
		}
	}

	if len(items) == 0 {
		return results, nil
	}

	resp, err := r.do(ctx, apiCtx, &internalhttp.Request{
		Method:    http.MethodPost,
		Path:      constants.APIPathSync,
		Body:      items,
		Operation: opSync,
	})
	if err != nil {
		return nil, r.failure(resp, err, "")
	}

	var outcomes []entity.SyncItemResult

	err = json.Unmarshal(resp.Body, &outcomes)
	if err != nil {
		return nil, r.decodeFailure(resp, err)
	}

	if len(outcomes) != len(items) {
		return nil, &entity.RequestFailure{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("sent %d sync items, received %d results", len(items), len(outcomes)),
			Err:        entity.ErrSyncResultMismatch,
		}
	}

	committed := make(map[syncKey][]string)

	for n, outcome := range outcomes {
		result := &results[positions[n]]
		item := items[n]

		if !outcome.Success {
			result.Error = entity.ClassifyItemErrors(outcome.Errors, item.Entity, result.ID)

			continue
		}

		result.Success = true
		key := syncKey{entity: item.Entity, action: item.Action}
		committed[key] = append(committed[key], result.ID)

		if outcome.Data != nil {
			data, hydrateErr := r.hydrator.HydrateRecord(item.Entity, outcome.Data, nil, apiCtx)
			if hydrateErr != nil {
				r.logger.Warn("sync result not hydrated", map[string]interface{}{
					"entity": item.Entity,
					"id":     result.ID,
					"error":  hydrateErr.Error(),
				})

				continue
			}

			result.Data = data
		}
	}

	r.publishSync(ctx, apiCtx, committed)

	return results, nil
}

// prepare validates the context and criteria before any I/O.
func (r *Repository) prepare(criteria *entity.Criteria, apiCtx entity.APIContext) (*entity.Criteria, error) {
	err := apiCtx.Validate()
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", r.entityName, err)
	}

	if criteria == nil {
		return entity.NewCriteria(), nil
	}

	err = criteria.Validate()
	if err != nil {
		return nil, err //nolint:wrapcheck // typed validation failure
	}

	return criteria, nil
}

func (r *Repository) do(
	ctx context.Context,
	apiCtx entity.APIContext,
	req *internalhttp.Request,
) (*internalhttp.Response, error) {
	req.BaseURL = apiCtx.Endpoint
	req.Entity = r.entityName
	req.Headers = contextHeaders(apiCtx)

	return r.httpClient.Do(ctx, req) //nolint:wrapcheck // classified by the caller
}

// contextHeaders propagates the API context on every request.
func contextHeaders(apiCtx entity.APIContext) map[string]string {
	headers := map[string]string{
		constants.HeaderLanguageID: apiCtx.LanguageID,
		constants.HeaderAPIVersion: apiCtx.APIVersion,
	}

	if apiCtx.CurrencyID != "" {
		headers[constants.HeaderCurrencyID] = apiCtx.CurrencyID
	}

	if apiCtx.LiveVersionID != "" {
		headers[constants.HeaderVersionID] = apiCtx.LiveVersionID
	}

	return headers
}

// failure converts a transport result into the error taxonomy.
func (r *Repository) failure(resp *internalhttp.Response, err error, id string) error {
	if resp == nil {
		return &entity.RequestFailure{Message: err.Error(), Err: err}
	}

	var errResp *entity.ResponseError
	if errors.As(err, &errResp) {
		return entity.ClassifyResponse(resp.StatusCode, errResp, r.entityName, id)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return entity.ClassifyResponse(resp.StatusCode, nil, r.entityName, id)
	}

	return &entity.RequestFailure{StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
}

func (r *Repository) decodeFailure(resp *internalhttp.Response, err error) error {
	return &entity.RequestFailure{
		StatusCode: resp.StatusCode,
		Message:    "decoding " + r.entityName + " response: " + err.Error(),
		Err:        errors.Join(entity.ErrUnexpectedResponse, err),
	}
}

func (r *Repository) decodeRecord(
	resp *internalhttp.Response,
	criteria *entity.Criteria,
	apiCtx entity.APIContext,
) (*entity.Entity, error) {
	var body struct {
		Data map[string]interface{} `json:"data"`
	}

	err := json.Unmarshal(resp.Body, &body)
	if err != nil {
		return nil, r.decodeFailure(resp, err)
	}

	if body.Data == nil {
		return nil, r.decodeFailure(resp, entity.ErrUnexpectedResponse)
	}

	e, err := r.hydrator.HydrateRecord(r.entityName, body.Data, criteria, apiCtx)
	if err != nil {
		return nil, r.decodeFailure(resp, err)
	}

	return e, nil
}

func (r *Repository) publish(ctx context.Context, apiCtx entity.APIContext, action string, ids []string) {
	if r.publisher == nil {
		return
	}

	event := entity.WriteEvent{
		Entity:     r.entityName,
		Action:     action,
		IDs:        ids,
		LanguageID: apiCtx.LanguageID,
		VersionID:  apiCtx.LiveVersionID,
		OccurredAt: r.now().UTC(),
	}

	err := r.publisher.PublishWrite(ctx, event)
	if err != nil {
		r.logger.Warn("publishing write event failed", map[string]interface{}{
			"entity": event.Entity,
			"action": event.Action,
			"error":  err.Error(),
		})
	}
}

type syncKey struct {
	entity string
	action string
}

func (r *Repository) publishSync(ctx context.Context, apiCtx entity.APIContext, committed map[syncKey][]string) {
	if r.publisher == nil || len(committed) == 0 {
		return
	}

	keys := make([]syncKey, 0, len(committed))
	for key := range committed {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entity != keys[j].entity {
			return keys[i].entity < keys[j].entity
		}

		return keys[i].action < keys[j].action
	})

	for _, key := range keys {
		event := entity.WriteEvent{
			Entity:     key.entity,
			Action:     entity.WriteActionSync + "." + key.action,
			IDs:        committed[key],
			LanguageID: apiCtx.LanguageID,
			VersionID:  apiCtx.LiveVersionID,
			OccurredAt: r.now().UTC(),
		}

		err := r.publisher.PublishWrite(ctx, event)
		if err != nil {
			r.logger.Warn("publishing sync event failed", map[string]interface{}{
				"entity": key.entity,
				"action": event.Action,
				"error":  err.Error(),
			})
		}
	}
}
