package entity

import (
	"fmt"

	"github.com/fivetwenty-io/entity-client/internal/constants"
)

// Sync actions.
const (
	SyncActionUpsert = constants.SyncActionUpsert
	SyncActionDelete = constants.SyncActionDelete
)

// SyncBuilder helps build sync batches.
type SyncBuilder struct {
	operations []SyncOperation
}

// NewSyncBuilder creates a new sync builder.
func NewSyncBuilder() *SyncBuilder {
	return &SyncBuilder{
		operations: make([]SyncOperation, 0),
	}
}

// Upsert adds a create or update of e.
func (b *SyncBuilder) Upsert(e *Entity) *SyncBuilder {
	b.operations = append(b.operations, SyncOperation{
		Action: SyncActionUpsert,
		Entity: e,
	})

	return b
}

// UpsertPayload adds an upsert with a raw payload. The payload must carry an id.
func (b *SyncBuilder) UpsertPayload(entityName string, payload map[string]interface{}) *SyncBuilder {
	id, _ := payload[fieldID].(string)

	b.operations = append(b.operations, SyncOperation{
		Action:     SyncActionUpsert,
		EntityName: entityName,
		ID:         id,
		Payload:    payload,
	})

	return b
}

// Delete adds a deletion of id.
func (b *SyncBuilder) Delete(entityName, id string) *SyncBuilder {
	b.operations = append(b.operations, SyncOperation{
		Action:     SyncActionDelete,
		EntityName: entityName,
		ID:         id,
	})

	return b
}

// Len returns the number of operations.
func (b *SyncBuilder) Len() int {
	return len(b.operations)
}

// Build returns the operations in insertion order.
func (b *SyncBuilder) Build() []SyncOperation {
	return append([]SyncOperation(nil), b.operations...)
}

// SyncItem is the wire form of one sync operation.
type SyncItem struct {
	Entity  string                 `json:"entity"`
	Action  string                 `json:"action"`
	Payload map[string]interface{} `json:"payload"`
}

// SyncItemResult is the wire form of one sync outcome.
type SyncItemResult struct {
	Success bool                   `json:"success"`
	Errors  []APIError             `json:"errors,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// PrepareSyncItem resolves an operation into its wire form. It returns
// (nil, nil) for upserts that have nothing to send.
func PrepareSyncItem(op SyncOperation, defaultEntity string, schema *Schema) (*SyncItem, error) {
	entityName := op.EntityName
	if op.Entity != nil && entityName == "" {
		entityName = op.Entity.name
	}

	if entityName == "" {
		entityName = defaultEntity
	}

	switch op.Action {
	case SyncActionUpsert:
		if op.Entity == nil && op.Payload == nil {
			return nil, ErrNilEntity
		}

		payload := op.Payload

		if op.Entity != nil {
			if op.Entity.name != entityName {
				return nil, fmt.Errorf("%w: %s is not %s", ErrEntityMismatch, op.Entity.name, entityName)
			}

			payload = BuildChangeset(op.Entity, schema)
			if len(payload) == 0 {
				return nil, nil //nolint:nilnil // nothing to send
			}
		}

		if id, _ := payload[fieldID].(string); id == "" {
			return nil, ErrEmptyID
		}

		return &SyncItem{Entity: entityName, Action: op.Action, Payload: payload}, nil
	case SyncActionDelete:
		if op.ID == "" {
			return nil, ErrEmptyID
		}

		return &SyncItem{
			Entity:  entityName,
			Action:  op.Action,
			Payload: map[string]interface{}{fieldID: op.ID},
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownSyncAction, op.Action)
}

// OperationID returns the id an operation targets.
func (op SyncOperation) OperationID() string {
	if op.Entity != nil {
		return op.Entity.id
	}

	if op.ID != "" {
		return op.ID
	}

	id, _ := op.Payload[fieldID].(string)

	return id
}
