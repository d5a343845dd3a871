package changesync

import (
	"context"
	"encoding/json"
	"fmt"
)

// Result is the outcome of syncing one change.
type Result int

const (
	// ResultAccepted means the server applied the change.
	ResultAccepted Result = iota + 1
	// ResultRejected means the server will never accept the change.
	ResultRejected
	// ResultRetry means the change may succeed later.
	ResultRetry
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultAccepted:
		return "accepted"
	case ResultRejected:
		return "rejected"
	case ResultRetry:
		return "retry"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

func (r Result) valid() bool {
	return r >= ResultAccepted && r <= ResultRetry
}

// Handler syncs changes of one entity type to the remote API.
// The returned error only describes the cause, the Result alone drives the state machine.
type Handler interface {
	EntityType() string
	SyncChange(ctx context.Context, change Change) (Result, error)
}

// Operations performs the remote calls for one entity type.
type Operations interface {
	HandleInsert(ctx context.Context, change Change) error
	HandleUpdate(ctx context.Context, change Change) error
	HandleDelete(ctx context.Context, change Change) error
}

// RemoteClient is the REST-like API of one remote resource.
// Returned errors should be *RemoteError so their classification travels with them.
type RemoteClient interface {
	Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	Update(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, id string) (json.RawMessage, error)
}

// BaseHandler dispatches a change on its operation and turns errors into results.
type BaseHandler struct {
	entityType string
	ops        Operations
	classify   func(error) Classification
}

// HandlerOption configures a BaseHandler.
type HandlerOption func(*BaseHandler)

// WithErrorClassifier specializes classification for entity-specific error shapes.
func WithErrorClassifier(classify func(error) Classification) HandlerOption {
	return func(h *BaseHandler) {
		h.classify = classify
	}
}

// NewBaseHandler wraps ops for entityType.
func NewBaseHandler(entityType string, ops Operations, opts ...HandlerOption) *BaseHandler {
	if ops == nil {
		panic("changesync: nil Operations")
	}
	h := &BaseHandler{entityType: entityType, ops: ops, classify: Classify}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// EntityType implements Handler.
func (h *BaseHandler) EntityType() string {
	return h.entityType
}

// SyncChange implements Handler.
func (h *BaseHandler) SyncChange(ctx context.Context, change Change) (Result, error) {
	var err error
	switch change.Operation {
	case OperationInsert:
		err = h.ops.HandleInsert(ctx, change)
	case OperationUpdate:
		err = h.ops.HandleUpdate(ctx, change)
	case OperationDelete:
		err = h.ops.HandleDelete(ctx, change)
	default:
		return ResultRejected, fmt.Errorf("%w: %q", ErrUnsupportedOperation, change.Operation)
	}
	if err == nil {
		return ResultAccepted, nil
	}
	if h.classify(err).Retryable() {
		return ResultRetry, err
	}

	return ResultRejected, err
}

type genericOperations struct {
	client RemoteClient
}

func (o genericOperations) HandleInsert(ctx context.Context, change Change) error {
	_, err := o.client.Create(ctx, change.Payload)

	return err
}

func (o genericOperations) HandleUpdate(ctx context.Context, change Change) error {
	_, err := o.client.Update(ctx, change.EntityID, change.Payload)

	return err
}

func (o genericOperations) HandleDelete(ctx context.Context, change Change) error {
	_, err := o.client.Delete(ctx, change.EntityID)

	return err
}

// NewGenericHandler adapts a RemoteClient with plain create/update/delete semantics.
func NewGenericHandler(entityType string, client RemoteClient, opts ...HandlerOption) *BaseHandler {
	if client == nil {
		panic("changesync: nil RemoteClient")
	}

	return NewBaseHandler(entityType, genericOperations{client: client}, opts...)
}

// HandlerFunc adapts a function to Handler for a fixed entity type.
type HandlerFunc struct {
	Type string
	Fn   func(ctx context.Context, change Change) (Result, error)
}

// EntityType implements Handler.
func (h HandlerFunc) EntityType() string {
	return h.Type
}

// SyncChange implements Handler.
func (h HandlerFunc) SyncChange(ctx context.Context, change Change) (Result, error) {
	return h.Fn(ctx, change)
}
