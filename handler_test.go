package changesync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type recordingClient struct {
	op      string
	id      string
	payload string
	err     error
}

func (c *recordingClient) Create(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
	c.op, c.payload = "create", string(payload)
	return nil, c.err
}

func (c *recordingClient) Update(_ context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
	c.op, c.id, c.payload = "update", id, string(payload)
	return nil, c.err
}

func (c *recordingClient) Delete(_ context.Context, id string) (json.RawMessage, error) {
	c.op, c.id = "delete", id
	return nil, c.err
}

func TestGenericHandler_RoutesOperations(t *testing.T) {
	tests := []struct {
		op     Operation
		wantOp string
		wantID string
	}{
		{OperationInsert, "create", ""},
		{OperationUpdate, "update", "c-7"},
		{OperationDelete, "delete", "c-7"},
	}
	for _, tt := range tests {
		client := &recordingClient{}
		h := NewGenericHandler(EntityCustomer, client)
		result, err := h.SyncChange(context.Background(), Change{
			EntityType: EntityCustomer,
			EntityID:   "c-7",
			Operation:  tt.op,
			Payload:    json.RawMessage(`{"name":"Ada"}`),
		})
		if err != nil || result != ResultAccepted {
			t.Fatalf("%s: expected accepted, got %s %v", tt.op, result, err)
		}
		if client.op != tt.wantOp || client.id != tt.wantID {
			t.Fatalf("%s: unexpected call %s(%q)", tt.op, client.op, client.id)
		}
	}
}

func TestBaseHandler_MapsErrorsToResults(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Result
	}{
		{name: "server error", err: NewRemoteError(500, "oops", 0), want: ResultRetry},
		{name: "rate limited", err: NewRemoteError(429, "slow down", 0), want: ResultRetry},
		{name: "validation", err: NewRemoteError(422, "invalid", 0), want: ResultRejected},
		{name: "timeout", err: NewTransportError(context.DeadlineExceeded), want: ResultRetry},
		{name: "unknown", err: errors.New("mystery"), want: ResultRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewGenericHandler(EntityOrder, &recordingClient{err: tt.err})
			result, err := h.SyncChange(context.Background(), Change{Operation: OperationInsert, Payload: json.RawMessage(`{}`)})
			if result != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, result)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected cause to be preserved, got %v", err)
			}
		})
	}
}

func TestBaseHandler_UnsupportedOperation(t *testing.T) {
	h := NewGenericHandler(EntityOrder, &recordingClient{})
	result, err := h.SyncChange(context.Background(), Change{Operation: "UPSERT"})
	if result != ResultRejected || !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected rejected unsupported operation, got %s %v", result, err)
	}
}

func TestBaseHandler_CustomClassifier(t *testing.T) {
	conflict := errors.New("version conflict")
	h := NewGenericHandler(EntityInventory, &recordingClient{err: conflict},
		WithErrorClassifier(func(err error) Classification {
			if errors.Is(err, conflict) {
				return ClassRetryable
			}
			return Classify(err)
		}),
	)
	result, _ := h.SyncChange(context.Background(), Change{Operation: OperationUpdate, EntityID: "sku-1"})
	if result != ResultRetry {
		t.Fatalf("expected entity-specific retry, got %s", result)
	}
}
