package changesync

import (
	"context"
	"errors"
	"testing"
)

func TestRegistry_RegisterReplaces(t *testing.T) {
	first := HandlerFunc{Type: EntityOrder, Fn: func(context.Context, Change) (Result, error) { return ResultRetry, nil }}
	second := HandlerFunc{Type: EntityOrder, Fn: func(context.Context, Change) (Result, error) { return ResultAccepted, nil }}
	r := NewRegistry(first)
	if err := r.Register(second); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := r.Dispatch(context.Background(), Change{EntityType: EntityOrder})
	if err != nil || result != ResultAccepted {
		t.Fatalf("expected replacement handler to win, got %s %v", result, err)
	}
	if types := r.EntityTypes(); len(types) != 1 || types[0] != EntityOrder {
		t.Fatalf("unexpected entity types: %v", types)
	}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); !errors.Is(err, ErrHandlerRequired) {
		t.Fatalf("expected handler required, got %v", err)
	}
	if err := r.Register(HandlerFunc{}); !errors.Is(err, ErrEntityTypeRequired) {
		t.Fatalf("expected entity type required, got %v", err)
	}
}

func TestRegistry_EntityTypesSorted(t *testing.T) {
	noop := func(context.Context, Change) (Result, error) { return ResultAccepted, nil }
	r := NewRegistry(
		HandlerFunc{Type: EntityPayment, Fn: noop},
		HandlerFunc{Type: EntityCustomer, Fn: noop},
		HandlerFunc{Type: EntityOrder, Fn: noop},
	)
	types := r.EntityTypes()
	want := []string{EntityCustomer, EntityOrder, EntityPayment}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}
	if !r.Has(EntityOrder) || r.Has(EntityLog) {
		t.Fatalf("unexpected Has results")
	}
}

func TestRegistry_DispatchMissingHandler(t *testing.T) {
	r := NewRegistry()
	result, err := r.Dispatch(context.Background(), Change{EntityType: EntityInvoice})
	if result != ResultRejected || !errors.Is(err, ErrHandlerNotFound) {
		t.Fatalf("expected rejected with handler not found, got %s %v", result, err)
	}
}

func TestRegistry_DispatchRecoversPanic(t *testing.T) {
	r := NewRegistry(HandlerFunc{Type: EntityOrder, Fn: func(context.Context, Change) (Result, error) {
		panic("boom")
	}})
	result, err := r.Dispatch(context.Background(), Change{EntityType: EntityOrder})
	if result != ResultRejected || !errors.Is(err, ErrHandlerPanic) {
		t.Fatalf("expected rejected with panic error, got %s %v", result, err)
	}
}

func TestRegistry_DispatchInvalidResult(t *testing.T) {
	r := NewRegistry(HandlerFunc{Type: EntityOrder, Fn: func(context.Context, Change) (Result, error) {
		return Result(0), nil
	}})
	result, err := r.Dispatch(context.Background(), Change{EntityType: EntityOrder})
	if result != ResultRejected || !errors.Is(err, ErrInvalidResult) {
		t.Fatalf("expected rejected with invalid result, got %s %v", result, err)
	}
}
