package changesync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPriorityFor_Defaults(t *testing.T) {
	m := NewPriorityManager(nil)
	tests := []struct {
		entityType string
		op         Operation
		want       int
	}{
		{EntityOrder, OperationInsert, PriorityCritical},
		{EntityPayment, OperationUpdate, PriorityCritical},
		{EntityCustomer, OperationInsert, PriorityHigh},
		{EntityInventory, OperationUpdate, PriorityHigh},
		{EntityCategory, OperationInsert, PriorityNormal},
		{EntityAudit, OperationInsert, PriorityBackground},
		{EntityOrder, OperationDelete, PriorityUrgent},
		{EntityCustomer, OperationDelete, PriorityCritical},
		{EntityCategory, OperationDelete, PriorityHigh},
		{EntityLog, OperationDelete, PriorityLow},
	}
	for _, tt := range tests {
		if got := m.PriorityFor(tt.entityType, tt.op); got != tt.want {
			t.Fatalf("%s %s: expected %d, got %d", tt.entityType, tt.op, tt.want, got)
		}
	}
}

func TestPriorityFor_DeleteBeforeUpdate(t *testing.T) {
	m := NewPriorityManager(nil)
	if m.PriorityFor(EntityOrder, OperationDelete) >= m.PriorityFor(EntityOrder, OperationUpdate) {
		t.Fatalf("expected order delete to outrank order update")
	}
	if m.PriorityFor("unknown", OperationDelete) >= m.PriorityFor("unknown", OperationInsert) {
		t.Fatalf("expected delete to outrank insert for unknown types")
	}
}

func TestPriorityFor_OffTierRank(t *testing.T) {
	m := NewPriorityManager(nil, WithEntityPriority("sync_note", 4))
	if got := m.PriorityFor("sync_note", OperationDelete); got != PriorityHigh {
		t.Fatalf("expected off-tier rank to bump to the next tier, got %d", got)
	}
}

func TestPriorityManager_Overrides(t *testing.T) {
	store := newFakeStore(newFakeClock())
	store.put(Change{EntityType: EntityProduct, Priority: PriorityHigh})
	store.put(Change{EntityType: EntityProduct, Priority: PriorityHigh, Status: StatusSuccess})
	m := NewPriorityManager(store)

	if err := m.SetPriority(context.Background(), 1, PriorityUrgent); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if got := store.get(1).Priority; got != PriorityUrgent {
		t.Fatalf("expected priority 1, got %d", got)
	}

	if err := m.SetPriorityForEntityType(context.Background(), EntityProduct, PriorityLow); err != nil {
		t.Fatalf("set entity priority: %v", err)
	}
	if got := store.get(1).Priority; got != PriorityLow {
		t.Fatalf("expected pending change re-ranked, got %d", got)
	}
	if got := store.get(2).Priority; got != PriorityHigh {
		t.Fatalf("expected synced change untouched, got %d", got)
	}
}

func TestPriorityManager_OverrideErrors(t *testing.T) {
	store := newFakeStore(newFakeClock())
	m := NewPriorityManager(store)

	if err := m.SetPriority(context.Background(), 1, 0); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected invalid priority, got %v", err)
	}
	if err := m.SetPriority(context.Background(), 42, PriorityLow); !errors.Is(err, ErrChangeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := m.SetPriorityForEntityType(context.Background(), "", PriorityLow); !errors.Is(err, ErrEntityTypeRequired) {
		t.Fatalf("expected entity type required, got %v", err)
	}

	store.priorErr = errors.New("readonly")
	if err := m.SetPriorityForEntityType(context.Background(), EntityOrder, PriorityLow); !errors.Is(err, store.priorErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestPriorityManager_BoostAfterOffline(t *testing.T) {
	store := newFakeStore(newFakeClock())
	store.put(Change{EntityType: EntityOrder, Priority: PriorityCritical})
	store.put(Change{EntityType: EntityLog, Priority: PriorityBackground})
	m := NewPriorityManager(store)

	if m.BoostAfterOffline(context.Background(), time.Hour) {
		t.Fatalf("expected no boost after a short outage")
	}
	if !m.BoostAfterOffline(context.Background(), 25*time.Hour) {
		t.Fatalf("expected boost after a long outage")
	}
	if got := store.get(1).Priority; got != PriorityUrgent {
		t.Fatalf("expected order boosted, got %d", got)
	}
	if got := store.get(2).Priority; got != PriorityBackground {
		t.Fatalf("expected log untouched, got %d", got)
	}
}
