package changesync

import (
	"testing"
	"time"
)

func TestMemoryMetrics_Snapshot(t *testing.T) {
	m := NewMemoryMetrics()
	m.AddProcessed(3)
	m.AddFailed(1)
	m.AddRetried(2)
	m.SetPending(7)
	m.SetDelayed(4)
	m.ObservePassDuration(10 * time.Millisecond)
	m.ObservePassDuration(30 * time.Millisecond)
	m.ObserveHandlerDuration(EntityOrder, 5*time.Millisecond)

	snap := m.Snapshot()
	if snap.Processed != 3 || snap.Failed != 1 || snap.Retried != 2 || snap.Pending != 7 || snap.Delayed != 4 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.Pass.Count != 2 || snap.Pass.Mean() != 20*time.Millisecond || snap.Pass.Max != 30*time.Millisecond {
		t.Fatalf("unexpected pass timing: %+v", snap.Pass)
	}
	if snap.Handlers[EntityOrder].Count != 1 {
		t.Fatalf("expected handler timing for order")
	}

	snap.Handlers[EntityOrder] = Timing{}
	if m.Snapshot().Handlers[EntityOrder].Count != 1 {
		t.Fatalf("expected snapshot to be a copy")
	}
}

func TestService_RecordsMetrics(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	metrics := NewMemoryMetrics()
	handler := &recordingHandler{entityType: EntityProduct}
	svc := newTestService(t, store, clock, []Handler{handler}, WithMetrics(metrics))
	trackN(t, svc, EntityProduct, 2)

	if _, err := svc.ProcessOnce(t.Context()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	snap := metrics.Snapshot()
	if snap.Processed != 2 || snap.Pass.Count != 1 || snap.Handlers[EntityProduct].Count != 2 {
		t.Fatalf("unexpected metrics: %+v", snap)
	}
	if snap.Pending != 0 {
		t.Fatalf("expected pending gauge refreshed to 0, got %d", snap.Pending)
	}
}
