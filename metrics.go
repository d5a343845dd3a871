package changesync

import (
	"sync"
	"time"
)

// Metrics captures sync-engine telemetry for status indicators.
// Implementations must be safe for concurrent use; failures to record are never fatal.
type Metrics interface {
	// ObservePassDuration records how long a processing pass took.
	ObservePassDuration(duration time.Duration)
	// ObserveHandlerDuration records how long a single handler call took.
	ObserveHandlerDuration(entityType string, duration time.Duration)
	// AddProcessed increments the count of changes accepted by the server.
	AddProcessed(count int)
	// AddFailed increments the count of changes moved to failed.
	AddFailed(count int)
	// AddRetried increments the count of changes scheduled for retry.
	AddRetried(count int)
	// SetPending updates the number of pending changes.
	SetPending(count int)
	// SetDelayed updates the number of changes waiting for a retry.
	SetDelayed(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObservePassDuration implements Metrics.
func (NopMetrics) ObservePassDuration(time.Duration) {}

// ObserveHandlerDuration implements Metrics.
func (NopMetrics) ObserveHandlerDuration(string, time.Duration) {}

// AddProcessed implements Metrics.
func (NopMetrics) AddProcessed(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddRetried implements Metrics.
func (NopMetrics) AddRetried(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}

// SetDelayed implements Metrics.
func (NopMetrics) SetDelayed(int) {}

// Timing summarizes observed durations.
type Timing struct {
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average observed duration.
func (t Timing) Mean() time.Duration {
	if t.Count == 0 {
		return 0
	}

	return t.Total / time.Duration(t.Count)
}

func (t *Timing) observe(d time.Duration) {
	t.Count++
	t.Total += d
	if d > t.Max {
		t.Max = d
	}
}

// MetricsSnapshot is a point-in-time copy of MemoryMetrics.
type MetricsSnapshot struct {
	Processed int64
	Failed    int64
	Retried   int64
	Pending   int
	Delayed   int
	Pass      Timing
	Handlers  map[string]Timing
}

// MemoryMetrics keeps counters in memory so a UI can poll them.
type MemoryMetrics struct {
	mu   sync.Mutex
	snap MetricsSnapshot
}

var _ Metrics = (*MemoryMetrics)(nil)

// NewMemoryMetrics returns an empty in-memory recorder.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{snap: MetricsSnapshot{Handlers: make(map[string]Timing)}}
}

// ObservePassDuration implements Metrics.
func (m *MemoryMetrics) ObservePassDuration(d time.Duration) {
	m.mu.Lock()
	m.snap.Pass.observe(d)
	m.mu.Unlock()
}

// ObserveHandlerDuration implements Metrics.
func (m *MemoryMetrics) ObserveHandlerDuration(entityType string, d time.Duration) {
	m.mu.Lock()
	timing := m.snap.Handlers[entityType]
	timing.observe(d)
	m.snap.Handlers[entityType] = timing
	m.mu.Unlock()
}

// AddProcessed implements Metrics.
func (m *MemoryMetrics) AddProcessed(count int) {
	m.mu.Lock()
	m.snap.Processed += int64(count)
	m.mu.Unlock()
}

// AddFailed implements Metrics.
func (m *MemoryMetrics) AddFailed(count int) {
	m.mu.Lock()
	m.snap.Failed += int64(count)
	m.mu.Unlock()
}

// AddRetried implements Metrics.
func (m *MemoryMetrics) AddRetried(count int) {
	m.mu.Lock()
	m.snap.Retried += int64(count)
	m.mu.Unlock()
}

// SetPending implements Metrics.
func (m *MemoryMetrics) SetPending(count int) {
	m.mu.Lock()
	m.snap.Pending = count
	m.mu.Unlock()
}

// SetDelayed implements Metrics.
func (m *MemoryMetrics) SetDelayed(count int) {
	m.mu.Lock()
	m.snap.Delayed = count
	m.mu.Unlock()
}

// Snapshot returns a copy of the current values.
func (m *MemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snap
	out.Handlers = make(map[string]Timing, len(m.snap.Handlers))
	for k, v := range m.snap.Handlers {
		out.Handlers[k] = v
	}

	return out
}
