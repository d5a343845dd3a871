package changesync

import (
	"context"
	"sort"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeStore is an in-memory Store used by engine tests.
type fakeStore struct {
	mu        sync.Mutex
	clock     Clock
	nextID    int64
	changes   map[int64]Change
	inflight  map[int64]bool
	watermark int64

	insertErr  error
	selectErr  error
	updateErr  error
	markErr    error
	priorErr   error
	recoverErr error

	// onRecover runs before RecoverInFlight touches the markers.
	onRecover func()

	updates  []StatusUpdate
	selected [][]int64
}

var _ Store = (*fakeStore)(nil)
var _ Cleaner = (*fakeStore)(nil)

func newFakeStore(clock Clock) *fakeStore {
	return &fakeStore{
		clock:    clock,
		changes:  make(map[int64]Change),
		inflight: make(map[int64]bool),
	}
}

func (s *fakeStore) Insert(ctx context.Context, change NewChange) (Change, error) {
	out, err := s.InsertBatch(ctx, []NewChange{change})
	if err != nil {
		return Change{}, err
	}
	return out[0], nil
}

func (s *fakeStore) InsertBatch(_ context.Context, changes []NewChange) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	out := make([]Change, 0, len(changes))
	for _, nc := range changes {
		s.nextID++
		c := Change{
			ID:            s.nextID,
			EntityType:    nc.EntityType,
			EntityID:      nc.EntityID,
			Operation:     nc.Operation,
			Payload:       nc.Payload,
			TransactionID: nc.TransactionID,
			Status:        StatusPending,
			Priority:      nc.Priority,
			CreatedAt:     s.clock.Now(),
		}
		s.changes[c.ID] = c
		out = append(out, c)
	}
	return out, nil
}

// put stores a change as-is, for arranging test state.
func (s *fakeStore) put(c Change) Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextID++
		c.ID = s.nextID
	} else if c.ID > s.nextID {
		s.nextID = c.ID
	}
	if c.Priority == 0 {
		c.Priority = PriorityNormal
	}
	if c.Operation == "" {
		c.Operation = OperationInsert
	}
	if len(c.Payload) == 0 {
		c.Payload = []byte(`{}`)
	}
	s.changes[c.ID] = c
	return c
}

func (s *fakeStore) get(id int64) Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changes[id]
}

func (s *fakeStore) sorted() []Change {
	out := make([]Change, 0, len(s.changes))
	for _, c := range s.changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) SelectEligible(_ context.Context, opts SelectOptions) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	if opts.Limit <= 0 {
		return nil, ErrInvalidBatchSize
	}
	var out []Change
	for _, c := range s.sorted() {
		if c.Eligible(opts.Now) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	s.selected = append(s.selected, changeIDs(out))
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, ids []int64, update StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, update)
	for _, id := range ids {
		c := s.changes[id]
		c.Status = update.Status
		c.RetryCount = max(c.RetryCount, update.RetryCount)
		c.NextRetryAt = update.NextRetryAt
		if !update.SyncedAt.IsZero() {
			c.SyncedAt = update.SyncedAt
		}
		s.changes[id] = c
	}
	return nil
}

func (s *fakeStore) CountByStatus(_ context.Context, status Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.changes {
		if c.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) MaxSyncedID(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id int64
	for _, c := range s.changes {
		if c.Status == StatusSuccess && c.ID > id {
			id = c.ID
		}
	}
	return id, nil
}

func (s *fakeStore) ResetFailed(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.changes {
		if c.Status == StatusFailed {
			c.Status = StatusPending
			c.RetryCount = 0
			c.NextRetryAt = time.Time{}
			s.changes[id] = c
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ChangesByTransaction(_ context.Context, transactionID string) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Change
	for _, c := range s.sorted() {
		if c.TransactionID == transactionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateTransactionStatus(_ context.Context, transactionID string, status Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	var n int64
	for id, c := range s.changes {
		if c.TransactionID == transactionID {
			c.Status = status
			s.changes[id] = c
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountTransactionNotInStatus(_ context.Context, transactionID string, status Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.changes {
		if c.TransactionID == transactionID && c.Status != status {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) SetPriority(_ context.Context, id int64, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priorErr != nil {
		return s.priorErr
	}
	c, ok := s.changes[id]
	if !ok {
		return ErrChangeNotFound
	}
	c.Priority = rank
	s.changes[id] = c
	return nil
}

func (s *fakeStore) SetPriorityByEntityType(_ context.Context, entityType string, rank int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priorErr != nil {
		return 0, s.priorErr
	}
	var n int64
	for id, c := range s.changes {
		if c.EntityType == entityType && !c.Status.Terminal() {
			c.Priority = rank
			s.changes[id] = c
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) MarkInFlight(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	for _, id := range ids {
		s.inflight[id] = true
	}
	return nil
}

func (s *fakeStore) ClearInFlight(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.inflight, id)
	}
	return nil
}

func (s *fakeStore) RecoverInFlight(context.Context) ([]int64, error) {
	if s.onRecover != nil {
		s.onRecover()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recoverErr != nil {
		return nil, s.recoverErr
	}
	var ids []int64
	for id := range s.inflight {
		c, ok := s.changes[id]
		if ok && !c.Status.Terminal() {
			c.Status = StatusPending
			c.RetryCount = 0
			c.NextRetryAt = time.Time{}
			s.changes[id] = c
			ids = append(ids, id)
		}
		delete(s.inflight, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fakeStore) inFlight() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.inflight))
	for id := range s.inflight {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *fakeStore) LoadWatermark(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark, nil
}

func (s *fakeStore) SaveWatermark(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = max(s.watermark, id)
	return nil
}

func (s *fakeStore) DeleteSyncedBefore(_ context.Context, before time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.sorted() {
		if int(n) >= limit {
			break
		}
		if c.Status == StatusSuccess && c.SyncedAt.Before(before) {
			delete(s.changes, c.ID)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountFailedBefore(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.changes {
		if c.Status == StatusFailed && c.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type captureMetrics struct {
	mu        sync.Mutex
	processed int
	failed    int
	retried   int
	pending   int
	delayed   int
	passes    int
	handlers  map[string]int
}

func (m *captureMetrics) ObservePassDuration(time.Duration) {
	m.mu.Lock()
	m.passes++
	m.mu.Unlock()
}

func (m *captureMetrics) ObserveHandlerDuration(entityType string, _ time.Duration) {
	m.mu.Lock()
	if m.handlers == nil {
		m.handlers = make(map[string]int)
	}
	m.handlers[entityType]++
	m.mu.Unlock()
}

func (m *captureMetrics) AddProcessed(count int) {
	m.mu.Lock()
	m.processed += count
	m.mu.Unlock()
}

func (m *captureMetrics) AddFailed(count int) {
	m.mu.Lock()
	m.failed += count
	m.mu.Unlock()
}

func (m *captureMetrics) AddRetried(count int) {
	m.mu.Lock()
	m.retried += count
	m.mu.Unlock()
}

func (m *captureMetrics) SetPending(count int) {
	m.mu.Lock()
	m.pending = count
	m.mu.Unlock()
}

func (m *captureMetrics) SetDelayed(count int) {
	m.mu.Lock()
	m.delayed = count
	m.mu.Unlock()
}

func waitFor(t interface {
	Helper()
	Fatalf(string, ...any)
}, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
