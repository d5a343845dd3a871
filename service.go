package changesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is the run state of a Service.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Snapshot summarizes the sync status for UI indicators.
type Snapshot struct {
	State     State
	Online    bool
	Pending   int
	Retrying  int
	Delayed   int
	Failed    int
	Succeeded int
	Watermark int64
}

// Service is the sync orchestrator. It owns the processing loop, reacts to change notifications
// and connectivity transitions, and runs at most one processing pass at a time.
type Service struct {
	store    Store
	registry *Registry
	cfg      Config
	txm      *TransactionManager
	guard    *RecoveryGuard

	mu           sync.Mutex
	state        State
	runCtx       context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	unsubscribe  []func()
	passCancel   context.CancelFunc
	followUp     *time.Timer
	offlineSince time.Time
	stopStarting bool

	passMu         sync.Mutex
	processing     atomic.Bool
	changesPending atomic.Bool
	watermark      atomic.Int64
	trigger        chan struct{}
}

// NewService constructs a Service with defaults and optional settings.
func NewService(store Store, registry *Registry, opts ...Option) *Service {
	if store == nil {
		panic("changesync: nil Store")
	}
	if registry == nil {
		panic("changesync: nil Registry")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults(store)

	return &Service{
		store:    store,
		registry: registry,
		cfg:      cfg,
		txm: NewTransactionManager(store,
			WithTransactionIDs(cfg.TransactionIDs),
			WithTransactionPriorities(cfg.Priorities),
			WithTransactionNotifier(cfg.Notifier),
		),
		guard:   NewRecoveryGuard(store, cfg.Logger),
		trigger: make(chan struct{}, 1),
	}
}

// Transactions returns the transaction manager used to record changes.
func (s *Service) Transactions() *TransactionManager {
	return s.txm
}

// Guard returns the crash-recovery guard.
func (s *Service) Guard() *RecoveryGuard {
	return s.guard
}

// State returns the current run state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Watermark returns the highest change id known to be synced.
func (s *Service) Watermark() int64 {
	return s.watermark.Load()
}

// Start recovers interrupted changes, loads the watermark and starts the processing loop.
// Calling Start on a service that is not stopped is a no-op. A Stop issued while Start is
// preparing makes Start return without starting the loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()

		return nil
	}
	s.state = StateStarting
	s.stopStarting = false
	s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		s.setState(StateStopped)

		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	if s.stopStarting {
		s.stopStarting = false
		s.state = StateStopped
		s.mu.Unlock()
		cancel()
		s.cfg.Logger.Info("changesync service stopped before start completed")

		return nil
	}
	s.runCtx = runCtx
	s.cancel = cancel
	s.done = done
	s.unsubscribe = []func(){
		s.cfg.Notifier.Subscribe(s.onChange),
		s.cfg.Connectivity.Subscribe(s.onConnectivity),
	}
	online := s.cfg.Connectivity.IsOnline()
	s.state = StateRunning
	if !online {
		s.state = StatePaused
		s.offlineSince = s.cfg.Clock.Now()
	}
	s.mu.Unlock()

	go s.loop(runCtx, done)

	s.cfg.Logger.Info("changesync service started", "watermark", s.watermark.Load(), "online", online)
	s.emit(Event{Kind: EventStarted})
	if online {
		s.requestPass()
	} else {
		s.emit(Event{Kind: EventPaused})
	}

	return nil
}

func (s *Service) prepare(ctx context.Context) error {
	if _, err := s.guard.Recover(ctx); err != nil {
		return err
	}
	wm, err := Watermark(ctx, s.store, s.store)
	if err != nil {
		return err
	}
	s.watermark.Store(wm)

	return nil
}

// Stop cancels subscriptions and in-flight remote calls and waits for the loop to exit.
// Interrupted changes keep their status and in-flight marker for the next start.
func (s *Service) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateStopped, StateStopping:
		s.mu.Unlock()

		return nil
	case StateStarting:
		s.stopStarting = true
		s.mu.Unlock()

		return nil
	}
	s.state = StateStopping
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	cancel := s.cancel
	done := s.done
	if s.followUp != nil {
		s.followUp.Stop()
		s.followUp = nil
	}
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	cancel()
	<-done

	s.mu.Lock()
	s.state = StateStopped
	s.runCtx = nil
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	s.cfg.Logger.Info("changesync service stopped")
	s.emit(Event{Kind: EventStopped})

	return nil
}

// Pause moves a running service to paused and cancels the current pass.
func (s *Service) Pause() error {
	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()

		return fmt.Errorf("%w: pause while %s", ErrInvalidTransition, state)
	}
	s.state = StatePaused
	s.offlineSince = s.cfg.Clock.Now()
	if s.passCancel != nil {
		s.passCancel()
	}
	if s.followUp != nil {
		s.followUp.Stop()
		s.followUp = nil
	}
	s.mu.Unlock()

	s.cfg.Logger.Info("changesync service paused")
	s.emit(Event{Kind: EventPaused})

	return nil
}

// Resume moves a paused service back to running and triggers a pass.
// Queued changes keep their status and retry count across the pause.
func (s *Service) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StatePaused {
		state := s.state
		s.mu.Unlock()

		return fmt.Errorf("%w: resume while %s", ErrInvalidTransition, state)
	}
	s.state = StateRunning
	offline := s.cfg.Clock.Now().Sub(s.offlineSince)
	s.mu.Unlock()

	s.cfg.Priorities.BoostAfterOffline(ctx, offline)

	s.cfg.Logger.Info("changesync service resumed", "offline", offline.String())
	s.emit(Event{Kind: EventResumed})
	s.requestPass()

	return nil
}

// SyncNow runs a pass immediately, bypassing the follow-up delay.
// Failed changes are not touched, use RetryFailedChanges to re-queue them.
func (s *Service) SyncNow(ctx context.Context) error {
	if state := s.State(); state != StateRunning {
		return fmt.Errorf("%w: sync now while %s", ErrInvalidTransition, state)
	}
	if !s.cfg.Connectivity.IsOnline() {
		return ErrOffline
	}

	_, err := s.ProcessOnce(ctx)
	if errors.Is(err, ErrPassInProgress) {
		return nil
	}
	if s.changesPending.Swap(false) {
		s.scheduleFollowUp()
	}

	return err
}

// RetryFailedChanges moves every failed change back to pending with a zero retry count.
func (s *Service) RetryFailedChanges(ctx context.Context) (int64, error) {
	n, err := s.store.ResetFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("retry failed changes: %w", err)
	}
	s.cfg.Logger.Info("changesync failed changes re-queued", "count", n)
	if n > 0 {
		s.onChange()
	}

	return n, nil
}

// SetPriority overrides the rank of one change.
func (s *Service) SetPriority(ctx context.Context, id int64, rank int) error {
	return s.cfg.Priorities.SetPriority(ctx, id, rank)
}

// SetPriorityForEntityType overrides the rank of every unsynced change of entityType.
func (s *Service) SetPriorityForEntityType(ctx context.Context, entityType string, rank int) error {
	return s.cfg.Priorities.SetPriorityForEntityType(ctx, entityType, rank)
}

// TrackChange records a single change and notifies the loop.
func (s *Service) TrackChange(ctx context.Context, change NewChange) (Change, error) {
	return s.txm.TrackChange(ctx, change)
}

// CreateTransaction records ops atomically under a new transaction id and notifies the loop.
func (s *Service) CreateTransaction(ctx context.Context, ops []NewChange) (string, error) {
	return s.txm.CreateTransaction(ctx, ops)
}

// Status returns counts for UI indicators.
func (s *Service) Status(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		State:     s.State(),
		Online:    s.cfg.Connectivity.IsOnline(),
		Watermark: s.watermark.Load(),
	}
	counts := []struct {
		status Status
		dst    *int
	}{
		{StatusPending, &snap.Pending},
		{StatusRetry, &snap.Retrying},
		{StatusDelayed, &snap.Delayed},
		{StatusFailed, &snap.Failed},
		{StatusSuccess, &snap.Succeeded},
	}
	for _, c := range counts {
		n, err := s.store.CountByStatus(ctx, c.status)
		if err != nil {
			return Snapshot{}, fmt.Errorf("count %s changes: %w", c.status, err)
		}
		*c.dst = n
	}

	return snap, nil
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	refresh := time.NewTicker(s.cfg.MetricsInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			s.requestPass()
		case <-refresh.C:
			s.refreshGauges(ctx)
		case <-s.trigger:
			s.runScheduledPass(ctx)
		}
	}
}

func (s *Service) runScheduledPass(ctx context.Context) {
	if s.State() != StateRunning || !s.cfg.Connectivity.IsOnline() {
		return
	}

	result, err := s.ProcessOnce(ctx)
	switch {
	case errors.Is(err, ErrPassInProgress):
		return
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		s.cfg.Logger.Debug("changesync pass interrupted", "err", err)
	case err != nil:
		s.cfg.Logger.Error("changesync pass failed", "err", err)
	case result.Selected > 0:
		s.cfg.Logger.Debug("changesync pass completed",
			"selected", result.Selected,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"retried", result.Retried,
			"duration", result.Duration.String(),
		)
	}

	if s.changesPending.Swap(false) {
		s.scheduleFollowUp()
	}
}

func (s *Service) onChange() {
	if s.processing.Load() {
		s.changesPending.Store(true)

		return
	}
	s.requestPass()
}

func (s *Service) onConnectivity(online bool) {
	if online {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		if err := s.Resume(ctx); err != nil {
			s.cfg.Logger.Debug("changesync resume ignored", "err", err)
		}

		return
	}
	if err := s.Pause(); err != nil {
		s.cfg.Logger.Debug("changesync pause ignored", "err", err)
	}
}

func (s *Service) requestPass() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Service) scheduleFollowUp() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return
	}
	if s.followUp != nil {
		s.followUp.Stop()
	}
	s.followUp = time.AfterFunc(s.cfg.FollowUpDelay, s.requestPass)
}

func (s *Service) refreshGauges(ctx context.Context) {
	pending, err := s.store.CountByStatus(ctx, StatusPending)
	if err != nil {
		s.cfg.Logger.Warn("changesync pending count failed", "err", err)

		return
	}
	retrying, err := s.store.CountByStatus(ctx, StatusRetry)
	if err != nil {
		s.cfg.Logger.Warn("changesync retry count failed", "err", err)

		return
	}
	delayed, err := s.store.CountByStatus(ctx, StatusDelayed)
	if err != nil {
		s.cfg.Logger.Warn("changesync delayed count failed", "err", err)

		return
	}

	s.observe(func(m Metrics) {
		m.SetPending(pending)
		m.SetDelayed(retrying + delayed)
	})
}

func (s *Service) observe(fn func(Metrics)) {
	defer func() {
		if rec := recover(); rec != nil {
			s.cfg.Logger.Warn("changesync metrics recorder panic", "panic", rec)
		}
	}()
	fn(s.cfg.Metrics)
}

func (s *Service) emit(event Event) {
	if event.At.IsZero() {
		event.At = s.cfg.Clock.Now()
	}
	for _, listener := range s.cfg.Listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					s.cfg.Logger.Warn("changesync listener panic", "event", event.Kind.String(), "panic", rec)
				}
			}()
			listener(event)
		}()
	}
}
