package changesync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const minRetryDelay = time.Millisecond

// PassResult summarizes one processing pass.
type PassResult struct {
	Selected  int
	Groups    int
	Succeeded int
	Failed    int
	Retried   int
	Watermark int64
	Duration  time.Duration
}

type group struct {
	transactionID string
	changes       []Change
}

type groupOutcome struct {
	result Result
	cause  error
	change Change
}

// ProcessOnce runs a single processing pass regardless of connectivity.
// It returns ErrPassInProgress, and flags a follow-up pass, when another pass is running.
func (s *Service) ProcessOnce(ctx context.Context) (PassResult, error) {
	if !s.passMu.TryLock() {
		s.changesPending.Store(true)

		return PassResult{}, ErrPassInProgress
	}
	defer s.passMu.Unlock()

	ctx, done := s.beginPass(ctx)
	defer done()

	return s.process(ctx)
}

// beginPass derives a pass context that Pause and Stop can cancel.
func (s *Service) beginPass(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	runCtx := s.runCtx
	s.passCancel = cancel
	s.mu.Unlock()

	stop := func() bool { return false }
	if runCtx != nil {
		stop = context.AfterFunc(runCtx, cancel)
	}

	return ctx, func() {
		stop()
		cancel()
		s.mu.Lock()
		s.passCancel = nil
		s.mu.Unlock()
	}
}

func (s *Service) process(ctx context.Context) (result PassResult, err error) {
	s.processing.Store(true)
	defer s.processing.Store(false)

	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		result.Watermark = s.watermark.Load()
		s.observe(func(m Metrics) {
			m.ObservePassDuration(result.Duration)
		})
		kind := EventPassCompleted
		if err != nil {
			kind = EventPassFailed
		}
		s.emit(Event{Kind: kind, Pass: result, Err: err})
	}()

	batch, err := s.store.SelectEligible(ctx, SelectOptions{Limit: s.cfg.BatchSize, Now: s.cfg.Clock.Now()})
	if err != nil {
		return result, fmt.Errorf("select eligible changes: %w", err)
	}
	result.Selected = len(batch)
	if len(batch) == 0 {
		return result, nil
	}
	if len(batch) >= s.cfg.BatchSize {
		s.changesPending.Store(true)
	}

	groups, err := s.buildGroups(ctx, batch)
	if err != nil {
		return result, err
	}
	result.Groups = len(groups)

	var ids []int64
	for _, g := range groups {
		ids = append(ids, changeIDs(g.changes)...)
	}
	if err := s.guard.Track(ctx, ids); err != nil {
		return result, err
	}

	for _, g := range groups {
		outcome := s.dispatchGroup(ctx, g)
		if ctx.Err() != nil {
			s.releaseInterrupted(ctx, ids)

			return result, ctx.Err()
		}
		if err := s.applyOutcome(ctx, g, outcome, &result); err != nil {
			s.cfg.Logger.Error("changesync status update failed, abandoning pass",
				"transaction_id", g.transactionID,
				"err", err,
			)

			return result, err
		}
	}

	if err := s.guard.Release(ctx, ids); err != nil {
		s.cfg.Logger.Warn("changesync release in-flight marker failed", "err", err)
	}
	s.refreshGauges(ctx)

	return result, nil
}

// releaseInterrupted clears the in-flight markers of a pass cancelled by Pause. The changes were
// not touched, so they must keep their status and retry count for the pass after Resume.
// A pass cancelled by Stop or by the caller keeps its markers for recovery on the next start.
func (s *Service) releaseInterrupted(ctx context.Context, ids []int64) {
	if s.State() != StatePaused {
		return
	}
	if err := s.guard.Release(context.WithoutCancel(ctx), ids); err != nil {
		s.cfg.Logger.Warn("changesync release in-flight marker failed", "err", err)
	}
}

// buildGroups groups the batch by transaction id, keeping the (priority, id) order of first
// appearance, and completes each group with members the batch limit cut off.
func (s *Service) buildGroups(ctx context.Context, batch []Change) ([]group, error) {
	index := make(map[string]int)
	groups := make([]group, 0, len(batch))
	for _, c := range batch {
		if i, ok := index[c.TransactionID]; ok {
			groups[i].changes = append(groups[i].changes, c)

			continue
		}
		index[c.TransactionID] = len(groups)
		groups = append(groups, group{transactionID: c.TransactionID, changes: []Change{c}})
	}

	for i := range groups {
		members, err := s.store.ChangesByTransaction(ctx, groups[i].transactionID)
		if err != nil {
			return nil, fmt.Errorf("load transaction %s: %w", groups[i].transactionID, err)
		}
		complete := groups[i].changes[:0:0]
		for _, m := range members {
			if !m.Status.Terminal() {
				complete = append(complete, m)
			}
		}
		if len(complete) >= len(groups[i].changes) {
			groups[i].changes = complete
		}
		sort.Slice(groups[i].changes, func(a, b int) bool {
			return groups[i].changes[a].ID < groups[i].changes[b].ID
		})
	}

	return groups, nil
}

// dispatchGroup syncs a group entity type by entity type, each in id order, and stops at the first
// change that is not accepted. Entity types run in the order of their lowest id.
func (s *Service) dispatchGroup(ctx context.Context, g group) groupOutcome {
	var (
		order  []string
		byType = make(map[string][]Change)
	)
	for _, c := range g.changes {
		if _, ok := byType[c.EntityType]; !ok {
			order = append(order, c.EntityType)
		}
		byType[c.EntityType] = append(byType[c.EntityType], c)
	}

	for _, entityType := range order {
		for _, c := range byType[entityType] {
			result, err := s.dispatch(ctx, c)
			if ctx.Err() != nil {
				return groupOutcome{result: ResultRetry, cause: ctx.Err(), change: c}
			}
			if result != ResultAccepted {
				return groupOutcome{result: result, cause: err, change: c}
			}
		}
	}

	return groupOutcome{result: ResultAccepted}
}

// dispatch syncs one change through the registry under the handler timeout.
func (s *Service) dispatch(ctx context.Context, c Change) (Result, error) {
	handleCtx := ctx
	cancel := func() {}
	if s.cfg.HandlerTimeout > 0 {
		handleCtx, cancel = context.WithTimeout(ctx, s.cfg.HandlerTimeout)
	}
	start := time.Now()
	result, err := s.registry.Dispatch(handleCtx, c)
	cancel()

	switch {
	case errors.Is(err, ErrHandlerNotFound):
		s.cfg.Logger.Error("changesync no handler registered for entity type",
			"entity_type", c.EntityType,
			"transaction_id", c.TransactionID,
		)

		return result, err
	case errors.Is(err, ErrHandlerPanic):
		s.cfg.Logger.Error("changesync handler panic", "entity_type", c.EntityType, "change_id", c.ID, "err", err)
	}

	elapsed := time.Since(start)
	s.observe(func(m Metrics) {
		m.ObserveHandlerDuration(c.EntityType, elapsed)
	})

	return result, err
}

func (s *Service) applyOutcome(ctx context.Context, g group, o groupOutcome, result *PassResult) error {
	ids := changeIDs(g.changes)
	now := s.cfg.Clock.Now()
	retryCount := maxRetryCount(g.changes)

	switch o.result {
	case ResultAccepted:
		if err := s.store.UpdateStatus(ctx, ids, StatusUpdate{Status: StatusSuccess, SyncedAt: now}); err != nil {
			return err
		}
		result.Succeeded += len(ids)
		s.observe(func(m Metrics) { m.AddProcessed(len(ids)) })
		s.advanceWatermark(ctx, ids[len(ids)-1])

		return nil
	case ResultRetry:
		if !s.cfg.Retry.IsMaxRetriesExceeded(retryCount) {
			return s.scheduleRetry(ctx, g, o, retryCount+1, now, result)
		}
		s.cfg.Logger.Warn("changesync retries exhausted",
			"transaction_id", g.transactionID,
			"retry_count", retryCount,
			"err", o.cause,
		)

		return s.markFailed(ctx, g, o, retryCount+1, result)
	default:
		return s.markFailed(ctx, g, o, retryCount, result)
	}
}

func (s *Service) scheduleRetry(ctx context.Context, g group, o groupOutcome, retryCount int, now time.Time, result *PassResult) error {
	status := StatusRetry
	delay := s.cfg.Retry.NextRetryDelay(retryCount)
	if suggested, ok := s.cfg.Retry.SuggestedDelay(o.cause); ok && suggested > delay {
		delay = suggested
		status = StatusDelayed
	}
	if delay < minRetryDelay {
		delay = minRetryDelay
	}

	ids := changeIDs(g.changes)
	update := StatusUpdate{Status: status, RetryCount: retryCount, NextRetryAt: now.Add(delay)}
	if err := s.store.UpdateStatus(ctx, ids, update); err != nil {
		return err
	}
	result.Retried += len(ids)
	s.observe(func(m Metrics) { m.AddRetried(len(ids)) })
	s.cfg.Logger.Info("changesync transaction scheduled for retry",
		"transaction_id", g.transactionID,
		"change_id", o.change.ID,
		"entity_type", o.change.EntityType,
		"retry_count", retryCount,
		"status", status.String(),
		"delay", delay.String(),
		"err", o.cause,
	)

	return nil
}

func (s *Service) markFailed(ctx context.Context, g group, o groupOutcome, retryCount int, result *PassResult) error {
	ids := changeIDs(g.changes)
	if err := s.store.UpdateStatus(ctx, ids, StatusUpdate{Status: StatusFailed, RetryCount: retryCount}); err != nil {
		return err
	}
	result.Failed += len(ids)
	s.observe(func(m Metrics) { m.AddFailed(len(ids)) })
	s.cfg.Logger.Warn("changesync transaction failed",
		"transaction_id", g.transactionID,
		"change_id", o.change.ID,
		"entity_type", o.change.EntityType,
		"result", o.result.String(),
		"err", o.cause,
	)

	return nil
}

func (s *Service) advanceWatermark(ctx context.Context, id int64) {
	for {
		current := s.watermark.Load()
		if id <= current {
			return
		}
		if s.watermark.CompareAndSwap(current, id) {
			break
		}
	}
	if err := s.store.SaveWatermark(ctx, id); err != nil {
		s.cfg.Logger.Warn("changesync save watermark failed", "watermark", id, "err", err)
	}
}

func maxRetryCount(changes []Change) int {
	n := 0
	for _, c := range changes {
		n = max(n, c.RetryCount)
	}

	return n
}
