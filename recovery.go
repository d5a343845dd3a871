package changesync

import (
	"context"
	"fmt"
)

// RecoveryGuard bridges the window between dispatch and status update.
// Ids are marked durably before their remote calls and released afterwards; anything still marked
// at startup belonged to a run that died mid-dispatch.
type RecoveryGuard struct {
	store  InFlightStore
	logger Logger
}

// NewRecoveryGuard constructs a guard over store.
func NewRecoveryGuard(store InFlightStore, logger Logger) *RecoveryGuard {
	if store == nil {
		panic("changesync: nil InFlightStore")
	}
	if logger == nil {
		logger = NopLogger{}
	}

	return &RecoveryGuard{store: store, logger: logger}
}

// Recover resets changes left in flight to pending with a zero retry count and clears the marker.
// Calling it again without a new dispatch in between is a no-op.
func (g *RecoveryGuard) Recover(ctx context.Context) (int, error) {
	ids, err := g.store.RecoverInFlight(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover in-flight changes: %w", err)
	}
	if len(ids) > 0 {
		g.logger.Warn("changesync recovered changes interrupted by a previous run", "count", len(ids), "ids", ids)
	}

	return len(ids), nil
}

// Track marks ids as in flight.
func (g *RecoveryGuard) Track(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := g.store.MarkInFlight(ctx, ids); err != nil {
		return fmt.Errorf("mark in-flight changes: %w", err)
	}

	return nil
}

// Release clears the in-flight marker of ids.
func (g *RecoveryGuard) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := g.store.ClearInFlight(ctx, ids); err != nil {
		return fmt.Errorf("clear in-flight changes: %w", err)
	}

	return nil
}

// Watermark returns the highest change id known to be synced.
func Watermark(ctx context.Context, log ChangeLog, marks WatermarkStore) (int64, error) {
	persisted, err := marks.LoadWatermark(ctx)
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}
	synced, err := log.MaxSyncedID(ctx)
	if err != nil {
		return 0, fmt.Errorf("load max synced id: %w", err)
	}

	return max(persisted, synced), nil
}
