package changesync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultRetention       = 30 * 24 * time.Hour
	defaultFailedWarnAfter = 365 * 24 * time.Hour
	defaultMaintenanceDue  = 24 * time.Hour
	defaultInitialDelay    = 5 * time.Minute
	defaultCleanupLimit    = 1000
)

// MaintainerConfig controls periodic cleanup of the change log.
type MaintainerConfig struct {
	// Retention removes successful changes synced before now-retention.
	Retention time.Duration
	// FailedWarnAfter logs a warning for failed changes older than this.
	FailedWarnAfter time.Duration
	// CheckEvery is the interval between maintenance runs.
	CheckEvery time.Duration
	// InitialDelay postpones the first run after startup.
	InitialDelay time.Duration
	// Limit caps the number of rows deleted per statement (0 uses the default).
	Limit int
	// DisableVacuum skips compaction even when the store supports it.
	DisableVacuum bool
	Clock         Clock
	Logger        Logger
}

// MaintenanceResult reports what a maintenance run did.
type MaintenanceResult struct {
	Deleted   int64
	OldFailed int
	Vacuumed  bool
}

// Maintainer runs periodic cleanup so the audit trail does not grow without bound.
type Maintainer struct {
	cleaner Cleaner
	cfg     MaintainerConfig
}

// NewMaintainer creates a maintainer with defaults applied.
func NewMaintainer(cleaner Cleaner, cfg MaintainerConfig) (*Maintainer, error) {
	if cleaner == nil {
		return nil, errors.New("changesync: cleaner is required")
	}
	if cfg.Retention == 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Retention < 0 {
		return nil, ErrRetentionInvalid
	}
	if cfg.FailedWarnAfter <= 0 {
		cfg.FailedWarnAfter = defaultFailedWarnAfter
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultMaintenanceDue
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}

	return &Maintainer{cleaner: cleaner, cfg: cfg}, nil
}

// Run waits InitialDelay, then runs maintenance every CheckEvery until the context is canceled.
func (m *Maintainer) Run(ctx context.Context) error {
	if m.cfg.InitialDelay > 0 {
		timer := time.NewTimer(m.cfg.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	m.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runLogged(ctx)
		}
	}
}

func (m *Maintainer) runLogged(ctx context.Context) {
	result, err := m.Ensure(ctx)
	if err != nil {
		m.cfg.Logger.Warn("changesync maintenance failed", "err", err)

		return
	}
	if result.Deleted > 0 || result.OldFailed > 0 {
		m.cfg.Logger.Info("changesync maintenance done",
			"deleted", result.Deleted,
			"old_failed", result.OldFailed,
			"vacuumed", result.Vacuumed,
		)
	}
}

// Ensure executes a single maintenance run.
func (m *Maintainer) Ensure(ctx context.Context) (MaintenanceResult, error) {
	var result MaintenanceResult
	now := m.cfg.Clock.Now()

	before := now.Add(-m.cfg.Retention)
	for {
		n, err := m.cleaner.DeleteSyncedBefore(ctx, before, m.cfg.Limit)
		if err != nil {
			return result, fmt.Errorf("delete synced changes: %w", err)
		}
		result.Deleted += n
		if n < int64(m.cfg.Limit) {
			break
		}
	}

	oldFailed, err := m.cleaner.CountFailedBefore(ctx, now.Add(-m.cfg.FailedWarnAfter))
	if err != nil {
		return result, fmt.Errorf("count old failed changes: %w", err)
	}
	result.OldFailed = oldFailed
	if oldFailed > 0 {
		m.cfg.Logger.Warn("changesync failed changes need attention",
			"count", oldFailed,
			"older_than", m.cfg.FailedWarnAfter.String(),
		)
	}

	if vacuumer, ok := m.cleaner.(Vacuumer); ok && !m.cfg.DisableVacuum && result.Deleted > 0 {
		if err := vacuumer.Vacuum(ctx); err != nil {
			return result, fmt.Errorf("vacuum: %w", err)
		}
		result.Vacuumed = true
	}

	return result, nil
}
