package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/velmie/changesync"
)

// DeleteSyncedBefore deletes up to limit successful changes synced before the cutoff, oldest first.
func (s *Store) DeleteSyncedBefore(ctx context.Context, before time.Time, limit int) (int64, error) {
	if limit < 0 {
		return 0, changesync.ErrCleanupLimitInvalid
	}
	if limit == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, s.queries.deleteSyncedBefore, changesync.StatusSuccess, before.UnixMilli(), limit)
	if err != nil {
		return 0, fmt.Errorf("changesync sqlite: cleanup delete failed: %w", err)
	}

	return rowsAffected(res)
}

// CountFailedBefore counts failed changes created before the cutoff.
func (s *Store) CountFailedBefore(ctx context.Context, before time.Time) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countFailedBefore, changesync.StatusFailed, before.UnixMilli()).Scan(&count); err != nil {
		return 0, fmt.Errorf("changesync sqlite: count failed changes: %w", err)
	}

	return count, nil
}

// Vacuum rebuilds the database file to reclaim space freed by cleanup.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("changesync sqlite: vacuum failed: %w", err)
	}

	return nil
}
