package mysql

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

	res, err := s.db.ExecContext(ctx, s.queries.deleteSyncedBefore, changesync.StatusSuccess, before.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("changesync mysql: cleanup delete failed: %w", err)
	}

	return rowsAffected(res)
}

// CountFailedBefore counts failed changes created before the cutoff.
func (s *Store) CountFailedBefore(ctx context.Context, before time.Time) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countFailedBefore, changesync.StatusFailed, before.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("changesync mysql: count failed changes: %w", err)
	}

	return count, nil
}
