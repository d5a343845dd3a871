package changesync

import (
	"context"
	"time"
)

// SelectOptions controls which changes SelectEligible returns.
type SelectOptions struct {
	// Limit caps the number of changes returned, it must be positive.
	Limit int
	// Now is compared with NextRetryAt of waiting changes.
	Now time.Time
}

// StatusUpdate describes a status transition applied to several changes at once.
type StatusUpdate struct {
	Status Status
	// RetryCount is applied as max(current, RetryCount) so counts never decrease.
	RetryCount int
	// NextRetryAt is stored as-is, zero clears it.
	NextRetryAt time.Time
	// SyncedAt is stored only when non-zero.
	SyncedAt time.Time
}

// ChangeLog is the durable append-only change table.
type ChangeLog interface {
	// Insert appends one pending change.
	Insert(ctx context.Context, change NewChange) (Change, error)
	// InsertBatch appends all changes in one storage transaction or none of them.
	InsertBatch(ctx context.Context, changes []NewChange) ([]Change, error)
	// SelectEligible returns pending changes and waiting changes whose retry time has come,
	// ordered by priority then id.
	SelectEligible(ctx context.Context, opts SelectOptions) ([]Change, error)
	// UpdateStatus applies update to all ids in one storage transaction.
	UpdateStatus(ctx context.Context, ids []int64, update StatusUpdate) error
	// CountByStatus returns the number of changes in status.
	CountByStatus(ctx context.Context, status Status) (int, error)
	// MaxSyncedID returns the highest id in StatusSuccess, zero when none.
	MaxSyncedID(ctx context.Context) (int64, error)
	// ResetFailed moves every failed change back to pending with a zero retry count.
	ResetFailed(ctx context.Context) (int64, error)
}

// TransactionStore queries and updates changes by transaction id.
type TransactionStore interface {
	InsertBatch(ctx context.Context, changes []NewChange) ([]Change, error)
	// ChangesByTransaction returns the members of a transaction in id order.
	ChangesByTransaction(ctx context.Context, transactionID string) ([]Change, error)
	UpdateTransactionStatus(ctx context.Context, transactionID string, status Status) (int64, error)
	// CountTransactionNotInStatus counts members whose status differs from status.
	CountTransactionNotInStatus(ctx context.Context, transactionID string, status Status) (int, error)
}

// PriorityStore persists priority overrides.
type PriorityStore interface {
	// SetPriority returns ErrChangeNotFound when id does not exist.
	SetPriority(ctx context.Context, id int64, rank int) error
	// SetPriorityByEntityType updates every non-terminal change of entityType.
	SetPriorityByEntityType(ctx context.Context, entityType string, rank int) (int64, error)
}

// InFlightStore keeps the durable marker of changes being dispatched.
type InFlightStore interface {
	MarkInFlight(ctx context.Context, ids []int64) error
	ClearInFlight(ctx context.Context, ids []int64) error
	// RecoverInFlight resets marked non-terminal changes to pending with a zero retry count and
	// clears the marker, atomically. It returns the ids that were reset.
	RecoverInFlight(ctx context.Context) ([]int64, error)
}

// WatermarkStore persists the last synced position.
type WatermarkStore interface {
	LoadWatermark(ctx context.Context) (int64, error)
	// SaveWatermark stores id unless a higher watermark is already stored.
	SaveWatermark(ctx context.Context, id int64) error
}

// Store is everything the Service needs from a change log backend.
type Store interface {
	ChangeLog
	TransactionStore
	PriorityStore
	InFlightStore
	WatermarkStore
}

// Cleaner removes history that is no longer needed. Implemented optionally by stores.
type Cleaner interface {
	// DeleteSyncedBefore deletes up to limit successful changes synced before the cutoff.
	DeleteSyncedBefore(ctx context.Context, before time.Time, limit int) (int64, error)
	// CountFailedBefore counts failed changes created before the cutoff.
	CountFailedBefore(ctx context.Context, before time.Time) (int, error)
}

// Vacuumer compacts the underlying storage. Implemented optionally by stores.
type Vacuumer interface {
	Vacuum(ctx context.Context) error
}
