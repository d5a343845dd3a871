package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/velmie/changesync"
)

const driverName = "sqlite3"

// Executor allows enqueuing within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	Executor
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements changesync.Store on a local SQLite database.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
	owned   bool
}

var (
	_ changesync.Store    = (*Store)(nil)
	_ changesync.Cleaner  = (*Store)(nil)
	_ changesync.Vacuumer = (*Store)(nil)
)

// Open creates or opens the database at path, applies pragmas and migrates the schema.
// The returned store owns the connection and must be closed.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("changesync sqlite: open failed: %w", err)
	}
	// SQLite allows a single writer, more connections only produce SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store, err := NewStore(db, opts...)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	store.owned = true

	if err := store.applyPragmas(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	return store, nil
}

// NewStore wraps an existing database. Call Migrate before first use.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustOpen opens a store or panics on error.
func MustOpen(ctx context.Context, path string, opts ...Option) *Store {
	store, err := Open(ctx, path, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// DB returns the underlying database so domain writes can share a transaction with Enqueue.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}

	return s.db.Close()
}

func (s *Store) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.cfg.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("changesync sqlite: %q failed: %w", pragma, err)
		}
	}

	return nil
}

// Enqueue inserts changes using exec, typically the transaction that wrote the domain rows.
// A change without a transaction id becomes its own single-change transaction.
func (s *Store) Enqueue(ctx context.Context, exec Executor, changes ...changesync.NewChange) ([]changesync.Change, error) {
	if exec == nil {
		return nil, ErrExecutorRequired
	}

	return s.insertAll(ctx, exec, changes)
}

// Insert appends one pending change.
func (s *Store) Insert(ctx context.Context, change changesync.NewChange) (changesync.Change, error) {
	out, err := s.InsertBatch(ctx, []changesync.NewChange{change})
	if err != nil {
		return changesync.Change{}, err
	}

	return out[0], nil
}

// InsertBatch appends all changes in one transaction.
func (s *Store) InsertBatch(ctx context.Context, changes []changesync.NewChange) ([]changesync.Change, error) {
	if len(changes) == 0 {
		return nil, changesync.ErrEmptyTransaction
	}

	var out []changesync.Change
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = s.insertAll(ctx, tx, changes)

		return err
	})

	return out, err
}

func (s *Store) insertAll(ctx context.Context, exec Executor, changes []changesync.NewChange) ([]changesync.Change, error) {
	now := s.cfg.Clock.Now().UTC().Truncate(time.Millisecond)
	out := make([]changesync.Change, 0, len(changes))
	for i, nc := range changes {
		if err := changesync.ValidateNewChange(nc); err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		nc, err := s.complete(nc)
		if err != nil {
			return nil, err
		}

		res, err := exec.ExecContext(ctx, s.queries.insert,
			nc.EntityType,
			nc.EntityID,
			string(nc.Operation),
			string(nc.Payload),
			nc.TransactionID,
			changesync.StatusPending,
			nc.Priority,
			now.UnixMilli(),
		)
		if err != nil {
			return nil, fmt.Errorf("changesync sqlite: insert failed: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("changesync sqlite: insert id failed: %w", err)
		}

		out = append(out, changesync.Change{
			ID:            id,
			EntityType:    nc.EntityType,
			EntityID:      nc.EntityID,
			Operation:     nc.Operation,
			Payload:       append([]byte(nil), nc.Payload...),
			TransactionID: nc.TransactionID,
			Status:        changesync.StatusPending,
			Priority:      nc.Priority,
			CreatedAt:     now,
		})
	}

	return out, nil
}

// complete gives a change without a transaction id its own transaction and ranks a change
// without a priority.
func (s *Store) complete(nc changesync.NewChange) (changesync.NewChange, error) {
	if nc.Priority == 0 {
		nc.Priority = s.cfg.Priorities.PriorityFor(nc.EntityType, nc.Operation)
	}
	if nc.TransactionID == "" {
		id, err := s.cfg.TransactionIDs.NewTransactionID()
		if err != nil {
			return nc, fmt.Errorf("changesync sqlite: transaction id failed: %w", err)
		}
		nc.TransactionID = id
	}

	return nc, nil
}

// SelectEligible returns dispatchable changes ordered by priority then id.
func (s *Store) SelectEligible(ctx context.Context, opts changesync.SelectOptions) ([]changesync.Change, error) {
	if opts.Limit <= 0 {
		return nil, changesync.ErrInvalidBatchSize
	}
	now := opts.Now
	if now.IsZero() {
		now = s.cfg.Clock.Now()
	}

	return s.queryChanges(ctx, s.db, s.queries.selectEligible,
		changesync.StatusPending,
		changesync.StatusRetry,
		changesync.StatusDelayed,
		now.UnixMilli(),
		opts.Limit,
	)
}

// Get returns one change by id.
func (s *Store) Get(ctx context.Context, id int64) (changesync.Change, error) {
	changes, err := s.queryChanges(ctx, s.db, s.queries.selectByID, id)
	if err != nil {
		return changesync.Change{}, err
	}
	if len(changes) == 0 {
		return changesync.Change{}, changesync.ErrChangeNotFound
	}

	return changes[0], nil
}

// UpdateStatus applies update to all ids in one statement.
func (s *Store) UpdateStatus(ctx context.Context, ids []int64, update changesync.StatusUpdate) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+4)
	args = append(args, update.Status, update.RetryCount, millis(update.NextRetryAt), millis(update.SyncedAt))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, s.queries.updateStatus(len(ids)), args...); err != nil {
		return fmt.Errorf("changesync sqlite: update status failed: %w", err)
	}

	return nil
}

// CountByStatus returns the number of changes in status.
func (s *Store) CountByStatus(ctx context.Context, status changesync.Status) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countByStatus, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("changesync sqlite: count failed: %w", err)
	}

	return count, nil
}

// MaxSyncedID returns the highest successful id.
func (s *Store) MaxSyncedID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, s.queries.maxSyncedID, changesync.StatusSuccess).Scan(&id); err != nil {
		return 0, fmt.Errorf("changesync sqlite: max synced id failed: %w", err)
	}

	return id, nil
}

// ResetFailed moves failed changes back to pending.
func (s *Store) ResetFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.queries.resetFailed, changesync.StatusPending, changesync.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("changesync sqlite: reset failed changes: %w", err)
	}

	return rowsAffected(res)
}

// ChangesByTransaction returns the members of a transaction in id order.
func (s *Store) ChangesByTransaction(ctx context.Context, transactionID string) ([]changesync.Change, error) {
	return s.queryChanges(ctx, s.db, s.queries.changesByTransaction, transactionID)
}

// UpdateTransactionStatus sets status on every member of a transaction.
func (s *Store) UpdateTransactionStatus(ctx context.Context, transactionID string, status changesync.Status) (int64, error) {
	var syncedAt any
	if status == changesync.StatusSuccess {
		syncedAt = s.cfg.Clock.Now().UnixMilli()
	}
	res, err := s.db.ExecContext(ctx, s.queries.updateTransactionStatus, status, syncedAt, transactionID)
	if err != nil {
		return 0, fmt.Errorf("changesync sqlite: update transaction failed: %w", err)
	}

	return rowsAffected(res)
}

// CountTransactionNotInStatus counts members whose status differs from status.
func (s *Store) CountTransactionNotInStatus(ctx context.Context, transactionID string, status changesync.Status) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countTransactionNot, transactionID, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("changesync sqlite: count transaction failed: %w", err)
	}

	return count, nil
}

// SetPriority overrides the rank of one change.
func (s *Store) SetPriority(ctx context.Context, id int64, rank int) error {
	res, err := s.db.ExecContext(ctx, s.queries.setPriority, rank, id)
	if err != nil {
		return fmt.Errorf("changesync sqlite: set priority failed: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", changesync.ErrChangeNotFound, id)
	}

	return nil
}

// SetPriorityByEntityType overrides the rank of every non-terminal change of entityType.
func (s *Store) SetPriorityByEntityType(ctx context.Context, entityType string, rank int) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.queries.setPriorityByEntityType,
		rank, entityType, changesync.StatusSuccess, changesync.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("changesync sqlite: set entity priority failed: %w", err)
	}

	return rowsAffected(res)
}

// MarkInFlight records ids in the in-flight table.
func (s *Store) MarkInFlight(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, s.queries.markInFlight(len(ids)), int64Args(ids)...); err != nil {
		return fmt.Errorf("changesync sqlite: mark in-flight failed: %w", err)
	}

	return nil
}

// ClearInFlight removes ids from the in-flight table.
func (s *Store) ClearInFlight(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, s.queries.clearInFlight(len(ids)), int64Args(ids)...); err != nil {
		return fmt.Errorf("changesync sqlite: clear in-flight failed: %w", err)
	}

	return nil
}

// RecoverInFlight resets marked non-terminal changes to pending and clears every marker.
func (s *Store) RecoverInFlight(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.queries.selectRecoverable, changesync.StatusSuccess, changesync.StatusFailed)
		if err != nil {
			return fmt.Errorf("changesync sqlite: select in-flight failed: %w", err)
		}
		ids, err = scanIDs(rows)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, s.queries.resetInFlight,
			changesync.StatusPending, changesync.StatusSuccess, changesync.StatusFailed); err != nil {
			return fmt.Errorf("changesync sqlite: reset in-flight failed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.queries.clearAllInFlight); err != nil {
			return fmt.Errorf("changesync sqlite: clear in-flight failed: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// LoadWatermark returns the persisted watermark, zero when none was saved.
func (s *Store) LoadWatermark(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.queries.loadState, watermarkKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("changesync sqlite: load watermark failed: %w", err)
	}

	return id, nil
}

// SaveWatermark stores id unless a higher watermark is already stored.
func (s *Store) SaveWatermark(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.queries.saveWatermark, watermarkKey, id); err != nil {
		return fmt.Errorf("changesync sqlite: save watermark failed: %w", err)
	}

	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("changesync sqlite: begin tx failed: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, ignoreTxDone(tx.Rollback()))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("changesync sqlite: commit failed: %w", err)
	}

	return nil
}

func (s *Store) queryChanges(ctx context.Context, q querier, query string, args ...any) ([]changesync.Change, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("changesync sqlite: select failed: %w", err)
	}
	defer rows.Close()

	var changes []changesync.Change
	for rows.Next() {
		var (
			c           changesync.Change
			operation   string
			payload     []byte
			nextRetryAt sql.NullInt64
			createdAt   int64
			syncedAt    sql.NullInt64
		)
		if err := rows.Scan(
			&c.ID,
			&c.EntityType,
			&c.EntityID,
			&operation,
			&payload,
			&c.TransactionID,
			&c.Status,
			&c.RetryCount,
			&nextRetryAt,
			&c.Priority,
			&createdAt,
			&syncedAt,
		); err != nil {
			return nil, fmt.Errorf("changesync sqlite: scan failed: %w", err)
		}
		c.Operation = changesync.Operation(operation)
		c.Payload = payload
		c.NextRetryAt = fromMillis(nextRetryAt)
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		c.SyncedAt = fromMillis(syncedAt)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("changesync sqlite: rows failed: %w", err)
	}

	return changes, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("changesync sqlite: scan id failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("changesync sqlite: rows failed: %w", err)
	}

	return ids, nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("changesync sqlite: rows affected failed: %w", err)
	}

	return n, nil
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return args
}

// millis converts t to unix milliseconds, the zero time becomes NULL.
func millis(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}

	return time.UnixMilli(v.Int64).UTC()
}

func ignoreTxDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}
