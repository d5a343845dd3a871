package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/changesync"
)

type fakeResult struct {
	id int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (fakeResult) RowsAffected() (int64, error)   { return 1, nil }

type fakeExecutor struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)

	return fakeResult{id: int64(len(f.queries))}, nil
}

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()

	return &Store{
		cfg:     Config{Clock: changesync.ClockFunc(func() time.Time { return now })}.withDefaults(),
		queries: newQueries("changes"),
		table:   "changes",
	}
}

func TestStoreEnqueue_WritesThroughExecutor(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	store := newTestStore(t, now)
	exec := &fakeExecutor{}

	out, err := store.Enqueue(t.Context(), exec,
		changesync.NewChange{
			EntityType: "customer", EntityID: "c-1", Operation: changesync.OperationInsert,
			Payload: json.RawMessage(`{"name":"Ann"}`), TransactionID: "tx-1",
		},
		changesync.NewChange{
			EntityType: "sale", EntityID: "s-1", Operation: changesync.OperationInsert,
			Payload: json.RawMessage(`{}`), TransactionID: "tx-1", Priority: changesync.PriorityCritical,
		},
	)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Len(t, exec.queries, 2)
	require.True(t, strings.HasPrefix(exec.queries[0], "INSERT INTO changes "))

	require.Equal(t, int64(1), out[0].ID)
	require.Equal(t, changesync.PriorityHigh, out[0].Priority)
	require.Equal(t, changesync.PriorityCritical, out[1].Priority)
	require.Equal(t, changesync.StatusPending, out[0].Status)
	require.Equal(t, now.Truncate(time.Millisecond), out[0].CreatedAt)
	require.Equal(t, "{\"name\":\"Ann\"}", exec.args[0][3])
	require.Equal(t, "INSERT", exec.args[0][2])
}

func TestStoreEnqueue_GivesEachChangeWithoutTransactionItsOwn(t *testing.T) {
	store := newTestStore(t, time.Now())
	exec := &fakeExecutor{}

	out, err := store.Enqueue(t.Context(), exec,
		changesync.NewChange{
			EntityType: "customer", EntityID: "c-1", Operation: changesync.OperationInsert, Payload: json.RawMessage(`{}`),
		},
		changesync.NewChange{
			EntityType: "customer", EntityID: "c-2", Operation: changesync.OperationDelete, Payload: json.RawMessage(`{}`),
		},
	)
	require.NoError(t, err)
	require.NotEmpty(t, out[0].TransactionID)
	require.NotEmpty(t, out[1].TransactionID)
	require.NotEqual(t, out[0].TransactionID, out[1].TransactionID)
	require.Equal(t, out[0].TransactionID, exec.args[0][4])
	require.Equal(t, changesync.PriorityCritical, out[1].Priority, "deletes move one tier up")
}

func TestStoreEnqueue_TransactionIDFailure(t *testing.T) {
	store := newTestStore(t, time.Now())
	boom := errors.New("no entropy")
	store.cfg.TransactionIDs = changesync.TransactionIDFunc(func() (string, error) { return "", boom })
	exec := &fakeExecutor{}

	_, err := store.Enqueue(t.Context(), exec, changesync.NewChange{
		EntityType: "customer", EntityID: "c-1", Operation: changesync.OperationInsert, Payload: json.RawMessage(`{}`),
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, exec.queries)
}

func TestStoreEnqueue_ValidatesBeforeWriting(t *testing.T) {
	store := newTestStore(t, time.Now())
	exec := &fakeExecutor{}

	_, err := store.Enqueue(t.Context(), exec, changesync.NewChange{
		EntityType: "customer", EntityID: "c-1", Operation: changesync.OperationUpdate,
		Payload: json.RawMessage(`{broken`),
	})
	require.ErrorIs(t, err, changesync.ErrInvalidPayload)
	require.Empty(t, exec.queries)
}

func TestStoreEnqueue_RequiresExecutor(t *testing.T) {
	store := newTestStore(t, time.Now())

	_, err := store.Enqueue(t.Context(), nil)
	require.ErrorIs(t, err, ErrExecutorRequired)
}

func TestStoreEnqueue_WrapsExecError(t *testing.T) {
	store := newTestStore(t, time.Now())
	boom := errors.New("boom")

	_, err := store.Enqueue(t.Context(), &fakeExecutor{err: boom}, changesync.NewChange{
		EntityType: "customer", EntityID: "c-1", Operation: changesync.OperationDelete, Payload: json.RawMessage(`{}`),
	})
	require.ErrorIs(t, err, boom)
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(nil)
	require.ErrorIs(t, err, ErrDBRequired)

	db, err := sql.Open("mysql", "root:secret@tcp(127.0.0.1:1)/changesync?parseTime=true")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = NewStore(db, WithTable("bad-name"))
	require.ErrorIs(t, err, ErrInvalidTableName)

	store, err := NewStore(db, WithTable("pos.changes"))
	require.NoError(t, err)
	require.Equal(t, "pos.changes", store.Table())
	require.Equal(t, "changesync:engine:pos.changes", store.cfg.LockName)

	store, err = NewStore(db, WithLockName("lane-7"))
	require.NoError(t, err)
	require.Equal(t, "lane-7", store.cfg.LockName)
}

func TestQueries_StatusUpdateNeverLowersRetryCount(t *testing.T) {
	q := newQueries("changes")

	query := q.updateStatus(3)
	require.Contains(t, query, "retry_count = GREATEST(retry_count, ?)")
	require.Contains(t, query, "synced_at = COALESCE(?, synced_at)")
	require.True(t, strings.HasSuffix(query, "WHERE id IN (?,?,?)"))
}

func TestQueries_InFlight(t *testing.T) {
	q := newQueries("changes")

	require.Equal(t, "INSERT IGNORE INTO changes_inflight (change_id) VALUES (?),(?)", q.markInFlight(2))
	require.Equal(t, "DELETE FROM changes_inflight WHERE change_id IN (?)", q.clearInFlight(1))
	require.Contains(t, q.resetInFlight, "JOIN changes_inflight AS f")
}

func TestMakePlaceholders(t *testing.T) {
	require.Equal(t, "", makePlaceholders(0))
	require.Equal(t, "?", makePlaceholders(1))
	require.Equal(t, "?,?,?", makePlaceholders(3))
}

func TestSelectEligible_RejectsInvalidLimit(t *testing.T) {
	store := newTestStore(t, time.Now())

	_, err := store.SelectEligible(t.Context(), changesync.SelectOptions{})
	require.ErrorIs(t, err, changesync.ErrInvalidBatchSize)
}

func TestDeleteSyncedBefore_Limit(t *testing.T) {
	store := newTestStore(t, time.Now())

	_, err := store.DeleteSyncedBefore(t.Context(), time.Now(), -1)
	require.ErrorIs(t, err, changesync.ErrCleanupLimitInvalid)

	n, err := store.DeleteSyncedBefore(t.Context(), time.Now(), 0)
	require.NoError(t, err)
	require.Zero(t, n)
}
