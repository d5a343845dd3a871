package sqlite_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velmie/changesync"
)

func TestServiceOverSQLite(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	var seen []string
	handler := changesync.HandlerFunc{Type: changesync.EntityCustomer, Fn: func(_ context.Context, c changesync.Change) (changesync.Result, error) {
		seen = append(seen, c.EntityID)
		if c.EntityID == "c-2" {
			return changesync.ResultRetry, changesync.NewTransportError(context.DeadlineExceeded)
		}
		return changesync.ResultAccepted, nil
	}}
	svc := changesync.NewService(store, changesync.NewRegistry(handler))

	ops := make([]changesync.NewChange, 0, 3)
	for _, id := range []string{"c-1", "c-2", "c-3"} {
		ops = append(ops, changesync.NewChange{
			EntityType: changesync.EntityCustomer,
			EntityID:   id,
			Operation:  changesync.OperationInsert,
			Payload:    json.RawMessage(`{}`),
		})
	}
	txID, err := svc.CreateTransaction(ctx, ops)
	require.NoError(t, err)

	result, err := svc.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.Retried)
	require.Equal(t, []string{"c-1", "c-2"}, seen)

	members, err := store.ChangesByTransaction(ctx, txID)
	require.NoError(t, err)
	for _, m := range members {
		require.Equal(t, changesync.StatusRetry, m.Status)
		require.Equal(t, 1, m.RetryCount)
	}

	recovered, err := store.RecoverInFlight(ctx)
	require.NoError(t, err)
	require.Empty(t, recovered, "a completed pass releases its in-flight markers")

	result, err = svc.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Selected, "retries wait for their backoff")
}

func TestServiceDispatchesChangesWithoutTransactionIndependently(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	tx, err := store.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	bad, err := store.Enqueue(ctx, tx, change(changesync.EntityCustomer, "", 0))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	good, err := store.Insert(ctx, change(changesync.EntityCustomer, "", 0))
	require.NoError(t, err)

	require.NotEmpty(t, bad[0].TransactionID)
	require.NotEmpty(t, good.TransactionID)
	require.NotEqual(t, bad[0].TransactionID, good.TransactionID)
	require.Equal(t, changesync.PriorityHigh, good.Priority)

	handler := changesync.HandlerFunc{Type: changesync.EntityCustomer, Fn: func(_ context.Context, c changesync.Change) (changesync.Result, error) {
		if c.ID == bad[0].ID {
			return changesync.ResultRejected, changesync.NewRemoteError(422, "invalid", 0)
		}
		return changesync.ResultAccepted, nil
	}}
	svc := changesync.NewService(store, changesync.NewRegistry(handler))

	result, err := svc.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Groups)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Succeeded)

	got, err := store.Get(ctx, good.ID)
	require.NoError(t, err)
	require.Equal(t, changesync.StatusSuccess, got.Status)
	got, err = store.Get(ctx, bad[0].ID)
	require.NoError(t, err)
	require.Equal(t, changesync.StatusFailed, got.Status)
}
