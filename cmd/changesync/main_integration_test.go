//go:build integration

package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/velmie/changesync"
	"github.com/velmie/changesync/internal/testutil"
	"github.com/velmie/changesync/mysql"
)

func TestCLIContainerAgainstMySQL(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartMySQLContainer(t, ctx)

	store, err := mysql.NewStore(env.DB)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	changes := []changesync.NewChange{
		{EntityType: changesync.EntityCustomer, EntityID: "c-1", Operation: changesync.OperationInsert, Payload: json.RawMessage(`{}`)},
		{EntityType: changesync.EntityOrder, EntityID: "o-1", Operation: changesync.OperationInsert, Payload: json.RawMessage(`{}`)},
		{EntityType: changesync.EntityPayment, EntityID: "pay-1", Operation: changesync.OperationInsert, Payload: json.RawMessage(`{}`)},
	}
	out, err := store.InsertBatch(ctx, changes)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.UpdateStatus(ctx, []int64{out[0].ID, out[1].ID}, changesync.StatusUpdate{Status: changesync.StatusFailed, RetryCount: 6}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	old := time.Now().Add(-60 * 24 * time.Hour).UTC()
	if err := store.UpdateStatus(ctx, []int64{out[2].ID}, changesync.StatusUpdate{Status: changesync.StatusSuccess, SyncedAt: old}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	bin := testutil.BuildBinary(t, ".")
	cliEnv := map[string]string{
		"CHANGESYNC_STORE_DRIVER":    "mysql",
		"CHANGESYNC_STORE_DSN":       env.NetworkDSN,
		"CHANGESYNC_REMOTE_BASE_URL": "http://remote.invalid/api",
		"CHANGESYNC_LOG_LEVEL":       "error",
	}

	code, logs := testutil.RunCLIContainer(t, ctx, env.Network.Name, bin, cliEnv, []string{"retry-failed"})
	if code != 0 {
		t.Fatalf("retry-failed exit code %d logs: %s", code, logs)
	}
	if !strings.Contains(logs, "re-queued 2 failed changes") {
		t.Fatalf("unexpected retry-failed output: %s", logs)
	}

	code, logs = testutil.RunCLIContainer(t, ctx, env.Network.Name, bin, cliEnv, []string{"maintenance", "--format", "json"})
	if code != 0 {
		t.Fatalf("maintenance exit code %d logs: %s", code, logs)
	}
	if !strings.Contains(logs, `"deleted": 1`) {
		t.Fatalf("unexpected maintenance output: %s", logs)
	}

	pending, err := store.CountByStatus(ctx, changesync.StatusPending)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 2 {
		t.Fatalf("pending count = %d, want 2", pending)
	}
	synced, err := store.CountByStatus(ctx, changesync.StatusSuccess)
	if err != nil {
		t.Fatalf("count synced: %v", err)
	}
	if synced != 0 {
		t.Fatalf("synced count = %d, want 0", synced)
	}
}
