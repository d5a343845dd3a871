package sqlite

import (
	"fmt"
	"strings"
)

const (
	changeColumns   = "id, entity_type, entity_id, operation, payload, transaction_id, status, retry_count, next_retry_at, priority, created_at, synced_at"
	watermarkKey    = "watermark"
	placeholderSize = 2
)

type queries struct {
	insert                  string
	selectEligible          string
	selectByID              string
	countByStatus           string
	maxSyncedID             string
	resetFailed             string
	changesByTransaction    string
	updateTransactionStatus string
	countTransactionNot     string
	setPriority             string
	setPriorityByEntityType string
	selectRecoverable       string
	resetInFlight           string
	clearAllInFlight        string
	loadState               string
	saveWatermark           string
	deleteSyncedBefore      string
	countFailedBefore       string

	table    string
	inflight string
}

func newQueries(table string) queries {
	inflight := table + "_inflight"
	state := table + "_state"

	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (entity_type, entity_id, operation, payload, transaction_id, status, retry_count, priority, created_at) "+
				"VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)",
			table,
		),
		selectEligible: fmt.Sprintf(
			"SELECT %s FROM %s WHERE status = ? OR (status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)) "+
				"ORDER BY priority ASC, id ASC LIMIT ?",
			changeColumns,
			table,
		),
		selectByID:    fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", changeColumns, table),
		countByStatus: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ?", table),
		maxSyncedID:   fmt.Sprintf("SELECT COALESCE(MAX(id), 0) FROM %s WHERE status = ?", table),
		resetFailed: fmt.Sprintf(
			"UPDATE %s SET status = ?, retry_count = 0, next_retry_at = NULL WHERE status = ?",
			table,
		),
		changesByTransaction: fmt.Sprintf(
			"SELECT %s FROM %s WHERE transaction_id = ? ORDER BY id ASC",
			changeColumns,
			table,
		),
		updateTransactionStatus: fmt.Sprintf(
			"UPDATE %s SET status = ?, synced_at = COALESCE(?, synced_at) WHERE transaction_id = ?",
			table,
		),
		countTransactionNot: fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE transaction_id = ? AND status <> ?",
			table,
		),
		setPriority: fmt.Sprintf("UPDATE %s SET priority = ? WHERE id = ?", table),
		setPriorityByEntityType: fmt.Sprintf(
			"UPDATE %s SET priority = ? WHERE entity_type = ? AND status NOT IN (?, ?)",
			table,
		),
		selectRecoverable: fmt.Sprintf(
			"SELECT c.id FROM %s f JOIN %s c ON c.id = f.change_id WHERE c.status NOT IN (?, ?) ORDER BY c.id ASC",
			inflight,
			table,
		),
		resetInFlight: fmt.Sprintf(
			"UPDATE %s SET status = ?, retry_count = 0, next_retry_at = NULL "+
				"WHERE id IN (SELECT change_id FROM %s) AND status NOT IN (?, ?)",
			table,
			inflight,
		),
		clearAllInFlight: fmt.Sprintf("DELETE FROM %s", inflight),
		loadState:        fmt.Sprintf("SELECT value FROM %s WHERE name = ?", state),
		saveWatermark: fmt.Sprintf(
			"INSERT INTO %s (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)",
			state,
		),
		deleteSyncedBefore: fmt.Sprintf(
			"DELETE FROM %[1]s WHERE id IN (SELECT id FROM %[1]s WHERE status = ? AND synced_at IS NOT NULL AND synced_at < ? ORDER BY id LIMIT ?)",
			table,
		),
		countFailedBefore: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ? AND created_at < ?", table),

		table:    table,
		inflight: inflight,
	}
}

func (q queries) updateStatus(count int) string {
	return fmt.Sprintf(
		"UPDATE %s SET status = ?, retry_count = MAX(retry_count, ?), next_retry_at = ?, synced_at = COALESCE(?, synced_at) WHERE id IN (%s)",
		q.table,
		makePlaceholders(count),
	)
}

func (q queries) markInFlight(count int) string {
	values := strings.TrimSuffix(strings.Repeat("(?),", count), ",")

	return fmt.Sprintf("INSERT OR IGNORE INTO %s (change_id) VALUES %s", q.inflight, values)
}

func (q queries) clearInFlight(count int) string {
	return fmt.Sprintf("DELETE FROM %s WHERE change_id IN (%s)", q.inflight, makePlaceholders(count))
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*placeholderSize)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}

	return string(buf)
}
