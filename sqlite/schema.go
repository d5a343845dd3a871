package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	operation TEXT NOT NULL CHECK (operation IN ('INSERT', 'UPDATE', 'DELETE')),
	payload TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	next_retry_at INTEGER NULL,
	priority INTEGER NOT NULL DEFAULT 5,
	created_at INTEGER NOT NULL,
	synced_at INTEGER NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_eligible ON %[1]s (status, priority, id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_transaction ON %[1]s (transaction_id, id);
CREATE TABLE IF NOT EXISTS %[1]s_inflight (
	change_id INTEGER PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS %[1]s_state (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

const syncedIndexTemplate = `CREATE INDEX IF NOT EXISTS idx_%[1]s_synced ON %[1]s (status, synced_at);
`

// Schema versions:
// 1 - change table, in-flight marker and state tables
// 2 - index backing retention cleanup
const currentSchemaVersion = 2

// Schema returns the version 1 schema for a change table and its companion tables.
func Schema(table string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name), nil
}

func migrations(table string) []string {
	return []string{
		fmt.Sprintf(schemaTemplate, table),
		fmt.Sprintf(syncedIndexTemplate, table),
	}
}

// Migrate brings the schema up to date. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("changesync sqlite: read user_version failed: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: %d > %d", ErrSchemaTooNew, version, currentSchemaVersion)
	}

	steps := migrations(s.table)
	for v := version; v < currentSchemaVersion; v++ {
		if err := s.applyMigration(ctx, v+1, steps[v]); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) applyMigration(ctx context.Context, version int, stmt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("changesync sqlite: begin migration %d failed: %w", version, err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("changesync sqlite: migration %d failed: %w", version, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("changesync sqlite: set user_version %d failed: %w", version, err)
	}

	return tx.Commit()
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
