package mysql

import (
	"context"
	"fmt"
	"strings"
)

const changeTableTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGINT NOT NULL AUTO_INCREMENT,
	entity_type VARCHAR(64) NOT NULL,
	entity_id VARCHAR(128) NOT NULL,
	operation ENUM('INSERT', 'UPDATE', 'DELETE') NOT NULL,
	payload JSON NOT NULL,
	transaction_id VARCHAR(64) NOT NULL,
	status SMALLINT NOT NULL DEFAULT 0,
	retry_count INT NOT NULL DEFAULT 0,
	next_retry_at DATETIME(3) NULL,
	priority SMALLINT NOT NULL DEFAULT 5,
	created_at DATETIME(3) NOT NULL,
	synced_at DATETIME(3) NULL,
	PRIMARY KEY (id),
	INDEX idx_status_priority_id (status, priority, id),
	INDEX idx_transaction_id (transaction_id, id),
	INDEX idx_status_synced (status, synced_at)
)`

const inflightTableTemplate = `CREATE TABLE IF NOT EXISTS %[1]s_inflight (
	change_id BIGINT NOT NULL,
	PRIMARY KEY (change_id)
)`

const stateTableTemplate = `CREATE TABLE IF NOT EXISTS %[1]s_state (
	name VARCHAR(64) NOT NULL,
	value BIGINT NOT NULL,
	PRIMARY KEY (name)
)`

// SchemaStatements returns the statements creating a change table and its companion tables.
func SchemaStatements(table string) ([]string, error) {
	name, err := checkTableName(table)
	if err != nil {
		return nil, err
	}

	return []string{
		fmt.Sprintf(changeTableTemplate, name),
		fmt.Sprintf(inflightTableTemplate, name),
		fmt.Sprintf(stateTableTemplate, name),
	}, nil
}

// Schema returns the schema as a single script. Executing it requires multiStatements=true.
func Schema(table string) (string, error) {
	stmts, err := SchemaStatements(table)
	if err != nil {
		return "", err
	}

	return strings.Join(stmts, ";\n") + ";", nil
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := SchemaStatements(s.table)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("changesync mysql: create schema failed: %w", err)
		}
	}

	return nil
}
