package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaStatements(t *testing.T) {
	stmts, err := SchemaStatements("pos.changes")
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	require.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS pos.changes (")
	require.Contains(t, stmts[0], "payload JSON NOT NULL")
	require.Contains(t, stmts[0], "next_retry_at DATETIME(3) NULL")
	require.Contains(t, stmts[0], "INDEX idx_status_priority_id (status, priority, id)")
	require.Contains(t, stmts[1], "pos.changes_inflight")
	require.Contains(t, stmts[2], "pos.changes_state")
}

func TestSchema_JoinsStatements(t *testing.T) {
	schema, err := Schema("changes")
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(schema, "CREATE TABLE IF NOT EXISTS"))
	require.True(t, strings.HasSuffix(schema, ");"))
}

func TestSchema_InvalidTable(t *testing.T) {
	_, err := Schema("changes; DROP TABLE x")
	require.ErrorIs(t, err, ErrInvalidTableName)
}
