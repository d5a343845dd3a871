package sqlite

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestSchemaGolden(t *testing.T) {
	schema, err := Schema("changes")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "schema", []byte(schema))
}

func TestSchemaRejectsInvalidTable(t *testing.T) {
	_, err := Schema("changes; DROP TABLE x")
	require.ErrorIs(t, err, ErrInvalidTableName)

	_, err = Schema("")
	require.ErrorIs(t, err, ErrTableNameRequired)
}

func TestSanitizeTableName(t *testing.T) {
	for _, name := range []string{"changes", "pos_changes", "Changes2"} {
		_, err := sanitizeTableName(name)
		require.NoError(t, err, name)
	}
	for _, name := range []string{"2changes", "main.changes", "changes-1", "changes;"} {
		_, err := sanitizeTableName(name)
		require.Error(t, err, name)
	}
}

func TestMakePlaceholders(t *testing.T) {
	require.Equal(t, "", makePlaceholders(0))
	require.Equal(t, "?", makePlaceholders(1))
	require.Equal(t, "?,?,?", makePlaceholders(3))
	require.Equal(t, "INSERT OR IGNORE INTO changes_inflight (change_id) VALUES (?),(?)", newQueries("changes").markInFlight(2))
}
