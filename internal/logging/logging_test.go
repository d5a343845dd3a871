package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}

	return out
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("production", "warn", &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "shown", lines[0]["message"])
	require.Equal(t, "warn", lines[0]["level"])
	require.Contains(t, lines[0], "time")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("production", "loud")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	require.Equal(t, zerolog.DebugLevel, lvl)
}

func TestIsDevelopment(t *testing.T) {
	require.True(t, IsDevelopment("dev"))
	require.True(t, IsDevelopment("Development"))
	require.False(t, IsDevelopment("production"))
}

func TestAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("production", "debug", &buf)
	require.NoError(t, err)
	adapter := NewAdapter(logger)

	adapter.Warn("changesync pass failed",
		"err", errors.New("disk full"),
		"selected", 12,
		"transaction_id", "tx-1",
		"offline", true,
		"backoff", 2*time.Second,
		"dangling",
	)
	adapter.Debug("changesync tick")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	require.Equal(t, "changesync pass failed", lines[0]["message"])
	require.Equal(t, "disk full", lines[0]["err"])
	require.EqualValues(t, 12, lines[0]["selected"])
	require.Equal(t, "tx-1", lines[0]["transaction_id"])
	require.Equal(t, true, lines[0]["offline"])
	require.Equal(t, "2s", lines[0]["backoff"])
	require.Equal(t, "dangling", lines[0]["!BADKEY"])
	require.Equal(t, "debug", lines[1]["level"])
}

func TestAdapter_DisabledLevelIsNoop(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("production", "error", &buf)
	require.NoError(t, err)

	NewAdapter(logger).Info("quiet", "k", "v")
	require.Zero(t, buf.Len())
}

func TestWriter_Development(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("dev", "info", Writer("dev", &buf))
	require.NoError(t, err)

	logger.Info().Str("entity", "customer").Msg("changesync pass")
	require.Contains(t, buf.String(), "changesync pass")
	require.Contains(t, buf.String(), "entity=customer")

	require.Same(t, &buf, Writer("production", &buf))
}
