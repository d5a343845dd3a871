// Package logging builds the zerolog logger used by the changesync binary.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "02-01-2006 15:04:05"

// New constructs a zerolog logger for env. Development environments get a console writer,
// everything else emits JSON. Explicit writers replace the default output.
func New(env, level string, writers ...io.Writer) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer
	switch {
	case len(writers) > 0:
		output = io.MultiWriter(writers...)
	default:
		output = Writer(env, os.Stderr)
	}

	return zerolog.New(output).With().Timestamp().Logger().Level(lvl), nil
}

// ParseLevel parses a zerolog level name, empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, err
	}

	return lvl, nil
}

// Writer wraps w in a console writer for development environments.
func Writer(env string, w io.Writer) io.Writer {
	if IsDevelopment(env) {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: true}
	}

	return w
}

// IsDevelopment reports whether env selects human readable output.
func IsDevelopment(env string) bool {
	return strings.EqualFold(env, "development") || strings.EqualFold(env, "dev")
}
