package logging

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/velmie/changesync"
)

// Adapter bridges zerolog to changesync.Logger. Args are alternating key/value pairs.
type Adapter struct {
	logger zerolog.Logger
}

var _ changesync.Logger = Adapter{}

// NewAdapter wraps logger.
func NewAdapter(logger zerolog.Logger) Adapter {
	return Adapter{logger: logger}
}

// Debug implements changesync.Logger.
func (a Adapter) Debug(msg string, args ...any) {
	emit(a.logger.Debug(), msg, args)
}

// Info implements changesync.Logger.
func (a Adapter) Info(msg string, args ...any) {
	emit(a.logger.Info(), msg, args)
}

// Warn implements changesync.Logger.
func (a Adapter) Warn(msg string, args ...any) {
	emit(a.logger.Warn(), msg, args)
}

// Error implements changesync.Logger.
func (a Adapter) Error(msg string, args ...any) {
	emit(a.logger.Error(), msg, args)
}

func emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 == len(args) {
			event = event.Interface("!BADKEY", args[i])

			break
		}
		switch v := args[i+1].(type) {
		case error:
			event = event.AnErr(key, v)
		case string:
			event = event.Str(key, v)
		case int:
			event = event.Int(key, v)
		case int64:
			event = event.Int64(key, v)
		case bool:
			event = event.Bool(key, v)
		case fmt.Stringer:
			event = event.Stringer(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	event.Msg(msg)
}
