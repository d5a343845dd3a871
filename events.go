package changesync

import "time"

// EventKind identifies a lifecycle event.
type EventKind int

const (
	// EventStarted fires once the service is running.
	EventStarted EventKind = iota + 1
	// EventStopped fires after the loop exited.
	EventStopped
	// EventPaused fires when connectivity was lost.
	EventPaused
	// EventResumed fires when connectivity came back.
	EventResumed
	// EventPassCompleted fires after a processing pass finished without error.
	EventPassCompleted
	// EventPassFailed fires after a processing pass was abandoned.
	EventPassFailed
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventPassCompleted:
		return "pass_completed"
	case EventPassFailed:
		return "pass_failed"
	default:
		return "unknown"
	}
}

// Event describes a lifecycle transition or a finished pass.
type Event struct {
	Kind EventKind
	At   time.Time
	Pass PassResult
	Err  error
}

// Listener receives events synchronously and must return quickly.
type Listener func(Event)
