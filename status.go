package changesync

import (
	"fmt"
	"strings"
)

// Status represents the lifecycle state of a change.
type Status int16

const (
	// StatusPending indicates the change is waiting for its first dispatch.
	StatusPending Status = 0
	// StatusRetry indicates the change will be retried after its backoff elapses.
	StatusRetry Status = 1
	// StatusDelayed indicates the change will be retried after a server-suggested delay.
	StatusDelayed Status = 2
	// StatusSuccess indicates the server accepted the change.
	StatusSuccess Status = 3
	// StatusFailed indicates the change was rejected or exhausted its retries.
	StatusFailed Status = -1
)

var statusNames = map[Status]string{
	StatusPending: "pending",
	StatusRetry:   "retry",
	StatusDelayed: "delayed",
	StatusSuccess: "success",
	StatusFailed:  "failed",
}

// String returns the lower-case status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("status(%d)", int16(s))
}

// Terminal reports whether the status can only be left through an explicit administrative action.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Waiting reports whether the change is scheduled for another attempt.
func (s Status) Waiting() bool {
	return s == StatusRetry || s == StatusDelayed
}

// ParseStatus converts a status name (case-insensitive) into a Status.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for status, candidate := range statusNames {
		if candidate == name {
			return status, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}
