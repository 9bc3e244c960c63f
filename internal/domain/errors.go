package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned when creating a conference while one already exists.
	ErrConflict = errors.New("conference already exists")
	// ErrNoConference is returned when an operation needs a conference and none exists.
	ErrNoConference = errors.New("no conference exists")
	// ErrNotMember is returned when a leg is not a participant of the conference.
	ErrNotMember = errors.New("leg is not a conference participant")
	// ErrMalformedEvent is returned for webhook events missing required fields.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrCommandFailed is the sentinel wrapped by every CommandFailure.
	ErrCommandFailed = errors.New("call control command failed")
)

// CommandFailure describes a provider command that did not succeed.
type CommandFailure struct {
	Action     string
	Target     string
	StatusCode int
	Detail     string
	Err        error
}

func (e *CommandFailure) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Action, e.Target)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap lets errors.Is match both ErrCommandFailed and the underlying cause.
func (e *CommandFailure) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommandFailed}
	}
	return []error{ErrCommandFailed, e.Err}
}

// MalformedEventError wraps ErrMalformedEvent with the reason.
func MalformedEventError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}
