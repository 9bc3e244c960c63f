package event

import (
	"time"
)

// EventType represents the type of event
type EventType string

// Conference lifecycle events
const (
	ConferenceCreated EventType = "conference.created"
	ConferenceEnded   EventType = "conference.ended"

	ParticipantAdded   EventType = "participant.added"
	ParticipantJoined  EventType = "participant.joined"
	ParticipantLeft    EventType = "participant.left"
	ParticipantHeld    EventType = "participant.held"
	ParticipantResumed EventType = "participant.resumed"

	CommandFailed  EventType = "command.failed"
	EventMalformed EventType = "event.malformed"

	// Internal/system events
	HandlerPanic EventType = "handler.panic"
)

// AllTypes lists every lifecycle event type a sink may subscribe to.
var AllTypes = []EventType{
	ConferenceCreated, ConferenceEnded,
	ParticipantAdded, ParticipantJoined, ParticipantLeft, ParticipantHeld, ParticipantResumed,
	CommandFailed, EventMalformed,
}

// ConferenceEvent is a state change or failure observed by the dispatcher.
type ConferenceEvent struct {
	Type          EventType   `json:"type"`
	ConferenceID  string      `json:"conference_id,omitempty"`
	LegID         string      `json:"leg_id,omitempty"`
	RemoteAddress string      `json:"remote_address,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Data          interface{} `json:"data,omitempty"`
	Error         error       `json:"-"`
	ErrorText     string      `json:"error,omitempty"`
}

// CommandEventData describes a failed provider command.
type CommandEventData struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// NewConferenceEvent creates a new conference event
func NewConferenceEvent(eventType EventType, conferenceID string) *ConferenceEvent {
	return &ConferenceEvent{
		Type:         eventType,
		ConferenceID: conferenceID,
		Timestamp:    time.Now(),
	}
}

// WithLeg sets the leg and its remote address
func (e *ConferenceEvent) WithLeg(legID, remoteAddress string) *ConferenceEvent {
	e.LegID = legID
	e.RemoteAddress = remoteAddress
	return e
}

// WithData sets the event data
func (e *ConferenceEvent) WithData(data interface{}) *ConferenceEvent {
	e.Data = data
	return e
}

// WithError sets the event error
func (e *ConferenceEvent) WithError(err error) *ConferenceEvent {
	e.Error = err
	if err != nil {
		e.ErrorText = err.Error()
	}
	return e
}

// IsError returns true if the event represents an error
func (e *ConferenceEvent) IsError() bool {
	return e.Error != nil
}

// ErrorMessage returns the error text, or "" when there is none.
func (e *ConferenceEvent) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Error()
}

// GetCommandData returns command failure data if available
func (e *ConferenceEvent) GetCommandData() (*CommandEventData, bool) {
	data, ok := e.Data.(*CommandEventData)
	return data, ok
}
