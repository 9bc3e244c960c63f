package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// EventType is the canonical (dotted) webhook event name.
type EventType string

const (
	EventCallInitiated     EventType = "call.initiated"
	EventCallAnswered      EventType = "call.answered"
	EventCallHangup        EventType = "call.hangup"
	EventCallBridged       EventType = "call.bridged"
	EventCallSpeakStarted  EventType = "call.speak.started"
	EventCallSpeakEnded    EventType = "call.speak.ended"
	EventPlaybackStarted   EventType = "playback.started"
	EventPlaybackEnded     EventType = "playback.ended"
	EventGatherEnded       EventType = "gather.ended"
	EventDTMF              EventType = "dtmf"
	EventConferenceCreated EventType = "conference.created"
	EventParticipantJoined EventType = "conference.participant.joined"
	EventParticipantLeft   EventType = "conference.participant.left"
)

// Direction of a call leg as reported by the provider.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// CallEvent is a provider webhook normalized across API versions.
type CallEvent struct {
	Type          EventType `json:"event_type" validate:"required"`
	CallControlID string    `json:"call_control_id" validate:"required"`
	// ClientState is already base64-decoded.
	ClientState  string    `json:"client_state,omitempty"`
	Direction    Direction `json:"direction,omitempty" validate:"omitempty,oneof=incoming outgoing"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	ConferenceID string    `json:"conference_id,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

var eventValidator = validator.New()

// Validate checks the fields every event needs before it can be processed.
func (e *CallEvent) Validate() error {
	if err := eventValidator.Struct(e); err != nil {
		return MalformedEventError("%s: %v", e.Type, err)
	}
	return nil
}

// IsAcknowledgeOnly reports events that are acknowledged without any state change or command.
func (t EventType) IsAcknowledgeOnly() bool {
	switch t {
	case EventCallSpeakStarted, EventCallSpeakEnded,
		EventPlaybackStarted, EventPlaybackEnded,
		EventCallHangup, EventGatherEnded, EventCallBridged, EventDTMF,
		EventConferenceCreated:
		return true
	}
	return false
}

// IsKnown reports whether the event type is one the service classifies.
func (t EventType) IsKnown() bool {
	switch t {
	case EventCallInitiated, EventCallAnswered, EventParticipantJoined, EventParticipantLeft:
		return true
	}
	return t.IsAcknowledgeOnly()
}

// RemoteAddress is the far-end address of the leg: the caller for inbound legs, the callee
// for legs this service dialed (those carry a client state).
func (e *CallEvent) RemoteAddress() string {
	if e.ClientState == "" {
		return e.From
	}
	return e.To
}

func (e *CallEvent) String() string {
	return fmt.Sprintf("%s[%s]", e.Type, e.CallControlID)
}
