package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventType_IsKnown(t *testing.T) {
	tests := []struct {
		eventType EventType
		known     bool
		ackOnly   bool
	}{
		{EventCallAnswered, true, false},
		{EventParticipantLeft, true, false},
		{EventCallHangup, true, true},
		{EventConferenceCreated, true, true},
		{EventType("call.recording.saved"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.known, tt.eventType.IsKnown())
			assert.Equal(t, tt.ackOnly, tt.eventType.IsAcknowledgeOnly())
		})
	}
}

func TestCallEvent_ValidateRequiresLeg(t *testing.T) {
	err := (&CallEvent{Type: EventCallAnswered}).Validate()
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.NoError(t, (&CallEvent{Type: EventCallAnswered, CallControlID: "leg-a"}).Validate())
}
