package telnyx

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
)

func TestParseWebhook_V2(t *testing.T) {
	state := base64.StdEncoding.EncodeToString([]byte("outgoing"))
	body := []byte(`{"data":{"event_type":"call.answered","payload":{"call_control_id":"leg-1","client_state":"` + state + `","direction":"outgoing","from":"+15550001","to":"+15550002"}}}`)

	evt, err := ParseWebhook(V2, body)
	require.NoError(t, err)
	assert.Equal(t, domain.EventCallAnswered, evt.Type)
	assert.Equal(t, "leg-1", evt.CallControlID)
	assert.Equal(t, "outgoing", evt.ClientState)
	assert.Equal(t, domain.DirectionOutgoing, evt.Direction)
	assert.Equal(t, "+15550002", evt.RemoteAddress())
}

func TestParseWebhook_V1NamesAreCanonicalized(t *testing.T) {
	tests := map[string]domain.EventType{
		"call_initiated":     domain.EventCallInitiated,
		"call_answered":      domain.EventCallAnswered,
		"conference_join":    domain.EventParticipantJoined,
		"conference_leave":   domain.EventParticipantLeft,
		"conference_created": domain.EventConferenceCreated,
		"speak_ended":        domain.EventCallSpeakEnded,
		"dtmf":               domain.EventDTMF,
	}
	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			body := []byte(`{"event_type":"` + raw + `","payload":{"call_control_id":"leg-1","from":"+15550001"}}`)
			evt, err := ParseWebhook(V1, body)
			require.NoError(t, err)
			assert.Equal(t, want, evt.Type)
			assert.Equal(t, "+15550001", evt.RemoteAddress())
		})
	}
}

func TestParseWebhook_DetectsEnvelope(t *testing.T) {
	v1, err := ParseWebhook("", []byte(`{"event_type":"call_hangup","payload":{"call_control_id":"leg-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventCallHangup, v1.Type)

	v2, err := ParseWebhook("", []byte(`{"data":{"event_type":"call.hangup","payload":{"call_control_id":"leg-1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventCallHangup, v2.Type)
}

func TestParseWebhook_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		version  APIVersion
		body     string
		hasEvent bool
	}{
		{name: "not json", version: V2, body: `{"data":`},
		{name: "missing data", version: V2, body: `{"event_type":"call.answered"}`},
		{name: "missing event type", version: V2, body: `{"data":{"payload":{"call_control_id":"leg-1"}}}`},
		{name: "missing call control id", version: V2, body: `{"data":{"event_type":"call.answered","payload":{"from":"+1"}}}`, hasEvent: true},
		{name: "bad client state", version: V2, body: `{"data":{"event_type":"call.answered","payload":{"call_control_id":"leg-1","client_state":"%%%"}}}`, hasEvent: true},
		{name: "bad direction", version: V1, body: `{"event_type":"call_initiated","payload":{"call_control_id":"leg-1","direction":"sideways"}}`, hasEvent: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := ParseWebhook(tt.version, []byte(tt.body))
			require.ErrorIs(t, err, domain.ErrMalformedEvent)
			assert.Equal(t, tt.hasEvent, evt != nil)
		})
	}
}

func TestCanonicalEventType_PassesThroughUnknown(t *testing.T) {
	assert.Equal(t, domain.EventType("call.machine.detection.ended"), CanonicalEventType("call.machine.detection.ended"))
	assert.Equal(t, domain.EventDTMF, CanonicalEventType("call.dtmf.received"))
}
