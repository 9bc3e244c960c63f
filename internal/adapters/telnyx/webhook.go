package telnyx

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/team-telnyx/demo-conference-node/internal/domain"
)

// v1 used snake_case event names; v2 and a few legacy v2 spellings map onto the canonical names.
var eventAliases = map[string]domain.EventType{
	"call_initiated":     domain.EventCallInitiated,
	"call_answered":      domain.EventCallAnswered,
	"call_hangup":        domain.EventCallHangup,
	"call_bridged":       domain.EventCallBridged,
	"speak_started":      domain.EventCallSpeakStarted,
	"speak_ended":        domain.EventCallSpeakEnded,
	"playback_started":   domain.EventPlaybackStarted,
	"playback_ended":     domain.EventPlaybackEnded,
	"gather_ended":       domain.EventGatherEnded,
	"conference_created": domain.EventConferenceCreated,
	"conference_join":    domain.EventParticipantJoined,
	"conference_leave":   domain.EventParticipantLeft,

	"call.playback.started": domain.EventPlaybackStarted,
	"call.playback.ended":   domain.EventPlaybackEnded,
	"call.gather.ended":     domain.EventGatherEnded,
	"call.dtmf.received":    domain.EventDTMF,
}

type webhookPayload struct {
	CallControlID string `json:"call_control_id"`
	ClientState   string `json:"client_state"`
	Direction     string `json:"direction"`
	From          string `json:"from"`
	To            string `json:"to"`
	ConferenceID  string `json:"conference_id"`
}

type v1Envelope struct {
	EventType string         `json:"event_type"`
	Payload   webhookPayload `json:"payload"`
}

type v2Envelope struct {
	Data *v1Envelope `json:"data"`
}

// CanonicalEventType maps any supported spelling onto the dotted event name.
func CanonicalEventType(raw string) domain.EventType {
	if t, ok := eventAliases[raw]; ok {
		return t
	}
	return domain.EventType(raw)
}

// ParseWebhook decodes a webhook body into a CallEvent. An empty version detects the
// envelope: v2 wraps the event in a "data" object, v1 does not.
// The returned event is non-nil whenever the envelope could be read, even if validation failed.
func ParseWebhook(version APIVersion, body []byte) (*domain.CallEvent, error) {
	env, err := decodeEnvelope(version, body)
	if err != nil {
		return nil, err
	}
	if env.EventType == "" {
		return nil, domain.MalformedEventError("missing event_type")
	}

	evt := &domain.CallEvent{
		Type:          CanonicalEventType(env.EventType),
		CallControlID: env.Payload.CallControlID,
		Direction:     domain.Direction(env.Payload.Direction),
		From:          env.Payload.From,
		To:            env.Payload.To,
		ConferenceID:  env.Payload.ConferenceID,
		ReceivedAt:    time.Now(),
	}

	if env.Payload.ClientState != "" {
		decoded, err := base64.StdEncoding.DecodeString(env.Payload.ClientState)
		if err != nil {
			return evt, domain.MalformedEventError("client_state is not base64: %v", err)
		}
		evt.ClientState = string(decoded)
	}

	if err := evt.Validate(); err != nil {
		return evt, err
	}
	return evt, nil
}

func decodeEnvelope(version APIVersion, body []byte) (*v1Envelope, error) {
	if version != V1 {
		var v2 v2Envelope
		if err := json.Unmarshal(body, &v2); err != nil {
			return nil, domain.MalformedEventError("invalid JSON: %v", err)
		}
		if v2.Data != nil {
			return v2.Data, nil
		}
		if version == V2 {
			return nil, domain.MalformedEventError("missing data envelope")
		}
	}

	var v1 v1Envelope
	if err := json.Unmarshal(body, &v1); err != nil {
		return nil, domain.MalformedEventError("invalid JSON: %v", err)
	}
	return &v1, nil
}
