package telnyx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]interface{}
}

type fakeTelnyx struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response string
}

func (f *fakeTelnyx) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body := map[string]interface{}{}
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &body))
		}

		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		status, response := f.status, f.response
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}
}

func (f *fakeTelnyx) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, version APIVersion, fake *fakeTelnyx) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{
		Version:   version,
		BaseURL:   srv.URL,
		APIKey:    "key",
		APISecret: "secret",
		APIToken:  "token",
		Language:  "en-GB",
	})
	c.commandID = func() string { return "cmd-1" }
	return c
}

func TestClient_AnswerV2(t *testing.T) {
	fake := &fakeTelnyx{response: `{"data":{"result":"ok"}}`}
	c := newTestClient(t, V2, fake)

	require.NoError(t, c.Answer(context.Background(), "leg-1", "outgoing"))

	req := fake.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v2/calls/leg-1/actions/answer", req.Path)
	assert.Equal(t, "Bearer token", req.Header.Get("Authorization"))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("outgoing")), req.Body["client_state"])
	assert.Equal(t, "cmd-1", req.Body["command_id"])
}

func TestClient_AnswerInboundOmitsClientState(t *testing.T) {
	fake := &fakeTelnyx{}
	c := newTestClient(t, V2, fake)

	require.NoError(t, c.Answer(context.Background(), "leg-1", ""))

	_, ok := fake.last(t).Body["client_state"]
	assert.False(t, ok)
}

func TestClient_V1UsesBasicAuthAndLegacyPaths(t *testing.T) {
	fake := &fakeTelnyx{}
	c := newTestClient(t, V1, fake)

	require.NoError(t, c.Speak(context.Background(), "leg-1", "hello"))

	req := fake.last(t)
	assert.Equal(t, "/calls/leg-1/actions/speak", req.Path)
	user, pass, ok := (&http.Request{Header: req.Header}).BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "key", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "hello", req.Body["payload"])
	assert.Equal(t, "female", req.Body["voice"])
	assert.Equal(t, "en-GB", req.Body["language"])
	_, hasCommandID := req.Body["command_id"]
	assert.False(t, hasCommandID)
}

func TestClient_CreateConference(t *testing.T) {
	fake := &fakeTelnyx{response: `{"data":{"id":"conf-123","name":"myconf"}}`}
	c := newTestClient(t, V2, fake)

	id, err := c.CreateConference(context.Background(), "leg-1", "myconf", "conf-created")
	require.NoError(t, err)
	assert.Equal(t, "conf-123", id)

	req := fake.last(t)
	assert.Equal(t, "/v2/conferences", req.Path)
	assert.Equal(t, "leg-1", req.Body["call_control_id"])
	assert.Equal(t, "myconf", req.Body["name"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("conf-created")), req.Body["client_state"])
}

func TestClient_CreateConferenceWithoutIDFails(t *testing.T) {
	fake := &fakeTelnyx{response: `{"data":{}}`}
	c := newTestClient(t, V2, fake)

	_, err := c.CreateConference(context.Background(), "leg-1", "myconf", "conf-created")
	require.ErrorIs(t, err, domain.ErrCommandFailed)
}

func TestClient_ErrorResponseBecomesCommandFailure(t *testing.T) {
	fake := &fakeTelnyx{status: http.StatusUnprocessableEntity, response: `{"errors":[{"code":"90018","title":"Call has already ended","detail":"This call is no longer active"}]}`}
	c := newTestClient(t, V2, fake)

	err := c.Hangup(context.Background(), "leg-1")
	require.ErrorIs(t, err, domain.ErrCommandFailed)

	var failure *domain.CommandFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "hangup", failure.Action)
	assert.Equal(t, "leg-1", failure.Target)
	assert.Equal(t, http.StatusUnprocessableEntity, failure.StatusCode)
	assert.Equal(t, "This call is no longer active", failure.Detail)
}

func TestClient_ConferenceActions(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client) error
		path     string
		audioURL interface{}
	}{
		{
			name: "hold",
			call: func(c *Client) error {
				return c.Hold(context.Background(), "conf-1", []string{"leg-1"}, "https://example.com/wait.mp3")
			},
			path:     "/v2/conferences/conf-1/actions/hold",
			audioURL: "https://example.com/wait.mp3",
		},
		{
			name: "unhold",
			call: func(c *Client) error { return c.Unhold(context.Background(), "conf-1", []string{"leg-1"}) },
			path: "/v2/conferences/conf-1/actions/unhold",
		},
		{
			name: "mute",
			call: func(c *Client) error { return c.Mute(context.Background(), "conf-1", []string{"leg-1"}) },
			path: "/v2/conferences/conf-1/actions/mute",
		},
		{
			name: "unmute",
			call: func(c *Client) error { return c.Unmute(context.Background(), "conf-1", []string{"leg-1"}) },
			path: "/v2/conferences/conf-1/actions/unmute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTelnyx{}
			c := newTestClient(t, V2, fake)

			require.NoError(t, tt.call(c))

			req := fake.last(t)
			assert.Equal(t, tt.path, req.Path)
			assert.Equal(t, []interface{}{"leg-1"}, req.Body["call_control_ids"])
			assert.Equal(t, tt.audioURL, req.Body["audio_url"])
		})
	}
}

func TestClient_JoinConference(t *testing.T) {
	fake := &fakeTelnyx{}
	c := newTestClient(t, V2, fake)

	require.NoError(t, c.JoinConference(context.Background(), "conf-1", "leg-2", "agent-in"))

	req := fake.last(t)
	assert.Equal(t, "/v2/conferences/conf-1/actions/join", req.Path)
	assert.Equal(t, "leg-2", req.Body["call_control_id"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("agent-in")), req.Body["client_state"])
}

func TestClient_Dial(t *testing.T) {
	fake := &fakeTelnyx{response: `{"data":{"call_control_id":"leg-new"}}`}
	c := newTestClient(t, V2, fake)

	leg, err := c.Dial(context.Background(), "+15551234567", "conf", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "leg-new", leg)

	req := fake.last(t)
	assert.Equal(t, "/v2/calls", req.Path)
	assert.Equal(t, "+15551234567", req.Body["to"])
	assert.Equal(t, "conf", req.Body["from"])
	assert.Equal(t, "conn-1", req.Body["connection_id"])
}

func TestClient_Recording(t *testing.T) {
	fake := &fakeTelnyx{}
	c := newTestClient(t, V2, fake)

	require.NoError(t, c.RecordStart(context.Background(), "leg-1"))
	req := fake.last(t)
	assert.Equal(t, "/v2/calls/leg-1/actions/record_start", req.Path)
	assert.Equal(t, "mp3", req.Body["format"])
	assert.Equal(t, "dual", req.Body["channels"])

	require.NoError(t, c.RecordStop(context.Background(), "leg-1"))
	assert.Equal(t, "/v2/calls/leg-1/actions/record_stop", fake.last(t).Path)
}

func TestClient_CancelledContext(t *testing.T) {
	fake := &fakeTelnyx{}
	c := newTestClient(t, V2, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Hangup(ctx, "leg-1")
	require.ErrorIs(t, err, domain.ErrCommandFailed)
}
