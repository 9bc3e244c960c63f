package telnyx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// APIVersion selects the Call Control API generation.
type APIVersion string

const (
	V1 APIVersion = "v1"
	V2 APIVersion = "v2"
)

const DefaultBaseURL = "https://api.telnyx.com"

// ClientConfig configures a Client.
type ClientConfig struct {
	Version APIVersion
	BaseURL string
	// APIKey and APISecret authenticate v1 requests with basic auth.
	APIKey    string
	APISecret string
	// APIToken is the v2 bearer token.
	APIToken string
	Voice    string
	Language string
	Timeout  time.Duration
	// RateLimit is the sustained commands per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// Client issues Call Control commands over the Telnyx REST API.
type Client struct {
	config     ClientConfig
	HTTPClient *http.Client
	limiter    *rate.Limiter
	commandID  func() string
}

// NewClient creates a new Telnyx call control client
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Version == "" {
		cfg.Version = V2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Voice == "" {
		cfg.Voice = "female"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	logger.Base().Info("Telnyx client configured",
		zap.String("version", string(cfg.Version)),
		zap.String("base_url", cfg.BaseURL),
		zap.Float64("rate_limit", cfg.RateLimit))

	return &Client{
		config: cfg,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:   limiter,
		commandID: func() string { return uuid.New().String() },
	}
}

type clientStateRequest struct {
	ClientState string `json:"client_state,omitempty"`
	CommandID   string `json:"command_id,omitempty"`
}

type speakRequest struct {
	Payload   string `json:"payload"`
	Voice     string `json:"voice"`
	Language  string `json:"language"`
	CommandID string `json:"command_id,omitempty"`
}

type createConferenceRequest struct {
	CallControlID string `json:"call_control_id"`
	Name          string `json:"name"`
	ClientState   string `json:"client_state,omitempty"`
}

type joinConferenceRequest struct {
	CallControlID string `json:"call_control_id"`
	ClientState   string `json:"client_state,omitempty"`
	CommandID     string `json:"command_id,omitempty"`
}

type participantsRequest struct {
	CallControlIDs []string `json:"call_control_ids"`
	AudioURL       string   `json:"audio_url,omitempty"`
}

type dialRequest struct {
	To           string `json:"to"`
	From         string `json:"from"`
	ConnectionID string `json:"connection_id"`
}

type recordStartRequest struct {
	Format    string `json:"format"`
	Channels  string `json:"channels"`
	CommandID string `json:"command_id,omitempty"`
}

type commandRequest struct {
	CommandID string `json:"command_id,omitempty"`
}

type dataResponse struct {
	Data struct {
		ID            string `json:"id"`
		CallControlID string `json:"call_control_id"`
		Result        string `json:"result"`
	} `json:"data"`
}

type errorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Answer answers an incoming or outgoing leg.
func (c *Client) Answer(ctx context.Context, legID, clientState string) error {
	req := clientStateRequest{ClientState: encodeClientState(clientState), CommandID: c.nextCommandID()}
	return c.post(ctx, "answer", legID, c.callActionURL(legID, "answer"), req, nil)
}

// Hangup ends a leg.
func (c *Client) Hangup(ctx context.Context, legID string) error {
	req := commandRequest{CommandID: c.nextCommandID()}
	return c.post(ctx, "hangup", legID, c.callActionURL(legID, "hangup"), req, nil)
}

// Speak plays text-to-speech on a leg.
func (c *Client) Speak(ctx context.Context, legID, text string) error {
	req := speakRequest{
		Payload:   text,
		Voice:     c.config.Voice,
		Language:  c.config.Language,
		CommandID: c.nextCommandID(),
	}
	return c.post(ctx, "speak", legID, c.callActionURL(legID, "speak"), req, nil)
}

// CreateConference creates a conference anchored on legID and returns the provider conference id.
func (c *Client) CreateConference(ctx context.Context, legID, name, clientState string) (string, error) {
	req := createConferenceRequest{
		CallControlID: legID,
		Name:          name,
		ClientState:   encodeClientState(clientState),
	}
	var resp dataResponse
	if err := c.post(ctx, "create_conference", legID, c.url("conferences"), req, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", &domain.CommandFailure{Action: "create_conference", Target: legID, Detail: "response carried no conference id"}
	}
	return resp.Data.ID, nil
}

// JoinConference adds legID to an existing conference.
func (c *Client) JoinConference(ctx context.Context, conferenceID, legID, clientState string) error {
	req := joinConferenceRequest{
		CallControlID: legID,
		ClientState:   encodeClientState(clientState),
		CommandID:     c.nextCommandID(),
	}
	return c.post(ctx, "join", legID, c.conferenceActionURL(conferenceID, "join"), req, nil)
}

func (c *Client) Mute(ctx context.Context, conferenceID string, legIDs []string) error {
	return c.participantsAction(ctx, conferenceID, "mute", participantsRequest{CallControlIDs: legIDs})
}

func (c *Client) Unmute(ctx context.Context, conferenceID string, legIDs []string) error {
	return c.participantsAction(ctx, conferenceID, "unmute", participantsRequest{CallControlIDs: legIDs})
}

// Hold puts legIDs on hold playing audioURL.
func (c *Client) Hold(ctx context.Context, conferenceID string, legIDs []string, audioURL string) error {
	return c.participantsAction(ctx, conferenceID, "hold", participantsRequest{CallControlIDs: legIDs, AudioURL: audioURL})
}

func (c *Client) Unhold(ctx context.Context, conferenceID string, legIDs []string) error {
	return c.participantsAction(ctx, conferenceID, "unhold", participantsRequest{CallControlIDs: legIDs})
}

func (c *Client) participantsAction(ctx context.Context, conferenceID, action string, req participantsRequest) error {
	return c.post(ctx, action, strings.Join(req.CallControlIDs, ","), c.conferenceActionURL(conferenceID, action), req, nil)
}

// Dial places an outbound call and returns the new leg id.
func (c *Client) Dial(ctx context.Context, to, from, connectionID string) (string, error) {
	req := dialRequest{To: to, From: from, ConnectionID: connectionID}
	var resp dataResponse
	if err := c.post(ctx, "dial", to, c.url("calls"), req, &resp); err != nil {
		return "", err
	}
	return resp.Data.CallControlID, nil
}

// RecordStart starts a dual-channel mp3 recording of the leg.
func (c *Client) RecordStart(ctx context.Context, legID string) error {
	req := recordStartRequest{Format: "mp3", Channels: "dual", CommandID: c.nextCommandID()}
	return c.post(ctx, "record_start", legID, c.callActionURL(legID, "record_start"), req, nil)
}

func (c *Client) RecordStop(ctx context.Context, legID string) error {
	req := commandRequest{CommandID: c.nextCommandID()}
	return c.post(ctx, "record_stop", legID, c.callActionURL(legID, "record_stop"), req, nil)
}

func (c *Client) url(resource string) string {
	if c.config.Version == V1 {
		return fmt.Sprintf("%s/%s", c.config.BaseURL, resource)
	}
	return fmt.Sprintf("%s/v2/%s", c.config.BaseURL, resource)
}

func (c *Client) callActionURL(legID, action string) string {
	return fmt.Sprintf("%s/%s/actions/%s", c.url("calls"), legID, action)
}

func (c *Client) conferenceActionURL(conferenceID, action string) string {
	return fmt.Sprintf("%s/%s/actions/%s", c.url("conferences"), conferenceID, action)
}

// nextCommandID returns an idempotency key; v1 has no command_id field.
func (c *Client) nextCommandID() string {
	if c.config.Version == V1 {
		return ""
	}
	return c.commandID()
}

func (c *Client) authorize(req *http.Request) {
	if c.config.Version == V1 {
		req.SetBasicAuth(c.config.APIKey, c.config.APISecret)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
}

func (c *Client) post(ctx context.Context, action, target, url string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.CommandFailure{Action: action, Target: target, Err: err}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return &domain.CommandFailure{Action: action, Target: target, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return &domain.CommandFailure{Action: action, Target: target, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &domain.CommandFailure{Action: action, Target: target, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.CommandFailure{Action: action, Target: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	logger.Base().Debug("Telnyx command executed",
		zap.String("action", action),
		zap.String("target", target),
		zap.Int("status_code", resp.StatusCode),
		zap.String("body", string(bodyBytes)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.CommandFailure{
			Action:     action,
			Target:     target,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(bodyBytes),
		}
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &domain.CommandFailure{Action: action, Target: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func errorDetail(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors) == 0 {
		return strings.TrimSpace(string(body))
	}
	details := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		if e.Detail != "" {
			details = append(details, e.Detail)
		} else {
			details = append(details, e.Title)
		}
	}
	return strings.Join(details, "; ")
}

func encodeClientState(s string) string {
	if s == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}
