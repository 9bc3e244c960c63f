package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/team-telnyx/demo-conference-node/internal/adapters/telnyx"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// EventDispatcher accepts parsed call events for processing.
type EventDispatcher interface {
	Dispatch(ctx context.Context, evt *domain.CallEvent) error
	ReportMalformed(ctx context.Context, evt *domain.CallEvent, err error)
}

// WebhookHandler receives Telnyx call control webhooks.
type WebhookHandler struct {
	dispatcher EventDispatcher
	version    telnyx.APIVersion
}

// NewWebhookHandler creates a webhook handler. An empty version auto-detects
// the payload generation per request.
func NewWebhookHandler(dispatcher EventDispatcher, version telnyx.APIVersion) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, version: version}
}

// SetupWebhookRoutes registers POST /{app}/start.
func (h *WebhookHandler) SetupWebhookRoutes(router *mux.Router, app string) {
	router.HandleFunc("/"+app+"/start", h.HandleWebhook).Methods(http.MethodPost)
}

// HandleWebhook always acknowledges with 200 so the provider does not retry;
// processing happens on the dispatcher workers.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logger.Warn(ctx, "Failed to read webhook body", zap.Error(err))
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
		return
	}

	evt, err := telnyx.ParseWebhook(h.version, body)
	if err != nil {
		logger.Debug(ctx, "Webhook payload rejected", zap.Int("bytes", len(body)))
		h.dispatcher.ReportMalformed(ctx, evt, err)
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
		return
	}

	logger.Debug(ctx, "Webhook received", zap.String("event", evt.String()))

	if err := h.dispatcher.Dispatch(ctx, evt); err != nil {
		if errors.Is(err, domain.ErrMalformedEvent) {
			logger.Warn(ctx, "Ignoring malformed event", zap.Error(err))
		} else {
			logger.Error(ctx, "Failed to dispatch webhook event",
				zap.String("event_type", string(evt.Type)),
				zap.String("call_control_id", evt.CallControlID),
				zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
