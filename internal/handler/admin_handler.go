package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"github.com/team-telnyx/demo-conference-node/pkg/phone"
	"go.uber.org/zap"
)

// ConferenceAdmin is the operator surface of the conference service.
type ConferenceAdmin interface {
	List() (domain.Snapshot, error)
	Mute(ctx context.Context, legID string) error
	Unmute(ctx context.Context, legID string) error
	Hold(ctx context.Context, legID string) error
	Unhold(ctx context.Context, legID string) error
	RecordStart(ctx context.Context, legID string) error
	RecordStop(ctx context.Context, legID string) error
	DialOut(ctx context.Context, number string) (string, error)
}

// AdminHandler serves the operator query and command routes.
type AdminHandler struct {
	admin ConferenceAdmin
}

func NewAdminHandler(admin ConferenceAdmin) *AdminHandler {
	return &AdminHandler{admin: admin}
}

type participantView struct {
	LegID         string `json:"leg_id"`
	RemoteAddress string `json:"remote_address"`
	State         string `json:"state"`
}

type listResponse struct {
	ConferenceID string            `json:"conference_id"`
	Participants []participantView `json:"participants"`
	OnHold       string            `json:"on_hold,omitempty"`
}

type commandResponse struct {
	Status      string `json:"status"`
	Action      string `json:"action"`
	Participant string `json:"participant,omitempty"`
}

type dialResponse struct {
	Status        string `json:"status"`
	CallControlID string `json:"call_control_id"`
	To            string `json:"to"`
}

// SetupAdminRoutes registers the operator routes under /{app}/.
func (h *AdminHandler) SetupAdminRoutes(router *mux.Router, app string) {
	prefix := "/" + app
	router.HandleFunc(prefix+"/list", h.List).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/mute", h.participantCommand("mute", h.admin.Mute)).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/unmute", h.participantCommand("unmute", h.admin.Unmute)).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/hold", h.participantCommand("hold", h.admin.Hold)).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/unhold", h.participantCommand("unhold", h.admin.Unhold)).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/record-start", h.participantCommand("record-start", h.admin.RecordStart)).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/record-stop", h.participantCommand("record-stop", h.admin.RecordStop)).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/pull", h.Pull).Methods(http.MethodGet)
}

// List returns the current conference participants.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, err := h.admin.List()
	if err != nil {
		h.writeError(w, r, "list", err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		ConferenceID: snap.ConferenceID,
		Participants: lo.Map(snap.Participants, func(p domain.Participant, _ int) participantView {
			return participantView{LegID: p.LegID, RemoteAddress: p.RemoteAddress, State: string(p.State)}
		}),
		OnHold: snap.OnHold,
	})
}

func (h *AdminHandler) participantCommand(action string, run func(ctx context.Context, legID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		legID := r.URL.Query().Get("participant")
		if legID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "participant is required"})
			return
		}

		if err := run(r.Context(), legID); err != nil {
			h.writeError(w, r, action, err)
			return
		}
		writeJSON(w, http.StatusOK, commandResponse{Status: "ok", Action: action, Participant: legID})
	}
}

// Pull dials the number given in ?number= into the conference flow.
func (h *AdminHandler) Pull(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if number == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "number is required"})
		return
	}

	legID, err := h.admin.DialOut(r.Context(), number)
	if err != nil {
		h.writeError(w, r, "pull", err)
		return
	}
	writeJSON(w, http.StatusOK, dialResponse{Status: "ok", CallControlID: legID, To: number})
}

func (h *AdminHandler) writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(r.Context(), "Admin request failed", zap.String("action", action), zap.Error(err))
	} else {
		logger.Debug(r.Context(), "Admin request rejected", zap.String("action", action), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoConference), errors.Is(err, domain.ErrNotMember):
		return http.StatusNotFound
	case errors.Is(err, phone.ErrInvalidNumber):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCommandFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
