package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/internal/repository"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
)

// JournalHandler serves recorded conference sessions from the journal store.
type JournalHandler struct {
	journal repository.ConferenceJournalRepository
}

func NewJournalHandler(journal repository.ConferenceJournalRepository) *JournalHandler {
	return &JournalHandler{journal: journal}
}

type journalResponse struct {
	Session *domain.ConferenceSession       `json:"session"`
	Events  []*domain.ConferenceEventRecord `json:"events"`
}

func (h *JournalHandler) SetupJournalRoutes(router *mux.Router, app string) {
	router.HandleFunc("/"+app+"/journal", h.Get).Methods(http.MethodGet)
}

// Get returns the session and its events for ?conference=<provider conference id>.
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	confID := r.URL.Query().Get("conference")
	if confID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "conference is required"})
		return
	}

	session, err := h.journal.GetSession(r.Context(), confID)
	if err != nil {
		logger.Error(r.Context(), "Failed to load conference session", zap.String("conference_id", confID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load session"})
		return
	}
	if session == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "conference not found"})
		return
	}

	events, err := h.journal.ListEvents(r.Context(), confID)
	if err != nil {
		logger.Error(r.Context(), "Failed to load conference events", zap.String("conference_id", confID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load events"})
		return
	}
	if events == nil {
		events = []*domain.ConferenceEventRecord{}
	}

	writeJSON(w, http.StatusOK, journalResponse{Session: session, Events: events})
}
