package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/steplens/steplens/internal/domain/model"
)

// EventsHandler handles ingestion requests.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// eventRequest mirrors the OpenAPI schema for POST /api/events. The
// timestamp is optional; when absent the server stamps the event on
// arrival.
type eventRequest struct {
	FunnelID   string         `json:"funnel_id"`
	SessionID  string         `json:"session_id"`
	Step       string         `json:"step"`
	StepNumber *int           `json:"step_number"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.FunnelID) == "":
		return missingField("funnel_id")
	case strings.TrimSpace(e.SessionID) == "":
		return missingField("session_id")
	case e.StepNumber == nil:
		return missingField("step_number")
	case *e.StepNumber < 0:
		return badField("step_number must not be negative")
	}
	return nil
}

// HandlePostEvent handles POST /api/events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	account, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	var at time.Time
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	event, err := h.deps.TrackEvent(r.Context(), account, req.FunnelID, req.SessionID, req.Step, *req.StepNumber, at, model.Metadata(req.Metadata))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}
