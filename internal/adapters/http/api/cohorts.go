package api

import (
	"net/http"
)

// CohortsHandler serves cohort analysis reads.
type CohortsHandler struct {
	deps Dependencies
}

// NewCohortsHandler creates a new cohorts handler.
func NewCohortsHandler(deps Dependencies) *CohortsHandler {
	return &CohortsHandler{deps: deps}
}

// HandleGetCohorts handles GET /api/funnels/{funnel}/cohorts requests.
// cohort_by selects the granularity (day, week, month; default day).
func (h *CohortsHandler) HandleGetCohorts(w http.ResponseWriter, r *http.Request) {
	account, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	cohorts, err := h.deps.CohortAnalysis(r.Context(), account, r.PathValue("funnel"), window, r.URL.Query().Get("cohort_by"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cohorts": cohorts})
}
