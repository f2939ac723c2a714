package api

import (
	"net/http"
)

// AnalysisHandler serves step and funnel analysis reads.
type AnalysisHandler struct {
	deps Dependencies
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(deps Dependencies) *AnalysisHandler {
	return &AnalysisHandler{deps: deps}
}

// HandleGetSteps handles GET /api/funnels/{funnel}/steps requests.
func (h *AnalysisHandler) HandleGetSteps(w http.ResponseWriter, r *http.Request) {
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
	steps, err := h.deps.StepAnalysis(r.Context(), account, r.PathValue("funnel"), window)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

// HandleGetAnalysis handles GET /api/funnels/{funnel}/analysis requests.
func (h *AnalysisHandler) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
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
	report, err := h.deps.FunnelAnalysis(r.Context(), account, r.PathValue("funnel"), window)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
