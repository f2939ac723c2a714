package api

import (
	"net/http"
)

// MetricsHandler serves materialized metric rows and triggers
// single-funnel recomputation.
type MetricsHandler struct {
	deps Dependencies
}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler(deps Dependencies) *MetricsHandler {
	return &MetricsHandler{deps: deps}
}

// HandleCalculate handles POST /api/funnels/{funnel}/metrics requests.
// The window (from/to) is required: it defines the aggregation period.
// Recomputing the same period overwrites the prior rows.
func (h *MetricsHandler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
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
	if window == nil {
		writeError(w, http.StatusBadRequest, "bad_request", missingField("from/to window"))
		return
	}
	rows, err := h.deps.CalculateMetrics(r.Context(), account, r.PathValue("funnel"), *window)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": rows})
}

// HandleGetMetrics handles GET /api/funnels/{funnel}/metrics requests.
// An optional period query parameter filters to one YYYY-MM-DD key.
func (h *MetricsHandler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	account, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rows, err := h.deps.Metrics(r.Context(), account, r.PathValue("funnel"), r.URL.Query().Get("period"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": rows})
}

// MaterializeHandler triggers batch materialization across funnels.
type MaterializeHandler struct {
	deps Dependencies
}

// NewMaterializeHandler creates a new materialize handler.
func NewMaterializeHandler(deps Dependencies) *MaterializeHandler {
	return &MaterializeHandler{deps: deps}
}

type materializeResponse struct {
	Accepted int `json:"accepted"`
	Total    int `json:"total"`
}

// HandleMaterialize handles POST /api/materialize requests. The
// external scheduler calls this once per period; jobs are drained
// asynchronously by the worker pool.
func (h *MaterializeHandler) HandleMaterialize(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if window == nil {
		writeError(w, http.StatusBadRequest, "bad_request", missingField("from/to window"))
		return
	}
	accepted, total, err := h.deps.MaterializeAll(r.Context(), *window)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusAccepted
	if accepted < total {
		// Some jobs hit queue backpressure; the caller should retry later.
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, materializeResponse{Accepted: accepted, Total: total})
}
