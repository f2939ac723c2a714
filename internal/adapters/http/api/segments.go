package api

import (
	"net/http"
)

// SegmentsHandler serves segment analysis reads.
type SegmentsHandler struct {
	deps Dependencies
}

// NewSegmentsHandler creates a new segments handler.
func NewSegmentsHandler(deps Dependencies) *SegmentsHandler {
	return &SegmentsHandler{deps: deps}
}

// HandleGetSegments handles GET /api/funnels/{funnel}/segments requests.
// segment_by names the metadata field to bucket by and is required.
func (h *SegmentsHandler) HandleGetSegments(w http.ResponseWriter, r *http.Request) {
	account, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	segmentBy := r.URL.Query().Get("segment_by")
	if segmentBy == "" {
		writeError(w, http.StatusBadRequest, "bad_request", missingField("segment_by"))
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	segments, err := h.deps.SegmentAnalysis(r.Context(), account, r.PathValue("funnel"), segmentBy, window)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}
