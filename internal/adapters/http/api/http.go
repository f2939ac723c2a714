// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/steplens/steplens/internal/domain/analyze"
	"github.com/steplens/steplens/internal/domain/cohort"
	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/segment"
)

// Dependencies required by HTTP handlers. Using an interface bundle
// keeps the handler layer loosely coupled to the service package.
type Dependencies interface {
	// TrackEvent appends one validated funnel event.
	TrackEvent(ctx context.Context, accountID, funnelID, sessionID, step string, stepNumber int, at time.Time, md model.Metadata) (*model.Event, error)

	// Read operations expose analysis reports.
	StepAnalysis(ctx context.Context, accountID, funnelID string, window *model.TimeWindow) ([]analyze.StepResult, error)
	FunnelAnalysis(ctx context.Context, accountID, funnelID string, window *model.TimeWindow) (*analyze.Report, error)
	CohortAnalysis(ctx context.Context, accountID, funnelID string, window *model.TimeWindow, cohortBy string) ([]cohort.Result, error)
	SegmentAnalysis(ctx context.Context, accountID, funnelID, segmentBy string, window *model.TimeWindow) ([]segment.Result, error)

	// Materialization operations.
	CalculateMetrics(ctx context.Context, accountID, funnelID string, window model.TimeWindow) ([]model.MetricsRow, error)
	Metrics(ctx context.Context, accountID, funnelID, period string) ([]model.MetricsRow, error)
	MaterializeAll(ctx context.Context, window model.TimeWindow) (accepted, total int, err error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	analysisHandler    *AnalysisHandler
	cohortsHandler     *CohortsHandler
	segmentsHandler    *SegmentsHandler
	metricsHandler     *MetricsHandler
	materializeHandler *MaterializeHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		eventsHandler:      NewEventsHandler(deps),
		analysisHandler:    NewAnalysisHandler(deps),
		cohortsHandler:     NewCohortsHandler(deps),
		segmentsHandler:    NewSegmentsHandler(deps),
		metricsHandler:     NewMetricsHandler(deps),
		materializeHandler: NewMaterializeHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /api/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("GET /api/funnels/{funnel}/steps", MetricsMiddleware(s.analysisHandler.HandleGetSteps, "steps"))
	mux.HandleFunc("GET /api/funnels/{funnel}/analysis", MetricsMiddleware(s.analysisHandler.HandleGetAnalysis, "analysis"))
	mux.HandleFunc("GET /api/funnels/{funnel}/cohorts", MetricsMiddleware(s.cohortsHandler.HandleGetCohorts, "cohorts"))
	mux.HandleFunc("GET /api/funnels/{funnel}/segments", MetricsMiddleware(s.segmentsHandler.HandleGetSegments, "segments"))
	mux.HandleFunc("POST /api/funnels/{funnel}/metrics", MetricsMiddleware(s.metricsHandler.HandleCalculate, "metrics_calculate"))
	mux.HandleFunc("GET /api/funnels/{funnel}/metrics", MetricsMiddleware(s.metricsHandler.HandleGetMetrics, "metrics_read"))
	mux.HandleFunc("POST /api/materialize", MetricsMiddleware(s.materializeHandler.HandleMaterialize, "materialize"))
}
