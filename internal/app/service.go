// Package app provides the core business service that implements the
// dependencies required by the HTTP API: event ingestion, the analysis
// operations, and metric materialization.
package app

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/steplens/steplens/internal/adapters/jobs"
	"github.com/steplens/steplens/internal/adapters/repository"
	"github.com/steplens/steplens/internal/domain/analyze"
	"github.com/steplens/steplens/internal/domain/cohort"
	"github.com/steplens/steplens/internal/domain/materialize"
	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/segment"
	"github.com/steplens/steplens/internal/domain/session"
	"github.com/steplens/steplens/pkg/logger"
	"github.com/steplens/steplens/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultWindowDays  = 30
	defaultMaxSegments = 50
	defaultQueueSize   = 1024
)

// Service implements the funnel analytics engine. Analysis calls are
// stateless and re-entrant: every call reconstructs sessions fresh
// from the event store, so concurrent requests share no mutable state.
type Service struct {
	definitions repository.DefinitionStore
	events      repository.EventStore
	metricsRepo repository.MetricsStore

	queue *jobs.InMemoryQueue
	pool  *jobs.Pool

	windowDays  int
	maxSegments int
	workerCount int
	queueSize   int
	now         func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	// Stats counters for the /stats endpoint.
	ingested       atomic.Int64
	analysesServed atomic.Int64
	jobsEnqueued   atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDefaultWindowDays sets the window used when callers supply none.
func WithDefaultWindowDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

// WithMaxSegments caps segment analysis output size.
func WithMaxSegments(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSegments = n
		}
	}
}

// WithWorkerCount sets the number of materialization workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithQueueSize bounds the materialization job queue.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over the given stores.
func New(definitions repository.DefinitionStore, events repository.EventStore, metricsRepo repository.MetricsStore, opts ...Option) *Service {
	s := &Service{
		definitions: definitions,
		events:      events,
		metricsRepo: metricsRepo,
		windowDays:  defaultWindowDays,
		maxSegments: defaultMaxSegments,
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		now:         time.Now,
		logger:      logger.Get().Named("app"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the materialization queue and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = jobs.NewInMemoryQueue(jobs.WithCapacity(s.queueSize))
	s.pool = jobs.NewPool(s.queue, s.definitions, s.events, s.metricsRepo,
		jobs.WithWorkerCount(s.workerCount),
		jobs.WithLogger(s.logger.Named("materialize")),
	)
	s.pool.Start(poolCtx)
	s.started = true

	s.logger.Info(ctx, "service started",
		logger.Int("materialize_workers", s.workerCount),
		logger.Int("queue_size", s.queueSize))
	return nil
}

// Stop closes the queue and waits for in-flight jobs to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	_ = s.queue.Close()
	s.pool.Wait()
	s.cancel()
	s.started = false
}

// TrackEvent validates and appends one funnel event. Rejected when the
// funnel does not exist for the account, has tracking disabled, the
// step number does not match a defined step, or the metadata carries
// values outside the allowed kinds. A zero `at` stamps the event with
// the current instant; producers may supply their own timestamp for
// late delivery or backfill.
func (s *Service) TrackEvent(ctx context.Context, accountID, funnelID, sessionID, step string, stepNumber int, at time.Time, md model.Metadata) (*model.Event, error) {
	funnel, err := s.definitions.GetFunnel(ctx, funnelID, accountID)
	if err != nil {
		metrics.RecordIngestError()
		return nil, err
	}
	if !funnel.TrackingEnabled {
		metrics.RecordIngestError()
		return nil, fmt.Errorf("funnel %s: %w", funnelID, ErrTrackingDisabled)
	}
	if strings.TrimSpace(sessionID) == "" {
		metrics.RecordIngestError()
		return nil, fmt.Errorf("%w: session id is required", model.ErrInvalidInput)
	}
	def, ok := funnel.StepByOrder(stepNumber)
	if !ok {
		metrics.RecordIngestError()
		return nil, fmt.Errorf("%w: step number %d not defined for funnel %s", model.ErrInvalidInput, stepNumber, funnelID)
	}
	if step == "" {
		step = def.Name
	}
	if err := md.Validate(); err != nil {
		metrics.RecordIngestError()
		return nil, err
	}
	if at.IsZero() {
		at = s.now()
	}

	e := &model.Event{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		FunnelID:   funnelID,
		SessionID:  sessionID,
		Step:       step,
		StepNumber: stepNumber,
		Timestamp:  at.UTC(),
		Metadata:   md,
	}
	if err := s.events.AppendEvent(ctx, e); err != nil {
		metrics.RecordIngestError()
		return nil, err
	}
	s.ingested.Add(1)
	metrics.RecordEventIngested()
	return e, nil
}

// StepAnalysis computes the per-step breakdown for a funnel.
func (s *Service) StepAnalysis(ctx context.Context, accountID, funnelID string, window *model.TimeWindow) ([]analyze.StepResult, error) {
	funnel, sessions, _, err := s.reconstruct(ctx, accountID, funnelID, window)
	if err != nil {
		return nil, err
	}
	defer s.observe("step", len(sessions))()
	return analyze.Steps(funnel, sessions), nil
}

// FunnelAnalysis computes the combined funnel report. The window
// defaults to the last 30 days (configurable) ending now.
func (s *Service) FunnelAnalysis(ctx context.Context, accountID, funnelID string, window *model.TimeWindow) (*analyze.Report, error) {
	funnel, sessions, w, err := s.reconstruct(ctx, accountID, funnelID, window)
	if err != nil {
		return nil, err
	}
	defer s.observe("funnel", len(sessions))()
	steps := analyze.Steps(funnel, sessions)
	report := analyze.Funnel(funnel, sessions, steps, w)
	return &report, nil
}

// CohortAnalysis buckets sessions by entry cohort.
func (s *Service) CohortAnalysis(ctx context.Context, accountID, funnelID string, window *model.TimeWindow, cohortBy string) ([]cohort.Result, error) {
	g, err := cohort.ParseGranularity(cohortBy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	funnel, sessions, _, err := s.reconstruct(ctx, accountID, funnelID, window)
	if err != nil {
		return nil, err
	}
	defer s.observe("cohort", len(sessions))()
	return cohort.Analyze(funnel, sessions, g), nil
}

// SegmentAnalysis buckets sessions by a metadata dimension of their
// first event. Output is capped at the configured segment limit after
// sorting; the bucketing itself is exact.
func (s *Service) SegmentAnalysis(ctx context.Context, accountID, funnelID, segmentBy string, window *model.TimeWindow) ([]segment.Result, error) {
	if strings.TrimSpace(segmentBy) == "" {
		return nil, fmt.Errorf("%w: segment_by is required", model.ErrInvalidInput)
	}
	funnel, sessions, _, err := s.reconstruct(ctx, accountID, funnelID, window)
	if err != nil {
		return nil, err
	}
	defer s.observe("segment", len(sessions))()
	results, err := segment.Analyze(funnel, sessions, segmentBy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	if len(results) > s.maxSegments {
		results = results[:s.maxSegments]
	}
	return results, nil
}

// CalculateMetrics recomputes and upserts one period's per-step rows
// for a funnel. Safe to call repeatedly for the same window: the rows
// are a pure function of stored events and the upsert overwrites.
func (s *Service) CalculateMetrics(ctx context.Context, accountID, funnelID string, window model.TimeWindow) ([]model.MetricsRow, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	funnel, sessions, w, err := s.reconstruct(ctx, accountID, funnelID, &window)
	if err != nil {
		return nil, err
	}
	defer s.observe("metrics", len(sessions))()
	rows := materialize.Compute(funnel, sessions, w)
	if err := s.metricsRepo.UpsertMetrics(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Metrics returns previously materialized rows.
func (s *Service) Metrics(ctx context.Context, accountID, funnelID, period string) ([]model.MetricsRow, error) {
	// Scope check before reading rows: metrics are tenant-isolated.
	if _, err := s.definitions.GetFunnel(ctx, funnelID, accountID); err != nil {
		return nil, err
	}
	return s.metricsRepo.GetMetrics(ctx, funnelID, period)
}

// MaterializeAll enqueues one materialization job per tracking-enabled
// funnel for the window. Returns how many jobs were accepted; the pool
// drains them asynchronously. This is the hook a cron caller uses.
func (s *Service) MaterializeAll(ctx context.Context, window model.TimeWindow) (accepted, total int, err error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return 0, 0, ErrNotStarted
	}
	if err := window.Validate(); err != nil {
		return 0, 0, err
	}
	funnels, err := s.definitions.ListTracked(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, f := range funnels {
		ok := s.queue.Enqueue(ctx, jobs.Job{
			AccountID: f.AccountID,
			FunnelID:  f.ID,
			Window:    window,
		})
		if ok {
			accepted++
			s.jobsEnqueued.Add(1)
		}
	}
	return accepted, len(funnels), nil
}

// GetStats returns operational counters for the /stats endpoint.
func (s *Service) GetStats() map[string]interface{} {
	queued := 0
	if s.queue != nil {
		queued = s.queue.Len(context.Background())
	}
	return map[string]interface{}{
		"events_ingested":  s.ingested.Load(),
		"analyses_served":  s.analysesServed.Load(),
		"jobs_enqueued":    s.jobsEnqueued.Load(),
		"jobs_queued":      queued,
		"default_window_d": s.windowDays,
	}
}

// reconstruct resolves the window, fetches the window's events in one
// batch, and rebuilds the session map. Shared by every analysis path.
func (s *Service) reconstruct(ctx context.Context, accountID, funnelID string, window *model.TimeWindow) (*model.Funnel, session.Map, model.TimeWindow, error) {
	funnel, err := s.definitions.GetFunnel(ctx, funnelID, accountID)
	if err != nil {
		return nil, nil, model.TimeWindow{}, err
	}
	w, err := s.resolveWindow(window)
	if err != nil {
		return nil, nil, model.TimeWindow{}, err
	}
	events, err := s.events.QueryEvents(ctx, funnelID, w)
	if err != nil {
		return nil, nil, model.TimeWindow{}, err
	}
	return funnel, session.Reconstruct(events), w, nil
}

func (s *Service) resolveWindow(window *model.TimeWindow) (model.TimeWindow, error) {
	if window == nil {
		return model.LastNDays(s.now().UTC(), s.windowDays), nil
	}
	if err := window.Validate(); err != nil {
		return model.TimeWindow{}, err
	}
	return *window, nil
}

// observe starts an analysis timer; defer the returned func.
func (s *Service) observe(kind string, sessions int) func() {
	start := time.Now()
	return func() {
		s.analysesServed.Add(1)
		metrics.RecordAnalysis(kind, sessions, float64(time.Since(start).Milliseconds()))
	}
}
