// Package metrics provides Prometheus metrics for the funnel analytics service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Ingestion
	eventsIngested prometheus.Counter
	ingestErrors   prometheus.Counter

	// Analysis
	analysisRequests      *prometheus.CounterVec
	analysisDuration      *prometheus.HistogramVec
	sessionsReconstructed prometheus.Histogram

	// Materialization
	materializeRuns    prometheus.Counter
	materializeErrors  prometheus.Counter
	materializeLatency prometheus.Histogram
	metricRowsUpserted prometheus.Counter

	// Job queue and workers
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueues    prometheus.Counter
	queueDequeues    prometheus.Counter
	queueEnqueueErrs prometheus.Counter
	workerCount      prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "steplens",
		subsystem:        "funnel",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_ingested_total",
		Help:      "Total number of funnel events accepted by trackEvent",
	})
	m.ingestErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_errors_total",
		Help:      "Total number of rejected trackEvent calls",
	})

	m.analysisRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analysis_requests_total",
		Help:      "Analysis computations by kind (step, funnel, cohort, segment, metrics)",
	}, []string{"kind"})
	m.analysisDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analysis_duration_milliseconds",
		Help:      "Histogram of analysis computation latency by kind",
		Buckets:   m.histogramBuckets,
	}, []string{"kind"})
	m.sessionsReconstructed = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_reconstructed",
		Help:      "Histogram of session counts reconstructed per analysis window",
		Buckets:   []float64{1, 10, 100, 1000, 10000, 100000},
	})

	m.materializeRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "materialize_runs_total",
		Help:      "Total number of metric materialization runs",
	})
	m.materializeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "materialize_errors_total",
		Help:      "Total number of failed materialization runs",
	})
	m.materializeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "materialize_latency_milliseconds",
		Help:      "Histogram of materialization run latency",
		Buckets:   m.histogramBuckets,
	})
	m.metricRowsUpserted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "metric_rows_upserted_total",
		Help:      "Total number of materialized metric rows written",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_queue_size",
		Help:      "Current number of queued materialization jobs",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_queue_capacity",
		Help:      "Configured capacity of the materialization job queue",
	})
	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_queue_utilization",
		Help:      "Queue fill ratio between 0 and 1",
	})
	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_queue_enqueues_total",
		Help:      "Total jobs accepted onto the queue",
	})
	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_queue_dequeues_total",
		Help:      "Total jobs handed to workers",
	})
	m.queueEnqueueErrs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_queue_enqueue_errors_total",
		Help:      "Total jobs rejected by the queue (full or closed)",
	})
	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of running materialization workers",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method, and status code",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request latency",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
}

// GetRegistry returns the custom registry used for exposition.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RecordEventIngested increments the accepted-events counter.
func RecordEventIngested() { globalManager.eventsIngested.Inc() }

// RecordIngestError increments the rejected-events counter.
func RecordIngestError() { globalManager.ingestErrors.Inc() }

// RecordAnalysis records one analysis computation of the given kind.
func RecordAnalysis(kind string, sessionCount int, durationMs float64) {
	globalManager.analysisRequests.WithLabelValues(kind).Inc()
	globalManager.analysisDuration.WithLabelValues(kind).Observe(durationMs)
	globalManager.sessionsReconstructed.Observe(float64(sessionCount))
}

// RecordMaterializeRun records one materialization run outcome.
func RecordMaterializeRun(rows int, durationMs float64, err error) {
	globalManager.materializeRuns.Inc()
	globalManager.materializeLatency.Observe(durationMs)
	if err != nil {
		globalManager.materializeErrors.Inc()
		return
	}
	globalManager.metricRowsUpserted.Add(float64(rows))
}

// UpdateQueueSize sets the current queue depth gauge.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the configured capacity gauge.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the fill-ratio gauge.
func UpdateQueueUtilization(u float64) { globalManager.queueUtilization.Set(u) }

// RecordQueueEnqueue counts one accepted job.
func RecordQueueEnqueue() { globalManager.queueEnqueues.Inc() }

// RecordQueueDequeue counts one job handed to a worker.
func RecordQueueDequeue() { globalManager.queueDequeues.Inc() }

// RecordQueueEnqueueError counts one rejected job.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrs.Inc() }

// UpdateWorkerCount sets the running-workers gauge.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration observes one HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, status string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}
