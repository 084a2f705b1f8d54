package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Reconciliation
	eventsReconciled    *prometheus.CounterVec
	resetsLinked        prometheus.Counter
	systemResetsSkipped prometheus.Counter
	rosterRefreshes     prometheus.Counter
	sourceFailures      *prometheus.CounterVec

	// Scoring
	nominationsScored  *prometheus.CounterVec
	nominationsSkipped *prometheus.CounterVec
	calculationLatency prometheus.Histogram
	scoreboardSize     *prometheus.GaugeVec

	// Cycle and moderator jobs
	moderatorsProcessed prometheus.Counter
	moderatorFailures   *prometheus.CounterVec
	duplicateJobs       prometheus.Counter
	cycleDuration       prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Stream
	streamMessages *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bnstats",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		enabled:          true,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.eventsReconciled = m.counterVec("events_reconciled_total", "Upstream events reconciled, by kind and outcome", "kind", "outcome")
	m.resetsLinked = m.counter("resets_linked_total", "Moderators added to a reset's affected list")
	m.systemResetsSkipped = m.counter("system_resets_skipped_total", "Resets performed by the system account and ignored")
	m.rosterRefreshes = m.counter("roster_refreshes_total", "Roster refreshes triggered")
	m.sourceFailures = m.counterVec("source_failures_total", "Upstream source failures, by source", "source")

	m.nominationsScored = m.counterVec("nominations_scored_total", "Nominations scored, by calculator", "calculator")
	m.nominationsSkipped = m.counterVec("nominations_skipped_total", "Nominations skipped during scoring, by reason", "reason")
	m.calculationLatency = m.histogram("calculation_latency_milliseconds", "Per-moderator score calculation latency")
	m.scoreboardSize = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "scoreboard_size",
		Help: "Moderators on the activity scoreboard, by calculator", ConstLabels: m.constLabels,
	}, []string{"calculator"})

	m.moderatorsProcessed = m.counter("moderators_processed_total", "Moderator jobs completed")
	m.moderatorFailures = m.counterVec("moderator_failures_total", "Moderator jobs that failed, by stage", "stage")
	m.duplicateJobs = m.counter("duplicate_jobs_total", "Moderator jobs skipped because one was already in flight")
	m.cycleDuration = m.histogram("cycle_duration_milliseconds", "Duration of a refresh cycle fan-out")

	m.queueSize = m.gauge("queue_size", "Current number of queued moderator jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the moderator job queue")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Workers in the pool")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently processing a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Job processing latency")
	m.workerErrors = m.counter("worker_errors_total", "Jobs that returned an error")

	m.streamMessages = m.counterVec("stream_messages_total", "Stream messages consumed, by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration in milliseconds", Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordEventReconciled counts one reconciled event. outcome is "created", "updated" or "skipped".
func (m *Manager) RecordEventReconciled(kind, outcome string) {
	if m.enabled {
		m.eventsReconciled.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Manager) RecordResetLinked() {
	if m.enabled {
		m.resetsLinked.Inc()
	}
}

func (m *Manager) RecordSystemResetSkipped() {
	if m.enabled {
		m.systemResetsSkipped.Inc()
	}
}

func (m *Manager) RecordRosterRefresh() {
	if m.enabled {
		m.rosterRefreshes.Inc()
	}
}

func (m *Manager) RecordSourceFailure(source string) {
	if m.enabled {
		m.sourceFailures.WithLabelValues(source).Inc()
	}
}

func (m *Manager) RecordNominationScored(calculator string) {
	if m.enabled {
		m.nominationsScored.WithLabelValues(calculator).Inc()
	}
}

func (m *Manager) RecordNominationSkipped(reason string) {
	if m.enabled {
		m.nominationsSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Manager) RecordCalculationLatency(latencyMs float64) {
	if m.enabled {
		m.calculationLatency.Observe(latencyMs)
	}
}

func (m *Manager) UpdateScoreboardSize(calculator string, size int) {
	if m.enabled {
		m.scoreboardSize.WithLabelValues(calculator).Set(float64(size))
	}
}

func (m *Manager) RecordModeratorProcessed() {
	if m.enabled {
		m.moderatorsProcessed.Inc()
	}
}

func (m *Manager) RecordModeratorFailure(stage string) {
	if m.enabled {
		m.moderatorFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Manager) RecordDuplicateJob() {
	if m.enabled {
		m.duplicateJobs.Inc()
	}
}

func (m *Manager) RecordCycleDuration(latencyMs float64) {
	if m.enabled {
		m.cycleDuration.Observe(latencyMs)
	}
}

func (m *Manager) UpdateQueueSize(size int) {
	if m.enabled {
		m.queueSize.Set(float64(size))
	}
}

func (m *Manager) UpdateQueueCapacity(capacity int) {
	if m.enabled {
		m.queueCapacity.Set(float64(capacity))
	}
}

func (m *Manager) RecordQueueEnqueue() {
	if m.enabled {
		m.queueEnqueued.Inc()
	}
}

func (m *Manager) RecordQueueDequeue() {
	if m.enabled {
		m.queueDequeued.Inc()
	}
}

func (m *Manager) RecordQueueEnqueueError() {
	if m.enabled {
		m.queueEnqueueErrors.Inc()
	}
}

func (m *Manager) UpdateWorkerCount(count int) {
	if m.enabled {
		m.workerCount.Set(float64(count))
	}
}

func (m *Manager) AddWorkerActive(delta int) {
	if m.enabled {
		m.workerActiveCount.Add(float64(delta))
	}
}

func (m *Manager) RecordWorkerProcessingLatency(latencyMs float64) {
	if m.enabled {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

func (m *Manager) RecordWorkerError() {
	if m.enabled {
		m.workerErrors.Inc()
	}
}

func (m *Manager) RecordStreamMessage(result string) {
	if m.enabled {
		m.streamMessages.WithLabelValues(result).Inc()
	}
}

func (m *Manager) RecordHTTPRequest(endpoint, method string, status int, durationMs float64) {
	if !m.enabled {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(endpoint, method, code).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, code).Observe(durationMs)
}

// Package-level recorders delegate to the global manager.

func RecordEventReconciled(kind, outcome string) { globalManager.RecordEventReconciled(kind, outcome) }
func RecordResetLinked()                         { globalManager.RecordResetLinked() }
func RecordSystemResetSkipped()                  { globalManager.RecordSystemResetSkipped() }
func RecordRosterRefresh()                       { globalManager.RecordRosterRefresh() }
func RecordSourceFailure(source string)          { globalManager.RecordSourceFailure(source) }
func RecordNominationScored(calculator string)   { globalManager.RecordNominationScored(calculator) }
func RecordNominationSkipped(reason string)      { globalManager.RecordNominationSkipped(reason) }
func RecordCalculationLatency(latencyMs float64) { globalManager.RecordCalculationLatency(latencyMs) }
func UpdateScoreboardSize(calculator string, size int) {
	globalManager.UpdateScoreboardSize(calculator, size)
}
func RecordModeratorProcessed()             { globalManager.RecordModeratorProcessed() }
func RecordModeratorFailure(stage string)   { globalManager.RecordModeratorFailure(stage) }
func RecordDuplicateJob()                   { globalManager.RecordDuplicateJob() }
func RecordCycleDuration(latencyMs float64) { globalManager.RecordCycleDuration(latencyMs) }
func UpdateQueueSize(size int)              { globalManager.UpdateQueueSize(size) }
func UpdateQueueCapacity(capacity int)      { globalManager.UpdateQueueCapacity(capacity) }
func RecordQueueEnqueue()                   { globalManager.RecordQueueEnqueue() }
func RecordQueueDequeue()                   { globalManager.RecordQueueDequeue() }
func RecordQueueEnqueueError()              { globalManager.RecordQueueEnqueueError() }
func UpdateWorkerCount(count int)           { globalManager.UpdateWorkerCount(count) }
func AddWorkerActive(delta int)             { globalManager.AddWorkerActive(delta) }
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.RecordWorkerProcessingLatency(latencyMs)
}
func RecordWorkerError()                { globalManager.RecordWorkerError() }
func RecordStreamMessage(result string) { globalManager.RecordStreamMessage(result) }
func RecordHTTPRequest(endpoint, method string, status int, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, status, durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
