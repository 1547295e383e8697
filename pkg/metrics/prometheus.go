// Package metrics provides Prometheus metrics for the vitals simulation service.
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

// Manager manages all Prometheus metrics for the simulation service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Simulation
	samplesGenerated  prometheus.Counter
	samplesPublished  prometheus.Counter
	publishFailures   *prometheus.CounterVec
	publishLatency    prometheus.Histogram
	cyclesCompleted   prometheus.Counter
	runsStarted       prometheus.Counter
	startFailures     *prometheus.CounterVec
	subjects          prometheus.Gauge
	simulationRunning prometheus.Gauge

	// Run state store
	runStateErrors *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "vitalstream",
		subsystem:        "simulation",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.samplesGenerated = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "samples_generated_total",
		Help:        "Total number of vitals samples generated",
		ConstLabels: constLabels,
	})

	m.samplesPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "samples_published_total",
		Help:        "Total number of samples accepted by the ingestion endpoint",
		ConstLabels: constLabels,
	})

	m.publishFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "publish_failures_total",
			Help:        "Total number of samples dropped because publication failed",
			ConstLabels: constLabels,
		},
		[]string{"backend"},
	)

	m.publishLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "publish_latency_milliseconds",
		Help:        "Latency of a single publish attempt in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.cyclesCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cycles_completed_total",
		Help:        "Total number of full passes over the subject roster",
		ConstLabels: constLabels,
	})

	m.runsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "runs_started_total",
		Help:        "Total number of simulation runs that reached the running state",
		ConstLabels: constLabels,
	})

	m.startFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "start_failures_total",
			Help:        "Total number of rejected start requests by reason",
			ConstLabels: constLabels,
		},
		[]string{"reason"},
	)

	m.subjects = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "subjects",
		Help:        "Number of subjects in the roster of the current run",
		ConstLabels: constLabels,
	})

	m.simulationRunning = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "running",
		Help:        "1 while a simulation loop is running in this process",
		ConstLabels: constLabels,
	})

	m.runStateErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "runstate_errors_total",
			Help:        "Total number of failed run state store operations",
			ConstLabels: constLabels,
		},
		[]string{"op"},
	)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "memory_usage_bytes",
		Help:        "Current heap allocation in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "goroutines",
		Help:        "Current number of goroutines",
		ConstLabels: constLabels,
	})
}

// Simulation Metrics Functions.

// RecordSampleGenerated increments the generated samples counter.
func RecordSampleGenerated() {
	if globalManager.enabled {
		globalManager.samplesGenerated.Inc()
	}
}

// RecordSamplePublished increments the published samples counter and observes latency.
func RecordSamplePublished(latencyMs float64) {
	if globalManager.enabled {
		globalManager.samplesPublished.Inc()
		globalManager.publishLatency.Observe(latencyMs)
	}
}

// RecordPublishFailure increments the failure counter for the given backend.
func RecordPublishFailure(backend string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.publishFailures.WithLabelValues(backend).Inc()
		globalManager.publishLatency.Observe(latencyMs)
	}
}

// RecordCycleCompleted increments the completed cycles counter.
func RecordCycleCompleted() {
	if globalManager.enabled {
		globalManager.cyclesCompleted.Inc()
	}
}

// RecordRunStarted increments the started runs counter.
func RecordRunStarted() {
	if globalManager.enabled {
		globalManager.runsStarted.Inc()
	}
}

// RecordStartFailure increments the start failure counter for reason.
func RecordStartFailure(reason string) {
	if globalManager.enabled {
		globalManager.startFailures.WithLabelValues(reason).Inc()
	}
}

// UpdateSubjects sets the roster size gauge.
func UpdateSubjects(count int) {
	globalManager.subjects.Set(float64(count))
}

// UpdateRunning sets the running gauge.
func UpdateRunning(running bool) {
	if running {
		globalManager.simulationRunning.Set(1)
		return
	}
	globalManager.simulationRunning.Set(0)
}

// RecordRunStateError increments the run state store error counter for op ("get" or "set").
func RecordRunStateError(op string) {
	if globalManager.enabled {
		globalManager.runStateErrors.WithLabelValues(op).Inc()
	}
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
