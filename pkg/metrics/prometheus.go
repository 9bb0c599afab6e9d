// Package metrics provides Prometheus metrics for the graft-loss evaluation engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Default millisecond buckets: model fits range from a few ms (null model)
// to minutes (large ensembles).
var defaultDurationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 300000} //nolint:gochecknoglobals // bucket layout

// Manager manages all Prometheus metrics for the evaluation engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Evaluation units (one model on one split)
	unitsCompleted *prometheus.CounterVec
	unitsFailed    *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	unitsSkipped   prometheus.Counter

	// Concordance estimator
	concordanceFallbacks *prometheus.CounterVec
	concordanceDuration  prometheus.Histogram
	concordanceUndefined prometheus.Counter

	// Run progress
	splitsTotal   prometheus.Gauge
	unitsTotal    prometheus.Gauge
	progressRatio prometheus.Gauge
	runsTotal     *prometheus.CounterVec

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerCount prometheus.Gauge
	workersBusy prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
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
		namespace:        "graftloss",
		subsystem:        "mccv",
		histogramBuckets: defaultDurationBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.unitsCompleted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("units_completed_total"),
		Help:        "Evaluation units (model x split) that produced a valid concordance",
		ConstLabels: labels,
	}, []string{"model"})

	m.unitsFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("units_failed_total"),
		Help:        "Evaluation units that failed, by model and failure kind",
		ConstLabels: labels,
	}, []string{"model", "kind"})

	m.unitDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("unit_duration_milliseconds"),
		Help:        "Wall-clock time of fit plus predict for one evaluation unit",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"model"})

	m.unitsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("units_skipped_total"),
		Help:        "Units not dispatched because a stored result already existed",
		ConstLabels: labels,
	})

	m.concordanceFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("concordance_fallbacks_total"),
		Help:        "Concordance estimator fallback transitions",
		ConstLabels: labels,
	}, []string{"from", "to"})

	m.concordanceDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("concordance_duration_milliseconds"),
		Help:        "Time spent estimating both concordance values for one unit",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.concordanceUndefined = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("concordance_undefined_total"),
		Help:        "Concordance estimates that were undefined (NaN) on degenerate input",
		ConstLabels: labels,
	})

	m.splitsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("splits_total"),
		Help:        "Number of train/test splits in the current run",
		ConstLabels: labels,
	})

	m.unitsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("units_total"),
		Help:        "Number of evaluation units in the current run",
		ConstLabels: labels,
	})

	m.progressRatio = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("run_progress_ratio"),
		Help:        "Finished units divided by total units for the current run",
		ConstLabels: labels,
	})

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("runs_total"),
		Help:        "Finished runs by outcome (complete, partial)",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("queue_size"),
		Help:        "Units waiting in the dispatch queue",
		ConstLabels: labels,
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("queue_capacity"),
		Help:        "Capacity of the dispatch queue",
		ConstLabels: labels,
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("queue_enqueue_total"),
		Help:        "Units enqueued",
		ConstLabels: labels,
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("queue_dequeue_total"),
		Help:        "Units dequeued by workers",
		ConstLabels: labels,
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("queue_enqueue_errors_total"),
		Help:        "Units rejected by the queue (closed or canceled)",
		ConstLabels: labels,
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("worker_count"),
		Help:        "Workers in the evaluation pool",
		ConstLabels: labels,
	})

	m.workersBusy = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("workers_busy"),
		Help:        "Workers currently evaluating a unit",
		ConstLabels: labels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Errors by component and type",
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_endpoint_total"),
			Help:        "HTTP errors by endpoint, method and type",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "error_type"},
	)
}

// Evaluation Unit Functions.

// RecordUnitCompleted counts a unit that produced a valid estimate.
func RecordUnitCompleted(model string) {
	if !globalManager.enabled {
		return
	}
	globalManager.unitsCompleted.WithLabelValues(model).Inc()
}

// RecordUnitFailed counts a failed unit by failure kind (fit_error, predict_error, timeout, panic).
func RecordUnitFailed(model, kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.unitsFailed.WithLabelValues(model, kind).Inc()
}

// RecordUnitDuration observes the fit+predict time of a unit.
func RecordUnitDuration(model string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.unitDuration.WithLabelValues(model).Observe(latencyMs)
}

// RecordUnitSkipped counts a unit skipped because its result was already stored.
func RecordUnitSkipped() {
	globalManager.unitsSkipped.Inc()
}

// Concordance Functions.

// RecordConcordanceFallback counts a transition between estimator tiers.
func RecordConcordanceFallback(from, to string) {
	globalManager.concordanceFallbacks.WithLabelValues(from, to).Inc()
}

// RecordConcordanceDuration observes the time spent in the estimator.
func RecordConcordanceDuration(latencyMs float64) {
	globalManager.concordanceDuration.Observe(latencyMs)
}

// RecordConcordanceUndefined counts a NaN outcome on degenerate input.
func RecordConcordanceUndefined() {
	globalManager.concordanceUndefined.Inc()
}

// Run Progress Functions.

// UpdateSplitsTotal sets the number of splits in the run.
func UpdateSplitsTotal(count int) {
	globalManager.splitsTotal.Set(float64(count))
}

// UpdateUnitsTotal sets the number of units in the run.
func UpdateUnitsTotal(count int) {
	globalManager.unitsTotal.Set(float64(count))
}

// UpdateProgress sets the finished/total ratio.
func UpdateProgress(ratio float64) {
	globalManager.progressRatio.Set(ratio)
}

// RecordRunFinished counts a finished run by outcome.
func RecordRunFinished(partial bool) {
	outcome := "complete"
	if partial {
		outcome = "partial"
	}
	globalManager.runsTotal.WithLabelValues(outcome).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the number of pool workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkersBusy adjusts the busy worker gauge by delta.
func AddWorkersBusy(delta int) {
	globalManager.workersBusy.Add(float64(delta))
}

// HTTP Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

var runtimeOnce sync.Once //nolint:gochecknoglobals // guards collector registration

// EnableRuntimeCollectors adds the Go runtime and process collectors to the
// custom registry. Safe to call more than once.
func EnableRuntimeCollectors() {
	runtimeOnce.Do(func() {
		customRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// RefreshInterval is the polling period for gauges sampled from outside the
// run loop, such as the queue length reported by the service stats.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
