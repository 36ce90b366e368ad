package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status gauge values.
const (
	StatusGaugeUninitialized = 0
	StatusGaugeGood          = 1
	StatusGaugeSlouch        = 2
)

// Manager owns every collector of the posture monitor.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Capture
	framesCaptured  prometheus.Counter
	frameReadErrors prometheus.Counter
	cameraReopens   prometheus.Counter
	cameraRunning   prometheus.Gauge

	// Frame buffer
	bufferPublishes  prometheus.Counter
	bufferOverwrites prometheus.Counter

	// Classification
	classifications       *prometheus.CounterVec
	classificationLatency prometheus.Histogram
	previewFrames         prometheus.Counter
	previewSkipped        prometheus.Counter

	// Tracking
	transitions    *prometheus.CounterVec
	currentStatus  prometheus.Gauge
	sessionSeconds *prometheus.GaugeVec
	tickLatency    prometheus.Histogram
	ticksSkipped   prometheus.Counter

	// Persistence
	persistenceWrites  prometheus.Counter
	persistenceErrors  prometheus.Counter
	persistenceLatency prometheus.Histogram
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueDrops         prometheus.Counter

	// Sinks and reports
	sinkEvents *prometheus.CounterVec
	sinkDrops  *prometheus.CounterVec
	reports    *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	processCPUPercent    prometheus.Gauge
	processRSSBytes      prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager. Without WithPrometheusRegistry the
// collectors are registered on the default Prometheus registerer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "posture",
		subsystem:        "monitor",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
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

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.framesCaptured = m.counter("frames_captured_total", "Frames acquired from the camera device")
	m.frameReadErrors = m.counter("frame_read_errors_total", "Failed camera open or read attempts")
	m.cameraReopens = m.counter("camera_reopens_total", "Times the camera device was closed and reopened")
	m.cameraRunning = m.gauge("camera_running", "1 while the capture loop is running")

	m.bufferPublishes = m.counter("buffer_publishes_total", "Frames published to the shared frame buffer")
	m.bufferOverwrites = m.counter("buffer_overwrites_total", "Frames replaced before anyone read them")

	m.classifications = m.counterVec("classifications_total",
		"Posture evaluations by outcome and resulting status", "outcome", "status")
	m.classificationLatency = m.histogram("classification_latency_milliseconds",
		"Landmark extraction plus classification latency in milliseconds")
	m.previewFrames = m.counter("preview_frames_total", "Annotated preview frames emitted")
	m.previewSkipped = m.counter("preview_skipped_total", "Preview annotations skipped while one was in flight")

	m.transitions = m.counterVec("status_transitions_total", "Posture status changes", "from", "to")
	m.currentStatus = m.gauge("current_status", "Current status: 0 uninitialized, 1 good posture, 2 slouch")
	m.sessionSeconds = m.gaugeVec("session_seconds", "Time accumulated in each status this session", "status")
	m.tickLatency = m.histogram("tick_latency_milliseconds", "Duration of one cadence evaluation in milliseconds")
	m.ticksSkipped = m.counter("ticks_skipped_total", "Cadence ticks dropped because an evaluation was in flight")

	m.persistenceWrites = m.counter("persistence_writes_total", "Transition records written to the store")
	m.persistenceErrors = m.counter("persistence_errors_total", "Transition records the store failed to write")
	m.persistenceLatency = m.histogram("persistence_latency_milliseconds", "Store insert latency in milliseconds")
	m.queueSize = m.gauge("queue_size", "Transition records waiting to be written")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the transition queue")
	m.queueDrops = m.counter("queue_drops_total", "Transition records dropped because the queue was full")

	m.sinkEvents = m.counterVec("sink_events_total", "Events delivered to sinks", "sink", "kind")
	m.sinkDrops = m.counterVec("sink_drops_total", "Events a sink dropped instead of blocking", "sink")
	m.reports = m.counterVec("reports_total", "Report and rank queries by outcome", "outcome")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Go heap allocation in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.processCPUPercent = m.gauge("process_cpu_percent", "Process CPU usage percent")
	m.processRSSBytes = m.gauge("process_rss_bytes", "Process resident set size in bytes")
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

// RecordFrameCaptured increments the captured frames counter.
func RecordFrameCaptured() { globalManager.framesCaptured.Inc() }

// RecordFrameReadError increments the camera failure counter.
func RecordFrameReadError() { globalManager.frameReadErrors.Inc() }

// RecordCameraReopen increments the camera reopen counter.
func RecordCameraReopen() { globalManager.cameraReopens.Inc() }

// UpdateCameraRunning flags whether the capture loop is alive.
func UpdateCameraRunning(running bool) {
	if running {
		globalManager.cameraRunning.Set(1)
		return
	}
	globalManager.cameraRunning.Set(0)
}

// RecordBufferPublish counts a publish and whether it replaced an unread frame.
func RecordBufferPublish(overwroteUnread bool) {
	globalManager.bufferPublishes.Inc()
	if overwroteUnread {
		globalManager.bufferOverwrites.Inc()
	}
}

// RecordClassification counts one evaluation.
func RecordClassification(outcome, status string) {
	globalManager.classifications.WithLabelValues(outcome, status).Inc()
}

// RecordClassificationLatency records evaluation latency in milliseconds.
func RecordClassificationLatency(latencyMs float64) {
	globalManager.classificationLatency.Observe(latencyMs)
}

// RecordPreviewFrame increments the preview counter.
func RecordPreviewFrame() { globalManager.previewFrames.Inc() }

// RecordPreviewSkipped increments the skipped preview counter.
func RecordPreviewSkipped() { globalManager.previewSkipped.Inc() }

// RecordTransition counts a status change.
func RecordTransition(from, to string) {
	globalManager.transitions.WithLabelValues(from, to).Inc()
}

// UpdateCurrentStatus sets the status gauge; see StatusGauge* constants.
func UpdateCurrentStatus(value int) { globalManager.currentStatus.Set(float64(value)) }

// UpdateSessionSeconds sets the accumulated seconds for a status.
func UpdateSessionSeconds(status string, seconds float64) {
	globalManager.sessionSeconds.WithLabelValues(status).Set(seconds)
}

// RecordTickLatency records cadence evaluation latency in milliseconds.
func RecordTickLatency(latencyMs float64) { globalManager.tickLatency.Observe(latencyMs) }

// RecordTickSkipped increments the skipped tick counter.
func RecordTickSkipped() { globalManager.ticksSkipped.Inc() }

// RecordPersistenceWrite counts a stored transition and its latency.
func RecordPersistenceWrite(latencyMs float64) {
	globalManager.persistenceWrites.Inc()
	globalManager.persistenceLatency.Observe(latencyMs)
}

// RecordPersistenceError counts a failed store write.
func RecordPersistenceError() { globalManager.persistenceErrors.Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueDrop counts a transition dropped by a full queue.
func RecordQueueDrop() { globalManager.queueDrops.Inc() }

// RecordSinkEvent counts an event delivered to a sink.
func RecordSinkEvent(sink, kind string) {
	globalManager.sinkEvents.WithLabelValues(sink, kind).Inc()
}

// RecordSinkDrop counts an event a sink dropped.
func RecordSinkDrop(sink string) { globalManager.sinkDrops.WithLabelValues(sink).Inc() }

// RecordReport counts a report or rank query by outcome (ok, no_data, user_not_found, error).
func RecordReport(outcome string) { globalManager.reports.WithLabelValues(outcome).Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
