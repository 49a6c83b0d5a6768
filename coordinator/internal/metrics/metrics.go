// Package metrics provides the coordinator's Prometheus metrics, separate
// from the Store's own store_mutations_total/store_mutation_duration_seconds
// so that queue/worker/API health can be read independently of storage
// internals.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// Metrics holds all Prometheus metrics for the coordinator process.
type Metrics struct {
	// File/queue metrics
	FilesTotal     *prometheus.CounterVec
	FilesInFlight  prometheus.Gauge
	FileDuration   *prometheus.HistogramVec
	QueueDepth     prometheus.Gauge
	FileRetries    *prometheus.CounterVec
	FileErrors     *prometheus.CounterVec

	// Worker metrics
	WorkersTotal    prometheus.Gauge
	WorkersOnline   prometheus.Gauge
	WorkerHeartbeat *prometheus.GaugeVec
	WorkerFadeOut   *prometheus.GaugeVec

	// API metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec

	// File transfer metrics
	BytesDownloaded prometheus.Counter
	BytesUploaded   prometheus.Counter
}

// New creates and registers all Prometheus metrics (singleton, to avoid
// double registration if called more than once in-process).
func New() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = newMetrics()
	})
	return globalMetrics
}

func newMetrics() *Metrics {
	m := &Metrics{
		FilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avfarm",
				Subsystem: "files",
				Name:      "total",
				Help:      "Total number of files transitioned by terminal status.",
			},
			[]string{"status"},
		),
		FilesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "avfarm",
				Subsystem: "files",
				Name:      "in_flight",
				Help:      "Number of files currently assigned or processing.",
			},
		),
		FileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "avfarm",
				Subsystem: "files",
				Name:      "duration_seconds",
				Help:      "Wall-clock time from assignment to terminal status, in seconds.",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200},
			},
			[]string{"status"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "avfarm",
				Subsystem: "files",
				Name:      "queue_depth",
				Help:      "Number of files waiting in pending status.",
			},
		),
		FileRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avfarm",
				Subsystem: "files",
				Name:      "retries_total",
				Help:      "Total number of times a file was re-enqueued after a retryable failure.",
			},
			[]string{"reason"},
		),
		FileErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avfarm",
				Subsystem: "files",
				Name:      "errors_total",
				Help:      "Total number of file errors by classified kind.",
			},
			[]string{"error_kind"},
		),

		WorkersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "avfarm",
				Subsystem: "workers",
				Name:      "total",
				Help:      "Total number of workers ever registered.",
			},
		),
		WorkersOnline: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "avfarm",
				Subsystem: "workers",
				Name:      "online",
				Help:      "Number of workers with a heartbeat inside the liveness window.",
			},
		),
		WorkerHeartbeat: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "avfarm",
				Subsystem: "workers",
				Name:      "last_heartbeat_timestamp",
				Help:      "Timestamp of the last heartbeat received from a worker.",
			},
			[]string{"worker_id"},
		),
		WorkerFadeOut: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "avfarm",
				Subsystem: "workers",
				Name:      "fade_out",
				Help:      "1 if the worker is draining (fade_out set), 0 otherwise.",
			},
			[]string{"worker_id"},
		),

		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avfarm",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total number of API requests by route, method and status.",
			},
			[]string{"route", "method", "status"},
		),
		APILatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "avfarm",
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "API request latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"route", "method"},
		),

		BytesDownloaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "avfarm",
				Subsystem: "transfer",
				Name:      "bytes_downloaded_total",
				Help:      "Total source bytes served to workers.",
			},
		),
		BytesUploaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "avfarm",
				Subsystem: "transfer",
				Name:      "bytes_uploaded_total",
				Help:      "Total encoded bytes accepted from workers.",
			},
		),
	}

	prometheus.MustRegister(
		m.FilesTotal,
		m.FilesInFlight,
		m.FileDuration,
		m.QueueDepth,
		m.FileRetries,
		m.FileErrors,
		m.WorkersTotal,
		m.WorkersOnline,
		m.WorkerHeartbeat,
		m.WorkerFadeOut,
		m.APIRequests,
		m.APILatency,
		m.BytesDownloaded,
		m.BytesUploaded,
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFileCompleted records a file reaching its terminal status, with the
// assignment-to-terminal duration.
func (m *Metrics) RecordFileCompleted(status string, durationSeconds float64) {
	m.FilesTotal.WithLabelValues(status).Inc()
	m.FileDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordFileError records a classified error for a failed or retried file.
func (m *Metrics) RecordFileError(errorKind string) {
	m.FileErrors.WithLabelValues(errorKind).Inc()
}

// RecordFileRetry records a file being re-enqueued after a retryable failure.
func (m *Metrics) RecordFileRetry(reason string) {
	m.FileRetries.WithLabelValues(reason).Inc()
}

// SetQueueDepth sets the current pending-queue depth gauge.
func (m *Metrics) SetQueueDepth(depth float64) {
	m.QueueDepth.Set(depth)
}

// SetInFlight sets the current assigned+processing count gauge.
func (m *Metrics) SetInFlight(count float64) {
	m.FilesInFlight.Set(count)
}

// SetWorkerCounts sets the worker count gauges.
func (m *Metrics) SetWorkerCounts(total, online int) {
	m.WorkersTotal.Set(float64(total))
	m.WorkersOnline.Set(float64(online))
}

// RecordWorkerHeartbeat records a worker heartbeat's arrival time and
// fade-out state.
func (m *Metrics) RecordWorkerHeartbeat(workerID string, fadeOut bool) {
	m.WorkerHeartbeat.WithLabelValues(workerID).SetToCurrentTime()
	fadeOutValue := 0.0
	if fadeOut {
		fadeOutValue = 1.0
	}
	m.WorkerFadeOut.WithLabelValues(workerID).Set(fadeOutValue)
}

// RecordAPIRequest records one completed API request.
func (m *Metrics) RecordAPIRequest(route, method, status string, latencySeconds float64) {
	m.APIRequests.WithLabelValues(route, method, status).Inc()
	m.APILatency.WithLabelValues(route, method).Observe(latencySeconds)
}

// RecordBytesDownloaded records bytes served to a worker's download request.
func (m *Metrics) RecordBytesDownloaded(bytes int64) {
	m.BytesDownloaded.Add(float64(bytes))
}

// RecordBytesUploaded records bytes accepted from a worker's upload.
func (m *Metrics) RecordBytesUploaded(bytes int64) {
	m.BytesUploaded.Add(float64(bytes))
}
