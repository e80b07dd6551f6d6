// internal/utils/metrics.go
package utils

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns the orchestrator's prometheus collectors on a private registry
type MetricsCollector struct {
	registry *prometheus.Registry

	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec

	backendRequests        *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec

	streamChunks   *prometheus.CounterVec
	streamsActive  prometheus.Gauge
	jobsSubmitted  prometheus.Counter
	jobsTerminal   *prometheus.CounterVec
	pollTicks      *prometheus.CounterVec
	resolveResults *prometheus.CounterVec
	tasksActive    *prometheus.GaugeVec
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
		globalMetrics.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return globalMetrics
}

// NewMetricsCollector builds a collector with its own registry
func NewMetricsCollector() *MetricsCollector {
	m := &MetricsCollector{
		registry: prometheus.NewRegistry(),

		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_api_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "composer_api_request_duration_seconds",
				Help:    "HTTP API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_backend_requests_total",
				Help: "Requests sent to the generation backend",
			},
			[]string{"endpoint", "outcome"},
		),
		backendRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "composer_backend_request_duration_seconds",
				Help:    "Generation backend request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"endpoint"},
		),

		streamChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_stream_chunks_total",
				Help: "Text chunks consumed from streaming endpoints",
			},
			[]string{"target"},
		),
		streamsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "composer_streams_active",
				Help: "Streams currently being consumed",
			},
		),
		jobsSubmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "composer_jobs_submitted_total",
				Help: "Video render jobs accepted by the backend",
			},
		),
		jobsTerminal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_jobs_terminal_total",
				Help: "Video render jobs that reached a terminal phase",
			},
			[]string{"phase"},
		),
		pollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_poll_ticks_total",
				Help: "Job status polls by outcome",
			},
			[]string{"outcome"},
		),
		resolveResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_media_resolve_total",
				Help: "Media resolutions by source",
			},
			[]string{"source"},
		),
		tasksActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "composer_generation_tasks_active",
				Help: "In-flight media generation tasks",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.apiRequests,
		m.apiRequestDuration,
		m.backendRequests,
		m.backendRequestDuration,
		m.streamChunks,
		m.streamsActive,
		m.jobsSubmitted,
		m.jobsTerminal,
		m.pollTicks,
		m.resolveResults,
		m.tasksActive,
	)
	return m
}

// Registry exposes the underlying registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordAPIRequest records one HTTP API request
func (m *MetricsCollector) RecordAPIRequest(method, path string, statusCode int, duration time.Duration) {
	m.apiRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.apiRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBackendRequest records one backend call. outcome is "ok" or "error".
func (m *MetricsCollector) RecordBackendRequest(endpoint string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.backendRequests.WithLabelValues(endpoint, outcome).Inc()
	m.backendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordStreamChunk counts one chunk delivered into target
func (m *MetricsCollector) RecordStreamChunk(target string) {
	m.streamChunks.WithLabelValues(target).Inc()
}

// StreamStarted / StreamFinished track active streams
func (m *MetricsCollector) StreamStarted()  { m.streamsActive.Inc() }
func (m *MetricsCollector) StreamFinished() { m.streamsActive.Dec() }

// RecordJobSubmitted counts an accepted render job
func (m *MetricsCollector) RecordJobSubmitted() {
	m.jobsSubmitted.Inc()
}

// RecordJobTerminal counts a job reaching completed or failed
func (m *MetricsCollector) RecordJobTerminal(phase string) {
	m.jobsTerminal.WithLabelValues(phase).Inc()
}

// RecordPollTick counts a poll by outcome: "ok", "error" or "stale"
func (m *MetricsCollector) RecordPollTick(outcome string) {
	m.pollTicks.WithLabelValues(outcome).Inc()
}

// RecordResolve counts a media resolution by source
func (m *MetricsCollector) RecordResolve(source string) {
	m.resolveResults.WithLabelValues(source).Inc()
}

// TaskStarted / TaskFinished track in-flight generation tasks per kind
func (m *MetricsCollector) TaskStarted(kind string)  { m.tasksActive.WithLabelValues(kind).Inc() }
func (m *MetricsCollector) TaskFinished(kind string) { m.tasksActive.WithLabelValues(kind).Dec() }
