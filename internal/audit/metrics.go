package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks inspector metrics and serves them in Prometheus text format.
// It uses a custom prometheus.Registry for isolation and testability.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	agentLatency      *prometheus.HistogramVec
	dispatchTotal     *prometheus.CounterVec
	streamEvents      prometheus.Histogram
	activeStreams     prometheus.Gauge
	urlRejections     *prometheus.CounterVec
	rateLimitHits     prometheus.Counter
	configReloads     *prometheus.CounterVec
	configReloadTime  prometheus.Gauge
	buildInfo         *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics collector with a custom Prometheus registry.
// All metric families are pre-registered with HELP and TYPE metadata.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_http_requests_total",
			Help: "Total number of HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),

		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_operations_total",
			Help: "Total number of inspector operations, by outcome.",
		}, []string{"operation", "status"}),

		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inspector_operation_duration_seconds",
			Help:    "Inspector operation duration in seconds, admission included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		agentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inspector_agent_latency_seconds",
			Help:    "Time spent waiting on remote agents in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}, []string{"call", "generation"}),

		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_dispatch_total",
			Help: "Messages dispatched to agents, by negotiated mode and outcome.",
		}, []string{"mode", "outcome"}),

		streamEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inspector_stream_events",
			Help:    "Number of chunks consumed per streaming reply.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspector_active_streams",
			Help: "Number of streaming replies currently being consumed.",
		}),

		urlRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_url_rejections_total",
			Help: "Agent URLs rejected by admission control, by reason.",
		}, []string{"reason"}),

		rateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inspector_rate_limit_hits_total",
			Help: "Total number of requests rejected by the per-IP rate limiter.",
		}),

		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_config_reloads_total",
			Help: "Total number of configuration reloads applied.",
		}, []string{"result"}),

		configReloadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspector_config_reload_timestamp_seconds",
			Help: "Unix timestamp of the last successful configuration reload.",
		}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inspector_build_info",
			Help: "Build information about the inspector binary. Value is always 1.",
		}, []string{"version", "go_version", "client_generation"}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.operationsTotal,
		m.operationDuration,
		m.agentLatency,
		m.dispatchTotal,
		m.streamEvents,
		m.activeStreams,
		m.urlRejections,
		m.rateLimitHits,
		m.configReloads,
		m.configReloadTime,
		m.buildInfo,
	)

	return m
}

// RecordHTTPRequest counts one served request. route is the matched
// pattern, not the raw path.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// RecordOperation records the outcome and duration of one inspector operation.
func (m *Metrics) RecordOperation(operation, status string, d time.Duration) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordAgentLatency records time spent on one remote call.
// call is "card", "unary" or "streaming".
func (m *Metrics) RecordAgentLatency(call, generation string, d time.Duration) {
	m.agentLatency.WithLabelValues(call, generation).Observe(d.Seconds())
}

// RecordDispatch counts one message dispatch.
func (m *Metrics) RecordDispatch(mode string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.dispatchTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveStreamEvents records how many chunks a streaming reply produced.
func (m *Metrics) ObserveStreamEvents(n int) {
	m.streamEvents.Observe(float64(n))
}

// IncrActiveStreams increments the active stream count by one.
func (m *Metrics) IncrActiveStreams() {
	m.activeStreams.Inc()
}

// DecrActiveStreams decrements the active stream count by one.
func (m *Metrics) DecrActiveStreams() {
	m.activeStreams.Dec()
}

// RecordURLRejection counts one admission rejection.
func (m *Metrics) RecordURLRejection(reason string) {
	m.urlRejections.WithLabelValues(reason).Inc()
}

// RecordRateLimitHit counts one rate-limited request.
func (m *Metrics) RecordRateLimitHit() {
	m.rateLimitHits.Inc()
}

// RecordConfigReload records a configuration reload attempt.
// Pass true for a successful reload, false for a failure.
func (m *Metrics) RecordConfigReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetConfigReloadTime records the timestamp of the last configuration reload.
func (m *Metrics) SetConfigReloadTime(t time.Time) {
	m.configReloadTime.Set(float64(t.Unix()))
}

// SetBuildInfo sets the build information gauge. The gauge value is always 1.
func (m *Metrics) SetBuildInfo(version, goVersion, generation string) {
	m.buildInfo.WithLabelValues(version, goVersion, generation).Set(1)
}

// Handler returns an HTTP handler that serves /metrics in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
