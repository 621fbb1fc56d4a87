// Package observability provides the metrics and tracing plumbing for the
// server: a Prometheus-backed metrics sink and an OpenTelemetry tracing
// provider with OTLP export.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the sink the dispatch core reports into.
type Metrics interface {
	RecordRequest(method string, duration time.Duration, failed bool)
	RecordToolCall(tool string, duration time.Duration, failed bool)
	SessionOpened()
	SessionClosed()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(string, time.Duration, bool)  {}
func (NoopMetrics) RecordToolCall(string, time.Duration, bool) {}
func (NoopMetrics) SessionOpened()                             {}
func (NoopMetrics) SessionClosed()                             {}

// PrometheusMetrics implements Metrics on a dedicated registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
}

// NewPrometheusMetrics creates the metric set under the given namespace.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "conduit"
	}
	reg := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "JSON-RPC requests by method and outcome.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request processing time by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool handler time by tool.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Currently connected sessions.",
		}),
	}

	reg.MustRegister(m.requests, m.requestDuration, m.toolCalls, m.toolDuration, m.activeSessions)
	return m
}

func status(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}

func (m *PrometheusMetrics) RecordRequest(method string, duration time.Duration, failed bool) {
	m.requests.WithLabelValues(method, status(failed)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordToolCall(tool string, duration time.Duration, failed bool) {
	m.toolCalls.WithLabelValues(tool, status(failed)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) SessionOpened() { m.activeSessions.Inc() }
func (m *PrometheusMetrics) SessionClosed() { m.activeSessions.Dec() }

// Handler exposes the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *PrometheusMetrics) Registry() *prometheus.Registry { return m.registry }
