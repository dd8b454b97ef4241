// ABOUTME: Prometheus metrics for sessions, heartbeats, tool calls and pipeline stages.
// ABOUTME: Each Metrics value owns its own registry so tests and gateways do not collide.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "research_gateway"

// Metrics holds all Prometheus collectors for the gateway.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive    prometheus.Gauge
	SessionsOpened    prometheus.Counter
	SessionsClosed    prometheus.Counter
	HeartbeatsSent    prometheus.Counter
	HeartbeatFailures prometheus.Counter
	UnknownSession    prometheus.Counter

	ToolCalls *prometheus.CounterVec

	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
}

// New creates a Metrics instance backed by a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of open event-stream sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "opened_total",
			Help:      "Total number of sessions created",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "closed_total",
			Help:      "Total number of sessions removed",
		}),
		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeat frames written",
		}),
		HeartbeatFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "heartbeat_failures_total",
			Help:      "Heartbeat writes that failed and stopped the session heartbeat",
		}),
		UnknownSession: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "unknown_session_total",
			Help:      "Messages posted for a session id that is not registered",
		}),

		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tools",
				Name:      "calls_total",
				Help:      "Tool invocations by tool name and outcome",
			},
			[]string{"tool", "status"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of reasoning-service calls per pipeline stage",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Failed reasoning-service calls per pipeline stage",
			},
			[]string{"stage"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
	m.SessionsActive.Dec()
}

func (m *Metrics) Heartbeat(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.HeartbeatsSent.Inc()
		return
	}
	m.HeartbeatFailures.Inc()
}

func (m *Metrics) UnknownSessionPosted() {
	if m == nil {
		return
	}
	m.UnknownSession.Inc()
}

func (m *Metrics) ToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// Stage records one reasoning-service call for the named pipeline stage.
func (m *Metrics) Stage(stage string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}
