// Package metrics exposes Prometheus collectors for tool dispatch, monitoring
// sessions and alerts.
//
// Every Metrics method is safe to call on a nil receiver so components can be
// built without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "testops"

// Outcome labels for tool calls
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// Metrics owns a private registry and the collectors registered on it
type Metrics struct {
	registry *prometheus.Registry

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	sessions         *prometheus.GaugeVec
	alertsTriggered  *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls dispatched, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Time spent in tool handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring_sessions",
			Help:      "Monitoring sessions currently held, by status.",
		}, []string{"status"}),
		alertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Alert rules that matched, by rule type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.toolCalls,
		m.toolCallDuration,
		m.sessions,
		m.alertsTriggered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveToolCall records one dispatched call
func (m *Metrics) ObserveToolCall(tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// SessionTransition moves one session between status gauges. An empty from
// means the session is new; an empty to means it was dropped.
func (m *Metrics) SessionTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.sessions.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.sessions.WithLabelValues(to).Inc()
	}
}

// AlertTriggered counts one matched alert rule
func (m *Metrics) AlertTriggered(alertType string) {
	if m == nil {
		return
	}
	m.alertsTriggered.WithLabelValues(alertType).Inc()
}
