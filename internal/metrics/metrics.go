// Package metrics exposes tool-call counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeanpaul/recall/internal/analytics"
	"github.com/jeanpaul/recall/internal/tools"
)

const namespace = "recall"

// Metrics groups all Prometheus instruments used by the service. They live
// on their own registry so several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	ToolCalls   *prometheus.CounterVec
	ToolLatency *prometheus.HistogramVec
	ToolTokens  *prometheus.CounterVec
}

// Ensure Metrics implements tools.Observer
var _ tools.Observer = (*Metrics)(nil)

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool, status and error kind.",
		}, []string{"tool", "status", "error_kind"}),
		ToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_latency_seconds",
			Help:      "Tool call latency in seconds, lock wait included.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
		}, []string{"tool"}),
		ToolTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_tokens_total",
			Help:      "Estimated tokens consumed by tool calls.",
		}, []string{"tool"}),
	}
}

// ObserveCall records one tool call.
func (m *Metrics) ObserveCall(tool string, status analytics.Status, errorKind string, latency time.Duration, tokens int) {
	// Unknown names come from callers; keep them out of the label space.
	if _, ok := tools.Lookup(tool); !ok {
		tool = analytics.UnknownTool
	}
	m.ToolCalls.WithLabelValues(tool, string(status), errorKind).Inc()
	m.ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
	m.ToolTokens.WithLabelValues(tool).Add(float64(tokens))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
