package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "jpake_relay"

// Reasons a channel is removed, used as the "reason" label.
const (
	clearReasonDelete  = "delete"
	clearReasonReport  = "report"
	clearReasonMaxGets = "max_gets"
	clearReasonExpired = "expired"
)

type serverMetrics struct {
	registry *prometheus.Registry

	allocated prometheus.Counter
	cleared   *prometheus.CounterVec
	requests  *prometheus.CounterVec
	reports   *prometheus.CounterVec
	open      prometheus.Gauge
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		allocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "channels_allocated_total",
			Help:      "Number of channels allocated.",
		}),
		cleared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "channels_cleared_total",
			Help:      "Number of channels removed, by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Number of requests handled, by method and status code.",
		}, []string{"method", "code"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reports_total",
			Help:      "Number of outcome reports received, by log value.",
		}, []string{"log"}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "channels_open",
			Help:      "Number of channels currently held.",
		}),
	}
	m.registry.MustRegister(m.allocated, m.cleared, m.requests, m.reports, m.open)
	return m
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
