// Package metrics exposes Prometheus instruments for the session engine.
//
// Every method is safe on a nil *Metrics, so components can take an optional
// instance without branching.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "huddle"

// Metrics owns a private registry and the engine's instruments.
type Metrics struct {
	reg *prometheus.Registry

	sessions     prometheus.Gauge
	connections  prometheus.Gauge
	created      prometheus.Counter
	removed      *prometheus.CounterVec
	matches      prometheus.Counter
	eliminations prometheus.Counter
	expansions   *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	authFailures *prometheus.CounterVec
}

// New constructs Metrics on a fresh registry that also carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions",
			Help: "Live sessions.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Open websocket connections.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_created_total",
			Help: "Sessions created.",
		}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_removed_total",
			Help: "Sessions removed, by reason.",
		}, []string{"reason"}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "matches_total",
			Help: "Matches found.",
		}),
		eliminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "eliminations_total",
			Help: "Candidates removed from a queue by unanimous rejection.",
		}),
		expansions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_expansions_total",
			Help: "Queue expansions, by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Rejected operations, by operation.",
		}, []string{"op"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "auth_failures_total",
			Help: "Failed token checks and joins, by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessions, m.connections, m.created, m.removed, m.matches,
		m.eliminations, m.expansions, m.rateLimited, m.authFailures,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) SessionRemoved(reason string) {
	if m != nil {
		m.removed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MatchFound() {
	if m != nil {
		m.matches.Inc()
	}
}

func (m *Metrics) Eliminated() {
	if m != nil {
		m.eliminations.Inc()
	}
}

func (m *Metrics) Expanded(outcome string) {
	if m != nil {
		m.expansions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RateLimited(op string) {
	if m != nil {
		m.rateLimited.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) AuthFailed(op string) {
	if m != nil {
		m.authFailures.WithLabelValues(op).Inc()
	}
}
