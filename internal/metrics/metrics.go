// Package metrics holds the Prometheus collectors for the guard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sqlguard"

// Metrics is a set of collectors registered on their own registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	guardDecisions *prometheus.CounterVec
	auditEntries   *prometheus.CounterVec
	adminToggles   *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		guardDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_decisions_total",
				Help:      "Guard verdicts by deciding rule",
			},
			[]string{"rule", "allowed"},
		),
		auditEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_entries_total",
				Help:      "Audit entries recorded by status",
			},
			[]string{"status"},
		),
		adminToggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_toggles_total",
				Help:      "Permission toggle attempts by result",
			},
			[]string{"result"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Time spent executing allowed statements",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}

	m.registry.MustRegister(
		m.guardDecisions,
		m.auditEntries,
		m.adminToggles,
		m.queryDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GuardDecision counts one verdict. rule is empty for allowed statements.
func (m *Metrics) GuardDecision(rule string, allowed bool) {
	if m == nil {
		return
	}
	if rule == "" {
		rule = "none"
	}
	m.guardDecisions.WithLabelValues(rule, strconv.FormatBool(allowed)).Inc()
}

// AuditEntry counts one recorded audit entry.
func (m *Metrics) AuditEntry(status string) {
	if m == nil {
		return
	}
	m.auditEntries.WithLabelValues(status).Inc()
}

// AdminToggle counts one toggle attempt: ok, invalid, not_found or error.
func (m *Metrics) AdminToggle(result string) {
	if m == nil {
		return
	}
	m.adminToggles.WithLabelValues(result).Inc()
}

// ObserveQuery records how long an allowed statement took to execute.
func (m *Metrics) ObserveQuery(tool string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(tool).Observe(d.Seconds())
}
