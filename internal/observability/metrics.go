// Package observability holds the Prometheus metrics for the report
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters for submissions, rotation, and rate-limiter
// health.
type Metrics struct {
	ReportsCreated  prometheus.Counter
	ReportsRejected *prometheus.CounterVec // label: reason
	ReportsDeleted  *prometheus.CounterVec // label: actor={owner,admin}

	RotationRuns    *prometheus.CounterVec // label: outcome={ok,error}
	ReportsArchived prometheus.Counter

	// RateLimitDegraded counts fail-open events: the counter store was
	// unreachable and a submission proceeded unchecked.
	RateLimitDegraded prometheus.Counter
	RateLimitExceeded prometheus.Counter
}

// New creates the pipeline metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReportsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "reports_created_total",
			Help:      "Total flood reports accepted and persisted.",
		}),
		ReportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "reports_rejected_total",
			Help:      "Total submissions rejected, by reason code.",
		}, []string{"reason"}),
		ReportsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "reports_deleted_total",
			Help:      "Total reports deleted, by actor.",
		}, []string{"actor"}),
		RotationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "rotation_runs_total",
			Help:      "Total archive rotation runs, by outcome.",
		}, []string{"outcome"}),
		ReportsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "reports_archived_total",
			Help:      "Total reports moved to the archive.",
		}),
		RateLimitDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "rate_limit_degraded_total",
			Help:      "Total rate-limit checks that failed open because the counter store was unreachable.",
		}),
		RateLimitExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "rate_limit_exceeded_total",
			Help:      "Total submissions rejected for exceeding the daily quota.",
		}),
	}

	reg.MustRegister(
		m.ReportsCreated,
		m.ReportsRejected,
		m.ReportsDeleted,
		m.RotationRuns,
		m.ReportsArchived,
		m.RateLimitDegraded,
		m.RateLimitExceeded,
	)
	return m
}
