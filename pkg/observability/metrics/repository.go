// Package metrics provides Prometheus metrics for catalog repositories.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// RepositoryMetrics records repository operation latency, outcomes and degraded writes.
// A nil *RepositoryMetrics is valid and records nothing.
type RepositoryMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	degraded *prometheus.CounterVec
}

// NewRepositoryMetrics creates the repository collectors and registers them with reg.
// A nil reg leaves the collectors unregistered, which is convenient in tests.
func NewRepositoryMetrics(reg prometheus.Registerer) *RepositoryMetrics {
	m := &RepositoryMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_repository_operation_duration_seconds",
				Help:    "Repository operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"store", "operation"},
		),
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_repository_operations_total",
				Help: "Total number of repository operations",
			},
			[]string{"store", "operation", "status"},
		),
		degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_repository_degraded_writes_total",
				Help: "Writes issued without an entity partition key",
			},
			[]string{"store"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.duration, m.total, m.degraded)
	}
	return m
}

// Observe records one operation.
func (m *RepositoryMetrics) Observe(store, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.duration.WithLabelValues(store, operation).Observe(elapsed.Seconds())
	m.total.WithLabelValues(store, operation, status).Inc()
}

// DegradedWrite counts a write that fell back to the global partition.
func (m *RepositoryMetrics) DegradedWrite(store string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(store).Inc()
}

// Operations exposes the operation counter, mainly for assertions.
func (m *RepositoryMetrics) Operations() *prometheus.CounterVec {
	return m.total
}

// DegradedWrites exposes the degraded write counter, mainly for assertions.
func (m *RepositoryMetrics) DegradedWrites() *prometheus.CounterVec {
	return m.degraded
}
