// Package metrics provides Prometheus metrics for jobgate operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Admission metrics, all tagged by project
	LockAcquiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_lock_acquired_total",
			Help: "Total number of admitted exclusive jobs",
		},
		[]string{"project"},
	)

	LockRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_lock_rejected_total",
			Help: "Total number of exclusive jobs rejected because the project limit was reached",
		},
		[]string{"project"},
	)

	LockReleasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_lock_released_total",
			Help: "Total number of released project slots",
		},
		[]string{"project"},
	)

	LockCleanupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_lock_cleanup_total",
			Help: "Total number of stale job ids removed during admission",
		},
		[]string{"project"},
	)

	// Lock state gauges, refreshed by the stats worker
	ActiveProjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobgate_lock_active_projects",
			Help: "Number of projects currently holding at least one slot",
		},
	)

	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobgate_lock_active_jobs",
			Help: "Number of job ids currently holding a slot across all projects",
		},
	)

	// Lock store metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobgate_lock_store_op_duration_seconds",
			Help:    "Lock store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	ComputeConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_lock_compute_conflicts_total",
			Help: "Total number of optimistic compute retries caused by concurrent writers",
		},
		[]string{"backend"},
	)

	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_lock_store_errors_total",
			Help: "Total number of lock store failures absorbed by the manager",
		},
		[]string{"operation"},
	)

	LegacyMigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_lock_legacy_migrations_total",
			Help: "Total number of legacy lock records translated to the current shape",
		},
		[]string{"path"}, // "compute" or "read"
	)

	// Job oracle metrics
	OracleQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_oracle_queries_total",
			Help: "Total number of job oracle queries",
		},
		[]string{"backend", "operation"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobgate_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)

// RegisterMetrics ensures all metrics are registered with Prometheus.
// This function is idempotent and safe to call multiple times.
func RegisterMetrics() {
	// All metrics are automatically registered via promauto.
}
