// Package metrics defines Prometheus metrics for querymesh.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querymesh_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymesh_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymesh_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	WatcherChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymesh_watcher_checks_total",
			Help: "Watcher check cycles by source and outcome (unchanged, updated, failed)",
		},
		[]string{"source_id", "outcome"},
	)

	SchemaVersionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymesh_schema_versions_recorded_total",
			Help: "New schema versions recorded per source",
		},
		[]string{"source_id"},
	)

	IntrospectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querymesh_introspection_duration_seconds",
			Help:    "Full introspection pass duration per backend kind",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymesh_classifications_total",
			Help: "Classification requests by outcome (selected, empty)",
		},
		[]string{"outcome"},
	)

	PlansBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymesh_plans_built_total",
			Help: "Query plans built by outcome (ok, invalid)",
		},
		[]string{"outcome"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querymesh_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		WatcherChecks, SchemaVersionsRecorded, IntrospectionDuration,
		ClassificationsTotal, PlansBuilt, WSConnections,
	)
}
