// Package metrics exposes Prometheus instrumentation for the upload
// pipeline and HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter metrics (monotonically increasing)
var (
	// SessionsInitiated counts upload sessions created
	SessionsInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_upload_sessions_initiated_total",
			Help: "Total number of upload sessions initiated",
		},
	)

	// SessionsCompleted counts sessions that reached Completed
	SessionsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_upload_sessions_completed_total",
			Help: "Total number of upload sessions completed",
		},
	)

	// SessionsCancelled counts explicit cancellations and inactivity expiries
	SessionsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_upload_sessions_cancelled_total",
			Help: "Total number of upload sessions cancelled",
		},
	)

	// SessionsReaped counts sessions removed by the expiry sweep
	SessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_upload_sessions_reaped_total",
			Help: "Total number of expired upload sessions reaped",
		},
	)

	// ChunksReceived counts chunks durably stored (idempotent re-deliveries excluded)
	ChunksReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_upload_chunks_received_total",
			Help: "Total number of file chunks accepted and stored",
		},
	)

	// BytesReceived counts chunk payload bytes durably stored
	BytesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_upload_bytes_received_total",
			Help: "Total number of chunk payload bytes accepted",
		},
	)

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Histogram metrics (distributions)
var (
	// HTTPRequestDuration tracks HTTP request latency by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediavault_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)
)
