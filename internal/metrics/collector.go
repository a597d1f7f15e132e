package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/store"
)

// SessionMetricsCollector collects session-state gauges from the session
// store on each scrape.
type SessionMetricsCollector struct {
	sessions store.SessionStore

	activeSessions    *prometheus.Desc
	completedSessions *prometheus.Desc
}

// NewSessionMetricsCollector creates a new collector over the given store.
func NewSessionMetricsCollector(sessions store.SessionStore) *SessionMetricsCollector {
	return &SessionMetricsCollector{
		sessions: sessions,
		activeSessions: prometheus.NewDesc(
			"mediavault_upload_sessions_active",
			"Number of upload sessions currently pending or in progress",
			nil, nil,
		),
		completedSessions: prometheus.NewDesc(
			"mediavault_upload_sessions_completed",
			"Number of upload session records in the completed state",
			nil, nil,
		),
	}
}

// Describe sends metric descriptors to Prometheus
func (c *SessionMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessions
	ch <- c.completedSessions
}

// Collect fetches current counts from the store and sends them to Prometheus
func (c *SessionMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	active, err := c.sessions.Count(ctx, store.ListFilter{
		Statuses: []models.SessionStatus{models.StatusPending, models.StatusInProgress},
	})
	if err != nil {
		slog.Error("failed to count active sessions for metrics", "error", err)
		// Send zero on error to avoid scrape failure
		active = 0
	}

	completed, err := c.sessions.Count(ctx, store.ListFilter{
		Statuses: []models.SessionStatus{models.StatusCompleted},
	})
	if err != nil {
		slog.Error("failed to count completed sessions for metrics", "error", err)
		completed = 0
	}

	ch <- prometheus.MustNewConstMetric(
		c.activeSessions,
		prometheus.GaugeValue,
		float64(active),
	)

	ch <- prometheus.MustNewConstMetric(
		c.completedSessions,
		prometheus.GaugeValue,
		float64(completed),
	)
}
