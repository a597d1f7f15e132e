package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/store"
)

// healthCheckTimeout bounds the store round-trip so a stuck database cannot
// hang the probe.
const healthCheckTimeout = 5 * time.Second

// setHealthCacheHeaders sets appropriate cache-control headers for health
// endpoints. Probe responses must never be cached.
func setHealthCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// HealthHandler handles GET /health - reports process uptime and session
// store reachability.
func HealthHandler(sessions store.SessionStore, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			setHealthCacheHeaders(w)
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		response := models.HealthResponse{
			Status:        "healthy",
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
		}
		httpCode := http.StatusOK

		active, err := sessions.Count(ctx, store.ListFilter{
			Statuses: []models.SessionStatus{models.StatusPending, models.StatusInProgress},
		})
		if err != nil {
			slog.Error("health check failed: session store unreachable", "error", err)
			response.Status = "unhealthy"
			response.StatusDetails = []string{"session store unreachable"}
			httpCode = http.StatusServiceUnavailable
		} else {
			response.ActiveSessions = active
		}

		setHealthCacheHeaders(w)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpCode)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			slog.Error("failed to encode health response", "error", err)
		}
	}
}
