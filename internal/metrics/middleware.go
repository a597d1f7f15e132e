package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rsilva/mediavault/internal/middleware"
)

// Middleware instruments HTTP handlers with request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := middleware.NewStatusRecorder(w)
		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(rec.Status())

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// normalizePath replaces dynamic path segments (session ids, chunk indexes)
// with placeholders so metric label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case path == "/health":
		return "/health"
	case path == "/metrics":
		return "/metrics"
	case path == "/api/uploads":
		return "/api/uploads"

	case strings.HasPrefix(path, "/api/uploads/chunk/"):
		return "/api/uploads/chunk/:id/:index"

	case strings.HasPrefix(path, "/api/uploads/complete/"):
		return "/api/uploads/complete/:id"

	case strings.HasPrefix(path, "/api/uploads/status/"):
		return "/api/uploads/status/:id"

	case strings.HasPrefix(path, "/api/uploads/"):
		return "/api/uploads/:id"

	default:
		return "/other"
	}
}
