package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// LoggingMiddleware emits one line per request. Upload traffic is dominated
// by chunk POSTs, so the line carries the request body size and, when the
// path addresses a session, its id, matching the fields the upload manager
// logs for the same operation.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := NewStatusRecorder(w)
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status(),
			"duration", time.Since(start),
			"bytes_out", rec.BytesWritten(),
			"ip", getClientIP(r),
		}
		if r.ContentLength > 0 {
			attrs = append(attrs, "bytes_in", r.ContentLength)
		}
		if id := sessionIDFromPath(r.URL.Path); id != "" {
			attrs = append(attrs, "session_id", id)
		}

		slog.Info("http request", attrs...)
	})
}

// sessionIDFromPath extracts the session id segment from an upload API path,
// or "" when the path does not address a session.
func sessionIDFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/uploads/")
	if !ok || rest == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(rest, "chunk/"):
		rest = strings.TrimPrefix(rest, "chunk/")
	case strings.HasPrefix(rest, "complete/"):
		rest = strings.TrimPrefix(rest, "complete/")
	case strings.HasPrefix(rest, "status/"):
		rest = strings.TrimPrefix(rest, "status/")
	}

	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
