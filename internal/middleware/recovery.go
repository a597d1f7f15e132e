package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/rsilva/mediavault/internal/models"
)

// RecoveryMiddleware converts a handler panic into the standard JSON error
// envelope, so a fault mid-chunk never drops the connection without a
// response the client can act on.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				attrs := []any{
					"error", v,
					"method", r.Method,
					"path", r.URL.Path,
					"ip", getClientIP(r),
					"stack", string(debug.Stack()),
				}
				if id := sessionIDFromPath(r.URL.Path); id != "" {
					attrs = append(attrs, "session_id", id)
				}
				slog.Error("panic recovered", attrs...)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(models.ErrorResponse{
					Error: "Internal server error",
					Code:  "INTERNAL_ERROR",
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
