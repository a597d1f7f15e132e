package middleware

import (
	"net/http"
	"strings"
)

// getClientIP extracts the client IP address, respecting common reverse
// proxy headers. X-Forwarded-For carries a comma-separated proxy chain; the
// first element is the originating client.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
