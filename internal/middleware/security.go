package middleware

import (
	"net/http"
)

// SecurityHeadersMiddleware adds security-related HTTP headers to all responses
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent clickjacking: don't allow responses to be embedded in iframes
		w.Header().Set("X-Frame-Options", "DENY")

		// Prevent MIME sniffing: clients must respect the Content-Type header
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Pure JSON API: nothing should ever be loaded as a document resource
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Don't leak session ids through referrer headers
		w.Header().Set("Referrer-Policy", "same-origin")

		next.ServeHTTP(w, r)
	})
}
