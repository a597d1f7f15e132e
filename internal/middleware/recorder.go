package middleware

import "net/http"

// StatusRecorder wraps http.ResponseWriter so middleware can observe the
// status code and response size after the handler has run. A handler that
// writes a body without calling WriteHeader is reported as 200, matching
// net/http.
type StatusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int64
}

// NewStatusRecorder wraps w for observation.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *StatusRecorder) WriteHeader(status int) {
	if rec.wroteHeader {
		return
	}
	rec.status = status
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *StatusRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// Status returns the status code sent to the client.
func (rec *StatusRecorder) Status() int {
	return rec.status
}

// BytesWritten returns the number of response body bytes written so far.
func (rec *StatusRecorder) BytesWritten() int64 {
	return rec.bytes
}
