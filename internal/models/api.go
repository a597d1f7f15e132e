package models

// ErrorResponse is the JSON error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// UploadIncompleteResponse is the error response for a completion attempt
// with chunks still missing, listing them so the client can resume.
type UploadIncompleteResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	MissingChunks []int  `json:"missing_chunks"`
}

// HealthResponse is the body of the /health endpoint.
type HealthResponse struct {
	Status         string   `json:"status"`
	StatusDetails  []string `json:"status_details,omitempty"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
	ActiveSessions int      `json:"active_sessions"`
}

// CancelResponse is returned for a cancellation request.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
}
