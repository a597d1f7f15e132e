package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/upload"
)

// sendError sends a JSON error response
func sendError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := models.ErrorResponse{
		Error: message,
		Code:  code,
	}

	json.NewEncoder(w).Encode(errResp)
}

// sendJSON sends a JSON response with the given status
func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// sendUploadError maps the upload error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is treated as an internal error.
func sendUploadError(w http.ResponseWriter, err error) {
	var validationErr *upload.ValidationError
	var notFoundErr *upload.SessionNotFoundError
	var expiredErr *upload.SessionExpiredError
	var quotaErr *upload.QuotaExceededError
	var hashErr *upload.HashMismatchError
	var sizeErr *upload.ChunkSizeMismatchError
	var incompleteErr *upload.IncompleteUploadError

	switch {
	case errors.As(err, &validationErr):
		sendError(w, validationErr.Error(), "INVALID_REQUEST", http.StatusBadRequest)

	case errors.As(err, &notFoundErr):
		sendError(w, notFoundErr.Error(), "SESSION_NOT_FOUND", http.StatusNotFound)

	case errors.As(err, &expiredErr):
		sendError(w, expiredErr.Error(), "SESSION_EXPIRED", http.StatusGone)

	case errors.As(err, &quotaErr):
		sendError(w, quotaErr.Error(), "QUOTA_EXCEEDED", http.StatusTooManyRequests)

	case errors.As(err, &hashErr):
		sendError(w, hashErr.Error(), "HASH_MISMATCH", http.StatusConflict)

	case errors.As(err, &sizeErr):
		sendError(w, sizeErr.Error(), "CHUNK_SIZE_MISMATCH", http.StatusConflict)

	case errors.As(err, &incompleteErr):
		sendJSON(w, http.StatusBadRequest, models.UploadIncompleteResponse{
			Error:         incompleteErr.Error(),
			Code:          "UPLOAD_INCOMPLETE",
			MissingChunks: incompleteErr.Missing,
		})

	default:
		slog.Error("upload operation failed", "error", err)
		sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// getClientIP extracts the client IP address from the request.
// X-Forwarded-For carries a comma-separated proxy chain; the first element
// is the originating client.
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
