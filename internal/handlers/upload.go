package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rsilva/mediavault/internal/config"
	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/upload"
)

// UploadInitHandler handles POST /api/uploads - create an upload session
func UploadInitHandler(mgr *upload.Manager, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		var req models.SessionInitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "Invalid JSON request body", "INVALID_JSON", http.StatusBadRequest)
			return
		}

		session, err := mgr.Initiate(r.Context(), upload.InitiateRequest{
			OwnerID:          ownerID(r),
			Filename:         req.Filename,
			FileSize:         req.FileSize,
			ContentType:      req.ContentType,
			ChunkSize:        req.ChunkSize,
			DeclaredFileHash: req.FileHash,
			Metadata:         req.Metadata,
		})
		if err != nil {
			sendUploadError(w, err)
			return
		}

		timeout := time.Duration(cfg.UploadSessionTimeoutMinutes) * time.Minute
		sendJSON(w, http.StatusCreated, models.SessionInitResponse{
			SessionID:   session.SessionID,
			ChunkSize:   session.ChunkSize,
			TotalChunks: session.TotalChunks,
			ExpiresAt:   session.UpdatedAt.Add(timeout),
		})
	}
}

// UploadChunkHandler handles POST /api/uploads/chunk/{session_id}/{index} -
// deliver one chunk. The raw chunk bytes are the request body; an optional
// X-Chunk-Hash header carries the client's SHA-256 digest of the chunk.
func UploadChunkHandler(mgr *upload.Manager, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/uploads/chunk/"), "/")
		if len(pathParts) != 2 {
			sendError(w, "Invalid chunk upload path", "INVALID_PATH", http.StatusBadRequest)
			return
		}

		sessionID := pathParts[0]
		if _, err := uuid.Parse(sessionID); err != nil {
			sendError(w, "Invalid session ID", "INVALID_SESSION_ID", http.StatusBadRequest)
			return
		}

		chunkIndex, err := strconv.Atoi(pathParts[1])
		if err != nil || chunkIndex < 0 {
			sendError(w, "Invalid chunk index", "INVALID_CHUNK_INDEX", http.StatusBadRequest)
			return
		}

		// Cap the body read at the configured chunk ceiling; anything larger
		// is rejected before the manager sees it.
		body := http.MaxBytesReader(w, r.Body, cfg.MaxChunkSize)
		chunk, err := io.ReadAll(body)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				sendError(w, "Chunk exceeds maximum size", "CHUNK_TOO_LARGE", http.StatusRequestEntityTooLarge)
				return
			}
			slog.Error("failed to read chunk body", "error", err, "session_id", sessionID)
			sendError(w, "Failed to read request body", "READ_FAILED", http.StatusBadRequest)
			return
		}

		session, stored, err := mgr.UploadChunk(r.Context(), sessionID, chunkIndex, chunk, r.Header.Get("X-Chunk-Hash"))
		if err != nil {
			sendUploadError(w, err)
			return
		}

		sendJSON(w, http.StatusOK, models.ChunkUploadResponse{
			SessionID:      session.SessionID,
			ChunkIndex:     chunkIndex,
			NewlyStored:    stored,
			ChunksReceived: len(session.UploadedChunks),
			TotalChunks:    session.TotalChunks,
			Progress:       session.Progress(),
		})
	}
}

// UploadCompleteHandler handles POST /api/uploads/complete/{session_id} -
// assemble and verify the file. The optional JSON body may carry a
// file_hash that overrides the one declared at initiation.
func UploadCompleteHandler(mgr *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		sessionID := strings.TrimPrefix(r.URL.Path, "/api/uploads/complete/")
		if _, err := uuid.Parse(sessionID); err != nil {
			sendError(w, "Invalid session ID", "INVALID_SESSION_ID", http.StatusBadRequest)
			return
		}

		var req struct {
			FileHash string `json:"file_hash"`
		}
		if r.Body != nil {
			// Body is optional; a decode failure on an empty body is fine.
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
				sendError(w, "Invalid JSON request body", "INVALID_JSON", http.StatusBadRequest)
				return
			}
		}

		result, err := mgr.Complete(r.Context(), sessionID, req.FileHash)
		if err != nil {
			sendUploadError(w, err)
			return
		}

		sendJSON(w, http.StatusOK, models.SessionCompleteResponse{
			SessionID: result.Session.SessionID,
			Location:  result.Location,
			FileHash:  result.FileHash,
			FileSize:  result.Session.FileSize,
		})
	}
}

// UploadStatusHandler handles GET /api/uploads/status/{session_id} - report
// progress and the missing chunk set for resumption.
func UploadStatusHandler(mgr *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		sessionID := strings.TrimPrefix(r.URL.Path, "/api/uploads/status/")
		if _, err := uuid.Parse(sessionID); err != nil {
			sendError(w, "Invalid session ID", "INVALID_SESSION_ID", http.StatusBadRequest)
			return
		}

		session, err := mgr.GetStatus(r.Context(), sessionID)
		if err != nil {
			sendUploadError(w, err)
			return
		}

		resp := models.SessionStatusResponse{
			SessionID:      session.SessionID,
			Filename:       session.Filename,
			Status:         session.Status,
			ChunksReceived: len(session.UploadedChunks),
			TotalChunks:    session.TotalChunks,
			Progress:       session.Progress(),
			UpdatedAt:      session.UpdatedAt,
			CompletedAt:    session.CompletedAt,
		}
		if session.Status.AcceptsChunks() {
			resp.MissingChunks = session.MissingChunks()
		}

		sendJSON(w, http.StatusOK, resp)
	}
}

// UploadCancelHandler handles DELETE /api/uploads/{session_id} - cancel a
// session and discard its staged chunks. Idempotent: cancelling an unknown
// or already-terminal session reports cancelled=false rather than an error.
func UploadCancelHandler(mgr *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		sessionID := strings.TrimPrefix(r.URL.Path, "/api/uploads/")
		if _, err := uuid.Parse(sessionID); err != nil {
			sendError(w, "Invalid session ID", "INVALID_SESSION_ID", http.StatusBadRequest)
			return
		}

		cancelled, err := mgr.Cancel(r.Context(), sessionID)
		if err != nil {
			sendUploadError(w, err)
			return
		}

		sendJSON(w, http.StatusOK, models.CancelResponse{
			SessionID: sessionID,
			Cancelled: cancelled,
		})
	}
}

// ownerID attributes the request to an owner: the X-Owner-ID header when the
// deployment fronts this service with its own auth, else the client IP.
func ownerID(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return owner
	}
	return getClientIP(r)
}
