package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rsilva/mediavault/internal/config"
	"github.com/rsilva/mediavault/internal/integrity"
	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/storage/mock"
	"github.com/rsilva/mediavault/internal/store/memory"
	"github.com/rsilva/mediavault/internal/upload"
)

func newTestHandlers(t *testing.T) (*upload.Manager, *mock.Backend, *config.Config) {
	t.Helper()

	backend := mock.NewBackend()
	sessions := memory.NewStore()

	cfg := &config.Config{
		Port:                        "8080",
		MaxFileSize:                 1 << 20,
		DefaultChunkSize:            256,
		MaxChunkSize:                1024,
		MaxUserUploads:              5,
		UploadSessionTimeoutMinutes: 120,
		CleanupIntervalMinutes:      15,
		AllowedContentTypes:         []string{"video/mp4"},
	}

	mgr := upload.NewManager(upload.Config{
		MaxFileSize:         cfg.MaxFileSize,
		DefaultChunkSize:    cfg.DefaultChunkSize,
		MaxChunkSize:        cfg.MaxChunkSize,
		AllowedContentTypes: cfg.AllowedContentTypes,
		MaxSessionsPerOwner: cfg.MaxUserUploads,
		SessionTimeout:      time.Duration(cfg.UploadSessionTimeoutMinutes) * time.Minute,
	}, sessions, backend, backend)

	return mgr, backend, cfg
}

func initSession(t *testing.T, mgr *upload.Manager, cfg *config.Config, fileSize int64) models.SessionInitResponse {
	t.Helper()

	body, _ := json.Marshal(models.SessionInitRequest{
		Filename:    "movie.mp4",
		FileSize:    fileSize,
		ContentType: "video/mp4",
		ChunkSize:   256,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(body))
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()

	UploadInitHandler(mgr, cfg)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("init status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp models.SessionInitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode init response: %v", err)
	}
	return resp
}

func sendChunk(t *testing.T, mgr *upload.Manager, cfg *config.Config, sessionID string, index int, chunk []byte, hash string) *httptest.ResponseRecorder {
	t.Helper()

	url := fmt.Sprintf("/api/uploads/chunk/%s/%d", sessionID, index)
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(chunk))
	if hash != "" {
		req.Header.Set("X-Chunk-Hash", hash)
	}
	rec := httptest.NewRecorder()

	UploadChunkHandler(mgr, cfg)(rec, req)
	return rec
}

func TestUploadInitHandler(t *testing.T) {
	mgr, _, cfg := newTestHandlers(t)

	resp := initSession(t, mgr, cfg, 600)
	if resp.SessionID == "" {
		t.Error("empty session_id in response")
	}
	if resp.ChunkSize != 256 || resp.TotalChunks != 3 {
		t.Errorf("response = %+v, want chunk_size 256, total_chunks 3", resp)
	}
	if resp.ExpiresAt.IsZero() {
		t.Error("expires_at not set")
	}
}

func TestUploadInitHandlerErrors(t *testing.T) {
	mgr, _, cfg := newTestHandlers(t)

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
		rec := httptest.NewRecorder()
		UploadInitHandler(mgr, cfg)(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		UploadInitHandler(mgr, cfg)(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("disallowed content type", func(t *testing.T) {
		body, _ := json.Marshal(models.SessionInitRequest{
			Filename:    "tool.exe",
			FileSize:    100,
			ContentType: "application/x-msdownload",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		UploadInitHandler(mgr, cfg)(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}

		var errResp models.ErrorResponse
		json.Unmarshal(rec.Body.Bytes(), &errResp)
		if errResp.Code != "INVALID_REQUEST" {
			t.Errorf("error code = %q, want INVALID_REQUEST", errResp.Code)
		}
	})

	t.Run("quota exceeded", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			initSession(t, mgr, cfg, 600)
		}
		body, _ := json.Marshal(models.SessionInitRequest{
			Filename:    "movie.mp4",
			FileSize:    600,
			ContentType: "video/mp4",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(body))
		req.Header.Set("X-Owner-ID", "owner-1")
		rec := httptest.NewRecorder()
		UploadInitHandler(mgr, cfg)(rec, req)
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want 429", rec.Code)
		}
	})
}

func TestUploadChunkHandler(t *testing.T) {
	mgr, _, cfg := newTestHandlers(t)
	session := initSession(t, mgr, cfg, 600)

	chunk := bytes.Repeat([]byte{0xAB}, 256)
	rec := sendChunk(t, mgr, cfg, session.SessionID, 0, chunk, integrity.HashBytes(chunk))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp models.ChunkUploadResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.NewlyStored || resp.ChunksReceived != 1 || resp.TotalChunks != 3 {
		t.Errorf("response = %+v", resp)
	}

	// Re-delivery is acknowledged but not re-stored.
	rec = sendChunk(t, mgr, cfg, session.SessionID, 0, chunk, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.NewlyStored {
		t.Error("redelivery reported newly_stored = true")
	}
}

func TestUploadChunkHandlerErrors(t *testing.T) {
	mgr, _, cfg := newTestHandlers(t)
	session := initSession(t, mgr, cfg, 600)
	chunk := bytes.Repeat([]byte{0xAB}, 256)

	tests := []struct {
		name     string
		url      string
		body     []byte
		hash     string
		wantCode int
	}{
		{
			name:     "malformed session id",
			url:      "/api/uploads/chunk/not-a-uuid/0",
			body:     chunk,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown session",
			url:      "/api/uploads/chunk/b4b1f4f0-0000-0000-0000-000000000000/0",
			body:     chunk,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "negative index",
			url:      "/api/uploads/chunk/" + session.SessionID + "/-1",
			body:     chunk,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "index out of range",
			url:      "/api/uploads/chunk/" + session.SessionID + "/99",
			body:     chunk,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "hash mismatch",
			url:      "/api/uploads/chunk/" + session.SessionID + "/0",
			body:     chunk,
			hash:     integrity.HashBytes([]byte("other")),
			wantCode: http.StatusConflict,
		},
		{
			name:     "size mismatch",
			url:      "/api/uploads/chunk/" + session.SessionID + "/0",
			body:     []byte("short"),
			wantCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.url, bytes.NewReader(tt.body))
			if tt.hash != "" {
				req.Header.Set("X-Chunk-Hash", tt.hash)
			}
			rec := httptest.NewRecorder()
			UploadChunkHandler(mgr, cfg)(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestUploadCompleteHandler(t *testing.T) {
	mgr, backend, cfg := newTestHandlers(t)
	session := initSession(t, mgr, cfg, 600)

	content := make([]byte, 600)
	for i := range content {
		content[i] = byte(i % 253)
	}
	for i := 0; i < 3; i++ {
		start := i * 256
		end := start + 256
		if end > len(content) {
			end = len(content)
		}
		rec := sendChunk(t, mgr, cfg, session.SessionID, i, content[start:end], "")
		if rec.Code != http.StatusOK {
			t.Fatalf("chunk %d status = %d", i, rec.Code)
		}
	}

	body, _ := json.Marshal(map[string]string{"file_hash": integrity.HashBytes(content)})
	req := httptest.NewRequest(http.MethodPost, "/api/uploads/complete/"+session.SessionID, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	UploadCompleteHandler(mgr)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp models.SessionCompleteResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.FileHash != integrity.HashBytes(content) || resp.FileSize != 600 {
		t.Errorf("response = %+v", resp)
	}

	artifact, ok := backend.Artifact(session.SessionID + ".mp4")
	if !ok || !bytes.Equal(artifact, content) {
		t.Error("artifact missing or corrupted after completion")
	}

	// Completing a terminal session reports 410.
	req = httptest.NewRequest(http.MethodPost, "/api/uploads/complete/"+session.SessionID, nil)
	rec = httptest.NewRecorder()
	UploadCompleteHandler(mgr)(rec, req)
	if rec.Code != http.StatusGone {
		t.Errorf("second complete status = %d, want 410", rec.Code)
	}
}

func TestUploadCompleteHandlerIncomplete(t *testing.T) {
	mgr, _, cfg := newTestHandlers(t)
	session := initSession(t, mgr, cfg, 600)

	rec := sendChunk(t, mgr, cfg, session.SessionID, 1, bytes.Repeat([]byte{1}, 256), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("chunk status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/complete/"+session.SessionID, nil)
	rec = httptest.NewRecorder()
	UploadCompleteHandler(mgr)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp models.UploadIncompleteResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "UPLOAD_INCOMPLETE" {
		t.Errorf("code = %q, want UPLOAD_INCOMPLETE", resp.Code)
	}
	if len(resp.MissingChunks) != 2 || resp.MissingChunks[0] != 0 || resp.MissingChunks[1] != 2 {
		t.Errorf("missing_chunks = %v, want [0 2]", resp.MissingChunks)
	}
}

func TestUploadStatusHandler(t *testing.T) {
	mgr, _, cfg := newTestHandlers(t)
	session := initSession(t, mgr, cfg, 600)

	rec := sendChunk(t, mgr, cfg, session.SessionID, 1, bytes.Repeat([]byte{1}, 256), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("chunk status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/uploads/status/"+session.SessionID, nil)
	rec = httptest.NewRecorder()
	UploadStatusHandler(mgr)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp models.SessionStatusResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != models.StatusInProgress || resp.ChunksReceived != 1 {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.MissingChunks) != 2 {
		t.Errorf("missing_chunks = %v, want two entries", resp.MissingChunks)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/uploads/status/b4b1f4f0-0000-0000-0000-000000000000", nil)
	rec = httptest.NewRecorder()
	UploadStatusHandler(mgr)(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestUploadCancelHandler(t *testing.T) {
	mgr, backend, cfg := newTestHandlers(t)
	session := initSession(t, mgr, cfg, 600)

	rec := sendChunk(t, mgr, cfg, session.SessionID, 0, bytes.Repeat([]byte{1}, 256), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("chunk status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/uploads/"+session.SessionID, nil)
	rec = httptest.NewRecorder()
	UploadCancelHandler(mgr)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	var resp models.CancelResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Cancelled {
		t.Error("cancelled = false, want true")
	}
	if backend.HasStaging(session.SessionID) {
		t.Error("staging survived cancellation")
	}

	// Second cancel is a no-op.
	req = httptest.NewRequest(http.MethodDelete, "/api/uploads/"+session.SessionID, nil)
	rec = httptest.NewRecorder()
	UploadCancelHandler(mgr)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second cancel status = %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Cancelled {
		t.Error("second cancel reported cancelled = true")
	}
}
