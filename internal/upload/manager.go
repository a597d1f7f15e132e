// Package upload implements the chunked, resumable upload core: session
// lifecycle, chunk ingestion with validation and idempotent re-delivery,
// completion with streaming assembly and whole-file hash verification,
// cancellation, and expiry-driven cleanup.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/rsilva/mediavault/internal/integrity"
	"github.com/rsilva/mediavault/internal/metrics"
	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/storage"
	"github.com/rsilva/mediavault/internal/store"
)

// sniffLimit is how many leading bytes of chunk 0 are read for MIME
// detection. mimetype needs at most 3072.
const sniffLimit = 3072

// maxTotalChunks bounds how many chunks one session may declare. The storage
// backends key chunks by index and enforce the same bound, so a session that
// exceeded it could never be completed.
const maxTotalChunks = 100000

// Config carries the manager's operating limits.
type Config struct {
	MaxFileSize         int64
	DefaultChunkSize    int64
	MaxChunkSize        int64
	AllowedContentTypes []string
	MaxSessionsPerOwner int           // 0 = unlimited
	SessionTimeout      time.Duration // inactivity window before a session expires
}

// InitiateRequest carries the parameters for creating an upload session.
type InitiateRequest struct {
	OwnerID          string
	Filename         string
	FileSize         int64
	ContentType      string
	ChunkSize        int64 // 0 selects the configured default
	DeclaredFileHash string
	Metadata         map[string]string
}

// CompleteResult describes a successfully assembled artifact.
type CompleteResult struct {
	Session  *models.UploadSession
	Location string
	FileHash string
}

// Manager orchestrates upload sessions. All mutation of a session's record
// and staging area happens under a per-session lock; operations on different
// sessions never block each other.
type Manager struct {
	cfg       Config
	sessions  store.SessionStore
	chunks    storage.ChunkStore
	artifacts storage.ArtifactStore
	locks     *sessionLocks
	now       func() time.Time
}

// NewManager creates a Manager over the given session store and storage
// backends.
func NewManager(cfg Config, sessions store.SessionStore, chunks storage.ChunkStore, artifacts storage.ArtifactStore) *Manager {
	return &Manager{
		cfg:       cfg,
		sessions:  sessions,
		chunks:    chunks,
		artifacts: artifacts,
		locks:     newSessionLocks(),
		now:       time.Now,
	}
}

// Initiate validates the request and persists a new session in Pending.
// The chunk staging area is created lazily on the first chunk write.
func (m *Manager) Initiate(ctx context.Context, req InitiateRequest) (*models.UploadSession, error) {
	if req.OwnerID == "" {
		return nil, &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if req.Filename == "" {
		return nil, &ValidationError{Field: "filename", Reason: "required"}
	}
	if req.FileSize <= 0 {
		return nil, &ValidationError{Field: "file_size", Reason: "must be positive"}
	}
	if req.FileSize > m.cfg.MaxFileSize {
		return nil, &ValidationError{
			Field:  "file_size",
			Reason: fmt.Sprintf("exceeds maximum of %d bytes", m.cfg.MaxFileSize),
		}
	}
	if !m.contentTypeAllowed(req.ContentType) {
		return nil, &ValidationError{
			Field:  "content_type",
			Reason: fmt.Sprintf("%q is not allowed", req.ContentType),
		}
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = m.cfg.DefaultChunkSize
	}
	if chunkSize <= 0 {
		return nil, &ValidationError{Field: "chunk_size", Reason: "must be positive"}
	}
	if chunkSize > m.cfg.MaxChunkSize {
		return nil, &ValidationError{
			Field:  "chunk_size",
			Reason: fmt.Sprintf("exceeds maximum of %d bytes", m.cfg.MaxChunkSize),
		}
	}

	if req.DeclaredFileHash != "" && !integrity.Valid(req.DeclaredFileHash) {
		return nil, &ValidationError{Field: "file_hash", Reason: "not a valid hex digest"}
	}

	totalChunks := int((req.FileSize + chunkSize - 1) / chunkSize)
	if totalChunks > maxTotalChunks {
		return nil, &ValidationError{
			Field:  "chunk_size",
			Reason: fmt.Sprintf("yields %d chunks, exceeding the maximum of %d", totalChunks, maxTotalChunks),
		}
	}

	// The quota count and the insert must be serialized per owner, or
	// concurrent initiations could all observe a count under the limit.
	// Session ids are UUIDs, so the prefixed key cannot collide with one.
	release := m.locks.acquire("owner/" + req.OwnerID)
	defer release()

	if m.cfg.MaxSessionsPerOwner > 0 {
		active, err := m.sessions.Count(ctx, store.ListFilter{
			OwnerID:  req.OwnerID,
			Statuses: []models.SessionStatus{models.StatusPending, models.StatusInProgress},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to count active sessions: %w", err)
		}
		if active >= m.cfg.MaxSessionsPerOwner {
			return nil, &QuotaExceededError{
				OwnerID: req.OwnerID,
				Active:  active,
				Limit:   m.cfg.MaxSessionsPerOwner,
			}
		}
	}

	now := m.now()

	session := &models.UploadSession{
		SessionID:      uuid.New().String(),
		OwnerID:        req.OwnerID,
		Filename:       req.Filename,
		FileSize:       req.FileSize,
		ChunkSize:      chunkSize,
		TotalChunks:    totalChunks,
		ContentType:    req.ContentType,
		DeclaredHash:   strings.ToLower(req.DeclaredFileHash),
		Status:         models.StatusPending,
		UploadedChunks: []int{},
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata:       req.Metadata,
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist upload session: %w", err)
	}

	metrics.SessionsInitiated.Inc()

	slog.Info("upload session initiated",
		"session_id", session.SessionID,
		"owner_id", session.OwnerID,
		"filename", session.Filename,
		"file_size", session.FileSize,
		"chunk_size", session.ChunkSize,
		"total_chunks", session.TotalChunks,
		"content_type", session.ContentType,
	)

	return session, nil
}

// UploadChunk validates and durably stores one chunk. Re-delivery of an
// already-recorded chunk returns (session, false, nil) without touching the
// stored bytes, even if the re-sent payload differs.
func (m *Manager) UploadChunk(ctx context.Context, sessionID string, chunkIndex int, chunk []byte, chunkHash string) (*models.UploadSession, bool, error) {
	release := m.locks.acquire(sessionID)
	defer release()

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load upload session: %w", err)
	}
	if session == nil {
		return nil, false, &SessionNotFoundError{SessionID: sessionID}
	}

	// Status re-checked under the lock: a concurrent cancel wins over a
	// chunk already in flight.
	if !session.Status.AcceptsChunks() {
		return nil, false, &SessionExpiredError{SessionID: sessionID}
	}

	if m.expired(session) {
		m.expire(ctx, session)
		return nil, false, &SessionExpiredError{SessionID: sessionID}
	}

	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		return nil, false, &ValidationError{
			Field:  "chunk_index",
			Reason: fmt.Sprintf("%d outside [0, %d)", chunkIndex, session.TotalChunks),
		}
	}

	// Idempotent re-delivery: the original bytes stay authoritative.
	if session.HasChunk(chunkIndex) {
		slog.Debug("chunk already stored",
			"session_id", sessionID,
			"chunk_index", chunkIndex,
		)
		return session, false, nil
	}

	if chunkHash != "" {
		computed := integrity.HashBytes(chunk)
		if !integrity.Equal(chunkHash, computed) {
			return nil, false, &HashMismatchError{
				ChunkIndex: chunkIndex,
				Expected:   strings.ToLower(chunkHash),
				Actual:     computed,
			}
		}
	}

	expectedSize := session.ExpectedChunkSize(chunkIndex)
	if int64(len(chunk)) != expectedSize {
		return nil, false, &ChunkSizeMismatchError{
			ChunkIndex: chunkIndex,
			Expected:   expectedSize,
			Actual:     int64(len(chunk)),
		}
	}

	if err := m.chunks.SaveChunk(ctx, sessionID, chunkIndex, bytes.NewReader(chunk), expectedSize); err != nil {
		return nil, false, err
	}

	session.AddChunk(chunkIndex)
	session.Status = models.StatusInProgress
	session.UpdatedAt = m.now()

	if err := m.sessions.Update(ctx, session); err != nil {
		return nil, false, fmt.Errorf("failed to persist upload session: %w", err)
	}

	metrics.ChunksReceived.Inc()
	metrics.BytesReceived.Add(float64(len(chunk)))

	slog.Debug("chunk accepted",
		"session_id", sessionID,
		"chunk_index", chunkIndex,
		"size", len(chunk),
		"chunks_received", len(session.UploadedChunks),
		"total_chunks", session.TotalChunks,
	)

	return session, true, nil
}

// Complete verifies all chunks are present, assembles them in index order
// into the artifact store, verifies the whole-file digest when one was
// declared, and marks the session Completed. Failure at any point before the
// final transition leaves the session InProgress with its chunks intact, so
// completion can be retried.
//
// declaredHash, when non-empty, takes precedence over the hash declared at
// initiation.
func (m *Manager) Complete(ctx context.Context, sessionID string, declaredHash string) (*CompleteResult, error) {
	release := m.locks.acquire(sessionID)
	defer release()

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload session: %w", err)
	}
	if session == nil {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}

	if !session.Status.AcceptsChunks() {
		return nil, &SessionExpiredError{SessionID: sessionID}
	}

	if m.expired(session) {
		m.expire(ctx, session)
		return nil, &SessionExpiredError{SessionID: sessionID}
	}

	if declaredHash != "" && !integrity.Valid(declaredHash) {
		return nil, &ValidationError{Field: "file_hash", Reason: "not a valid hex digest"}
	}

	if missing := session.MissingChunks(); len(missing) > 0 {
		return nil, &IncompleteUploadError{Missing: missing}
	}

	expected := strings.ToLower(declaredHash)
	if expected == "" {
		expected = session.DeclaredHash
	}

	if session.TotalChunks > 0 {
		m.sniffContentType(ctx, session)
	}

	key := artifactKey(session)

	slog.Info("assembling upload",
		"session_id", sessionID,
		"total_chunks", session.TotalChunks,
		"file_size", session.FileSize,
	)

	// Hash while streaming so verification costs no second read.
	hasher := integrity.New()
	reader := &chunkSequenceReader{
		ctx:       ctx,
		chunks:    m.chunks,
		sessionID: sessionID,
		total:     session.TotalChunks,
	}
	defer reader.Close()

	location, written, err := m.artifacts.WriteStream(ctx, key, io.TeeReader(reader, hasher))
	if err != nil {
		return nil, err
	}

	if written != session.FileSize {
		if delErr := m.artifacts.Delete(ctx, key); delErr != nil {
			slog.Error("failed to delete artifact after size mismatch", "error", delErr, "session_id", sessionID)
		}
		return nil, storage.NewStorageErrorWithMessage("Complete", key, nil,
			fmt.Sprintf("assembled size mismatch: expected %d bytes, wrote %d", session.FileSize, written))
	}

	digest := integrity.Sum(hasher)

	if expected != "" && !integrity.Equal(expected, digest) {
		// Roll back the artifact but keep the chunks: the session stays
		// InProgress and assembly can be retried.
		if delErr := m.artifacts.Delete(ctx, key); delErr != nil {
			slog.Error("failed to delete artifact after hash mismatch", "error", delErr, "session_id", sessionID)
		}
		slog.Warn("file hash mismatch on completion",
			"session_id", sessionID,
			"declared", expected,
			"computed", digest,
		)
		return nil, &HashMismatchError{
			ChunkIndex: -1,
			Expected:   expected,
			Actual:     digest,
		}
	}

	now := m.now()
	session.Status = models.StatusCompleted
	session.CompletedAt = &now
	session.UpdatedAt = now

	if err := m.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist upload session: %w", err)
	}

	// Staging cleanup only after the completed record is durable; a crash
	// before this point leaves chunks intact for retry.
	if err := m.chunks.DeleteChunks(ctx, sessionID); err != nil {
		slog.Error("failed to delete chunk staging area", "error", err, "session_id", sessionID)
	}

	metrics.SessionsCompleted.Inc()

	slog.Info("upload completed",
		"session_id", sessionID,
		"filename", session.Filename,
		"file_size", session.FileSize,
		"location", location,
		"file_hash", digest,
	)

	return &CompleteResult{
		Session:  session,
		Location: location,
		FileHash: digest,
	}, nil
}

// GetStatus returns the current session record.
func (m *Manager) GetStatus(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload session: %w", err)
	}
	if session == nil {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	return session, nil
}

// Cancel moves an active session to Cancelled and deletes its staging area.
// Returns whether a cancellation actually occurred; cancelling an unknown or
// already-terminal session is a no-op, not an error.
func (m *Manager) Cancel(ctx context.Context, sessionID string) (bool, error) {
	release := m.locks.acquire(sessionID)
	defer release()

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to load upload session: %w", err)
	}
	if session == nil || !session.Status.AcceptsChunks() {
		return false, nil
	}

	session.Status = models.StatusCancelled
	session.UpdatedAt = m.now()
	if err := m.sessions.Update(ctx, session); err != nil {
		return false, fmt.Errorf("failed to persist upload session: %w", err)
	}

	if err := m.chunks.DeleteChunks(ctx, sessionID); err != nil {
		slog.Error("failed to delete chunk staging area", "error", err, "session_id", sessionID)
	}

	metrics.SessionsCancelled.Inc()

	slog.Info("upload session cancelled", "session_id", sessionID, "owner_id", session.OwnerID)
	return true, nil
}

// CleanupExpired reaps sessions abandoned past the inactivity timeout:
// each is cancelled, its staging area deleted, and its record removed.
// Safe to run concurrently with in-flight operations on other sessions.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	if m.cfg.SessionTimeout <= 0 {
		return 0, nil
	}

	cutoff := m.now().Add(-m.cfg.SessionTimeout)
	expired, err := m.sessions.List(ctx, store.ListFilter{
		Statuses:      []models.SessionStatus{models.StatusPending, models.StatusInProgress},
		UpdatedBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	reaped := 0
	for _, candidate := range expired {
		if err := m.reap(ctx, candidate.SessionID, cutoff); err != nil {
			slog.Error("failed to reap expired session", "error", err, "session_id", candidate.SessionID)
			continue
		}
		reaped++
	}

	if reaped > 0 {
		metrics.SessionsReaped.Add(float64(reaped))
		slog.Info("expired upload sessions reaped", "count", reaped)
	}

	return reaped, nil
}

// reap cancels and removes one expired session, re-checking the age
// predicate under the session lock in case a chunk arrived since listing.
func (m *Manager) reap(ctx context.Context, sessionID string, cutoff time.Time) error {
	release := m.locks.acquire(sessionID)
	defer release()

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil || !session.Status.AcceptsChunks() || !session.UpdatedAt.Before(cutoff) {
		return nil
	}

	session.Status = models.StatusCancelled
	session.UpdatedAt = m.now()
	if err := m.sessions.Update(ctx, session); err != nil {
		return err
	}

	if err := m.chunks.DeleteChunks(ctx, sessionID); err != nil {
		return err
	}

	// Expiry reaping also drops the record: nobody is polling an abandoned
	// session.
	return m.sessions.Delete(ctx, sessionID)
}

// expired reports whether the session has passed the inactivity timeout.
func (m *Manager) expired(session *models.UploadSession) bool {
	if m.cfg.SessionTimeout <= 0 {
		return false
	}
	return m.now().Sub(session.UpdatedAt) > m.cfg.SessionTimeout
}

// expire flips a timed-out session to Cancelled and deletes its staging
// area. Called with the session lock held.
func (m *Manager) expire(ctx context.Context, session *models.UploadSession) {
	session.Status = models.StatusCancelled
	session.UpdatedAt = m.now()
	if err := m.sessions.Update(ctx, session); err != nil {
		slog.Error("failed to persist expired session", "error", err, "session_id", session.SessionID)
		return
	}
	if err := m.chunks.DeleteChunks(ctx, session.SessionID); err != nil {
		slog.Error("failed to delete chunk staging area", "error", err, "session_id", session.SessionID)
	}

	slog.Info("upload session expired", "session_id", session.SessionID, "owner_id", session.OwnerID)
}

// contentTypeAllowed checks the declared type against the allow-list,
// ignoring case and any media-type parameters.
func (m *Manager) contentTypeAllowed(contentType string) bool {
	declared := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "" {
		return false
	}
	for _, allowed := range m.cfg.AllowedContentTypes {
		if declared == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// sniffContentType detects the MIME type from the head of chunk 0 and logs a
// warning when it disagrees with what the client declared. Detection is
// advisory: containers and codecs make declared types legitimately coarser
// than sniffed ones.
func (m *Manager) sniffContentType(ctx context.Context, session *models.UploadSession) {
	rc, err := m.chunks.GetChunk(ctx, session.SessionID, 0)
	if err != nil {
		slog.Debug("content sniff skipped", "error", err, "session_id", session.SessionID)
		return
	}
	defer rc.Close()

	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		slog.Debug("content sniff skipped", "error", err, "session_id", session.SessionID)
		return
	}

	detected := mimetype.Detect(head[:n])
	if !mimetype.EqualsAny(session.ContentType, detected.String()) && !detected.Is(session.ContentType) {
		slog.Warn("declared content type disagrees with detected",
			"session_id", session.SessionID,
			"declared", session.ContentType,
			"detected", detected.String(),
		)
	}
}

// artifactKey derives the artifact store key for a session, preserving the
// original extension for downstream serving.
func artifactKey(session *models.UploadSession) string {
	return session.SessionID + strings.ToLower(filepath.Ext(session.Filename))
}

// chunkSequenceReader streams chunks 0..total-1 in index order, opening one
// chunk at a time so peak memory stays bounded by the copy buffer.
type chunkSequenceReader struct {
	ctx       context.Context
	chunks    storage.ChunkStore
	sessionID string
	total     int
	next      int
	current   io.ReadCloser
}

func (r *chunkSequenceReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if r.next >= r.total {
				return 0, io.EOF
			}
			rc, err := r.chunks.GetChunk(r.ctx, r.sessionID, r.next)
			if err != nil {
				return 0, err
			}
			r.current = rc
			r.next++
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			r.current.Close()
			r.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *chunkSequenceReader) Close() error {
	if r.current != nil {
		err := r.current.Close()
		r.current = nil
		return err
	}
	return nil
}
