package upload

import (
	"errors"
	"fmt"

	"github.com/rsilva/mediavault/internal/storage"
)

// Each failure kind the manager can produce is a distinct error type, so
// callers branch with errors.As instead of matching message strings.

// ValidationError reports malformed input: bad sizes, a disallowed content
// type, or an out-of-range chunk index. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QuotaExceededError reports that an owner has hit the cap on concurrently
// active sessions. Retryable once an existing session finishes.
type QuotaExceededError struct {
	OwnerID string
	Active  int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("owner %s has %d active upload sessions (limit %d)", e.OwnerID, e.Active, e.Limit)
}

// SessionNotFoundError reports an unknown session id. The caller must
// re-initiate.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("upload session %s not found", e.SessionID)
}

// SessionExpiredError reports a session that exists but no longer accepts
// chunks, either because it timed out or because it reached a terminal state.
type SessionExpiredError struct {
	SessionID string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("upload session %s is no longer accepting chunks", e.SessionID)
}

// HashMismatchError reports a digest disagreement, for a single chunk
// (ChunkIndex >= 0) or for the assembled file (ChunkIndex == -1).
type HashMismatchError struct {
	ChunkIndex int
	Expected   string
	Actual     string
}

func (e *HashMismatchError) Error() string {
	if e.ChunkIndex >= 0 {
		return fmt.Sprintf("chunk %d hash mismatch: declared %s, computed %s", e.ChunkIndex, e.Expected, e.Actual)
	}
	return fmt.Sprintf("file hash mismatch: declared %s, computed %s", e.Expected, e.Actual)
}

// ChunkSizeMismatchError reports a chunk whose length disagrees with the
// session's chunking scheme.
type ChunkSizeMismatchError struct {
	ChunkIndex int
	Expected   int64
	Actual     int64
}

func (e *ChunkSizeMismatchError) Error() string {
	return fmt.Sprintf("chunk %d size mismatch: expected %d bytes, got %d", e.ChunkIndex, e.Expected, e.Actual)
}

// IncompleteUploadError reports a completion attempt with chunks still
// missing. Missing is sorted so callers can resume precisely.
type IncompleteUploadError struct {
	Missing []int
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("upload incomplete: %d chunks missing %v", len(e.Missing), e.Missing)
}

// Retryable reports whether the caller may retry the failed operation as-is:
// storage I/O failures and quota rejections are transient, everything else in
// the taxonomy is not.
func Retryable(err error) bool {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		return true
	}
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr)
}
