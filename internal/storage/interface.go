// Package storage defines the chunk staging and final artifact contracts the
// upload manager depends on, so the same manager logic runs against local
// disk, S3-compatible object storage, or an in-memory backend in tests.
package storage

import (
	"context"
	"io"
)

// ChunkStore is the per-session staging area for uploaded chunks. Entries are
// keyed by (session id, chunk index) and are owned exclusively by the upload
// manager for the lifetime of the session.
type ChunkStore interface {
	// SaveChunk durably writes one chunk. size, when positive, is validated
	// against the bytes actually written.
	SaveChunk(ctx context.Context, sessionID string, chunkIndex int, data io.Reader, size int64) error

	// GetChunk returns a reader for a stored chunk. The caller closes it.
	GetChunk(ctx context.Context, sessionID string, chunkIndex int) (io.ReadCloser, error)

	// ChunkExists checks whether a chunk is present and returns its size.
	ChunkExists(ctx context.Context, sessionID string, chunkIndex int) (exists bool, size int64, err error)

	// DeleteChunks removes the entire staging area for a session. Deleting a
	// staging area that does not exist is not an error.
	DeleteChunks(ctx context.Context, sessionID string) error
}

// ArtifactStore is where assembled files are written for long-term serving.
// Once WriteStream returns, ownership of the artifact passes to the serving
// layer; the manager only ever calls Delete to roll back a failed completion.
type ArtifactStore interface {
	// WriteStream streams the reader into the artifact identified by key and
	// returns its location and the number of bytes written. The write is
	// atomic: a partially-written artifact is never observable under key.
	WriteStream(ctx context.Context, key string, r io.Reader) (location string, written int64, err error)

	// Delete removes an artifact. Missing artifacts are not an error.
	Delete(ctx context.Context, key string) error
}

// Backend combines chunk staging and artifact storage. The filesystem and S3
// implementations satisfy both.
type Backend interface {
	ChunkStore
	ArtifactStore
}

// StorageError represents errors from storage operations with additional context.
type StorageError struct {
	Op      string // Operation that failed (e.g., "SaveChunk", "WriteStream")
	Path    string // Path, key, or session involved
	Err     error  // Underlying error
	Message string // Human-readable message
}

func (e *StorageError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Path != "" {
		return e.Op + " " + e.Path + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError with the given details.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// NewStorageErrorWithMessage creates a new StorageError with a custom message.
func NewStorageErrorWithMessage(op, path string, err error, message string) *StorageError {
	return &StorageError{
		Op:      op,
		Path:    path,
		Err:     err,
		Message: message,
	}
}
