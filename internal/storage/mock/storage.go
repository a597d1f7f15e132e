// Package mock provides an in-memory implementation of storage.Backend for
// testing. It keeps all data in memory and supports error injection.
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/rsilva/mediavault/internal/storage"
)

// Backend is an in-memory storage.Backend for tests.
type Backend struct {
	mu sync.RWMutex

	chunks    map[string]map[int][]byte // sessionID -> chunkIndex -> content
	artifacts map[string][]byte         // key -> content

	// Error injection for testing
	SaveChunkError    error
	GetChunkError     error
	ChunkExistsError  error
	DeleteChunksError error
	WriteStreamError  error
	DeleteError       error

	// WriteStreamFailAfter, when positive, makes WriteStream fail after
	// consuming that many bytes from the reader. Simulates mid-assembly I/O
	// failure.
	WriteStreamFailAfter int64
}

// NewBackend creates a new mock Backend.
func NewBackend() *Backend {
	return &Backend{
		chunks:    make(map[string]map[int][]byte),
		artifacts: make(map[string][]byte),
	}
}

var _ storage.Backend = (*Backend)(nil)

// SaveChunk stores a chunk in memory.
func (b *Backend) SaveChunk(ctx context.Context, sessionID string, chunkIndex int, data io.Reader, size int64) error {
	if b.SaveChunkError != nil {
		return b.SaveChunkError
	}

	content, err := io.ReadAll(data)
	if err != nil {
		return storage.NewStorageError("SaveChunk", sessionID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chunks[sessionID] == nil {
		b.chunks[sessionID] = make(map[int][]byte)
	}
	b.chunks[sessionID][chunkIndex] = content
	return nil
}

// GetChunk returns a reader for a stored chunk.
func (b *Backend) GetChunk(ctx context.Context, sessionID string, chunkIndex int) (io.ReadCloser, error) {
	if b.GetChunkError != nil {
		return nil, b.GetChunkError
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	content, ok := b.chunks[sessionID][chunkIndex]
	if !ok {
		return nil, storage.NewStorageErrorWithMessage("GetChunk", sessionID, nil, "chunk not found")
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// ChunkExists checks whether a chunk is stored.
func (b *Backend) ChunkExists(ctx context.Context, sessionID string, chunkIndex int) (bool, int64, error) {
	if b.ChunkExistsError != nil {
		return false, 0, b.ChunkExistsError
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	content, ok := b.chunks[sessionID][chunkIndex]
	if !ok {
		return false, 0, nil
	}
	return true, int64(len(content)), nil
}

// DeleteChunks removes all chunks for a session.
func (b *Backend) DeleteChunks(ctx context.Context, sessionID string) error {
	if b.DeleteChunksError != nil {
		return b.DeleteChunksError
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.chunks, sessionID)
	return nil
}

// WriteStream buffers the reader into an in-memory artifact.
func (b *Backend) WriteStream(ctx context.Context, key string, r io.Reader) (string, int64, error) {
	if b.WriteStreamError != nil {
		return "", 0, b.WriteStreamError
	}

	if b.WriteStreamFailAfter > 0 {
		// Consume a bounded prefix, then fail without storing anything, as a
		// real backend with an atomic write would.
		if _, err := io.CopyN(io.Discard, r, b.WriteStreamFailAfter); err != nil && err != io.EOF {
			return "", 0, storage.NewStorageError("WriteStream", key, err)
		}
		return "", 0, storage.NewStorageErrorWithMessage("WriteStream", key, nil, "injected write failure")
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return "", 0, storage.NewStorageError("WriteStream", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.artifacts[key] = content
	return "mock://" + key, int64(len(content)), nil
}

// Delete removes an artifact.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if b.DeleteError != nil {
		return b.DeleteError
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.artifacts, key)
	return nil
}

// Artifact returns the stored content of an artifact, for assertions.
func (b *Backend) Artifact(key string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	content, ok := b.artifacts[key]
	return content, ok
}

// Chunk returns the stored content of a chunk, for assertions.
func (b *Backend) Chunk(sessionID string, chunkIndex int) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	content, ok := b.chunks[sessionID][chunkIndex]
	return content, ok
}

// ChunkCount returns the number of chunks staged for a session.
func (b *Backend) ChunkCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.chunks[sessionID])
}

// HasStaging reports whether a session still has a staging area.
func (b *Backend) HasStaging(sessionID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.chunks[sessionID]
	return ok
}
