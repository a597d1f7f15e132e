// Package filesystem implements the storage backend on the local filesystem.
package filesystem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rsilva/mediavault/internal/storage"
)

const (
	// chunksDir is the subdirectory holding per-session chunk staging areas.
	chunksDir = ".chunks"
)

// FilesystemStorage implements storage.Backend on a local directory. Assembled
// artifacts live directly under the base directory; chunk staging areas live
// under <base>/.chunks/<session_id>/.
type FilesystemStorage struct {
	baseDir    string
	absBaseDir string // absolute path of baseDir for path validation
}

// NewFilesystemStorage creates a FilesystemStorage rooted at baseDir,
// creating it if necessary.
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, storage.NewStorageError("NewFilesystemStorage", baseDir, err)
	}

	stagingPath := filepath.Join(baseDir, chunksDir)
	if err := os.MkdirAll(stagingPath, 0755); err != nil {
		return nil, storage.NewStorageError("NewFilesystemStorage", stagingPath, err)
	}

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, storage.NewStorageError("NewFilesystemStorage", baseDir, err)
	}

	return &FilesystemStorage{
		baseDir:    baseDir,
		absBaseDir: absBaseDir,
	}, nil
}

// validateKey validates that an artifact key doesn't escape the base
// directory. Returns the safe full path.
func (fs *FilesystemStorage) validateKey(key string) (string, error) {
	cleanKey := filepath.Clean(key)

	if filepath.IsAbs(cleanKey) {
		return "", fmt.Errorf("absolute paths not allowed: %s", key)
	}

	if strings.HasPrefix(cleanKey, "..") || strings.Contains(cleanKey, string(filepath.Separator)+"..") {
		return "", fmt.Errorf("path traversal not allowed: %s", key)
	}

	fullPath := filepath.Join(fs.baseDir, cleanKey)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, fs.absBaseDir+string(filepath.Separator)) && absPath != fs.absBaseDir {
		return "", fmt.Errorf("path escape attempt: %s", key)
	}

	return fullPath, nil
}

// validateSessionID validates that a session id doesn't contain path traversal.
func (fs *FilesystemStorage) validateSessionID(sessionID string) error {
	// Session IDs should be UUIDs, but we validate defensively
	if sessionID == "" || strings.Contains(sessionID, "..") || strings.Contains(sessionID, string(filepath.Separator)) {
		return fmt.Errorf("invalid session ID: %s", sessionID)
	}
	return nil
}

func (fs *FilesystemStorage) stagingDir(sessionID string) string {
	return filepath.Join(fs.baseDir, chunksDir, sessionID)
}

func (fs *FilesystemStorage) chunkPath(sessionID string, chunkIndex int) string {
	return filepath.Join(fs.stagingDir(sessionID), fmt.Sprintf("chunk_%d", chunkIndex))
}

// SaveChunk durably writes one chunk for a session.
func (fs *FilesystemStorage) SaveChunk(ctx context.Context, sessionID string, chunkIndex int, data io.Reader, size int64) error {
	if err := fs.validateSessionID(sessionID); err != nil {
		return storage.NewStorageErrorWithMessage("SaveChunk", sessionID, err, "invalid session ID")
	}

	// Create the staging area lazily on first chunk write
	dir := fs.stagingDir(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return storage.NewStorageError("SaveChunk", sessionID, err)
	}

	chunkPath := fs.chunkPath(sessionID, chunkIndex)
	file, err := os.OpenFile(chunkPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return storage.NewStorageError("SaveChunk", chunkPath, err)
	}
	defer file.Close()

	written, err := io.Copy(file, data)
	if err != nil {
		os.Remove(chunkPath)
		return storage.NewStorageError("SaveChunk", chunkPath, err)
	}

	if size > 0 && written != size {
		os.Remove(chunkPath)
		return storage.NewStorageErrorWithMessage("SaveChunk", chunkPath, nil,
			fmt.Sprintf("size mismatch: expected %d bytes, wrote %d bytes", size, written))
	}

	// Intentionally NO file.Sync() - let OS flush asynchronously.
	// Chunks are resumable if the server crashes, so this is safe.

	slog.Debug("chunk saved",
		"session_id", sessionID,
		"chunk_index", chunkIndex,
		"size", written,
	)

	return nil
}

// GetChunk returns a reader for a stored chunk.
func (fs *FilesystemStorage) GetChunk(ctx context.Context, sessionID string, chunkIndex int) (io.ReadCloser, error) {
	if err := fs.validateSessionID(sessionID); err != nil {
		return nil, storage.NewStorageErrorWithMessage("GetChunk", sessionID, err, "invalid session ID")
	}

	chunkPath := fs.chunkPath(sessionID, chunkIndex)

	file, err := os.Open(chunkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewStorageErrorWithMessage("GetChunk", chunkPath, err, "chunk not found")
		}
		return nil, storage.NewStorageError("GetChunk", chunkPath, err)
	}

	return file, nil
}

// ChunkExists checks whether a chunk is present and returns its size.
func (fs *FilesystemStorage) ChunkExists(ctx context.Context, sessionID string, chunkIndex int) (bool, int64, error) {
	if err := fs.validateSessionID(sessionID); err != nil {
		return false, 0, storage.NewStorageErrorWithMessage("ChunkExists", sessionID, err, "invalid session ID")
	}

	chunkPath := fs.chunkPath(sessionID, chunkIndex)

	info, err := os.Stat(chunkPath)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, storage.NewStorageError("ChunkExists", chunkPath, err)
	}

	return true, info.Size(), nil
}

// DeleteChunks removes the whole staging area for a session.
func (fs *FilesystemStorage) DeleteChunks(ctx context.Context, sessionID string) error {
	if err := fs.validateSessionID(sessionID); err != nil {
		return storage.NewStorageErrorWithMessage("DeleteChunks", sessionID, err, "invalid session ID")
	}

	dir := fs.stagingDir(sessionID)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil // Already deleted
	}

	if err := os.RemoveAll(dir); err != nil {
		return storage.NewStorageError("DeleteChunks", sessionID, err)
	}

	slog.Debug("chunks deleted", "session_id", sessionID)
	return nil
}

// WriteStream streams the reader into the artifact identified by key using
// the atomic write pattern (temp file then rename).
func (fs *FilesystemStorage) WriteStream(ctx context.Context, key string, r io.Reader) (string, int64, error) {
	filePath, err := fs.validateKey(key)
	if err != nil {
		return "", 0, storage.NewStorageErrorWithMessage("WriteStream", key, err, "path validation failed")
	}
	tempPath := filePath + ".tmp"

	tempFile, err := os.Create(tempPath)
	if err != nil {
		return "", 0, storage.NewStorageError("WriteStream", key, err)
	}

	// Track success for cleanup
	var succeeded bool
	defer func() {
		tempFile.Close()
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	written, err := io.Copy(tempFile, r)
	if err != nil {
		return "", 0, storage.NewStorageError("WriteStream", key, err)
	}

	if err := tempFile.Close(); err != nil {
		return "", 0, storage.NewStorageError("WriteStream", key, err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		return "", 0, storage.NewStorageError("WriteStream", key, err)
	}

	succeeded = true
	slog.Debug("artifact written", "key", key, "size", written)

	return filePath, written, nil
}

// Delete removes an artifact. Missing artifacts are not an error.
func (fs *FilesystemStorage) Delete(ctx context.Context, key string) error {
	filePath, err := fs.validateKey(key)
	if err != nil {
		return storage.NewStorageErrorWithMessage("Delete", key, err, "path validation failed")
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return storage.NewStorageError("Delete", key, err)
	}

	slog.Debug("artifact deleted", "key", key)
	return nil
}

// BaseDir returns the base directory.
func (fs *FilesystemStorage) BaseDir() string {
	return fs.baseDir
}

var _ storage.Backend = (*FilesystemStorage)(nil)
