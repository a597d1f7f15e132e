package filesystem

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStorage(t *testing.T) *FilesystemStorage {
	t.Helper()

	fs, err := NewFilesystemStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStorage() error = %v", err)
	}
	return fs
}

func TestSaveAndGetChunk(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	content := bytes.Repeat([]byte{0xAB}, 1024)
	if err := fs.SaveChunk(ctx, "session-1", 0, bytes.NewReader(content), 1024); err != nil {
		t.Fatalf("SaveChunk() error = %v", err)
	}

	rc, err := fs.GetChunk(ctx, "session-1", 0)
	if err != nil {
		t.Fatalf("GetChunk() error = %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("read chunk differs from written chunk")
	}
}

func TestSaveChunkSizeMismatch(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	err := fs.SaveChunk(ctx, "session-1", 0, bytes.NewReader([]byte("short")), 1024)
	if err == nil {
		t.Fatal("SaveChunk() with short reader succeeded, want error")
	}

	// The partial file must not be left behind.
	exists, _, statErr := fs.ChunkExists(ctx, "session-1", 0)
	if statErr != nil {
		t.Fatalf("ChunkExists() error = %v", statErr)
	}
	if exists {
		t.Error("partial chunk left behind after size mismatch")
	}
}

func TestChunkExists(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	exists, _, err := fs.ChunkExists(ctx, "session-1", 0)
	if err != nil {
		t.Fatalf("ChunkExists() error = %v", err)
	}
	if exists {
		t.Error("ChunkExists() = true before any write")
	}

	if err := fs.SaveChunk(ctx, "session-1", 0, bytes.NewReader([]byte("data")), 4); err != nil {
		t.Fatalf("SaveChunk() error = %v", err)
	}

	exists, size, err := fs.ChunkExists(ctx, "session-1", 0)
	if err != nil {
		t.Fatalf("ChunkExists() error = %v", err)
	}
	if !exists || size != 4 {
		t.Errorf("ChunkExists() = (%v, %d), want (true, 4)", exists, size)
	}
}

func TestDeleteChunks(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := fs.SaveChunk(ctx, "session-1", i, bytes.NewReader([]byte("data")), 4); err != nil {
			t.Fatalf("SaveChunk(%d) error = %v", i, err)
		}
	}

	if err := fs.DeleteChunks(ctx, "session-1"); err != nil {
		t.Fatalf("DeleteChunks() error = %v", err)
	}

	if _, err := os.Stat(fs.stagingDir("session-1")); !os.IsNotExist(err) {
		t.Error("staging directory still exists after DeleteChunks")
	}

	// Deleting again is a no-op.
	if err := fs.DeleteChunks(ctx, "session-1"); err != nil {
		t.Errorf("second DeleteChunks() error = %v", err)
	}
}

func TestWriteStream(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	content := bytes.Repeat([]byte{0x42}, 4096)
	location, written, err := fs.WriteStream(ctx, "abc123.mp4", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}
	if written != int64(len(content)) {
		t.Errorf("written = %d, want %d", written, len(content))
	}

	got, err := os.ReadFile(location)
	if err != nil {
		t.Fatalf("ReadFile(%q) error = %v", location, err)
	}
	if !bytes.Equal(got, content) {
		t.Error("artifact content differs from input")
	}

	// No temp file left behind.
	if _, err := os.Stat(location + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after successful write")
	}
}

func TestWriteStreamFailureLeavesNoArtifact(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	failing := io.MultiReader(bytes.NewReader([]byte("partial")), &errReader{})
	_, _, err := fs.WriteStream(ctx, "abc123.mp4", failing)
	if err == nil {
		t.Fatal("WriteStream() with failing reader succeeded, want error")
	}

	entries, readErr := os.ReadDir(fs.BaseDir())
	if readErr != nil {
		t.Fatalf("ReadDir() error = %v", readErr)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), "abc123") {
			t.Errorf("leftover file %q after failed write", entry.Name())
		}
	}
}

func TestDeleteArtifact(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	location, _, err := fs.WriteStream(ctx, "abc123.mp4", bytes.NewReader([]byte("data")))
	if err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}

	if err := fs.Delete(ctx, "abc123.mp4"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(location); !os.IsNotExist(err) {
		t.Error("artifact still exists after Delete")
	}

	// Deleting a missing artifact is not an error.
	if err := fs.Delete(ctx, "abc123.mp4"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	keys := []string{
		"../escape.mp4",
		"/etc/passwd",
		"a/../../escape.mp4",
	}
	for _, key := range keys {
		if _, _, err := fs.WriteStream(ctx, key, bytes.NewReader([]byte("x"))); err == nil {
			t.Errorf("WriteStream(%q) succeeded, want path validation error", key)
		}
		if err := fs.Delete(ctx, key); err == nil {
			t.Errorf("Delete(%q) succeeded, want path validation error", key)
		}
	}

	badSessions := []string{"", "..", "a/b", ".." + string(filepath.Separator) + "x"}
	for _, id := range badSessions {
		if err := fs.SaveChunk(ctx, id, 0, bytes.NewReader([]byte("x")), 1); err == nil {
			t.Errorf("SaveChunk(%q) succeeded, want session ID validation error", id)
		}
	}
}

// errReader always fails, simulating a broken source mid-stream.
type errReader struct{}

func (*errReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
