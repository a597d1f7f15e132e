package upload

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rsilva/mediavault/internal/storage"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "storage error",
			err:  storage.NewStorageError("SaveChunk", "abc", errors.New("disk full")),
			want: true,
		},
		{
			name: "wrapped storage error",
			err:  fmt.Errorf("saving chunk: %w", storage.NewStorageError("SaveChunk", "abc", nil)),
			want: true,
		},
		{
			name: "quota exceeded",
			err:  &QuotaExceededError{OwnerID: "o", Active: 5, Limit: 5},
			want: true,
		},
		{
			name: "validation error",
			err:  &ValidationError{Field: "file_size", Reason: "must be positive"},
			want: false,
		},
		{
			name: "session not found",
			err:  &SessionNotFoundError{SessionID: "abc"},
			want: false,
		},
		{
			name: "hash mismatch",
			err:  &HashMismatchError{ChunkIndex: 0},
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashMismatchErrorMessage(t *testing.T) {
	chunkErr := &HashMismatchError{ChunkIndex: 3, Expected: "aa", Actual: "bb"}
	if !strings.Contains(chunkErr.Error(), "chunk 3") {
		t.Errorf("chunk error message = %q, want chunk index named", chunkErr.Error())
	}

	fileErr := &HashMismatchError{ChunkIndex: -1, Expected: "aa", Actual: "bb"}
	if strings.Contains(fileErr.Error(), "chunk") {
		t.Errorf("file error message = %q, must not mention a chunk", fileErr.Error())
	}
}

func TestIncompleteUploadErrorMessage(t *testing.T) {
	err := &IncompleteUploadError{Missing: []int{1, 4, 7}}
	msg := err.Error()
	if !strings.Contains(msg, "3 chunks") {
		t.Errorf("message = %q, want missing count", msg)
	}
}
