package models

import (
	"sort"
	"time"
)

// SessionStatus is the closed set of upload session states. Transitions only
// move forward: Pending -> InProgress -> Completed, with Cancelled and Failed
// reachable from the two active states. All three of Completed, Cancelled and
// Failed are terminal.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusCancelled  SessionStatus = "cancelled"
)

// Valid reports whether s is one of the known states.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AcceptsChunks reports whether a session in state s may still receive chunks.
func (s SessionStatus) AcceptsChunks() bool {
	return s == StatusPending || s == StatusInProgress
}

// UploadSession is the server-side record tracking one upload attempt for one
// file. SessionID, OwnerID, Filename, FileSize, ChunkSize, TotalChunks and
// ContentType are immutable after creation; only the manager mutates the rest.
type UploadSession struct {
	SessionID      string            `json:"session_id"`
	OwnerID        string            `json:"owner_id"`
	Filename       string            `json:"filename"`
	FileSize       int64             `json:"file_size"`
	ChunkSize      int64             `json:"chunk_size"`
	TotalChunks    int               `json:"total_chunks"`
	ContentType    string            `json:"content_type"`
	DeclaredHash   string            `json:"declared_file_hash,omitempty"`
	Status         SessionStatus     `json:"status"`
	UploadedChunks []int             `json:"uploaded_chunks"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// HasChunk reports whether chunk index is already recorded.
// UploadedChunks is kept sorted, so binary search applies.
func (s *UploadSession) HasChunk(index int) bool {
	i := sort.SearchInts(s.UploadedChunks, index)
	return i < len(s.UploadedChunks) && s.UploadedChunks[i] == index
}

// AddChunk records a chunk index, keeping UploadedChunks sorted and
// duplicate-free. Returns false if the index was already present.
func (s *UploadSession) AddChunk(index int) bool {
	i := sort.SearchInts(s.UploadedChunks, index)
	if i < len(s.UploadedChunks) && s.UploadedChunks[i] == index {
		return false
	}
	s.UploadedChunks = append(s.UploadedChunks, 0)
	copy(s.UploadedChunks[i+1:], s.UploadedChunks[i:])
	s.UploadedChunks[i] = index
	return true
}

// MissingChunks returns the sorted indices in [0, TotalChunks) not yet
// uploaded. Derived, never stored.
func (s *UploadSession) MissingChunks() []int {
	missing := make([]int, 0, s.TotalChunks-len(s.UploadedChunks))
	j := 0
	for i := 0; i < s.TotalChunks; i++ {
		if j < len(s.UploadedChunks) && s.UploadedChunks[j] == i {
			j++
			continue
		}
		missing = append(missing, i)
	}
	return missing
}

// Progress returns the upload completion percentage in [0, 100].
func (s *UploadSession) Progress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return 100 * float64(len(s.UploadedChunks)) / float64(s.TotalChunks)
}

// ExpectedChunkSize returns the byte length chunk index must have: ChunkSize
// for every chunk except the last, which carries the remainder.
func (s *UploadSession) ExpectedChunkSize(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.FileSize - int64(index)*s.ChunkSize
	}
	return s.ChunkSize
}

// Clone returns a deep copy. Stores hand out copies so callers can mutate
// freely without racing the store's own state.
func (s *UploadSession) Clone() *UploadSession {
	c := *s
	if s.UploadedChunks != nil {
		c.UploadedChunks = append([]int(nil), s.UploadedChunks...)
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// SessionInitRequest is the request body for initiating an upload session.
type SessionInitRequest struct {
	Filename    string            `json:"filename"`
	FileSize    int64             `json:"file_size"`
	ContentType string            `json:"content_type"`
	ChunkSize   int64             `json:"chunk_size,omitempty"`
	FileHash    string            `json:"file_hash,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SessionInitResponse is returned after a session is created.
type SessionInitResponse struct {
	SessionID   string    `json:"session_id"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int       `json:"total_chunks"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ChunkUploadResponse is returned after a chunk is accepted.
type ChunkUploadResponse struct {
	SessionID      string  `json:"session_id"`
	ChunkIndex     int     `json:"chunk_index"`
	NewlyStored    bool    `json:"newly_stored"`
	ChunksReceived int     `json:"chunks_received"`
	TotalChunks    int     `json:"total_chunks"`
	Progress       float64 `json:"progress_percent"`
}

// SessionStatusResponse is returned for status queries.
type SessionStatusResponse struct {
	SessionID      string        `json:"session_id"`
	Filename       string        `json:"filename"`
	Status         SessionStatus `json:"status"`
	ChunksReceived int           `json:"chunks_received"`
	TotalChunks    int           `json:"total_chunks"`
	MissingChunks  []int         `json:"missing_chunks,omitempty"`
	Progress       float64       `json:"progress_percent"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// SessionCompleteResponse is returned after a successful completion.
type SessionCompleteResponse struct {
	SessionID string `json:"session_id"`
	Location  string `json:"location"`
	FileHash  string `json:"file_hash"`
	FileSize  int64  `json:"file_size"`
}
