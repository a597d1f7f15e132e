// Package memory provides an in-memory SessionStore for tests and
// single-process development. Not durable across restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/store"
)

// Store is an in-memory store.SessionStore. Sessions are deep-copied on the
// way in and out, so callers never share mutable state with the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.UploadSession
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.UploadSession),
	}
}

var _ store.SessionStore = (*Store)(nil)

// Create inserts a new session record.
func (s *Store) Create(ctx context.Context, session *models.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return fmt.Errorf("session %s already exists", session.SessionID)
	}
	s.sessions[session.SessionID] = session.Clone()
	return nil
}

// Get returns a copy of the session, or (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return session.Clone(), nil
}

// Update replaces an existing session record in place.
func (s *Store) Update(ctx context.Context, session *models.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.SessionID]; !ok {
		return fmt.Errorf("session %s not found", session.SessionID)
	}
	s.sessions[session.SessionID] = session.Clone()
	return nil
}

// Delete removes a session record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// List returns copies of all sessions matching the filter, ordered by
// creation time for deterministic output.
func (s *Store) List(ctx context.Context, filter store.ListFilter) ([]*models.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.UploadSession
	for _, session := range s.sessions {
		if filter.Matches(session) {
			out = append(out, session.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Count returns the number of sessions matching the filter.
func (s *Store) Count(ctx context.Context, filter store.ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, session := range s.sessions {
		if filter.Matches(session) {
			count++
		}
	}
	return count, nil
}
