// Package store defines the durable session store contract. Any row or
// key-value store satisfying SessionStore works: the repo ships SQLite,
// PostgreSQL and in-memory implementations.
package store

import (
	"context"
	"time"

	"github.com/rsilva/mediavault/internal/models"
)

// ListFilter narrows List and Count results. Zero values mean "no constraint".
type ListFilter struct {
	OwnerID       string
	Statuses      []models.SessionStatus
	UpdatedBefore time.Time
}

// Matches reports whether a session satisfies the filter. Shared by the
// in-memory store and by tests asserting SQL-backed stores agree with it.
func (f ListFilter) Matches(s *models.UploadSession) bool {
	if f.OwnerID != "" && s.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if s.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.UpdatedBefore.IsZero() && !s.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// SessionStore is the durable mapping from session id to session record. The
// record is exclusively owned by the upload manager. Get returns (nil, nil)
// for an unknown id.
type SessionStore interface {
	Create(ctx context.Context, session *models.UploadSession) error
	Get(ctx context.Context, sessionID string) (*models.UploadSession, error)
	Update(ctx context.Context, session *models.UploadSession) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context, filter ListFilter) ([]*models.UploadSession, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
}
