package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rsilva/mediavault/internal/models"
	"github.com/rsilva/mediavault/internal/store"
)

func testSession(id, owner string, status models.SessionStatus, createdAt time.Time) *models.UploadSession {
	return &models.UploadSession{
		SessionID:      id,
		OwnerID:        owner,
		Filename:       "movie.mp4",
		FileSize:       600,
		ChunkSize:      256,
		TotalChunks:    3,
		ContentType:    "video/mp4",
		Status:         status,
		UploadedChunks: []int{},
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	session := testSession("s1", "o1", models.StatusPending, now)
	if err := s.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.Create(ctx, session); err == nil {
		t.Error("Create() duplicate succeeded, want error")
	}

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.SessionID != "s1" {
		t.Fatalf("Get() = %+v, want session s1", got)
	}

	// Mutating the returned copy must not touch stored state.
	got.Status = models.StatusCancelled
	again, _ := s.Get(ctx, "s1")
	if again.Status != models.StatusPending {
		t.Error("Get() returned a shared reference, not a copy")
	}

	missing, err := s.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Get(unknown) = (%+v, %v), want (nil, nil)", missing, err)
	}
}

func TestUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	session := testSession("s1", "o1", models.StatusPending, time.Now())
	if err := s.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	session.Status = models.StatusInProgress
	session.AddChunk(1)
	if err := s.Update(ctx, session); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := s.Get(ctx, "s1")
	if got.Status != models.StatusInProgress || !got.HasChunk(1) {
		t.Errorf("updated session = %+v", got)
	}

	absent := testSession("nope", "o1", models.StatusPending, time.Now())
	if err := s.Update(ctx, absent); err == nil {
		t.Error("Update() of unknown session succeeded, want error")
	}
}

func TestDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.Create(ctx, testSession("s1", "o1", models.StatusPending, time.Now())); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ := s.Get(ctx, "s1")
	if got != nil {
		t.Errorf("Get() after delete = %+v, want nil", got)
	}

	// Deleting again is a no-op.
	if err := s.Delete(ctx, "s1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestListAndCount(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	sessions := []*models.UploadSession{
		testSession("s1", "o1", models.StatusPending, base),
		testSession("s2", "o1", models.StatusInProgress, base.Add(10*time.Minute)),
		testSession("s3", "o2", models.StatusCompleted, base.Add(20*time.Minute)),
		testSession("s4", "o1", models.StatusCancelled, base.Add(30*time.Minute)),
	}
	for _, session := range sessions {
		if err := s.Create(ctx, session); err != nil {
			t.Fatalf("Create(%s) error = %v", session.SessionID, err)
		}
	}

	t.Run("by owner", func(t *testing.T) {
		got, err := s.List(ctx, store.ListFilter{OwnerID: "o1"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 3 {
			t.Errorf("List() returned %d sessions, want 3", len(got))
		}
	})

	t.Run("by status", func(t *testing.T) {
		got, err := s.List(ctx, store.ListFilter{
			Statuses: []models.SessionStatus{models.StatusPending, models.StatusInProgress},
		})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("List() returned %d sessions, want 2", len(got))
		}
	})

	t.Run("by age", func(t *testing.T) {
		got, err := s.List(ctx, store.ListFilter{
			UpdatedBefore: base.Add(15 * time.Minute),
		})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("List() returned %d sessions, want 2", len(got))
		}
	})

	t.Run("combined", func(t *testing.T) {
		got, err := s.List(ctx, store.ListFilter{
			OwnerID:  "o1",
			Statuses: []models.SessionStatus{models.StatusPending, models.StatusInProgress},
		})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("List() returned %d sessions, want 2", len(got))
		}
	})

	t.Run("ordering", func(t *testing.T) {
		got, err := s.List(ctx, store.ListFilter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		for i := 1; i < len(got); i++ {
			if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
				t.Errorf("List() out of order at %d", i)
			}
		}
	})

	t.Run("count", func(t *testing.T) {
		count, err := s.Count(ctx, store.ListFilter{
			OwnerID:  "o1",
			Statuses: []models.SessionStatus{models.StatusPending, models.StatusInProgress},
		})
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != 2 {
			t.Errorf("Count() = %d, want 2", count)
		}
	})
}
