package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dailydrops/drops/internal/models"
)

func newTestStore() *Store {
	return New(NewMemoryBackend())
}

func samplePost(localID string) models.Post {
	return models.Post{
		Metadata: models.PostMetadata{
			LocalID: localID,
			Title:   "test post",
			Authors: []string{"alice"},
		},
		Body: "hello",
	}
}

func TestAddEntryStartsPending(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.AddEntry(ctx, samplePost("p1")); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}

	entry, err := s.GetEntry(ctx, "p1")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if entry.Status != models.StatusPending {
		t.Errorf("Status = %s, want pending", entry.Status)
	}
	post, err := entry.Post()
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if post.OptimisticStatus != models.StatusPending {
		t.Errorf("snapshot optimisticStatus = %q, want pending", post.OptimisticStatus)
	}
}

func TestAddEntryRejectsDuplicateLocalID(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.AddEntry(ctx, samplePost("p1")); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if err := s.AddEntry(ctx, samplePost("p1")); !errors.Is(err, ErrDuplicateLocalID) {
		t.Errorf("AddEntry() error = %v, want ErrDuplicateLocalID", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.OptimisticStatus
		wantErr bool
	}{
		{"happy path", []models.OptimisticStatus{models.StatusSyncing, models.StatusSynced}, false},
		{"direct confirm", []models.OptimisticStatus{models.StatusSynced}, false},
		{"failure", []models.OptimisticStatus{models.StatusSyncing, models.StatusFailed}, false},
		{"delete before confirm", []models.OptimisticStatus{models.StatusSyncing, models.StatusPendingDeletion}, false},
		{"edit after confirm", []models.OptimisticStatus{models.StatusSynced, models.StatusPendingEdit, models.StatusSynced}, false},
		{"failed is terminal", []models.OptimisticStatus{models.StatusFailed, models.StatusSyncing}, true},
		{"cannot edit unconfirmed", []models.OptimisticStatus{models.StatusPendingEdit}, true},
		{"cannot regress synced", []models.OptimisticStatus{models.StatusSynced, models.StatusSyncing}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			ctx := context.Background()
			if err := s.AddEntry(ctx, samplePost("p1")); err != nil {
				t.Fatalf("AddEntry() error = %v", err)
			}

			var err error
			for _, status := range tt.path {
				if err = s.UpdateStatus(ctx, "p1", status, ""); err != nil {
					break
				}
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("UpdateStatus() error = %v, want ErrInvalidTransition", err)
				}
			} else if err != nil {
				t.Errorf("UpdateStatus() error = %v", err)
			}
		})
	}
}

func TestUpdateStatusRecordsDiscussionID(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.AddEntry(ctx, samplePost("p1")); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if err := s.UpdateStatus(ctx, "p1", models.StatusSynced, "D_abc"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	entry, _ := s.GetEntry(ctx, "p1")
	if entry.DiscussionID != "D_abc" {
		t.Errorf("DiscussionID = %q, want D_abc", entry.DiscussionID)
	}

	// Moving to pendingDeletion must not clear the recorded id
	if err := s.UpdateStatus(ctx, "p1", models.StatusPendingDeletion, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	entry, _ = s.GetEntry(ctx, "p1")
	if entry.DiscussionID != "D_abc" {
		t.Errorf("DiscussionID = %q after transition, want D_abc", entry.DiscussionID)
	}
}

func TestReplaceWithCanonical(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.AddEntry(ctx, samplePost("p1")); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if err := s.UpdateStatus(ctx, "p1", models.StatusSyncing, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	canonical := models.Post{
		ID:     "D_abc",
		Number: 12,
		Metadata: models.PostMetadata{
			LocalID: "ignored", // remote copy wins every field but this
			Title:   "test post",
		},
		Body: "hello",
	}
	if err := s.ReplaceWithCanonical(ctx, "p1", canonical, "D_abc"); err != nil {
		t.Fatalf("ReplaceWithCanonical() error = %v", err)
	}

	entry, _ := s.GetEntry(ctx, "p1")
	if entry.Status != models.StatusSynced {
		t.Errorf("Status = %s, want synced", entry.Status)
	}
	post, err := entry.Post()
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if post.ID != "D_abc" || post.Number != 12 {
		t.Errorf("snapshot = %+v, want canonical fields", post)
	}
	if post.Metadata.LocalID != "p1" {
		t.Errorf("localID = %q, join key must survive replacement", post.Metadata.LocalID)
	}
}

func TestClearEntry(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.AddEntry(ctx, samplePost("p1")); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if err := s.ClearEntry(ctx, "p1"); err != nil {
		t.Fatalf("ClearEntry() error = %v", err)
	}
	if _, err := s.GetEntry(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry() error = %v, want ErrNotFound", err)
	}
	if err := s.ClearEntry(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ClearEntry() twice error = %v, want ErrNotFound", err)
	}
}

func TestListUnconfirmed(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := s.AddEntry(ctx, samplePost(id)); err != nil {
			t.Fatalf("AddEntry(%s) error = %v", id, err)
		}
	}
	_ = s.UpdateStatus(ctx, "a", models.StatusSyncing, "")
	_ = s.UpdateStatus(ctx, "b", models.StatusSynced, "D_b")
	_ = s.UpdateStatus(ctx, "c", models.StatusFailed, "")

	unconfirmed, err := s.ListUnconfirmed(ctx)
	if err != nil {
		t.Fatalf("ListUnconfirmed() error = %v", err)
	}
	got := map[string]bool{}
	for _, e := range unconfirmed {
		got[e.LocalID] = true
	}
	if len(got) != 2 || !got["a"] || !got["d"] {
		t.Errorf("ListUnconfirmed() = %v, want a and d only", got)
	}
}

func TestReadsAreCopies(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.AddEntry(ctx, samplePost("p1")); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}

	entry, _ := s.GetEntry(ctx, "p1")
	entry.Status = models.StatusFailed
	entry.Snapshot[0] = 'X'

	fresh, _ := s.GetEntry(ctx, "p1")
	if fresh.Status != models.StatusPending {
		t.Errorf("mutating a returned entry leaked into the store")
	}
	if fresh.Snapshot[0] == 'X' {
		t.Errorf("mutating a returned snapshot leaked into the store")
	}
}

func TestConcurrentUpdatesSameEntry(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.AddEntry(ctx, samplePost("p1")); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}

	// Many racing transitions: exactly one of syncing->synced paths
	// wins each step, and the entry is never torn.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.UpdateStatus(ctx, "p1", models.StatusSyncing, "")
			_ = s.UpdateStatus(ctx, "p1", models.StatusSynced, "D_x")
		}()
	}
	wg.Wait()

	entry, err := s.GetEntry(ctx, "p1")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if entry.Status != models.StatusSynced {
		t.Errorf("Status = %s, want synced", entry.Status)
	}
	if _, err := entry.Post(); err != nil {
		t.Errorf("snapshot torn: %v", err)
	}
}
