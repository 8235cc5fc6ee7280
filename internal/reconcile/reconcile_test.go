package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/internal/store"
)

var base = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func remotePost(localID, id string, age time.Duration) models.Post {
	return models.Post{
		ID:        id,
		Metadata:  models.PostMetadata{LocalID: localID, Title: localID},
		CreatedAt: base.Add(-age),
	}
}

func addEntry(t *testing.T, st *store.Store, localID string, status models.OptimisticStatus, discussionID string, age time.Duration) {
	t.Helper()
	ctx := context.Background()
	post := models.Post{
		Metadata:  models.PostMetadata{LocalID: localID, Title: localID},
		CreatedAt: base.Add(-age),
	}
	if err := st.AddEntry(ctx, post); err != nil {
		t.Fatalf("AddEntry(%s) error = %v", localID, err)
	}
	if status == models.StatusPending {
		return
	}
	if status == models.StatusPendingEdit {
		if err := st.UpdateStatus(ctx, localID, models.StatusSynced, discussionID); err != nil {
			t.Fatalf("UpdateStatus(%s) error = %v", localID, err)
		}
	}
	if err := st.UpdateStatus(ctx, localID, status, discussionID); err != nil {
		t.Fatalf("UpdateStatus(%s) error = %v", localID, err)
	}
}

func feedLocalIDs(feed []models.Post) []string {
	ids := make([]string, 0, len(feed))
	for _, p := range feed {
		ids = append(ids, p.Metadata.LocalID)
	}
	return ids
}

func TestMergeShowsLocalOnlyWrites(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "new1", models.StatusSyncing, "", 0)

	r := New(st, nil)
	feed, err := r.Merge(context.Background(), []models.Post{
		remotePost("old1", "D_old1", time.Hour),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if len(feed) != 2 {
		t.Fatalf("len(feed) = %d, want 2", len(feed))
	}
	if feed[0].Metadata.LocalID != "new1" {
		t.Errorf("feed[0] = %s, want the newer local-only post first", feed[0].Metadata.LocalID)
	}
	if feed[0].OptimisticStatus != models.StatusSyncing {
		t.Errorf("OptimisticStatus = %q, want syncing", feed[0].OptimisticStatus)
	}
	if feed[0].ID != "new1" {
		t.Errorf("ID = %q, want the local id standing in for the missing remote id", feed[0].ID)
	}
	if feed[1].OptimisticStatus != "" {
		t.Errorf("remote post carries status %q, want none", feed[1].OptimisticStatus)
	}
}

func TestMergeCollapsesDuplicates(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "p1", models.StatusSynced, "D_1", time.Minute)

	r := New(st, nil)
	feed, err := r.Merge(context.Background(), []models.Post{
		remotePost("p1", "D_1", time.Minute),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if len(feed) != 1 {
		t.Fatalf("len(feed) = %d, want 1 (no duplicate)", len(feed))
	}
	if feed[0].ID != "D_1" {
		t.Errorf("feed shows %q, want the remote copy", feed[0].ID)
	}

	// The remote store absorbed the write, so the record is retired
	if _, err := st.GetEntry(context.Background(), "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetEntry() error = %v, want ErrNotFound after retirement", err)
	}
}

func TestMergeHidesPendingDeletion(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "p1", models.StatusPendingDeletion, "D_1", time.Minute)

	r := New(st, nil)
	feed, err := r.Merge(context.Background(), []models.Post{
		remotePost("p1", "D_1", time.Minute),
		remotePost("p2", "D_2", time.Hour),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if got := feedLocalIDs(feed); len(got) != 1 || got[0] != "p2" {
		t.Errorf("feed = %v, want deleted-in-flight post hidden", got)
	}
}

func TestMergePurgesConfirmedOrphans(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "gone", models.StatusSynced, "D_gone", time.Minute)

	absent := func(ctx context.Context, discussionID string) (bool, error) {
		return true, nil
	}
	r := New(st, absent)
	feed, err := r.Merge(context.Background(), nil)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if len(feed) != 0 {
		t.Errorf("feed = %v, want empty after purge", feedLocalIDs(feed))
	}
	if _, err := st.GetEntry(context.Background(), "gone"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("orphan not purged: %v", err)
	}
}

func TestMergeKeepsOrphansStillPresentRemotely(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "paged", models.StatusSynced, "D_paged", time.Minute)

	// The entity exists; it just fell off the listing page
	absent := func(ctx context.Context, discussionID string) (bool, error) {
		return false, nil
	}
	r := New(st, absent)
	feed, err := r.Merge(context.Background(), nil)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if got := feedLocalIDs(feed); len(got) != 1 || got[0] != "paged" {
		t.Errorf("feed = %v, want the off-page post kept", got)
	}
	if _, err := st.GetEntry(context.Background(), "paged"); err != nil {
		t.Errorf("entry purged despite point lookup: %v", err)
	}
}

func TestMergeKeepsOrphanOnInconclusiveCheck(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "p1", models.StatusSynced, "D_1", time.Minute)

	absent := func(ctx context.Context, discussionID string) (bool, error) {
		return false, errors.New("remote unavailable")
	}
	r := New(st, absent)
	if _, err := r.Merge(context.Background(), nil); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if _, err := st.GetEntry(context.Background(), "p1"); err != nil {
		t.Errorf("entry purged on inconclusive check: %v", err)
	}
}

func TestMergePrefersLocalEditOverStaleRemote(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "p1", models.StatusPendingEdit, "D_1", time.Minute)

	r := New(st, nil)
	feed, err := r.Merge(context.Background(), []models.Post{
		remotePost("p1", "D_1", time.Minute),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if len(feed) != 1 {
		t.Fatalf("len(feed) = %d, want 1", len(feed))
	}
	if feed[0].OptimisticStatus != models.StatusPendingEdit {
		t.Errorf("feed shows the stale remote copy, want the local edit")
	}
}

func TestMergeShowsFailedEntries(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "p1", models.StatusFailed, "", time.Minute)

	r := New(st, nil)
	feed, err := r.Merge(context.Background(), nil)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(feed) != 1 || feed[0].OptimisticStatus != models.StatusFailed {
		t.Errorf("feed = %+v, want the failed write visible", feed)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "new1", models.StatusSyncing, "", 0)
	addEntry(t, st, "dup", models.StatusSynced, "D_dup", 30*time.Minute)

	remote := []models.Post{
		remotePost("dup", "D_dup", 30*time.Minute),
		remotePost("old", "D_old", time.Hour),
	}

	r := New(st, nil)
	first, err := r.Merge(context.Background(), remote)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	second, err := r.Merge(context.Background(), remote)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	a, b := feedLocalIDs(first), feedLocalIDs(second)
	if len(a) != len(b) {
		t.Fatalf("feeds differ: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("feeds differ: %v vs %v", a, b)
		}
	}
}

func TestMergeOrdersNewestFirst(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	addEntry(t, st, "mid", models.StatusPending, "", 30*time.Minute)

	r := New(st, nil)
	feed, err := r.Merge(context.Background(), []models.Post{
		remotePost("old", "D_old", time.Hour),
		remotePost("new", "D_new", 0),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := []string{"new", "mid", "old"}
	got := feedLocalIDs(feed)
	if len(got) != len(want) {
		t.Fatalf("feed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("feed = %v, want %v", got, want)
		}
	}
}
