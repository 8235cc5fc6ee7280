// Package reconcile merges the remote listing with the local
// write-ahead records into the single feed the caller sees. The local
// id embedded in each post's metadata is the only join key between the
// two sides.
package reconcile

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/internal/store"
	"github.com/dailydrops/drops/pkg/logging"
)

// ConfirmAbsentFunc reports whether a remote entity is truly gone. A
// listing miss alone is not proof of deletion: the listing is paged,
// so a point lookup guards against purging entries that merely fell
// off the page. nil means trust the listing.
type ConfirmAbsentFunc func(ctx context.Context, discussionID string) (bool, error)

// Reconciler merges listings with write-ahead entries and retires
// entries the remote store has fully absorbed.
type Reconciler struct {
	store         *store.Store
	confirmAbsent ConfirmAbsentFunc
	logger        *zap.Logger
}

// New creates a reconciler. confirmAbsent may be nil.
func New(st *store.Store, confirmAbsent ConfirmAbsentFunc) *Reconciler {
	return &Reconciler{
		store:         st,
		confirmAbsent: confirmAbsent,
		logger:        logging.GetLogger().With(zap.String("component", "reconcile")),
	}
}

// Merge produces the feed: remote posts plus local-only entries, with
// duplicates collapsed, deleted-in-flight posts hidden, and confirmed
// orphans purged. The result is ordered newest first; remote posts
// outrank local-only ones at equal timestamps. Merge is idempotent.
func (r *Reconciler) Merge(ctx context.Context, remote []models.Post) ([]models.Post, error) {
	entries, err := r.store.GetAllEntries(ctx)
	if err != nil {
		return nil, err
	}

	remoteByLocalID := make(map[string]int, len(remote))
	for i, post := range remote {
		remoteByLocalID[post.Metadata.LocalID] = i
	}

	hidden := make(map[string]bool)
	var localOnly []models.Post

	for _, entry := range entries {
		_, inRemote := remoteByLocalID[entry.LocalID]

		if inRemote {
			switch entry.Status {
			case models.StatusSynced:
				// The remote store has absorbed this write; the record
				// has nothing left to protect.
				if err := r.clear(ctx, entry.LocalID); err != nil {
					return nil, err
				}
			case models.StatusPendingDeletion:
				hidden[entry.LocalID] = true
			case models.StatusPendingEdit:
				// Local edit not yet visible remotely: show ours
				hidden[entry.LocalID] = true
				if post, ok := r.snapshot(entry); ok {
					localOnly = append(localOnly, post)
				}
			}
			// pending/syncing entries visible remotely are left for the
			// poller to resolve; the remote copy is shown as-is
			continue
		}

		switch entry.Status {
		case models.StatusSynced:
			purge, err := r.orphanConfirmedGone(ctx, entry)
			if err != nil {
				return nil, err
			}
			if purge {
				if err := r.clear(ctx, entry.LocalID); err != nil {
					return nil, err
				}
				continue
			}
			// Still exists remotely, just off the page
			if post, ok := r.snapshot(entry); ok {
				localOnly = append(localOnly, post)
			}
		case models.StatusPendingDeletion:
			// Hidden already by virtue of not being in the listing
		default:
			// pending, syncing, pendingEdit, failed: show the local
			// snapshot so the write is never invisible to its author
			if post, ok := r.snapshot(entry); ok {
				localOnly = append(localOnly, post)
			}
		}
	}

	feed := make([]models.Post, 0, len(remote)+len(localOnly))
	for _, post := range remote {
		if hidden[post.Metadata.LocalID] {
			continue
		}
		feed = append(feed, post)
	}
	feed = append(feed, localOnly...)

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].CreatedAt.After(feed[j].CreatedAt)
	})

	return feed, nil
}

// orphanConfirmedGone decides whether a synced entry missing from the
// listing is safe to purge
func (r *Reconciler) orphanConfirmedGone(ctx context.Context, entry *models.OptimisticEntry) (bool, error) {
	if r.confirmAbsent == nil || entry.DiscussionID == "" {
		return true, nil
	}
	absent, err := r.confirmAbsent(ctx, entry.DiscussionID)
	if err != nil {
		// Inconclusive: keep the entry and try again next merge
		r.logger.Warn("Orphan check failed, keeping entry",
			zap.String("local_id", entry.LocalID),
			zap.Error(err))
		return false, nil
	}
	return absent, nil
}

func (r *Reconciler) clear(ctx context.Context, localID string) error {
	err := r.store.ClearEntry(ctx, localID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	r.logger.Debug("Entry retired", zap.String("local_id", localID))
	return nil
}

func (r *Reconciler) snapshot(entry *models.OptimisticEntry) (models.Post, bool) {
	post, err := entry.Post()
	if err != nil {
		r.logger.Warn("Dropping entry with unreadable snapshot",
			zap.String("local_id", entry.LocalID),
			zap.Error(err))
		return models.Post{}, false
	}
	post.OptimisticStatus = entry.Status
	if post.ID == "" {
		// No remote identifier yet; the local id stands in so the
		// entry is addressable in the merged view
		post.ID = entry.LocalID
	}
	return post, true
}
