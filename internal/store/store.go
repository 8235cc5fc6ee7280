// Package store keeps the write-ahead record of locally-initiated
// mutations. Every local write lands here before any remote call, so
// the feed can show it immediately; entries advance through a strict
// status machine until the remote store confirms them.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/pkg/logging"
)

var (
	// ErrDuplicateLocalID is returned when an entry with the same
	// local identifier already exists
	ErrDuplicateLocalID = errors.New("entry with this local id already exists")

	// ErrNotFound is returned when no entry exists for a local id
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidTransition is returned when a status change is not
	// permitted from the entry's current status
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Backend persists entries. Implementations must be safe for
// concurrent use; the Store serializes writes per local id above it.
type Backend interface {
	Get(ctx context.Context, localID string) (*models.OptimisticEntry, error)
	Insert(ctx context.Context, entry *models.OptimisticEntry) error
	Put(ctx context.Context, entry *models.OptimisticEntry) error
	Delete(ctx context.Context, localID string) error
	List(ctx context.Context) ([]*models.OptimisticEntry, error)
}

// transitions enumerates the permitted status moves. failed is
// terminal: a failed entry only leaves the store via ClearEntry.
var transitions = map[models.OptimisticStatus][]models.OptimisticStatus{
	models.StatusPending:         {models.StatusSyncing, models.StatusSynced, models.StatusFailed, models.StatusPendingDeletion},
	models.StatusSyncing:         {models.StatusSynced, models.StatusFailed, models.StatusPendingDeletion},
	models.StatusSynced:          {models.StatusPendingDeletion, models.StatusPendingEdit},
	models.StatusPendingDeletion: {models.StatusSynced, models.StatusFailed},
	models.StatusPendingEdit:     {models.StatusSynced, models.StatusFailed},
	models.StatusFailed:          {},
}

func transitionAllowed(from, to models.OptimisticStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Store coordinates access to the write-ahead records. Reads return
// deep copies, so a caller can never observe or produce a torn entry.
type Store struct {
	backend Backend
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new store over the given backend
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		logger:  logging.GetLogger().With(zap.String("component", "store")),
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-entry mutex, creating it on first use.
// Entry locks are never removed; the set of local ids a process
// touches is small and bounded by its own writes.
func (s *Store) lockFor(localID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[localID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[localID] = l
	}
	return l
}

// AddEntry records a brand-new local post in pending status. The post
// must carry a local id; reusing one that is already tracked fails.
func (s *Store) AddEntry(ctx context.Context, post models.Post) error {
	localID := post.Metadata.LocalID
	if localID == "" {
		return fmt.Errorf("post has no local id")
	}

	l := s.lockFor(localID)
	l.Lock()
	defer l.Unlock()

	existing, err := s.backend.Get(ctx, localID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to check for existing entry: %w", err)
	}
	if existing != nil {
		return ErrDuplicateLocalID
	}

	post.OptimisticStatus = models.StatusPending
	entry := &models.OptimisticEntry{
		LocalID:   localID,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := entry.SetPost(post); err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	if err := s.backend.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	s.logger.Info("Entry added", zap.String("local_id", localID))
	return nil
}

// UpdateStatus advances an entry through the status machine. A
// non-empty discussionID is recorded alongside; once set it is never
// cleared.
func (s *Store) UpdateStatus(ctx context.Context, localID string, status models.OptimisticStatus, discussionID string) error {
	l := s.lockFor(localID)
	l.Lock()
	defer l.Unlock()

	entry, err := s.backend.Get(ctx, localID)
	if err != nil {
		return err
	}
	if !transitionAllowed(entry.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.Status, status)
	}

	entry.Status = status
	if discussionID != "" {
		entry.DiscussionID = discussionID
	}
	if err := s.syncSnapshotStatus(entry); err != nil {
		return err
	}
	if err := s.backend.Put(ctx, entry); err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	s.logger.Debug("Entry status updated",
		zap.String("local_id", localID),
		zap.String("status", string(status)))
	return nil
}

// UpdateSnapshot replaces the locally held post and moves the entry to
// status in one step. Used when an edit changes the content that the
// feed should show while the remote write is still in flight.
func (s *Store) UpdateSnapshot(ctx context.Context, localID string, post models.Post, status models.OptimisticStatus) error {
	l := s.lockFor(localID)
	l.Lock()
	defer l.Unlock()

	entry, err := s.backend.Get(ctx, localID)
	if err != nil {
		return err
	}
	if !transitionAllowed(entry.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.Status, status)
	}

	entry.Status = status
	post.OptimisticStatus = status
	if err := entry.SetPost(post); err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	if err := s.backend.Put(ctx, entry); err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

// ReplaceWithCanonical swaps the optimistic snapshot for the remote
// store's confirmed version and marks the entry synced. The remote
// copy wins every field except the local id join key.
func (s *Store) ReplaceWithCanonical(ctx context.Context, localID string, canonical models.Post, discussionID string) error {
	l := s.lockFor(localID)
	l.Lock()
	defer l.Unlock()

	entry, err := s.backend.Get(ctx, localID)
	if err != nil {
		return err
	}
	if !transitionAllowed(entry.Status, models.StatusSynced) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.Status, models.StatusSynced)
	}

	canonical.Metadata.LocalID = localID
	canonical.OptimisticStatus = models.StatusSynced
	entry.Status = models.StatusSynced
	if discussionID != "" {
		entry.DiscussionID = discussionID
	}
	if err := entry.SetPost(canonical); err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	if err := s.backend.Put(ctx, entry); err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	s.logger.Info("Entry confirmed",
		zap.String("local_id", localID),
		zap.String("discussion_id", entry.DiscussionID))
	return nil
}

// ClearEntry removes an entry outright. Valid from any status: it is
// how confirmed deletions, purged orphans and dismissed failures leave
// the store.
func (s *Store) ClearEntry(ctx context.Context, localID string) error {
	l := s.lockFor(localID)
	l.Lock()
	defer l.Unlock()

	if err := s.backend.Delete(ctx, localID); err != nil {
		return err
	}
	s.logger.Info("Entry cleared", zap.String("local_id", localID))
	return nil
}

// GetEntry returns a copy of one entry
func (s *Store) GetEntry(ctx context.Context, localID string) (*models.OptimisticEntry, error) {
	entry, err := s.backend.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// GetAllEntries returns copies of every tracked entry
func (s *Store) GetAllEntries(ctx context.Context) ([]*models.OptimisticEntry, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.OptimisticEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

// ListUnconfirmed returns entries still awaiting remote confirmation,
// the set a restarted process must resume polling for.
func (s *Store) ListUnconfirmed(ctx context.Context) ([]*models.OptimisticEntry, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.OptimisticEntry
	for _, e := range entries {
		switch e.Status {
		case models.StatusPending, models.StatusSyncing, models.StatusPendingDeletion, models.StatusPendingEdit:
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// syncSnapshotStatus keeps the embedded post's status field in step
// with the entry, so feed projections read one source of truth.
func (s *Store) syncSnapshotStatus(entry *models.OptimisticEntry) error {
	post, err := entry.Post()
	if err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	post.OptimisticStatus = entry.Status
	if err := entry.SetPost(post); err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	return nil
}
