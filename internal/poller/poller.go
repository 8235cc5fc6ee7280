// Package poller confirms optimistic writes against the remote store.
// Mutations there are fire-and-forget: the only way to learn that a
// created entity exists (and under which remote identifier) is to
// search for its embedded local id until it shows up or a deadline
// passes.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/internal/store"
	"github.com/dailydrops/drops/pkg/config"
	"github.com/dailydrops/drops/pkg/logging"
)

// LookupFunc searches the remote store for the entity carrying
// localID. It returns the remote identifier (empty while propagation
// is still in flight) and the canonical post when available.
type LookupFunc func(ctx context.Context, token, localID string) (string, *models.Post, error)

// DeleteFunc removes a remote entity by identifier
type DeleteFunc func(ctx context.Context, token, discussionID string) error

// Supervisor owns one polling goroutine per unconfirmed entry. Every
// poll runs under a per-entry deadline; Shutdown cancels and awaits
// all of them.
type Supervisor struct {
	store    *store.Store
	lookup   LookupFunc
	remove   DeleteFunc
	token    string
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a supervisor. lookup confirms entries; remove completes
// deletions that were requested before the entity was confirmed.
func New(st *store.Store, lookup LookupFunc, remove DeleteFunc, cfg *config.PollerConfig, token string) *Supervisor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:    st,
		lookup:   lookup,
		remove:   remove,
		token:    token,
		interval: interval,
		timeout:  timeout,
		logger:   logging.GetLogger().With(zap.String("component", "poller")),
		active:   make(map[string]context.CancelFunc),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Watch starts polling for localID. Watching an entry that is already
// being polled is a no-op, so callers never stack duplicate pollers.
func (s *Supervisor) Watch(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[localID]; ok {
		return
	}
	if s.baseCtx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
	s.active[localID] = cancel
	s.wg.Add(1)
	go s.poll(ctx, localID)
}

// Resume restarts polling for every entry still awaiting confirmation,
// the recovery path after a process restart.
func (s *Supervisor) Resume(ctx context.Context) error {
	entries, err := s.store.ListUnconfirmed(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		s.Watch(entry.LocalID)
	}
	if len(entries) > 0 {
		s.logger.Info("Resumed polling for unconfirmed entries", zap.Int("count", len(entries)))
	}
	return nil
}

// Shutdown cancels every in-flight poll and waits for the goroutines
// to drain.
func (s *Supervisor) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Active reports whether a poll is currently running for localID
func (s *Supervisor) Active(localID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[localID]
	return ok
}

func (s *Supervisor) poll(ctx context.Context, localID string) {
	defer s.wg.Done()
	defer s.finish(localID)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Deadline passed without confirmation. Supervisor shutdown
			// leaves the entry alone so a restart can resume it.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && s.baseCtx.Err() == nil {
				s.markFailed(localID)
			}
			return
		case <-ticker.C:
			if done := s.attempt(ctx, localID); done {
				return
			}
		}
	}
}

// attempt runs one lookup and, on a hit, resolves the entry. Returns
// true when polling for this entry should stop.
func (s *Supervisor) attempt(ctx context.Context, localID string) bool {
	discussionID, canonical, err := s.lookup(ctx, s.token, localID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// Transient lookup failures just mean we try again next tick
		s.logger.Warn("Confirmation lookup failed",
			zap.String("local_id", localID),
			zap.Error(err))
		return false
	}
	if discussionID == "" {
		return false
	}

	entry, err := s.store.GetEntry(ctx, localID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Cleared out from under us; nothing left to confirm
			return true
		}
		s.logger.Warn("Failed to load entry after confirmation",
			zap.String("local_id", localID),
			zap.Error(err))
		return false
	}

	if entry.Status == models.StatusPendingDeletion {
		return s.completeDeletion(ctx, localID, discussionID)
	}
	return s.confirm(ctx, localID, discussionID, canonical)
}

func (s *Supervisor) confirm(ctx context.Context, localID, discussionID string, canonical *models.Post) bool {
	var err error
	if canonical != nil {
		err = s.store.ReplaceWithCanonical(ctx, localID, *canonical, discussionID)
	} else {
		err = s.store.UpdateStatus(ctx, localID, models.StatusSynced, discussionID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true
		}
		s.logger.Warn("Failed to confirm entry",
			zap.String("local_id", localID),
			zap.Error(err))
		return false
	}
	s.logger.Info("Entry confirmed",
		zap.String("local_id", localID),
		zap.String("discussion_id", discussionID))
	return true
}

// completeDeletion finishes a delete that was requested before the
// entity was confirmed: now that we know the remote identifier, issue
// the delete and drop the entry.
func (s *Supervisor) completeDeletion(ctx context.Context, localID, discussionID string) bool {
	if err := s.remove(ctx, s.token, discussionID); err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Warn("Deferred deletion failed",
			zap.String("local_id", localID),
			zap.Error(err))
		return false
	}
	if err := s.store.ClearEntry(ctx, localID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("Failed to clear deleted entry",
			zap.String("local_id", localID),
			zap.Error(err))
	}
	s.logger.Info("Deferred deletion completed", zap.String("local_id", localID))
	return true
}

// markFailed runs under a fresh context: the poll deadline that
// triggered it has already expired.
func (s *Supervisor) markFailed(localID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.UpdateStatus(ctx, localID, models.StatusFailed, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidTransition) {
			return
		}
		s.logger.Error("Failed to mark entry failed",
			zap.String("local_id", localID),
			zap.Error(err))
		return
	}
	s.logger.Warn("Confirmation timed out", zap.String("local_id", localID))
}

func (s *Supervisor) finish(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.active[localID]; ok {
		cancel()
		delete(s.active, localID)
	}
}
