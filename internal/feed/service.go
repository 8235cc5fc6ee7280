// Package feed exposes the core post operations: optimistic writes
// recorded ahead of the remote call, background confirmation, and the
// reconciled listing callers actually see.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dailydrops/drops/internal/codec"
	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/internal/reconcile"
	"github.com/dailydrops/drops/internal/store"
	"github.com/dailydrops/drops/pkg/logging"
	"github.com/dailydrops/drops/pkg/telemetry"
)

var (
	// ErrAssetUpload is returned when an asset upload fails; nothing is
	// persisted remotely in that case
	ErrAssetUpload = errors.New("asset upload failed")

	// ErrNotConfirmed is returned when an edit targets a post whose
	// creation the remote store has not confirmed yet
	ErrNotConfirmed = errors.New("post not yet confirmed")

	// ErrNotFound is returned when neither a local entry nor a remote
	// identifier matches the request
	ErrNotFound = errors.New("post not found")
)

// RemoteAPI is the slice of the remote client the feed needs
type RemoteAPI interface {
	FetchPosts(ctx context.Context, token string, first int) ([]models.Post, error)
	FetchPost(ctx context.Context, token, discussionID string) (*models.Post, error)
	FetchPostByNumber(ctx context.Context, token string, number int) (*models.Post, error)
	FetchUserComments(ctx context.Context, token, login string) ([]models.Comment, error)
	CreateDiscussion(ctx context.Context, token, title, body string) error
	UpdateDiscussion(ctx context.Context, token, discussionID, title, body string) error
	DeleteDiscussion(ctx context.Context, token, discussionID string) error
	AddComment(ctx context.Context, token, discussionID, body, replyToID string) (string, error)
	DeleteComment(ctx context.Context, token, commentID string) error
	AddReaction(ctx context.Context, token, subjectID, content string) error
	RemoveReaction(ctx context.Context, token, subjectID, content string) error
	Viewer(ctx context.Context, token string) (*models.User, error)
	Collaborators(ctx context.Context, token string) ([]models.User, error)
}

// Uploader pushes asset bytes to the content store and returns the
// address the bytes will eventually be served from
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// TokenProvider supplies the credential for a call. The token itself
// is opaque; acquisition is someone else's problem.
type TokenProvider func(ctx context.Context) (string, error)

// Watcher starts a confirmation poll for a local id
type Watcher interface {
	Watch(localID string)
}

// PendingAsset is an asset attached to a draft before upload. Preview
// is an optional inline URL (typically a data: URI) shown locally
// until the uploaded copy propagates.
type PendingAsset struct {
	ID       string
	Filename string
	Data     []byte
	Preview  string
}

// Draft is the caller-supplied content of a new or edited post
type Draft struct {
	Title         string
	Body          string
	Authors       []string
	Collaborators []string
	Tags          []string
	Team          string
	Project       string
	URLs          []string
	Assets        []PendingAsset
	CommentPins   []models.CommentPin
}

// Service wires the write-ahead store, the remote client, the
// reconciler and the poller into the operations callers use.
type Service struct {
	remote     RemoteAPI
	store      *store.Store
	reconciler *reconcile.Reconciler
	watcher    Watcher
	uploader   Uploader
	tokens     TokenProvider
	pageSize   int
	logger     *zap.Logger
}

// New creates the feed service. uploader may be nil when asset uploads
// are not configured; drafts with assets then fail fast.
func New(remote RemoteAPI, st *store.Store, rec *reconcile.Reconciler, watcher Watcher, uploader Uploader, tokens TokenProvider, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 25
	}
	return &Service{
		remote:     remote,
		store:      st,
		reconciler: rec,
		watcher:    watcher,
		uploader:   uploader,
		tokens:     tokens,
		pageSize:   pageSize,
		logger:     logging.GetLogger().With(zap.String("component", "feed")),
	}
}

// CreatePost records the draft locally, fires the create mutation and
// starts confirmation polling. The returned post is the optimistic
// snapshot; its status advances in the store as confirmation lands.
func (s *Service) CreatePost(ctx context.Context, draft Draft) (models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.create_post")
	defer span.End()

	token, err := s.tokens(ctx)
	if err != nil {
		return models.Post{}, err
	}

	localID := uuid.NewString()
	meta := s.metadataFromDraft(localID, uuid.NewString(), draft)

	// Uploads are all-or-nothing: any failure aborts before anything
	// is persisted remotely.
	uploaded, previewed, err := s.uploadAssets(ctx, draft.Assets)
	if err != nil {
		return models.Post{}, err
	}
	meta.Assets = uploaded

	body := codec.RewriteMentions(draft.Body)
	encoded, err := codec.Encode(&meta, body, 0)
	if err != nil {
		return models.Post{}, err
	}

	snapshot := models.Post{
		Metadata:  meta,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	snapshot.Metadata.Assets = previewed
	if len(draft.Authors) > 0 {
		snapshot.Author = models.User{Login: draft.Authors[0]}
	}

	if err := s.store.AddEntry(ctx, snapshot); err != nil {
		return models.Post{}, err
	}

	if err := s.remote.CreateDiscussion(ctx, token, meta.Title, encoded); err != nil {
		if ferr := s.store.UpdateStatus(ctx, localID, models.StatusFailed, ""); ferr != nil {
			s.logger.Error("Failed to mark entry failed", zap.String("local_id", localID), zap.Error(ferr))
		}
		return models.Post{}, fmt.Errorf("failed to submit post: %w", err)
	}

	if err := s.store.UpdateStatus(ctx, localID, models.StatusSyncing, ""); err != nil {
		s.logger.Error("Failed to advance entry", zap.String("local_id", localID), zap.Error(err))
	}
	s.watcher.Watch(localID)

	s.logger.Info("Post created optimistically", zap.String("local_id", localID))
	snapshot.OptimisticStatus = models.StatusSyncing
	return snapshot, nil
}

// EditPost updates a post. A confirmed local entry goes through the
// pendingEdit branch so the feed shows the new content immediately; a
// post we never wrote (or whose entry was long since retired) gets a
// straight update mutation. Unconfirmed entries cannot be edited.
func (s *Service) EditPost(ctx context.Context, localID, discussionID string, draft Draft) error {
	ctx, span := telemetry.StartSpan(ctx, "feed.edit_post")
	defer span.End()

	token, err := s.tokens(ctx)
	if err != nil {
		return err
	}

	entry, err := s.store.GetEntry(ctx, localID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if entry == nil {
		if discussionID == "" {
			return ErrNotFound
		}
		return s.editRemoteOnly(ctx, token, discussionID, draft)
	}

	switch entry.Status {
	case models.StatusSynced:
	case models.StatusPending, models.StatusSyncing:
		return ErrNotConfirmed
	default:
		return fmt.Errorf("%w: entry is %s", store.ErrInvalidTransition, entry.Status)
	}
	if entry.DiscussionID == "" {
		return ErrNotConfirmed
	}

	prior, err := entry.Post()
	if err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	meta := s.metadataFromDraft(localID, uuid.NewString(), draft)
	meta.Assets = prior.Metadata.Assets

	body := codec.RewriteMentions(draft.Body)
	encoded, err := codec.Encode(&meta, body, prior.Number)
	if err != nil {
		return err
	}

	next := prior
	next.Metadata = meta
	next.Body = body
	if err := s.store.UpdateSnapshot(ctx, localID, next, models.StatusPendingEdit); err != nil {
		return err
	}

	if err := s.remote.UpdateDiscussion(ctx, token, entry.DiscussionID, meta.Title, encoded); err != nil {
		if ferr := s.store.UpdateStatus(ctx, localID, models.StatusFailed, ""); ferr != nil {
			s.logger.Error("Failed to mark entry failed", zap.String("local_id", localID), zap.Error(ferr))
		}
		return fmt.Errorf("failed to update post: %w", err)
	}

	if err := s.store.UpdateStatus(ctx, localID, models.StatusSynced, ""); err != nil {
		s.logger.Error("Failed to advance entry", zap.String("local_id", localID), zap.Error(err))
	}
	s.logger.Info("Post edited", zap.String("local_id", localID))
	return nil
}

func (s *Service) editRemoteOnly(ctx context.Context, token, discussionID string, draft Draft) error {
	current, err := s.remote.FetchPost(ctx, token, discussionID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}

	meta := s.metadataFromDraft(current.Metadata.LocalID, uuid.NewString(), draft)
	meta.Assets = current.Metadata.Assets

	body := codec.RewriteMentions(draft.Body)
	encoded, err := codec.Encode(&meta, body, current.Number)
	if err != nil {
		return err
	}
	if err := s.remote.UpdateDiscussion(ctx, token, discussionID, meta.Title, encoded); err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return nil
}

// DeletePost removes a post. When the remote identifier is already
// known the delete is issued immediately; an unconfirmed entry is
// marked pendingDeletion and the poller completes the delete once the
// entity surfaces.
func (s *Service) DeletePost(ctx context.Context, localID, discussionID string) error {
	ctx, span := telemetry.StartSpan(ctx, "feed.delete_post")
	defer span.End()

	token, err := s.tokens(ctx)
	if err != nil {
		return err
	}

	entry, err := s.store.GetEntry(ctx, localID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if entry == nil {
		if discussionID == "" {
			return ErrNotFound
		}
		if err := s.remote.DeleteDiscussion(ctx, token, discussionID); err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		return nil
	}

	if entry.DiscussionID != "" {
		if err := s.remote.DeleteDiscussion(ctx, token, entry.DiscussionID); err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		if err := s.store.ClearEntry(ctx, localID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		s.logger.Info("Post deleted", zap.String("local_id", localID))
		return nil
	}

	// Creation not confirmed yet: defer the delete to the poller
	if err := s.store.UpdateStatus(ctx, localID, models.StatusPendingDeletion, ""); err != nil {
		return err
	}
	s.watcher.Watch(localID)
	s.logger.Info("Post deletion deferred until confirmation", zap.String("local_id", localID))
	return nil
}

// Feed returns the reconciled listing: the remote page merged with
// every local shadow.
func (s *Service) Feed(ctx context.Context) ([]models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.list")
	defer span.End()

	token, err := s.tokens(ctx)
	if err != nil {
		return nil, err
	}
	remotePosts, err := s.remote.FetchPosts(ctx, token, s.pageSize)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Merge(ctx, remotePosts)
}

// Post returns one post by remote identifier
func (s *Service) Post(ctx context.Context, discussionID string) (*models.Post, error) {
	token, err := s.tokens(ctx)
	if err != nil {
		return nil, err
	}
	return s.remote.FetchPost(ctx, token, discussionID)
}

// PostByNumber returns one post by human-facing sequence number
func (s *Service) PostByNumber(ctx context.Context, number int) (*models.Post, error) {
	token, err := s.tokens(ctx)
	if err != nil {
		return nil, err
	}
	return s.remote.FetchPostByNumber(ctx, token, number)
}

// UserComments returns comments authored by login across our posts
func (s *Service) UserComments(ctx context.Context, login string) ([]models.Comment, error) {
	token, err := s.tokens(ctx)
	if err != nil {
		return nil, err
	}
	return s.remote.FetchUserComments(ctx, token, login)
}

// AddComment posts a comment, optionally as a reply
func (s *Service) AddComment(ctx context.Context, discussionID, body, replyToID string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.add_comment")
	defer span.End()

	token, err := s.tokens(ctx)
	if err != nil {
		return "", err
	}
	return s.remote.AddComment(ctx, token, discussionID, codec.RewriteMentions(body), replyToID)
}

// ReplyToComment posts a comment as a reply to an existing one
func (s *Service) ReplyToComment(ctx context.Context, discussionID, replyToID, body string) (string, error) {
	return s.AddComment(ctx, discussionID, body, replyToID)
}

// DeleteComment removes a comment
func (s *Service) DeleteComment(ctx context.Context, commentID string) error {
	token, err := s.tokens(ctx)
	if err != nil {
		return err
	}
	return s.remote.DeleteComment(ctx, token, commentID)
}

// AddReaction adds a reaction to a post or comment
func (s *Service) AddReaction(ctx context.Context, subjectID, content string) error {
	token, err := s.tokens(ctx)
	if err != nil {
		return err
	}
	return s.remote.AddReaction(ctx, token, subjectID, content)
}

// RemoveReaction removes a reaction from a post or comment
func (s *Service) RemoveReaction(ctx context.Context, subjectID, content string) error {
	token, err := s.tokens(ctx)
	if err != nil {
		return err
	}
	return s.remote.RemoveReaction(ctx, token, subjectID, content)
}

// Viewer returns the identity the current credential authenticates as
func (s *Service) Viewer(ctx context.Context) (*models.User, error) {
	token, err := s.tokens(ctx)
	if err != nil {
		return nil, err
	}
	return s.remote.Viewer(ctx, token)
}

// Collaborators returns the users who can be tagged on posts
func (s *Service) Collaborators(ctx context.Context) ([]models.User, error) {
	token, err := s.tokens(ctx)
	if err != nil {
		return nil, err
	}
	return s.remote.Collaborators(ctx, token)
}

func (s *Service) metadataFromDraft(localID, versionID string, draft Draft) models.PostMetadata {
	return models.PostMetadata{
		LocalID:       localID,
		VersionID:     versionID,
		Authors:       draft.Authors,
		Collaborators: draft.Collaborators,
		Title:         draft.Title,
		Tags:          draft.Tags,
		Team:          draft.Team,
		Project:       draft.Project,
		URLs:          draft.URLs,
		CommentPins:   draft.CommentPins,
	}
}

// uploadAssets pushes every draft asset and returns two views of the
// result: the uploaded set for the remote encoding, and the previewed
// set for the local snapshot, where an inline preview stands in for
// the not-yet-propagated upload.
func (s *Service) uploadAssets(ctx context.Context, assets []PendingAsset) (uploaded, previewed []models.Asset, err error) {
	if len(assets) == 0 {
		return nil, nil, nil
	}
	if s.uploader == nil {
		return nil, nil, fmt.Errorf("%w: no uploader configured", ErrAssetUpload)
	}

	for _, asset := range assets {
		url, err := s.uploader.Upload(ctx, asset.Filename, asset.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrAssetUpload, asset.Filename, err)
		}
		uploaded = append(uploaded, models.Asset{ID: asset.ID, Type: "image", URL: url})

		local := models.Asset{ID: asset.ID, Type: "image", URL: url, PendingCDN: true}
		if asset.Preview != "" {
			local.URL = asset.Preview
		}
		previewed = append(previewed, local)
	}
	return uploaded, previewed, nil
}
