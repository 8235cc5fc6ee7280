// Package api exposes the feed operations over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dailydrops/drops/internal/cache"
	"github.com/dailydrops/drops/internal/feed"
	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/pkg/logging"
)

// Router sets up API routes
type Router struct {
	svc    *feed.Service
	assets *cache.AssetCache
	token  feed.TokenProvider
	logger *zap.Logger
}

// NewRouter creates a new API router. assets may be nil when asset
// serving is not configured.
func NewRouter(svc *feed.Service, assets *cache.AssetCache, token feed.TokenProvider) *Router {
	return &Router{
		svc:    svc,
		assets: assets,
		token:  token,
		logger: logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	engine.Use(BearerToken())

	engine.GET("/posts", r.listPosts)
	engine.POST("/posts", r.createPost)
	engine.GET("/posts/:id", r.getPost)
	engine.GET("/posts/number/:number", r.getPostByNumber)
	engine.PATCH("/posts/:id", r.editPost)
	engine.DELETE("/posts/:id", r.deletePost)
	engine.POST("/posts/:id/comments", r.addComment)
	engine.DELETE("/comments/:id", r.deleteComment)
	engine.POST("/subjects/:id/reactions", r.addReaction)
	engine.DELETE("/subjects/:id/reactions", r.removeReaction)
	engine.GET("/users/:login/comments", r.userComments)
	engine.GET("/viewer", r.viewer)
	engine.GET("/collaborators", r.collaborators)
	engine.GET("/assets", r.getAsset)
}

func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "drops-api",
	})
}

func (r *Router) fail(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.Code >= http.StatusInternalServerError {
		r.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
}

// draftRequest is the JSON shape shared by create and edit
type draftRequest struct {
	Title         string              `json:"title"`
	Body          string              `json:"body"`
	Authors       []string            `json:"authors"`
	Collaborators []string            `json:"collaborators"`
	Tags          []string            `json:"tags"`
	Team          string              `json:"team"`
	Project       string              `json:"project"`
	URLs          []string            `json:"urls"`
	Assets        []assetRequest      `json:"assets"`
	CommentPins   []models.CommentPin `json:"commentPins"`
}

type assetRequest struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Data     []byte `json:"data"` // base64 in JSON
	Preview  string `json:"preview"`
}

func (d *draftRequest) toDraft() feed.Draft {
	draft := feed.Draft{
		Title:         d.Title,
		Body:          d.Body,
		Authors:       d.Authors,
		Collaborators: d.Collaborators,
		Tags:          d.Tags,
		Team:          d.Team,
		Project:       d.Project,
		URLs:          d.URLs,
		CommentPins:   d.CommentPins,
	}
	for _, a := range d.Assets {
		draft.Assets = append(draft.Assets, feed.PendingAsset{
			ID:       a.ID,
			Filename: a.Filename,
			Data:     a.Data,
			Preview:  a.Preview,
		})
	}
	return draft
}

func (r *Router) listPosts(c *gin.Context) {
	posts, err := r.svc.Feed(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (r *Router) createPost(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.fail(c, NewError(http.StatusBadRequest, err.Error()))
		return
	}
	post, err := r.svc.CreatePost(c.Request.Context(), req.toDraft())
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (r *Router) getPost(c *gin.Context) {
	id := feed.ParsePostParam(c.Param("id"))
	post, err := r.svc.Post(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	if post == nil {
		r.fail(c, feed.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) getPostByNumber(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		r.fail(c, NewError(http.StatusBadRequest, "number must be an integer"))
		return
	}
	post, err := r.svc.PostByNumber(c.Request.Context(), number)
	if err != nil {
		r.fail(c, err)
		return
	}
	if post == nil {
		r.fail(c, feed.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) editPost(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.fail(c, NewError(http.StatusBadRequest, err.Error()))
		return
	}
	id := feed.ParsePostParam(c.Param("id"))
	localID := c.Query("localID")
	if localID == "" {
		localID = id
	}
	if err := r.svc.EditPost(c.Request.Context(), localID, id, req.toDraft()); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) deletePost(c *gin.Context) {
	id := feed.ParsePostParam(c.Param("id"))
	localID := c.Query("localID")
	if localID == "" {
		localID = id
	}
	if err := r.svc.DeletePost(c.Request.Context(), localID, id); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) addComment(c *gin.Context) {
	var req struct {
		Body      string `json:"body"`
		ReplyToID string `json:"replyToID"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		r.fail(c, NewError(http.StatusBadRequest, err.Error()))
		return
	}
	id := feed.ParsePostParam(c.Param("id"))
	commentID, err := r.svc.AddComment(c.Request.Context(), id, req.Body, req.ReplyToID)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": commentID})
}

func (r *Router) deleteComment(c *gin.Context) {
	if err := r.svc.DeleteComment(c.Request.Context(), c.Param("id")); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) addReaction(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		r.fail(c, NewError(http.StatusBadRequest, err.Error()))
		return
	}
	if err := r.svc.AddReaction(c.Request.Context(), c.Param("id"), req.Content); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) removeReaction(c *gin.Context) {
	content := c.Query("content")
	if content == "" {
		r.fail(c, NewError(http.StatusBadRequest, "content is required"))
		return
	}
	if err := r.svc.RemoveReaction(c.Request.Context(), c.Param("id"), content); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) userComments(c *gin.Context) {
	comments, err := r.svc.UserComments(c.Request.Context(), c.Param("login"))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (r *Router) viewer(c *gin.Context) {
	user, err := r.svc.Viewer(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (r *Router) collaborators(c *gin.Context) {
	users, err := r.svc.Collaborators(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (r *Router) getAsset(c *gin.Context) {
	if r.assets == nil {
		r.fail(c, NewError(http.StatusNotImplemented, "asset serving not configured"))
		return
	}
	rawURL := c.Query("url")
	if rawURL == "" {
		r.fail(c, NewError(http.StatusBadRequest, "url is required"))
		return
	}
	token, err := r.token(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	data, err := r.assets.Get(c.Request.Context(), token, rawURL)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
