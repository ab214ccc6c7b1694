// Package feedapi wires up the Gin HTTP router for a news-feed node:
// user/post/relationship management, engagement actions, and the
// paginated feed read.
package feedapi

import (
	"errors"
	"net/http"
	"strconv"

	"distsys/internal/feed"

	"github.com/gin-gonic/gin"
)

// Handler holds the feed engine injected from main.
type Handler struct {
	engine *feed.FeedEngine
}

// NewHandler creates a Handler for engine.
func NewHandler(engine *feed.FeedEngine) *Handler {
	return &Handler{engine: engine}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	users := r.Group("/users")
	users.POST("", h.CreateUser)
	users.GET("/:userID", h.GetUser)
	users.POST("/:userID/follow/:targetID", h.Follow)
	users.DELETE("/:userID/follow/:targetID", h.Unfollow)
	users.POST("/:userID/block/:targetID", h.Block)
	users.DELETE("/:userID/block/:targetID", h.Unblock)
	users.GET("/:userID/feed", h.GetNewsFeed)

	posts := r.Group("/posts")
	posts.POST("", h.PublishPost)
	posts.DELETE("/:postID", h.DeletePost)
	posts.POST("/:postID/like", h.Like)
	posts.DELETE("/:postID/like", h.Unlike)
	posts.POST("/:postID/comments", h.Comment)
	posts.POST("/:postID/shares", h.Share)
}

// ─── users ──────────────────────────────────────────────────────────

type createUserRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.engine.CreateUser(req.Username, req.DisplayName, req.Bio)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.engine.GetUser(c.Param("userID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Follow(c *gin.Context) {
	changed, err := h.engine.Follow(c.Param("userID"), c.Param("targetID"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *Handler) Unfollow(c *gin.Context) {
	changed := h.engine.Unfollow(c.Param("userID"), c.Param("targetID"))
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *Handler) Block(c *gin.Context) {
	changed, err := h.engine.Block(c.Param("userID"), c.Param("targetID"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *Handler) Unblock(c *gin.Context) {
	changed := h.engine.Unblock(c.Param("userID"), c.Param("targetID"))
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *Handler) GetNewsFeed(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	entries, err := h.engine.GetNewsFeed(c.Request.Context(), c.Param("userID"), limit, offset)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ─── posts ──────────────────────────────────────────────────────────

type publishPostRequest struct {
	AuthorUserID string   `json:"author_user_id" binding:"required"`
	Content      string   `json:"content" binding:"required"`
	Type         string   `json:"type"`
	MediaIDs     []string `json:"media_ids"`
}

func (h *Handler) PublishPost(c *gin.Context) {
	var req publishPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := parsePostType(req.Type)
	post, err := h.engine.PublishPost(c.Request.Context(), req.AuthorUserID, req.Content, kind, req.MediaIDs)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *Handler) DeletePost(c *gin.Context) {
	postID, err := paramUint64(c, "postID")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deleted, err := h.engine.DeletePost(c.Request.Context(), postID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type actionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) Like(c *gin.Context) {
	postID, err := paramUint64(c, "postID")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changed, err := h.engine.Like(req.UserID, postID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *Handler) Unlike(c *gin.Context) {
	postID, err := paramUint64(c, "postID")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changed, err := h.engine.Unlike(req.UserID, postID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

type commentRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *Handler) Comment(c *gin.Context) {
	postID, err := paramUint64(c, "postID")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	derived, err := h.engine.Comment(c.Request.Context(), req.UserID, postID, req.Content)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, derived)
}

type shareRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Content string `json:"content"`
}

func (h *Handler) Share(c *gin.Context) {
	postID, err := paramUint64(c, "postID")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	derived, err := h.engine.Share(c.Request.Context(), req.UserID, postID, req.Content)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, derived)
}

// ─── helpers ────────────────────────────────────────────────────────

func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, feed.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, feed.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parsePostType(s string) feed.PostType {
	switch s {
	case "image":
		return feed.PostImage
	case "video":
		return feed.PostVideo
	default:
		return feed.PostText
	}
}

func paramUint64(c *gin.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
