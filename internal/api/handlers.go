// Package api wires up the Gin HTTP router for a replicated KV node:
// the public client-facing surface and the internal peer-to-peer
// surface peers use for replication and gossip.
package api

import (
	"errors"
	"net/http"

	"distsys/internal/cluster"
	"distsys/internal/store"
	"distsys/internal/vclock"

	"github.com/gin-gonic/gin"
)

// Handler holds all dependencies injected from main.
type Handler struct {
	node *cluster.Node
}

// NewHandler creates a Handler for node.
func NewHandler(node *cluster.Node) *Handler {
	return &Handler{node: node}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	kv := r.Group("/kv")
	kv.GET("/:key", h.Get)
	kv.PUT("/:key", h.Put)
	kv.DELETE("/:key", h.Delete)

	clusterGroup := r.Group("/cluster")
	clusterGroup.GET("/nodes", h.ListNodes)
	clusterGroup.GET("/peers", h.Peers)

	internal := r.Group("/internal")
	internal.POST("/replicate", h.InternalReplicate)
	internal.POST("/forward-put", h.InternalForwardPut)
	internal.GET("/fetch/:key", h.InternalFetch)
	internal.DELETE("/fetch/:key", h.InternalDelete)
	internal.POST("/gossip", h.InternalGossip)
}

// ─── Public KV handlers ────────────────────────────────────────────────

type putRequest struct {
	Value   string       `json:"value" binding:"required"`
	Context vclock.Clock `json:"context"`
}

// Put handles PUT /kv/:key.
func (h *Handler) Put(c *gin.Context) {
	key := c.Param("key")

	var body putRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newClock, err := h.node.Put(key, body.Value, body.Context)
	if err != nil {
		writeClusterError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "clock": newClock})
}

// Get handles GET /kv/:key.
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")

	res, err := h.node.Get(key)
	if err != nil {
		writeClusterError(c, err)
		return
	}
	if !res.Found {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	if res.Conflict() {
		c.JSON(http.StatusOK, gin.H{"key": key, "siblings": res.Values(), "clock": res.Clock, "conflict": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": res.Value(), "clock": res.Clock, "conflict": false})
}

// Delete handles DELETE /kv/:key.
func (h *Handler) Delete(c *gin.Context) {
	key := c.Param("key")

	if err := h.node.Delete(key); err != nil {
		writeClusterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": key})
}

func writeClusterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cluster.ErrNoResponsibleNodes):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, cluster.ErrQuorumNotReached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ─── Cluster introspection ─────────────────────────────────────────────

// ListNodes handles GET /cluster/nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": h.node.Ring.Nodes()})
}

// Peers implements the Directory contract a joining node polls.
func (h *Handler) Peers(c *gin.Context) {
	peers, err := h.node.Peers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers})
}

// ─── Internal (peer-to-peer) handlers ──────────────────────────────────

type replicateRequest struct {
	Key      string                 `json:"key" binding:"required"`
	Siblings []store.VersionedValue `json:"siblings"`
}

// InternalReplicate handles POST /internal/replicate: a peer pushing a
// sibling set for this node to merge into its local store.
func (h *Handler) InternalReplicate(c *gin.Context) {
	var req replicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.node.Store.ApplyRemote(req.Key, req.Siblings) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "apply remote failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type forwardPutRequest struct {
	Key     string       `json:"key" binding:"required"`
	Value   string       `json:"value" binding:"required"`
	Context vclock.Clock `json:"context"`
}

// InternalForwardPut handles POST /internal/forward-put: a peer asking
// this node to coordinate a write it isn't itself responsible for.
func (h *Handler) InternalForwardPut(c *gin.Context) {
	var req forwardPutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newClock, err := h.node.Put(req.Key, req.Value, req.Context)
	if err != nil {
		writeClusterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clock": newClock})
}

// InternalFetch handles GET /internal/fetch/:key: returns the raw
// sibling set so peers can read-repair.
func (h *Handler) InternalFetch(c *gin.Context) {
	key := c.Param("key")
	sibs, ok := h.node.Store.GetRaw(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"siblings": sibs})
}

// InternalDelete handles DELETE /internal/fetch/:key: a peer asking
// this node to delete its local copy.
func (h *Handler) InternalDelete(c *gin.Context) {
	key := c.Param("key")
	if _, err := h.node.Store.Delete(key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type gossipRequest struct {
	View        map[string]uint64 `json:"view"`
	KnownFailed []string          `json:"known_failed"`
}

// InternalGossip handles POST /internal/gossip: merges the sender's
// heartbeat view and known-failed set, and replies with this node's own.
func (h *Handler) InternalGossip(c *gin.Context) {
	var req gossipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.node.Member.Merge(req.View, req.KnownFailed)
	c.JSON(http.StatusOK, gin.H{
		"view":         h.node.Member.View(),
		"known_failed": h.node.Member.KnownFailed(),
	})
}
