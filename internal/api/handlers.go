// Package api implements the Boundary (spec §4.G.I / §6): the Gin HTTP
// surface through which clients and peers reach a ServiceNode. Grounded
// on the teacher's internal/api/handlers.go + middleware.go (route
// groups, ShouldBindJSON, gin.H responses, Logger/Recovery middleware),
// generalized from KV semantics to store/retrieve/peer semantics.
package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"distributed-kvstore/internal/codec"
	"distributed-kvstore/internal/listen"
	"distributed-kvstore/internal/message"
	"distributed-kvstore/internal/node"
	"distributed-kvstore/internal/peertest"

	"github.com/gin-gonic/gin"
)

// defaultRetrieveLimit bounds how many messages a single retrieve call
// returns when it doesn't specify one.
const defaultRetrieveLimit = 100

// defaultLongPollTimeout is how long client retrieve blocks waiting for
// a new message before returning an empty batch for the client to
// re-poll (spec §4.E).
const defaultLongPollTimeout = 20 * time.Second

// maxLongPollTimeout bounds a client-requested timeout_ms.
const maxLongPollTimeout = 60 * time.Second

// Handler holds the single ServiceNode every route dispatches into.
type Handler struct {
	node *node.ServiceNode
}

// NewHandler creates a Handler.
func NewHandler(n *node.ServiceNode) *Handler {
	return &Handler{node: n}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/stats/v1", h.Stats)

	r.POST("/store/v1", h.Store)
	r.GET("/retrieve/v1", h.Retrieve)

	swarms := r.Group("/swarms")
	swarms.Use(h.requireRelayHeaders())
	swarms.POST("/push/v1", h.Push)
	swarms.POST("/push_batch/v1", h.PushBatch)
	swarms.POST("/storage_test/v1", h.StorageTest)
	swarms.POST("/blockchain_test/v1", h.BlockchainTest)
}

// ─── Liveness / stats ─────────────────────────────────────────────────────

// Health handles GET /health — the supplemented liveness surface
// (spec SPEC_FULL §3, standing in for main.cpp's get_status_line).
func (h *Handler) Health(c *gin.Context) {
	self := h.node.SelfRecord()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"address": self.Base32zAddr,
		"ready":   h.node.Ready(),
		"height":  h.node.CurrentHeight(),
	})
}

// Stats handles GET /stats/v1, returning the rolling per-peer counters
// (spec §4.H) as JSON.
func (h *Handler) Stats(c *gin.Context) {
	pretty := c.Query("pretty") != ""
	blob, err := h.node.Stats().ToJSON(pretty)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", blob)
}

// ─── Client-facing handlers ───────────────────────────────────────────────

type storeRequest struct {
	Pubkey    string `json:"pubkey" binding:"required"`
	Data      string `json:"data" binding:"required"` // base64-encoded ciphertext
	Hash      string `json:"hash" binding:"required"`
	TTL       uint64 `json:"ttl" binding:"required"`
	Timestamp uint64 `json:"timestamp" binding:"required"`
	Nonce     string `json:"nonce"`
}

// Store handles POST /store/v1 — the client-facing admission pipeline
// (spec §4.G process_store). PoW is computed client-side; the server
// only re-verifies it.
func (h *Handler) Store(c *gin.Context) {
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data must be base64"})
		return
	}

	h.node.Stats().IncrClientStoreRequests()

	msg := toMessage(req, data)
	if admErr := h.node.ProcessStore(c.Request.Context(), msg); admErr != nil {
		writeAdmissionError(c, admErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": true, "hash": msg.Hash})
}

// Retrieve handles GET /retrieve/v1?pubkey=&last_hash=&limit=&timeout_ms=
// — the client long-poll retrieval path (spec §4.E). If nothing new is
// immediately available it registers a continuation and blocks until
// either a notification arrives or the timeout elapses, returning an
// empty batch in the latter case so the client re-polls.
func (h *Handler) Retrieve(c *gin.Context) {
	pubkey := c.Query("pubkey")
	if pubkey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pubkey is required"})
		return
	}
	lastHash := c.Query("last_hash")
	limit := queryInt(c, "limit", defaultRetrieveLimit)
	timeout := queryDuration(c, "timeout_ms", defaultLongPollTimeout, maxLongPollTimeout)

	h.node.Stats().IncrClientRetrieveRequests()

	msgs, err := h.node.Store().Retrieve(pubkey, lastHash, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(msgs) > 0 {
		c.JSON(http.StatusOK, gin.H{"messages": msgs, "more": len(msgs) == limit})
		return
	}

	events := make(chan listen.Event, 1)
	h.node.Listeners().Register(pubkey, events)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-events:
		if ev.Reset {
			msgs, err = h.node.Store().Retrieve(pubkey, lastHash, limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"messages": msgs, "more": len(msgs) == limit})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": ev.Messages, "more": false})
	case <-timer.C:
		c.JSON(http.StatusOK, gin.H{"messages": []any{}, "more": false})
	case <-c.Request.Context().Done():
	}
}

func toMessage(req storeRequest, data []byte) message.Message {
	return message.Message{
		Pubkey:     req.Pubkey,
		Ciphertext: data,
		Hash:       req.Hash,
		TTL:        req.TTL,
		Timestamp:  req.Timestamp,
		Nonce:      req.Nonce,
	}
}

// ─── Peer-facing handlers (relay headers already verified) ───────────────

// Push handles POST /swarms/push/v1 — a single relayed message, encoded
// per internal/codec (spec §4.D).
func (h *Handler) Push(c *gin.Context) {
	body, err := readRelayBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, _, err := codec.DecodeMessage(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if admErr := h.node.ProcessPush(msg); admErr != nil {
		writeAdmissionError(c, admErr)
		return
	}
	c.Status(http.StatusNoContent)
}

// PushBatch handles POST /swarms/push_batch/v1 — a bulk relayed batch
// (spec §4.D/§4.G process_push_batch).
func (h *Handler) PushBatch(c *gin.Context) {
	body, err := readRelayBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.node.ProcessPushBatch(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// StorageTest handles POST /swarms/storage_test/v1 — the testee side of
// a peer storage test (spec §4.F).
func (h *Handler) StorageTest(c *gin.Context) {
	var req peertest.StorageTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, data := h.node.HandleStorageTestRequest(c.Request.Context(), req, relayRequester(c))
	switch outcome {
	case peertest.StorageTestSuccess:
		c.Data(http.StatusOK, "application/octet-stream", data)
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "RETRY"})
	}
}

// BlockchainTest handles POST /swarms/blockchain_test/v1 — the testee
// side of a peer blockchain test (spec §4.F).
func (h *Handler) BlockchainTest(c *gin.Context) {
	var req peertest.BlockchainTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.node.HandleBlockchainTestRequest(c.Request.Context(), req, relayRequester(c))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "ERROR"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
