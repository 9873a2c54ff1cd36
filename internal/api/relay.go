package api

import (
	"bytes"
	"crypto/ed25519"
	"io"
	"net/http"

	"distributed-kvstore/internal/cryptoutil"
	"distributed-kvstore/internal/swarmtable"

	"github.com/gin-gonic/gin"
)

const (
	headerPubkey    = "X-Loki-Snode-PubKey"
	headerSignature = "X-Loki-Snode-Signature"
	requesterKey    = "relay_requester"
)

// requireRelayHeaders verifies the two relay headers spec §4.D requires
// on every peer endpoint: the claimed base32z address must belong to a
// node in our current swarm table, and the signature must verify
// against that node's ed25519 key over the SHA-512 digest of the raw
// body. On success the verified NodeRecord is stashed in the gin
// context under requesterKey and the body is rewound so the handler
// can still read it.
func (h *Handler) requireRelayHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.GetHeader(headerPubkey)
		sig := c.GetHeader(headerSignature)
		if addr == "" || sig == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing relay headers"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		requester, found := swarmtable.FindByAddress(h.node.SwarmTableSnapshot(), addr)
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown relay address"})
			return
		}
		if !cryptoutil.VerifyRelayBody(ed25519.PublicKey(requester.PubkeyEd25519[:]), body, sig) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid relay signature"})
			return
		}

		c.Set(requesterKey, requester)
		c.Next()
	}
}

// relayRequester fetches the NodeRecord requireRelayHeaders verified
// for this request.
func relayRequester(c *gin.Context) swarmtable.NodeRecord {
	v, _ := c.Get(requesterKey)
	rec, _ := v.(swarmtable.NodeRecord)
	return rec
}
