// Package replicate pushes stored messages out to the rest of a swarm
// and retries failed peers on a fixed backoff schedule (spec §4.D),
// grounded on internal/cluster/replicator.go's fan-out/HTTP-transport
// shape, generalized from quorum-write acking to fire-and-forget relay,
// and on original_source/httpserver/service_node.cpp's
// FailedRequestHandler retry loop.
package replicate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"distributed-kvstore/internal/codec"
	"distributed-kvstore/internal/cryptoutil"
	"distributed-kvstore/internal/message"
	"distributed-kvstore/internal/stats"
	"distributed-kvstore/internal/swarmtable"
)

const (
	pathPush        = "/swarms/push/v1"
	pathPushBatch   = "/swarms/push_batch/v1"
	pathStorageTest = "/swarms/storage_test/v1"
	pathBlockchainTest = "/swarms/blockchain_test/v1"

	headerPubkey    = "X-Loki-Snode-PubKey"
	headerSignature = "X-Loki-Snode-Signature"
)

// RetryIntervals is the fixed backoff schedule for a failed peer push:
// 1, 5, 10, 20, 40, 80, 160, 320 seconds across 8 attempts, the
// authoritative table per spec §4.D / Open Question 1 — superseding the
// 5-interval table in original_source's RETRY_INTERVALS.
var RetryIntervals = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	40 * time.Second,
	80 * time.Second,
	160 * time.Second,
	320 * time.Second,
}

// Replicator relays stored messages to swarm peers over HTTP, signing
// every request with this node's own keys so the receiver can verify
// the relay headers.
type Replicator struct {
	keys   cryptoutil.NodeKeys
	client *http.Client
	stats  *stats.Stats
}

// New creates a Replicator that signs outgoing pushes with keys and
// records failures against stats.
func New(keys cryptoutil.NodeKeys, stats *stats.Stats) *Replicator {
	return &Replicator{
		keys:   keys,
		client: &http.Client{Timeout: 10 * time.Second},
		stats:  stats,
	}
}

func peerURL(peer swarmtable.NodeRecord, path string) string {
	return fmt.Sprintf("http://%s:%d%s", peer.IP, peer.Port, path)
}

// Send issues a single signed POST to peer and returns an error unless
// the peer responds 2xx.
func (r *Replicator) Send(ctx context.Context, peer swarmtable.NodeRecord, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(peer, path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(headerPubkey, r.keys.Address)
	req.Header.Set(headerSignature, cryptoutil.SignRelayBody(r.keys.LegacyPrivate, body))

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s returned HTTP %d", peer.Base32zAddr, resp.StatusCode)
	}
	return nil
}

// PushOne relays a single message to peer. The first attempt is made
// before PushOne returns; if it fails, the retries on the fixed backoff
// schedule run in a background goroutine. ProcessStore calls PushOne in
// its own goroutine so the client never waits on replication (spec §4.D).
func (r *Replicator) PushOne(ctx context.Context, peer swarmtable.NodeRecord, msg message.Message) {
	body := codec.EncodeMessage(nil, msg)
	r.relayWithRetry(ctx, peer, pathPush, body)
}

// PushBulk relays a full batch of messages to peer, splitting into
// codec.MaxBatchSize-bounded chunks and retrying each chunk
// independently, matching bootstrap_peers/salvage_data's bulk-push
// behavior in the original.
func (r *Replicator) PushBulk(ctx context.Context, peer swarmtable.NodeRecord, msgs []message.Message) {
	for _, chunk := range codec.EncodeBatch(msgs) {
		r.relayWithRetry(ctx, peer, pathPushBatch, chunk)
	}
}

// relayWithRetry attempts the send immediately; on failure it spawns a
// FailedRequestHandler goroutine that owns its own retry timer rather
// than the original's ref-counted self-pointer scheme (Design Note §9).
func (r *Replicator) relayWithRetry(ctx context.Context, peer swarmtable.NodeRecord, path string, body []byte) {
	if err := r.Send(ctx, peer, path, body); err == nil {
		return
	}
	go r.retryLoop(ctx, peer, path, body)
}

// retryLoop walks RetryIntervals, re-attempting the send after each
// delay. It gives up and records a stats failure once every interval
// has been exhausted, or if ctx is cancelled first (e.g. node shutdown).
func (r *Replicator) retryLoop(ctx context.Context, peer swarmtable.NodeRecord, path string, body []byte) {
	for _, delay := range RetryIntervals {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := r.Send(ctx, peer, path, body); err == nil {
			return
		}
	}
	if r.stats != nil {
		r.stats.RecordPushFailed(peer.Base32zAddr)
	}
}

// StorageTestPath returns the peer storage-test endpoint, exported so
// internal/node's tester side can pass it to Request without duplicating
// the URL scheme.
func StorageTestPath() string { return pathStorageTest }

// BlockchainTestPath returns the peer blockchain-test endpoint.
func BlockchainTestPath() string { return pathBlockchainTest }

// Request issues a single signed POST to peer and returns peer's
// response body. Unlike PushOne/PushBulk this never retries — spec §4.F
// says a failed peer test is simply recorded as a failure, since the
// next block advance yields a fresh tester/testee pair.
func (r *Replicator) Request(ctx context.Context, peer swarmtable.NodeRecord, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(peer, path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerPubkey, r.keys.Address)
	req.Header.Set(headerSignature, cryptoutil.SignRelayBody(r.keys.LegacyPrivate, body))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("peer %s returned HTTP %d", peer.Base32zAddr, resp.StatusCode)
	}
	return data, nil
}
