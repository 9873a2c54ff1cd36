// Package client provides a Go SDK for talking to one swarm service
// node's Boundary surface (spec §6).
//
// Big idea:
//
// Instead of writing raw HTTP requests everywhere,
// we wrap them inside a clean Go API.
//
// So instead of:
//
//	http.NewRequest(...)
//	json.Marshal(...)
//
// Users can simply call:
//
//	client.Store(ctx, req)
//	client.Retrieve(ctx, pubkey, lastHash, timeoutMS)
//
// This is called a "client library" or "SDK".
//
// It hides:
//   - HTTP details
//   - JSON encoding/decoding
//   - Error handling
//
// And exposes a clean Go interface.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to ONE service node.
//
// Important:
//
// A node belongs to exactly one swarm and only ever stores messages
// addressed to that swarm. If a store is rejected WRONG_SWARM, the
// caller is responsible for retrying against one of the redirect
// targets — this client does not implement swarm routing itself.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Client.
//
// baseURL example:
//
//	"http://localhost:22021"
//
// timeout protects us from hanging forever. In distributed systems:
// NEVER call network without a timeout — except Retrieve, which is a
// deliberate long-poll and manages its own wait budget via the
// timeoutMS parameter.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StoreRequest is what the caller supplies to Store. Hash and Nonce are
// the client-computed proof-of-work fields — this SDK does not compute
// PoW itself (verify_pow is an external collaborator per spec §1).
type StoreRequest struct {
	Pubkey    string
	Data      []byte
	Hash      string
	TTL       uint64
	Timestamp uint64
	Nonce     string
}

// StoreResponse is returned after a successful store.
type StoreResponse struct {
	Stored bool   `json:"stored"`
	Hash   string `json:"hash"`
}

// Store submits a message for admission (spec §4.G process_store).
//
// Flow:
//
//  1. Base64-encode the ciphertext
//  2. Build the JSON body
//  3. POST to /store/v1
//  4. Decode either the success body or the structured admission error
func (c *Client) Store(ctx context.Context, req StoreRequest) (*StoreResponse, error) {
	body, _ := json.Marshal(map[string]any{
		"pubkey":    req.Pubkey,
		"data":      base64.StdEncoding.EncodeToString(req.Data),
		"hash":      req.Hash,
		"ttl":       req.TTL,
		"timestamp": req.Timestamp,
		"nonce":     req.Nonce,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/store/v1", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result StoreResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// RetrieveMessage mirrors the wire shape of a stored message as JSON —
// ciphertext travels base64-encoded via Go's default []byte marshaling.
type RetrieveMessage struct {
	Pubkey     string `json:"Pubkey"`
	Ciphertext []byte `json:"Ciphertext"`
	Hash       string `json:"Hash"`
	TTL        uint64 `json:"TTL"`
	Timestamp  uint64 `json:"Timestamp"`
	Nonce      string `json:"Nonce"`
}

// RetrieveResponse is what /retrieve/v1 returns.
type RetrieveResponse struct {
	Messages []RetrieveMessage `json:"messages"`
	More     bool              `json:"more"`
}

// Retrieve long-polls for messages addressed to pubkey newer than
// lastHash (spec §4.E). timeoutMS, if non-zero, bounds how long the
// server blocks before returning an empty batch — the caller is
// expected to call Retrieve again afterward.
func (c *Client) Retrieve(ctx context.Context, pubkey, lastHash string, timeoutMS int) (*RetrieveResponse, error) {
	q := url.Values{}
	q.Set("pubkey", pubkey)
	if lastHash != "" {
		q.Set("last_hash", lastHash)
	}
	if timeoutMS > 0 {
		q.Set("timeout_ms", strconv.Itoa(timeoutMS))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/retrieve/v1?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result RetrieveResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Stats fetches the node's rolling per-peer counters (spec §4.H) as a
// raw JSON blob — the shape is intentionally left opaque to the SDK
// since it's an operational surface, not a client-facing contract.
func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/stats/v1")
}

// Health fetches the node's liveness/readiness surface.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/health")
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts HTTP error responses into Go errors.
//
// If status is 2xx → success.
// Otherwise:
//
//  1. Read response body
//  2. Try parsing {"error": "..."} JSON
//  3. Return APIError
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
