// Package registry talks to the chain-registry daemon that publishes
// swarm membership and chain height (spec §6), grounded on
// original_source/httpserver/main.cpp's lokid_client JSON-RPC calls and
// on the teacher's net/http-based HTTP transport style
// (internal/cluster/replicator.go).
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"distributed-kvstore/internal/cryptoutil"
	"distributed-kvstore/internal/swarmtable"
)

// Snapshot is the parsed view of a registry snapshot response —
// result.service_node_states[] plus result.{height,target_height,
// block_hash,hardfork} (spec §6).
type Snapshot struct {
	Height       uint64
	TargetHeight uint64
	BlockHash    [32]byte
	Hardfork     uint16
	Swarms       swarmtable.SwarmTable
}

// Client is the collaborator interface the orchestrator consumes.
// Parse failures and hard errors are both left to the caller to retry
// on the next timer tick (spec §6) — this interface never retries
// internally.
type Client interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Ping(ctx context.Context) error
	PerformBlockchainTest(ctx context.Context, maxHeight, seed uint64) (resHeight uint64, err error)
}

// JSONRPCClient is an HTTP+JSON-RPC Client implementation against a
// local registry daemon endpoint.
type JSONRPCClient struct {
	endpoint string
	http     *http.Client
}

// New creates a JSONRPCClient targeting endpoint (e.g.
// "http://127.0.0.1:22023").
func New(endpoint string) *JSONRPCClient {
	return &JSONRPCClient{endpoint: endpoint, http: &http.Client{Timeout: 10 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("registry rpc error %d: %s", e.Code, e.Message) }

func (c *JSONRPCClient) call(ctx context.Context, method string, params any, result any) error {
	reqBody := rpcRequest{JSONRPC: "2.0", ID: "0", Method: method, Params: params}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("registry returned HTTP %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode registry result: %w", err)
		}
	}
	return nil
}

type serviceNodeState struct {
	ServiceNodePubkey string `json:"service_node_pubkey"`
	PubkeysX25519     string `json:"pubkeys_x25519"`
	PubkeysEd25519    string `json:"pubkeys_ed25519"`
	SwarmID           uint64 `json:"swarm_id"`
	StoragePort       uint16 `json:"storage_port"`
	PublicIP          string `json:"public_ip"`
}

type snapshotResult struct {
	Height           uint64             `json:"height"`
	TargetHeight     uint64             `json:"target_height"`
	BlockHash        string             `json:"block_hash"`
	Hardfork         uint16             `json:"hardfork"`
	ServiceNodeStates []serviceNodeState `json:"service_node_states"`
}

// Snapshot fetches and parses the current registry view.
func (c *JSONRPCClient) Snapshot(ctx context.Context) (Snapshot, error) {
	var result snapshotResult
	if err := c.call(ctx, "get_service_nodes", nil, &result); err != nil {
		return Snapshot{}, err
	}

	var hash [32]byte
	if n, err := decodeHexInto(hash[:], result.BlockHash); err != nil || n != 32 {
		return Snapshot{}, fmt.Errorf("malformed block_hash %q: %w", result.BlockHash, err)
	}

	bySwarm := make(map[uint64][]swarmtable.NodeRecord)
	var order []uint64
	for _, st := range result.ServiceNodeStates {
		rec, err := toNodeRecord(st)
		if err != nil {
			return Snapshot{}, fmt.Errorf("malformed service node state: %w", err)
		}
		if _, seen := bySwarm[st.SwarmID]; !seen {
			order = append(order, st.SwarmID)
		}
		bySwarm[st.SwarmID] = append(bySwarm[st.SwarmID], rec)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	table := make(swarmtable.SwarmTable, 0, len(order))
	for _, id := range order {
		members := bySwarm[id]
		sort.Slice(members, func(i, j int) bool { return members[i].Less(members[j]) })
		table = append(table, swarmtable.SwarmInfo{ID: swarmtable.SwarmID(id), Members: members})
	}

	return Snapshot{
		Height:       result.Height,
		TargetHeight: result.TargetHeight,
		BlockHash:    hash,
		Hardfork:     result.Hardfork,
		Swarms:       table,
	}, nil
}

func toNodeRecord(st serviceNodeState) (swarmtable.NodeRecord, error) {
	var rec swarmtable.NodeRecord
	if _, err := decodeHexInto(rec.PubkeyLegacy[:], st.ServiceNodePubkey); err != nil {
		return rec, err
	}
	if _, err := decodeHexInto(rec.PubkeyX25519[:], st.PubkeysX25519); err != nil {
		return rec, err
	}
	if _, err := decodeHexInto(rec.PubkeyEd25519[:], st.PubkeysEd25519); err != nil {
		return rec, err
	}
	rec.IP = st.PublicIP
	rec.Port = st.StoragePort
	rec.Base32zAddr = cryptoutil.SnodeAddress(rec.PubkeyLegacy[:])
	return rec, nil
}

// Ping checks daemon liveness.
func (c *JSONRPCClient) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// PerformBlockchainTest asks the daemon to compute the expected answer
// for a blockchain test (spec §4.F).
func (c *JSONRPCClient) PerformBlockchainTest(ctx context.Context, maxHeight, seed uint64) (uint64, error) {
	params := struct {
		MaxHeight uint64 `json:"max_height"`
		Seed      uint64 `json:"seed"`
	}{maxHeight, seed}

	var result struct {
		ResHeight uint64 `json:"res_height"`
	}
	if err := c.call(ctx, "perform_blockchain_test", params, &result); err != nil {
		return 0, err
	}
	return result.ResHeight, nil
}
