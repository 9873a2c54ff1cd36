// Package stats keeps rolling per-peer counters and test outcomes (spec
// §4.H), grounded on original_source/httpserver/stats.cpp's
// all_stats_t — a JSON-dumpable map keyed by peer address, pruned on a
// rolling 60-minute window.
package stats

import (
	"encoding/json"
	"sync"
	"time"
)

// RollingWindow bounds how long a test outcome is kept before cleanup.
const RollingWindow = 60 * time.Minute

// TestOutcome records one storage or blockchain test result.
type TestOutcome struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

type peerCounters struct {
	StorageTests     []TestOutcome `json:"storage_tests"`
	BlockchainTests  []TestOutcome `json:"blockchain_tests"`
	RequestsFailed   uint64        `json:"requests_failed"`
	PushesFailed     uint64        `json:"pushes_failed"`
}

// Stats is the in-memory accounting table, keyed by base32z peer address.
// All mutation is protected by a single mutex — this lives entirely on
// the main driver (spec §5), so the lock only guards against the HTTP
// handlers and timers that may call in from goroutines spawned off it.
type Stats struct {
	mu    sync.Mutex
	peers map[string]*peerCounters

	clientStoreRequests    uint64
	clientRetrieveRequests uint64
	resetTime              time.Time
}

// New creates an empty Stats table.
func New() *Stats {
	return &Stats{peers: make(map[string]*peerCounters), resetTime: time.Now()}
}

func (s *Stats) peer(addr string) *peerCounters {
	p, ok := s.peers[addr]
	if !ok {
		p = &peerCounters{}
		s.peers[addr] = p
	}
	return p
}

// RecordStorageTest appends a storage-test outcome for peer addr.
func (s *Stats) RecordStorageTest(addr string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.peer(addr)
	p.StorageTests = append(p.StorageTests, TestOutcome{Timestamp: time.Now(), Success: success})
}

// RecordBlockchainTest appends a blockchain-test outcome for peer addr.
func (s *Stats) RecordBlockchainTest(addr string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.peer(addr)
	p.BlockchainTests = append(p.BlockchainTests, TestOutcome{Timestamp: time.Now(), Success: success})
}

// RecordRequestFailed increments the generic request-failure counter.
func (s *Stats) RecordRequestFailed(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer(addr).RequestsFailed++
}

// RecordPushFailed increments the give-up counter — called exactly once
// per message per peer after the 8th failed retry attempt (spec §4.D).
func (s *Stats) RecordPushFailed(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer(addr).PushesFailed++
}

// IncrClientStoreRequests bumps the client store-request counter.
func (s *Stats) IncrClientStoreRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientStoreRequests++
}

// IncrClientRetrieveRequests bumps the client retrieve-request counter.
func (s *Stats) IncrClientRetrieveRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientRetrieveRequests++
}

// Cleanup prunes test outcomes older than RollingWindow, run from the
// StatsCleanup timer (spec §4.G, every 60 minutes).
func (s *Stats) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-RollingWindow)
	for _, p := range s.peers {
		p.StorageTests = pruneBefore(p.StorageTests, cutoff)
		p.BlockchainTests = pruneBefore(p.BlockchainTests, cutoff)
	}
}

func pruneBefore(tests []TestOutcome, cutoff time.Time) []TestOutcome {
	idx := 0
	for idx < len(tests) && tests[idx].Timestamp.Before(cutoff) {
		idx++
	}
	return tests[idx:]
}

// snapshot is the JSON-marshalable view of the whole table.
type snapshot struct {
	ClientStoreRequests    uint64                   `json:"client_store_requests"`
	ClientRetrieveRequests uint64                   `json:"client_retrieve_requests"`
	ResetTime              time.Time                `json:"reset_time"`
	Peers                  map[string]*peerCounters `json:"peers"`
}

// ToJSON renders the current table as JSON, matching
// all_stats_t::to_json's shape (counters + per-peer test history).
func (s *Stats) ToJSON(pretty bool) ([]byte, error) {
	s.mu.Lock()
	peersCopy := make(map[string]*peerCounters, len(s.peers))
	for k, v := range s.peers {
		cp := *v
		peersCopy[k] = &cp
	}
	snap := snapshot{
		ClientStoreRequests:    s.clientStoreRequests,
		ClientRetrieveRequests: s.clientRetrieveRequests,
		ResetTime:              s.resetTime,
		Peers:                  peersCopy,
	}
	s.mu.Unlock()

	if pretty {
		return json.MarshalIndent(snap, "", "  ")
	}
	return json.Marshal(snap)
}
