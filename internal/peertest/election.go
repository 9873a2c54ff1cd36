// Package peertest implements the deterministic tester/testee election
// and the storage and blockchain correctness tests run between swarm
// members (spec §4.F), grounded on the election recipe spec.md itself
// spells out and on original_source/httpserver/service_node.cpp's
// periodic test-initiation timer.
package peertest

import (
	"bytes"
	"encoding/binary"
	"sort"

	"distributed-kvstore/internal/mt19937"
	"distributed-kvstore/internal/swarmtable"
)

// SafetyBufferBlocks is the minimum chain height before blockchain tests
// are attempted, avoiding races at the tip (spec §4.F).
const SafetyBufferBlocks = 8

// Signal is the outcome of an election attempt when the requested
// height can't be resolved from the block-hash cache.
type Signal int

const (
	// SignalOK means tester/testee were computed successfully.
	SignalOK Signal = iota
	// SignalRetry means the height is ahead of what this node has seen.
	SignalRetry
	// SignalError means the height is behind the cache and was evicted.
	SignalError
)

// Pair is the elected tester/testee for one block height.
type Pair struct {
	Tester swarmtable.NodeRecord
	Testee swarmtable.NodeRecord
}

// HashLookup resolves a block height to its hash via the cache G
// maintains, returning ok=false if the height isn't cached.
type HashLookup func(height uint64) (hash [32]byte, ok bool)

// DeriveTesterTestee computes the elected pair for height, given the
// current cached height and the swarm membership (self included). The
// membership is sorted by legacy pubkey so every honest node builds the
// same ordered list before seeding the PRNG.
func DeriveTesterTestee(height, currentHeight uint64, lookup HashLookup, members []swarmtable.NodeRecord) (Pair, Signal) {
	if height > currentHeight {
		return Pair{}, SignalRetry
	}
	hash, ok := lookup(height)
	if !ok {
		return Pair{}, SignalError
	}

	sorted := make([]swarmtable.NodeRecord, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	if len(sorted) == 0 {
		return Pair{}, SignalError
	}

	seed := binary.LittleEndian.Uint64(hash[:8])
	prng := mt19937.New(seed)

	n := uint64(len(sorted))
	testerIdx := prng.Uint64n(n)
	testeeIdx := prng.Uint64n(n)
	for testeeIdx == testerIdx && n > 1 {
		testeeIdx = prng.Uint64n(n)
	}
	// n == 1 means we are alone in the swarm; tester and testee both
	// resolve to ourselves and no test is ever issued (see initiate).

	return Pair{Tester: sorted[testerIdx], Testee: sorted[testeeIdx]}, SignalOK
}

// IsSelf reports whether rec is the same node as self, compared by
// legacy pubkey.
func IsSelf(rec, self swarmtable.NodeRecord) bool {
	return bytes.Equal(rec.PubkeyLegacy[:], self.PubkeyLegacy[:])
}
