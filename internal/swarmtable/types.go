// Package swarmtable derives swarm membership from a registry snapshot and
// diffs two snapshots into the events a node must react to. It has no
// side effects — every function here is pure, matching the split the
// original storage server draws between Swarm (the pure membership math,
// swarm.cpp) and ServiceNode (the orchestrator that acts on it).
package swarmtable

import "bytes"

// NodeRecord describes one service node as published by the registry.
// Ordering by LegacyPubkey is total and is used for deterministic
// selection throughout swarmtable and peertest.
type NodeRecord struct {
	PubkeyLegacy  [32]byte
	PubkeyX25519  [32]byte
	PubkeyEd25519 [32]byte
	IP            string
	Port          uint16
	Base32zAddr   string
}

// Equal compares two records by their legacy pubkey, the identity used
// throughout the spec for set membership and ordering.
func (n NodeRecord) Equal(other NodeRecord) bool {
	return n.PubkeyLegacy == other.PubkeyLegacy
}

// Less orders NodeRecords by LegacyPubkey, the node ordering required to
// be total and deterministic across the swarm.
func (n NodeRecord) Less(other NodeRecord) bool {
	return bytes.Compare(n.PubkeyLegacy[:], other.PubkeyLegacy[:]) < 0
}

// SwarmID is a globally unique (per epoch) 64-bit swarm identifier.
type SwarmID uint64

// SwarmInfo is one swarm: an id and its ordered member set.
type SwarmInfo struct {
	ID      SwarmID
	Members []NodeRecord // ordered by PubkeyLegacy
}

// SwarmTable is the full membership assignment, sorted by SwarmInfo.ID.
// Invariant: every active NodeRecord belongs to exactly one SwarmInfo.
type SwarmTable []SwarmInfo

// BlockUpdate is an immutable per-tick registry snapshot.
type BlockUpdate struct {
	Height       uint64
	TargetHeight uint64
	BlockHash    [32]byte
	Hardfork     uint16
	Swarms       SwarmTable
}

// SwarmEvents is the diff between a prior and a new SwarmTable, from this
// node's perspective.
type SwarmEvents struct {
	OurSwarmID     SwarmID
	Decommissioned bool
	NewSnodes      []NodeRecord
	NewSwarms      []SwarmID
}

// InvalidSwarmID marks "we have no swarm" (decommissioned or not yet
// assigned). Set to the max uint64 so it can never collide with a
// registry-assigned swarm id.
const InvalidSwarmID SwarmID = ^SwarmID(0)
