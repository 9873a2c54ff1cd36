package swarmtable

import "encoding/binary"

// DeriveEvents diffs the prior SwarmTable P against the new SwarmTable N
// from this node's (me) perspective (spec §4.A).
func DeriveEvents(prior, next SwarmTable, me [32]byte) SwarmEvents {
	events := SwarmEvents{OurSwarmID: InvalidSwarmID}

	wasIn := false
	for _, s := range prior {
		if containsPubkey(s.Members, me) {
			wasIn = true
			break
		}
	}

	isIn := false
	for _, s := range next {
		if containsPubkey(s.Members, me) {
			events.OurSwarmID = s.ID
			isIn = true
			break
		}
	}

	events.Decommissioned = wasIn && !isIn

	priorNodes := flattenByPubkey(prior)
	for _, n := range flatten(next) {
		if _, ok := priorNodes[n.PubkeyLegacy]; !ok {
			events.NewSnodes = append(events.NewSnodes, n)
		}
	}

	priorSwarms := make(map[SwarmID]struct{}, len(prior))
	for _, s := range prior {
		priorSwarms[s.ID] = struct{}{}
	}
	for _, s := range next {
		if _, ok := priorSwarms[s.ID]; !ok {
			events.NewSwarms = append(events.NewSwarms, s.ID)
		}
	}

	return events
}

func containsPubkey(members []NodeRecord, pk [32]byte) bool {
	for _, m := range members {
		if m.PubkeyLegacy == pk {
			return true
		}
	}
	return false
}

func flatten(table SwarmTable) []NodeRecord {
	var out []NodeRecord
	for _, s := range table {
		out = append(out, s.Members...)
	}
	return out
}

func flattenByPubkey(table SwarmTable) map[[32]byte]NodeRecord {
	out := make(map[[32]byte]NodeRecord)
	for _, s := range table {
		for _, m := range s.Members {
			out[m.PubkeyLegacy] = m
		}
	}
	return out
}

// SwarmForPubkey finds the SwarmInfo in table whose id minimizes the
// unsigned circular distance to the recipient pubkey's first 8 bytes
// (little-endian), ties broken by smaller id (spec §4.A step 4).
func SwarmForPubkey(table SwarmTable, pubkey [33]byte) (SwarmInfo, bool) {
	if len(table) == 0 {
		return SwarmInfo{}, false
	}

	pk64 := binary.LittleEndian.Uint64(pubkey[:8])

	best := table[0]
	bestDist := circularDistance(uint64(best.ID), pk64)

	for _, s := range table[1:] {
		dist := circularDistance(uint64(s.ID), pk64)
		if dist < bestDist || (dist == bestDist && s.ID < best.ID) {
			best = s
			bestDist = dist
		}
	}
	return best, true
}

// FindByAddress looks up the NodeRecord whose base32z address matches
// addr across every swarm in table — used to resolve a relay request's
// claimed X-Loki-Snode-PubKey header to the ed25519 key it must have
// signed with.
func FindByAddress(table SwarmTable, addr string) (NodeRecord, bool) {
	for _, s := range table {
		for _, m := range s.Members {
			if m.Base32zAddr == addr {
				return m, true
			}
		}
	}
	return NodeRecord{}, false
}

// circularDistance computes min((id-pk) mod 2^64, (pk-id) mod 2^64)
// entirely in unsigned 64-bit arithmetic (Go wraps on overflow, giving us
// modulo 2^64 for free).
func circularDistance(id, pk uint64) uint64 {
	fwd := id - pk
	bwd := pk - id
	if fwd < bwd {
		return fwd
	}
	return bwd
}
