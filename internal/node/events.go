package node

import (
	"context"
	"encoding/hex"
	"log"

	"distributed-kvstore/internal/message"
	"distributed-kvstore/internal/registry"
	"distributed-kvstore/internal/swarmtable"
)

// applySnapshot is G's reaction to a fresh RegistryClient snapshot: skip
// if the block hash hasn't changed, otherwise advance state, derive
// events via SwarmTable, and react to them (spec §4.G).
func (n *ServiceNode) applySnapshot(snap registry.Snapshot) {
	n.mu.Lock()
	unchanged := n.haveBlock && n.currentHash == snap.BlockHash
	n.hardfork = snap.Hardfork
	n.syncing = snap.Height < snap.TargetHeight
	n.mu.Unlock()

	if unchanged {
		return
	}

	self := n.selfRecord()

	n.mu.Lock()
	prior := n.currentSwarms
	n.priorSwarms = prior
	n.currentSwarms = snap.Swarms
	n.currentHeight = snap.Height
	n.currentHash = snap.BlockHash
	n.haveBlock = true
	n.hashCache.put(snap.Height, snap.BlockHash)
	n.mu.Unlock()

	events := swarmtable.DeriveEvents(prior, snap.Swarms, self.PubkeyLegacy)

	n.mu.Lock()
	n.ourSwarmID = events.OurSwarmID
	n.mu.Unlock()

	n.reactToEvents(events, snap.Swarms)
	n.initiatePeerTest()
}

// reactToEvents implements the bulk-push fan-out spec §4.G describes:
// new peers get every local message pushed to them; a swarm
// reassignment (or decommission, treated as "all swarms are new")
// re-pushes every local message to its destination swarm's members.
func (n *ServiceNode) reactToEvents(events swarmtable.SwarmEvents, swarms swarmtable.SwarmTable) {
	ctx := context.Background()

	if len(events.NewSnodes) > 0 {
		all, err := n.store.RetrieveAll()
		if err != nil {
			log.Printf("node: retrieve_all for new-snode bulk push failed: %v", err)
		} else {
			for _, peer := range events.NewSnodes {
				n.replicator.PushBulk(ctx, peer, all)
			}
		}
	}

	switch {
	case events.Decommissioned:
		n.bulkPushToSwarms(ctx, swarms)
	case len(events.NewSwarms) > 0:
		n.bulkPushToSwarms(ctx, swarmsByID(swarms, events.NewSwarms))
	}
}

func swarmsByID(table swarmtable.SwarmTable, ids []swarmtable.SwarmID) swarmtable.SwarmTable {
	want := make(map[swarmtable.SwarmID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out swarmtable.SwarmTable
	for _, s := range table {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// bulkPushToSwarms reassigns every local message to its destination
// swarm (looked up per-message by recipient pubkey via
// swarmtable.SwarmForPubkey) and bulk-pushes each swarm's share of
// messages to that swarm's members.
func (n *ServiceNode) bulkPushToSwarms(ctx context.Context, swarms swarmtable.SwarmTable) {
	all, err := n.store.RetrieveAll()
	if err != nil {
		log.Printf("node: retrieve_all for swarm reassignment failed: %v", err)
		return
	}

	byDestination := make(map[swarmtable.SwarmID][]message.Message)
	for _, msg := range all {
		pk, ok := pubkeyBytes(msg.Pubkey)
		if !ok {
			continue
		}
		dest, found := swarmtable.SwarmForPubkey(swarms, pk)
		if !found {
			continue
		}
		byDestination[dest.ID] = append(byDestination[dest.ID], msg)
	}

	self := n.selfRecord()
	for _, s := range swarms {
		msgs := byDestination[s.ID]
		if len(msgs) == 0 {
			continue
		}
		for _, peer := range s.Members {
			if peerEquals(peer, self) {
				continue
			}
			n.replicator.PushBulk(ctx, peer, msgs)
		}
	}
}

// pubkeyBytes decodes a 66-hex-char recipient pubkey into the 33-byte
// form swarmtable.SwarmForPubkey expects.
func pubkeyBytes(hexPubkey string) ([33]byte, bool) {
	var out [33]byte
	decoded, err := hex.DecodeString(hexPubkey)
	if err != nil || len(decoded) != 33 {
		return out, false
	}
	copy(out[:], decoded)
	return out, true
}

func peerEquals(a, b swarmtable.NodeRecord) bool {
	return a.PubkeyLegacy == b.PubkeyLegacy
}
