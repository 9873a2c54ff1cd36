package node

import (
	"context"
	"log"

	"distributed-kvstore/internal/codec"
	"distributed-kvstore/internal/message"
	"distributed-kvstore/internal/powschedule"
	"distributed-kvstore/internal/swarmtable"
)

// validate runs the shared TTL/timestamp/PoW checks steps 3 of both
// process_store and process_push share (spec §4.G), returning the
// first-failing reason.
func (n *ServiceNode) validate(msg message.Message) *AdmissionError {
	if msg.TTL == 0 || msg.TTL > uint64(message.MaxTTL.Milliseconds()) {
		return &AdmissionError{Kind: KindInvalidTTL}
	}

	now := powschedule.NowMS()
	var skew uint64
	if now > msg.Timestamp {
		skew = now - msg.Timestamp
	} else {
		skew = msg.Timestamp - now
	}
	if skew > uint64(message.TimestampSkew.Milliseconds()) {
		return &AdmissionError{Kind: KindInvalidTimestamp}
	}

	difficulty, ok := n.powStore.Snapshot().SelectDifficulty(msg.Timestamp)
	if !ok {
		difficulty = 0
	}
	hash, powOK := n.verifyPoW(msg.Nonce, msg.Timestamp, msg.TTL, msg.Pubkey, msg.Ciphertext, difficulty)
	if !powOK {
		return &AdmissionError{Kind: KindInvalidPoW}
	}
	if hash != msg.Hash {
		return &AdmissionError{Kind: KindHashMismatch}
	}
	return nil
}

// isPubkeyForUs reports whether msg's recipient pubkey maps to our
// swarm, and if not, the swarm it should have gone to (for redirect).
func (n *ServiceNode) isPubkeyForUs(pubkeyHex string) (forUs bool, redirect swarmtable.SwarmInfo) {
	pk, ok := pubkeyBytes(pubkeyHex)
	if !ok {
		return false, swarmtable.SwarmInfo{}
	}

	n.mu.Lock()
	swarms := n.currentSwarms
	ourID := n.ourSwarmID
	n.mu.Unlock()

	dest, found := swarmtable.SwarmForPubkey(swarms, pk)
	if !found {
		return false, swarmtable.SwarmInfo{}
	}
	return dest.ID == ourID, dest
}

// ProcessStore is the client-facing admission pipeline (spec §4.G): on
// success it persists the message, and if it was genuinely new, notifies
// long-poll listeners and pushes it to the rest of our swarm.
func (n *ServiceNode) ProcessStore(ctx context.Context, msg message.Message) *AdmissionError {
	if !n.Ready() {
		return &AdmissionError{Kind: KindServiceUnavailable}
	}

	forUs, redirect := n.isPubkeyForUs(msg.Pubkey)
	if !forUs {
		return &AdmissionError{Kind: KindWrongSwarm, RedirectSwarm: redirect}
	}

	if admErr := n.validate(msg); admErr != nil {
		return admErr
	}

	isNew, err := n.store.Store(msg)
	if err != nil {
		return &AdmissionError{Kind: KindDatabaseError, Err: err}
	}
	if !isNew {
		return nil
	}

	n.listeners.Notify(msg.Pubkey, []message.Message{msg})
	n.pushToSwarmPeers(ctx, msg)
	return nil
}

// pushToSwarmPeers fans msg out to every other member of our swarm
// without waiting for any peer. The pushes and their retries are detached
// from ctx's cancellation, so they outlive the client request that
// triggered them.
func (n *ServiceNode) pushToSwarmPeers(ctx context.Context, msg message.Message) {
	n.mu.Lock()
	members := n.currentSwarmMembers()
	self := n.selfRecord()
	n.mu.Unlock()

	pushCtx := context.WithoutCancel(ctx)
	for _, peer := range members {
		if peerEquals(peer, self) {
			continue
		}
		go n.replicator.PushOne(pushCtx, peer, msg)
	}
}

// ProcessPush is the peer-facing admission pipeline: the same
// validation as ProcessStore, minus the redirect check and the
// notify-and-push step — a duplicate hash is a silent no-op (spec
// §4.G).
func (n *ServiceNode) ProcessPush(msg message.Message) *AdmissionError {
	if admErr := n.validate(msg); admErr != nil {
		return admErr
	}
	if _, err := n.store.Store(msg); err != nil {
		return &AdmissionError{Kind: KindDatabaseError, Err: err}
	}
	return nil
}

// ProcessPushBatch decodes a pushed batch, drops any message that fails
// PoW validation (logging the count), bulk-stores the rest, and resets
// every long-poll listener — the set of which pubkeys actually received
// new messages isn't tracked for a bulk push (spec §4.G).
func (n *ServiceNode) ProcessPushBatch(blob []byte) error {
	msgs, err := codec.DecodeBatch(blob)
	if err != nil {
		return err
	}

	var accepted []message.Message
	dropped := 0
	for _, msg := range msgs {
		if admErr := n.validate(msg); admErr != nil {
			dropped++
			continue
		}
		accepted = append(accepted, msg)
	}
	if dropped > 0 {
		log.Printf("node: push_batch dropped %d/%d messages failing admission", dropped, len(msgs))
	}

	if _, err := n.store.BulkStore(accepted); err != nil {
		return err
	}
	n.listeners.ResetAll()
	return nil
}
