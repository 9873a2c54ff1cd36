package node

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"distributed-kvstore/internal/peertest"
	"distributed-kvstore/internal/replicate"
	"distributed-kvstore/internal/swarmtable"
)

// initiatePeerTest runs the tester/testee election for the current
// height and, if we are the elected tester, dispatches one round of
// peer tests against the testee (spec §4.F "round trigger": "only the
// elected tester issues tests"). Both a storage test and — unless the
// chain is too close to the tip — a blockchain test are run each round.
func (n *ServiceNode) initiatePeerTest() {
	height := n.CurrentHeight()
	pair, signal := n.ElectForHeight(height)
	if signal != peertest.SignalOK {
		return
	}
	self := n.selfRecord()
	if !peerEquals(pair.Tester, self) || peerEquals(pair.Testee, self) {
		return
	}

	ctx := context.Background()
	n.runStorageTest(ctx, pair.Testee, height)
	if !peertest.ShouldSkipBlockchainTest(height) {
		n.runBlockchainTest(ctx, pair.Testee, height)
	}
}

// runStorageTest picks a random locally-stored message, asks testee for
// it, and records the outcome. A network error, a missing local
// message (nothing to test), or a content mismatch are all failures —
// there is no retry, the next block advance yields a fresh pair.
func (n *ServiceNode) runStorageTest(ctx context.Context, testee swarmtable.NodeRecord, height uint64) {
	req, expected, err := peertest.BuildStorageTestRequest(n.store, height)
	if err != nil {
		log.Printf("node: storage test: local message selection failed: %v", err)
		return
	}
	if req.Hash == "" {
		return // nothing stored yet to test against
	}

	body, err := json.Marshal(req)
	if err != nil {
		log.Printf("node: storage test: marshal request: %v", err)
		return
	}

	got, err := n.replicator.Request(ctx, testee, replicate.StorageTestPath(), body)
	if err != nil {
		n.stats.RecordStorageTest(testee.Base32zAddr, false)
		return
	}
	success := peertest.EvaluateStorageTestResponse(expected, got)
	n.stats.RecordStorageTest(testee.Base32zAddr, success)
}

// runBlockchainTest pre-computes the expected answer locally, sends the
// challenge to testee, and records whether its reply matches.
func (n *ServiceNode) runBlockchainTest(ctx context.Context, testee swarmtable.NodeRecord, height uint64) {
	seed := uint64(time.Now().UnixNano())
	req, expected, err := peertest.PrepareBlockchainTest(ctx, n.registryC, height, seed)
	if err != nil {
		log.Printf("node: blockchain test: local precompute failed: %v", err)
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		log.Printf("node: blockchain test: marshal request: %v", err)
		return
	}

	raw, err := n.replicator.Request(ctx, testee, replicate.BlockchainTestPath(), body)
	if err != nil {
		n.stats.RecordBlockchainTest(testee.Base32zAddr, false)
		return
	}

	var resp peertest.BlockchainTestResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		n.stats.RecordBlockchainTest(testee.Base32zAddr, false)
		return
	}
	n.stats.RecordBlockchainTest(testee.Base32zAddr, peertest.EvaluateBlockchainTest(expected, resp))
}
