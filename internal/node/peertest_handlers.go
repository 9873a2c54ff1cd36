package node

import (
	"context"
	"fmt"

	"distributed-kvstore/internal/peertest"
	"distributed-kvstore/internal/swarmtable"
)

// authorizeTestee checks that requester is in fact the elected tester
// for height and that we are the elected testee, per spec §4.F
// ("testee side: validate the request is from the elected tester for
// the claimed height").
func (n *ServiceNode) authorizeTestee(height uint64, requester swarmtable.NodeRecord) peertest.Signal {
	pair, signal := n.ElectForHeight(height)
	if signal != peertest.SignalOK {
		return signal
	}
	self := n.selfRecord()
	if !peerEquals(pair.Tester, requester) || !peerEquals(pair.Testee, self) {
		return peertest.SignalError
	}
	return peertest.SignalOK
}

// HandleStorageTestRequest is the testee side of a peer storage test
// (spec §4.F): authorize the requester as our elected tester for the
// claimed height, then look up the requested message.
func (n *ServiceNode) HandleStorageTestRequest(ctx context.Context, req peertest.StorageTestRequest, requester swarmtable.NodeRecord) (peertest.StorageTestOutcome, []byte) {
	switch n.authorizeTestee(req.Height, requester) {
	case peertest.SignalRetry:
		return peertest.StorageTestRetry, nil
	case peertest.SignalError:
		return peertest.StorageTestRetry, nil
	}
	return peertest.HandleStorageTestRequest(ctx, n.store, n.CurrentHeight(), req)
}

// HandleBlockchainTestRequest is the testee side of a peer blockchain
// test: same authorization, then delegate to the daemon via registryC.
func (n *ServiceNode) HandleBlockchainTestRequest(ctx context.Context, req peertest.BlockchainTestRequest, requester swarmtable.NodeRecord) (peertest.BlockchainTestResponse, error) {
	if signal := n.authorizeTestee(n.CurrentHeight(), requester); signal != peertest.SignalOK {
		return peertest.BlockchainTestResponse{}, fmt.Errorf("node: requester %s is not our elected tester", requester.Base32zAddr)
	}
	return peertest.HandleBlockchainTestRequest(ctx, n.registryC, req)
}
