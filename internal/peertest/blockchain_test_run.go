package peertest

import "context"

// BlockchainTester is the subset of RegistryClient a blockchain test
// needs: ask the daemon to pre-compute the expected answer for a given
// (max_height, seed) pair.
type BlockchainTester interface {
	PerformBlockchainTest(ctx context.Context, maxHeight, seed uint64) (resHeight uint64, err error)
}

// BlockchainTestRequest is the body sent to a testee.
type BlockchainTestRequest struct {
	MaxHeight uint64 `json:"max_height"`
	Seed      uint64 `json:"seed"`
}

// BlockchainTestResponse is what the testee returns.
type BlockchainTestResponse struct {
	ResHeight uint64 `json:"res_height"`
}

// ShouldSkipBlockchainTest reports whether the chain is still too close
// to the tip to safely run a blockchain test (spec §4.F).
func ShouldSkipBlockchainTest(currentHeight uint64) bool {
	return currentHeight <= SafetyBufferBlocks
}

// PrepareBlockchainTest runs on the tester: precompute the expected
// answer before sending the request to the testee.
func PrepareBlockchainTest(ctx context.Context, registry BlockchainTester, maxHeight, seed uint64) (BlockchainTestRequest, uint64, error) {
	resHeight, err := registry.PerformBlockchainTest(ctx, maxHeight, seed)
	if err != nil {
		return BlockchainTestRequest{}, 0, err
	}
	return BlockchainTestRequest{MaxHeight: maxHeight, Seed: seed}, resHeight, nil
}

// EvaluateBlockchainTest compares the testee's reply against the
// tester's precomputed expectation.
func EvaluateBlockchainTest(expectedResHeight uint64, got BlockchainTestResponse) bool {
	return expectedResHeight == got.ResHeight
}

// HandleBlockchainTestRequest implements the testee side: run the same
// daemon call locally and report the result.
func HandleBlockchainTestRequest(ctx context.Context, registry BlockchainTester, req BlockchainTestRequest) (BlockchainTestResponse, error) {
	resHeight, err := registry.PerformBlockchainTest(ctx, req.MaxHeight, req.Seed)
	if err != nil {
		return BlockchainTestResponse{}, err
	}
	return BlockchainTestResponse{ResHeight: resHeight}, nil
}
