package peertest

import (
	"context"
	"time"

	"distributed-kvstore/internal/message"
	"distributed-kvstore/internal/mt19937"
)

// MessageSource is the subset of MessageStore a storage test needs: pick
// a uniformly-random persisted message and look one up by hash.
type MessageSource interface {
	Count() (uint64, error)
	RetrieveByIndex(i uint64) (message.Message, error)
	RetrieveByHash(hash string) (message.Message, bool, error)
}

// StorageTestRequest is the body sent to a testee.
type StorageTestRequest struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

// StorageTestOutcome is a storage test result as recorded in Stats.
type StorageTestOutcome int

const (
	StorageTestSuccess StorageTestOutcome = iota
	StorageTestFailure
	StorageTestRetry
)

// BuildStorageTestRequest picks a message uniformly at random from store
// (seeded from wall-clock time, not the deterministic election PRNG —
// only the tester/testee pair itself needs to be bit-identical across
// nodes) and returns the request to send to the testee.
func BuildStorageTestRequest(store MessageSource, height uint64) (StorageTestRequest, message.Message, error) {
	count, err := store.Count()
	if err != nil {
		return StorageTestRequest{}, message.Message{}, err
	}
	if count == 0 {
		return StorageTestRequest{Height: height}, message.Message{}, nil
	}

	prng := mt19937.New(uint64(time.Now().UnixNano()))
	idx := prng.Uint64n(count)
	msg, err := store.RetrieveByIndex(idx)
	if err != nil {
		return StorageTestRequest{}, message.Message{}, err
	}
	return StorageTestRequest{Height: height, Hash: msg.Hash}, msg, nil
}

// EvaluateStorageTestResponse compares what the testee returned against
// the expected message's ciphertext — success only on an exact match.
func EvaluateStorageTestResponse(expected message.Message, got []byte) bool {
	return string(expected.Ciphertext) == string(got)
}

// HandleStorageTestRequest implements the testee side: validate that
// the tester has the authority to ask (already checked by the caller —
// the election must have already named requester as tester for height),
// then look up the message.
func HandleStorageTestRequest(ctx context.Context, store MessageSource, ourHeight uint64, req StorageTestRequest) (StorageTestOutcome, []byte) {
	if ourHeight < req.Height {
		return StorageTestRetry, nil
	}
	msg, found, err := store.RetrieveByHash(req.Hash)
	if err != nil || !found {
		return StorageTestRetry, nil
	}
	return StorageTestSuccess, msg.Ciphertext
}
