package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"distributed-kvstore/internal/message"
)

func TestRoundTrip(t *testing.T) {
	msgs := []message.Message{
		{
			Pubkey:     "05436852000578600000000000000000000000000000000000000000000000783e",
			Ciphertext: []byte("hello world"),
			Hash:       "abc123",
			TTL:        3_456_000,
			Timestamp:  1_700_000_000_000,
			Nonce:      "nonce-value",
		},
		{
			Pubkey:     "05436852000578600000000000000000000000000000000000000000000000783e",
			Ciphertext: []byte(""),
			Hash:       "def456",
			TTL:        60_000,
			Timestamp:  1_700_000_001_000,
			Nonce:      "",
		},
	}

	var batch []byte
	for _, m := range msgs {
		batch = EncodeMessage(batch, m)
	}

	got, err := DecodeBatch(batch)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(got))
	}
	for i := range msgs {
		if !got[i].Equal(msgs[i]) {
			t.Fatalf("message %d mismatch: got %+v want %+v", i, got[i], msgs[i])
		}
	}
}

func TestBatchSizeBound(t *testing.T) {
	big := message.Message{
		Pubkey:     "0543685200057860000000000000000000000000000000000000000000783e",
		Ciphertext: bytes.Repeat([]byte{'x'}, 10),
		Hash:       "h",
		TTL:        1000,
		Timestamp:  1,
		Nonce:      "n",
	}
	msgs := make([]message.Message, 0, 60000)
	for i := 0; i < 60000; i++ {
		msgs = append(msgs, big)
	}

	batches := EncodeBatch(msgs)
	total := 0
	for _, b := range batches {
		if len(b) > MaxBatchSize {
			t.Fatalf("batch exceeds MaxBatchSize: %d", len(b))
		}
		total += len(b)
	}

	decoded, err := DecodeBatch(bytesConcat(batches))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(msgs) {
		t.Fatalf("expected %d messages across batches, got %d", len(msgs), len(decoded))
	}
}

func TestTruncatedBatchRejected(t *testing.T) {
	m := message.Message{
		Pubkey:    "0543685200057860000000000000000000000000000000000000000000783e",
		Hash:      "hash",
		TTL:       1,
		Timestamp: 1,
		Nonce:     "n",
	}
	buf := EncodeMessage(nil, m)
	truncated := buf[:len(buf)-3]

	if _, err := DecodeBatch(truncated); err == nil {
		t.Fatal("expected truncated batch to be rejected")
	}
}

// TestSpecFixture reproduces the S3 codec fixture from spec.md: a single
// message with pubkey "0543…783e", data="data", hash="hash", ttl=3456000,
// timestamp=12345678, nonce="" encodes to a specific little-endian frame,
// and two copies concatenate into one valid batch.
func TestSpecFixture(t *testing.T) {
	pubkey := "05430000000000000000000000000000000000000000000000000000000000783e"
	if len(pubkey) != PubkeySize {
		t.Fatalf("fixture pubkey must be 66 hex chars, got %d", len(pubkey))
	}

	m := message.Message{
		Pubkey:     pubkey,
		Ciphertext: []byte("data"),
		Hash:       "hash",
		TTL:        3_456_000,
		Timestamp:  12_345_678,
		Nonce:      "",
	}

	encoded := EncodeMessage(nil, m)

	var expect []byte
	expect = append(expect, pubkey...)
	expect = appendLenPrefixed(expect, "hash")
	expect = appendLenPrefixed(expect, "data")
	expect = appendLE(expect, 3_456_000)
	expect = appendLE(expect, 12_345_678)
	expect = appendLenPrefixed(expect, "")

	if !bytes.Equal(encoded, expect) {
		t.Fatalf("fixture mismatch:\ngot  % x\nwant % x", encoded, expect)
	}

	twice := append(append([]byte{}, encoded...), encoded...)
	if len(twice) >= MaxBatchSize {
		t.Fatal("fixture batch must stay under the 500KB bound")
	}
	msgs, err := DecodeBatch(twice)
	if err != nil {
		t.Fatalf("decode doubled fixture: %v", err)
	}
	if len(msgs) != 2 || !msgs[0].Equal(m) || !msgs[1].Equal(m) {
		t.Fatalf("doubled fixture decode mismatch: %+v", msgs)
	}
}

func appendLenPrefixed(buf []byte, s string) []byte {
	buf = appendLE(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendLE(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func bytesConcat(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
