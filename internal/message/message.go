// Package message defines the wire/storage representation of a client
// message, shared by the codec, store, replicator, and admission pipeline.
package message

import "time"

// MaxTTL is the maximum allowed TTL for a stored message (4 days).
const MaxTTL = 4 * 24 * time.Hour

// TimestampSkew bounds how far a message timestamp may drift from "now".
const TimestampSkew = 60 * time.Second

// Message is one client-submitted, short-lived message addressed to a
// recipient pubkey.
type Message struct {
	Pubkey     string // 66 hex chars (33-byte pubkey, hex-encoded)
	Ciphertext []byte
	Hash       string
	TTL        uint64 // milliseconds
	Timestamp  uint64 // milliseconds, unix epoch
	Nonce      string
}

// Expiry returns the millisecond unix timestamp after which the message
// may be purged.
func (m Message) Expiry() uint64 {
	return m.Timestamp + m.TTL
}

// Equal compares all six fields (codec round-trip property, spec §8
// invariant 2); Expiry is derived from Timestamp and TTL.
func (m Message) Equal(other Message) bool {
	if m.Pubkey != other.Pubkey || m.Hash != other.Hash || m.Nonce != other.Nonce {
		return false
	}
	if m.TTL != other.TTL || m.Timestamp != other.Timestamp {
		return false
	}
	if len(m.Ciphertext) != len(other.Ciphertext) {
		return false
	}
	for i := range m.Ciphertext {
		if m.Ciphertext[i] != other.Ciphertext[i] {
			return false
		}
	}
	return true
}
