// Package codec implements the length-prefixed binary frame used to ship
// message batches between service nodes (spec §4.C). It is a direct
// little-endian port of original_source/httpserver/serialization.cpp —
// the source used host-byte-order integers, which the spec calls out as
// a portability bug (§9) to be fixed here.
package codec

import (
	"encoding/binary"
	"fmt"

	"distributed-kvstore/internal/message"
)

// PubkeySize is the fixed width of the hex-encoded pubkey field at the
// wire — no length prefix, unlike every other field.
const PubkeySize = 66

// MaxBatchSize is the target upper bound for one serialized batch; a
// batch may exceed it only when a single message alone is larger.
const MaxBatchSize = 500_000

// EncodeMessage appends the wire encoding of msg to buf and returns the
// extended slice.
func EncodeMessage(buf []byte, msg message.Message) []byte {
	pk := make([]byte, PubkeySize)
	copy(pk, msg.Pubkey)
	buf = append(buf, pk...)

	buf = appendString(buf, msg.Hash)
	buf = appendString(buf, string(msg.Ciphertext))
	buf = appendUint64(buf, msg.TTL)
	buf = appendUint64(buf, msg.Timestamp)
	buf = appendString(buf, msg.Nonce)
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint64(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// EncodeBatch serializes msgs into one or more batches, each ≤
// MaxBatchSize bytes except when a single message alone exceeds that
// bound (spec §4.C / §8 invariant 3 — never split a message across a
// batch boundary).
func EncodeBatch(msgs []message.Message) [][]byte {
	var batches [][]byte
	var buf []byte

	for _, m := range msgs {
		encoded := EncodeMessage(nil, m)
		if len(buf) > 0 && len(buf)+len(encoded) > MaxBatchSize {
			batches = append(batches, buf)
			buf = nil
		}
		buf = append(buf, encoded...)
	}
	if len(buf) > 0 {
		batches = append(batches, buf)
	}
	return batches
}

// DecodeMessage decodes exactly one message starting at buf, returning
// the message and the unconsumed remainder.
func DecodeMessage(buf []byte) (message.Message, []byte, error) {
	if len(buf) < PubkeySize {
		return message.Message{}, nil, fmt.Errorf("codec: truncated pubkey")
	}
	pk := string(buf[:PubkeySize])
	rest := buf[PubkeySize:]

	hash, rest, err := readString(rest)
	if err != nil {
		return message.Message{}, nil, fmt.Errorf("codec: hash: %w", err)
	}
	data, rest, err := readString(rest)
	if err != nil {
		return message.Message{}, nil, fmt.Errorf("codec: data: %w", err)
	}
	ttl, rest, err := readUint64(rest)
	if err != nil {
		return message.Message{}, nil, fmt.Errorf("codec: ttl: %w", err)
	}
	ts, rest, err := readUint64(rest)
	if err != nil {
		return message.Message{}, nil, fmt.Errorf("codec: timestamp: %w", err)
	}
	nonce, rest, err := readString(rest)
	if err != nil {
		return message.Message{}, nil, fmt.Errorf("codec: nonce: %w", err)
	}

	return message.Message{
		Pubkey:     pk,
		Hash:       hash,
		Ciphertext: []byte(data),
		TTL:        ttl,
		Timestamp:  ts,
		Nonce:      nonce,
	}, rest, nil
}

func readUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("truncated integer")
	}
	return binary.LittleEndian.Uint64(buf[:8]), buf[8:], nil
}

func readString(buf []byte) (string, []byte, error) {
	length, rest, err := readUint64(buf)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < length {
		return "", nil, fmt.Errorf("truncated string field")
	}
	return string(rest[:length]), rest[length:], nil
}

// DecodeBatch consumes buf sequentially until empty, rejecting the whole
// batch on any truncated message (spec §4.C).
func DecodeBatch(buf []byte) ([]message.Message, error) {
	var msgs []message.Message
	for len(buf) > 0 {
		m, rest, err := DecodeMessage(buf)
		if err != nil {
			return nil, fmt.Errorf("codec: rejecting batch: %w", err)
		}
		msgs = append(msgs, m)
		buf = rest
	}
	return msgs, nil
}
