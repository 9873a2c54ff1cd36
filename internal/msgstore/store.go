// Package msgstore is the persistent MessageStore collaborator (spec
// §6): hash-keyed idempotent storage with a write-ahead log and
// periodic snapshot, adapted from internal/store/store.go's WAL-first
// durability pattern but dropping vector clocks entirely — messages are
// immutable once stored and uniquely keyed by content hash, so there is
// no conflict to reconcile (spec invariant 1).
package msgstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"distributed-kvstore/internal/message"
)

// Store is the MessageStore implementation: an in-memory index backed
// by a WAL and periodic snapshots to disk.
type Store struct {
	mu  sync.RWMutex
	wal *WAL

	byHash   map[string]message.Message
	order    []string            // hashes in insertion order, for retrieve_by_index/retrieve_all
	byPubkey map[string][]string // hashes in insertion order, per recipient pubkey

	dataDir string
}

// New creates or opens a Store rooted at dataDir: loads the latest
// snapshot, then replays WAL entries written after it.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		byHash:   make(map[string]message.Message),
		byPubkey: make(map[string][]string),
		dataDir:  dataDir,
	}

	if err := s.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	wal, err := newWAL(filepath.Join(dataDir, "messages.wal"))
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	s.wal = wal

	if err := s.replayWAL(); err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}

	return s, nil
}

// Store persists msg if its hash hasn't been seen before. Returns true
// iff this call actually inserted it — callers use this to decide
// whether to notify listeners and push to peers (spec §4.G step 4).
func (s *Store) Store(msg message.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(msg)
}

// insertLocked must be called with s.mu held.
func (s *Store) insertLocked(msg message.Message) (bool, error) {
	if _, exists := s.byHash[msg.Hash]; exists {
		return false, nil
	}

	if err := s.wal.append(walEntry{Message: msg}); err != nil {
		return false, fmt.Errorf("wal append: %w", err)
	}

	s.byHash[msg.Hash] = msg
	s.order = append(s.order, msg.Hash)
	s.byPubkey[msg.Pubkey] = append(s.byPubkey[msg.Pubkey], msg.Hash)
	return true, nil
}

// BulkStore persists every message in msgs that is new, returning true
// iff at least one of them was actually inserted.
func (s *Store) BulkStore(msgs []message.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	anyNew := false
	for _, msg := range msgs {
		inserted, err := s.insertLocked(msg)
		if err != nil {
			return anyNew, err
		}
		anyNew = anyNew || inserted
	}
	return anyNew, nil
}

// Retrieve returns messages addressed to pubkey after lastHash
// (exclusive), in storage order, capped at limit (0 means unbounded).
// lastHash = "" returns from the beginning.
func (s *Store) Retrieve(pubkey, lastHash string, limit int) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := s.byPubkey[pubkey]
	start := 0
	if lastHash != "" {
		found := false
		for i, h := range hashes {
			if h == lastHash {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			// Unknown cursor: treat as "from the beginning" rather than
			// erroring, since the cursor may refer to an expired/pruned
			// message that no longer has a position to resume from.
			start = 0
		}
	}

	var out []message.Message
	for _, h := range hashes[start:] {
		out = append(out, s.byHash[h])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// RetrieveByHash looks up a single message by its content hash.
func (s *Store) RetrieveByHash(hash string) (message.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.byHash[hash]
	return msg, ok, nil
}

// Count returns the number of persisted messages.
func (s *Store) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.order)), nil
}

// RetrieveByIndex returns the i-th stored message in insertion order,
// used by PeerTester to pick a uniformly random message for a storage
// test (spec §4.F).
func (s *Store) RetrieveByIndex(i uint64) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i >= uint64(len(s.order)) {
		return message.Message{}, fmt.Errorf("index %d out of range (have %d messages)", i, len(s.order))
	}
	return s.byHash[s.order[i]], nil
}

// RetrieveAll returns every persisted message, in insertion order. Used
// for bulk pushes after swarm reassignment (spec §4.G).
func (s *Store) RetrieveAll() ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]message.Message, len(s.order))
	for i, h := range s.order {
		out[i] = s.byHash[h]
	}
	return out, nil
}

// Snapshot writes the full in-memory index to disk atomically and
// truncates the WAL, the same atomic-rename pattern as
// internal/store/store.go's Snapshot.
func (s *Store) Snapshot() error {
	s.mu.RLock()
	all := make([]message.Message, len(s.order))
	for i, h := range s.order {
		all[i] = s.byHash[h]
	}
	s.mu.RUnlock()

	path := filepath.Join(s.dataDir, "snapshot.json")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(all); err != nil {
		f.Close()
		return err
	}
	f.Close()

	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return s.wal.truncate()
}

func (s *Store) loadSnapshot() error {
	path := filepath.Join(s.dataDir, "snapshot.json")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var all []message.Message
	if err := json.NewDecoder(f).Decode(&all); err != nil {
		return err
	}
	for _, msg := range all {
		s.byHash[msg.Hash] = msg
		s.order = append(s.order, msg.Hash)
		s.byPubkey[msg.Pubkey] = append(s.byPubkey[msg.Pubkey], msg.Hash)
	}
	return nil
}

func (s *Store) replayWAL() error {
	entries, err := s.wal.readAll()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, exists := s.byHash[e.Message.Hash]; exists {
			continue
		}
		s.byHash[e.Message.Hash] = e.Message
		s.order = append(s.order, e.Message.Hash)
		s.byPubkey[e.Message.Pubkey] = append(s.byPubkey[e.Message.Pubkey], e.Message.Hash)
	}
	return nil
}

// Close closes the WAL file, called during shutdown.
func (s *Store) Close() error {
	return s.wal.close()
}
