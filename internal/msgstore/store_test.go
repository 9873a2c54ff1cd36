package msgstore

import (
	"testing"

	"distributed-kvstore/internal/message"
)

func msg(pubkey, hash string) message.Message {
	return message.Message{Pubkey: pubkey, Hash: hash, Ciphertext: []byte(hash), TTL: 1000, Timestamp: 1}
}

func TestStoreIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	inserted, err := s.Store(msg("pk1", "h1"))
	if err != nil || !inserted {
		t.Fatalf("first store: inserted=%v err=%v", inserted, err)
	}

	inserted, err = s.Store(msg("pk1", "h1"))
	if err != nil || inserted {
		t.Fatalf("second store of same hash must be a no-op: inserted=%v err=%v", inserted, err)
	}

	count, _ := s.Count()
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestRetrieveCursor(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for _, h := range []string{"h1", "h2", "h3"} {
		if _, err := s.Store(msg("pk1", h)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.Retrieve("pk1", "", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d (err=%v)", len(all), err)
	}

	after1, err := s.Retrieve("pk1", "h1", 0)
	if err != nil || len(after1) != 2 || after1[0].Hash != "h2" {
		t.Fatalf("unexpected cursor result: %+v (err=%v)", after1, err)
	}

	limited, err := s.Retrieve("pk1", "", 1)
	if err != nil || len(limited) != 1 || limited[0].Hash != "h1" {
		t.Fatalf("unexpected limited result: %+v (err=%v)", limited, err)
	}
}

func TestRetrieveByHashAndIndex(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Store(msg("pk1", "h1"))
	s.Store(msg("pk2", "h2"))

	got, ok, err := s.RetrieveByHash("h2")
	if err != nil || !ok || got.Pubkey != "pk2" {
		t.Fatalf("RetrieveByHash: got=%+v ok=%v err=%v", got, ok, err)
	}

	first, err := s.RetrieveByIndex(0)
	if err != nil || first.Hash != "h1" {
		t.Fatalf("RetrieveByIndex(0): got=%+v err=%v", first, err)
	}

	if _, err := s.RetrieveByIndex(99); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestBulkStoreReturnsTrueIfAnyNew(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Store(msg("pk1", "h1"))

	anyNew, err := s.BulkStore([]message.Message{msg("pk1", "h1"), msg("pk1", "h2")})
	if err != nil {
		t.Fatal(err)
	}
	if !anyNew {
		t.Fatal("expected anyNew=true since h2 is new")
	}

	anyNew, err = s.BulkStore([]message.Message{msg("pk1", "h1"), msg("pk1", "h2")})
	if err != nil {
		t.Fatal(err)
	}
	if anyNew {
		t.Fatal("expected anyNew=false since both hashes already exist")
	}
}

func TestSnapshotAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.Store(msg("pk1", "h1"))
	s.Store(msg("pk1", "h2"))
	if err := s.Snapshot(); err != nil {
		t.Fatal(err)
	}
	s.Store(msg("pk1", "h3")) // lands in the WAL only, after the snapshot
	s.Close()

	reopened, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	count, _ := reopened.Count()
	if count != 3 {
		t.Fatalf("count after reload = %d, want 3", count)
	}
	all, _ := reopened.RetrieveAll()
	if len(all) != 3 {
		t.Fatalf("retrieve_all after reload = %d, want 3", len(all))
	}
}
