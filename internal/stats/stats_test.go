package stats

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordAndSnapshot(t *testing.T) {
	s := New()
	s.RecordStorageTest("peer1.snode", true)
	s.RecordStorageTest("peer1.snode", false)
	s.RecordBlockchainTest("peer1.snode", true)
	s.RecordRequestFailed("peer1.snode")
	s.RecordPushFailed("peer1.snode")
	s.IncrClientStoreRequests()
	s.IncrClientStoreRequests()
	s.IncrClientRetrieveRequests()

	raw, err := s.ToJSON(false)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["client_store_requests"].(float64) != 2 {
		t.Errorf("client_store_requests = %v, want 2", decoded["client_store_requests"])
	}
	if decoded["client_retrieve_requests"].(float64) != 1 {
		t.Errorf("client_retrieve_requests = %v, want 1", decoded["client_retrieve_requests"])
	}

	peers := decoded["peers"].(map[string]any)
	peer1 := peers["peer1.snode"].(map[string]any)
	if len(peer1["storage_tests"].([]any)) != 2 {
		t.Errorf("expected 2 storage test entries, got %v", peer1["storage_tests"])
	}
	if peer1["requests_failed"].(float64) != 1 {
		t.Errorf("requests_failed = %v, want 1", peer1["requests_failed"])
	}
	if peer1["pushes_failed"].(float64) != 1 {
		t.Errorf("pushes_failed = %v, want 1", peer1["pushes_failed"])
	}
}

func TestCleanupPrunesOldOutcomes(t *testing.T) {
	s := New()
	p := s.peer("peer1.snode")
	p.StorageTests = []TestOutcome{
		{Timestamp: time.Now().Add(-2 * RollingWindow), Success: true},
		{Timestamp: time.Now().Add(-RollingWindow / 2), Success: false},
	}
	p.BlockchainTests = []TestOutcome{
		{Timestamp: time.Now().Add(-2 * RollingWindow), Success: true},
	}

	s.Cleanup()

	if len(p.StorageTests) != 1 {
		t.Fatalf("expected 1 surviving storage test, got %d", len(p.StorageTests))
	}
	if p.StorageTests[0].Success != false {
		t.Fatalf("wrong entry survived cleanup")
	}
	if len(p.BlockchainTests) != 0 {
		t.Fatalf("expected all blockchain tests pruned, got %d", len(p.BlockchainTests))
	}
}

func TestCleanupKeepsEmptyPeerEntry(t *testing.T) {
	s := New()
	s.RecordRequestFailed("peer1.snode")
	s.Cleanup()

	raw, _ := s.ToJSON(false)
	var decoded map[string]any
	json.Unmarshal(raw, &decoded)
	peers := decoded["peers"].(map[string]any)
	if _, ok := peers["peer1.snode"]; !ok {
		t.Fatal("expected peer entry to survive cleanup even with no test history")
	}
}
