package node

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"distributed-kvstore/internal/message"
	"distributed-kvstore/internal/peertest"
	"distributed-kvstore/internal/swarmtable"
)

// servePeerTestHandlers wires n's testee-side handling onto a real HTTP
// server, bypassing relay-header signature verification (that belongs
// to internal/api, tested separately) by trusting the caller-supplied
// requester directly.
func servePeerTestHandlers(t *testing.T, n *ServiceNode, requester swarmtable.NodeRecord) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/swarms/storage_test/v1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req peertest.StorageTestRequest
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		outcome, data := n.HandleStorageTestRequest(r.Context(), req, requester)
		if outcome != peertest.StorageTestSuccess {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(data)
	})
	mux.HandleFunc("/swarms/blockchain_test/v1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req peertest.BlockchainTestRequest
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp, err := n.HandleBlockchainTestRequest(r.Context(), req, requester)
		if err != nil {
			w.WriteHeader(http.StatusConflict)
			return
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func serverAddr(t *testing.T, srv *httptest.Server) (string, uint16) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return u.Hostname(), uint16(port)
}

func recordedOutcomeFor(t *testing.T, n *ServiceNode, addr string) bool {
	t.Helper()
	blob, err := n.stats.ToJSON(false)
	if err != nil {
		t.Fatal(err)
	}
	var parsed struct {
		Peers map[string]struct {
			StorageTests []struct {
				Success bool `json:"success"`
			} `json:"storage_tests"`
		} `json:"peers"`
	}
	if err := json.Unmarshal(blob, &parsed); err != nil {
		t.Fatal(err)
	}
	peer, ok := parsed.Peers[addr]
	return ok && len(peer.StorageTests) > 0
}

// TestInitiatePeerTestDispatchesOverHTTP wires two real ServiceNodes
// behind httptest servers and lets the deterministic election itself
// decide which one is tester, then confirms the elected tester reaches
// the elected testee over HTTP and records a storage-test outcome.
func TestInitiatePeerTestDispatchesOverHTTP(t *testing.T) {
	a, _ := testNode(t)
	b, _ := testNode(t)

	selfA, selfB := a.selfRecord(), b.selfRecord()
	srvA := servePeerTestHandlers(t, a, selfB)
	srvB := servePeerTestHandlers(t, b, selfA)

	hostA, portA := serverAddr(t, srvA)
	hostB, portB := serverAddr(t, srvB)
	selfA.IP, selfA.Port = hostA, portA
	selfB.IP, selfB.Port = hostB, portB

	members := []swarmtable.NodeRecord{selfA, selfB}
	table := swarmtable.SwarmTable{{ID: 1, Members: members}}
	const height = 100
	var blockHash [32]byte
	blockHash[0] = 0x7

	for _, n := range []*ServiceNode{a, b} {
		n.mu.Lock()
		n.currentSwarms = table
		n.ourSwarmID = 1
		n.currentHeight = height
		n.hashCache.put(height, blockHash)
		n.mu.Unlock()
	}

	pair, signal := a.ElectForHeight(height)
	if signal != peertest.SignalOK {
		t.Fatalf("expected SignalOK, got %v", signal)
	}

	var (
		testerNode *ServiceNode
		testeeAddr string
	)
	if pair.Tester.Base32zAddr == selfA.Base32zAddr {
		testerNode, testeeAddr = a, selfB.Base32zAddr
	} else {
		testerNode, testeeAddr = b, selfA.Base32zAddr
	}

	stored := message.Message{Pubkey: "k", Ciphertext: []byte("payload"), Hash: "deadbeef", TTL: 1000, Timestamp: 1}
	if _, err := testerNode.store.Store(stored); err != nil {
		t.Fatal(err)
	}

	testerNode.initiatePeerTest()

	if !recordedOutcomeFor(t, testerNode, testeeAddr) {
		t.Fatalf("expected a recorded storage test outcome for testee %s", testeeAddr)
	}
}
