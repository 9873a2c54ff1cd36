package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func hex64(b byte) string {
	return strings.Repeat(string("0123456789abcdef"[b%16]), 64)
}

func TestSnapshotParsesServiceNodeStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		json.Unmarshal(body, &req)
		if req["method"] != "get_service_nodes" {
			t.Fatalf("unexpected method: %v", req["method"])
		}

		resp := `{"result":{"height":100,"target_height":100,"block_hash":"` + hex64(0xAB) + `","hardfork":18,"service_node_states":[` +
			`{"service_node_pubkey":"` + hex64(1) + `","pubkeys_x25519":"` + hex64(2) + `","pubkeys_ed25519":"` + hex64(3) + `","swarm_id":7,"storage_port":22021,"public_ip":"10.0.0.1"}` +
			`]}}`
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	}))
	defer srv.Close()

	c := New(srv.URL)
	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Height != 100 || snap.Hardfork != 18 {
		t.Errorf("unexpected snapshot header: %+v", snap)
	}
	if len(snap.Swarms) != 1 || len(snap.Swarms[0].Members) != 1 {
		t.Fatalf("expected 1 swarm with 1 member, got %+v", snap.Swarms)
	}
	member := snap.Swarms[0].Members[0]
	if member.IP != "10.0.0.1" || member.Port != 22021 {
		t.Errorf("unexpected member: %+v", member)
	}
	if member.Base32zAddr == "" {
		t.Error("expected base32z address to be derived")
	}
}

func TestSnapshotSurfacesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":-1,"message":"not ready"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("expected an error from the rpc error envelope")
	}
}

func TestPerformBlockchainTest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"res_height":555}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.PerformBlockchainTest(context.Background(), 1000, 42)
	if err != nil {
		t.Fatal(err)
	}
	if got != 555 {
		t.Fatalf("res_height = %d, want 555", got)
	}
}

func TestPingSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
