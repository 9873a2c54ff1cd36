package replicate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"distributed-kvstore/internal/cryptoutil"
	"distributed-kvstore/internal/message"
	"distributed-kvstore/internal/stats"
	"distributed-kvstore/internal/swarmtable"
)

func testKeys(t *testing.T) cryptoutil.NodeKeys {
	t.Helper()
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		t.Fatal(err)
	}
	keys, err := cryptoutil.DeriveKeys(seed)
	if err != nil {
		t.Fatal(err)
	}
	return keys
}

func peerFromServer(t *testing.T, srv *httptest.Server) swarmtable.NodeRecord {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return swarmtable.NodeRecord{IP: host, Port: uint16(port), Base32zAddr: "testpeer.snode"}
}

func TestSendSignsRequest(t *testing.T) {
	keys := testKeys(t)

	var gotPubkey, gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPubkey = req.Header.Get(headerPubkey)
		gotSig = req.Header.Get(headerSignature)
		gotBody, _ = io.ReadAll(req.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(keys, nil)
	peer := peerFromServer(t, srv)
	body := []byte("hello")
	if err := r.Send(context.Background(), peer, pathPush, body); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotPubkey != keys.Address {
		t.Errorf("pubkey header = %q, want %q", gotPubkey, keys.Address)
	}
	if string(gotBody) != "hello" {
		t.Errorf("body = %q, want %q", gotBody, "hello")
	}
	if gotSig == "" {
		t.Fatal("expected non-empty signature header")
	}
	pub := keys.LegacyPrivate.Public().(ed25519.PublicKey)
	if !cryptoutil.VerifyRelayBody(pub, body, gotSig) {
		t.Error("signature does not verify against sender's public key")
	}
}

func TestRequestReturnsPeerResponseBody(t *testing.T) {
	keys := testKeys(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"res_height":42}`))
	}))
	defer srv.Close()

	r := New(keys, nil)
	peer := peerFromServer(t, srv)
	got, err := r.Request(context.Background(), peer, pathBlockchainTest, []byte(`{"max_height":10,"seed":1}`))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(got) != `{"res_height":42}` {
		t.Fatalf("body = %q", got)
	}
}

func TestRequestReturnsErrorOnNonSuccessStatus(t *testing.T) {
	keys := testKeys(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New(keys, nil)
	peer := peerFromServer(t, srv)
	if _, err := r.Request(context.Background(), peer, pathStorageTest, []byte("{}")); err == nil {
		t.Fatal("expected error on 503 response")
	}
}

func TestPushOneSucceedsWithoutRetry(t *testing.T) {
	keys := testKeys(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(keys, stats.New())
	peer := peerFromServer(t, srv)
	msg := message.Message{Pubkey: "pk", Ciphertext: []byte("data"), Hash: "h", TTL: 1000, Timestamp: 1, Nonce: "n"}
	r.PushOne(context.Background(), peer, msg)

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}

func TestRetryLoopGivesUpAndRecordsStats(t *testing.T) {
	keys := testKeys(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st := stats.New()
	r := New(keys, st)
	peer := peerFromServer(t, srv)

	savedIntervals := RetryIntervals
	RetryIntervals = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { RetryIntervals = savedIntervals }()

	r.retryLoop(context.Background(), peer, pathPush, []byte("x"))

	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 retry attempts, got %d", calls)
	}

	raw, err := st.ToJSON(false)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected stats snapshot")
	}
	if !strings.Contains(string(raw), `"testpeer.snode":{`) || !strings.Contains(string(raw), `"pushes_failed":1`) {
		t.Fatalf("expected one pushes_failed recorded for testpeer.snode, got %s", raw)
	}
}

func TestRetryLoopStopsOnContextCancel(t *testing.T) {
	keys := testKeys(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(keys, stats.New())
	peer := peerFromServer(t, srv)

	savedIntervals := RetryIntervals
	RetryIntervals = []time.Duration{time.Hour}
	defer func() { RetryIntervals = savedIntervals }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.retryLoop(ctx, peer, pathPush, []byte("x"))

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no retry attempts after cancel, got %d", calls)
	}
}
