package powcheck

import "testing"

func TestDefaultZeroDifficultyAlwaysPasses(t *testing.T) {
	_, ok := Default("AAAA", 1, 1000, "pk", []byte("data"), 0)
	if !ok {
		t.Fatal("zero difficulty must always pass")
	}
}

func TestDefaultDeterministic(t *testing.T) {
	h1, _ := Default("AAAA", 1, 1000, "pk", []byte("data"), 0)
	h2, _ := Default("AAAA", 1, 1000, "pk", []byte("data"), 0)
	if h1 != h2 {
		t.Fatal("verify_pow must be a pure function of its inputs")
	}
}

func TestDefaultRejectsMalformedNonce(t *testing.T) {
	_, ok := Default("not base64!!", 1, 1000, "pk", []byte("data"), 1)
	if ok {
		t.Fatal("expected rejection of malformed nonce")
	}
}

func TestDefaultDifferentInputsDifferentHashes(t *testing.T) {
	h1, _ := Default("AAAA", 1, 1000, "pk", []byte("data"), 0)
	h2, _ := Default("AAAA", 1, 1000, "pk", []byte("different"), 0)
	if h1 == h2 {
		t.Fatal("expected different hashes for different data")
	}
}
