// Package cryptoutil holds the long-term key handling, relay-signature,
// and address derivation this node needs — everything service_node.cpp's
// main() does with libsodium before constructing the ServiceNode.
package cryptoutil

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// NodeKeys bundles the three keypairs a service node authenticates with:
// the legacy ed25519-style signing key, a parallel ed25519 key, and the
// x25519 key used to pin HTTPS peer connections.
type NodeKeys struct {
	LegacyPublic  [32]byte
	LegacyPrivate ed25519.PrivateKey

	Ed25519Public  [32]byte
	Ed25519Private ed25519.PrivateKey

	X25519Public  [32]byte
	X25519Private [32]byte

	Address string // base32z(LegacyPublic) + ".snode"
}

// DeriveKeys builds a NodeKeys from a 32-byte ed25519 seed, the way
// lokid_key.h derives legacy/ed25519/x25519 keys from the daemon-supplied
// private key material.
func DeriveKeys(seed [32]byte) (NodeKeys, error) {
	edPriv := ed25519.NewKeyFromSeed(seed[:])
	edPub := edPriv.Public().(ed25519.PublicKey)

	var legacyPub, edPub32 [32]byte
	copy(legacyPub[:], edPub)
	copy(edPub32[:], edPub)

	xPriv, xPub, err := deriveX25519(seed)
	if err != nil {
		return NodeKeys{}, fmt.Errorf("derive x25519 keys: %w", err)
	}

	keys := NodeKeys{
		LegacyPublic:   legacyPub,
		LegacyPrivate:  edPriv,
		Ed25519Public:  edPub32,
		Ed25519Private: edPriv,
		X25519Public:   xPub,
		X25519Private:  xPriv,
	}
	keys.Address = SnodeAddress(legacyPub[:])
	return keys, nil
}

func deriveX25519(seed [32]byte) (priv, pub [32]byte, err error) {
	h := sha512.Sum512(seed[:])
	copy(priv[:], h[:32])
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

// SignRelayBody produces the base64(signature) expected in the
// X-Loki-Snode-Signature header: an ed25519-style signature over the
// SHA-512 digest of the request body (§4.D).
func SignRelayBody(priv ed25519.PrivateKey, body []byte) string {
	digest := sha512.Sum512(body)
	sig := ed25519.Sign(priv, digest[:])
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifyRelayBody checks a relay signature against pub, the claimed
// signer's public key (the Boundary layer passes the ed25519 key).
func VerifyRelayBody(pub ed25519.PublicKey, body []byte, sigB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	digest := sha512.Sum512(body)
	return ed25519.Verify(pub, digest[:], sig)
}
