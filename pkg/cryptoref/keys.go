// Package cryptoref is a concrete, swappable reference implementation
// of the primitives spec.md §1 declares "assumed correct" external
// collaborators: Schnorr signing over 32-byte keys, ECDH conversation-key
// derivation, and versioned AEAD. Nothing in pkg/ratchet, pkg/invite, or
// pkg/invitelist depends on this package directly — they depend on the
// small interfaces in pkg/event and pkg/ratchet, and cryptoref is the
// default wiring a caller reaches for.
package cryptoref

import (
	"crypto/rand"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeySize is the width of every public/private key in this module: 32
// bytes, matching spec.md §1's "32-byte Schnorr keys".
const KeySize = 32

// PrivateKey is a raw 32-byte secp256k1 scalar.
type PrivateKey [KeySize]byte

// PublicKey is the 32-byte x-only (BIP340-style) encoding of a
// secp256k1 point: the teacher corpus verifies signatures and
// publishes presence via a public byte string (pkg/dht/signed_entry.go
// ships raw ed25519 keys the same way); Schnorr over secp256k1 simply
// swaps the curve and drops the parity byte.
type PublicKey [KeySize]byte

// GenerateKeyPair produces a fresh identity/ratchet keypair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("cryptoref: generate key: %w", err)
	}
	var sk PrivateKey
	copy(sk[:], priv.Serialize())
	return sk, Public(sk), nil
}

// Public derives the x-only public key for a private key.
func Public(sk PrivateKey) PublicKey {
	priv := secp256k1.PrivKeyFromBytes(sk[:])
	var pk PublicKey
	compressed := priv.PubKey().SerializeCompressed()
	copy(pk[:], compressed[1:]) // drop the leading parity byte
	return pk
}

// parsePub recovers a full secp256k1 point from its x-only encoding,
// always choosing the even-Y candidate per BIP340 convention.
func parsePub(pk PublicKey) (*secp256k1.PublicKey, error) {
	compressed := make([]byte, 0, KeySize+1)
	compressed = append(compressed, 0x02)
	compressed = append(compressed, pk[:]...)
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("cryptoref: parse public key: %w", err)
	}
	return pub, nil
}

func parsePriv(sk PrivateKey) *secp256k1.PrivateKey {
	return secp256k1.PrivKeyFromBytes(sk[:])
}

// RandomBytes fills and returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("cryptoref: random bytes: %w", err)
	}
	return b, nil
}
