// Package ratchet implements the per-pair Double Ratchet session state
// machine: key derivation, DH ratchet rotation, the skipped-message-key
// cache, and the mapping of ratchet state onto signed event envelopes
// whose header key (the event's pubkey) rotates every DH step.
//
// The underlying signing, AEAD, and ECDH primitives are "assumed
// correct" external collaborators (see Crypto below); pkg/cryptoref
// ships the reference implementation this package is tested against,
// but nothing in this package imports it directly.
package ratchet

import "github.com/zentalk/doubleratchet/pkg/event"

// PrivateKey is a ratchet (or identity) private key.
type PrivateKey [32]byte

// PublicKey is a ratchet (or identity) public key. It is the same
// 32-byte Schnorr key type event.PublicKey uses, since a ratchet
// public key doubles as an event's pubkey field (the header-key
// invariant).
type PublicKey = event.PublicKey

// Crypto bundles the signing/AEAD/ECDH primitives a Session treats as
// an external collaborator, mirroring the ericlagergren-dr Ratchet
// interface (Generate/Public/DH/Seal/Open) plus Sign/Verify, since
// here the same keypair both DHs and signs the outer event.
type Crypto interface {
	// Generate creates a fresh ratchet keypair.
	Generate() (PrivateKey, PublicKey, error)
	// Public returns the public half of sk.
	Public(sk PrivateKey) PublicKey
	// DH computes the shared secret between sk and pk.
	DH(sk PrivateKey, pk PublicKey) ([]byte, error)
	// Sign signs msg with sk's private half.
	Sign(sk PrivateKey, msg []byte) ([]byte, error)
	// Verify checks sig over msg under pk.
	Verify(pk PublicKey, msg, sig []byte) bool
	// Seal encrypts plaintext under a raw symmetric key (a message key
	// or a conversation key), per spec's "versioned conversation-key
	// encryption" AEAD collaborator.
	Seal(key, plaintext []byte) ([]byte, error)
	// Open reverses Seal, returning an error a Session's caller treats
	// as a non-fatal CryptoFailure.
	Open(key, envelope []byte) ([]byte, error)
}
