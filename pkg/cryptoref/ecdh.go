package cryptoref

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DH computes the X25519/secp ECDH shared value spec.md §4.1 requires
// ("DH: X25519/secp ECDH producing a 32-byte shared key"). secp256k1 is
// chosen over X25519 so the same keypair used here can also sign
// (pkg/ratchet's header-key invariant).
func DH(sk PrivateKey, pk PublicKey) ([]byte, error) {
	priv := parsePriv(sk)
	pub, err := parsePub(pk)
	if err != nil {
		return nil, err
	}
	shared := secp256k1.GenerateSharedSecret(priv, pub)
	out := make([]byte, len(shared))
	copy(out, shared)
	return out, nil
}

// ConversationKey derives the "versioned conversation-key encryption"
// symmetric key spec.md §1/§4.3 treats as an assumed-correct
// collaborator (NIP-44-style: the DH output itself, already a uniform
// 32-byte value from GenerateSharedSecret, is used directly as the
// AEAD key).
func ConversationKey(sk PrivateKey, pk PublicKey) ([]byte, error) {
	shared, err := DH(sk, pk)
	if err != nil {
		return nil, fmt.Errorf("cryptoref: conversation key: %w", err)
	}
	return shared, nil
}
