package cryptoref

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// SignatureSize is the length of a serialized BIP340 Schnorr signature.
const SignatureSize = 64

// Sign produces a Schnorr signature over sha256(msg), matching the
// canonical-event-hash convention spec.md §6 describes for signed
// events ("Signatures use Schnorr over the canonical event hash").
func Sign(sk PrivateKey, msg []byte) ([]byte, error) {
	hash := sha256.Sum256(msg)
	sig, err := schnorr.Sign(parsePriv(sk), hash[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoref: sign: %w", err)
	}
	return sig.Serialize(), nil
}

// Verify reports whether sig is a valid Schnorr signature by pk over
// sha256(msg).
func Verify(pk PublicKey, msg, sig []byte) bool {
	pub, err := parsePub(pk)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	hash := sha256.Sum256(msg)
	return schnorr.Verify(parsed, hash[:], pub)
}
