package cryptoref

import "github.com/zentalk/doubleratchet/pkg/ratchet"

// RatchetCrypto adapts this package's free functions to pkg/ratchet's
// Crypto collaborator interface, the same role KeySigner plays for
// pkg/event.Signer.
type RatchetCrypto struct{}

// NewRatchetCrypto returns the reference ratchet.Crypto implementation.
func NewRatchetCrypto() RatchetCrypto { return RatchetCrypto{} }

func (RatchetCrypto) Generate() (ratchet.PrivateKey, ratchet.PublicKey, error) {
	sk, pk, err := GenerateKeyPair()
	if err != nil {
		return ratchet.PrivateKey{}, ratchet.PublicKey{}, err
	}
	return ratchet.PrivateKey(sk), ratchet.PublicKey(pk), nil
}

func (RatchetCrypto) Public(sk ratchet.PrivateKey) ratchet.PublicKey {
	return ratchet.PublicKey(Public(PrivateKey(sk)))
}

func (RatchetCrypto) DH(sk ratchet.PrivateKey, pk ratchet.PublicKey) ([]byte, error) {
	return DH(PrivateKey(sk), PublicKey(pk))
}

func (RatchetCrypto) Sign(sk ratchet.PrivateKey, msg []byte) ([]byte, error) {
	return Sign(PrivateKey(sk), msg)
}

func (RatchetCrypto) Verify(pk ratchet.PublicKey, msg, sig []byte) bool {
	return Verify(PublicKey(pk), msg, sig)
}

func (RatchetCrypto) Seal(key, plaintext []byte) ([]byte, error) {
	return Seal(key, plaintext)
}

func (RatchetCrypto) Open(key, envelope []byte) ([]byte, error) {
	return Open(key, envelope)
}

var _ ratchet.Crypto = RatchetCrypto{}
