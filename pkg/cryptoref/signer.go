package cryptoref

import "github.com/zentalk/doubleratchet/pkg/event"

// KeySigner adapts a PrivateKey to the event.Signer interface pkg/event
// and pkg/ratchet consume, so the "hard part" packages never import
// cryptoref's concrete key types directly.
type KeySigner struct {
	sk PrivateKey
}

// NewKeySigner returns a Signer bound to sk.
func NewKeySigner(sk PrivateKey) KeySigner {
	return KeySigner{sk: sk}
}

func (s KeySigner) Sign(msg []byte) ([]byte, error) {
	return Sign(s.sk, msg)
}

func (s KeySigner) Verify(pk event.PublicKey, msg, sig []byte) bool {
	return Verify(PublicKey(pk), msg, sig)
}

var _ event.Signer = KeySigner{}
