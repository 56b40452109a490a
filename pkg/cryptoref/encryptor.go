package cryptoref

import "fmt"

// Encryptor models the union spec.md §9 design note 1 describes:
// "accept accepts either a raw private key or an encrypt(payload,
// peerPub) capability." In Go this is a small sum type dispatched by
// the holder's two constructors, rather than an interface{} or a pair
// of optional fields.
type Encryptor struct {
	key    *PrivateKey
	encode func(payload []byte, peerPub PublicKey) ([]byte, error)
	decode func(envelope []byte, peerPub PublicKey) ([]byte, error)
}

// FromKey builds an Encryptor backed by a raw private key: Encrypt/
// Decrypt derive a conversation key via DH and seal/open with it.
func FromKey(sk PrivateKey) Encryptor {
	return Encryptor{key: &sk}
}

// FromCapability builds an Encryptor backed by caller-supplied
// encode/decode closures, e.g. a hardware key custody service that
// never exposes the private scalar to this process.
func FromCapability(
	encode func(payload []byte, peerPub PublicKey) ([]byte, error),
	decode func(envelope []byte, peerPub PublicKey) ([]byte, error),
) Encryptor {
	return Encryptor{encode: encode, decode: decode}
}

// Encrypt seals payload for peerPub, dispatching on which constructor
// built this Encryptor.
func (e Encryptor) Encrypt(payload []byte, peerPub PublicKey) ([]byte, error) {
	switch {
	case e.key != nil:
		ck, err := ConversationKey(*e.key, peerPub)
		if err != nil {
			return nil, err
		}
		return Seal(ck, payload)
	case e.encode != nil:
		return e.encode(payload, peerPub)
	default:
		return nil, fmt.Errorf("cryptoref: encryptor not configured")
	}
}

// Decrypt opens envelope sent by peerPub.
func (e Encryptor) Decrypt(envelope []byte, peerPub PublicKey) ([]byte, error) {
	switch {
	case e.key != nil:
		ck, err := ConversationKey(*e.key, peerPub)
		if err != nil {
			return nil, err
		}
		return Open(ck, envelope)
	case e.decode != nil:
		return e.decode(envelope, peerPub)
	default:
		return nil, fmt.Errorf("cryptoref: encryptor not configured")
	}
}
