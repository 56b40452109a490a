package ratchet

import (
	"crypto/sha256"

	"golang.org/x/crypto/hkdf"
)

// Info strings namespace each KDF invocation so root/chain
// derivations can never collide even when fed the same secret/salt,
// the same discipline the teacher's KDFRootInfo/KDFChainInfo constants
// follow in pkg/protocol/ratchet.go.
const (
	rootInfo  = "double-ratchet/root"
	chainInfo = "double-ratchet/chain"
)

// kdfN reads n*32 bytes of HKDF-SHA256 output keyed by secret and
// salted by salt, and splits it into n 32-byte outputs. secret/salt
// follow the teacher's KDF_RK convention (DH output as the HKDF
// secret, the current root key as the salt), generalized to
// kdf1/kdf2 per spec.md §4.1 ("exact construction is an implementation
// detail as long as all parties agree"). spec.md names a kdf3 deriving
// a nextHeaderKey alongside rootKey/chainKey; this design sets the
// header key to the sender's ratchet public key directly (see
// adoptHeaderHint in session.go) and never derives one, so only
// kdf1/kdf2 are reachable.
func kdfN(secret, salt []byte, info string, n int) [][32]byte {
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	out := make([][32]byte, n)
	buf := make([]byte, 32*n)
	if _, err := r.Read(buf); err != nil {
		// hkdf.Read only fails once the expansion limit (255*hashLen)
		// is exceeded; n<=3 here never approaches it.
		panic("ratchet: hkdf expansion exhausted: " + err.Error())
	}
	for i := 0; i < n; i++ {
		copy(out[i][:], buf[i*32:(i+1)*32])
	}
	return out
}

func kdf1(secret, salt []byte, info string) [32]byte {
	return kdfN(secret, salt, info, 1)[0]
}

func kdf2(secret, salt []byte, info string) ([32]byte, [32]byte) {
	out := kdfN(secret, salt, info, 2)
	return out[0], out[1]
}
