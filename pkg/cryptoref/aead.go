package cryptoref

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// schemeAESGCM is the only versioned AEAD scheme this reference
// collaborator currently ships. A production deployment can add a
// second byte value and dispatch on it in Open/Seal without touching
// any caller — that's the point of versioning the envelope.
const schemeAESGCM byte = 1

// ErrDecryptionFailed is returned by Open on AEAD tag mismatch or a
// malformed envelope; pkg/ratchet and pkg/invite treat this as a
// non-fatal CryptoFailure per spec.md §7.
var ErrDecryptionFailed = errors.New("cryptoref: decryption failed")

// Seal encrypts and authenticates plaintext under key (any length
// accepted by crypto/aes; this module always passes 32-byte keys),
// returning a self-describing envelope: scheme byte || nonce || ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoref: seal: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoref: seal: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoref: seal: %w", err)
	}
	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, schemeAESGCM)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Open reverses Seal. Any failure (bad tag, truncated envelope,
// unknown scheme byte) returns ErrDecryptionFailed.
func Open(key, envelope []byte) ([]byte, error) {
	if len(envelope) < 1 || envelope[0] != schemeAESGCM {
		return nil, ErrDecryptionFailed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	rest := envelope[1:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
