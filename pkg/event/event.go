// Package event models the signed, publicly observable events spec.md
// §6 describes as the substrate's wire format, plus the filter/bus
// contract pkg/ratchet and pkg/invite consume (spec.md §6's
// "subscribe(filter, onEvent) -> unsubscribe" collaborator).
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeySize is the width of a public key, matching spec.md §1's "32-byte
// Schnorr keys".
const KeySize = 32

// PublicKey is a participant's long-term or ephemeral identity, or a
// ratchet header key — all three are the same 32-byte Schnorr key type
// in this protocol (spec.md §3's header-key invariant).
type PublicKey [KeySize]byte

// Hex renders pk as lowercase hex, the wire encoding used in tags and
// JSON content (spec.md §6 "Persisted layout ... hex strings").
func (pk PublicKey) Hex() string { return hex.EncodeToString(pk[:]) }

// ParsePublicKeyHex decodes a hex-encoded public key.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != KeySize {
		return pk, fmt.Errorf("event: invalid public key %q", s)
	}
	copy(pk[:], b)
	return pk, nil
}

// Tag is a single [name, value, ...] tag entry, e.g. ["p", pubkeyHex].
type Tag []string

// Event is the signed envelope every outbound ratchet message, invite,
// invite-response, and invite-list publication travels in, mirroring
// spec.md §6's "Signed event shape": {id, pubkey, created_at, kind,
// tags, content, sig}.
type Event struct {
	ID        string    `json:"id"`
	PubKey    PublicKey `json:"pubkey"`
	CreatedAt int64     `json:"created_at"`
	Kind      uint16    `json:"kind"`
	Tags      []Tag     `json:"tags"`
	Content   string    `json:"content"`
	Sig       []byte    `json:"sig"`
}

// Signer abstracts the "assumed correct" Schnorr signing primitive
// spec.md §1 treats as an external collaborator. pkg/cryptoref ships
// the reference implementation.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
	Verify(pk PublicKey, msg, sig []byte) bool
}

// serializeForSigning produces the canonical byte string the id hash
// and signature are computed over: a fixed-order JSON array, so two
// independent implementations agree byte-for-byte.
func (e *Event) serializeForSigning() []byte {
	arr := []any{0, e.PubKey.Hex(), e.CreatedAt, e.Kind, e.Tags, e.Content}
	b, _ := json.Marshal(arr)
	return b
}

// ComputeID sets e.ID to the hex-encoded sha256 of the canonical
// serialization, matching spec.md §6's "canonical event hash".
func (e *Event) ComputeID() {
	sum := sha256.Sum256(e.serializeForSigning())
	e.ID = hex.EncodeToString(sum[:])
}

// Sign computes the id and signs it with signer, which must hold the
// private half of e.PubKey.
func (e *Event) Sign(signer Signer) error {
	e.ComputeID()
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return fmt.Errorf("event: sign: %w", err)
	}
	sig, err := signer.Sign(idBytes)
	if err != nil {
		return fmt.Errorf("event: sign: %w", err)
	}
	e.Sig = sig
	return nil
}

// Verify checks that e.ID matches the canonical hash and e.Sig is a
// valid signature by e.PubKey over it. Malformed events (per spec.md
// §7's MalformedEvent policy) fail verification rather than panicking.
func (e *Event) Verify(signer Signer) bool {
	sum := sha256.Sum256(e.serializeForSigning())
	if hex.EncodeToString(sum[:]) != e.ID {
		return false
	}
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return false
	}
	return signer.Verify(e.PubKey, idBytes, e.Sig)
}

// TagValues returns every value at tags[i][1] where tags[i][0] == name,
// in tag order.
func (e *Event) TagValues(name string) []string {
	var out []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			out = append(out, tag[1])
		}
	}
	return out
}

// FirstTagValue returns tags[i][1] for the first tag named name, and
// whether one was found.
func (e *Event) FirstTagValue(name string) (string, bool) {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

// IsReplaceable reports whether kind falls in the replaceable range
// spec.md §6 defines (10000 <= kind < 20000).
func IsReplaceable(kind uint16) bool {
	return kind >= 10000 && kind < 20000
}

// ReplaceableKey identifies the (pubkey, kind, d-tag) tuple the bus
// deduplicates replaceable events on.
type ReplaceableKey struct {
	PubKey PublicKey
	Kind   uint16
	DTag   string
}

func (e *Event) replaceableKey() ReplaceableKey {
	d, _ := e.FirstTagValue("d")
	return ReplaceableKey{PubKey: e.PubKey, Kind: e.Kind, DTag: d}
}

// ReplaceableKeyOf exposes replaceableKey for adapters outside this
// package (e.g. pkg/event/memorybus) that implement the dedup rule.
func (e *Event) ReplaceableKeyOf() ReplaceableKey { return e.replaceableKey() }
