package ratchet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// wireState mirrors spec.md §6's "Persisted layout": SessionState
// serialized with byte-array fields as hex strings, skippedKeys inner
// map keys stringified u32s.
type wireState struct {
	RootKey                          string          `json:"rootKey"`
	SendingChainKey                  string          `json:"sendingChainKey,omitempty"`
	ReceivingChainKey                string          `json:"receivingChainKey,omitempty"`
	SendingChainMessageNumber        uint32          `json:"sendingChainMessageNumber"`
	ReceivingChainMessageNumber      uint32          `json:"receivingChainMessageNumber"`
	PreviousSendingChainMessageCount uint32          `json:"previousSendingChainMessageCount"`
	OurCurrentRatchetKey             string          `json:"ourCurrentRatchetKey,omitempty"`
	OurNextRatchetKey                string          `json:"ourNextRatchetKey,omitempty"`
	TheirCurrentRatchetPublic        string          `json:"theirCurrentRatchetPublic,omitempty"`
	TheirNextRatchetPublic           string          `json:"theirNextRatchetPublic,omitempty"`
	Skipped                          []wireSkipEntry `json:"skippedKeys,omitempty"`
}

type wireSkipEntry struct {
	RatchetPublic string            `json:"ratchetPublic"`
	MessageKeys   map[string]string `json:"messageKeys"`
}

// MarshalJSON implements spec.md §8 invariant 3's round-trip contract.
func (s *State) MarshalJSON() ([]byte, error) {
	w := wireState{
		RootKey:                          hex.EncodeToString(s.RootKey[:]),
		SendingChainMessageNumber:        s.SendingChainMessageNumber,
		ReceivingChainMessageNumber:      s.ReceivingChainMessageNumber,
		PreviousSendingChainMessageCount: s.PreviousSendingChainMessageCount,
	}
	if s.SendingChainKey != nil {
		w.SendingChainKey = hex.EncodeToString(s.SendingChainKey[:])
	}
	if s.ReceivingChainKey != nil {
		w.ReceivingChainKey = hex.EncodeToString(s.ReceivingChainKey[:])
	}
	if s.OurCurrentRatchetKey != nil {
		w.OurCurrentRatchetKey = hex.EncodeToString(s.OurCurrentRatchetKey[:])
	}
	if s.OurNextRatchetKey != nil {
		w.OurNextRatchetKey = hex.EncodeToString(s.OurNextRatchetKey[:])
	}
	var zero PublicKey
	if s.TheirCurrentRatchetPublic != zero {
		w.TheirCurrentRatchetPublic = hex.EncodeToString(s.TheirCurrentRatchetPublic[:])
	}
	if s.TheirNextRatchetPublic != zero {
		w.TheirNextRatchetPublic = hex.EncodeToString(s.TheirNextRatchetPublic[:])
	}
	if s.skipped != nil {
		for _, pub := range s.skipped.entryOrder {
			entry := s.skipped.entries[pub]
			we := wireSkipEntry{RatchetPublic: hex.EncodeToString(pub[:]), MessageKeys: make(map[string]string, len(entry.keys))}
			for n, k := range entry.keys {
				we.MessageKeys[fmt.Sprintf("%d", n)] = hex.EncodeToString(k[:])
			}
			w.Skipped = append(w.Skipped, we)
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("ratchet: unmarshal state: %w", err)
	}

	*s = State{skipped: newSkipCache()}

	if err := decodeHex32(w.RootKey, &s.RootKey); err != nil {
		return fmt.Errorf("ratchet: unmarshal state: rootKey: %w", err)
	}
	s.SendingChainMessageNumber = w.SendingChainMessageNumber
	s.ReceivingChainMessageNumber = w.ReceivingChainMessageNumber
	s.PreviousSendingChainMessageCount = w.PreviousSendingChainMessageCount

	if w.SendingChainKey != "" {
		var v [32]byte
		if err := decodeHex32(w.SendingChainKey, &v); err != nil {
			return fmt.Errorf("ratchet: unmarshal state: sendingChainKey: %w", err)
		}
		s.SendingChainKey = &v
	}
	if w.ReceivingChainKey != "" {
		var v [32]byte
		if err := decodeHex32(w.ReceivingChainKey, &v); err != nil {
			return fmt.Errorf("ratchet: unmarshal state: receivingChainKey: %w", err)
		}
		s.ReceivingChainKey = &v
	}
	if w.OurCurrentRatchetKey != "" {
		var v PrivateKey
		if err := decodeHex32(w.OurCurrentRatchetKey, (*[32]byte)(&v)); err != nil {
			return fmt.Errorf("ratchet: unmarshal state: ourCurrentRatchetKey: %w", err)
		}
		s.OurCurrentRatchetKey = &v
	}
	if w.OurNextRatchetKey != "" {
		var v PrivateKey
		if err := decodeHex32(w.OurNextRatchetKey, (*[32]byte)(&v)); err != nil {
			return fmt.Errorf("ratchet: unmarshal state: ourNextRatchetKey: %w", err)
		}
		s.OurNextRatchetKey = &v
	}
	if w.TheirCurrentRatchetPublic != "" {
		if err := decodeHex32(w.TheirCurrentRatchetPublic, (*[32]byte)(&s.TheirCurrentRatchetPublic)); err != nil {
			return fmt.Errorf("ratchet: unmarshal state: theirCurrentRatchetPublic: %w", err)
		}
	}
	if w.TheirNextRatchetPublic != "" {
		if err := decodeHex32(w.TheirNextRatchetPublic, (*[32]byte)(&s.TheirNextRatchetPublic)); err != nil {
			return fmt.Errorf("ratchet: unmarshal state: theirNextRatchetPublic: %w", err)
		}
	}
	for _, we := range w.Skipped {
		var pub PublicKey
		if err := decodeHex32(we.RatchetPublic, (*[32]byte)(&pub)); err != nil {
			return fmt.Errorf("ratchet: unmarshal state: skipped ratchetPublic: %w", err)
		}
		for nStr, kHex := range we.MessageKeys {
			var n uint32
			if _, err := fmt.Sscanf(nStr, "%d", &n); err != nil {
				return fmt.Errorf("ratchet: unmarshal state: skipped message number %q: %w", nStr, err)
			}
			var k messageKey
			if err := decodeHex32(kHex, (*[32]byte)(&k)); err != nil {
				return fmt.Errorf("ratchet: unmarshal state: skipped message key: %w", err)
			}
			s.skipped.insert(pub, n, k)
		}
	}
	return nil
}

func decodeHex32(s string, out *[32]byte) error {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return fmt.Errorf("expected 32 bytes hex, got %q", s)
	}
	copy(out[:], b)
	return nil
}
