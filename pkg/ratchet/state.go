package ratchet

// State is the authoritative per-session ratchet state spec.md §3
// names SessionState; everything else (subscriptions, handlers) is
// derived from it. Chain keys and the "current"/"next" ratchet
// keypairs are pointers so their absence (e.g. a fresh responder has
// no sendingChainKey and no ourCurrentRatchetKey yet) is representable
// without a sentinel zero value.
type State struct {
	RootKey [32]byte

	SendingChainKey   *[32]byte
	ReceivingChainKey *[32]byte

	SendingChainMessageNumber        uint32
	ReceivingChainMessageNumber      uint32
	PreviousSendingChainMessageCount uint32

	OurCurrentRatchetKey *PrivateKey
	OurNextRatchetKey    *PrivateKey

	TheirCurrentRatchetPublic PublicKey
	TheirNextRatchetPublic    PublicKey

	skipped *skipCache
}

// newState returns a State with an empty skipped-key cache; the
// exported zero value is not directly usable since skipped is
// unexported.
func newState() *State {
	return &State{skipped: newSkipCache()}
}

// Clone performs a deep copy, so an offline decryptEventWithState call
// never mutates the caller's original state on a failed decrypt.
func (s *State) Clone() *State {
	out := &State{
		RootKey:                          s.RootKey,
		SendingChainMessageNumber:        s.SendingChainMessageNumber,
		ReceivingChainMessageNumber:      s.ReceivingChainMessageNumber,
		PreviousSendingChainMessageCount: s.PreviousSendingChainMessageCount,
		TheirCurrentRatchetPublic:        s.TheirCurrentRatchetPublic,
		TheirNextRatchetPublic:           s.TheirNextRatchetPublic,
	}
	if s.SendingChainKey != nil {
		v := *s.SendingChainKey
		out.SendingChainKey = &v
	}
	if s.ReceivingChainKey != nil {
		v := *s.ReceivingChainKey
		out.ReceivingChainKey = &v
	}
	if s.OurCurrentRatchetKey != nil {
		v := *s.OurCurrentRatchetKey
		out.OurCurrentRatchetKey = &v
	}
	if s.OurNextRatchetKey != nil {
		v := *s.OurNextRatchetKey
		out.OurNextRatchetKey = &v
	}
	if s.skipped != nil {
		out.skipped = s.skipped.clone()
	} else {
		out.skipped = newSkipCache()
	}
	return out
}

// wipe overwrites every private-material field, per spec.md §5
// "dropped state erases all private material from working memory".
func (s *State) wipe() {
	zero(s.RootKey[:])
	if s.SendingChainKey != nil {
		zero(s.SendingChainKey[:])
	}
	if s.ReceivingChainKey != nil {
		zero(s.ReceivingChainKey[:])
	}
	if s.OurCurrentRatchetKey != nil {
		zero(s.OurCurrentRatchetKey[:])
	}
	if s.OurNextRatchetKey != nil {
		zero(s.OurNextRatchetKey[:])
	}
	if s.skipped != nil {
		for _, entry := range s.skipped.entries {
			for n := range entry.keys {
				entry.keys[n] = messageKey{}
			}
		}
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// equal reports whether two states are identical on every field except
// the skipped-key cache, which it does not compare. Nothing in this
// module calls it.
func (s *State) equal(o *State) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.RootKey != o.RootKey ||
		s.SendingChainMessageNumber != o.SendingChainMessageNumber ||
		s.ReceivingChainMessageNumber != o.ReceivingChainMessageNumber ||
		s.PreviousSendingChainMessageCount != o.PreviousSendingChainMessageCount ||
		s.TheirCurrentRatchetPublic != o.TheirCurrentRatchetPublic ||
		s.TheirNextRatchetPublic != o.TheirNextRatchetPublic {
		return false
	}
	if !eqPtr32(s.SendingChainKey, o.SendingChainKey) || !eqPtr32(s.ReceivingChainKey, o.ReceivingChainKey) {
		return false
	}
	if !eqPtrPriv(s.OurCurrentRatchetKey, o.OurCurrentRatchetKey) || !eqPtrPriv(s.OurNextRatchetKey, o.OurNextRatchetKey) {
		return false
	}
	return true
}

func eqPtr32(a, b *[32]byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func eqPtrPriv(a, b *PrivateKey) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
