package ratchet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/zentalk/doubleratchet/pkg/drconfig"
	"github.com/zentalk/doubleratchet/pkg/event"
)

// Stats counts the "non-fatal" event classes spec.md §9's Open
// Question asks a production implementation to surface: "a production
// implementation SHOULD count these and expose a counter."
type Stats struct {
	CryptoFailures    uint64
	MalformedEvents   uint64
	BoundExceededHits uint64
}

// SendResult is returned by Send: the signed outer event the caller
// publishes, and the unsigned inner event it wraps (useful for local
// echo / outbox bookkeeping).
type SendResult struct {
	Event *event.Event
	Inner *event.Event
}

// Session is the per-pair Double Ratchet state machine of spec.md
// §4.2. It owns at most two open bus subscriptions at a time (the
// "subscription discipline") and serializes every state transition
// behind mu, held across both the ratchet step and the subscription
// swap that follows it (spec.md §5).
type Session struct {
	mu sync.Mutex

	crypto Crypto
	bus    event.Bus

	ourIdentityPriv PrivateKey
	ourIdentityPub  PublicKey

	isInitiator bool
	name        string

	state *State

	unsubCurrent event.Unsubscribe
	unsubNext    event.Unsubscribe

	handlers []func(*event.Event)
	stats    Stats
	closed   bool
}

// New constructs a Session exactly per spec.md §4.2's Construction:
// the first root key mixes sharedSecret with DH(ourIdentityPriv,
// theirIdentityPub); the initiator's first header key is predictable
// from the invite (it reuses ourIdentityPriv as its first ratchet
// key); the responder eagerly derives its receiving chain so it can
// decrypt the initiator's first message on arrival, and subscribes
// immediately.
func New(crypto Crypto, bus event.Bus, theirIdentityPub PublicKey, ourIdentityPriv PrivateKey, isInitiator bool, sharedSecret []byte, name string) (*Session, error) {
	dh0, err := crypto.DH(ourIdentityPriv, theirIdentityPub)
	if err != nil {
		return nil, fmt.Errorf("ratchet: init: %w", err)
	}
	rootKey0 := kdf1(dh0, sharedSecret, rootInfo)

	st := newState()
	st.RootKey = rootKey0

	nextPriv := ourIdentityPriv
	st.OurNextRatchetKey = &nextPriv
	st.TheirNextRatchetPublic = theirIdentityPub

	if !isInitiator {
		newRoot, chainKey := kdf2(dh0, rootKey0[:], chainInfo)
		st.RootKey = newRoot
		st.ReceivingChainKey = &chainKey
		st.TheirCurrentRatchetPublic = theirIdentityPub
	}

	s := &Session{
		crypto:          crypto,
		bus:             bus,
		ourIdentityPriv: ourIdentityPriv,
		ourIdentityPub:  crypto.Public(ourIdentityPriv),
		isInitiator:     isInitiator,
		name:            name,
		state:           st,
	}
	s.resubscribe()
	return s, nil
}

func messageFilter(pub PublicKey) event.Filter {
	return event.Filter{Kinds: []uint16{drconfig.KindMessage}, Authors: []PublicKey{pub}}
}

// resubscribe cancels any held subscriptions and opens fresh ones for
// TheirCurrentRatchetPublic and TheirNextRatchetPublic (deduplicated
// when they're equal, and skipped entirely while unset). Callers must
// hold mu.
func (s *Session) resubscribe() {
	if s.unsubCurrent != nil {
		s.unsubCurrent()
		s.unsubCurrent = nil
	}
	if s.unsubNext != nil {
		s.unsubNext()
		s.unsubNext = nil
	}
	var zero PublicKey
	if s.state.TheirCurrentRatchetPublic != zero {
		s.unsubCurrent = s.bus.Subscribe(messageFilter(s.state.TheirCurrentRatchetPublic), s.handleIncoming)
	}
	if s.state.TheirNextRatchetPublic != zero && s.state.TheirNextRatchetPublic != s.state.TheirCurrentRatchetPublic {
		s.unsubNext = s.bus.Subscribe(messageFilter(s.state.TheirNextRatchetPublic), s.handleIncoming)
	}
}

func (s *Session) handleIncoming(e *event.Event) {
	inner, err := s.decryptEvent(e)
	if err != nil || inner == nil {
		return
	}
	for _, h := range s.handlers {
		h(inner)
	}
}

// OnEvent registers handler to be invoked with every successfully
// decrypted inner event, in the order the bus delivers them (spec.md
// §4.2 "Event stream").
func (s *Session) OnEvent(handler func(*event.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Resume reconstructs a Session from previously serialized state,
// rebinding it to subscribe capability bus — spec.md §4.5's "load(pub,
// subscribe) reconstructs sessions by rebinding them to the given
// subscribe capability."
func Resume(crypto Crypto, bus event.Bus, ourIdentityPriv PrivateKey, isInitiator bool, name string, state *State) *Session {
	s := &Session{
		crypto:          crypto,
		bus:             bus,
		ourIdentityPriv: ourIdentityPriv,
		ourIdentityPub:  crypto.Public(ourIdentityPriv),
		isInitiator:     isInitiator,
		name:            name,
		state:           state,
	}
	s.resubscribe()
	return s
}

// StateSnapshot returns a deep copy of the current ratchet state, for
// persistence by pkg/session's UserRecordStore.
func (s *Session) StateSnapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Name returns the logical session name pkg/session's rotate-in-place
// logic compares by.
func (s *Session) Name() string { return s.name }

// IsInitiator reports the role Session was constructed with.
func (s *Session) IsInitiator() bool { return s.isInitiator }

// IdentityPublicKey returns the public half of the identity key this
// Session was constructed or resumed with.
func (s *Session) IdentityPublicKey() PublicKey { return s.ourIdentityPub }

// Stats returns a snapshot of the non-fatal failure counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// JitteredNow returns a unix timestamp uniformly distributed in
// [now-JitterWindow, now], frustrating traffic analysis per spec.md
// §4.2. Exported so pkg/invite's envelope construction (spec.md §4.3
// step 5, "created_at: jittered") can reuse the identical policy
// instead of re-deriving it.
func JitteredNow() int64 {
	now := time.Now().Unix()
	window := int64(drconfig.JitterWindow / time.Second)
	if window <= 0 {
		return now
	}
	n, err := cryptoRandInt(window + 1)
	if err != nil {
		return now
	}
	return now - n
}

// Send performs one outbound ratchet step per spec.md §4.2: ratchets
// the sending chain if it's absent, derives a message key, builds and
// encrypts the inner event, and signs the outer event with the
// current ratchet private key.
func (s *Session) Send(plaintext string) (*SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.SendingChainKey == nil {
		if err := s.ratchetSendingChain(); err != nil {
			return nil, err
		}
	}

	ck := *s.state.SendingChainKey
	newCk, mk := kdf2(ck[:], nil, chainInfo)
	s.state.SendingChainKey = &newCk
	n := s.state.SendingChainMessageNumber
	s.state.SendingChainMessageNumber++

	inner := &event.Event{
		PubKey:    s.ourIdentityPub,
		Content:   plaintext,
		Kind:      0,
		CreatedAt: time.Now().Unix(),
	}
	innerBytes, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("ratchet: send: marshal inner event: %w", err)
	}
	ciphertext, err := s.crypto.Seal(mk[:], innerBytes)
	if err != nil {
		return nil, fmt.Errorf("ratchet: send: seal: %w", err)
	}

	nextHeaderHint := hex.EncodeToString(s.crypto.Public(*s.state.OurNextRatchetKey)[:])
	outer := &event.Event{
		PubKey:    s.crypto.Public(*s.state.OurCurrentRatchetKey),
		Content:   hex.EncodeToString(ciphertext),
		Kind:      drconfig.KindMessage,
		CreatedAt: JitteredNow(),
		Tags: []event.Tag{
			{"header", nextHeaderHint},
			{"n", strconv.FormatUint(uint64(n), 10)},
			{"pn", strconv.FormatUint(uint64(s.state.PreviousSendingChainMessageCount), 10)},
		},
	}
	signer := NewSigner(s.crypto, *s.state.OurCurrentRatchetKey)
	if err := outer.Sign(signer); err != nil {
		return nil, fmt.Errorf("ratchet: send: sign: %w", err)
	}

	return &SendResult{Event: outer, Inner: inner}, nil
}

// ratchetSendingChain implements spec.md §4.2 Send step 1. Callers
// must hold mu.
func (s *Session) ratchetSendingChain() error {
	if s.state.OurNextRatchetKey == nil {
		sk, _, err := s.crypto.Generate()
		if err != nil {
			return fmt.Errorf("ratchet: generate next key: %w", err)
		}
		s.state.OurNextRatchetKey = &sk
	}
	// Once a message has been received, TheirNextRatchetPublic holds the
	// peer's announced next key (adoptHeaderHint), while the peer DHs
	// the reply against its current ratchet key; so the DH uses
	// TheirCurrentRatchetPublic when it is set.
	peer := s.state.TheirCurrentRatchetPublic
	var zero PublicKey
	if peer == zero {
		peer = s.state.TheirNextRatchetPublic
	}
	dh, err := s.crypto.DH(*s.state.OurNextRatchetKey, peer)
	if err != nil {
		return fmt.Errorf("ratchet: dh ratchet: %w", err)
	}
	newRoot, newChain := kdf2(dh, s.state.RootKey[:], chainInfo)
	s.state.RootKey = newRoot
	s.state.SendingChainKey = &newChain

	used := *s.state.OurNextRatchetKey
	s.state.OurCurrentRatchetKey = &used
	fresh, _, err := s.crypto.Generate()
	if err != nil {
		return fmt.Errorf("ratchet: generate next key: %w", err)
	}
	s.state.OurNextRatchetKey = &fresh

	s.state.PreviousSendingChainMessageCount = s.state.SendingChainMessageNumber
	s.state.SendingChainMessageNumber = 0
	return nil
}

// Signer adapts a Crypto + one-off private key to event.Signer, for
// signing a single event with whichever key is current at send time.
// Exported so pkg/invite's one-shot sender keypair R (spec.md §4.3
// step 5) can sign its envelope without duplicating this adapter.
type Signer struct {
	crypto Crypto
	sk     PrivateKey
}

// NewSigner returns a Signer bound to sk.
func NewSigner(crypto Crypto, sk PrivateKey) Signer { return Signer{crypto: crypto, sk: sk} }

func (r Signer) Sign(msg []byte) ([]byte, error) { return r.crypto.Sign(r.sk, msg) }
func (r Signer) Verify(pk event.PublicKey, msg, sig []byte) bool {
	return r.crypto.Verify(pk, msg, sig)
}

var _ event.Signer = Signer{}

// Verifier adapts Crypto to event.Signer for verification-only use
// (decryptEvent never holds a private key for the peer). Exported so
// pkg/invite and pkg/invitelist can verify event signatures without
// a private key of their own.
type Verifier struct{ crypto Crypto }

// NewVerifier returns a Verifier backed by crypto.
func NewVerifier(crypto Crypto) Verifier { return Verifier{crypto: crypto} }

func (v Verifier) Sign(msg []byte) ([]byte, error) { return nil, fmt.Errorf("ratchet: sign-only verifier") }
func (v Verifier) Verify(pk event.PublicKey, msg, sig []byte) bool {
	return v.crypto.Verify(pk, msg, sig)
}

var _ event.Signer = Verifier{}

func parseTagUint(e *event.Event, name string) (uint32, bool) {
	v, ok := e.FirstTagValue(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// adoptHeaderHint reads the sender's "header" tag — its announced next
// ratchet public key — and adopts it as ns.TheirNextRatchetPublic. The
// sender's own header key stays fixed across every message in a chain
// (only the message number advances), so without this hint the
// receiver would have no way to recognize the sender's *next* chain's
// header key once the sender eventually rotates away from the key it
// used at session start.
func adoptHeaderHint(ns *State, e *event.Event) {
	hdr, ok := e.FirstTagValue("header")
	if !ok {
		return
	}
	b, err := hex.DecodeString(hdr)
	if err != nil || len(b) != 32 {
		return
	}
	var pk PublicKey
	copy(pk[:], b)
	ns.TheirNextRatchetPublic = pk
}

// decryptEvent is the Session-owning wrapper around
// decryptEventWithState: on success it commits the new state and
// swaps subscriptions; on failure (including "not for this session")
// the held state is left untouched, per spec.md §8 invariant 5.
func (s *Session) decryptEvent(e *event.Event) (*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil
	}

	inner, newState, err := decryptEventWithState(s.crypto, s.state, e)
	switch {
	case isCryptoFailure(err):
		s.stats.CryptoFailures++
		return nil, nil
	case isMalformedEvent(err):
		s.stats.MalformedEvents++
		return nil, nil
	case isBoundExceeded(err):
		// Non-fatal: the skipped-key cache couldn't hold every
		// derived key, but inner/newState are still valid and get
		// committed below — spec.md §7's "BoundExceeded silently
		// truncates skip derivation".
		s.stats.BoundExceededHits++
	case err != nil:
		return nil, nil
	}
	if inner == nil {
		return nil, nil
	}

	rotated := s.state.TheirCurrentRatchetPublic != newState.TheirCurrentRatchetPublic ||
		s.state.TheirNextRatchetPublic != newState.TheirNextRatchetPublic
	s.state = newState
	if rotated {
		s.resubscribe()
	}
	return inner, nil
}

func isCryptoFailure(err error) bool  { return errorsIs(err, ErrCryptoFailure) }
func isMalformedEvent(err error) bool { return errorsIs(err, ErrMalformedEvent) }
func isBoundExceeded(err error) bool  { return errorsIs(err, ErrBoundExceeded) }

// decryptEventWithState is the pure offline helper of spec.md §4.2:
// accepts a deserialized state, returns the decrypted inner event and
// the updated state, without touching subscriptions. It never mutates
// state; on any failure it returns a nil state so callers can't
// accidentally commit a partial mutation.
func decryptEventWithState(crypto Crypto, state *State, e *event.Event) (*event.Event, *State, error) {
	if !e.Verify(NewVerifier(crypto)) {
		return nil, nil, ErrMalformedEvent
	}
	// A message number already held in the skipped-key cache always
	// routes here first, regardless of which ratchet public key sent
	// it: a same-chain reorder (pubkey == TheirCurrentRatchetPublic,
	// n < ReceivingChainMessageNumber) would otherwise fall into
	// decryptCurrent, which only ever advances the live chain forward
	// and has no way to recover a message number it has already passed.
	if n, ok := parseTagUint(e, "n"); ok && state.skipped.has(e.PubKey, n) {
		return decryptSkipped(crypto, state, e)
	}
	var zero PublicKey
	switch {
	case e.PubKey == state.TheirCurrentRatchetPublic && e.PubKey != zero:
		return decryptCurrent(crypto, state, e)
	case e.PubKey == state.TheirNextRatchetPublic && e.PubKey != zero:
		return decryptAndRatchet(crypto, state, e)
	default:
		return decryptSkipped(crypto, state, e)
	}
}

func decryptCurrent(crypto Crypto, state *State, e *event.Event) (*event.Event, *State, error) {
	n, ok := parseTagUint(e, "n")
	if !ok {
		return nil, nil, ErrMalformedEvent
	}
	if state.ReceivingChainKey == nil {
		return nil, nil, ErrCryptoFailure
	}
	ciphertext, err := hex.DecodeString(e.Content)
	if err != nil {
		return nil, nil, ErrMalformedEvent
	}

	ns := state.Clone()
	ck := *ns.ReceivingChainKey
	boundExceeded := false
	for i := ns.ReceivingChainMessageNumber; i < n; i++ {
		newCk, mk := kdf2(ck[:], nil, chainInfo)
		ck = newCk
		if !ns.skipped.insert(ns.TheirCurrentRatchetPublic, i, messageKey(mk)) {
			boundExceeded = true
		}
	}
	newCk, mk := kdf2(ck[:], nil, chainInfo)
	ck = newCk

	plaintext, err := crypto.Open(mk[:], ciphertext)
	if err != nil {
		return nil, nil, ErrCryptoFailure
	}
	var inner event.Event
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return nil, nil, ErrMalformedEvent
	}

	ns.ReceivingChainKey = &ck
	ns.ReceivingChainMessageNumber = n + 1
	adoptHeaderHint(ns, e)
	if boundExceeded {
		return &inner, ns, ErrBoundExceeded
	}
	return &inner, ns, nil
}

func decryptAndRatchet(crypto Crypto, state *State, e *event.Event) (*event.Event, *State, error) {
	n, ok := parseTagUint(e, "n")
	if !ok {
		return nil, nil, ErrMalformedEvent
	}
	pn, ok := parseTagUint(e, "pn")
	if !ok {
		return nil, nil, ErrMalformedEvent
	}
	if state.OurCurrentRatchetKey == nil || state.OurNextRatchetKey == nil {
		return nil, nil, ErrCryptoFailure
	}
	ciphertext, err := hex.DecodeString(e.Content)
	if err != nil {
		return nil, nil, ErrMalformedEvent
	}

	ns := state.Clone()
	boundExceeded := false

	// Finalize any remaining skipped keys from the old receiving chain
	// up to previousSendingChainMessageCount-1 before rotating away
	// from it.
	if ns.ReceivingChainKey != nil {
		ck := *ns.ReceivingChainKey
		for i := ns.ReceivingChainMessageNumber; i < pn; i++ {
			newCk, mk := kdf2(ck[:], nil, chainInfo)
			ck = newCk
			if !ns.skipped.insert(ns.TheirCurrentRatchetPublic, i, messageKey(mk)) {
				boundExceeded = true
			}
		}
	}

	ns.TheirCurrentRatchetPublic = e.PubKey
	ns.TheirNextRatchetPublic = e.PubKey

	dhRecv, err := crypto.DH(*ns.OurCurrentRatchetKey, e.PubKey)
	if err != nil {
		return nil, nil, ErrCryptoFailure
	}
	newRoot, newRecvChain := kdf2(dhRecv, ns.RootKey[:], chainInfo)
	ns.RootKey = newRoot
	ns.ReceivingChainKey = &newRecvChain
	ns.ReceivingChainMessageNumber = 0

	dhSend, err := crypto.DH(*ns.OurNextRatchetKey, e.PubKey)
	if err != nil {
		return nil, nil, ErrCryptoFailure
	}
	newRoot2, newSendChain := kdf2(dhSend, ns.RootKey[:], chainInfo)
	ns.RootKey = newRoot2
	ns.SendingChainKey = &newSendChain
	used := *ns.OurNextRatchetKey
	ns.OurCurrentRatchetKey = &used
	fresh, _, err := crypto.Generate()
	if err != nil {
		return nil, nil, ErrCryptoFailure
	}
	ns.OurNextRatchetKey = &fresh
	ns.PreviousSendingChainMessageCount = ns.SendingChainMessageNumber
	ns.SendingChainMessageNumber = 0

	ck := newRecvChain
	for i := uint32(0); i < n; i++ {
		newCk, mk := kdf2(ck[:], nil, chainInfo)
		ck = newCk
		if !ns.skipped.insert(ns.TheirCurrentRatchetPublic, i, messageKey(mk)) {
			boundExceeded = true
		}
	}
	newCk, mk := kdf2(ck[:], nil, chainInfo)
	ns.ReceivingChainKey = &newCk
	ns.ReceivingChainMessageNumber = n + 1

	plaintext, err := crypto.Open(mk[:], ciphertext)
	if err != nil {
		return nil, nil, ErrCryptoFailure
	}
	var inner event.Event
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return nil, nil, ErrMalformedEvent
	}
	adoptHeaderHint(ns, e)
	if boundExceeded {
		return &inner, ns, ErrBoundExceeded
	}
	return &inner, ns, nil
}

func decryptSkipped(crypto Crypto, state *State, e *event.Event) (*event.Event, *State, error) {
	n, ok := parseTagUint(e, "n")
	if !ok {
		return nil, nil, nil // not ours: no match, not an error
	}
	if !state.skipped.has(e.PubKey, n) {
		return nil, nil, nil
	}
	ciphertext, err := hex.DecodeString(e.Content)
	if err != nil {
		return nil, nil, ErrMalformedEvent
	}
	ns := state.Clone()
	mk, _ := ns.skipped.take(e.PubKey, n) // evicted from the clone only
	plaintext, err := crypto.Open(mk[:], ciphertext)
	if err != nil {
		return nil, nil, ErrCryptoFailure
	}
	var inner event.Event
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return nil, nil, ErrMalformedEvent
	}
	adoptHeaderHint(ns, e)
	return &inner, ns, nil
}

// Close cancels both held subscriptions and wipes private key
// material, per spec.md §5's "Session teardown cancels all held
// unsubscribes; dropped state erases all private material from
// working memory."
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.unsubCurrent != nil {
		s.unsubCurrent()
	}
	if s.unsubNext != nil {
		s.unsubNext()
	}
	s.state.wipe()
	zero(s.ourIdentityPriv[:])
}

func errorsIs(err, target error) bool {
	return err == target
}

// cryptoRandInt returns a uniform random value in [0, n) using
// crypto/rand, matching the "jittered timestamp" requirement's intent
// (this needs unpredictability, not merely speed).
func cryptoRandInt(n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
