package ratchet_test

import (
	"testing"

	"github.com/zentalk/doubleratchet/pkg/cryptoref"
	"github.com/zentalk/doubleratchet/pkg/event"
	"github.com/zentalk/doubleratchet/pkg/event/memorybus"
	"github.com/zentalk/doubleratchet/pkg/ratchet"
)

func newPair(t *testing.T) (bus *memorybus.Bus, crypto ratchet.Crypto, aliceKey, aliceID, bobKey, bobID ratchet.PrivateKey, alicePub, bobPub ratchet.PublicKey) {
	t.Helper()
	bus = memorybus.New()
	crypto = cryptoref.NewRatchetCrypto()

	aSk, aPk, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	bSk, bPk, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return bus, crypto, aSk, aSk, bSk, bSk, aPk, bPk
}

func newSession(t *testing.T, crypto ratchet.Crypto, bus *memorybus.Bus, ourPriv ratchet.PrivateKey, theirPub ratchet.PublicKey, isInitiator bool, secret []byte, name string) *ratchet.Session {
	t.Helper()
	s, err := ratchet.New(crypto, bus, theirPub, ourPriv, isInitiator, secret, name)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

// TestOneShotSend is scenario S1.
func TestOneShotSend(t *testing.T) {
	bus, crypto, aliceKey, _, bobKey, _, alicePub, bobPub := newPair(t)
	secret := make([]byte, 32)

	alice := newSession(t, crypto, bus, aliceKey, bobPub, true, secret, "alice")
	bob := newSession(t, crypto, bus, bobKey, alicePub, false, secret, "bob")

	var got string
	bob.OnEvent(func(e *event.Event) { got = e.Content })

	res, err := alice.Send("hello bob")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := bus.Publish(res.Event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got != "hello bob" {
		t.Fatalf("bob received %q, want %q", got, "hello bob")
	}
}

// TestBidirectionalWithRotation is scenario S2.
func TestBidirectionalWithRotation(t *testing.T) {
	bus, crypto, aliceKey, _, bobKey, _, alicePub, bobPub := newPair(t)
	secret := make([]byte, 32)

	alice := newSession(t, crypto, bus, aliceKey, bobPub, true, secret, "alice")
	bob := newSession(t, crypto, bus, bobKey, alicePub, false, secret, "bob")

	var bobGot, aliceGot string
	bob.OnEvent(func(e *event.Event) { bobGot = e.Content })
	alice.OnEvent(func(e *event.Event) { aliceGot = e.Content })

	e1, err := alice.Send("hello bob")
	if err != nil {
		t.Fatalf("alice.Send() error = %v", err)
	}
	if err := bus.Publish(e1.Event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if bobGot != "hello bob" {
		t.Fatalf("bob received %q, want %q", bobGot, "hello bob")
	}

	e2, err := bob.Send("hi alice")
	if err != nil {
		t.Fatalf("bob.Send() error = %v", err)
	}
	if err := bus.Publish(e2.Event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if aliceGot != "hi alice" {
		t.Fatalf("alice received %q, want %q", aliceGot, "hi alice")
	}
}

// TestOutOfOrderDelivery is scenario S3: bob's onEvent handler observes
// messages in delivery order, not send order.
func TestOutOfOrderDelivery(t *testing.T) {
	bus, crypto, aliceKey, _, bobKey, _, alicePub, bobPub := newPair(t)
	secret := make([]byte, 32)

	alice := newSession(t, crypto, bus, aliceKey, bobPub, true, secret, "alice")
	bob := newSession(t, crypto, bus, bobKey, alicePub, false, secret, "bob")

	var received []string
	bob.OnEvent(func(e *event.Event) { received = append(received, e.Content) })

	var events []*event.Event
	for _, m := range []string{"one", "two", "three"} {
		res, err := alice.Send(m)
		if err != nil {
			t.Fatalf("Send(%q) error = %v", m, err)
		}
		events = append(events, res.Event)
	}

	order := []int{2, 0, 1} // deliver three, one, two
	for _, i := range order {
		if err := bus.Publish(events[i]); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	want := []string{"three", "one", "two"}
	if len(received) != len(want) {
		t.Fatalf("received = %v, want %v", received, want)
	}
	for i := range want {
		if received[i] != want[i] {
			t.Fatalf("received[%d] = %q, want %q", i, received[i], want[i])
		}
	}
}

// TestRoundTripAcrossManySends exercises invariant 1: every inner
// event decrypts to the exact payload sent, across an ordered sequence
// of sends/receives in both directions.
func TestRoundTripAcrossManySends(t *testing.T) {
	bus, crypto, aliceKey, _, bobKey, _, alicePub, bobPub := newPair(t)
	secret := make([]byte, 32)

	alice := newSession(t, crypto, bus, aliceKey, bobPub, true, secret, "alice")
	bob := newSession(t, crypto, bus, bobKey, alicePub, false, secret, "bob")

	var bobGot, aliceGot []string
	bob.OnEvent(func(e *event.Event) { bobGot = append(bobGot, e.Content) })
	alice.OnEvent(func(e *event.Event) { aliceGot = append(aliceGot, e.Content) })

	for i := 0; i < 5; i++ {
		r, err := alice.Send("a-msg")
		if err != nil {
			t.Fatalf("alice.Send() error = %v", err)
		}
		bus.Publish(r.Event)
		r2, err := bob.Send("b-msg")
		if err != nil {
			t.Fatalf("bob.Send() error = %v", err)
		}
		bus.Publish(r2.Event)
	}

	if len(bobGot) != 5 || len(aliceGot) != 5 {
		t.Fatalf("bobGot = %v, aliceGot = %v, want 5 each", bobGot, aliceGot)
	}
	for _, m := range bobGot {
		if m != "a-msg" {
			t.Fatalf("bob got %q, want a-msg", m)
		}
	}
	for _, m := range aliceGot {
		if m != "b-msg" {
			t.Fatalf("alice got %q, want b-msg", m)
		}
	}
}

// TestUnrelatedEventLeavesStateUntouched exercises invariant 5: an
// event whose pubkey matches neither theirCurrent, theirNext, nor a
// skipped-key index causes decryptEvent to surface nothing and leaves
// both the session state and Stats unaffected (it's simply not ours).
func TestUnrelatedEventLeavesStateUntouched(t *testing.T) {
	bus, crypto, aliceKey, _, bobKey, _, alicePub, bobPub := newPair(t)
	secret := make([]byte, 32)

	alice := newSession(t, crypto, bus, aliceKey, bobPub, true, secret, "alice")
	bob := newSession(t, crypto, bus, bobKey, alicePub, false, secret, "bob")
	_ = alice

	strangerSk, strangerPk, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	before := bob.Stats()
	beforeState, err := bob.StateSnapshot().MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	stranger := &event.Event{PubKey: strangerPk, Kind: 30080, Content: "deadbeef", CreatedAt: 1, Tags: []event.Tag{{"n", "0"}, {"pn", "0"}}}
	signer := testSigner{crypto: crypto, sk: strangerSk}
	if err := stranger.Sign(signer); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if err := bus.Publish(stranger); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	after := bob.Stats()
	if after != before {
		t.Fatalf("Stats changed for an unrelated event: before=%v after=%v", before, after)
	}
	afterState, err := bob.StateSnapshot().MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(afterState) != string(beforeState) {
		t.Fatalf("state changed for an unrelated event:\n%s\nvs\n%s", beforeState, afterState)
	}
}

type testSigner struct {
	crypto ratchet.Crypto
	sk     ratchet.PrivateKey
}

func (s testSigner) Sign(msg []byte) ([]byte, error) { return s.crypto.Sign(s.sk, msg) }
func (s testSigner) Verify(pk event.PublicKey, msg, sig []byte) bool {
	return s.crypto.Verify(pk, msg, sig)
}

// TestStateRoundTripsThroughJSON exercises invariant 3's serialization
// half directly against the wire codec.
func TestStateRoundTripsThroughJSON(t *testing.T) {
	_, crypto, aliceKey, _, _, _, _, bobPub := newPair(t)
	secret := make([]byte, 32)
	bus := memorybus.New()

	alice := newSession(t, crypto, bus, aliceKey, bobPub, true, secret, "alice")
	if _, err := alice.Send("warm up the sending chain"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	snap := alice.StateSnapshot()
	data, err := snap.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	var restored ratchet.State
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	data2, err := restored.MarshalJSON()
	if err != nil {
		t.Fatalf("re-MarshalJSON() error = %v", err)
	}
	if string(data) != string(data2) {
		t.Fatalf("round trip mismatch:\n%s\nvs\n%s", data, data2)
	}
}
