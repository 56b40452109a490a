package event_test

import (
	"testing"

	"github.com/zentalk/doubleratchet/pkg/cryptoref"
	"github.com/zentalk/doubleratchet/pkg/event"
)

func TestSignVerify(t *testing.T) {
	sk, pk, err := cryptoref.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	signer := cryptoref.NewKeySigner(sk)

	e := &event.Event{
		PubKey:    event.PublicKey(pk),
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      []event.Tag{{"p", "abc"}},
		Content:   "hello",
	}
	if err := e.Sign(signer); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !e.Verify(signer) {
		t.Fatal("Verify() = false, want true")
	}

	e.Content = "tampered"
	if e.Verify(signer) {
		t.Fatal("Verify() = true after tampering content, want false")
	}
}

func TestMatchFilter(t *testing.T) {
	_, pkA, _ := cryptoref.GenerateKeyPair()
	_, pkB, _ := cryptoref.GenerateKeyPair()

	e := &event.Event{
		PubKey: event.PublicKey(pkA),
		Kind:   30078,
		Tags:   []event.Tag{{"p", event.PublicKey(pkB).Hex()}},
	}

	tests := []struct {
		name string
		f    event.Filter
		want bool
	}{
		{"no constraints", event.Filter{}, true},
		{"matching kind", event.Filter{Kinds: []uint16{30078}}, true},
		{"wrong kind", event.Filter{Kinds: []uint16{1}}, false},
		{"matching author", event.Filter{Authors: []event.PublicKey{event.PublicKey(pkA)}}, true},
		{"wrong author", event.Filter{Authors: []event.PublicKey{event.PublicKey(pkB)}}, false},
		{"matching p tag", event.Filter{Tags: map[string][]string{"p": {event.PublicKey(pkB).Hex()}}}, true},
		{"missing p tag value", event.Filter{Tags: map[string][]string{"p": {"deadbeef"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := event.MatchFilter(tt.f, e); got != tt.want {
				t.Errorf("MatchFilter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsReplaceable(t *testing.T) {
	if !event.IsReplaceable(10078) {
		t.Error("IsReplaceable(10078) = false, want true")
	}
	if event.IsReplaceable(9999) {
		t.Error("IsReplaceable(9999) = true, want false")
	}
	if event.IsReplaceable(20000) {
		t.Error("IsReplaceable(20000) = true, want false")
	}
}
