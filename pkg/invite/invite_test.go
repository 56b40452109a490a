package invite_test

import (
	"testing"

	"github.com/zentalk/doubleratchet/pkg/cryptoref"
	"github.com/zentalk/doubleratchet/pkg/event"
	"github.com/zentalk/doubleratchet/pkg/invite"
)

func TestInviteToEventFromEventRoundTrip(t *testing.T) {
	inviterSk, inviterPk, _ := cryptoref.GenerateKeyPair()
	_, ephPk, _ := cryptoref.GenerateKeyPair()
	secret, _ := cryptoref.RandomBytes(32)

	inv := &invite.Invite{
		Inviter:      event.PublicKey(inviterPk),
		EphemeralPub: event.PublicKey(ephPk),
		SharedSecret: secret,
		DeviceID:     "device-1",
	}

	signer := cryptoref.NewKeySigner(inviterSk)
	e, err := inv.ToEvent(signer, 1000)
	if err != nil {
		t.Fatalf("ToEvent() error = %v", err)
	}

	got, err := invite.FromEvent(e, signer)
	if err != nil {
		t.Fatalf("FromEvent() error = %v", err)
	}
	if got.Inviter != inv.Inviter || got.EphemeralPub != inv.EphemeralPub || got.DeviceID != inv.DeviceID {
		t.Fatalf("FromEvent() = %+v, want fields matching %+v", got, inv)
	}
	if string(got.SharedSecret) != string(inv.SharedSecret) {
		t.Fatal("FromEvent() sharedSecret mismatch")
	}
}

func TestFromEventRejectsBadSignature(t *testing.T) {
	inviterSk, inviterPk, _ := cryptoref.GenerateKeyPair()
	strangerSk, _, _ := cryptoref.GenerateKeyPair()
	_, ephPk, _ := cryptoref.GenerateKeyPair()
	secret, _ := cryptoref.RandomBytes(32)

	inv := &invite.Invite{Inviter: event.PublicKey(inviterPk), EphemeralPub: event.PublicKey(ephPk), SharedSecret: secret, DeviceID: "device-1"}
	e, err := inv.ToEvent(cryptoref.NewKeySigner(inviterSk), 1000)
	if err != nil {
		t.Fatalf("ToEvent() error = %v", err)
	}
	e.Content = "tampered"

	if _, err := invite.FromEvent(e, cryptoref.NewKeySigner(strangerSk)); err == nil {
		t.Fatal("FromEvent() succeeded on a tampered event, want error")
	}
}

func TestInviteURLRoundTrip(t *testing.T) {
	_, inviterPk, _ := cryptoref.GenerateKeyPair()
	_, ephPk, _ := cryptoref.GenerateKeyPair()
	secret, _ := cryptoref.RandomBytes(32)

	inv := &invite.Invite{Inviter: event.PublicKey(inviterPk), EphemeralPub: event.PublicKey(ephPk), SharedSecret: secret}
	u, err := inv.ToURL("https://example.com/invite")
	if err != nil {
		t.Fatalf("ToURL() error = %v", err)
	}

	got, err := invite.FromURL(u)
	if err != nil {
		t.Fatalf("FromURL() error = %v", err)
	}
	if got.Inviter != inv.Inviter || got.EphemeralPub != inv.EphemeralPub || string(got.SharedSecret) != string(inv.SharedSecret) {
		t.Fatalf("FromURL() = %+v, want fields matching %+v", got, inv)
	}
}
