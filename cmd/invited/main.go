// Command invited is a minimal demonstration harness wiring every
// reference component in this module together end to end: an invite
// is created and accepted over an in-process bus, the resulting
// session exchanges a couple of messages, and the session state is
// persisted to a store. It is not a shipped product
// — a real deployment supplies its own bus/store adapters and UI.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/zentalk/doubleratchet/internal/logging"
	"github.com/zentalk/doubleratchet/pkg/cryptoref"
	"github.com/zentalk/doubleratchet/pkg/event"
	"github.com/zentalk/doubleratchet/pkg/event/memorybus"
	"github.com/zentalk/doubleratchet/pkg/invite"
	"github.com/zentalk/doubleratchet/pkg/invitelist"
	"github.com/zentalk/doubleratchet/pkg/kvstore"
	"github.com/zentalk/doubleratchet/pkg/ratchet"
	"github.com/zentalk/doubleratchet/pkg/session"
)

var (
	deviceID = flag.String("device", "demo-device", "deviceId to register in the inviter's InviteList")
	sqlite   = flag.String("sqlite", "", "path to a SQLite file for session persistence (default: in-memory)")
)

var demoLog = logging.New("invited")

func main() {
	flag.Parse()

	crypto := cryptoref.NewRatchetCrypto()
	bus := memorybus.New()

	storage, closeStorage, err := openStorage(*sqlite)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer closeStorage()

	inviter, err := runInviterSetup(crypto, *deviceID)
	if err != nil {
		log.Fatalf("inviter setup: %v", err)
	}
	demoLog.Infof("invite created for device %q", *deviceID)
	fmt.Println(inviter.inviteURL)

	sessionR, sessionA, err := runHandshake(crypto, bus, inviter)
	if err != nil {
		log.Fatalf("handshake: %v", err)
	}
	demoLog.Infof("session established: %s", sessionR.Name())

	if err := exchangeMessages(bus, sessionR, sessionA); err != nil {
		log.Fatalf("exchange: %v", err)
	}

	inviteeIdentityPub := inviter.inviteeIdentityPub
	store := session.NewUserRecordStore(storage, crypto)
	record := store.GetOrCreate(inviteeIdentityPub)
	device := record.GetOrCreateDevice(*deviceID, ratchet.JitteredNow())
	session.RotateSession(device, sessionR)
	if err := store.Save(inviteeIdentityPub); err != nil {
		log.Fatalf("save session: %v", err)
	}
	demoLog.Infof("session persisted under device %q", *deviceID)
}

func openStorage(path string) (kvstore.Storage, func(), error) {
	if path == "" {
		return kvstore.NewMemory(), func() {}, nil
	}
	s, err := kvstore.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}

type inviterSetup struct {
	identityPriv  ratchet.PrivateKey
	identityPub   ratchet.PublicKey
	ephemeralPriv ratchet.PrivateKey
	ephemeralPub  ratchet.PublicKey
	sharedSecret  []byte
	inviteURL     string
	inv           *invite.Invite
	list          *invitelist.InviteList

	// inviteeIdentityPub is filled in by runHandshake's Listen callback.
	inviteeIdentityPub event.PublicKey
}

func runInviterSetup(crypto ratchet.Crypto, deviceID string) (*inviterSetup, error) {
	identityPriv, identityPub, err := crypto.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	ephemeralPriv, ephemeralPub, err := crypto.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral: %w", err)
	}
	sharedSecret, err := cryptoref.RandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generate shared secret: %w", err)
	}

	inv := &invite.Invite{
		Inviter:      event.PublicKey(identityPub),
		EphemeralPub: event.PublicKey(ephemeralPub),
		SharedSecret: sharedSecret,
		DeviceID:     deviceID,
	}
	url, err := inv.ToURL("invited.example/i")
	if err != nil {
		return nil, fmt.Errorf("invite to url: %w", err)
	}

	list := invitelist.New(event.PublicKey(identityPub), ratchet.JitteredNow())
	list.AddDevice(invitelist.DeviceEntry{
		EphemeralPublicKey:  event.PublicKey(ephemeralPub),
		SharedSecret:        sharedSecret,
		DeviceID:            deviceID,
		Label:               "demo",
		EphemeralPrivateKey: (*[32]byte)(&ephemeralPriv),
	})

	return &inviterSetup{
		identityPriv:  identityPriv,
		identityPub:   identityPub,
		ephemeralPriv: ephemeralPriv,
		ephemeralPub:  ephemeralPub,
		sharedSecret:  sharedSecret,
		inviteURL:     url,
		inv:           inv,
		list:          list,
	}, nil
}

func runHandshake(crypto ratchet.Crypto, bus event.Bus, setup *inviterSetup) (*ratchet.Session, *ratchet.Session, error) {
	device, err := setup.list.GetDevice(*deviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup device: %w", err)
	}
	if device.EphemeralPrivateKey == nil {
		return nil, nil, invite.ErrMissingCapability
	}
	ephemeralPriv := ratchet.PrivateKey(*device.EphemeralPrivateKey)

	var sessionR *ratchet.Session
	unsub, err := invite.Listen(crypto, bus, setup.inv, setup.identityPriv, &ephemeralPriv, invite.NewListenState(1),
		func(sess *ratchet.Session, inviteeIdentityPub event.PublicKey, gotDeviceID *string) {
			sessionR = sess
			setup.inviteeIdentityPub = inviteeIdentityPub
		})
	if err != nil {
		return nil, nil, fmt.Errorf("listen: %w", err)
	}
	defer unsub()

	inviteeIdentityPriv, _, err := crypto.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("generate invitee identity: %w", err)
	}
	acceptResult, err := invite.Accept(crypto, bus, setup.inv, inviteeIdentityPriv, nil, "invited-demo-session")
	if err != nil {
		return nil, nil, fmt.Errorf("accept: %w", err)
	}
	if err := bus.Publish(acceptResult.Envelope); err != nil {
		return nil, nil, fmt.Errorf("publish envelope: %w", err)
	}
	if sessionR == nil {
		return nil, nil, fmt.Errorf("invite response was not observed by Listen")
	}

	return sessionR, acceptResult.Session, nil
}

func exchangeMessages(bus event.Bus, sessionR, sessionA *ratchet.Session) error {
	sessionR.OnEvent(func(e *event.Event) { demoLog.Infof("inviter received: %s", e.Content) })
	sessionA.OnEvent(func(e *event.Event) { demoLog.Infof("invitee received: %s", e.Content) })

	outA, err := sessionA.Send("hello from the invitee")
	if err != nil {
		return fmt.Errorf("invitee send: %w", err)
	}
	if err := bus.Publish(outA.Event); err != nil {
		return fmt.Errorf("publish invitee message: %w", err)
	}

	outR, err := sessionR.Send("hello from the inviter")
	if err != nil {
		return fmt.Errorf("inviter send: %w", err)
	}
	if err := bus.Publish(outR.Event); err != nil {
		return fmt.Errorf("publish inviter message: %w", err)
	}
	return nil
}
