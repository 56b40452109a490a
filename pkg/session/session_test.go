package session_test

import (
	"testing"

	"github.com/zentalk/doubleratchet/pkg/cryptoref"
	"github.com/zentalk/doubleratchet/pkg/event"
	"github.com/zentalk/doubleratchet/pkg/event/memorybus"
	"github.com/zentalk/doubleratchet/pkg/kvstore"
	"github.com/zentalk/doubleratchet/pkg/ratchet"
	"github.com/zentalk/doubleratchet/pkg/session"
)

func newTestSession(t *testing.T, crypto ratchet.Crypto, bus event.Bus, name string) *ratchet.Session {
	t.Helper()
	ourPriv, _, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	_, theirPub, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	secret, err := cryptoref.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes() error = %v", err)
	}
	s, err := ratchet.New(crypto, bus, theirPub, ourPriv, true, secret, name)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestRotateSessionInstallsWhenNoActive(t *testing.T) {
	crypto := cryptoref.NewRatchetCrypto()
	bus := memorybus.New()
	record := &session.DeviceRecord{DeviceID: "device-1"}
	s1 := newTestSession(t, crypto, bus, "session-a")

	session.RotateSession(record, s1)

	if record.ActiveSession != s1 {
		t.Fatal("RotateSession() did not install first session as active")
	}
	if len(record.InactiveSessions) != 0 {
		t.Fatalf("InactiveSessions = %d entries, want 0", len(record.InactiveSessions))
	}
}

func TestRotateSessionReplacesInPlaceForSameName(t *testing.T) {
	crypto := cryptoref.NewRatchetCrypto()
	bus := memorybus.New()
	record := &session.DeviceRecord{DeviceID: "device-1"}
	s1 := newTestSession(t, crypto, bus, "shared-name")
	s2 := newTestSession(t, crypto, bus, "shared-name")

	session.RotateSession(record, s1)
	session.RotateSession(record, s2)

	if record.ActiveSession != s2 {
		t.Fatal("RotateSession() did not replace active session in place for matching name")
	}
	if len(record.InactiveSessions) != 0 {
		t.Fatalf("InactiveSessions = %d entries, want 0 (same-name replace must not demote)", len(record.InactiveSessions))
	}
}

func TestRotateSessionDemotesOnDifferentName(t *testing.T) {
	crypto := cryptoref.NewRatchetCrypto()
	bus := memorybus.New()
	record := &session.DeviceRecord{DeviceID: "device-1"}
	s1 := newTestSession(t, crypto, bus, "session-a")
	s2 := newTestSession(t, crypto, bus, "session-b")

	session.RotateSession(record, s1)
	session.RotateSession(record, s2)

	if record.ActiveSession != s2 {
		t.Fatal("RotateSession() did not install the fresher session as active")
	}
	if len(record.InactiveSessions) != 1 || record.InactiveSessions[0] != s1 {
		t.Fatalf("InactiveSessions = %v, want [s1]", record.InactiveSessions)
	}
}

func TestRotateSessionTrimsInactiveToOne(t *testing.T) {
	crypto := cryptoref.NewRatchetCrypto()
	bus := memorybus.New()
	record := &session.DeviceRecord{DeviceID: "device-1"}
	s1 := newTestSession(t, crypto, bus, "session-a")
	s2 := newTestSession(t, crypto, bus, "session-b")
	s3 := newTestSession(t, crypto, bus, "session-c")

	session.RotateSession(record, s1)
	session.RotateSession(record, s2)
	session.RotateSession(record, s3)

	if record.ActiveSession != s3 {
		t.Fatal("RotateSession() did not install the latest session as active")
	}
	if len(record.InactiveSessions) != 1 || record.InactiveSessions[0] != s2 {
		t.Fatalf("InactiveSessions = %v, want [s2] (oldest demoted session dropped)", record.InactiveSessions)
	}
}

func TestUserRecordStoreSaveLoadRoundTrip(t *testing.T) {
	crypto := cryptoref.NewRatchetCrypto()
	bus := memorybus.New()
	storage := kvstore.NewMemory()
	store := session.NewUserRecordStore(storage, crypto)

	ourIdentityPriv, _, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	_, peerPub, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	peerPub32 := event.PublicKey(peerPub)

	record := store.GetOrCreate(peerPub32)
	device := record.GetOrCreateDevice("device-1", 1000)

	s1 := newTestSession(t, crypto, bus, "session-a")
	s2 := newTestSession(t, crypto, bus, "session-b")
	session.RotateSession(device, s1)
	session.RotateSession(device, s2)

	if err := store.Save(peerPub32); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(peerPub32, ourIdentityPriv, bus)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	gotDevice, ok := loaded.Devices["device-1"]
	if !ok {
		t.Fatal("Load() dropped device-1")
	}
	if gotDevice.ActiveSession == nil || gotDevice.ActiveSession.Name() != "session-b" {
		t.Fatalf("ActiveSession = %v, want name session-b", gotDevice.ActiveSession)
	}
	if len(gotDevice.InactiveSessions) != 1 || gotDevice.InactiveSessions[0].Name() != "session-a" {
		t.Fatalf("InactiveSessions = %v, want [session-a]", gotDevice.InactiveSessions)
	}
	if gotDevice.CreatedAt != 1000 {
		t.Fatalf("CreatedAt = %d, want 1000", gotDevice.CreatedAt)
	}
}

func TestUserRecordStoreLoadMissingReturnsEmptyRecord(t *testing.T) {
	crypto := cryptoref.NewRatchetCrypto()
	bus := memorybus.New()
	storage := kvstore.NewMemory()
	store := session.NewUserRecordStore(storage, crypto)

	ourIdentityPriv, _, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	_, peerPub, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	loaded, err := store.Load(event.PublicKey(peerPub), ourIdentityPriv, bus)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Devices) != 0 {
		t.Fatalf("Devices = %v, want empty", loaded.Devices)
	}
}

func TestUserRecordStoreLoadAllEnumeratesByPrefix(t *testing.T) {
	crypto := cryptoref.NewRatchetCrypto()
	bus := memorybus.New()
	storage := kvstore.NewMemory()
	store := session.NewUserRecordStore(storage, crypto)

	ourIdentityPriv, _, err := crypto.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var pubs []event.PublicKey
	for i := 0; i < 3; i++ {
		_, pub, err := crypto.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		pk := event.PublicKey(pub)
		pubs = append(pubs, pk)

		record := store.GetOrCreate(pk)
		device := record.GetOrCreateDevice("device-1", 100)
		session.RotateSession(device, newTestSession(t, crypto, bus, "session-a"))
		if err := store.Save(pk); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	all, err := store.LoadAll(ourIdentityPriv, bus)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("LoadAll() returned %d records, want 3", len(all))
	}
}
