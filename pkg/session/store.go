package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zentalk/doubleratchet/pkg/drconfig"
	"github.com/zentalk/doubleratchet/pkg/event"
	"github.com/zentalk/doubleratchet/pkg/kvstore"
	"github.com/zentalk/doubleratchet/pkg/ratchet"
)

// sessionWire is the serialized form of one ratchet.Session: its
// logical name and role, plus its state snapshot. ourIdentityPriv is
// deliberately not part of this shape — it is a capability the caller
// supplies fresh at Load time, never persisted alongside peer state.
type sessionWire struct {
	Name        string         `json:"name"`
	IsInitiator bool           `json:"isInitiator"`
	State       *ratchet.State `json:"state"`
}

type deviceWire struct {
	DeviceID         string         `json:"deviceId"`
	CreatedAt        int64          `json:"createdAt"`
	StaleAt          *int64         `json:"staleAt,omitempty"`
	ActiveSession    *sessionWire   `json:"activeSession,omitempty"`
	InactiveSessions []*sessionWire `json:"inactiveSessions,omitempty"`
}

type userRecordWire struct {
	PublicKey string        `json:"publicKey"`
	Devices   []*deviceWire `json:"devices"`
}

// UserRecordStore owns a mapping identityPub -> UserRecord, backed by
// a pkg/kvstore.Storage, per spec.md §4.5.
type UserRecordStore struct {
	mu      sync.Mutex
	storage kvstore.Storage
	crypto  ratchet.Crypto
	cache   map[event.PublicKey]*UserRecord
}

// NewUserRecordStore returns a store persisting through storage, using
// crypto to reconstruct resumed sessions.
func NewUserRecordStore(storage kvstore.Storage, crypto ratchet.Crypto) *UserRecordStore {
	return &UserRecordStore{storage: storage, crypto: crypto, cache: make(map[event.PublicKey]*UserRecord)}
}

func storeKey(pub event.PublicKey) string {
	return drconfig.StorePrefix + "/user/" + pub.Hex()
}

// GetOrCreate returns the cached UserRecord for pub, creating an empty
// one on first access. It does not touch storage — call Load first if
// pub might already have persisted state.
func (s *UserRecordStore) GetOrCreate(pub event.PublicKey) *UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache[pub]
	if !ok {
		r = newUserRecord(pub)
		s.cache[pub] = r
	}
	return r
}

func sessionToWire(sess *ratchet.Session) *sessionWire {
	return &sessionWire{Name: sess.Name(), IsInitiator: sess.IsInitiator(), State: sess.StateSnapshot()}
}

// Save serializes the cached UserRecord for pub under
// "<prefix>/user/<pubHex>". It returns an error if no record for pub
// has been created or loaded yet.
func (s *UserRecordStore) Save(pub event.PublicKey) error {
	s.mu.Lock()
	r, ok := s.cache[pub]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session: save: no record for %s", pub.Hex())
	}

	w := userRecordWire{PublicKey: pub.Hex()}
	for _, d := range r.Devices {
		dw := &deviceWire{DeviceID: d.DeviceID, CreatedAt: d.CreatedAt, StaleAt: d.StaleAt}
		if d.ActiveSession != nil {
			dw.ActiveSession = sessionToWire(d.ActiveSession)
		}
		for _, is := range d.InactiveSessions {
			dw.InactiveSessions = append(dw.InactiveSessions, sessionToWire(is))
		}
		w.Devices = append(w.Devices, dw)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("session: save: marshal: %w", err)
	}
	return s.storage.Put(storeKey(pub), data)
}

// Load reconstructs the UserRecord for pub from storage, rebinding
// every persisted session to bus via ratchet.Resume and ourIdentityPriv
// — spec.md §4.5's "load(pub, subscribe) reconstructs sessions by
// rebinding them to the given subscribe capability." If no record is
// persisted yet, Load returns a fresh empty one (matching getOrCreate's
// lazy-creation semantics) rather than an error.
func (s *UserRecordStore) Load(pub event.PublicKey, ourIdentityPriv ratchet.PrivateKey, bus event.Bus) (*UserRecord, error) {
	data, err := s.storage.Get(storeKey(pub))
	if errors.Is(err, kvstore.ErrNotFound) {
		return s.GetOrCreate(pub), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var w userRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("session: load: unmarshal: %w", err)
	}

	r := newUserRecord(pub)
	for _, dw := range w.Devices {
		dr := newDeviceRecord(dw.DeviceID, dw.CreatedAt)
		dr.StaleAt = dw.StaleAt
		if dw.ActiveSession != nil {
			dr.ActiveSession = ratchet.Resume(s.crypto, bus, ourIdentityPriv, dw.ActiveSession.IsInitiator, dw.ActiveSession.Name, dw.ActiveSession.State)
		}
		for _, isw := range dw.InactiveSessions {
			dr.InactiveSessions = append(dr.InactiveSessions, ratchet.Resume(s.crypto, bus, ourIdentityPriv, isw.IsInitiator, isw.Name, isw.State))
		}
		r.Devices[dr.DeviceID] = dr
	}

	s.mu.Lock()
	s.cache[pub] = r
	s.mu.Unlock()
	return r, nil
}

// LoadAll enumerates every persisted user record under the store's
// prefix and loads each one, per spec.md §4.5's "loadAll enumerates by
// prefix". Entries whose key fails to parse as a public key are
// skipped rather than aborting the whole scan.
func (s *UserRecordStore) LoadAll(ourIdentityPriv ratchet.PrivateKey, bus event.Bus) ([]*UserRecord, error) {
	prefix := drconfig.StorePrefix + "/user/"
	keys, err := s.storage.List(prefix)
	if err != nil {
		return nil, fmt.Errorf("session: load all: %w", err)
	}

	var out []*UserRecord
	for _, k := range keys {
		pubHex := strings.TrimPrefix(k, prefix)
		pub, err := event.ParsePublicKeyHex(pubHex)
		if err != nil {
			continue
		}
		r, err := s.Load(pub, ourIdentityPriv, bus)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
