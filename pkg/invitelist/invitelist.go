// Package invitelist implements spec.md §4.4's InviteList: a single
// replaceable event (kind drconfig.KindInviteList) that holds the
// owner's active invite devices, a CRDT-mergeable removal tombstone
// set, and the add/remove/merge operations spec.md §8 invariants 4 and
// 6 hold it to.
package invitelist

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/zentalk/doubleratchet/pkg/drconfig"
	"github.com/zentalk/doubleratchet/pkg/event"
)

// DeviceEntry is one active invite device, spec.md §3's
// `devices: map<deviceId, DeviceEntry{...}>`. EphemeralPrivateKey is
// only ever populated locally by the owner (never serialized onto the
// wire tag) — spec.md §7's MissingCapability error fires precisely
// when it is absent on the side that needs to Listen.
type DeviceEntry struct {
	EphemeralPublicKey event.PublicKey
	SharedSecret       []byte
	DeviceID           string
	Label              string

	EphemeralPrivateKey *[32]byte
}

// RemovedEntry is a tombstone: a deviceId once active, and the unix
// timestamp it was removed at.
type RemovedEntry struct {
	DeviceID  string
	Timestamp int64
}

// InviteList is the per-identity registry spec.md §3/§4.4 describes.
type InviteList struct {
	Owner        event.PublicKey
	Devices      map[string]DeviceEntry
	Removed      []RemovedEntry
	MainDeviceID *string
	Version      int
	CreatedAt    int64
}

// New returns an empty InviteList owned by owner.
func New(owner event.PublicKey, createdAt int64) *InviteList {
	return &InviteList{
		Owner:     owner,
		Devices:   make(map[string]DeviceEntry),
		Version:   1,
		CreatedAt: createdAt,
	}
}

func (l *InviteList) isRemoved(deviceID string) bool {
	for _, r := range l.Removed {
		if r.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// AddDevice adds entry unless its deviceId is already in Removed
// (spec.md §3 invariant: "adding a removed id is a no-op"; §8
// invariant 6).
func (l *InviteList) AddDevice(entry DeviceEntry) {
	if l.isRemoved(entry.DeviceID) {
		return
	}
	l.Devices[entry.DeviceID] = entry
}

// RemoveDevice moves deviceId into Removed with timestamp
// floor(nowSeconds), and deletes it from Devices.
func (l *InviteList) RemoveDevice(deviceID string, nowSeconds int64) {
	delete(l.Devices, deviceID)
	for i, r := range l.Removed {
		if r.DeviceID == deviceID {
			l.Removed[i].Timestamp = nowSeconds
			return
		}
	}
	l.Removed = append(l.Removed, RemovedEntry{DeviceID: deviceID, Timestamp: nowSeconds})
}

// GetDevice looks deviceId up, returning ErrUnknownDevice if it is
// neither active nor a tombstone miss is expected (spec.md §7
// UnknownDevice: "accept/listen referencing a deviceId not in the
// list").
func (l *InviteList) GetDevice(deviceID string) (DeviceEntry, error) {
	entry, ok := l.Devices[deviceID]
	if !ok {
		return DeviceEntry{}, ErrUnknownDevice
	}
	return entry, nil
}

// GetEvent emits the canonical tag set spec.md §4.4 names: one "device"
// tag per active device, one "removed" tag per tombstone, an optional
// "main-device" tag, and "version".
func (l *InviteList) GetEvent(signer event.Signer, createdAt int64) (*event.Event, error) {
	e := &event.Event{
		PubKey:    l.Owner,
		Kind:      drconfig.KindInviteList,
		CreatedAt: createdAt,
		Tags:      []event.Tag{{"d", drconfig.InviteListDTag}},
	}
	for _, entry := range l.Devices {
		e.Tags = append(e.Tags, event.Tag{
			"device",
			entry.EphemeralPublicKey.Hex(),
			hex.EncodeToString(entry.SharedSecret),
			entry.DeviceID,
			entry.Label,
		})
	}
	for _, r := range l.Removed {
		e.Tags = append(e.Tags, event.Tag{"removed", r.DeviceID, strconv.FormatInt(r.Timestamp, 10)})
	}
	if l.MainDeviceID != nil {
		e.Tags = append(e.Tags, event.Tag{"main-device", *l.MainDeviceID})
	}
	e.Tags = append(e.Tags, event.Tag{"version", strconv.Itoa(l.Version)})

	if err := e.Sign(signer); err != nil {
		return nil, fmt.Errorf("invitelist: get event: %w", err)
	}
	return e, nil
}

// FromEvent parses an InviteList event. The signature MUST verify, or
// this returns ErrMalformedEvent; individual malformed device/removed
// tags are silently dropped per spec.md §4.4.
func FromEvent(e *event.Event, verifier event.Signer) (*InviteList, error) {
	if !e.Verify(verifier) {
		return nil, ErrMalformedEvent
	}
	l := New(e.PubKey, e.CreatedAt)
	l.Version = 1

	for _, tag := range e.Tags {
		if len(tag) == 0 {
			continue
		}
		switch tag[0] {
		case "device":
			if len(tag) < 5 {
				continue
			}
			ephPub, err := event.ParsePublicKeyHex(tag[1])
			if err != nil {
				continue
			}
			secret, err := hex.DecodeString(tag[2])
			if err != nil {
				continue
			}
			l.Devices[tag[3]] = DeviceEntry{
				EphemeralPublicKey: ephPub,
				SharedSecret:       secret,
				DeviceID:           tag[3],
				Label:              tag[4],
			}
		case "removed":
			if len(tag) < 3 {
				continue
			}
			ts, err := strconv.ParseInt(tag[2], 10, 64)
			if err != nil {
				continue
			}
			l.Removed = append(l.Removed, RemovedEntry{DeviceID: tag[1], Timestamp: ts})
		case "main-device":
			if len(tag) < 2 {
				continue
			}
			id := tag[1]
			l.MainDeviceID = &id
		case "version":
			if len(tag) < 2 {
				continue
			}
			v, err := strconv.Atoi(tag[1])
			if err == nil {
				l.Version = v
			}
		}
	}
	for _, r := range l.Removed {
		delete(l.Devices, r.DeviceID)
	}
	return l, nil
}

// Merge combines a and b into a single list, CRDT-style: the active
// device ids and removed ids of the result are independent of argument
// order and of repeated application (spec.md §8 invariant 4). Removed
// tombstones union by deviceId keeping the max timestamp; each device
// entry comes from whichever input has the newer createdAt, with any
// id present in the merged Removed set excluded regardless of which
// side it came from; owner, createdAt and mainDeviceId are taken from
// the newer input (from a when the inputs tie on createdAt), and
// version is the max of both inputs.
func Merge(a, b *InviteList) *InviteList {
	newer, older := a, b
	if b.CreatedAt > a.CreatedAt {
		newer, older = b, a
	}

	out := New(newer.Owner, newer.CreatedAt)

	removedAt := make(map[string]int64)
	for _, r := range a.Removed {
		if ts, ok := removedAt[r.DeviceID]; !ok || r.Timestamp > ts {
			removedAt[r.DeviceID] = r.Timestamp
		}
	}
	for _, r := range b.Removed {
		if ts, ok := removedAt[r.DeviceID]; !ok || r.Timestamp > ts {
			removedAt[r.DeviceID] = r.Timestamp
		}
	}
	for id, ts := range removedAt {
		out.Removed = append(out.Removed, RemovedEntry{DeviceID: id, Timestamp: ts})
	}

	for id, entry := range older.Devices {
		out.Devices[id] = entry
	}
	for id, entry := range newer.Devices {
		out.Devices[id] = entry
	}
	for id := range removedAt {
		delete(out.Devices, id)
	}

	out.MainDeviceID = newer.MainDeviceID
	out.Version = a.Version
	if b.Version > out.Version {
		out.Version = b.Version
	}

	return out
}
