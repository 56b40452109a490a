package session

import "github.com/zentalk/doubleratchet/pkg/event"

// UserRecord maps a peer identity's deviceId space to its per-device
// session history, per spec.md §3's "UserRecord: publicKey (peer
// identity) -> map deviceId -> DeviceRecord".
type UserRecord struct {
	PublicKey event.PublicKey
	Devices   map[string]*DeviceRecord
}

// newUserRecord returns an empty UserRecord for pub.
func newUserRecord(pub event.PublicKey) *UserRecord {
	return &UserRecord{PublicKey: pub, Devices: make(map[string]*DeviceRecord)}
}

// GetOrCreateDevice lazily creates a DeviceRecord for deviceID, using
// createdAt only on first creation.
func (u *UserRecord) GetOrCreateDevice(deviceID string, createdAt int64) *DeviceRecord {
	d, ok := u.Devices[deviceID]
	if !ok {
		d = newDeviceRecord(deviceID, createdAt)
		u.Devices[deviceID] = d
	}
	return d
}
