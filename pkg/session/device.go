// Package session implements spec.md §4.5's device/user session
// registry: per-device active/inactive ratchet session rotation, and
// a UserRecordStore that persists the whole tree through a
// pkg/kvstore.Storage.
package session

import "github.com/zentalk/doubleratchet/pkg/ratchet"

// DeviceRecord is one peer device's session history: at most one
// active session, and at most one demoted inactive session, per
// spec.md §3's "DeviceRecord per peer device" shape.
type DeviceRecord struct {
	DeviceID string

	ActiveSession    *ratchet.Session
	InactiveSessions []*ratchet.Session

	CreatedAt int64
	StaleAt   *int64
}

// newDeviceRecord returns an empty DeviceRecord created at createdAt.
func newDeviceRecord(deviceID string, createdAt int64) *DeviceRecord {
	return &DeviceRecord{DeviceID: deviceID, CreatedAt: createdAt}
}

// RotateSession implements spec.md §4.5's rotateSession exactly: if
// record has no active session, next is installed directly. If next
// is the current active session, or shares its logical name, it
// replaces the active session in place (no demotion — same logical
// conversation, just a fresher handle). Otherwise the current active
// session is demoted into InactiveSessions, trimmed to length <= 1
// (the oldest demoted session is dropped).
func RotateSession(record *DeviceRecord, next *ratchet.Session) {
	if record.ActiveSession == nil {
		record.ActiveSession = next
		return
	}
	if record.ActiveSession == next || record.ActiveSession.Name() == next.Name() {
		record.ActiveSession = next
		return
	}
	record.InactiveSessions = append(record.InactiveSessions, record.ActiveSession)
	if len(record.InactiveSessions) > 1 {
		record.InactiveSessions = record.InactiveSessions[len(record.InactiveSessions)-1:]
	}
	record.ActiveSession = next
}
