// Package invite implements spec.md §4.3's Invite/InviteResponse
// codec: a device-scoped Invite event an inviter publishes, and the
// Accept/Listen handshake that turns it into a live ratchet.Session on
// both ends.
package invite

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/zentalk/doubleratchet/pkg/drconfig"
	"github.com/zentalk/doubleratchet/pkg/event"
)

// Invite is the per-device invitation spec.md §4.3 describes: an
// inviter's ephemeral ratchet public key and the out-of-band shared
// secret that binds it, addressed to one deviceId.
type Invite struct {
	Inviter      event.PublicKey
	EphemeralPub event.PublicKey
	SharedSecret []byte
	DeviceID     string

	// ExpiresAt is an optional unix-seconds deadline Listen checks
	// before constructing a responder session. Not part of spec.md's
	// original Invite shape; a supplemental field named in SPEC_FULL.
	ExpiresAt *int64
}

func dTag(deviceID string) string { return drconfig.InviteDTagPrefix + deviceID }

func deviceIDFromDTag(d string) (string, bool) {
	if !strings.HasPrefix(d, drconfig.InviteDTagPrefix) {
		return "", false
	}
	return strings.TrimPrefix(d, drconfig.InviteDTagPrefix), true
}

// ToEvent builds the signed Invite event, kind drconfig.KindInvite,
// tagged per spec.md §4.3: ephemeralKey, sharedSecret (hex), d, l.
func (inv *Invite) ToEvent(signer event.Signer, createdAt int64) (*event.Event, error) {
	e := &event.Event{
		PubKey:    inv.Inviter,
		Kind:      drconfig.KindInvite,
		CreatedAt: createdAt,
		Tags: []event.Tag{
			{"ephemeralKey", inv.EphemeralPub.Hex()},
			{"sharedSecret", hex.EncodeToString(inv.SharedSecret)},
			{"d", dTag(inv.DeviceID)},
			{"l", drconfig.InviteLabelTag},
		},
	}
	if inv.ExpiresAt != nil {
		e.Tags = append(e.Tags, event.Tag{"expiration", fmt.Sprintf("%d", *inv.ExpiresAt)})
	}
	if err := e.Sign(signer); err != nil {
		return nil, fmt.Errorf("invite: to event: %w", err)
	}
	return e, nil
}

// FromEvent parses an Invite event. The signature MUST verify and
// ephemeralKey/sharedSecret/d MUST be present, or this returns
// ErrMalformedEvent, per spec.md §7's fromEvent policy.
func FromEvent(e *event.Event, verifier event.Signer) (*Invite, error) {
	if !e.Verify(verifier) {
		return nil, ErrMalformedEvent
	}
	ephHex, ok := e.FirstTagValue("ephemeralKey")
	if !ok {
		return nil, ErrMalformedEvent
	}
	ephPub, err := event.ParsePublicKeyHex(ephHex)
	if err != nil {
		return nil, ErrMalformedEvent
	}
	secretHex, ok := e.FirstTagValue("sharedSecret")
	if !ok {
		return nil, ErrMalformedEvent
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, ErrMalformedEvent
	}
	d, ok := e.FirstTagValue("d")
	if !ok {
		return nil, ErrMalformedEvent
	}
	deviceID, ok := deviceIDFromDTag(d)
	if !ok {
		return nil, ErrMalformedEvent
	}
	inv := &Invite{
		Inviter:      e.PubKey,
		EphemeralPub: ephPub,
		SharedSecret: secret,
		DeviceID:     deviceID,
	}
	if expStr, ok := e.FirstTagValue("expiration"); ok {
		var exp int64
		if _, err := fmt.Sscanf(expStr, "%d", &exp); err == nil {
			inv.ExpiresAt = &exp
		}
	}
	return inv, nil
}

// urlPayload is the exact three-field shape spec.md §6 names for the
// URL fragment: "{inviter, ephemeralKey, sharedSecret}".
type urlPayload struct {
	Inviter      string `json:"inviter"`
	EphemeralKey string `json:"ephemeralKey"`
	SharedSecret string `json:"sharedSecret"`
}

// ToURL renders inv as "https://<root>/#<urlencoded-json>", per spec.md
// §6's Invite URL format. deviceId travels only in the Invite event's
// "d" tag, not the URL, matching the three-field payload spec.md names.
func (inv *Invite) ToURL(root string) (string, error) {
	payload := urlPayload{
		Inviter:      inv.Inviter.Hex(),
		EphemeralKey: inv.EphemeralPub.Hex(),
		SharedSecret: hex.EncodeToString(inv.SharedSecret),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("invite: to url: %w", err)
	}
	return fmt.Sprintf("%s/#%s", strings.TrimSuffix(root, "/"), url.QueryEscape(string(b))), nil
}

// FromURL is the inverse of ToURL. deviceId is not recoverable from a
// bare URL (it never travels in the fragment); callers that need it
// must also have the originating Invite event.
func FromURL(raw string) (*Invite, error) {
	idx := strings.IndexByte(raw, '#')
	if idx < 0 || idx+1 >= len(raw) {
		return nil, ErrMalformedEvent
	}
	decoded, err := url.QueryUnescape(raw[idx+1:])
	if err != nil {
		return nil, ErrMalformedEvent
	}
	var payload urlPayload
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return nil, ErrMalformedEvent
	}
	inviter, err := event.ParsePublicKeyHex(payload.Inviter)
	if err != nil {
		return nil, ErrMalformedEvent
	}
	ephPub, err := event.ParsePublicKeyHex(payload.EphemeralKey)
	if err != nil {
		return nil, ErrMalformedEvent
	}
	secret, err := hex.DecodeString(payload.SharedSecret)
	if err != nil {
		return nil, ErrMalformedEvent
	}
	return &Invite{Inviter: inviter, EphemeralPub: ephPub, SharedSecret: secret}, nil
}
