package invite

import "errors"

// ErrMalformedEvent is returned by FromEvent and FromURL for an Invite
// that fails to verify or parse — spec.md §7's "fromEvent factories...
// surfaces as a failure" policy. Listen drops an InviteResponse
// envelope that fails to parse without returning an error.
var ErrMalformedEvent = errors.New("invite: malformed event")

// ErrUnknownDevice names the unknown-deviceId failure. Accept and
// Listen take an Invite directly and never look a deviceId up in a
// device list, so neither returns it; invitelist.GetDevice reports an
// unknown deviceId with its own invitelist.ErrUnknownDevice.
var ErrUnknownDevice = errors.New("invite: unknown device")

// ErrMissingCapability is returned by Listen when the inviter's
// ephemeral private key for this device was not retained locally.
var ErrMissingCapability = errors.New("invite: missing capability")

// ErrInviteExhausted names the state of an invite that has already
// served maxUses distinct invitees. Listen does not return it: responses
// from further invitees are dropped silently.
var ErrInviteExhausted = errors.New("invite: exhausted")
