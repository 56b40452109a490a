package invitelist

import "errors"

// ErrMalformedEvent marks an InviteList event that fails signature
// verification. Individual malformed device/removed tags are silently
// dropped per spec.md §4.4, not surfaced as an error.
var ErrMalformedEvent = errors.New("invitelist: malformed event")

// ErrUnknownDevice is returned by GetDevice when deviceId is not an
// active device in the list, including when it has been removed.
var ErrUnknownDevice = errors.New("invitelist: unknown device")
