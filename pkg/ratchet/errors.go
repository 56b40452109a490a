package ratchet

import "errors"

// ErrCryptoFailure marks an AEAD tag mismatch or header decryption
// failure encountered while processing an inbound event. Per spec.md
// §7 this is swallowed inside decryptEvent (it returns nil, nil) since
// a session is routinely probed by events belonging to other sessions;
// Session.Stats() still counts it.
var ErrCryptoFailure = errors.New("ratchet: crypto failure")

// ErrMalformedEvent marks a structurally invalid inbound event
// (unparseable inner event after a successful decrypt). Like
// ErrCryptoFailure, decryptEvent swallows this and counts it.
var ErrMalformedEvent = errors.New("ratchet: malformed event")

// ErrBoundExceeded marks a decrypt that succeeded but could not store
// every key it skipped along the way because that ratchet key's entry
// was already at drconfig.MaxSkip (reaching drconfig.MaxSkippedEntries
// evicts the oldest entry instead) (spec.md §7: "BoundExceeded
// silently truncates skip derivation"). decryptEvent treats it as
// non-fatal: the returned inner event and state are still committed,
// and Session.Stats().BoundExceededHits is incremented.
var ErrBoundExceeded = errors.New("ratchet: skipped-key bound exceeded")
