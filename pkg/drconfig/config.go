// Package drconfig holds the deployment-configured constants that
// spec.md §6 leaves to the integrator: event kind numbers, the
// skipped-message-key bound, and the outbound timestamp jitter window.
package drconfig

import "time"

// Event kinds. Exact numeric values are deployment-configured; only
// KindInviteList is pinned by the replaceable-event range convention
// (spec.md §6: "kind 10078").
const (
	KindInvite         uint16 = 30078
	KindInviteResponse uint16 = 30079
	KindInviteList     uint16 = 10078
	KindMessage        uint16 = 30080
)

// ReplaceableMin and ReplaceableMax bound the kind range for which the
// event bus keeps only the newest (pubkey, kind, d-tag) tuple.
const (
	ReplaceableMin uint16 = 10000
	ReplaceableMax uint16 = 19999
)

// MaxSkip is the canonical bound on skipped message keys held per
// ratchet-public-key entry (spec.md §4.2, §9 "treat 1000 as the
// canonical value").
const MaxSkip = 1000

// MaxSkippedEntries bounds the number of distinct ratchet-public-key
// entries a session's skipped-key cache may hold at once. On overflow
// the oldest entry (FIFO on insertion) is evicted wholesale.
const MaxSkippedEntries = 16

// JitterWindow is the width of the uniform window an outbound event's
// created_at is drawn from: [now-JitterWindow, now] (spec.md §4.2).
const JitterWindow = 48 * time.Hour

// InviteListDTag and InviteDTagPrefix are the canonical "d" tag values
// from spec.md §3/§4.3.
const (
	InviteListDTag   = "double-ratchet/invite-list"
	InviteDTagPrefix = "double-ratchet/invites/"
	InviteLabelTag   = "double-ratchet/invites"
)

// StorePrefix is the leading path segment of pkg/session's persisted
// keys: "<prefix>/user/<identityHex>" (spec.md §6 "Persisted layout").
const StorePrefix = "v1"
