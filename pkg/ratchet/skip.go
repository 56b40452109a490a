package ratchet

import "github.com/zentalk/doubleratchet/pkg/drconfig"

// messageKey is a single-use key derived from a chain step.
type messageKey [32]byte

// skipEntry holds the message keys skipped so far for one ratchet
// public key. order records each message number's insertion index;
// nothing reads it back, and when the entry is full insert refuses the
// incoming key.
type skipEntry struct {
	order map[uint32]int // message number -> insertion index
	keys  map[uint32]messageKey
}

func newSkipEntry() *skipEntry {
	return &skipEntry{order: make(map[uint32]int), keys: make(map[uint32]messageKey)}
}

// skipCache is the per-session skipped-message-key cache: bounded at
// drconfig.MaxSkippedEntries distinct ratchet-public-key entries, each
// bounded at drconfig.MaxSkip message keys, with FIFO eviction of the
// oldest entry (by insertion order) on overflow — spec.md §4.2's
// "Skipped-key cache bound".
type skipCache struct {
	entryOrder []PublicKey // insertion order of distinct ratchet pubkeys
	entries    map[PublicKey]*skipEntry
}

func newSkipCache() *skipCache {
	return &skipCache{entries: make(map[PublicKey]*skipEntry)}
}

// insert records key under (peerPub, n), evicting the oldest entry
// wholesale if peerPub is new and the cache is already at
// MaxSkippedEntries. Returns false (ErrBoundExceeded semantics) if
// peerPub's own entry is already at MaxSkip and key was dropped.
func (c *skipCache) insert(peerPub PublicKey, n uint32, key messageKey) bool {
	entry, ok := c.entries[peerPub]
	if !ok {
		if len(c.entryOrder) >= drconfig.MaxSkippedEntries {
			oldest := c.entryOrder[0]
			c.entryOrder = c.entryOrder[1:]
			delete(c.entries, oldest)
		}
		entry = newSkipEntry()
		c.entries[peerPub] = entry
		c.entryOrder = append(c.entryOrder, peerPub)
	}
	if len(entry.keys) >= drconfig.MaxSkip {
		return false
	}
	entry.order[n] = len(entry.order)
	entry.keys[n] = key
	return true
}

// has reports whether a message key is stored for (peerPub, n), without
// evicting it. Used to route an inbound event to the skipped-key path
// before deciding which chain it would otherwise advance.
func (c *skipCache) has(peerPub PublicKey, n uint32) bool {
	entry, ok := c.entries[peerPub]
	if !ok {
		return false
	}
	_, ok = entry.keys[n]
	return ok
}

// take retrieves and evicts the message key stored for (peerPub, n),
// reporting whether one was found.
func (c *skipCache) take(peerPub PublicKey, n uint32) (messageKey, bool) {
	entry, ok := c.entries[peerPub]
	if !ok {
		return messageKey{}, false
	}
	key, ok := entry.keys[n]
	if !ok {
		return messageKey{}, false
	}
	delete(entry.keys, n)
	delete(entry.order, n)
	return key, true
}

// clone performs a deep copy, used by SessionState.Clone so two
// Sessions (e.g. live vs. a decryptEventWithState snapshot) never
// alias the same cache.
func (c *skipCache) clone() *skipCache {
	out := newSkipCache()
	out.entryOrder = append([]PublicKey(nil), c.entryOrder...)
	for pub, entry := range c.entries {
		ne := newSkipEntry()
		for n, idx := range entry.order {
			ne.order[n] = idx
		}
		for n, k := range entry.keys {
			ne.keys[n] = k
		}
		out.entries[pub] = ne
	}
	return out
}
