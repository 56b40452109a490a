// Package memorybus is an in-process event bus: the reference
// "in-memory testing relay" collaborator spec.md §1 lists as external,
// and the default adapter pkg/ratchet and pkg/invite are driven against
// in their own tests. It enforces the replaceable-event dedup rule
// spec.md §6 describes, matching scenario S4.
package memorybus

import (
	"sync"

	"github.com/zentalk/doubleratchet/pkg/event"
)

type subscription struct {
	id     uint64
	filter event.Filter
	onEvent func(*event.Event)
}

// Bus is a single-process, goroutine-safe event.Bus. It stores every
// published event (replaceable kinds keep only the newest per
// (pubkey, kind, d-tag)) and dispatches to matching subscriptions
// synchronously, on the publishing goroutine — matching spec.md §5's
// "run-to-completion dispatcher" model.
type Bus struct {
	mu            sync.Mutex
	nextID        uint64
	subscriptions map[uint64]*subscription
	events        []*event.Event
	replaceable   map[event.ReplaceableKey]*event.Event
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		subscriptions: make(map[uint64]*subscription),
		replaceable:   make(map[event.ReplaceableKey]*event.Event),
	}
}

// Subscribe registers onEvent for future events matching filter.
// Unsubscribe is idempotent per spec.md §5.
func (b *Bus) Subscribe(filter event.Filter, onEvent func(*event.Event)) event.Unsubscribe {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscriptions[id] = &subscription{id: id, filter: filter, onEvent: onEvent}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscriptions, id)
			b.mu.Unlock()
		})
	}
}

// Publish stores e (applying replaceable-event dedup) and dispatches
// it to every currently matching subscription.
func (b *Bus) Publish(e *event.Event) error {
	b.mu.Lock()
	if event.IsReplaceable(e.Kind) {
		key := e.ReplaceableKeyOf()
		if existing, ok := b.replaceable[key]; ok && existing.CreatedAt > e.CreatedAt {
			b.mu.Unlock()
			return nil
		}
		b.replaceable[key] = e
	} else {
		b.events = append(b.events, e)
	}
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, s := range b.subscriptions {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if event.MatchFilter(s.filter, e) {
			s.onEvent(e)
		}
	}
	return nil
}

// Replaceable returns the currently retained replaceable event for key,
// and whether one exists — used by tests exercising scenario S4.
func (b *Bus) Replaceable(key event.ReplaceableKey) (*event.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.replaceable[key]
	return e, ok
}

// All returns every non-replaceable event published so far, in
// publish order.
func (b *Bus) All() []*event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*event.Event, len(b.events))
	copy(out, b.events)
	return out
}

var _ event.Bus = (*Bus)(nil)
