// Package ablybus adapts an Ably realtime channel to the event.Bus
// contract, for deployments that want a hosted pub/sub substrate
// instead of (or in front of) a self-hosted relay. Every channel name
// is namespaced by event kind, since Ably channels don't carry a
// built-in notion of "kind" or tag filters the way the bus contract
// does; Filter.Kinds selects which channels Subscribe attaches to, and
// Filter.Authors/Tags are applied client-side against decoded events.
package ablybus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/ably/ably-go/ably"

	"github.com/zentalk/doubleratchet/pkg/event"
)

// Bus wraps an *ably.Realtime client.
type Bus struct {
	client *ably.Realtime

	mu       sync.Mutex
	attached map[string]bool // channel name -> attached
}

// New wraps an already-configured Ably realtime client. Callers
// construct client themselves (ably.NewRealtime(ably.WithKey(...)))
// so this package never handles credentials.
func New(client *ably.Realtime) *Bus {
	return &Bus{client: client, attached: make(map[string]bool)}
}

func channelName(kind uint16) string {
	return "double-ratchet:" + strconv.FormatUint(uint64(kind), 10)
}

// Subscribe attaches to the Ably channel for every kind named in
// filter.Kinds (or the kind-0 channel if Kinds is empty; Publish writes
// each event only to its own kind's channel, so such a subscription
// sees only kind-0 events) and
// applies the remainder of filter client-side, mirroring the
// kind-then-tag narrowing spec.md §6 describes. Unsubscribe detaches
// and is idempotent.
func (b *Bus) Subscribe(filter event.Filter, onEvent func(*event.Event)) event.Unsubscribe {
	kinds := filter.Kinds
	if len(kinds) == 0 {
		kinds = []uint16{0} // catch-all channel
	}

	var unsubFns []func()
	for _, kind := range kinds {
		name := channelName(kind)
		ch := b.client.Channels.Get(name)

		b.mu.Lock()
		b.attached[name] = true
		b.mu.Unlock()

		unsub, err := ch.SubscribeAll(context.Background(), func(msg *ably.Message) {
			raw, ok := msg.Data.(string)
			if !ok {
				return
			}
			var e event.Event
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				return // malformed payload: drop, per spec.md §7 MalformedEvent policy
			}
			if event.MatchFilter(filter, &e) {
				onEvent(&e)
			}
		})
		if err == nil {
			unsubFns = append(unsubFns, func() { unsub() })
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, fn := range unsubFns {
				fn()
			}
		})
	}
}

// Publish marshals e and publishes it to its kind's Ably channel.
func (b *Bus) Publish(e *event.Event) error {
	name := channelName(e.Kind)
	ch := b.client.Channels.Get(name)

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ablybus: marshal event: %w", err)
	}
	if err := ch.Publish(context.Background(), "event", string(payload)); err != nil {
		return fmt.Errorf("ablybus: publish: %w", err)
	}
	return nil
}

var _ event.Bus = (*Bus)(nil)
