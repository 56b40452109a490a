package event

// Unsubscribe cancels a previous Subscribe call. It MUST be idempotent
// (spec.md §5: "Unsubscribe returned by subscribe MUST be idempotent").
type Unsubscribe func()

// Bus is the event-distribution substrate contract pkg/ratchet and
// pkg/invite consume (spec.md §6's "subscribe(filter, onEvent) ->
// unsubscribe"). Production transports, an in-process test relay
// (pkg/event/memorybus), and hosted pub/sub services (pkg/event/ablybus)
// all implement it identically.
type Bus interface {
	// Subscribe registers onEvent to be called for every future event
	// matching filter, and returns a handle to cancel the subscription.
	Subscribe(filter Filter, onEvent func(*Event)) Unsubscribe

	// Publish broadcasts e to the substrate. For replaceable kinds
	// (spec.md §6, 10000 <= kind < 20000) only the newest event per
	// (pubkey, kind, d-tag) is retained by conforming bus implementations.
	Publish(e *Event) error
}
