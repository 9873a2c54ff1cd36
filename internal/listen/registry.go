// Package listen implements the pubkey -> waiting-retrieval continuation
// map that lets a long-poll client request be woken up as soon as a
// matching message is stored (spec §4.E), grounded on
// original_source/httpserver/service_node.cpp's pk_to_listeners map.
package listen

import (
	"sync"

	"distributed-kvstore/internal/message"
)

// Event is delivered to a registered Continuation: either a batch of new
// messages, or a reset signal (client must re-poll from scratch).
type Event struct {
	Messages []message.Message
	Reset    bool
}

// Continuation is a single-shot delivery channel for one waiting
// retrieval. The registry only ever sends once per registration, then
// forgets it — callers close or stop reading after the first Event.
type Continuation chan<- Event

// Registry tracks the listeners waiting on each pubkey. It is safe for
// concurrent use; all mutation happens under a single mutex, matching the
// teacher's plain mutex-guarded maps (internal/store/store.go) rather
// than a sync.Map, since update sites always need the whole slice.
type Registry struct {
	mu        sync.Mutex
	listeners map[string][]Continuation
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{listeners: make(map[string][]Continuation)}
}

// Register appends a continuation for pubkey.
func (r *Registry) Register(pubkey string, cont Continuation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[pubkey] = append(r.listeners[pubkey], cont)
}

// Notify delivers msgs to every continuation registered for pubkey, then
// removes them (single-shot). A continuation whose receiver has already
// gone away (a full/closed channel) is skipped without error — the
// registry only weakly references it.
func (r *Registry) Notify(pubkey string, msgs []message.Message) {
	r.mu.Lock()
	conts := r.listeners[pubkey]
	delete(r.listeners, pubkey)
	r.mu.Unlock()

	for _, c := range conts {
		deliver(c, Event{Messages: msgs})
	}
}

// ResetAll sends a reset signal to every registered continuation and
// clears the entire map. Used after bulk stores, where the set of newly
// saved messages per pubkey isn't tracked (spec §4.E).
func (r *Registry) ResetAll() {
	r.mu.Lock()
	all := r.listeners
	r.listeners = make(map[string][]Continuation)
	r.mu.Unlock()

	for _, conts := range all {
		for _, c := range conts {
			deliver(c, Event{Reset: true})
		}
	}
}

// deliver performs a non-blocking send; a continuation that can't accept
// the event right now (buffer full, or its owner already gave up) is
// simply dropped, matching the "skipped without error" weak-reference
// semantics spec §4.E calls for.
func deliver(c Continuation, ev Event) {
	defer func() { recover() }() // sending on a closed channel must not panic the caller
	select {
	case c <- ev:
	default:
	}
}
