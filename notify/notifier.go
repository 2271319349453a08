// Package notify fans out collection change signals to live query observers.
package notify

import (
	"sync"
	"sync/atomic"
)

// defaultSignalBufferSize is the buffer size for signal channels.
// A signal only tells an observer that its collection changed since the last
// poll, so one pending signal is enough: further signals coalesce into it.
const defaultSignalBufferSize = 1

// Signal reports that a collection was written
type Signal struct {
	Collection string `msgpack:"c"`
	Seq        uint64 `msgpack:"s"` // Local write sequence
	Origin     uint64 `msgpack:"o"` // Node that performed the write
}

// Filter selects which collections a subscriber cares about
type Filter struct {
	Collections []string // nil or empty = all collections
}

// Relay receives locally originated signals, e.g. to forward them to peers
type Relay interface {
	Relay(sig Signal)
}

// subscription represents a single subscriber.
type subscription struct {
	id     uint64
	filter Filter
	ch     chan Signal
	closed atomic.Bool
}

// matches checks if the collection matches this subscription's filter.
func (s *subscription) matches(collection string) bool {
	if len(s.filter.Collections) == 0 {
		return true
	}

	for _, c := range s.filter.Collections {
		if c == collection {
			return true
		}
	}
	return false
}

// close closes the subscription channel if not already closed.
func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub is a thread-safe notification hub for collection change signals.
type Hub struct {
	nodeID        uint64
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	relays        []Relay
	nextID        atomic.Uint64
	seq           atomic.Uint64
}

// NewHub creates a new notification hub for the given node.
func NewHub(nodeID uint64) *Hub {
	return &Hub{
		nodeID:        nodeID,
		subscriptions: make(map[uint64]*subscription),
	}
}

// AddRelay registers a relay for locally originated signals.
func (h *Hub) AddRelay(r Relay) {
	h.mu.Lock()
	h.relays = append(h.relays, r)
	h.mu.Unlock()
}

// Signal records a local write to collection. The signal is delivered to
// local subscribers and handed to every relay.
func (h *Hub) Signal(collection string) {
	sig := Signal{
		Collection: collection,
		Seq:        h.seq.Add(1),
		Origin:     h.nodeID,
	}

	h.Deliver(sig)

	h.mu.RLock()
	relays := h.relays
	h.mu.RUnlock()

	for _, r := range relays {
		r.Relay(sig)
	}
}

// Deliver sends a signal to all matching subscribers (non-blocking).
// Signals received from peers enter the hub here and are not relayed again.
func (h *Hub) Deliver(sig Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		if !sub.matches(sig.Collection) {
			continue
		}

		// Non-blocking send - a pending signal already covers this one
		select {
		case sub.ch <- sig:
		default:
		}
	}
}

// Subscribe creates a new subscription and returns the signal channel and cancel function.
// The cancel function is idempotent and closes the channel.
func (h *Hub) Subscribe(filter Filter) (<-chan Signal, func()) {
	sub := &subscription{
		id:     h.nextID.Add(1),
		filter: filter,
		ch:     make(chan Signal, defaultSignalBufferSize),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.unsubscribe(sub.id)
	}

	return sub.ch, cancel
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}
