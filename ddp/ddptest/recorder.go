// Package ddptest provides a recording ddp.Subscription for tests.
package ddptest

import (
	"sync"
	"time"

	"github.com/bhunjadi/pagination/ddp"
)

// Event is one call made on a Recorder
type Event struct {
	Kind       string // added, changed, removed, ready, stop, error
	Collection string
	ID         string
	Fields     map[string]any
	Err        error
}

// Recorder implements ddp.Subscription by recording every call
type Recorder struct {
	SubID string
	User  string

	mu      sync.Mutex
	events  []Event
	hooks   []func()
	stopped bool
	ready   bool
}

var _ ddp.Subscription = (*Recorder)(nil)

// NewRecorder creates a recorder with the given subscription and user ids
func NewRecorder(subID, userID string) *Recorder {
	return &Recorder{SubID: subID, User: userID}
}

func (r *Recorder) ID() string     { return r.SubID }
func (r *Recorder) UserID() string { return r.User }

func (r *Recorder) record(e Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.events = append(r.events, e)
	return true
}

func (r *Recorder) Added(collection, id string, fields map[string]any) {
	r.record(Event{Kind: "added", Collection: collection, ID: id, Fields: fields})
}

func (r *Recorder) Changed(collection, id string, fields map[string]any) {
	r.record(Event{Kind: "changed", Collection: collection, ID: id, Fields: fields})
}

func (r *Recorder) Removed(collection, id string) {
	r.record(Event{Kind: "removed", Collection: collection, ID: id})
}

func (r *Recorder) Ready() {
	r.mu.Lock()
	if r.ready || r.stopped {
		r.mu.Unlock()
		return
	}
	r.ready = true
	r.events = append(r.events, Event{Kind: "ready"})
	r.mu.Unlock()
}

func (r *Recorder) OnStop(fn func()) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		fn()
		return
	}
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

func (r *Recorder) Stop() {
	r.stop(Event{Kind: "stop"})
}

func (r *Recorder) Error(err error) {
	r.stop(Event{Kind: "error", Err: err})
}

func (r *Recorder) stop(e Event) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.events = append(r.events, e)
	r.stopped = true
	hooks := r.hooks
	r.hooks = nil
	r.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// FireStopHooks runs the registered stop hooks without marking the
// recorder stopped, as a buggy transport firing stop twice would.
func (r *Recorder) FireStopHooks() {
	r.mu.Lock()
	hooks := append([]func(){}, r.hooks...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns recorded events of one kind
func (r *Recorder) Filter(kind string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// In returns recorded events addressed to one collection
func (r *Recorder) In(collection string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Collection == collection {
			out = append(out, e)
		}
	}
	return out
}

// WaitFor polls until fn holds or the timeout passes, reporting which
func (r *Recorder) WaitFor(timeout time.Duration, fn func(events []Event) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if fn(r.Events()) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Stopped reports whether Stop or Error was called
func (r *Recorder) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
