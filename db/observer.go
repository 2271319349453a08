package db

import (
	"sync"
	"time"

	"github.com/bhunjadi/pagination/notify"
	"github.com/bhunjadi/pagination/query"
	"github.com/bhunjadi/pagination/telemetry"
	"github.com/rs/zerolog/log"
)

// ObserveCallbacks receive result set changes. Fields never carry _id.
// In Changed, a nil value means the field was cleared. Nil callbacks are
// skipped.
type ObserveCallbacks struct {
	Added   func(id string, fields query.Document)
	Changed func(id string, fields query.Document)
	Removed func(id string)
}

// Handle stops a live observation
type Handle interface {
	// Stop detaches the observer and waits for in-flight callbacks to
	// return. It is idempotent and must not be called from a callback.
	Stop()
}

type observer struct {
	cursor  *Cursor
	cb      ObserveCallbacks
	signals <-chan notify.Signal
	cancel  func()
	poll    time.Duration

	current map[string]query.Document

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// ObserveChanges delivers Added for every current match before returning,
// then keeps the result set live: each change signal for the collection
// (and each poll tick, if configured) re-runs the query and emits the
// difference from the previous run. Callbacks of one handle run on a single
// goroutine in order.
func (c *Cursor) ObserveChanges(cb ObserveCallbacks) (Handle, error) {
	store := c.collection.store

	// Subscribe first so writes racing the initial fetch trigger a re-poll
	signals, cancel := store.hub.Subscribe(notify.Filter{Collections: []string{c.collection.name}})

	initial, err := c.results()
	if err != nil {
		cancel()
		return nil, err
	}

	o := &observer{
		cursor:  c,
		cb:      cb,
		signals: signals,
		cancel:  cancel,
		poll:    store.pollInterval,
		current: make(map[string]query.Document, len(initial)),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	for _, e := range initial {
		fields := e.doc.WithoutID()
		o.current[e.id] = fields
		o.added(e.id, fields)
	}

	store.observers.Add(1)
	telemetry.ActiveObservers.Inc()
	go o.run()
	return o, nil
}

func (o *observer) run() {
	defer close(o.done)

	var tick <-chan time.Time
	if o.poll > 0 {
		ticker := time.NewTicker(o.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-o.stopCh:
			return
		case _, ok := <-o.signals:
			if !ok {
				return
			}
		case <-tick:
		}

		// Stop may have raced the signal
		select {
		case <-o.stopCh:
			return
		default:
		}
		o.refresh()
	}
}

func (o *observer) refresh() {
	start := time.Now()
	entries, err := o.cursor.results()
	telemetry.ObserverPollSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Str("collection", o.cursor.collection.name).Msg("Observer poll failed")
		return
	}

	next := make(map[string]query.Document, len(entries))
	for _, e := range entries {
		next[e.id] = e.doc.WithoutID()
	}

	// Removals first so a windowed result never appears to exceed its limit
	for docID := range o.current {
		if _, ok := next[docID]; !ok {
			o.removed(docID)
		}
	}
	for _, e := range entries {
		fields := next[e.id]
		prev, existed := o.current[e.id]
		if !existed {
			o.added(e.id, fields)
			continue
		}
		if diff := diffFields(prev, fields); len(diff) > 0 {
			o.changed(e.id, diff)
		}
	}
	o.current = next
}

// diffFields returns fields that differ between prev and next. Fields missing
// from next are reported as nil.
func diffFields(prev, next query.Document) query.Document {
	diff := query.Document{}
	for k, v := range next {
		if old, ok := prev[k]; !ok || !query.Equal(old, v) {
			diff[k] = v
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			diff[k] = nil
		}
	}
	return diff
}

func (o *observer) added(docID string, fields query.Document) {
	if o.cb.Added != nil {
		o.cb.Added(docID, fields.Clone())
	}
}

func (o *observer) changed(docID string, fields query.Document) {
	if o.cb.Changed != nil {
		o.cb.Changed(docID, fields)
	}
}

func (o *observer) removed(docID string) {
	if o.cb.Removed != nil {
		o.cb.Removed(docID)
	}
}

func (o *observer) Stop() {
	o.stopOnce.Do(func() {
		o.cancel()
		close(o.stopCh)
		<-o.done
		o.cursor.collection.store.observers.Add(-1)
		telemetry.ActiveObservers.Dec()
	})
}
