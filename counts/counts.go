// Package counts publishes the number of documents matching a cursor to a
// subscriber as a single record in the "counts" client collection.
package counts

import (
	"fmt"
	"sync"

	"github.com/bhunjadi/pagination/db"
	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/query"
)

// Collection is the client collection count records are published into
const Collection = "counts"

// Field holds the count value inside a count record
const Field = "count"

// Cursor is the part of db.Cursor a count needs
type Cursor interface {
	Count() (int, error)
	ObserveChanges(cb db.ObserveCallbacks) (db.Handle, error)
}

// Options controls how a count is published
type Options struct {
	// NoReady leaves marking the subscription ready to the caller
	NoReady bool
	// NonReactive publishes the count once instead of tracking it
	NonReactive bool
}

// Publish emits the count of cursor under name. Reactive counts follow the
// cursor until the subscription stops.
func Publish(sub ddp.Subscription, name string, cursor Cursor, opts Options) error {
	if sub == nil || cursor == nil {
		return fmt.Errorf("counts: subscription and cursor are required")
	}

	if opts.NonReactive {
		n, err := cursor.Count()
		if err != nil {
			return fmt.Errorf("counts: %w", err)
		}
		sub.Added(Collection, name, map[string]any{Field: n})
	} else if err := publishReactive(sub, name, cursor); err != nil {
		return err
	}

	if !opts.NoReady {
		sub.Ready()
	}
	return nil
}

type liveCount struct {
	sub       ddp.Subscription
	name      string
	mu        sync.Mutex
	n         int
	published bool
}

func (c *liveCount) adjust(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += delta
	if c.published {
		c.sub.Changed(Collection, c.name, map[string]any{Field: c.n})
	}
}

// publishReactive counts the initial adds silently, publishes the total once
// the initial sync is done, then reports every later add or remove.
func publishReactive(sub ddp.Subscription, name string, cursor Cursor) error {
	c := &liveCount{sub: sub, name: name}

	handle, err := cursor.ObserveChanges(db.ObserveCallbacks{
		Added:   func(string, query.Document) { c.adjust(1) },
		Removed: func(string) { c.adjust(-1) },
	})
	if err != nil {
		return fmt.Errorf("counts: %w", err)
	}

	c.mu.Lock()
	c.published = true
	sub.Added(Collection, name, map[string]any{Field: c.n})
	c.mu.Unlock()

	sub.OnStop(handle.Stop)
	return nil
}
