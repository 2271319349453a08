package publisher

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bhunjadi/pagination/db"
	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/notify"
	"github.com/bhunjadi/pagination/query"
	"github.com/stretchr/testify/require"
)

func newOrderStore(t *testing.T) (*db.Store, *db.Collection) {
	t.Helper()
	store := db.NewStore(db.NewMemoryBackend(), notify.NewHub(1), 0)
	t.Cleanup(func() { store.Close() })

	orders := store.Collection("orders")
	for _, doc := range []query.Document{
		{"_id": "o1", "status": "open", "owner": "alice", "total": 10},
		{"_id": "o2", "status": "closed", "owner": "alice", "total": 20},
		{"_id": "o3", "status": "open", "owner": "bob", "total": 30},
	} {
		_, err := orders.Insert(doc)
		require.NoError(t, err)
	}
	return store, orders
}

func mustPublication(t *testing.T, source Source, settings Settings) *publication {
	t.Helper()
	p, err := newPublication(source, settings)
	require.NoError(t, err)
	return p
}

// fakeRegistrar records handlers like a ddp.Server
type fakeRegistrar struct {
	mu       sync.Mutex
	handlers map[string]ddp.Handler
}

func (r *fakeRegistrar) Publish(name string, handler ddp.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]ddp.Handler)
	}
	r.handlers[name] = handler
	return nil
}

// scriptedCursor replays canned observer events and counts Stop calls
type scriptedCursor struct {
	docs      []query.Document
	observe   func(cb db.ObserveCallbacks)
	observErr error
	stops     atomic.Int32
}

func (c *scriptedCursor) FetchResults() ([]db.Result, error) {
	out := make([]db.Result, len(c.docs))
	for i, doc := range c.docs {
		out[i] = db.Result{ID: doc.ID(), Doc: doc}
	}
	return out, nil
}

func (c *scriptedCursor) Count() (int, error) { return len(c.docs), nil }

func (c *scriptedCursor) ObserveChanges(cb db.ObserveCallbacks) (db.Handle, error) {
	if c.observErr != nil {
		return nil, c.observErr
	}
	if c.observe != nil {
		c.observe(cb)
	}
	return stopCounter{c}, nil
}

type stopCounter struct{ c *scriptedCursor }

func (s stopCounter) Stop() { s.c.stops.Add(1) }

// scriptedSource hands out countCursor for the first Find of an activation
// (the count) and cursor for the second (the view)
type scriptedSource struct {
	name        string
	countCursor *scriptedCursor
	cursor      *scriptedCursor

	mu    sync.Mutex
	finds int
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) Find(query.Selector, query.FindOptions) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.finds%2 == 1 {
		if s.countCursor == nil {
			s.countCursor = &scriptedCursor{}
		}
		return s.countCursor, nil
	}
	return s.cursor, nil
}
