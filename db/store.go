package db

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bhunjadi/pagination/cfg"
	"github.com/bhunjadi/pagination/notify"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Store hands out collections over a shared backend and change hub
type Store struct {
	backend      Backend
	hub          *notify.Hub
	pollInterval time.Duration

	// writeMu serializes read-modify-write cycles (update, insert id checks)
	writeMu     sync.Mutex
	collections *xsync.MapOf[string, *Collection]
	observers   atomic.Int64
}

// Open opens the configured backend and wraps it in a Store
func Open(conf cfg.StoreConfiguration, dataDir string, hub *notify.Hub) (*Store, error) {
	backend, err := OpenBackend(conf, dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", conf.Backend, err)
	}
	return NewStore(backend, hub, time.Duration(conf.PollIntervalMS)*time.Millisecond), nil
}

// NewStore wraps a backend. pollInterval > 0 makes observers re-poll on a
// timer in addition to hub signals.
func NewStore(backend Backend, hub *notify.Hub, pollInterval time.Duration) *Store {
	if hub == nil {
		hub = notify.NewHub(0)
	}
	return &Store{
		backend:      backend,
		hub:          hub,
		pollInterval: pollInterval,
		collections:  xsync.NewMapOf[string, *Collection](),
	}
}

// Collection returns the named collection handle. Handles are cached and
// cheap; the collection itself comes into existence on first insert.
func (s *Store) Collection(name string) *Collection {
	c, _ := s.collections.LoadOrCompute(name, func() *Collection {
		return &Collection{name: name, store: s}
	})
	return c
}

// Collections lists non-empty collections
func (s *Store) Collections() ([]string, error) {
	return s.backend.Collections()
}

// Hub returns the change hub writes are signalled on
func (s *Store) Hub() *notify.Hub {
	return s.hub
}

// ObserverCount returns the number of live observers
func (s *Store) ObserverCount() int {
	return int(s.observers.Load())
}

// Close closes the backend
func (s *Store) Close() error {
	log.Debug().Msg("Closing document store")
	return s.backend.Close()
}
