package db

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryBackend keeps documents in lock-free concurrent maps. Nothing
// survives a restart; it backs tests and throwaway deployments.
type MemoryBackend struct {
	collections *xsync.MapOf[string, *xsync.MapOf[string, []byte]]
	closed      atomic.Bool
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		collections: xsync.NewMapOf[string, *xsync.MapOf[string, []byte]](),
	}
}

func (m *MemoryBackend) docs(collection string) *xsync.MapOf[string, []byte] {
	docs, _ := m.collections.LoadOrCompute(collection, func() *xsync.MapOf[string, []byte] {
		return xsync.NewMapOf[string, []byte]()
	})
	return docs
}

func (m *MemoryBackend) Scan(collection string, fn func(id string, data []byte) error) error {
	if m.closed.Load() {
		return ErrClosed
	}
	docs, ok := m.collections.Load(collection)
	if !ok {
		return nil
	}

	var err error
	docs.Range(func(id string, data []byte) bool {
		err = fn(id, data)
		return err == nil
	})
	return err
}

func (m *MemoryBackend) Get(collection, id string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	docs, ok := m.collections.Load(collection)
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := docs.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *MemoryBackend) Put(collection, id string, data []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.docs(collection).Store(id, data)
	return nil
}

func (m *MemoryBackend) Delete(collection, id string) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	docs, ok := m.collections.Load(collection)
	if !ok {
		return false, nil
	}
	_, existed := docs.LoadAndDelete(id)
	return existed, nil
}

func (m *MemoryBackend) Collections() ([]string, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	var names []string
	m.collections.Range(func(name string, docs *xsync.MapOf[string, []byte]) bool {
		if docs.Size() > 0 {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBackend) Close() error {
	m.closed.Store(true)
	return nil
}
