package db

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"
)

// Key layout: /doc/{collection}/{id}
const pebblePrefixDoc = "/doc/"

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// PebbleBackend stores documents in a Pebble LSM
type PebbleBackend struct {
	db     *pebble.DB
	path   string
	closed atomic.Bool
}

// NewPebbleBackend opens (or creates) a Pebble directory at path
func NewPebbleBackend(path string) (*PebbleBackend, error) {
	cache := pebble.NewCache(32 << 20)
	defer cache.Unref() // DB will hold reference

	db, err := pebble.Open(path, &pebble.Options{
		Cache:  cache,
		Logger: &pebbleLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	log.Info().Str("path", path).Msg("Opened pebble document store")
	return &PebbleBackend{db: db, path: path}, nil
}

func pebbleCollectionPrefix(collection string) []byte {
	return []byte(pebblePrefixDoc + collection + "/")
}

func pebbleDocKey(collection, id string) []byte {
	return []byte(pebblePrefixDoc + collection + "/" + id)
}

// prefixUpperBound returns prefix + 0xFF... for range iteration
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix)+8)
	copy(upper, prefix)
	for i := len(prefix); i < len(upper); i++ {
		upper[i] = 0xFF
	}
	return upper
}

func (p *PebbleBackend) Scan(collection string, fn func(id string, data []byte) error) error {
	if p.closed.Load() {
		return ErrClosed
	}
	prefix := pebbleCollectionPrefix(collection)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id := string(iter.Key()[len(prefix):])
		data := append([]byte(nil), iter.Value()...)
		if err := fn(id, data); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (p *PebbleBackend) Get(collection, id string) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	val, closer, err := p.db.Get(pebbleDocKey(collection, id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (p *PebbleBackend) Put(collection, id string, data []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.Set(pebbleDocKey(collection, id), data, pebble.Sync)
}

func (p *PebbleBackend) Delete(collection, id string) (bool, error) {
	if p.closed.Load() {
		return false, ErrClosed
	}
	key := pebbleDocKey(collection, id)
	_, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, p.db.Delete(key, pebble.Sync)
}

// Collections walks the key space once per collection by seeking past each
// collection prefix as soon as its name is known.
func (p *PebbleBackend) Collections() ([]string, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	prefix := []byte(pebblePrefixDoc)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var names []string
	for valid := iter.First(); valid; {
		rest := string(iter.Key()[len(prefix):])
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			valid = iter.Next()
			continue
		}
		name := rest[:slash]
		names = append(names, name)
		valid = iter.SeekGE(prefixUpperBound(pebbleCollectionPrefix(name)))
	}
	return names, iter.Error()
}

func (p *PebbleBackend) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}
