// Package db is the document store that publications read from. Documents are
// schemaless maps persisted through a pluggable Backend, and every write
// signals the notify hub so live cursors can re-poll.
package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bhunjadi/pagination/cfg"
)

var (
	// ErrNotFound is returned when a document id does not exist
	ErrNotFound = errors.New("document not found")

	// ErrInvalidCollection is returned for empty or malformed collection names
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store closed")

	// ErrDuplicateID is returned when inserting an id that already exists
	ErrDuplicateID = errors.New("duplicate document id")
)

// Backend persists encoded documents keyed by collection and id.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Scan calls fn for every document in a collection. Returning an error
	// from fn stops the scan and is returned.
	Scan(collection string, fn func(id string, data []byte) error) error
	Get(collection, id string) ([]byte, error)
	Put(collection, id string, data []byte) error
	// Delete removes a document and reports whether it existed
	Delete(collection, id string) (bool, error)
	// Collections lists the names of all non-empty collections
	Collections() ([]string, error)
	Close() error
}

// OpenBackend opens the backend selected in conf
func OpenBackend(conf cfg.StoreConfiguration, dataDir string) (Backend, error) {
	path := conf.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}

	switch conf.Backend {
	case cfg.BackendSQLite:
		return NewSQLiteBackend(path)
	case cfg.BackendPebble:
		return NewPebbleBackend(path)
	case cfg.BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", conf.Backend)
	}
}

func validateCollection(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}
