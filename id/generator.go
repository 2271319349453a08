package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator provides unique identifiers for documents and subscriptions.
// IDs are unique across nodes and lexically time-ordered.
type Generator interface {
	NextID() string
}

// ULIDGenerator generates monotonic ULIDs.
// Thread-safe via an internal mutex around the entropy source.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDGenerator creates a new ID generator with monotonic entropy.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// NextID generates a unique 26 character ULID string.
// IDs produced within the same millisecond still sort in creation order.
func (g *ULIDGenerator) NextID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// Default is the process-wide generator
var Default Generator = NewULIDGenerator()

// Next returns an identifier from the default generator
func Next() string {
	return Default.NextID()
}
