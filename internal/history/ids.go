package history

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock supplies capture timestamps
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGenerator issues entry ids
type IDGenerator interface {
	NewID(t time.Time) string
}

// ULIDGenerator issues time-derived ULIDs that sort strictly increasing, even
// when the clock steps backwards or several ids share a millisecond.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMS  uint64
}

// NewULIDGenerator returns a generator backed by crypto/rand
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewID implements IDGenerator
func (g *ULIDGenerator) NewID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(t)
	if ms < g.lastMS {
		ms = g.lastMS
	}
	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		// entropy for this millisecond is exhausted; move to the next one
		ms++
		id = ulid.MustNew(ms, g.entropy)
	}
	g.lastMS = ms
	return id.String()
}
