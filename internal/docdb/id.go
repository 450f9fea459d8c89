package docdb

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/maruel/ksid"
)

// maxRandomSuffix is the inclusive upper bound of the random part of a
// timestamp ID.
const maxRandomSuffix = 1025

// IDGenerator produces document identifiers.
type IDGenerator interface {
	NewID() string
}

// NewIDGenerator returns the generator for a configured scheme: "timestamp"
// (or "") or "ksid".
func NewIDGenerator(scheme string) (IDGenerator, error) {
	switch scheme {
	case "", "timestamp":
		return NewTimestampGenerator(), nil
	case "ksid":
		return KSIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id scheme %q", scheme)
	}
}

// TimestampGenerator produces "<unix milliseconds>_<0..1025>" identifiers.
//
// Uniqueness is best effort: two IDs generated within the same millisecond
// collide when they draw the same random suffix.
type TimestampGenerator struct {
	// Now defaults to time.Now.
	Now func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTimestampGenerator returns a generator seeded from the runtime source.
func NewTimestampGenerator() *TimestampGenerator {
	return &TimestampGenerator{rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewID implements [IDGenerator].
func (g *TimestampGenerator) NewID() string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	ms := now().UnixMilli()
	g.mu.Lock()
	var n int
	if g.rnd == nil {
		n = rand.IntN(maxRandomSuffix + 1)
	} else {
		n = g.rnd.IntN(maxRandomSuffix + 1)
	}
	g.mu.Unlock()
	return strconv.FormatInt(ms, 10) + "_" + strconv.Itoa(n)
}

// KSIDGenerator produces time-sortable k-sortable IDs. They are monotonic
// within a process, so they never collide locally.
type KSIDGenerator struct{}

// NewID implements [IDGenerator].
func (KSIDGenerator) NewID() string {
	return ksid.NewID().String()
}
