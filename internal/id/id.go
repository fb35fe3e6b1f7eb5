// Package id makes run identifiers. Ids are ULIDs: 26 characters that
// sort in creation order.
package id

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator issues ids that strictly increase, also within one
// millisecond. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator returns a Generator whose random part is drawn from seed.
// Generators with equal seeds issue equal ids for equal timestamps.
func NewGenerator(seed int64) *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// At issues an id stamped with t.
func (g *Generator) At(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(t), g.entropy)
	if err != nil {
		return "", fmt.Errorf("id at %s: %w", t.Format(time.RFC3339Nano), err)
	}
	return u.String(), nil
}

var runs = NewGenerator(time.Now().UnixNano())

// New returns a run id for now.
func New() string { return NewAt(time.Now()) }

// NewAt returns a run id stamped with t. t must not be before 1970.
func NewAt(t time.Time) string {
	s, err := runs.At(t)
	if err != nil {
		panic(err)
	}
	return s
}

// Time returns the timestamp of an id, to the millisecond.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
