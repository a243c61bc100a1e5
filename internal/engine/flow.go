package engine

import (
	"sync"

	"github.com/google/uuid"
)

// SessionIDGenerator produces journal session ids.
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids, so sessions
// in the journal list in the order they were started.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids. Used by tests and golden traces.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id. Panics once all ids are consumed.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
