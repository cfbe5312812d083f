package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Generator produces correlation ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 correlation ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// creation time. Collision probability within one session is negligible.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("c1", "c2")
//	gen.Generate() // "c1"
//	gen.Generate() // "c2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed: the test created more intents than
// it declared.
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

// maxGenerateAttempts bounds retries when a generator returns an id that
// is already live.
const maxGenerateAttempts = 8

// Registry issues correlation ids and remembers, per id, the server record
// id it was eventually mapped to.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	gen    Generator
	issued map[string]string // correlation id -> server record id ("" until echoed)
}

// NewRegistry creates a registry backed by gen. A nil gen means UUIDv7.
func NewRegistry(gen Generator) *Registry {
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	return &Registry{
		gen:    gen,
		issued: make(map[string]string),
	}
}

// NewCorrelationID returns an id not currently live in this registry.
func (r *Registry) NewCorrelationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < maxGenerateAttempts; i++ {
		id := r.gen.Generate()
		if _, live := r.issued[id]; live {
			continue
		}
		r.issued[id] = ""
		return id
	}
	panic("correlation registry: generator keeps returning live ids")
}

// Known reports whether id was issued and not yet forgotten.
func (r *Registry) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.issued[id]
	return ok
}

// MapServerID records the server id echoed for a correlation id.
// Unknown correlation ids are ignored.
func (r *Registry) MapServerID(correlationID, recordID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issued[correlationID]; ok {
		r.issued[correlationID] = recordID
	}
}

// ServerID returns the server id mapped to a correlation id.
func (r *Registry) ServerID(correlationID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.issued[correlationID]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Forget drops a correlation id once its intent is gone.
func (r *Registry) Forget(correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.issued, correlationID)
}

// Len returns the number of live correlation ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.issued)
}
