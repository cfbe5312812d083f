package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates prefix1, prefix2, ... correlation ids.
//
// It satisfies engine.Generator. Unlike engine.FixedGenerator it never runs
// out, so scenarios need not declare their ids up front.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "c".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "c"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
