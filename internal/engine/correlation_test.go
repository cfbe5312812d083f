package engine

import (
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUIDv7Generator_Format(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	assert.Regexp(t, uuidPattern, id)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	gen := UUIDv7Generator{}
	prev := gen.Generate()
	for i := 0; i < 100; i++ {
		next := gen.Generate()
		assert.NotEqual(t, prev, next)
		assert.LessOrEqual(t, prev[:13], next[:13], "timestamp prefix must not go backwards")
		prev = next
	}
}

func TestFixedGenerator_ExhaustionPanics(t *testing.T) {
	gen := NewFixedGenerator("c1")
	assert.Equal(t, "c1", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestRegistry_IssueMapForget(t *testing.T) {
	r := NewRegistry(NewFixedGenerator("c1", "c2"))

	c1 := r.NewCorrelationID()
	assert.Equal(t, "c1", c1)
	assert.True(t, r.Known(c1))

	_, ok := r.ServerID(c1)
	assert.False(t, ok, "no server id before echo")

	r.MapServerID(c1, "42")
	sid, ok := r.ServerID(c1)
	require.True(t, ok)
	assert.Equal(t, "42", sid)

	r.MapServerID("nope", "7")
	assert.False(t, r.Known("nope"), "mapping an unknown id must not register it")

	r.Forget(c1)
	assert.False(t, r.Known(c1))
	assert.Equal(t, 0, r.Len())

	assert.Equal(t, "c2", r.NewCorrelationID())
}

func TestRegistry_SkipsLiveDuplicates(t *testing.T) {
	r := NewRegistry(NewFixedGenerator("dup", "dup", "fresh"))
	assert.Equal(t, "dup", r.NewCorrelationID())
	assert.Equal(t, "fresh", r.NewCorrelationID())
}

func TestRegistry_PanicsWhenGeneratorIsStuck(t *testing.T) {
	ids := make([]string, maxGenerateAttempts+1)
	for i := range ids {
		ids[i] = "same"
	}
	r := NewRegistry(NewFixedGenerator(ids...))
	r.NewCorrelationID()
	assert.Panics(t, func() { r.NewCorrelationID() })
}

func TestRegistry_ConcurrentIssueUnique(t *testing.T) {
	r := NewRegistry(nil)
	const goroutines, perGoroutine = 20, 50

	var wg sync.WaitGroup
	ids := make(chan string, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ids <- r.NewCorrelationID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, goroutines*perGoroutine, r.Len())
}
