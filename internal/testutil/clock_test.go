package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeTime_StartsAtEpoch(t *testing.T) {
	assert.Equal(t, Epoch, NewFakeTime(time.Time{}).Now())

	start := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start, NewFakeTime(start).Now())
}

func TestFakeTime_AdvanceAndSet(t *testing.T) {
	c := NewFakeTime(time.Time{})

	got := c.Advance(31 * time.Second)
	assert.Equal(t, Epoch.Add(31*time.Second), got)
	assert.Equal(t, got, c.Now())

	c.Set(Epoch)
	assert.Equal(t, Epoch, c.Now())
}

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "c1", g.Generate())
	assert.Equal(t, "c2", g.Generate())

	g.Reset()
	assert.Equal(t, "c1", g.Generate())

	assert.Equal(t, "s1", NewSequentialIDs("s").Generate())
}

func TestSequentialIDs_ConcurrentUnique(t *testing.T) {
	g := NewSequentialIDs("x")
	const goroutines, perGoroutine = 20, 50

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := g.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*perGoroutine)
}
