package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/model"
)

func responseEvent(cid string) Event {
	return Event{Type: EventTypeResponse, Response: &Response{CorrelationID: cid, Kind: model.KindSendMessage}}
}

func snapshotEvent(ids ...string) Event {
	snap := &model.Snapshot{}
	for _, id := range ids {
		snap.Messages = append(snap.Messages, model.Record{ID: id})
	}
	return Event{Type: EventTypeSnapshot, Snapshot: snap}
}

func TestEventQueue_ArrivalOrder(t *testing.T) {
	q := newEventQueue()
	require.True(t, q.Push(responseEvent("A")))
	require.True(t, q.Push(snapshotEvent("1")))
	require.True(t, q.Push(responseEvent("B")))

	e, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "A", e.Response.CorrelationID)
	e, _ = q.Pop()
	assert.Equal(t, EventTypeSnapshot, e.Type)
	e, _ = q.Pop()
	assert.Equal(t, "B", e.Response.CorrelationID)

	_, ok = q.Pop()
	assert.False(t, ok, "queue should be empty")
}

func TestEventQueue_AdjacentSnapshotsCoalesce(t *testing.T) {
	q := newEventQueue()
	q.Push(snapshotEvent("1"))
	q.Push(snapshotEvent("1", "2"))
	q.Push(responseEvent("A"))
	q.Push(snapshotEvent("3"))

	got := q.Drain()
	require.Len(t, got, 3)
	assert.Len(t, got[0].Snapshot.Messages, 2, "newer snapshot replaces the queued one")
	assert.Equal(t, "A", got[1].Response.CorrelationID)
	assert.Equal(t, "3", got[2].Snapshot.Messages[0].ID, "a response in between blocks coalescing")
	assert.Equal(t, 1, q.Coalesced())
}

func TestEventQueue_ResponsesNeverCoalesce(t *testing.T) {
	q := newEventQueue()
	q.Push(responseEvent("A"))
	q.Push(responseEvent("A"))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 0, q.Coalesced())
}

func TestEventQueue_ReadySignalsOnPush(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(responseEvent("late"))
	}()

	select {
	case <-q.Ready():
		e, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, "late", e.Response.CorrelationID)
	case <-time.After(time.Second):
		t.Fatal("Ready did not fire")
	}
}

func TestEventQueue_CloseDropsAndRejects(t *testing.T) {
	q := newEventQueue()
	q.Push(responseEvent("queued"))
	q.Close()
	q.Close() // idempotent

	assert.Equal(t, 0, q.Len(), "close drops queued events")
	assert.False(t, q.Push(responseEvent("after")), "push after close")

	select {
	case <-q.Ready():
	default:
		t.Fatal("closed queue must wake the loop")
	}
}

func TestEventQueue_DrainEmpties(t *testing.T) {
	q := newEventQueue()
	assert.Empty(t, q.Drain())

	q.Push(responseEvent("1"))
	q.Push(responseEvent("2"))
	assert.Len(t, q.Drain(), 2)
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_ConcurrentProducers(t *testing.T) {
	q := newEventQueue()
	const producers, perProducer = 10, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(responseEvent(fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, e := range q.Drain() {
		seen[e.Response.CorrelationID] = true
	}
	assert.Len(t, seen, producers*perProducer)
}
