package engine

import (
	"sync"

	"github.com/roach88/optisync/internal/model"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeResponse carries the outcome of a dispatched request.
	EventTypeResponse EventType = iota + 1
	// EventTypeSnapshot carries an authoritative refresh.
	EventTypeSnapshot
)

// Response is the result of delivering one intent to the backend.
type Response struct {
	CorrelationID string
	Kind          model.Kind
	TargetID      string
	Outcome       Outcome
}

// Event wraps responses and snapshots for the view's event queue.
type Event struct {
	Type     EventType
	Response *Response
	Snapshot *model.Snapshot
}

// eventQueue is the inbox of a view. Dispatcher goroutines push responses
// and snapshots; the single-writer loop pops them in arrival order.
//
// A snapshot pushed directly behind another queued snapshot replaces it:
// both describe the whole conversation and only the newer one can change
// the outcome. Responses are never coalesced.
type eventQueue struct {
	mu        sync.Mutex
	events    []Event
	closed    bool
	coalesced int
	ready     chan struct{} // cap 1; closed by Close
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// Push appends e and wakes the loop. It returns false once the queue is
// closed; the event is dropped.
func (q *eventQueue) Push(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if n := len(q.events); n > 0 && e.Type == EventTypeSnapshot && q.events[n-1].Type == EventTypeSnapshot {
		q.events[n-1] = e
		q.coalesced++
	} else {
		q.events = append(q.events, e)
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest event without blocking.
func (q *eventQueue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events[0] = Event{} // release the payload
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return e, true
}

// Drain removes and returns everything queued, oldest first.
func (q *eventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.events
	q.events = nil
	return out
}

// Ready fires after a Push and stays closed after Close. Pop after it
// fires; a wake-up may find the queue already empty.
func (q *eventQueue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Coalesced returns how many snapshots were replaced before being applied.
func (q *eventQueue) Coalesced() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.coalesced
}

// Close drops anything still queued and wakes the loop for good.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.events = nil
	close(q.ready)
}
