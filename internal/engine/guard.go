package engine

// SlotGuard tracks which intent currently holds each (kind, target) slot.
//
// Within one target, a second mutation must not be issued while the first
// is unresolved. The guard is the bookkeeping for that rule: the queue
// checks Holder() before appending and releases the slot once the holder is
// resolved, cancelled or reverted.
//
// Messages do not take a slot (their SlotKey is empty): each send is an
// independent action even in the same conversation.
//
// SlotGuard is not safe for concurrent use; it is owned by a MutationQueue.
type SlotGuard struct {
	holders map[string]string // slot key -> correlation id
}

// NewSlotGuard creates an empty guard.
func NewSlotGuard() *SlotGuard {
	return &SlotGuard{holders: make(map[string]string)}
}

// Holder returns the correlation id holding a slot.
func (g *SlotGuard) Holder(slot string) (string, bool) {
	if slot == "" {
		return "", false
	}
	id, ok := g.holders[slot]
	return id, ok
}

// Acquire marks slot as held by correlationID.
func (g *SlotGuard) Acquire(slot, correlationID string) {
	if slot == "" {
		return
	}
	g.holders[slot] = correlationID
}

// Release frees slot if it is still held by correlationID. A stale release
// from an older holder is a no-op.
func (g *SlotGuard) Release(slot, correlationID string) {
	if slot == "" {
		return
	}
	if g.holders[slot] == correlationID {
		delete(g.holders, slot)
	}
}

// Len returns the number of held slots.
func (g *SlotGuard) Len() int {
	return len(g.holders)
}
