package engine

import (
	"slices"
	"time"

	"github.com/roach88/optisync/internal/model"
)

// DefaultExpiry is how long an intent may stay pending without confirmation
// or server evidence before it is reverted.
const DefaultExpiry = 30 * time.Second

// Outcome is what the backend answered for one intent.
//
// Exactly one of the state fields is set on success, depending on the
// intent's kind. Err is nil on success, a RejectionError for an explicit
// refusal, and anything else for a transient failure.
type Outcome struct {
	Err      error
	RecordID string
	Reaction *model.ReactionState
	Poll     []model.PollOption
	Pin      *model.PinState
	Attempts int
}

// Transition names what Resolve did to an intent.
type Transition string

const (
	// TransitionConfirmed: the server echoed a record id; the intent stays
	// visible until the record itself shows up in a snapshot.
	TransitionConfirmed Transition = "confirmed"
	// TransitionRemoved: the intent is gone; confirmed state carries the truth.
	TransitionRemoved Transition = "removed"
	// TransitionReverted: the server rejected the intent.
	TransitionReverted Transition = "reverted"
	// TransitionRetained: transient failure; the intent waits for evidence or expiry.
	TransitionRetained Transition = "retained"
	// TransitionIgnored: the intent had been cancelled before its response arrived.
	TransitionIgnored Transition = "ignored"
)

// EnqueueResult reports what Enqueue did.
type EnqueueResult struct {
	// Intent is the new intent, or the existing one for duplicates and
	// corrections.
	Intent model.Intent

	// Dispatch is true when a new request must be sent.
	Dispatch bool

	// Cancelled is true when the action was a correction that cancelled
	// Intent instead of issuing a new request.
	Cancelled bool
}

// MutationQueue holds one entry per in-flight user action.
//
// The queue is a single-writer structure: the owning View serializes every
// call. It is not safe for concurrent use on its own.
type MutationQueue struct {
	registry *Registry
	seq      int64 // last issued
	matcher  Matcher
	expiry   time.Duration

	intents   []*model.Intent // seq order
	index     map[string]*model.Intent
	cancelled map[string]struct{}
	guard     *SlotGuard
	drafts    map[string]string // conversation -> restored body

	firstSeen map[string]int64  // message record id -> seq when first observed
	claimedBy map[string]string // message record id -> correlation id it settled
}

// NewMutationQueue creates an empty queue. expiry <= 0 means DefaultExpiry.
func NewMutationQueue(registry *Registry, matcher Matcher, expiry time.Duration) *MutationQueue {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &MutationQueue{
		registry:  registry,
		matcher:   matcher,
		expiry:    expiry,
		index:     make(map[string]*model.Intent),
		cancelled: make(map[string]struct{}),
		guard:     NewSlotGuard(),
		drafts:    make(map[string]string),
		firstSeen: make(map[string]int64),
		claimedBy: make(map[string]string),
	}
}

// Enqueue appends a pending intent and returns it so the caller can render
// it immediately.
//
// If another unresolved intent holds the same (kind, target) slot:
//   - an opposite react/pin is a correction: the pending intent is
//     cancelled and no request is issued;
//   - the same effect again is a duplicate: the existing intent is returned;
//   - anything else fails with TARGET_BUSY.
func (q *MutationQueue) Enqueue(kind model.Kind, targetID string, payload model.Payload, now time.Time) (EnqueueResult, error) {
	if !kind.Valid() {
		return EnqueueResult{}, NewInvalidIntentError(kind, targetID, "unknown intent kind")
	}
	if targetID == "" {
		return EnqueueResult{}, NewInvalidIntentError(kind, targetID, "target id is required")
	}

	candidate := model.Intent{Kind: kind, TargetID: targetID}
	slot := candidate.SlotKey()
	if holder, held := q.guard.Holder(slot); held {
		existing := q.index[holder]
		if existing == nil {
			q.guard.Release(slot, holder)
		} else {
			if isCorrection(*existing, payload) {
				cancelled := *existing
				q.cancel(existing)
				return EnqueueResult{Intent: cancelled, Cancelled: true}, nil
			}
			if sameEffect(*existing, payload) {
				return EnqueueResult{Intent: *existing}, nil
			}
			return EnqueueResult{}, NewTargetBusyError(kind, targetID, holder)
		}
	}

	intent := &model.Intent{
		CorrelationID: q.registry.NewCorrelationID(),
		Kind:          kind,
		TargetID:      targetID,
		Payload:       payload,
		CreatedAt:     now,
		ExpiresAt:     now.Add(q.expiry),
		Seq:           q.nextSeq(),
		Status:        model.StatusPending,
	}
	q.intents = append(q.intents, intent)
	q.index[intent.CorrelationID] = intent
	q.guard.Acquire(slot, intent.CorrelationID)

	return EnqueueResult{Intent: *intent, Dispatch: true}, nil
}

// nextSeq orders intents created within the same wall-clock instant.
func (q *MutationQueue) nextSeq() int64 {
	q.seq++
	return q.seq
}

// isCorrection reports whether payload undoes a still-pending toggle.
func isCorrection(existing model.Intent, payload model.Payload) bool {
	if existing.Status != model.StatusPending {
		return false
	}
	switch existing.Kind {
	case model.KindReact, model.KindPin:
		return existing.Payload.On != payload.On
	}
	return false
}

func sameEffect(existing model.Intent, payload model.Payload) bool {
	switch existing.Kind {
	case model.KindReact, model.KindPin:
		return existing.Payload.On == payload.On
	case model.KindVote:
		return existing.Payload.OptionID == payload.OptionID
	case model.KindDelete:
		return true
	}
	return false
}

// Cancel withdraws a pending intent before its request resolves. The
// request itself is not recalled; its response is ignored when it arrives.
func (q *MutationQueue) Cancel(correlationID string) (model.Intent, error) {
	i := q.index[correlationID]
	if i == nil {
		return model.Intent{}, NewUnknownCorrelationError(correlationID)
	}
	if i.Status != model.StatusPending {
		return model.Intent{}, &MutationError{
			Code:          ErrCodeInvalidIntent,
			Message:       "only pending intents can be cancelled",
			CorrelationID: correlationID,
		}
	}
	out := *i
	q.cancel(i)
	return out, nil
}

func (q *MutationQueue) cancel(i *model.Intent) {
	q.cancelled[i.CorrelationID] = struct{}{}
	q.remove(i)
}

// Resolve applies a backend outcome to an intent.
//
// Success removes the intent, except for messages with an echoed record
// id, which become confirmed and stay until the record is visible so the
// timeline never shows zero entries for the action. A rejection fails and
// reverts the intent immediately. Any other error leaves it pending; expiry
// or server evidence settles it later.
func (q *MutationQueue) Resolve(correlationID string, outcome Outcome) (Transition, error) {
	if _, ok := q.cancelled[correlationID]; ok {
		delete(q.cancelled, correlationID)
		return TransitionIgnored, nil
	}

	i := q.index[correlationID]
	if i == nil {
		return "", NewUnknownCorrelationError(correlationID)
	}
	if outcome.Attempts > i.Attempts {
		i.Attempts = outcome.Attempts
	}

	if outcome.Err == nil {
		if i.Status == model.StatusReverted {
			// late success after expiry
			q.clearDraft(i)
		}
		if i.Kind == model.KindSendMessage && outcome.RecordID != "" {
			i.Status = model.StatusConfirmed
			i.RecordID = outcome.RecordID
			i.Reason = ""
			q.registry.MapServerID(correlationID, outcome.RecordID)
			q.claimedBy[outcome.RecordID] = correlationID
			return TransitionConfirmed, nil
		}
		q.remove(i)
		return TransitionRemoved, nil
	}

	if IsRejected(outcome.Err) {
		if i.Unresolved() {
			i.Rejected = true
			q.fail(i, outcome.Err.Error())
			q.revert(i)
		}
		return TransitionReverted, nil
	}

	return TransitionRetained, nil
}

// ReapPending removes every intent whose effect is evident in snap, whether
// or not its response ever arrived. Intents reverted by expiry are included:
// a late success still clears them, and their restored draft. Rejected
// intents are not.
func (q *MutationQueue) ReapPending(snap model.Snapshot, now time.Time) []Match {
	candidates := make([]model.Intent, 0, len(q.intents))
	for _, i := range q.intents {
		if i.Status != model.StatusFailed && !i.Rejected {
			candidates = append(candidates, *i)
		}
	}

	q.observe(snap)
	rec := q.historyMatcher().Reconcile(candidates, snap, now)
	for _, m := range rec.Matched {
		if m.Intent.Kind == model.KindSendMessage {
			q.claimedBy[m.RecordID] = m.Intent.CorrelationID
		}
		i := q.index[m.Intent.CorrelationID]
		if i == nil {
			continue
		}
		if i.Status == model.StatusReverted {
			q.clearDraft(i)
		}
		q.remove(i)
	}
	return rec.Matched
}

// observe stamps message records not seen before with the last issued seq.
// Every intent issued up to that seq existed before the record was visible.
// Records that left the snapshot are forgotten, and so are their claims once
// the claiming intent is gone.
func (q *MutationQueue) observe(snap model.Snapshot) {
	present := make(map[string]int64, len(snap.Messages))
	for _, r := range snap.Messages {
		if seq, ok := q.firstSeen[r.ID]; ok {
			present[r.ID] = seq
		} else {
			present[r.ID] = q.seq
		}
	}
	q.firstSeen = present
	for rid, cid := range q.claimedBy {
		if _, visible := present[rid]; !visible && q.index[cid] == nil {
			delete(q.claimedBy, rid)
		}
	}
}

// settled reports whether recordID cannot be semantic evidence for i: it was
// visible before i was enqueued, or it already settled a different intent.
func (q *MutationQueue) settled(recordID string, i model.Intent) bool {
	if owner, ok := q.claimedBy[recordID]; ok && owner != i.CorrelationID {
		return true
	}
	seq, ok := q.firstSeen[recordID]
	return ok && seq < i.Seq
}

func (q *MutationQueue) historyMatcher() Matcher {
	m := q.matcher
	m.Settled = q.settled
	return m
}

// Timeline merges confirmed records with the unresolved intents, using what
// the queue has observed so an identical earlier message never hides a new
// send.
func (q *MutationQueue) Timeline(confirmed []model.Record) []model.TimelineEntry {
	return q.historyMatcher().Timeline(confirmed, q.Unresolved())
}

// Expire fails and reverts every pending intent past its expiry. The
// network request is not cancelled.
func (q *MutationQueue) Expire(now time.Time) []model.Intent {
	var out []model.Intent
	for _, i := range q.intents {
		if !i.Expired(now) {
			continue
		}
		q.fail(i, "expired without confirmation")
		q.revert(i)
		out = append(out, *i)
	}
	return out
}

// ClearReverted deletes reverted intents. Called on a successful sync; the
// restored drafts survive.
func (q *MutationQueue) ClearReverted() []model.Intent {
	var out []model.Intent
	for _, i := range slices.Clone(q.intents) {
		if i.Status == model.StatusReverted {
			out = append(out, *i)
			q.remove(i)
		}
	}
	return out
}

// Dismiss deletes a failed intent the user has acknowledged.
func (q *MutationQueue) Dismiss(correlationID string) error {
	i := q.index[correlationID]
	if i == nil {
		return NewUnknownCorrelationError(correlationID)
	}
	if i.Status != model.StatusReverted && i.Status != model.StatusFailed {
		return &MutationError{
			Code:          ErrCodeInvalidIntent,
			Message:       "only failed intents can be dismissed",
			CorrelationID: correlationID,
		}
	}
	q.remove(i)
	return nil
}

// fail is the pending -> failed transition.
func (q *MutationQueue) fail(i *model.Intent, reason string) {
	i.Status = model.StatusFailed
	i.Reason = reason
	q.guard.Release(i.SlotKey(), i.CorrelationID)
}

// revert is the failed -> reverted transition. The optimistic effect leaves
// the view and, for messages, the typed text is restored as a draft.
func (q *MutationQueue) revert(i *model.Intent) {
	if i.Status != model.StatusFailed {
		return
	}
	i.Status = model.StatusReverted
	if i.Kind == model.KindSendMessage {
		q.drafts[i.TargetID] = i.Payload.Body
	}
}

func (q *MutationQueue) clearDraft(i *model.Intent) {
	if i.Kind != model.KindSendMessage {
		return
	}
	if q.drafts[i.TargetID] == i.Payload.Body {
		delete(q.drafts, i.TargetID)
	}
}

func (q *MutationQueue) remove(i *model.Intent) {
	q.intents = slices.DeleteFunc(q.intents, func(cur *model.Intent) bool {
		return cur == i
	})
	delete(q.index, i.CorrelationID)
	q.guard.Release(i.SlotKey(), i.CorrelationID)
	q.registry.Forget(i.CorrelationID)
}

// Get returns a copy of the intent with the given correlation id.
func (q *MutationQueue) Get(correlationID string) (model.Intent, bool) {
	i := q.index[correlationID]
	if i == nil {
		return model.Intent{}, false
	}
	return *i, true
}

// Unresolved returns pending and confirmed-not-yet-visible intents in seq
// order.
func (q *MutationQueue) Unresolved() []model.Intent {
	return q.filter(func(i *model.Intent) bool { return i.Unresolved() })
}

// Failures returns reverted intents awaiting dismissal, in seq order.
func (q *MutationQueue) Failures() []model.Intent {
	return q.filter(func(i *model.Intent) bool { return i.Status == model.StatusReverted })
}

// All returns every tracked intent in seq order.
func (q *MutationQueue) All() []model.Intent {
	return q.filter(func(*model.Intent) bool { return true })
}

func (q *MutationQueue) filter(keep func(*model.Intent) bool) []model.Intent {
	out := make([]model.Intent, 0, len(q.intents))
	for _, i := range q.intents {
		if keep(i) {
			out = append(out, *i)
		}
	}
	return out
}

// Len returns the number of tracked intents.
func (q *MutationQueue) Len() int {
	return len(q.intents)
}

// Draft returns the restored input for a conversation.
func (q *MutationQueue) Draft(conversationID string) string {
	return q.drafts[conversationID]
}

// TakeDraft returns and clears the restored input for a conversation.
func (q *MutationQueue) TakeDraft(conversationID string) string {
	d := q.drafts[conversationID]
	delete(q.drafts, conversationID)
	return d
}
