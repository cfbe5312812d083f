package engine

import (
	"time"

	"github.com/roach88/optisync/internal/model"
)

// DefaultMatchSkew is how much earlier than an intent a confirmed message
// may be stamped and still count as its semantic match. It absorbs clock
// skew between client and server.
const DefaultMatchSkew = 10 * time.Second

// MatchRule names the evidence that resolved an intent.
type MatchRule string

const (
	// MatchCorrelation: the record echoes the intent's correlation id.
	MatchCorrelation MatchRule = "correlation"
	// MatchServerID: the record id equals the id echoed in the response.
	MatchServerID MatchRule = "server-id"
	// MatchSemantic: "my action on this target" is visible in confirmed
	// state, with no id echo.
	MatchSemantic MatchRule = "semantic"
)

// Match pairs an intent with the evidence that resolved it.
type Match struct {
	Intent   model.Intent
	RecordID string
	Rule     MatchRule
}

// Reconciliation is the result of one matcher pass.
type Reconciliation struct {
	Matched []Match        // to remove
	Pending []model.Intent // to keep
	Expired []model.Intent // no evidence and past expiry
}

// Matcher resolves intents against an authoritative snapshot.
type Matcher struct {
	// Skew is the tolerance for semantic message matching.
	Skew time.Duration

	// Settled, when set, reports whether a confirmed message already
	// belonged to history before intent i existed, or settled another
	// intent. Such a record is never semantic evidence for i.
	Settled func(recordID string, i model.Intent) bool
}

// NewMatcher creates a Matcher. skew <= 0 means DefaultMatchSkew.
func NewMatcher(skew time.Duration) Matcher {
	if skew <= 0 {
		skew = DefaultMatchSkew
	}
	return Matcher{Skew: skew}
}

// Reconcile matches intents (in seq order) to confirmed evidence.
//
// Precedence:
//  1. exact id: the record carries the intent's correlation id, or the
//     record id equals the server id echoed for the intent;
//  2. semantic key, for intents with no id echo;
//  3. otherwise the intent is pending, or expired if past its window.
//
// A confirmed message can satisfy at most one intent. The function is pure.
func (m Matcher) Reconcile(intents []model.Intent, snap model.Snapshot, now time.Time) Reconciliation {
	var out Reconciliation

	byCorrelation := make(map[string]string, len(snap.Messages))
	byID := make(map[string]bool, len(snap.Messages))
	for _, r := range snap.Messages {
		if r.CorrelationID != "" {
			if _, dup := byCorrelation[r.CorrelationID]; !dup {
				byCorrelation[r.CorrelationID] = r.ID
			}
		}
		byID[r.ID] = true
	}

	claimed := make(map[string]bool)
	matched := make([]bool, len(intents))

	// Pass 1: exact id
	for idx, i := range intents {
		if i.Kind != model.KindSendMessage {
			continue
		}
		if rid, ok := byCorrelation[i.CorrelationID]; ok && !claimed[rid] {
			claimed[rid] = true
			matched[idx] = true
			out.Matched = append(out.Matched, Match{Intent: i, RecordID: rid, Rule: MatchCorrelation})
			continue
		}
		if i.RecordID != "" && byID[i.RecordID] && !claimed[i.RecordID] {
			claimed[i.RecordID] = true
			matched[idx] = true
			out.Matched = append(out.Matched, Match{Intent: i, RecordID: i.RecordID, Rule: MatchServerID})
		}
	}

	// Pass 2: semantic key
	for idx, i := range intents {
		if matched[idx] {
			continue
		}
		if rid, ok := m.semanticMatch(i, snap, claimed); ok {
			if i.Kind == model.KindSendMessage {
				claimed[rid] = true
			}
			matched[idx] = true
			out.Matched = append(out.Matched, Match{Intent: i, RecordID: rid, Rule: MatchSemantic})
		}
	}

	for idx, i := range intents {
		if matched[idx] {
			continue
		}
		if i.Expired(now) {
			out.Expired = append(out.Expired, i)
		} else {
			out.Pending = append(out.Pending, i)
		}
	}
	return out
}

// semanticMatch looks for "my action on this target" in confirmed state.
// It returns the id of the evidence: the record id for messages, the target
// id otherwise.
func (m Matcher) semanticMatch(i model.Intent, snap model.Snapshot, claimed map[string]bool) (string, bool) {
	switch i.Kind {
	case model.KindSendMessage:
		if i.RecordID != "" {
			// the server told us the exact id; wait for that record
			return "", false
		}
		body := model.NormalizeBody(i.Payload.Body)
		earliest := i.CreatedAt.Add(-m.Skew)
		for _, r := range snap.Messages {
			if claimed[r.ID] || (m.Settled != nil && m.Settled(r.ID, i)) {
				continue
			}
			if r.CorrelationID != "" && r.CorrelationID != i.CorrelationID {
				continue
			}
			if r.ConversationID != i.TargetID || r.AuthorID != i.Payload.AuthorID {
				continue
			}
			if r.CreatedAt.Before(earliest) {
				continue
			}
			if model.NormalizeBody(r.Body) == body {
				return r.ID, true
			}
		}
		return "", false

	case model.KindReact:
		st, ok := snap.Reaction(i.TargetID)
		if ok && st.IsSelectedByViewer == i.Payload.On {
			return i.TargetID, true
		}
		return "", false

	case model.KindVote:
		// at most one vote per viewer per poll: any selected option is
		// evidence, whichever option id the server kept
		for _, o := range snap.PollOptions(i.TargetID) {
			if o.IsSelectedByViewer {
				return i.TargetID, true
			}
		}
		return "", false

	case model.KindPin:
		p, ok := snap.Pin(i.TargetID)
		if ok && p.Pinned == i.Payload.On {
			return i.TargetID, true
		}
		return "", false

	case model.KindDelete:
		r, ok := snap.Message(i.TargetID)
		if !ok || r.Deleted {
			return i.TargetID, true
		}
		return "", false
	}
	return "", false
}
