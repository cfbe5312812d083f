package model

import "time"

// Record is the authoritative representation of a message as returned by the
// backend.
type Record struct {
	ID             string    `json:"id"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	AuthorID       string    `json:"author_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	Deleted        bool      `json:"deleted,omitempty"`
}

// ReactionState is the viewer-relative reaction summary of one target.
type ReactionState struct {
	TargetID           string `json:"target_id"`
	IsSelectedByViewer bool   `json:"is_selected_by_viewer"`
	AggregateCount     int64  `json:"aggregate_count"`
}

// PollOption is one option of a poll, with the viewer's selection.
type PollOption struct {
	PollID             string `json:"poll_id"`
	OptionID           string `json:"option_id"`
	VoteCount          int64  `json:"vote_count"`
	IsSelectedByViewer bool   `json:"is_selected_by_viewer"`
}

// PinState records whether a post is pinned.
type PinState struct {
	TargetID string `json:"target_id"`
	Pinned   bool   `json:"pinned"`
}

// Snapshot is one authoritative refresh of a view's data. A snapshot
// replaces the previous one wholesale.
type Snapshot struct {
	Messages  []Record        `json:"messages"`
	Reactions []ReactionState `json:"reactions,omitempty"`
	Polls     []PollOption    `json:"polls,omitempty"`
	Pins      []PinState      `json:"pins,omitempty"`
}

// Message returns the record with the given id.
func (s Snapshot) Message(id string) (Record, bool) {
	for _, r := range s.Messages {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Reaction returns the reaction state for a target.
func (s Snapshot) Reaction(targetID string) (ReactionState, bool) {
	for _, r := range s.Reactions {
		if r.TargetID == targetID {
			return r, true
		}
	}
	return ReactionState{}, false
}

// PollOptions returns the options of a poll in snapshot order.
func (s Snapshot) PollOptions(pollID string) []PollOption {
	var out []PollOption
	for _, o := range s.Polls {
		if o.PollID == pollID {
			out = append(out, o)
		}
	}
	return out
}

// Pin returns the pin state for a target.
func (s Snapshot) Pin(targetID string) (PinState, bool) {
	for _, p := range s.Pins {
		if p.TargetID == targetID {
			return p, true
		}
	}
	return PinState{}, false
}

// WithReaction returns a copy of s where the reaction state for r.TargetID is
// replaced by r.
func (s Snapshot) WithReaction(r ReactionState) Snapshot {
	out := s
	out.Reactions = make([]ReactionState, 0, len(s.Reactions)+1)
	replaced := false
	for _, cur := range s.Reactions {
		if cur.TargetID == r.TargetID {
			out.Reactions = append(out.Reactions, r)
			replaced = true
			continue
		}
		out.Reactions = append(out.Reactions, cur)
	}
	if !replaced {
		out.Reactions = append(out.Reactions, r)
	}
	return out
}

// WithPoll returns a copy of s where every option of pollID is replaced by
// options.
func (s Snapshot) WithPoll(pollID string, options []PollOption) Snapshot {
	out := s
	out.Polls = make([]PollOption, 0, len(s.Polls)+len(options))
	for _, cur := range s.Polls {
		if cur.PollID != pollID {
			out.Polls = append(out.Polls, cur)
		}
	}
	out.Polls = append(out.Polls, options...)
	return out
}

// WithPin returns a copy of s where the pin state for p.TargetID is replaced.
func (s Snapshot) WithPin(p PinState) Snapshot {
	out := s
	out.Pins = make([]PinState, 0, len(s.Pins)+1)
	replaced := false
	for _, cur := range s.Pins {
		if cur.TargetID == p.TargetID {
			out.Pins = append(out.Pins, p)
			replaced = true
			continue
		}
		out.Pins = append(out.Pins, cur)
	}
	if !replaced {
		out.Pins = append(out.Pins, p)
	}
	return out
}
