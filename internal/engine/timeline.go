package engine

import (
	"slices"
	"time"

	"github.com/roach88/optisync/internal/model"
)

// BuildTimeline merges confirmed records with unresolved intents using the
// default match skew. See Matcher.Timeline.
func BuildTimeline(confirmed []model.Record, pending []model.Intent) []model.TimelineEntry {
	return NewMatcher(DefaultMatchSkew).Timeline(confirmed, pending)
}

// Timeline merges confirmed records with unresolved intents into one
// chronologically stable list.
//
// Unresolved send-message intents become provisional entries stamped with
// their creation time. One the server has acknowledged is shown as
// confirmed under its record id until the record itself arrives. Entries
// sort ascending by timestamp; ties keep insertion order (confirmed feed
// order, then intent seq). A placeholder is dropped as soon as its
// confirmed counterpart is present, a confirmed record targeted by an
// unresolved delete is hidden, and no record id appears twice.
//
// The function is pure: identical inputs give identical output.
func (m Matcher) Timeline(confirmed []model.Record, pending []model.Intent) []model.TimelineEntry {
	hidden := make(map[string]bool)
	var sends []model.Intent
	for _, i := range pending {
		if !i.Unresolved() {
			continue
		}
		switch i.Kind {
		case model.KindDelete:
			hidden[i.TargetID] = true
		case model.KindSendMessage:
			sends = append(sends, i)
		}
	}

	entries := make([]model.TimelineEntry, 0, len(confirmed)+len(sends))
	seen := make(map[string]bool, len(confirmed))
	for _, r := range confirmed {
		if r.Deleted || hidden[r.ID] || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		entries = append(entries, model.TimelineEntry{
			Tag:           model.EntryConfirmed,
			ID:            r.ID,
			CorrelationID: r.CorrelationID,
			AuthorID:      r.AuthorID,
			Body:          r.Body,
			At:            r.CreatedAt,
		})
	}

	// zero time: nothing counts as expired here, expiry is the queue's job
	rec := m.Reconcile(sends, model.Snapshot{Messages: confirmed}, time.Time{})
	for _, i := range rec.Pending {
		e := model.TimelineEntry{
			Tag:           model.EntryPending,
			ID:            i.CorrelationID,
			CorrelationID: i.CorrelationID,
			AuthorID:      i.Payload.AuthorID,
			Body:          i.Payload.Body,
			At:            i.CreatedAt,
		}
		// acknowledged but not yet in a snapshot: show it under its server id
		if i.Status == model.StatusConfirmed && i.RecordID != "" {
			if seen[i.RecordID] {
				continue
			}
			seen[i.RecordID] = true
			e.Tag = model.EntryConfirmed
			e.ID = i.RecordID
		}
		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(a, b model.TimelineEntry) int {
		return a.At.Compare(b.At)
	})
	return entries
}

// ReactionView overlays an unresolved react intent on the confirmed
// reaction state of target.
func ReactionView(snap model.Snapshot, pending []model.Intent, targetID string) model.ReactionState {
	st, _ := snap.Reaction(targetID)
	st.TargetID = targetID
	for _, i := range pending {
		if i.Kind != model.KindReact || i.TargetID != targetID || !i.Unresolved() {
			continue
		}
		if i.Payload.On == st.IsSelectedByViewer {
			continue
		}
		st.IsSelectedByViewer = i.Payload.On
		if i.Payload.On {
			st.AggregateCount++
		} else if st.AggregateCount > 0 {
			st.AggregateCount--
		}
	}
	return st
}

// PollView overlays an unresolved vote intent on the confirmed options of
// a poll. The viewer's previous selection, if any, moves to the new option.
func PollView(snap model.Snapshot, pending []model.Intent, pollID string) []model.PollOption {
	opts := snap.PollOptions(pollID)
	for _, i := range pending {
		if i.Kind != model.KindVote || i.TargetID != pollID || !i.Unresolved() {
			continue
		}
		for k := range opts {
			o := &opts[k]
			switch {
			case o.OptionID == i.Payload.OptionID && !o.IsSelectedByViewer:
				o.IsSelectedByViewer = true
				o.VoteCount++
			case o.OptionID != i.Payload.OptionID && o.IsSelectedByViewer:
				o.IsSelectedByViewer = false
				if o.VoteCount > 0 {
					o.VoteCount--
				}
			}
		}
	}
	return opts
}

// PinView overlays an unresolved pin intent on the confirmed pin state.
func PinView(snap model.Snapshot, pending []model.Intent, targetID string) bool {
	p, _ := snap.Pin(targetID)
	pinned := p.Pinned
	for _, i := range pending {
		if i.Kind == model.KindPin && i.TargetID == targetID && i.Unresolved() {
			pinned = i.Payload.On
		}
	}
	return pinned
}
