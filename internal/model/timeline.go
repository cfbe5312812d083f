package model

import "time"

// EntryTag discriminates the two variants of a TimelineEntry.
type EntryTag uint8

const (
	// EntryConfirmed is an entry backed by a confirmed Record.
	EntryConfirmed EntryTag = iota + 1
	// EntryPending is a provisional projection of an unresolved Intent.
	EntryPending
)

func (t EntryTag) String() string {
	switch t {
	case EntryConfirmed:
		return "confirmed"
	case EntryPending:
		return "pending"
	default:
		return "unknown"
	}
}

// TimelineEntry is one row of the merged timeline: either a confirmed record
// or a pending intent projected into the same shape.
//
// ID is the record id for confirmed entries and the correlation id for
// pending ones.
type TimelineEntry struct {
	Tag           EntryTag  `json:"tag"`
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	AuthorID      string    `json:"author_id"`
	Body          string    `json:"body"`
	At            time.Time `json:"at"`
}

// Provisional reports whether the entry is a pending placeholder.
func (e TimelineEntry) Provisional() bool {
	return e.Tag == EntryPending
}
