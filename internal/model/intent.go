package model

import "time"

// Kind identifies the user action an intent represents.
type Kind string

const (
	KindSendMessage Kind = "send-message"
	KindReact       Kind = "react"
	KindVote        Kind = "vote"
	KindPin         Kind = "pin"
	KindDelete      Kind = "delete"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSendMessage, KindReact, KindVote, KindPin, KindDelete:
		return true
	}
	return false
}

// Status is the lifecycle state of an intent.
//
//	pending ──► confirmed ──► (removed once the record is visible)
//	   │
//	   └──► failed ──► reverted ──► (removed on dismiss or next successful sync)
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusReverted  Status = "reverted"
)

// Payload holds the provisional data of an intent. Which fields are
// meaningful depends on Kind:
//   - send-message: AuthorID, Body
//   - react, pin: On (the desired end state)
//   - vote: OptionID
//   - delete: nothing beyond the target
type Payload struct {
	AuthorID string `json:"author_id,omitempty"`
	Body     string `json:"body,omitempty"`
	OptionID string `json:"option_id,omitempty"`
	On       bool   `json:"on,omitempty"`
}

// Intent is a locally-created, not-yet-confirmed user action.
//
// TargetID is the conversation for send-message, the post for react, pin and
// delete, and the poll for vote.
type Intent struct {
	CorrelationID string    `json:"correlation_id"`
	Kind          Kind      `json:"kind"`
	TargetID      string    `json:"target_id"`
	Payload       Payload   `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Seq           int64     `json:"seq"`
	Status        Status    `json:"status"`
	Attempts      int       `json:"attempts"`

	// RecordID is the server identifier echoed back for this intent, if any.
	RecordID string `json:"record_id,omitempty"`

	// Reason describes why the intent failed.
	Reason string `json:"reason,omitempty"`

	// Rejected is set when the server explicitly refused the intent. A
	// rejected intent can never become evident in confirmed state.
	Rejected bool `json:"rejected,omitempty"`
}

// Unresolved reports whether the intent still affects the rendered view,
// i.e. it is pending or confirmed-but-not-yet-visible.
func (i Intent) Unresolved() bool {
	return i.Status == StatusPending || i.Status == StatusConfirmed
}

// Expired reports whether a pending intent has outlived its validity window.
func (i Intent) Expired(now time.Time) bool {
	return i.Status == StatusPending && !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// SlotKey identifies the (kind, target) slot guarded against concurrent
// mutations. Messages never share a slot: each send is its own action.
func (i Intent) SlotKey() string {
	if i.Kind == KindSendMessage {
		return ""
	}
	return string(i.Kind) + ":" + i.TargetID
}
