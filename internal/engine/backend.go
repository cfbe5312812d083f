package engine

import (
	"context"

	"github.com/roach88/optisync/internal/model"
)

// Backend is the remote record store, bound to the viewer's session.
// It is owned by an external collaborator; the engine only issues these
// request/response calls.
//
// Errors that satisfy errors.Is(err, ErrRejected) are explicit refusals and
// are never retried. Every other error is treated as transient.
type Backend interface {
	// SendMessage posts text and returns the server message id. The
	// correlation id is forwarded so the server may echo it on the record.
	SendMessage(ctx context.Context, conversationID, text, correlationID string) (string, error)

	// ToggleReaction flips the viewer's reaction on a post.
	ToggleReaction(ctx context.Context, postID string) (model.ReactionState, error)

	// CastVote records the viewer's vote and returns every option of the poll.
	CastVote(ctx context.Context, pollID, optionID string) ([]model.PollOption, error)

	// SetPinned pins or unpins a post.
	SetPinned(ctx context.Context, postID string, pinned bool) (model.PinState, error)

	// DeleteMessage deletes one of the viewer's messages.
	DeleteMessage(ctx context.Context, messageID string) error

	// Snapshot returns the authoritative state of a conversation.
	Snapshot(ctx context.Context, conversationID string) (model.Snapshot, error)
}
