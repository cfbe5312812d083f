package harness

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/optisync/internal/engine"
	"github.com/roach88/optisync/internal/model"
)

// Network failure codes reported in traces and matched by step errors.
var (
	errOffline      = errors.New("network unavailable")
	errLostResponse = errors.New("response lost")
)

// network sits between the view and the store and simulates connectivity.
// Offline fails every call before it reaches the store. Lossy lets
// mutations reach the store but loses their responses; snapshots still
// arrive.
type network struct {
	inner engine.Backend

	mu    sync.Mutex
	mode  string
	calls int
}

var _ engine.Backend = (*network)(nil)

func newNetwork(inner engine.Backend) *network {
	return &network{inner: inner, mode: NetworkOnline}
}

func (n *network) setMode(mode string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = mode
}

func (n *network) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// before counts the call and reports whether it may reach the store.
func (n *network) before() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.mode == NetworkOffline {
		return n.mode, errOffline
	}
	return n.mode, nil
}

// after loses the response of a successful mutation in lossy mode.
func after[T any](mode string, v T, err error) (T, error) {
	if err == nil && mode == NetworkLossy {
		var zero T
		return zero, errLostResponse
	}
	return v, err
}

func (n *network) SendMessage(ctx context.Context, conversationID, text, correlationID string) (string, error) {
	mode, err := n.before()
	if err != nil {
		return "", err
	}
	id, err := n.inner.SendMessage(ctx, conversationID, text, correlationID)
	return after(mode, id, err)
}

func (n *network) ToggleReaction(ctx context.Context, postID string) (model.ReactionState, error) {
	mode, err := n.before()
	if err != nil {
		return model.ReactionState{}, err
	}
	st, err := n.inner.ToggleReaction(ctx, postID)
	return after(mode, st, err)
}

func (n *network) CastVote(ctx context.Context, pollID, optionID string) ([]model.PollOption, error) {
	mode, err := n.before()
	if err != nil {
		return nil, err
	}
	opts, err := n.inner.CastVote(ctx, pollID, optionID)
	return after(mode, opts, err)
}

func (n *network) SetPinned(ctx context.Context, postID string, pinned bool) (model.PinState, error) {
	mode, err := n.before()
	if err != nil {
		return model.PinState{}, err
	}
	st, err := n.inner.SetPinned(ctx, postID, pinned)
	return after(mode, st, err)
}

func (n *network) DeleteMessage(ctx context.Context, messageID string) error {
	mode, err := n.before()
	if err != nil {
		return err
	}
	_, err = after(mode, struct{}{}, n.inner.DeleteMessage(ctx, messageID))
	return err
}

func (n *network) Snapshot(ctx context.Context, conversationID string) (model.Snapshot, error) {
	if _, err := n.before(); err != nil {
		return model.Snapshot{}, err
	}
	return n.inner.Snapshot(ctx, conversationID)
}
