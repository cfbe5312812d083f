package engine

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/optisync/internal/model"
)

var errOffline = errors.New("network unreachable")

// fakeBackend is an in-memory record store for one viewer ("me").
type fakeBackend struct {
	mu sync.Mutex

	now     func() time.Time
	nextID  int
	snap    model.Snapshot
	calls   map[model.Kind]int
	offline bool

	// rejectSend refuses every send with this error.
	rejectSend error
	// loseResponses commits writes but reports a transient failure.
	loseResponses bool
}

func newFakeBackend(now func() time.Time) *fakeBackend {
	return &fakeBackend{now: now, nextID: 42, calls: make(map[model.Kind]int)}
}

func (b *fakeBackend) setOffline(off bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline = off
}

func (b *fakeBackend) callCount(kind model.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[kind]
}

func (b *fakeBackend) seed(s model.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = s
}

func (b *fakeBackend) begin(kind model.Kind) error {
	b.calls[kind]++
	if b.offline {
		return errOffline
	}
	return nil
}

func (b *fakeBackend) SendMessage(_ context.Context, conversationID, text, correlationID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(model.KindSendMessage); err != nil {
		return "", err
	}
	if b.rejectSend != nil {
		return "", b.rejectSend
	}
	id := strconv.Itoa(b.nextID)
	b.nextID++
	b.snap.Messages = append(slices.Clone(b.snap.Messages), model.Record{
		ID:             id,
		CorrelationID:  correlationID,
		ConversationID: conversationID,
		AuthorID:       "me",
		Body:           text,
		CreatedAt:      b.now(),
	})
	if b.loseResponses {
		return "", errors.New("response lost")
	}
	return id, nil
}

func (b *fakeBackend) ToggleReaction(_ context.Context, postID string) (model.ReactionState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(model.KindReact); err != nil {
		return model.ReactionState{}, err
	}
	st, _ := b.snap.Reaction(postID)
	st.TargetID = postID
	st.IsSelectedByViewer = !st.IsSelectedByViewer
	if st.IsSelectedByViewer {
		st.AggregateCount++
	} else {
		st.AggregateCount--
	}
	b.snap = b.snap.WithReaction(st)
	return st, nil
}

func (b *fakeBackend) CastVote(_ context.Context, pollID, optionID string) ([]model.PollOption, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(model.KindVote); err != nil {
		return nil, err
	}
	opts := b.snap.PollOptions(pollID)
	for _, o := range opts {
		if o.IsSelectedByViewer {
			return nil, Reject("DUPLICATE_VOTE", "viewer already voted")
		}
	}
	for k := range opts {
		if opts[k].OptionID == optionID {
			opts[k].IsSelectedByViewer = true
			opts[k].VoteCount++
		}
	}
	b.snap = b.snap.WithPoll(pollID, opts)
	return b.snap.PollOptions(pollID), nil
}

func (b *fakeBackend) SetPinned(_ context.Context, postID string, pinned bool) (model.PinState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(model.KindPin); err != nil {
		return model.PinState{}, err
	}
	st := model.PinState{TargetID: postID, Pinned: pinned}
	b.snap = b.snap.WithPin(st)
	return st, nil
}

func (b *fakeBackend) DeleteMessage(_ context.Context, messageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(model.KindDelete); err != nil {
		return err
	}
	msgs := slices.Clone(b.snap.Messages)
	for k := range msgs {
		if msgs[k].ID == messageID {
			msgs[k].Deleted = true
		}
	}
	b.snap.Messages = msgs
	return nil
}

func (b *fakeBackend) Snapshot(context.Context, string) (model.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline {
		return model.Snapshot{}, errOffline
	}
	s := b.snap
	s.Messages = slices.Clone(s.Messages)
	return s, nil
}

// heldDispatcher queues deliveries until release is called.
type heldDispatcher struct {
	mu  sync.Mutex
	fns []func()
}

func (d *heldDispatcher) Go(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, fn)
}

func (d *heldDispatcher) release() {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
