package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/optisync/internal/config"
	"github.com/roach88/optisync/internal/engine"
	"github.com/roach88/optisync/internal/model"
	"github.com/roach88/optisync/internal/presence"
	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/testutil"
)

// Harness runs one scenario against a view backed by an in-memory store.
// Responses are delivered inline and applied only on flush steps, so every
// intermediate state is observable.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	net      *network
	view     *engine.View
	pipeline *presence.Pipeline
	clock    *testutil.FakeTime
	logger   *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger logs each step. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a stopped clock at
// testutil.Epoch and sequential correlation ids c1, c2, ...
//
// An error is returned only when the scenario cannot run at all (bad config
// or seed). Failed expectations are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config.Default()
	if scenario.Config != "" {
		var err error
		cfg, err = config.LoadBytes(scenario.Name+".cue", []byte(scenario.Config))
		if err != nil {
			return nil, fmt.Errorf("scenario config: %w", err)
		}
	}

	clock := testutil.NewFakeTime(testutil.Epoch)
	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	net := newNetwork(st.ForViewer(scenario.Viewer))
	h := &Harness{
		scenario: scenario,
		store:    st,
		net:      net,
		clock:    clock,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		view: engine.NewView(net, scenario.Conversation, scenario.Viewer,
			engine.WithConfig(cfg),
			engine.WithTimeSource(clock),
			engine.WithGenerator(testutil.NewSequentialIDs("c")),
			engine.WithDispatcher(engine.InlineDispatcher),
			engine.WithSleep(func(time.Duration) {}),
		),
		pipeline: presence.NewPipeline(st, append(presence.FromConfig(cfg.Presence), presence.WithClock(clock.Now))...),
	}
	for _, opt := range opts {
		opt(h)
	}
	defer h.view.Close()

	ctx := context.Background()
	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.execute(ctx, i, step, result)
	}
	result.Final = h.final()
	return result, nil
}

// execute runs one step and checks its error against step.Error.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) {
	kind, _ := step.kind()
	h.logger.Debug("step", "index", index, "kind", kind)

	if step.Expect != nil {
		for _, msg := range h.check(*step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d] expect: %s", index, msg))
		}
		return
	}

	cid, detail, err := h.apply(ctx, kind, step)
	code := errorCode(err)
	if err != nil {
		detail = code
	}
	result.AddTrace(kind, cid, detail)

	switch {
	case step.Error == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, kind, err))
	case step.Error != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got none", index, kind, step.Error))
	case step.Error != "" && code != step.Error:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s (%v)", index, kind, step.Error, code, err))
	}
}

// apply performs a non-expect step and returns the intent it touched and a
// short description of the outcome.
func (h *Harness) apply(ctx context.Context, kind string, step Step) (string, string, error) {
	switch kind {
	case "send":
		return enqueued(h.view.SendMessage(ctx, *step.Send))
	case "resend":
		draft := h.view.TakeDraft()
		if draft == "" {
			return "", "", errors.New("no draft to resend")
		}
		return enqueued(h.view.SendMessage(ctx, draft))
	case "react":
		return enqueued(h.view.ToggleReaction(ctx, step.React))
	case "vote":
		return enqueued(h.view.CastVote(ctx, step.Vote.Poll, step.Vote.Option))
	case "pin":
		return enqueued(h.view.SetPinned(ctx, step.Pin.Post, step.Pin.Pinned))
	case "delete":
		return enqueued(h.view.Delete(ctx, step.Delete))
	case "cancel":
		return step.Cancel, "", h.view.Cancel(step.Cancel)
	case "dismiss":
		return step.Dismiss, "", h.view.Dismiss(step.Dismiss)
	case "save":
		muts := make([]engine.Mutation, len(step.Save))
		for k, item := range step.Save {
			muts[k] = engine.Mutation{
				Kind:     model.Kind(item.Kind),
				TargetID: item.Target,
				Payload:  model.Payload{Body: item.Body, OptionID: item.Option, On: item.On},
			}
		}
		res := h.view.SaveAll(ctx, muts...)
		return "", fmt.Sprintf("%d of %d saved", len(res.Parts)-len(res.Failed()), len(res.Parts)), res.Err()

	case "network":
		h.net.setMode(step.Network)
		return "", step.Network, nil
	case "advance":
		h.clock.Advance(step.Advance)
		return "", step.Advance.String(), nil
	case "post":
		p := step.Post
		id, err := h.store.InsertMessage(ctx, model.Record{
			ID:             p.ID,
			ConversationID: h.scenario.Conversation,
			AuthorID:       p.Author,
			Body:           p.Body,
			CreatedAt:      h.clock.Now().Add(p.At),
		})
		return "", id, err
	case "live":
		return "", step.Live.ID, h.store.StartSession(ctx, model.Session{
			SessionID: step.Live.ID,
			ProfileID: step.Live.Profile,
			Mode:      model.Mode(step.Live.Mode),
			StartedAt: h.clock.Now().Add(step.Live.At),
		})
	case "end":
		return "", step.End, h.store.EndSession(ctx, step.End)
	case "room":
		return "", step.Room.Session, h.store.AssignRoom(ctx, model.RoomAssignment{SessionID: step.Room.Session, TeamID: step.Room.Team})

	case "tick":
		var ids []string
		for _, i := range h.view.Tick() {
			ids = append(ids, i.CorrelationID)
		}
		return "", describe("expired", ids), nil
	case "flush":
		return "", fmt.Sprintf("%d events", h.view.Flush()), nil
	case "refresh":
		return "", "", h.view.Refresh(ctx)
	case "presence":
		entries, err := h.pipeline.Refresh(ctx)
		return "", fmt.Sprintf("%d live", len(entries)), err
	}
	return "", "", fmt.Errorf("unhandled step %q", kind)
}

func enqueued(res engine.EnqueueResult, err error) (string, string, error) {
	if err != nil {
		return "", "", err
	}
	detail := "dispatched"
	switch {
	case res.Cancelled:
		detail = "cancelled"
	case !res.Dispatch:
		detail = "duplicate"
	}
	return res.Intent.CorrelationID, detail, nil
}

func describe(verb string, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return verb + " " + strings.Join(ids, ",")
}

// errorCode maps an error to the code scenarios name in step errors.
func errorCode(err error) string {
	var me *engine.MutationError
	var rej *engine.RejectionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &me):
		return string(me.Code)
	case errors.As(err, &rej):
		return rej.Code
	case errors.Is(err, errOffline):
		return "OFFLINE"
	case errors.Is(err, errLostResponse):
		return "LOST"
	}
	return "ERROR"
}

func (h *Harness) seed(ctx context.Context, seed Seed) error {
	for _, m := range seed.Members {
		if err := h.store.PutMember(ctx, model.Member{
			ProfileID:   m.ID,
			Username:    m.Username,
			DisplayName: m.DisplayName,
			AvatarURL:   m.AvatarURL,
		}); err != nil {
			return err
		}
	}
	for _, m := range seed.Messages {
		if _, err := h.store.InsertMessage(ctx, model.Record{
			ID:             m.ID,
			ConversationID: h.scenario.Conversation,
			AuthorID:       m.Author,
			Body:           m.Body,
			CreatedAt:      h.clock.Now().Add(m.At),
		}); err != nil {
			return err
		}
	}
	for _, r := range seed.Reactions {
		if _, err := h.store.ForViewer(r.By).ToggleReaction(ctx, r.Post); err != nil {
			return err
		}
	}
	for _, p := range seed.Polls {
		if err := h.store.CreatePoll(ctx, h.scenario.Conversation, p.ID, p.Options...); err != nil {
			return err
		}
	}
	for _, v := range seed.Votes {
		if _, err := h.store.ForViewer(v.By).CastVote(ctx, v.Poll, v.Option); err != nil {
			return err
		}
	}
	for _, s := range seed.Sessions {
		if err := h.store.StartSession(ctx, model.Session{
			SessionID: s.ID,
			ProfileID: s.Profile,
			Mode:      model.Mode(s.Mode),
			StartedAt: h.clock.Now().Add(s.At),
		}); err != nil {
			return err
		}
	}
	for _, r := range seed.Rooms {
		if err := h.store.AssignRoom(ctx, model.RoomAssignment{SessionID: r.Session, TeamID: r.Team}); err != nil {
			return err
		}
	}
	for _, t := range seed.Teams {
		if err := h.store.PutTeam(ctx, model.TeamSlug{TeamID: t.ID, Slug: t.Slug}); err != nil {
			return err
		}
	}

	// the view starts from the seeded state
	snap, err := h.store.ForViewer(h.scenario.Viewer).Snapshot(ctx, h.scenario.Conversation)
	if err != nil {
		return err
	}
	h.view.Apply(snap)
	return nil
}

// FinalState is the observable view state at the end of a run.
type FinalState struct {
	Timeline []model.TimelineEntry `json:"timeline"`
	Failures []string              `json:"failures"`
	Pending  []string              `json:"pending"`
	Draft    string                `json:"draft"`
	Presence []model.PresenceEntry `json:"presence"`
}

func (h *Harness) final() FinalState {
	return FinalState{
		Timeline: h.view.Timeline(),
		Failures: correlationIDs(h.view.Failures()),
		Pending:  correlationIDs(h.view.Pending()),
		Draft:    h.view.Draft(),
		Presence: h.pipeline.Presence(),
	}
}

func correlationIDs(intents []model.Intent) []string {
	ids := make([]string, 0, len(intents))
	for _, i := range intents {
		ids = append(ids, i.CorrelationID)
	}
	return slices.Clip(ids)
}
