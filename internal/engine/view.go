package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/optisync/internal/config"
	"github.com/roach88/optisync/internal/metrics"
	"github.com/roach88/optisync/internal/model"
	"github.com/roach88/optisync/internal/scroll"
)

// DefaultTickInterval is how often Run checks for expired intents.
const DefaultTickInterval = time.Second

// View is the per-conversation store of optimistic state.
//
// Every mutation goes through View's entry points. Network responses and
// snapshots arrive as events and are applied by a single writer: the Run
// loop, or Flush when no loop is running.
//
// Thread-safety model:
//   - entry points and getters: safe from any goroutine
//   - Run(): at most one goroutine
//   - backend calls: on the dispatcher, never under the view lock
type View struct {
	mu sync.Mutex

	conversationID string
	viewerID       string
	backend        Backend

	queue    *MutationQueue
	registry *Registry
	snapshot model.Snapshot
	anchor   *scroll.Anchor

	events     *eventQueue
	dispatcher Dispatcher
	inflight   sync.WaitGroup
	now        TimeSource
	sleep      func(time.Duration)
	metrics    *metrics.Metrics

	maxAttempts     int
	retryBackoff    time.Duration
	tickInterval    time.Duration
	refreshInterval time.Duration

	closed   bool
	revision uint64
	cached   []model.TimelineEntry
	cacheRev uint64
}

// viewSettings collects options before the view's parts are built.
type viewSettings struct {
	gen             Generator
	now             TimeSource
	dispatcher      Dispatcher
	sleep           func(time.Duration)
	metrics         *metrics.Metrics
	expiry          time.Duration
	maxAttempts     int
	retryBackoff    time.Duration
	matchSkew       time.Duration
	scrollThreshold float64
	tickInterval    time.Duration
	refreshInterval time.Duration
}

// ViewOption configures a View.
type ViewOption func(*viewSettings)

// WithTimeSource sets the wall clock used for createdAt and expiry.
func WithTimeSource(ts TimeSource) ViewOption {
	return func(s *viewSettings) { s.now = ts }
}

// WithGenerator sets the correlation id generator.
func WithGenerator(gen Generator) ViewOption {
	return func(s *viewSettings) { s.gen = gen }
}

// WithDispatcher sets how deliveries are scheduled.
func WithDispatcher(d Dispatcher) ViewOption {
	return func(s *viewSettings) { s.dispatcher = d }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(time.Duration)) ViewOption {
	return func(s *viewSettings) { s.sleep = sleep }
}

// WithExpiry sets how long an intent may stay pending.
func WithExpiry(d time.Duration) ViewOption {
	return func(s *viewSettings) { s.expiry = d }
}

// WithMaxAttempts sets the delivery budget per intent.
func WithMaxAttempts(n int) ViewOption {
	return func(s *viewSettings) { s.maxAttempts = n }
}

// WithRetryBackoff sets the base delay between delivery attempts. Zero
// retries immediately.
func WithRetryBackoff(d time.Duration) ViewOption {
	return func(s *viewSettings) { s.retryBackoff = d }
}

// WithMatchSkew sets the semantic match tolerance.
func WithMatchSkew(d time.Duration) ViewOption {
	return func(s *viewSettings) { s.matchSkew = d }
}

// WithScrollThreshold sets the pinned-to-latest distance in pixels.
func WithScrollThreshold(px float64) ViewOption {
	return func(s *viewSettings) { s.scrollThreshold = px }
}

// WithMetrics records intent and delivery counters.
func WithMetrics(m *metrics.Metrics) ViewOption {
	return func(s *viewSettings) { s.metrics = m }
}

// WithTickInterval sets how often Run expires intents.
func WithTickInterval(d time.Duration) ViewOption {
	return func(s *viewSettings) { s.tickInterval = d }
}

// WithRefreshInterval makes Run fetch a snapshot every d. Zero disables
// periodic refresh.
func WithRefreshInterval(d time.Duration) ViewOption {
	return func(s *viewSettings) { s.refreshInterval = d }
}

// WithConfig applies loaded configuration. Later options still override it.
func WithConfig(cfg config.Config) ViewOption {
	return func(s *viewSettings) {
		s.expiry = cfg.Expiry
		s.maxAttempts = cfg.MaxAttempts
		s.retryBackoff = cfg.RetryBackoff
		s.matchSkew = cfg.MatchSkew
		s.scrollThreshold = cfg.ScrollThreshold
	}
}

// NewView creates a view of one conversation as seen by viewerID.
func NewView(backend Backend, conversationID, viewerID string, opts ...ViewOption) *View {
	s := viewSettings{
		now:          SystemTime{},
		dispatcher:   GoroutineDispatcher,
		sleep:        time.Sleep,
		expiry:       DefaultExpiry,
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
		matchSkew:    DefaultMatchSkew,
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(&s)
	}

	registry := NewRegistry(s.gen)
	return &View{
		conversationID:  conversationID,
		viewerID:        viewerID,
		backend:         backend,
		queue:           NewMutationQueue(registry, NewMatcher(s.matchSkew), s.expiry),
		registry:        registry,
		anchor:          scroll.NewAnchor(s.scrollThreshold),
		events:          newEventQueue(),
		dispatcher:      s.dispatcher,
		now:             s.now,
		sleep:           s.sleep,
		metrics:         s.metrics,
		maxAttempts:     s.maxAttempts,
		retryBackoff:    s.retryBackoff,
		tickInterval:    s.tickInterval,
		refreshInterval: s.refreshInterval,
		revision:        1,
	}
}

// ConversationID returns the conversation this view shows.
func (v *View) ConversationID() string { return v.conversationID }

// SendMessage posts text to the conversation. The placeholder is visible in
// Timeline before this returns.
func (v *View) SendMessage(ctx context.Context, text string) (EnqueueResult, error) {
	return v.submit(ctx, Mutation{Kind: model.KindSendMessage, Payload: model.Payload{Body: text}})
}

// ToggleReaction flips the viewer's reaction on a post as currently shown.
// Toggling again while the first request is pending cancels it.
func (v *View) ToggleReaction(ctx context.Context, postID string) (EnqueueResult, error) {
	v.mu.Lock()
	desired := !ReactionView(v.snapshot, v.queue.Unresolved(), postID).IsSelectedByViewer
	v.mu.Unlock()
	return v.submit(ctx, Mutation{Kind: model.KindReact, TargetID: postID, Payload: model.Payload{On: desired}})
}

// CastVote votes for optionID on a poll.
func (v *View) CastVote(ctx context.Context, pollID, optionID string) (EnqueueResult, error) {
	return v.submit(ctx, Mutation{Kind: model.KindVote, TargetID: pollID, Payload: model.Payload{OptionID: optionID}})
}

// SetPinned pins or unpins a post.
func (v *View) SetPinned(ctx context.Context, postID string, pinned bool) (EnqueueResult, error) {
	return v.submit(ctx, Mutation{Kind: model.KindPin, TargetID: postID, Payload: model.Payload{On: pinned}})
}

// Delete removes one of the viewer's messages.
func (v *View) Delete(ctx context.Context, messageID string) (EnqueueResult, error) {
	return v.submit(ctx, Mutation{Kind: model.KindDelete, TargetID: messageID})
}

func (v *View) submit(ctx context.Context, m Mutation) (EnqueueResult, error) {
	res, err := v.enqueue(m)
	if err == nil && res.Dispatch {
		v.dispatch(ctx, res.Intent)
	}
	return res, err
}

// enqueue validates m and adds it to the queue as the viewer's action.
func (v *View) enqueue(m Mutation) (EnqueueResult, error) {
	payload := m.Payload
	payload.AuthorID = v.viewerID
	target := m.TargetID

	switch m.Kind {
	case model.KindSendMessage:
		if strings.TrimSpace(payload.Body) == "" {
			return EnqueueResult{}, NewInvalidIntentError(m.Kind, v.conversationID, "message body is empty")
		}
		target = v.conversationID
	case model.KindVote:
		if payload.OptionID == "" {
			return EnqueueResult{}, NewInvalidIntentError(m.Kind, target, "option id is required")
		}
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return EnqueueResult{}, errViewClosed
	}
	if m.Kind == model.KindReact && ReactionView(v.snapshot, v.queue.Unresolved(), target).IsSelectedByViewer == payload.On {
		// the backend only toggles; already showing the desired state
		v.mu.Unlock()
		return EnqueueResult{}, nil
	}
	res, err := v.queue.Enqueue(m.Kind, target, payload, v.now.Now())
	if err != nil {
		v.mu.Unlock()
		return EnqueueResult{}, err
	}
	if res.Dispatch || res.Cancelled {
		v.revision++
	}
	v.mu.Unlock()

	switch {
	case res.Cancelled:
		v.metrics.IntentResolved(string(m.Kind), metrics.OutcomeCancelled)
		slog.Debug("intent cancelled by correction",
			"correlation_id", res.Intent.CorrelationID,
			"kind", string(m.Kind),
			"target_id", target,
		)
	case res.Dispatch:
		v.metrics.IntentEnqueued(string(m.Kind))
		slog.Debug("intent enqueued",
			"correlation_id", res.Intent.CorrelationID,
			"kind", string(m.Kind),
			"target_id", target,
			"seq", res.Intent.Seq,
		)
	}
	return res, nil
}

// Cancel withdraws a pending intent. Its response is ignored when it
// arrives.
func (v *View) Cancel(correlationID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errViewClosed
	}
	i, err := v.queue.Cancel(correlationID)
	if err != nil {
		return err
	}
	v.revision++
	v.metrics.IntentResolved(string(i.Kind), metrics.OutcomeCancelled)
	return nil
}

// Dismiss removes a failure the user has acknowledged.
func (v *View) Dismiss(correlationID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	i, ok := v.queue.Get(correlationID)
	if err := v.queue.Dismiss(correlationID); err != nil {
		return err
	}
	v.revision++
	if ok {
		v.metrics.IntentResolved(string(i.Kind), metrics.OutcomeDismissed)
	}
	return nil
}

// Refresh fetches an authoritative snapshot and applies it.
func (v *View) Refresh(ctx context.Context) error {
	if v.isClosed() {
		return errViewClosed
	}
	snap, err := v.backend.Snapshot(ctx, v.conversationID)
	if err != nil {
		slog.Warn("refresh failed", "conversation_id", v.conversationID, "error", err)
		return fmt.Errorf("refresh %s: %w", v.conversationID, err)
	}
	v.Apply(snap)
	return nil
}

// Apply replaces confirmed state with snap and reconciles every intent
// against it. Reverted intents are cleared; their drafts survive.
func (v *View) Apply(snap model.Snapshot) []Match {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	return v.applySnapshot(snap)
}

func (v *View) applySnapshot(snap model.Snapshot) []Match {
	v.snapshot = snap
	matched := v.queue.ReapPending(snap, v.now.Now())
	for _, m := range matched {
		v.metrics.IntentResolved(string(m.Intent.Kind), metrics.OutcomeEvidence)
		slog.Debug("intent reconciled",
			"correlation_id", m.Intent.CorrelationID,
			"record_id", m.RecordID,
			"rule", string(m.Rule),
		)
	}
	v.queue.ClearReverted()
	v.revision++
	return matched
}

// Tick expires intents that outlived their window. Their requests are not
// cancelled; a late success still lands.
func (v *View) Tick() []model.Intent {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	expired := v.queue.Expire(v.now.Now())
	for _, i := range expired {
		v.metrics.IntentResolved(string(i.Kind), metrics.OutcomeExpired)
		slog.Info("intent expired",
			"correlation_id", i.CorrelationID,
			"kind", string(i.Kind),
			"target_id", i.TargetID,
			"attempts", i.Attempts,
		)
	}
	if len(expired) > 0 {
		v.revision++
	}
	return expired
}

// Flush applies every queued event and returns how many were processed.
// Used instead of Run by synchronous callers.
func (v *View) Flush() int {
	n := 0
	for {
		batch := v.events.Drain()
		if len(batch) == 0 {
			return n
		}
		for _, ev := range batch {
			v.processEvent(ev)
		}
		n += len(batch)
	}
}

// Wait blocks until every dispatched delivery has produced its response.
func (v *View) Wait() {
	v.inflight.Wait()
}

// Run is the single-writer loop. It applies responses and snapshots in
// arrival order, expires intents on every tick and, if configured, fetches
// snapshots periodically. Blocks until ctx is cancelled or Close is called.
func (v *View) Run(ctx context.Context) error {
	slog.Info("view starting", "conversation_id", v.conversationID)

	tick := time.NewTicker(v.tickInterval)
	defer tick.Stop()

	var refresh <-chan time.Time
	if v.refreshInterval > 0 {
		t := time.NewTicker(v.refreshInterval)
		defer t.Stop()
		refresh = t.C
	}

	for {
		if ev, ok := v.events.Pop(); ok {
			v.processEvent(ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("view stopping: context cancelled", "conversation_id", v.conversationID)
			return ctx.Err()

		case <-tick.C:
			v.Tick()

		case <-refresh:
			v.fetchAsync(ctx)

		case <-v.events.Ready():
			if v.isClosed() {
				slog.Info("view stopping: closed", "conversation_id", v.conversationID)
				return nil
			}
		}
	}
}

// fetchAsync requests a snapshot off the loop; it arrives as an event.
func (v *View) fetchAsync(ctx context.Context) {
	v.dispatcher.Go(func() {
		snap, err := v.backend.Snapshot(ctx, v.conversationID)
		if err != nil {
			slog.Warn("periodic refresh failed", "conversation_id", v.conversationID, "error", err)
			return
		}
		v.events.Push(Event{Type: EventTypeSnapshot, Snapshot: &snap})
	})
}

// Close stops reconciliation. In-flight requests keep running; their
// responses are dropped.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	slog.Debug("view closed",
		"conversation_id", v.conversationID,
		"dropped_events", v.events.Len(),
		"coalesced_snapshots", v.events.Coalesced(),
	)
	v.events.Close()
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *View) processEvent(ev Event) {
	var err error
	switch ev.Type {
	case EventTypeResponse:
		if ev.Response == nil {
			err = fmt.Errorf("response event missing response data")
			break
		}
		err = v.applyResponse(*ev.Response)
	case EventTypeSnapshot:
		if ev.Snapshot == nil {
			err = fmt.Errorf("snapshot event missing snapshot data")
			break
		}
		v.Apply(*ev.Snapshot)
	default:
		err = fmt.Errorf("unknown event type: %d", ev.Type)
	}
	if err != nil {
		slog.Error("event processing failed",
			"conversation_id", v.conversationID,
			"event_type", int(ev.Type),
			"error", err,
		)
	}
}

// applyResponse resolves the intent, folds any authoritative state the
// response carried into the snapshot, and reconciles. Responses for
// cancelled intents change nothing.
func (v *View) applyResponse(resp Response) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}

	tr, err := v.queue.Resolve(resp.CorrelationID, resp.Outcome)
	if err != nil {
		if IsUnknownCorrelation(err) {
			// already reconciled from a snapshot or dismissed
			slog.Debug("response for settled intent", "correlation_id", resp.CorrelationID)
			return nil
		}
		return fmt.Errorf("resolve %s: %w", resp.CorrelationID, err)
	}

	switch tr {
	case TransitionConfirmed, TransitionRemoved:
		v.metrics.IntentResolved(string(resp.Kind), metrics.OutcomeConfirmed)
	case TransitionReverted:
		v.metrics.IntentResolved(string(resp.Kind), metrics.OutcomeRejected)
		slog.Info("intent rejected",
			"correlation_id", resp.CorrelationID,
			"kind", string(resp.Kind),
			"error", resp.Outcome.Err,
		)
	case TransitionRetained:
		slog.Debug("intent left pending",
			"correlation_id", resp.CorrelationID,
			"error", resp.Outcome.Err,
		)
	case TransitionIgnored:
		// the server state it carries arrives with the next snapshot
		slog.Debug("response for cancelled intent ignored", "correlation_id", resp.CorrelationID)
		return nil
	}

	if resp.Outcome.Err == nil {
		v.snapshot = withOutcome(v.snapshot, resp)
	}
	v.queue.ReapPending(v.snapshot, v.now.Now())
	v.revision++
	return nil
}

// withOutcome folds the state a successful response returned into snap.
func withOutcome(snap model.Snapshot, resp Response) model.Snapshot {
	out := resp.Outcome
	switch resp.Kind {
	case model.KindReact:
		if out.Reaction != nil {
			st := *out.Reaction
			st.TargetID = resp.TargetID
			snap = snap.WithReaction(st)
		}
	case model.KindVote:
		if out.Poll != nil {
			snap = snap.WithPoll(resp.TargetID, out.Poll)
		}
	case model.KindPin:
		if out.Pin != nil {
			st := *out.Pin
			st.TargetID = resp.TargetID
			snap = snap.WithPin(st)
		}
	case model.KindDelete:
		msgs := slices.Clone(snap.Messages)
		for k := range msgs {
			if msgs[k].ID == resp.TargetID {
				msgs[k].Deleted = true
			}
		}
		snap.Messages = msgs
	}
	return snap
}

// Timeline returns the merged, ordered entries. The result is memoized
// until the view changes.
func (v *View) Timeline() []model.TimelineEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cached == nil || v.cacheRev != v.revision {
		v.cached = v.queue.Timeline(v.snapshot.Messages)
		v.cacheRev = v.revision
	}
	return slices.Clone(v.cached)
}

// Reaction returns the viewer's reaction state on a post, optimistic
// changes included.
func (v *View) Reaction(postID string) model.ReactionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return ReactionView(v.snapshot, v.queue.Unresolved(), postID)
}

// Poll returns a poll's options, optimistic vote included.
func (v *View) Poll(pollID string) []model.PollOption {
	v.mu.Lock()
	defer v.mu.Unlock()
	return PollView(v.snapshot, v.queue.Unresolved(), pollID)
}

// Pinned reports whether a post is pinned, optimistic change included.
func (v *View) Pinned(postID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return PinView(v.snapshot, v.queue.Unresolved(), postID)
}

// Failures returns reverted intents awaiting dismissal.
func (v *View) Failures() []model.Intent {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.Failures()
}

// Pending returns unresolved intents in seq order.
func (v *View) Pending() []model.Intent {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.Unresolved()
}

// Intent returns the tracked intent with the given correlation id.
func (v *View) Intent(correlationID string) (model.Intent, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.Get(correlationID)
}

// Draft returns the compose input restored after a failed send.
func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.Draft(v.conversationID)
}

// TakeDraft returns and clears the restored compose input.
func (v *View) TakeDraft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.TakeDraft(v.conversationID)
}

// Snapshot returns the current confirmed state.
func (v *View) Snapshot() model.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot
}

// Scrolled records a viewer scroll.
func (v *View) Scrolled(offset, viewport, content float64) scroll.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.anchor.OnScroll(offset, viewport, content)
}

// Measured records the rendered content height after a timeline change
// and returns what the UI should do with the viewport.
func (v *View) Measured(content float64) scroll.Command {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.anchor.OnContentChange(content)
}

// IsPinnedToLatest reports whether new entries follow automatically.
func (v *View) IsPinnedToLatest() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.anchor.IsPinnedToLatest()
}

// ServerID returns the record id the server echoed for a correlation id,
// while the intent is still tracked.
func (v *View) ServerID(correlationID string) (string, bool) {
	return v.registry.ServerID(correlationID)
}
