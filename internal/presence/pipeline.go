package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/roach88/optisync/internal/config"
	"github.com/roach88/optisync/internal/metrics"
	"github.com/roach88/optisync/internal/model"
)

// Sources are the independently refreshing backend queries presence is
// built from.
type Sources interface {
	Directory(ctx context.Context) ([]model.Member, error)
	ListActiveSessions(ctx context.Context, profileIDs []string) ([]model.Session, error)
	ListRoomAssignments(ctx context.Context, sessionIDs []string) ([]model.RoomAssignment, error)
	ResolveTeamSlugs(ctx context.Context, teamIDs []string) ([]model.TeamSlug, error)
}

// Source names one input of the pipeline.
type Source string

const (
	SourceDirectory Source = "directory"
	SourceSessions  Source = "sessions"
	SourceRooms     Source = "rooms"
	SourceTeams     Source = "teams"
)

// downstream lists the sources whose query depends on each source's result.
var downstream = map[Source][]Source{
	SourceDirectory: {SourceSessions},
	SourceSessions:  {SourceRooms},
	SourceRooms:     {SourceTeams},
}

const (
	// DefaultInterval is the refresh tick.
	DefaultInterval = 15 * time.Second

	// DefaultSessionBatch is how many profile ids go into one session query.
	DefaultSessionBatch = 50

	maxConcurrentBatches = 4
)

// Pipeline keeps a presence list current. A tick refreshes every source;
// Invalidate refreshes one source and whatever depends on it. Refreshes
// triggered by invalidation are throttled. The aggregation is only recomputed
// when the joined inputs actually changed.
//
// A failing source never blocks the list: failed sessions yield an empty
// list, failed rooms or slugs yield fallback destinations. Source queries run
// without the lock, so Presence answers while a fetch is in flight.
type Pipeline struct {
	mu     sync.Mutex
	flight singleflight.Group // one sync at a time

	src     Sources
	opts    Options
	batch   int
	limiter *rate.Limiter
	now     func() time.Time
	metrics *metrics.Metrics

	dirty       map[Source]bool
	inputs      Inputs
	fingerprint string
	entries     []model.PresenceEntry
	recomputes  int

	wake chan struct{}
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithOptions sets aggregation options.
func WithOptions(o Options) PipelineOption {
	return func(p *Pipeline) { p.opts = o }
}

// WithSessionBatch sets how many profile ids go into one session query.
func WithSessionBatch(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batch = n
		}
	}
}

// WithThrottle allows burst invalidation-driven refreshes, then one per
// every.
func WithThrottle(every time.Duration, burst int) PipelineOption {
	return func(p *Pipeline) {
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// WithClock sets the time source used by the throttle.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics records source fetches and list size.
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// FromConfig translates presence settings into pipeline options.
func FromConfig(cfg config.Presence) []PipelineOption {
	return []PipelineOption{
		WithOptions(Options{
			Limit:              cfg.Limit,
			GroupRoute:         cfg.GroupRoute,
			AvatarPlaceholders: cfg.AvatarPlaceholders,
		}),
		WithSessionBatch(cfg.SessionBatch),
		WithThrottle(cfg.Interval/time.Duration(max(cfg.Burst, 1)), cfg.Burst),
	}
}

// NewPipeline creates a pipeline with every source dirty.
func NewPipeline(src Sources, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		src:     src,
		batch:   DefaultSessionBatch,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		now:     time.Now,
		dirty: map[Source]bool{
			SourceDirectory: true,
			SourceSessions:  true,
			SourceRooms:     true,
			SourceTeams:     true,
		},
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invalidate marks a source, and everything downstream of it, stale.
func (p *Pipeline) Invalidate(s Source) {
	p.mu.Lock()
	markDirty(p.dirty, s)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func markDirty(dirty map[Source]bool, s Source) {
	dirty[s] = true
	for _, d := range downstream[s] {
		markDirty(dirty, d)
	}
}

// Refresh re-queries every source and returns the new list. This is the
// tick path and is not throttled. A call made while another sync is running
// joins it; sources it marked stale stay stale for the next one.
func (p *Pipeline) Refresh(ctx context.Context) ([]model.PresenceEntry, error) {
	p.mu.Lock()
	markDirty(p.dirty, SourceDirectory)
	p.mu.Unlock()
	return p.shared(ctx)
}

// Sync re-queries stale sources, if the throttle allows, and returns the
// current list. A throttled call returns the previous list.
func (p *Pipeline) Sync(ctx context.Context) ([]model.PresenceEntry, error) {
	p.mu.Lock()
	stale := p.anyDirty()
	allowed := stale && p.limiter.AllowN(p.now(), 1)
	current := slices.Clone(p.entries)
	p.mu.Unlock()

	if !stale {
		return current, nil
	}
	if !allowed {
		slog.Debug("presence sync throttled")
		return current, nil
	}
	return p.shared(ctx)
}

func (p *Pipeline) shared(ctx context.Context) ([]model.PresenceEntry, error) {
	v, err, _ := p.flight.Do("sync", func() (any, error) {
		return p.sync(ctx)
	})
	entries, _ := v.([]model.PresenceEntry)
	return slices.Clone(entries), err
}

// Presence returns the last computed list.
func (p *Pipeline) Presence() []model.PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.entries)
}

// Recomputes returns how many times the aggregation actually ran.
func (p *Pipeline) Recomputes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recomputes
}

// Run refreshes every interval and syncs on invalidation until ctx is done.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	if _, err := p.Refresh(ctx); err != nil {
		slog.Warn("presence refresh degraded", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if _, err := p.Refresh(ctx); err != nil {
				slog.Warn("presence refresh degraded", "error", err)
			}
		case <-p.wake:
			if _, err := p.Sync(ctx); err != nil {
				slog.Warn("presence sync degraded", "error", err)
			}
		}
	}
}

// cascade marks everything downstream of a refetched source stale.
func cascade(dirty map[Source]bool, s Source) {
	for _, d := range downstream[s] {
		markDirty(dirty, d)
	}
}

func (p *Pipeline) anyDirty() bool {
	for _, d := range p.dirty {
		if d {
			return true
		}
	}
	return false
}

// sync fetches dirty sources in dependency order and re-aggregates if the
// joined inputs changed. The stale set and inputs are taken under p.mu, the
// queries run unlocked, and the results are committed under p.mu again.
// Sources invalidated meanwhile stay stale. Callers go through p.flight.
func (p *Pipeline) sync(ctx context.Context) ([]model.PresenceEntry, error) {
	p.mu.Lock()
	dirty := p.dirty
	p.dirty = make(map[Source]bool, len(dirty))
	in := p.inputs
	p.mu.Unlock()

	var errs []error
	fail := func(s Source, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", s, err))
		slog.Warn("presence source failed", "source", string(s), "error", err)
	}

	if dirty[SourceDirectory] {
		members, err := p.src.Directory(ctx)
		p.metrics.PresenceFetched(string(SourceDirectory), err)
		if err != nil {
			fail(SourceDirectory, err)
			// cannot scope sessions without a directory
			members = nil
		} else {
			dirty[SourceDirectory] = false
		}
		in.Directory = members
		cascade(dirty, SourceDirectory)
	}

	if dirty[SourceSessions] {
		sessions, err := p.fetchSessions(ctx, profileIDs(in.Directory))
		p.metrics.PresenceFetched(string(SourceSessions), err)
		if err != nil {
			fail(SourceSessions, err)
			sessions = nil
		} else {
			dirty[SourceSessions] = false
		}
		in.Sessions = sessions
		cascade(dirty, SourceSessions)
	}

	if dirty[SourceRooms] {
		var rooms []model.RoomAssignment
		ids := groupSessionIDs(in.Sessions)
		var err error
		if len(ids) > 0 {
			rooms, err = p.src.ListRoomAssignments(ctx, ids)
			p.metrics.PresenceFetched(string(SourceRooms), err)
		}
		if err != nil {
			fail(SourceRooms, err)
			rooms = nil
		} else {
			dirty[SourceRooms] = false
		}
		in.Rooms = rooms
		cascade(dirty, SourceRooms)
	}

	if dirty[SourceTeams] {
		var teams []model.TeamSlug
		ids := teamIDs(in.Rooms)
		var err error
		if len(ids) > 0 {
			teams, err = p.src.ResolveTeamSlugs(ctx, ids)
			p.metrics.PresenceFetched(string(SourceTeams), err)
		}
		if err != nil {
			fail(SourceTeams, err)
			teams = nil
		} else {
			dirty[SourceTeams] = false
		}
		in.Teams = teams
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for s, d := range dirty {
		if d {
			p.dirty[s] = true
		}
	}
	p.inputs = in

	fp, err := inputFingerprint(in)
	if err != nil {
		return slices.Clone(p.entries), fmt.Errorf("fingerprint presence inputs: %w", err)
	}
	if fp != p.fingerprint || p.entries == nil {
		p.entries = Aggregate(in, p.opts)
		p.fingerprint = fp
		p.recomputes++
		p.metrics.PresenceSize(len(p.entries))
	}
	return slices.Clone(p.entries), errors.Join(errs...)
}

// fetchSessions queries sessions in batches of profile ids, concurrently.
// Any failed batch fails the whole source.
func (p *Pipeline) fetchSessions(ctx context.Context, ids []string) ([]model.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var batches [][]string
	for start := 0; start < len(ids); start += p.batch {
		end := min(start+p.batch, len(ids))
		batches = append(batches, ids[start:end])
	}

	results := make([][]model.Session, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for i, b := range batches {
		g.Go(func() error {
			sessions, err := p.src.ListActiveSessions(gctx, b)
			if err != nil {
				return err
			}
			results[i] = sessions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

func profileIDs(members []model.Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.ProfileID != "" {
			ids = append(ids, m.ProfileID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func groupSessionIDs(sessions []model.Session) []string {
	var ids []string
	for _, s := range sessions {
		if s.Mode == model.ModeGroup && s.SessionID != "" {
			ids = append(ids, s.SessionID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func teamIDs(rooms []model.RoomAssignment) []string {
	var ids []string
	for _, r := range rooms {
		if r.TeamID != "" {
			ids = append(ids, r.TeamID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// inputFingerprint hashes the joined inputs independent of row order.
func inputFingerprint(in Inputs) (string, error) {
	rows := func(n int, row func(int) string) []any {
		out := make([]string, n)
		for i := range out {
			out[i] = row(i)
		}
		slices.Sort(out)
		anys := make([]any, n)
		for i, s := range out {
			anys[i] = s
		}
		return anys
	}
	return model.Fingerprint(map[string]any{
		"directory": rows(len(in.Directory), func(i int) string {
			m := in.Directory[i]
			return m.ProfileID + "\x00" + m.Username + "\x00" + m.DisplayName + "\x00" + m.AvatarURL
		}),
		"sessions": rows(len(in.Sessions), func(i int) string {
			s := in.Sessions[i]
			return s.SessionID + "\x00" + s.ProfileID + "\x00" + string(s.Mode) + "\x00" + s.StartedAt.UTC().Format(time.RFC3339Nano)
		}),
		"rooms": rows(len(in.Rooms), func(i int) string {
			return in.Rooms[i].SessionID + "\x00" + in.Rooms[i].TeamID
		}),
		"teams": rows(len(in.Teams), func(i int) string {
			return in.Teams[i].TeamID + "\x00" + in.Teams[i].Slug
		}),
	})
}
