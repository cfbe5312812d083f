package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/optisync/internal/model"
)

// AssertionError is an expectation that did not hold.
type AssertionError struct {
	What     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.What, e.Expected, e.Actual)
}

// check evaluates an expectation against the current view and returns one
// message per failed field.
func (h *Harness) check(want Expect) []string {
	var errs []string
	fail := func(what string, expected, actual any) {
		errs = append(errs, (&AssertionError{
			What:     what,
			Expected: fmt.Sprintf("%v", expected),
			Actual:   fmt.Sprintf("%v", actual),
		}).Error())
	}
	list := func(what string, expected, actual []string) {
		if !slices.Equal(expected, actual) {
			fail(what, quote(expected), quote(actual))
		}
	}

	if want.Timeline != nil {
		list("timeline", want.Timeline, FormatTimeline(h.view.Timeline()))
	}
	if want.Failures != nil {
		list("failures", want.Failures, correlationIDs(h.view.Failures()))
	}
	if want.Pending != nil {
		if got := len(h.view.Pending()); got != *want.Pending {
			fail("pending", *want.Pending, got)
		}
	}
	for _, cid := range sortedKeys(want.Status) {
		got := "gone"
		if i, ok := h.view.Intent(cid); ok {
			got = string(i.Status)
		}
		if got != want.Status[cid] {
			fail("status of "+cid, want.Status[cid], got)
		}
	}
	if want.Draft != nil {
		if got := h.view.Draft(); got != *want.Draft {
			fail("draft", fmt.Sprintf("%q", *want.Draft), fmt.Sprintf("%q", got))
		}
	}
	if r := want.Reaction; r != nil {
		got := h.view.Reaction(r.Post)
		if got.IsSelectedByViewer != r.Selected || got.AggregateCount != r.Count {
			fail("reaction on "+r.Post,
				fmt.Sprintf("selected=%t count=%d", r.Selected, r.Count),
				fmt.Sprintf("selected=%t count=%d", got.IsSelectedByViewer, got.AggregateCount))
		}
	}
	if p := want.Poll; p != nil {
		list("poll "+p.Poll, p.Options, FormatPoll(h.view.Poll(p.Poll)))
	}
	if p := want.Pinned; p != nil {
		if got := h.view.Pinned(p.Post); got != p.Pinned {
			fail("pinned "+p.Post, p.Pinned, got)
		}
	}
	if want.Presence != nil {
		list("presence", want.Presence, FormatPresence(h.pipeline.Presence()))
	}
	if want.Calls != nil {
		if got := h.net.callCount(); got != *want.Calls {
			fail("backend calls", *want.Calls, got)
		}
	}
	return errs
}

// FormatTimeline renders entries as "tag id body".
func FormatTimeline(entries []model.TimelineEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("%s %s %s", e.Tag, e.ID, e.Body))
	}
	return out
}

// FormatPoll renders options as "option count", with "*" appended to the
// viewer's selection.
func FormatPoll(opts []model.PollOption) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		s := fmt.Sprintf("%s %d", o.OptionID, o.VoteCount)
		if o.IsSelectedByViewer {
			s += "*"
		}
		out = append(out, s)
	}
	return out
}

// FormatPresence renders entries as "session destination".
func FormatPresence(entries []model.PresenceEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.SessionID+" "+e.Destination)
	}
	return out
}

func quote(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(q, ", ") + "]"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
