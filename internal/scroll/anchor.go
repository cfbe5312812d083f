// Package scroll decides whether a growing timeline should follow new
// content or preserve the reader's position.
package scroll

// DefaultThreshold is the distance from the bottom, in pixels, within which
// the viewer counts as following the latest content.
const DefaultThreshold = 48.0

// State is the anchoring state.
type State int

const (
	// PinnedToLatest: new content scrolls into view automatically.
	PinnedToLatest State = iota
	// FreeScroll: new content arrives without moving the viewport.
	FreeScroll
)

func (s State) String() string {
	if s == PinnedToLatest {
		return "pinned-to-latest"
	}
	return "free-scroll"
}

// Command tells the UI what to do after a content change.
type Command struct {
	// ScrollTo is the offset to scroll to; meaningful only if Scroll is true.
	ScrollTo float64
	Scroll   bool
}

// Anchor is the two-state scroll anchoring controller. It starts pinned.
//
// Anchor is not safe for concurrent use; its owner serializes calls.
type Anchor struct {
	threshold float64
	state     State

	offset   float64
	viewport float64
	content  float64
}

// NewAnchor creates a pinned controller. threshold <= 0 means
// DefaultThreshold.
func NewAnchor(threshold float64) *Anchor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Anchor{threshold: threshold, state: PinnedToLatest}
}

// OnScroll records a viewer scroll and re-evaluates the state: beyond the
// threshold from the bottom is free scrolling, within it is pinned.
func (a *Anchor) OnScroll(offset, viewport, content float64) State {
	a.offset, a.viewport, a.content = offset, viewport, content
	a.evaluate()
	return a.state
}

// OnContentChange records a new content height. While pinned the returned
// command scrolls to the new bottom; while free the viewport stays where it
// is and the state is re-evaluated, since shrinking content can bring the
// reader back within the threshold.
func (a *Anchor) OnContentChange(content float64) Command {
	a.content = content
	if a.state == PinnedToLatest {
		a.offset = a.bottom()
		return Command{ScrollTo: a.offset, Scroll: true}
	}
	a.evaluate()
	return Command{}
}

// State returns the current state.
func (a *Anchor) State() State { return a.state }

// IsPinnedToLatest reports whether new content follows automatically.
func (a *Anchor) IsPinnedToLatest() bool { return a.state == PinnedToLatest }

// DistanceFromBottom returns how far the viewport's bottom edge is from the
// end of the content.
func (a *Anchor) DistanceFromBottom() float64 {
	d := a.content - (a.offset + a.viewport)
	if d < 0 {
		return 0
	}
	return d
}

func (a *Anchor) bottom() float64 {
	b := a.content - a.viewport
	if b < 0 {
		return 0
	}
	return b
}

func (a *Anchor) evaluate() {
	if a.DistanceFromBottom() > a.threshold {
		a.state = FreeScroll
	} else {
		a.state = PinnedToLatest
	}
}
