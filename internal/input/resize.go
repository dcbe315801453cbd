package input

import (
	"sync"
	"time"
)

// Edge is a bitset of window edges near the pointer.
type Edge uint8

const (
	EdgeNone   Edge = 0
	EdgeLeft   Edge = 1 << 0
	EdgeRight  Edge = 1 << 1
	EdgeTop    Edge = 1 << 2
	EdgeBottom Edge = 1 << 3
)

// ResizeState is the interactive-resize state machine state.
type ResizeState int

const (
	ResizeIdle ResizeState = iota
	ResizeEdgeHover
	ResizeActive
)

func (s ResizeState) String() string {
	switch s {
	case ResizeEdgeHover:
		return "edge-hover"
	case ResizeActive:
		return "resizing"
	default:
		return "idle"
	}
}

// Window size sanity ceiling; configure events past it are ignored.
const maxWindowSide = 8192

// minResizeInterval debounces compositor-driven size changes.
const minResizeInterval = 16 * time.Millisecond

// EdgeAt classifies pointer proximity to the window edges using the
// given border thickness. Diagonals are the OR of two adjacent bits.
func EdgeAt(x, y, width, height, border int32) Edge {
	var e Edge
	if x < border {
		e |= EdgeLeft
	}
	if x > width-border {
		e |= EdgeRight
	}
	if y < border {
		e |= EdgeTop
	}
	if y > height-border {
		e |= EdgeBottom
	}
	return e
}

// XdgEdge converts an edge mask to the xdg_toplevel resize-edge value.
func XdgEdge(e Edge) uint32 {
	var v uint32
	if e&EdgeTop != 0 {
		v |= 1
	}
	if e&EdgeBottom != 0 {
		v |= 2
	}
	if e&EdgeLeft != 0 {
		v |= 4
	}
	if e&EdgeRight != 0 {
		v |= 8
	}
	return v
}

// ResizeCoordinator tracks pointer proximity to window edges, drives
// the edge-resize state machine and rate-limits applied size changes.
type ResizeCoordinator struct {
	mu          sync.Mutex
	state       ResizeState
	edge        Edge
	border      int32
	lastApplied time.Time

	// now is stubbed in tests.
	now func() time.Time
}

// NewResizeCoordinator creates a coordinator with the given edge border
// thickness in pixels.
func NewResizeCoordinator(border int32) *ResizeCoordinator {
	if border <= 0 {
		border = 10
	}
	return &ResizeCoordinator{border: border, now: time.Now}
}

// State returns the current machine state.
func (r *ResizeCoordinator) State() ResizeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Edge returns the current edge mask.
func (r *ResizeCoordinator) Edge() Edge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edge
}

// PointerMoved reclassifies the pointer against the window edges. Has
// no effect while a resize is in progress; the compositor owns the
// drag.
func (r *ResizeCoordinator) PointerMoved(x, y, width, height int32) Edge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ResizeActive {
		return r.edge
	}
	r.edge = EdgeAt(x, y, width, height, r.border)
	if r.edge != EdgeNone {
		r.state = ResizeEdgeHover
	} else {
		r.state = ResizeIdle
	}
	return r.edge
}

// ButtonPressed handles a primary-button press. When the pointer is on
// an edge it transitions to Resizing and reports the mask so the caller
// can hand the drag to the compositor's resize affordance.
func (r *ResizeCoordinator) ButtonPressed() (Edge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edge == EdgeNone {
		return EdgeNone, false
	}
	r.state = ResizeActive
	return r.edge, true
}

// ButtonReleased lands in Idle from any state. A release without a
// matching press is absorbed here rather than wedging the machine.
func (r *ResizeCoordinator) ButtonReleased() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = ResizeIdle
	r.edge = EdgeNone
}

// Reset returns the machine to Idle, for window teardown.
func (r *ResizeCoordinator) Reset() {
	r.ButtonReleased()
}

// ShouldApply decides whether a compositor-provided size change is
// applied: the dimensions must be sane, the change must not be a no-op
// and at least the debounce interval must have passed since the last
// applied change.
func (r *ResizeCoordinator) ShouldApply(newW, newH, curW, curH int32) bool {
	if newW <= 0 || newH <= 0 || newW > maxWindowSide || newH > maxWindowSide {
		return false
	}
	if newW == curW && newH == curH {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastApplied) < minResizeInterval {
		return false
	}
	r.lastApplied = now
	return true
}
