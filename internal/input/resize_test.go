package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEdgeAtClassification(t *testing.T) {
	const w, h, border = 800, 600, 10

	tests := []struct {
		name string
		x, y int32
		want Edge
	}{
		{"center", 400, 300, EdgeNone},
		{"left", 5, 300, EdgeLeft},
		{"right", 795, 300, EdgeRight},
		{"top", 400, 5, EdgeTop},
		{"bottom", 400, 595, EdgeBottom},
		{"top-left", 5, 5, EdgeLeft | EdgeTop},
		{"top-right", 795, 5, EdgeRight | EdgeTop},
		{"bottom-left", 5, 595, EdgeLeft | EdgeBottom},
		{"bottom-right", 795, 595, EdgeRight | EdgeBottom},
		{"just inside border", 10, 300, EdgeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EdgeAt(tt.x, tt.y, w, h, border))
		})
	}
}

func TestXdgEdgeValues(t *testing.T) {
	assert.Equal(t, uint32(0), XdgEdge(EdgeNone))
	assert.Equal(t, uint32(1), XdgEdge(EdgeTop))
	assert.Equal(t, uint32(2), XdgEdge(EdgeBottom))
	assert.Equal(t, uint32(4), XdgEdge(EdgeLeft))
	assert.Equal(t, uint32(8), XdgEdge(EdgeRight))
	assert.Equal(t, uint32(5), XdgEdge(EdgeTop|EdgeLeft))
	assert.Equal(t, uint32(6), XdgEdge(EdgeBottom|EdgeLeft))
	assert.Equal(t, uint32(9), XdgEdge(EdgeTop|EdgeRight))
	assert.Equal(t, uint32(10), XdgEdge(EdgeBottom|EdgeRight))
}

func TestResizeStateMachine(t *testing.T) {
	r := NewResizeCoordinator(10)
	assert.Equal(t, ResizeIdle, r.State())

	// Press away from any edge: no transition.
	r.PointerMoved(400, 300, 800, 600)
	_, started := r.ButtonPressed()
	assert.False(t, started)
	assert.Equal(t, ResizeIdle, r.State())

	// Hovering an edge, then pressing, starts a resize.
	edge := r.PointerMoved(5, 300, 800, 600)
	assert.Equal(t, EdgeLeft, edge)
	assert.Equal(t, ResizeEdgeHover, r.State())

	edge, started = r.ButtonPressed()
	assert.True(t, started)
	assert.Equal(t, EdgeLeft, edge)
	assert.Equal(t, ResizeActive, r.State())

	// Motion during an active resize does not reclassify.
	assert.Equal(t, EdgeLeft, r.PointerMoved(400, 300, 800, 600))
	assert.Equal(t, ResizeActive, r.State())

	// Release always lands in Idle.
	r.ButtonReleased()
	assert.Equal(t, ResizeIdle, r.State())
	assert.Equal(t, EdgeNone, r.Edge())
}

func TestReleaseFromAnyStateLandsIdle(t *testing.T) {
	for _, state := range []ResizeState{ResizeIdle, ResizeEdgeHover, ResizeActive} {
		r := NewResizeCoordinator(10)
		r.state = state
		r.edge = EdgeRight
		r.ButtonReleased()
		assert.Equal(t, ResizeIdle, r.State(), "release from %v", state)
	}
}

func TestShouldApplyDebounce(t *testing.T) {
	r := NewResizeCoordinator(10)
	current := time.Unix(0, 0)
	r.now = func() time.Time { return current }

	// First change applies.
	assert.True(t, r.ShouldApply(1024, 768, 800, 600))

	// Within the debounce interval: rejected.
	current = current.Add(5 * time.Millisecond)
	assert.False(t, r.ShouldApply(1100, 800, 1024, 768))

	// Past the interval: applies again.
	current = current.Add(20 * time.Millisecond)
	assert.True(t, r.ShouldApply(1100, 800, 1024, 768))
}

func TestShouldApplyRejectsInvalid(t *testing.T) {
	r := NewResizeCoordinator(10)

	assert.False(t, r.ShouldApply(0, 600, 800, 600), "zero width")
	assert.False(t, r.ShouldApply(800, -1, 800, 600), "negative height")
	assert.False(t, r.ShouldApply(9000, 600, 800, 600), "above ceiling")
	assert.False(t, r.ShouldApply(800, 600, 800, 600), "no-op change")
}

func TestMapToDeviceBoundaries(t *testing.T) {
	tests := []struct {
		name         string
		x, y, w, h   int32
		wantX, wantY uint16
	}{
		{"origin", 0, 0, 1920, 1080, 0, 0},
		{"far corner", 1919, 1079, 1920, 1080, 4095, 4095},
		{"clamped negative", -50, -50, 1920, 1080, 0, 0},
		{"clamped overflow", 5000, 5000, 1920, 1080, 4095, 4095},
		{"small window corner", 639, 479, 640, 480, 4095, 4095},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dx, dy := MapToDevice(tt.x, tt.y, tt.w, tt.h)
			assert.Equal(t, tt.wantX, dx)
			assert.Equal(t, tt.wantY, dy)
		})
	}
}

func TestMapToDeviceMidpointMonotonic(t *testing.T) {
	// The mapping must be monotonic across the window.
	var prev uint16
	for x := int32(0); x < 800; x += 50 {
		dx, _ := MapToDevice(x, 0, 800, 600)
		assert.GreaterOrEqual(t, dx, prev)
		prev = dx
	}
}

func TestMapToDeviceDegenerateWindow(t *testing.T) {
	dx, dy := MapToDevice(10, 10, 1, 1)
	assert.Equal(t, uint16(0), dx)
	assert.Equal(t, uint16(0), dy)
}
