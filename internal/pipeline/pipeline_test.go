package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/bnema/waykvm/internal/decode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSurface struct {
	mu      sync.Mutex
	width   int32
	height  int32
	backing []byte
	edges   []uint32
}

func (s *fakeSurface) Dispatch()      { time.Sleep(time.Millisecond) }
func (s *fakeSurface) Nudge()         {}
func (s *fakeSurface) Present() error { return nil }
func (s *fakeSurface) Closed() bool   { return false }
func (s *fakeSurface) CopyIn(fn func(pix []byte, width, height int32) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int32(len(s.backing)) != s.width*s.height*4 {
		s.backing = make([]byte, s.width*s.height*4)
	}
	return fn(s.backing, s.width, s.height)
}
func (s *fakeSurface) Size() (int32, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}
func (s *fakeSurface) Resize(w, h int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = w, h
	s.backing = nil
	return nil
}
func (s *fakeSurface) StartResize(edges uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, edges)
	return nil
}

type sinkCall struct {
	op      string
	usage   byte
	mods    byte
	buttons byte
	x, y    uint16
	steps   int32
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (f *fakeSink) record(c sinkCall) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeSink) SendKey(usage, mods byte) error {
	f.record(sinkCall{op: "key", usage: usage, mods: mods})
	return nil
}
func (f *fakeSink) SendKeyRelease() error {
	f.record(sinkCall{op: "release"})
	return nil
}
func (f *fakeSink) SendMouseAbsolute(buttons byte, x, y uint16) error {
	f.record(sinkCall{op: "abs", buttons: buttons, x: x, y: y})
	return nil
}
func (f *fakeSink) SendScroll(steps int32) error {
	f.record(sinkCall{op: "scroll", steps: steps})
	return nil
}

func newTestPipeline(sink InputSink) (*Pipeline, *fakeSurface) {
	surface := &fakeSurface{width: 800, height: 600}
	p := New(sink, 5*time.Millisecond, 10)
	p.SetSurface(surface)
	return p, surface
}

func drainAll(p *Pipeline) {
	for {
		select {
		case ev := <-p.events:
			p.dispatchEvent(ev)
		default:
			return
		}
	}
}

func TestPointerMotionMapsToDeviceSpace(t *testing.T) {
	sink := &fakeSink{}
	p, _ := newTestPipeline(sink)

	p.PointerMoved(799, 599)
	assert.True(t, p.ptrDirty)
	assert.Equal(t, uint16(4095), p.ptrX)
	assert.Equal(t, uint16(4095), p.ptrY)

	p.PointerMoved(0, 0)
	assert.Equal(t, uint16(0), p.ptrX)
	assert.Equal(t, uint16(0), p.ptrY)
}

func TestButtonPressQueuesOrderedReport(t *testing.T) {
	sink := &fakeSink{}
	p, _ := newTestPipeline(sink)

	p.PointerMoved(400, 300)
	p.PointerButton(btnLeft, true, 1)
	p.PointerButton(btnLeft, false, 2)
	drainAll(p)

	require.Len(t, sink.calls, 2)
	assert.Equal(t, "abs", sink.calls[0].op)
	assert.Equal(t, byte(0x01), sink.calls[0].buttons)
	assert.Equal(t, "abs", sink.calls[1].op)
	assert.Equal(t, byte(0x00), sink.calls[1].buttons)
}

func TestEdgePressStartsCompositorResize(t *testing.T) {
	sink := &fakeSink{}
	p, surface := newTestPipeline(sink)

	// Pointer on the left edge, then press: the drag is handed to the
	// compositor and no button report reaches the sink.
	p.PointerMoved(3, 300)
	p.PointerButton(btnLeft, true, 7)
	drainAll(p)

	require.Len(t, surface.edges, 1)
	assert.Equal(t, uint32(4), surface.edges[0], "xdg left edge")
	assert.Empty(t, sink.calls)
}

func TestCenterPressIsForwardedNotResized(t *testing.T) {
	sink := &fakeSink{}
	p, surface := newTestPipeline(sink)

	p.PointerMoved(400, 300)
	p.PointerButton(btnLeft, true, 7)
	drainAll(p)

	assert.Empty(t, surface.edges)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "abs", sink.calls[0].op)
}

func TestKeyEventTranslation(t *testing.T) {
	sink := &fakeSink{}
	p, _ := newTestPipeline(sink)

	const keyA = 30 // evdev KEY_A
	p.KeyEvent(keyA, true)
	p.KeyEvent(keyA, false)
	drainAll(p)

	require.Len(t, sink.calls, 2)
	assert.Equal(t, "key", sink.calls[0].op)
	assert.Equal(t, byte(0x04), sink.calls[0].usage, "HID usage for A")
	assert.Equal(t, "release", sink.calls[1].op)
}

func TestModifierHeldAcrossKeyPress(t *testing.T) {
	sink := &fakeSink{}
	p, _ := newTestPipeline(sink)

	const keyLeftShift = 42
	const keyA = 30
	p.KeyEvent(keyLeftShift, true)
	p.KeyEvent(keyA, true)
	p.KeyEvent(keyA, false)
	p.KeyEvent(keyLeftShift, false)
	drainAll(p)

	require.Len(t, sink.calls, 4)
	assert.Equal(t, byte(0x02), sink.calls[0].mods, "shift-only report")
	assert.Equal(t, byte(0x04), sink.calls[1].usage)
	assert.Equal(t, byte(0x02), sink.calls[1].mods, "shift held during A")
	assert.Equal(t, "release", sink.calls[2].op)
	assert.Equal(t, "release", sink.calls[3].op)
}

func TestUnknownKeyDropped(t *testing.T) {
	sink := &fakeSink{}
	p, _ := newTestPipeline(sink)

	p.KeyEvent(0xFFFF, true)
	drainAll(p)
	assert.Empty(t, sink.calls)
}

func TestScrollAccumulatesDetents(t *testing.T) {
	sink := &fakeSink{}
	p, _ := newTestPipeline(sink)

	// Three small motions add up to one detent.
	p.PointerAxis(4)
	p.PointerAxis(4)
	assert.Empty(t, sink.calls)
	p.PointerAxis(4)
	drainAll(p)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "scroll", sink.calls[0].op)
	assert.Equal(t, int32(-1), sink.calls[0].steps, "axis down scrolls the wheel down")
}

func TestConfigureGoesThroughDebounce(t *testing.T) {
	sink := &fakeSink{}
	p, _ := newTestPipeline(sink)

	p.Configured(1024, 768)
	w, h, ok := p.sizeReq.get()
	require.True(t, ok)
	assert.Equal(t, int32(1024), w)
	assert.Equal(t, int32(768), h)

	// Immediately after, a second change is debounced away.
	p.Configured(1100, 800)
	_, _, ok = p.sizeReq.get()
	assert.False(t, ok)

	// A same-size configure never queues.
	p.Configured(800, 600)
	_, _, ok = p.sizeReq.get()
	assert.False(t, ok)
}

// swapSurface swaps its backing slice on Resize, like the real window
// swaps shm mappings. It snapshots each replaced slice at the moment of
// the swap so a later write into it is detectable.
type swapSurface struct {
	mu      sync.Mutex
	width   int32
	height  int32
	backing []byte
	retired [][]byte
	frozen  [][]byte
}

func (s *swapSurface) Dispatch()                  {}
func (s *swapSurface) Nudge()                     {}
func (s *swapSurface) Present() error             { return nil }
func (s *swapSurface) Closed() bool               { return false }
func (s *swapSurface) StartResize(_ uint32) error { return nil }
func (s *swapSurface) Size() (int32, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *swapSurface) Resize(w, h int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backing != nil {
		snap := make([]byte, len(s.backing))
		copy(snap, s.backing)
		s.retired = append(s.retired, s.backing)
		s.frozen = append(s.frozen, snap)
	}
	s.width, s.height = w, h
	s.backing = make([]byte, int(w)*int(h)*4)
	return nil
}

func (s *swapSurface) CopyIn(fn func(pix []byte, width, height int32) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backing == nil {
		return false
	}
	return fn(s.backing, s.width, s.height)
}

func TestResizeDuringPresentLeavesOldBufferUntouched(t *testing.T) {
	surface := &swapSurface{width: 64, height: 64, backing: make([]byte, 64*64*4)}
	p := New(&fakeSink{}, time.Millisecond, 10)
	p.SetSurface(surface)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	// Present role: fill the raster and push it through the locked copy.
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := byte(i)
			p.rast.fill(func(pix []byte, _, _ int32) {
				for j := range pix {
					pix[j] = v
				}
			})
			surface.CopyIn(p.rast.copyInto)
		}
	}()

	// Event role: apply a stream of configures, each swapping the buffer.
	go func() {
		defer wg.Done()
		sizes := [][2]int32{{64, 64}, {96, 48}, {48, 96}, {128, 32}}
		for i := 0; i < 400; i++ {
			w, h := sizes[i%len(sizes)][0], sizes[i%len(sizes)][1]
			surface.Resize(w, h)
			p.rast.resize(w, h)
		}
		close(stop)
	}()

	wg.Wait()

	require.NotEmpty(t, surface.retired)
	for i := range surface.retired {
		assert.Equal(t, surface.frozen[i], surface.retired[i],
			"a copy landed in a buffer that had already been swapped out")
	}
}

func TestBlitScaledFillsDestination(t *testing.T) {
	frame := &decode.RGBFrame{
		Pix:    []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 10, 20, 30},
		Width:  2,
		Height: 2,
	}
	dst := make([]byte, 4*4*4)
	blitScaled(frame, dst, 4, 4)

	// Top-left source pixel is red; XRGB little endian puts blue first.
	assert.Equal(t, byte(0), dst[0])
	assert.Equal(t, byte(0), dst[1])
	assert.Equal(t, byte(255), dst[2])
	assert.Equal(t, byte(0xFF), dst[3])

	// Bottom-right samples the last source pixel.
	last := (3*4 + 3) * 4
	assert.Equal(t, byte(30), dst[last])
	assert.Equal(t, byte(20), dst[last+1])
	assert.Equal(t, byte(10), dst[last+2])
}

func TestBlitSamePassthrough(t *testing.T) {
	frame := &decode.RGBFrame{Pix: []byte{1, 2, 3}, Width: 1, Height: 1}
	dst := make([]byte, 4)
	blitScaled(frame, dst, 1, 1)
	assert.Equal(t, []byte{3, 2, 1, 0xFF}, dst)
}
