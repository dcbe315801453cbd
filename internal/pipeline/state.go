package pipeline

import (
	"sync"
)

// frameSlot is the single-slot handoff between the capture callback
// and the render role. The writer always wins: an undrained frame is
// overwritten by the next one, so the render role only ever sees the
// newest complete frame.
type frameSlot struct {
	mu       sync.Mutex
	data     []byte
	scratch  []byte
	width    int32
	height   int32
	fourCC   uint32
	sequence uint32

	// signal has capacity one; publish never blocks on it.
	signal chan struct{}
}

func newFrameSlot() *frameSlot {
	return &frameSlot{signal: make(chan struct{}, 1)}
}

// publish copies src into the slot and wakes the consumer. src is only
// valid for the duration of the call.
func (s *frameSlot) publish(src []byte, width, height int32, fourCC, sequence uint32) {
	s.mu.Lock()
	if cap(s.scratch) < len(src) {
		s.scratch = make([]byte, len(src))
	}
	s.scratch = s.scratch[:len(src)]
	copy(s.scratch, src)
	// Swap the buffers so the consumer's last take stays untouched.
	s.data, s.scratch = s.scratch, s.data
	s.width, s.height = width, height
	s.fourCC = fourCC
	s.sequence = sequence
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// take returns the current frame, or ok=false when the slot is empty.
// The returned slice is owned by the caller until the next take.
func (s *frameSlot) take() (data []byte, width, height int32, fourCC, sequence uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, 0, 0, 0, 0, false
	}
	data = s.data
	s.data = nil
	return data, s.width, s.height, s.fourCC, s.sequence, true
}

// recycle returns a buffer obtained from take once the caller is done
// with it, so steady-state operation reuses two buffers instead of
// allocating per frame.
func (s *frameSlot) recycle(buf []byte) {
	s.mu.Lock()
	if s.scratch == nil {
		s.scratch = buf
	}
	s.mu.Unlock()
}

// raster is the scaled XRGB image shared between the render role that
// fills it and the present role that copies it into the shm buffer.
type raster struct {
	mu     sync.Mutex
	pix    []byte
	width  int32
	height int32
	ready  bool
}

// resize discards the pixel data when the dimensions change.
func (r *raster) resize(width, height int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.width == width && r.height == height && r.pix != nil {
		return
	}
	r.pix = make([]byte, int(width)*int(height)*4)
	r.width = width
	r.height = height
	r.ready = false
}

// fill runs fn against the pixel data under the lock and marks the
// raster ready for the next present.
func (r *raster) fill(fn func(pix []byte, width, height int32)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pix == nil {
		return
	}
	fn(r.pix, r.width, r.height)
	r.ready = true
}

// copyInto copies the raster into dst when it is ready and the sizes
// match, clearing the ready flag. Reports whether dst changed.
func (r *raster) copyInto(dst []byte, width, height int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready || r.width != width || r.height != height {
		return false
	}
	copy(dst, r.pix)
	r.ready = false
	return true
}

// pendingSize carries a compositor-approved window size from the
// configure handler to the role that rebuilds the buffers.
type pendingSize struct {
	mu     sync.Mutex
	width  int32
	height int32
	set    bool
}

func (p *pendingSize) put(width, height int32) {
	p.mu.Lock()
	p.width, p.height, p.set = width, height, true
	p.mu.Unlock()
}

func (p *pendingSize) get() (int32, int32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.set {
		return 0, 0, false
	}
	p.set = false
	return p.width, p.height, true
}
