// Package pipeline coordinates the four runtime roles of a session:
// the event role dispatching compositor events, the render role
// decoding and scaling captured frames, the input role forwarding
// pointer and keyboard state over serial, and the present role pacing
// surface commits. Captured frames flow through a single latest-frame
// slot, so a slow consumer only ever costs freshness, never memory.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/waykvm/internal/capture"
	"github.com/bnema/waykvm/internal/decode"
	"github.com/bnema/waykvm/internal/input"
	"github.com/bnema/waykvm/internal/logger"
)

// Linux evdev button codes as delivered by wl_pointer.
const (
	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
)

// One wheel detent in wl_pointer axis units.
const scrollDetent = 10.0

const defaultPresentInterval = 16 * time.Millisecond

// InputSink receives translated input reports. *hid.Engine satisfies
// it; tests substitute a recorder.
type InputSink interface {
	SendKey(usage, modifiers byte) error
	SendKeyRelease() error
	SendMouseAbsolute(buttons byte, x, y uint16) error
	SendScroll(steps int32) error
}

// Surface is the presentation side the pipeline drives.
// *compositor.Window satisfies it.
type Surface interface {
	Dispatch()
	Nudge()
	Present() error
	Resize(width, height int32) error
	CopyIn(fn func(pix []byte, width, height int32) bool) bool
	Size() (int32, int32)
	StartResize(edges uint32) error
	Closed() bool
}

type eventKind int

const (
	evKeyPress eventKind = iota
	evKeyRelease
	evButton
	evScroll
)

type queuedEvent struct {
	kind    eventKind
	usage   byte
	mods    byte
	buttons byte
	x, y    uint16
	steps   int32
}

// Pipeline wires a capture device, a decoder, a surface and an input
// sink into a running session.
type Pipeline struct {
	surface Surface
	sink    InputSink
	resize  *input.ResizeCoordinator

	slot    *frameSlot
	rast    *raster
	sizeReq *pendingSize

	bufferReady atomic.Bool

	pollInterval    time.Duration
	presentInterval time.Duration

	// Pointer state shared between the event role that updates it and
	// the input role that flushes it.
	ptrMu      sync.Mutex
	ptrX, ptrY uint16
	ptrButtons byte
	ptrDirty   bool

	// events carries discrete reports that must not be coalesced.
	events chan queuedEvent

	// Event-goroutine-only state.
	heldMods    byte
	scrollAccum float64

	dropped atomic.Uint64
	decoded atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pipeline. pollInterval is the serial flush cadence and
// resizeBorder the edge-grab thickness in pixels.
func New(sink InputSink, pollInterval time.Duration, resizeBorder int32) *Pipeline {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Millisecond
	}
	return &Pipeline{
		sink:            sink,
		resize:          input.NewResizeCoordinator(resizeBorder),
		slot:            newFrameSlot(),
		rast:            &raster{},
		sizeReq:         &pendingSize{},
		pollInterval:    pollInterval,
		presentInterval: defaultPresentInterval,
		events:          make(chan queuedEvent, 128),
	}
}

// SetSurface binds the presentation surface. Must be called before Run.
func (p *Pipeline) SetSurface(s Surface) {
	p.surface = s
	w, h := s.Size()
	p.rast.resize(w, h)
}

// HandleFrame is the capture callback. The frame data is only valid
// for the duration of the call and is copied into the latest-frame
// slot.
func (p *Pipeline) HandleFrame(f capture.Frame) {
	p.slot.publish(f.Data, int32(f.Width), int32(f.Height), f.FourCC, f.Sequence)
}

// Run blocks until ctx is cancelled or the window is closed. The
// calling goroutine becomes the event role.
func (p *Pipeline) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	defer cancel()

	p.wg.Add(3)
	go p.renderLoop(ctx)
	go p.inputLoop(ctx)
	go p.presentLoop(ctx)

	// Wake the dispatcher so cancellation is noticed promptly.
	go func() {
		<-ctx.Done()
		p.surface.Nudge()
	}()

	p.eventLoop(ctx)
	cancel()
	p.wg.Wait()
}

// Stop cancels a running pipeline.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// eventLoop is the only goroutine that issues Wayland requests beyond
// Nudge: it dispatches events, applies approved size changes and
// commits ready buffers.
func (p *Pipeline) eventLoop(ctx context.Context) {
	for ctx.Err() == nil && !p.surface.Closed() {
		p.surface.Dispatch()

		if w, h, ok := p.sizeReq.get(); ok {
			if err := p.surface.Resize(w, h); err != nil {
				logger.Errorf("Failed to resize surface: %v", err)
				continue
			}
			p.rast.resize(w, h)
		}

		if p.bufferReady.Swap(false) {
			if err := p.surface.Present(); err != nil {
				logger.Errorf("Failed to present frame: %v", err)
			}
		}
	}
}

// renderLoop decodes the newest captured frame and scales it into the
// shared raster. Decode failures are expected on torn MJPEG frames and
// only logged.
func (p *Pipeline) renderLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.slot.signal:
		}

		data, w, h, fourCC, seq, ok := p.slot.take()
		if !ok {
			continue
		}

		var frame *decode.RGBFrame
		var err error
		switch fourCC {
		case capture.PixFmtYUYV:
			frame, err = decode.DecodeYUYV(data, int(w), int(h))
		default:
			frame, err = decode.Decode(data)
		}
		p.slot.recycle(data)
		if err != nil {
			p.dropped.Add(1)
			logger.Debugf("Dropping frame %d: %v", seq, err)
			continue
		}
		frame.Sequence = seq
		p.decoded.Add(1)

		p.rast.fill(func(pix []byte, width, height int32) {
			blitScaled(frame, pix, width, height)
		})
	}
}

// presentLoop paces commits: when the raster holds a newer image than
// the surface, it copies the pixels into the shm buffer under the
// surface's buffer lock, flags the event role and nudges it awake.
func (p *Pipeline) presentLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.presentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p.surface.Closed() {
			p.Stop()
			return
		}
		if p.surface.CopyIn(p.rast.copyInto) {
			p.bufferReady.Store(true)
			p.surface.Nudge()
		}
	}
}

// inputLoop is the sole serial writer: it drains discrete events in
// order, then flushes the coalesced pointer position.
func (p *Pipeline) inputLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

	drain:
		for {
			select {
			case ev := <-p.events:
				p.dispatchEvent(ev)
			default:
				break drain
			}
		}

		p.ptrMu.Lock()
		dirty := p.ptrDirty
		x, y, buttons := p.ptrX, p.ptrY, p.ptrButtons
		p.ptrDirty = false
		p.ptrMu.Unlock()
		if dirty {
			if err := p.sink.SendMouseAbsolute(buttons, x, y); err != nil {
				logger.Debugf("Mouse report failed: %v", err)
			}
		}
	}
}

func (p *Pipeline) dispatchEvent(ev queuedEvent) {
	var err error
	switch ev.kind {
	case evKeyPress:
		err = p.sink.SendKey(ev.usage, ev.mods)
	case evKeyRelease:
		err = p.sink.SendKeyRelease()
	case evButton:
		err = p.sink.SendMouseAbsolute(ev.buttons, ev.x, ev.y)
	case evScroll:
		err = p.sink.SendScroll(ev.steps)
	}
	if err != nil {
		logger.Debugf("Input report failed: %v", err)
	}
}

func (p *Pipeline) queue(ev queuedEvent) {
	select {
	case p.events <- ev:
	default:
		logger.Warn("Input event queue full, dropping event")
	}
}
