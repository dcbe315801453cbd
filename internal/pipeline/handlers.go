package pipeline

import (
	"math"

	"github.com/bnema/waykvm/internal/hid"
	"github.com/bnema/waykvm/internal/input"
	"github.com/bnema/waykvm/internal/logger"
)

// The methods below are the compositor event handlers. They all run on
// the event goroutine, so heldMods and scrollAccum need no lock.

// PointerMoved maps a surface-local pointer position into device space
// and stages it for the next serial flush.
func (p *Pipeline) PointerMoved(x, y int32) {
	if p.surface == nil {
		return
	}
	w, h := p.surface.Size()
	p.resize.PointerMoved(x, y, w, h)

	dx, dy := input.MapToDevice(x, y, w, h)
	p.ptrMu.Lock()
	p.ptrX, p.ptrY = dx, dy
	p.ptrDirty = true
	p.ptrMu.Unlock()
}

// PointerButton forwards a button change, except that a primary press
// on a window edge hands the drag to the compositor instead.
func (p *Pipeline) PointerButton(button uint32, pressed bool, serial uint32) {
	if p.surface == nil {
		return
	}
	if pressed && button == btnLeft {
		if edge, ok := p.resize.ButtonPressed(); ok {
			if err := p.surface.StartResize(input.XdgEdge(edge)); err != nil {
				logger.Warnf("Failed to start interactive resize: %v", err)
				p.resize.ButtonReleased()
			}
			return
		}
	}
	if !pressed {
		p.resize.ButtonReleased()
	}

	var mask byte
	switch button {
	case btnLeft:
		mask = hid.ButtonLeft
	case btnRight:
		mask = hid.ButtonRight
	case btnMiddle:
		mask = hid.ButtonMiddle
	default:
		return
	}

	p.ptrMu.Lock()
	if pressed {
		p.ptrButtons |= mask
	} else {
		p.ptrButtons &^= mask
	}
	buttons := p.ptrButtons
	x, y := p.ptrX, p.ptrY
	p.ptrDirty = false
	p.ptrMu.Unlock()

	// Button changes are ordered against key events, so they go
	// through the queue rather than the coalesced position.
	p.queue(queuedEvent{kind: evButton, buttons: buttons, x: x, y: y})
}

// PointerAxis accumulates vertical scroll and emits wheel steps per
// detent. Wayland axis values grow downward, the chip's wheel grows
// upward.
func (p *Pipeline) PointerAxis(value float64) {
	p.scrollAccum += value
	steps := int32(math.Trunc(p.scrollAccum / scrollDetent))
	if steps == 0 {
		return
	}
	p.scrollAccum -= float64(steps) * scrollDetent
	p.queue(queuedEvent{kind: evScroll, steps: -steps})
}

// KeyEvent translates an evdev key code into a HID report. Modifier
// keys fold into the held-modifier byte; unknown keys are dropped.
func (p *Pipeline) KeyEvent(code uint32, pressed bool) {
	usage, mod := hid.UsageForKey(code)
	if usage == 0 && mod == 0 {
		logger.Debugf("No HID usage for key code %d", code)
		return
	}

	if mod != 0 && usage == 0 {
		if pressed {
			p.heldMods |= mod
		} else {
			p.heldMods &^= mod
		}
		if p.heldMods == 0 && !pressed {
			p.queue(queuedEvent{kind: evKeyRelease})
		} else {
			p.queue(queuedEvent{kind: evKeyPress, usage: 0, mods: p.heldMods})
		}
		return
	}

	if pressed {
		p.queue(queuedEvent{kind: evKeyPress, usage: usage, mods: p.heldMods})
	} else {
		p.queue(queuedEvent{kind: evKeyRelease})
	}
}

// Configured handles a compositor-proposed window size.
func (p *Pipeline) Configured(width, height int32) {
	if p.surface == nil {
		return
	}
	curW, curH := p.surface.Size()
	if !p.resize.ShouldApply(width, height, curW, curH) {
		return
	}
	p.sizeReq.put(width, height)
}

// WindowClosed stops the pipeline when the compositor asks the window
// to close.
func (p *Pipeline) WindowClosed() {
	logger.Info("Window closed, shutting down")
	p.Stop()
}

// Stats returns the decoded and dropped frame counters.
func (p *Pipeline) Stats() (decoded, dropped uint64) {
	return p.decoded.Load(), p.dropped.Load()
}
