package kvm

import (
	"sync"
	"time"

	"github.com/bnema/waykvm/internal/capture"
)

// DummySource produces a synthetic YUYV test pattern at a fixed rate,
// for exercising the decode and present path without hardware.
type DummySource struct {
	width     int
	height    int
	frameRate int

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewDummySource creates a pattern generator of the given geometry.
func NewDummySource(width, height, frameRate int) *DummySource {
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}
	if frameRate <= 0 {
		frameRate = 30
	}
	return &DummySource{width: width, height: height, frameRate: frameRate}
}

// Card identifies the source in logs, mirroring the capture device.
func (d *DummySource) Card() string { return "synthetic test pattern" }

// Format reports the generated geometry.
func (d *DummySource) Format() capture.Format {
	return capture.Format{Width: d.width, Height: d.height, FourCC: capture.PixFmtYUYV}
}

// Start begins generating frames on a new goroutine.
func (d *DummySource) Start(cb capture.FrameFunc, onErr func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.running = true
	d.done = make(chan struct{})
	go d.loop(cb)
	return nil
}

// Stop halts generation and waits for the loop to exit.
func (d *DummySource) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	done := d.done
	d.mu.Unlock()
	<-done
}

// Close satisfies the video source shape; nothing to release.
func (d *DummySource) Close() error {
	d.Stop()
	return nil
}

func (d *DummySource) loop(cb capture.FrameFunc) {
	defer close(d.done)

	interval := time.Second / time.Duration(d.frameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([]byte, d.width*d.height*2)
	var seq uint32
	for {
		d.mu.Lock()
		running := d.running
		d.mu.Unlock()
		if !running {
			return
		}
		<-ticker.C

		seq++
		d.pattern(buf, seq)
		cb(capture.Frame{
			Data:     buf,
			Width:    d.width,
			Height:   d.height,
			FourCC:   capture.PixFmtYUYV,
			Sequence: seq,
		})
	}
}

// pattern fills buf with scrolling vertical bars. Luma steps across
// eight bands; chroma stays neutral so the bars render as grays.
func (d *DummySource) pattern(buf []byte, seq uint32) {
	bandWidth := d.width / 8
	if bandWidth == 0 {
		bandWidth = 1
	}
	shift := int(seq) % d.width
	for y := 0; y < d.height; y++ {
		row := buf[y*d.width*2:]
		for x := 0; x < d.width; x += 2 {
			band := ((x + shift) / bandWidth) % 8
			luma := byte(255 - band*32)
			row[x*2] = luma
			row[x*2+1] = 128
			row[x*2+2] = luma
			row[x*2+3] = 128
		}
	}
}
