//go:build linux && (amd64 || arm64)

package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/bnema/waykvm/internal/logger"
	"golang.org/x/sys/unix"
)

// Errors surfaced by the capture ring.
var (
	ErrNotCapture  = errors.New("capture: device does not support video capture")
	ErrNoStreaming = errors.New("capture: device does not support streaming I/O")
	ErrRunning     = errors.New("capture: stream already running")
)

// defaultBufferCount is the size of the mmap ring. Four buffers keep
// the hardware fed while one frame is being drained; three is the
// working minimum.
const (
	defaultBufferCount = 4
	minBufferCount     = 3
)

// dequeueWait bounds each wait for a filled buffer so a stop request is
// observed promptly.
const dequeueWait = 25 * time.Millisecond

// Frame is a filled capture buffer on loan to the callback. Data points
// into the memory-mapped buffer and is only valid until the callback
// returns; the decode step must happen, or copy out, before then.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	FourCC   uint32
	Sequence uint32
}

// FrameFunc receives each borrowed frame synchronously from the capture
// loop. It must not retain Frame.Data past its return.
type FrameFunc func(Frame)

// Format describes the negotiated capture format.
type Format struct {
	Width     int
	Height    int
	FourCC    uint32
	FrameRate int
}

type mmapBuffer struct {
	data []byte
}

// Device is an open V4L2 capture device and its buffer ring.
type Device struct {
	fd     int
	path   string
	card   string
	format Format

	bufCount uint32

	mu      sync.Mutex
	buffers []mmapBuffer
	running bool
	done    chan struct{}
}

// Open opens the capture node and verifies it can stream video.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}

	var cap v4l2Capability
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&cap)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("capture: query capabilities %s: %w", path, err)
	}
	caps := cap.capabilities
	if cap.deviceCaps != 0 {
		caps = cap.deviceCaps
	}
	if caps&capVideoCapture == 0 {
		_ = unix.Close(fd)
		return nil, ErrNotCapture
	}
	if caps&capStreaming == 0 {
		_ = unix.Close(fd)
		return nil, ErrNoStreaming
	}

	d := &Device{fd: fd, path: path, card: cString(cap.card[:]), bufCount: defaultBufferCount}
	logger.Debug("Capture device opened", "path", path, "card", d.card)
	return d, nil
}

// Card returns the device's self-reported name.
func (d *Device) Card() string { return d.card }

// SetBufferCount sets the ring size requested at the next Start. Values
// below the working minimum are raised to it; the driver may still
// grant a different count.
func (d *Device) SetBufferCount(n int) {
	if n < minBufferCount {
		n = minBufferCount
	}
	d.bufCount = uint32(n)
}

// Format returns the negotiated capture format. Valid after Configure.
func (d *Device) Format() Format { return d.format }

// Configure negotiates the capture format: MJPEG at the requested size,
// falling back to 1280x720 and then to YUYV when the chip refuses, the
// same ladder the adapter hardware is known to accept.
func (d *Device) Configure(width, height, frameRate int) error {
	attempts := []struct {
		w, h   int
		fourcc uint32
	}{
		{width, height, PixFmtMJPEG},
		{1280, 720, PixFmtMJPEG},
		{1280, 720, PixFmtYUYV},
	}

	var lastErr error
	for _, a := range attempts {
		var f v4l2Format
		f.typ = bufTypeVideoCapture
		pix := f.pix()
		pix.width = uint32(a.w)
		pix.height = uint32(a.h)
		pix.pixelformat = a.fourcc
		pix.field = fieldNone

		if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
			lastErr = err
			continue
		}
		// The driver may have adjusted the size; trust what it reports,
		// but reject a format swap to something we cannot decode.
		if pix.pixelformat != a.fourcc {
			lastErr = fmt.Errorf("driver substituted format %s", FourCCString(pix.pixelformat))
			continue
		}
		d.format = Format{
			Width:  int(pix.width),
			Height: int(pix.height),
			FourCC: pix.pixelformat,
		}
		d.setFrameRate(frameRate)
		logger.Info("Capture format set",
			"format", FourCCString(d.format.FourCC),
			"width", d.format.Width, "height", d.format.Height,
			"fps", d.format.FrameRate)
		return nil
	}
	return fmt.Errorf("capture: no supported format on %s: %w", d.path, lastErr)
}

// setFrameRate asks the driver for the target rate. Refusal is logged,
// not fatal; the stream just runs at the driver's pace.
func (d *Device) setFrameRate(fps int) {
	if fps <= 0 {
		return
	}
	var parm v4l2StreamParm
	parm.typ = bufTypeVideoCapture
	if err := ioctl(d.fd, vidiocGParm, unsafe.Pointer(&parm)); err != nil {
		logger.Warn("Failed to read stream parameters", "err", err)
		return
	}
	cp := parm.capture()
	cp.timeperframe = v4l2Fract{numerator: 1, denominator: uint32(fps)}
	cp.capturemode = 0
	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		logger.Warn("Failed to set frame rate", "fps", fps, "err", err)
		return
	}
	cp = parm.capture()
	if cp.timeperframe.numerator > 0 {
		d.format.FrameRate = int(cp.timeperframe.denominator / cp.timeperframe.numerator)
	}
}

// Start allocates and maps the buffer ring, enqueues every buffer,
// starts the hardware stream and launches the polling loop. cb receives
// each filled buffer; onErr is called once if the loop dies on a
// persistent dequeue error.
func (d *Device) Start(cb FrameFunc, onErr func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}

	if err := d.allocateBuffers(); err != nil {
		return err
	}

	typ := uint32(bufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		d.releaseBuffers()
		return fmt.Errorf("capture: stream on: %w", err)
	}

	d.running = true
	d.done = make(chan struct{})
	go d.loop(cb, onErr)
	logger.Info("Capture stream started", "buffers", len(d.buffers))
	return nil
}

// Stop halts the polling loop and the hardware stream, then unmaps the
// ring — in that order, so no buffer is read after unmap. The stream is
// torn down even when the loop already died on a dequeue error.
func (d *Device) Stop() {
	d.mu.Lock()
	d.running = false
	done := d.done
	d.mu.Unlock()

	if done != nil {
		<-done
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buffers == nil {
		return
	}
	typ := uint32(bufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		logger.Error("Failed to stop stream", "err", err)
	}
	d.releaseBuffers()
	logger.Info("Capture stream stopped")
}

// Close stops any running stream and closes the device node.
func (d *Device) Close() error {
	d.Stop()
	return unix.Close(d.fd)
}

// allocateBuffers requests, maps and enqueues the ring. Any failure
// unwinds buffers already mapped.
func (d *Device) allocateBuffers() error {
	count := d.bufCount
	if count == 0 {
		count = defaultBufferCount
	}
	req := v4l2RequestBuffers{
		count:  count,
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("capture: request buffers: %w", err)
	}
	if req.count < minBufferCount {
		return fmt.Errorf("capture: driver granted only %d buffers", req.count)
	}

	d.buffers = make([]mmapBuffer, 0, req.count)
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{index: i, typ: bufTypeVideoCapture, memory: memoryMmap}
		if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			d.releaseBuffers()
			return fmt.Errorf("capture: query buffer %d: %w", i, err)
		}
		data, err := unix.Mmap(d.fd, int64(buf.m), int(buf.length),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			d.releaseBuffers()
			return fmt.Errorf("capture: mmap buffer %d: %w", i, err)
		}
		d.buffers = append(d.buffers, mmapBuffer{data: data})

		if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			d.releaseBuffers()
			return fmt.Errorf("capture: enqueue buffer %d: %w", i, err)
		}
	}
	return nil
}

func (d *Device) releaseBuffers() {
	for _, b := range d.buffers {
		if b.data != nil {
			_ = unix.Munmap(b.data)
		}
	}
	d.buffers = nil
}

// loop waits for filled buffers, lends each to the callback and
// requeues it immediately. Timeouts and EINTR are retried; anything
// else terminates the loop via onErr.
func (d *Device) loop(cb FrameFunc, onErr func(error)) {
	defer close(d.done)

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for d.isRunning() {
		n, err := unix.Poll(fds, int(dequeueWait.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			d.fail(onErr, fmt.Errorf("capture: poll: %w", err))
			return
		}
		if n == 0 {
			// Frame not ready yet; check the running flag and wait again.
			continue
		}

		buf := v4l2Buffer{typ: bufTypeVideoCapture, memory: memoryMmap}
		if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			d.fail(onErr, fmt.Errorf("capture: dequeue: %w", err))
			return
		}

		if int(buf.index) < len(d.buffers) && buf.bytesused > 0 {
			mb := d.buffers[buf.index]
			cb(Frame{
				Data:     mb.data[:buf.bytesused],
				Width:    d.format.Width,
				Height:   d.format.Height,
				FourCC:   d.format.FourCC,
				Sequence: buf.sequence,
			})
		}

		if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			d.fail(onErr, fmt.Errorf("capture: requeue: %w", err))
			return
		}
	}
}

func (d *Device) isRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Device) fail(onErr func(error), err error) {
	logger.Error("Capture loop terminated", "err", err)
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	if onErr != nil {
		onErr(err)
	}
}
