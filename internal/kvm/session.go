// Package kvm assembles a full adapter session: device discovery, the
// serial HID engine, the capture pipeline and the presentation window.
package kvm

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/bnema/waykvm/internal/capture"
	"github.com/bnema/waykvm/internal/compositor"
	"github.com/bnema/waykvm/internal/config"
	"github.com/bnema/waykvm/internal/hid"
	"github.com/bnema/waykvm/internal/logger"
	"github.com/bnema/waykvm/internal/pipeline"
	"github.com/google/uuid"
)

// VideoSource is any producer of capture frames. *capture.Device and
// *DummySource satisfy it.
type VideoSource interface {
	Card() string
	Format() capture.Format
	Start(cb capture.FrameFunc, onErr func(error)) error
	Stop()
	Close() error
}

// Options selects the devices and geometry of a session. Zero values
// fall back to the config defaults.
type Options struct {
	VideoPath     string
	SerialPath    string
	PreferredBaud int
	Width         int
	Height        int
	FrameRate     int
	Dummy         bool
	Title         string
}

// Session is one running adapter connection.
type Session struct {
	id     string
	opts   Options
	engine *hid.Engine
	video  VideoSource
	window *compositor.Window
	pipe   *pipeline.Pipeline

	serialOK bool
	videoOK  bool
}

// New prepares a session from options merged over the stored config.
func New(opts Options) *Session {
	cfg := config.Get()
	if opts.PreferredBaud == 0 {
		opts.PreferredBaud = cfg.Device.PreferredBaud
	}
	if opts.Width == 0 {
		opts.Width = cfg.Video.Width
	}
	if opts.Height == 0 {
		opts.Height = cfg.Video.Height
	}
	if opts.FrameRate == 0 {
		opts.FrameRate = cfg.Video.FrameRate
	}
	if opts.Title == "" {
		opts.Title = "WayKVM"
	}
	return &Session{
		id:     uuid.New().String()[:8],
		opts:   opts,
		engine: hid.NewEngine(),
	}
}

// ID returns the short session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Run connects the devices, opens the window and blocks until the
// window closes or ctx is cancelled. Either device may be absent: a
// missing serial port degrades to view-only, a missing capture device
// to input-only with a black window.
func (s *Session) Run(ctx context.Context) error {
	logger.Info("Starting session", "id", s.id)

	s.openVideo()
	s.openSerial()
	if !s.videoOK && !s.serialOK {
		return fmt.Errorf("neither capture nor serial device is usable")
	}
	if !s.videoOK {
		logger.Warn("Running input-only: no video source")
	}
	if !s.serialOK {
		logger.Warn("Running view-only: no serial connection")
	}

	cfg := config.Get()
	s.pipe = pipeline.New(
		s.engine,
		time.Duration(cfg.Input.PollIntervalMs)*time.Millisecond,
		int32(cfg.Input.ResizeBorder),
	)

	winW, winH := int32(s.opts.Width), int32(s.opts.Height)
	if s.videoOK {
		f := s.video.Format()
		winW, winH = int32(f.Width), int32(f.Height)
	}

	window, err := compositor.Connect(s.opts.Title, winW, winH, compositor.Handlers{
		PointerMotion: s.pipe.PointerMoved,
		PointerButton: func(button uint32, pressed bool, serial uint32) {
			s.pipe.PointerButton(button, pressed, serial)
		},
		PointerAxis: s.pipe.PointerAxis,
		Key:         s.pipe.KeyEvent,
		Configure:   s.pipe.Configured,
		Close:       s.pipe.WindowClosed,
	})
	if err != nil {
		s.teardownDevices()
		return fmt.Errorf("failed to open window: %w", err)
	}
	s.window = window
	s.pipe.SetSurface(window)

	if s.videoOK {
		if err := s.video.Start(s.pipe.HandleFrame, func(err error) {
			logger.Errorf("Capture stream failed: %v", err)
			s.pipe.Stop()
		}); err != nil {
			logger.Errorf("Failed to start capture: %v", err)
			s.videoOK = false
		}
	}

	s.pipe.Run(ctx)

	decoded, dropped := s.pipe.Stats()
	logger.Info("Session finished", "id", s.id, "decoded", decoded, "dropped", dropped)

	s.teardown()
	return nil
}

// openVideo resolves and configures the capture device, or the dummy
// pattern source.
func (s *Session) openVideo() {
	if s.opts.Dummy {
		s.video = NewDummySource(s.opts.Width, s.opts.Height, s.opts.FrameRate)
		s.videoOK = true
		return
	}

	path := s.opts.VideoPath
	if path == "" {
		found, err := DiscoverVideo()
		if err != nil {
			logger.Warnf("Video discovery failed: %v", err)
			return
		}
		path = found
	}

	var dev *capture.Device
	err := retry.Do(
		func() error {
			var err error
			dev, err = capture.Open(path)
			return err
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		logger.Warnf("Failed to open capture device %s: %v", path, err)
		return
	}
	dev.SetBufferCount(config.Get().Video.BufferCount)

	if err := dev.Configure(s.opts.Width, s.opts.Height, s.opts.FrameRate); err != nil {
		logger.Warnf("Failed to configure capture device: %v", err)
		dev.Close()
		return
	}

	f := dev.Format()
	logger.Info("Capture ready",
		"card", dev.Card(),
		"format", capture.FourCCString(f.FourCC),
		"size", fmt.Sprintf("%dx%d", f.Width, f.Height))
	s.video = dev
	s.videoOK = true
}

// openSerial resolves the port and runs the baud negotiation ladder.
func (s *Session) openSerial() {
	path := s.opts.SerialPath
	if path == "" {
		found, err := DiscoverSerial()
		if err != nil {
			logger.Warnf("Serial discovery failed: %v", err)
			return
		}
		path = found
	}

	err := retry.Do(
		func() error {
			return s.engine.Connect(path, s.opts.PreferredBaud)
		},
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		logger.Warnf("Failed to connect to HID chip on %s: %v", path, err)
		return
	}

	logger.Info("HID chip connected", "port", path, "baud", s.engine.Baud())
	s.serialOK = true
}

func (s *Session) teardownDevices() {
	if s.video != nil {
		s.video.Stop()
		s.video.Close()
	}
	if s.serialOK {
		s.engine.Close()
	}
}

func (s *Session) teardown() {
	s.teardownDevices()
	if s.window != nil {
		s.window.Destroy()
	}
}
