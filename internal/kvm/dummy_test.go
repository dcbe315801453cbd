package kvm

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/waykvm/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummySourceProducesFrames(t *testing.T) {
	src := NewDummySource(64, 32, 60)

	var mu sync.Mutex
	var frames []capture.Frame
	err := src.Start(func(f capture.Frame) {
		mu.Lock()
		frames = append(frames, capture.Frame{
			Width:    f.Width,
			Height:   f.Height,
			FourCC:   f.FourCC,
			Sequence: f.Sequence,
		})
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	src.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, frames)
	for i, f := range frames {
		assert.Equal(t, 64, f.Width)
		assert.Equal(t, 32, f.Height)
		assert.Equal(t, capture.PixFmtYUYV, f.FourCC)
		assert.Equal(t, uint32(i+1), f.Sequence)
	}
}

func TestDummySourceStopIsIdempotent(t *testing.T) {
	src := NewDummySource(16, 16, 60)
	require.NoError(t, src.Start(func(capture.Frame) {}, nil))
	src.Stop()
	src.Stop()
	assert.NoError(t, src.Close())
}

func TestDummySourceDefaultGeometry(t *testing.T) {
	src := NewDummySource(0, 0, 0)
	f := src.Format()
	assert.Equal(t, 1280, f.Width)
	assert.Equal(t, 720, f.Height)
}

func TestDummyPatternFrameSize(t *testing.T) {
	src := NewDummySource(32, 8, 30)
	buf := make([]byte, 32*8*2)
	src.pattern(buf, 1)

	// Chroma bytes stay neutral gray.
	for i := 1; i < len(buf); i += 2 {
		require.Equal(t, byte(128), buf[i])
	}
}

func TestUsbIDsWalksUpToDeviceDir(t *testing.T) {
	root := t.TempDir()
	usbDev := filepath.Join(root, "usb1")
	iface := filepath.Join(usbDev, "1-1:1.0")
	require.NoError(t, os.MkdirAll(iface, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(usbDev, "idVendor"), []byte("534d\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(usbDev, "idProduct"), []byte("2109\n"), 0o644))

	vendor, product := usbIDs(iface)
	assert.Equal(t, "534d", vendor)
	assert.Equal(t, "2109", product)
}

func TestUsbIDsMissing(t *testing.T) {
	vendor, product := usbIDs(t.TempDir())
	assert.Empty(t, vendor)
	assert.Empty(t, product)
}
