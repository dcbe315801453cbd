//go:build linux && (amd64 || arm64)

package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFourCC(t *testing.T) {
	assert.Equal(t, uint32(0x47504A4D), PixFmtMJPEG)
	assert.Equal(t, uint32(0x56595559), PixFmtYUYV)
	assert.Equal(t, "MJPG", FourCCString(PixFmtMJPEG))
	assert.Equal(t, "YUYV", FourCCString(PixFmtYUYV))
}

func TestCString(t *testing.T) {
	assert.Equal(t, "UVC Camera", cString([]byte("UVC Camera\x00garbage")))
	assert.Equal(t, "abc", cString([]byte("abc")))
	assert.Equal(t, "", cString([]byte{0}))
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open("/dev/video-does-not-exist")
	require.Error(t, err)
}

func TestOpenNonCaptureNode(t *testing.T) {
	// /dev/null opens fine but is not a V4L2 device; QUERYCAP must fail.
	_, err := Open("/dev/null")
	require.Error(t, err)
}

func TestSetBufferCountFloor(t *testing.T) {
	d := &Device{}
	d.SetBufferCount(1)
	assert.Equal(t, uint32(minBufferCount), d.bufCount)
	d.SetBufferCount(6)
	assert.Equal(t, uint32(6), d.bufCount)
}

func TestStopAfterLoopFailureReleasesRing(t *testing.T) {
	// A pipe read end polls readable once a byte arrives, but DQBUF on
	// it fails with ENOTTY, which kills the loop the same way a yanked
	// cable does. Stop must still tear the ring down afterwards.
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	data, err := unix.Mmap(-1, 0, 4096,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	require.NoError(t, err)

	d := &Device{fd: fds[0], running: true, done: make(chan struct{})}
	d.buffers = []mmapBuffer{{data: data}}

	failed := make(chan error, 1)
	go d.loop(nil, func(err error) { failed <- err })

	_, err = unix.Write(fds[1], []byte{0})
	require.NoError(t, err)

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("loop did not terminate on the dequeue error")
	}

	d.Stop()
	assert.Nil(t, d.buffers, "ring still mapped after Stop")
	assert.False(t, d.isRunning())

	// A second Stop finds nothing left to release.
	d.Stop()
}
