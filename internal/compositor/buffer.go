package compositor

import (
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

// ShmBuffer is a single memfd-backed wl_shm buffer. The pixel data is
// mapped into the process and shared with the compositor, XRGB8888
// little-endian, 4 bytes per pixel.
type ShmBuffer struct {
	fd     int
	data   []byte
	pool   *client.ShmPool
	buffer *client.Buffer

	width  int32
	height int32
	stride int32
}

// NewShmBuffer allocates a memfd of width*height*4 bytes, maps it and
// wraps it in a wl_buffer from a fresh pool.
func NewShmBuffer(shm *client.Shm, width, height int32) (*ShmBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid buffer size %dx%d", width, height)
	}

	stride := width * 4
	size := int(stride) * int(height)

	fd, err := unix.MemfdCreate("waykvm-shm", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate shm to %d bytes: %w", size, err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap shm: %w", err)
	}

	pool, err := shm.CreatePool(fd, int32(size))
	if err != nil {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, fmt.Errorf("create shm pool: %w", err)
	}

	buffer, err := pool.CreateBuffer(0, width, height, stride, uint32(client.ShmFormatXrgb8888))
	if err != nil {
		pool.Destroy()
		unix.Munmap(data)
		unix.Close(fd)
		return nil, fmt.Errorf("create wl_buffer: %w", err)
	}

	b := &ShmBuffer{
		fd:     fd,
		data:   data,
		pool:   pool,
		buffer: buffer,
		width:  width,
		height: height,
		stride: stride,
	}

	// Start black rather than showing uninitialized memory.
	for i := range data {
		data[i] = 0
	}
	return b, nil
}

// Data returns the mapped pixel memory.
func (b *ShmBuffer) Data() []byte { return b.data }

// Size returns the buffer dimensions.
func (b *ShmBuffer) Size() (int32, int32) { return b.width, b.height }

// Stride returns the row length in bytes.
func (b *ShmBuffer) Stride() int32 { return b.stride }

// Destroy releases the wl_buffer, the pool, the mapping and the memfd.
func (b *ShmBuffer) Destroy() {
	if b.buffer != nil {
		b.buffer.Destroy()
		b.buffer = nil
	}
	if b.pool != nil {
		b.pool.Destroy()
		b.pool = nil
	}
	if b.data != nil {
		unix.Munmap(b.data)
		b.data = nil
	}
	if b.fd >= 0 {
		unix.Close(b.fd)
		b.fd = -1
	}
}
