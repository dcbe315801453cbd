//go:build linux && (amd64 || arm64)

// Package capture owns the V4L2 capture device: format selection, the
// memory-mapped buffer ring and the dequeue/requeue polling loop.
package capture

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Compile-time struct size assertions. These fail to build if a struct
// no longer matches the kernel ABI.
var (
	_ [0]struct{} = [unsafe.Sizeof(v4l2Capability{}) - 104]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2PixFormat{}) - 48]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Format{}) - 208]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2RequestBuffers{}) - 20]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Buffer{}) - 88]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2StreamParm{}) - 204]struct{}{}
)

// IOCTL request codes for 64-bit architectures.
const (
	vidiocQuerycap  = 0x80685600
	vidiocGFmt      = 0xc0d05604
	vidiocSFmt      = 0xc0d05605
	vidiocReqbufs   = 0xc0145608
	vidiocQuerybuf  = 0xc0585609
	vidiocQbuf      = 0xc058560f
	vidiocDqbuf     = 0xc0585611
	vidiocStreamon  = 0x40045612
	vidiocStreamoff = 0x40045613
	vidiocGParm     = 0xc0cc5615
	vidiocSParm     = 0xc0cc5616
)

const (
	bufTypeVideoCapture = 1
	memoryMmap          = 1
	fieldNone           = 1

	capVideoCapture = 0x00000001
	capStreaming    = 0x04000000
)

// fourcc packs a pixel format code the way the kernel expects it.
func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel formats the adapter's capture chip produces.
var (
	PixFmtMJPEG = fourcc('M', 'J', 'P', 'G')
	PixFmtYUYV  = fourcc('Y', 'U', 'Y', 'V')
)

// FourCCString renders a pixel format code for logs.
func FourCCString(f uint32) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// v4l2PixFormat has size 48 bytes and lives at offset 0 of the
// v4l2Format union.
type v4l2PixFormat struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

// v4l2Format has size 208 bytes: a 4-byte type, padding to the union's
// 8-byte alignment, and the 200-byte format union.
type v4l2Format struct {
	typ uint32
	_   uint32
	fmt [200]byte
}

func (f *v4l2Format) pix() *v4l2PixFormat {
	return (*v4l2PixFormat)(unsafe.Pointer(&f.fmt[0]))
}

// v4l2RequestBuffers has size 20 bytes.
type v4l2RequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	_            [3]uint8
}

// v4l2Timecode has size 16 bytes.
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// v4l2Buffer has size 88 bytes on 64-bit.
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	_         uint32 // timestamp is 8-byte aligned
	timestamp unix.Timeval
	timecode  v4l2Timecode
	sequence  uint32
	memory    uint32
	m         uint64 // union: mmap offset / userptr
	length    uint32
	reserved2 uint32
	requestFD int32
}

// v4l2Fract has size 8 bytes.
type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

// v4l2CaptureParm has size 40 bytes and lives at offset 0 of the
// v4l2StreamParm union.
type v4l2CaptureParm struct {
	capability   uint32
	capturemode  uint32
	timeperframe v4l2Fract
	extendedmode uint32
	readbuffers  uint32
	reserved     [4]uint32
}

// v4l2StreamParm has size 204 bytes.
type v4l2StreamParm struct {
	typ  uint32
	parm [200]byte
}

func (p *v4l2StreamParm) capture() *v4l2CaptureParm {
	return (*v4l2CaptureParm)(unsafe.Pointer(&p.parm[0]))
}

// ioctl issues a request against the device fd.
func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// cString trims a NUL-terminated kernel string.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
