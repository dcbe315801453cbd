// Package decode turns compressed capture frames into validated RGB
// rasters. Decoding trades fidelity for latency: fast DCT, no fancy
// upsampling, no block smoothing.
package decode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pixiv/go-libjpeg/jpeg"
)

// Sanity ceilings. Frames past these are malformed or hostile, not
// video.
const (
	MaxSide  = 8192
	MaxBytes = 200 << 20
)

// Decode errors.
var (
	ErrEmptyFrame    = errors.New("decode: empty frame")
	ErrBadDimensions = errors.New("decode: invalid frame dimensions")
	ErrTooLarge      = errors.New("decode: frame exceeds size ceiling")
	ErrBadChannels   = errors.New("decode: unexpected channel count")
)

// RGBFrame is a decoded raster. Invariant: len(Pix) == Width*Height*3.
type RGBFrame struct {
	Pix      []byte
	Width    int
	Height   int
	Sequence uint32
}

// decodeOptions is the latency-first reconstruction mode.
var decodeOptions = jpeg.DecoderOptions{
	DCTMethod:              jpeg.DCTIFast,
	DisableFancyUpsampling: true,
	DisableBlockSmoothing:  true,
}

// Decode converts one compressed MJPEG frame into a tightly packed RGB
// raster. On any failure no partial frame is returned; the caller keeps
// whatever it was displaying.
func Decode(data []byte) (*RGBFrame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	opts := decodeOptions
	img, err := jpeg.DecodeIntoRGB(bytes.NewReader(data), &opts)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if err := validateDimensions(w, h); err != nil {
		return nil, err
	}

	out := &RGBFrame{Width: w, Height: h}
	rowBytes := w * 3
	if img.Stride == rowBytes && len(img.Pix) == h*rowBytes {
		out.Pix = img.Pix
	} else {
		// Repack stride-padded output so the invariant holds.
		if len(img.Pix) < (h-1)*img.Stride+rowBytes {
			return nil, ErrBadChannels
		}
		out.Pix = make([]byte, h*rowBytes)
		for y := 0; y < h; y++ {
			copy(out.Pix[y*rowBytes:(y+1)*rowBytes], img.Pix[y*img.Stride:])
		}
	}

	if len(out.Pix) != w*h*3 {
		return nil, ErrBadChannels
	}
	return out, nil
}

// DecodeYUYV converts a packed YUYV frame to RGB. Used when the capture
// chip falls back from MJPEG.
func DecodeYUYV(data []byte, width, height int) (*RGBFrame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	if err := validateDimensions(width, height); err != nil {
		return nil, err
	}
	if len(data) < width*height*2 {
		return nil, fmt.Errorf("decode: short YUYV frame: have %d want %d bytes",
			len(data), width*height*2)
	}

	out := &RGBFrame{
		Pix:    make([]byte, width*height*3),
		Width:  width,
		Height: height,
	}
	for i, o := 0, 0; i+3 < width*height*2; i, o = i+4, o+6 {
		y0 := int32(data[i])
		u := int32(data[i+1]) - 128
		y1 := int32(data[i+2])
		v := int32(data[i+3]) - 128

		out.Pix[o+0], out.Pix[o+1], out.Pix[o+2] = yuvToRGB(y0, u, v)
		out.Pix[o+3], out.Pix[o+4], out.Pix[o+5] = yuvToRGB(y1, u, v)
	}
	return out, nil
}

func yuvToRGB(y, u, v int32) (byte, byte, byte) {
	// BT.601 integer approximation.
	r := y + (351*v)>>8
	g := y - (179*v+86*u)>>8
	b := y + (443*u)>>8
	return clampByte(r), clampByte(g), clampByte(b)
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func validateDimensions(w, h int) error {
	if w <= 0 || h <= 0 || w > MaxSide || h > MaxSide {
		return ErrBadDimensions
	}
	if w*h*3 > MaxBytes {
		return ErrTooLarge
	}
	return nil
}
