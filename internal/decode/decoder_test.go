package decode

import (
	"bytes"
	"image"
	"image/color"
	stdjpeg "image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTestFrame produces a well-formed JPEG of the given size.
func encodeTestFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, stdjpeg.Encode(&buf, img, &stdjpeg.Options{Quality: 85}))
	return buf.Bytes()
}

func TestDecodeFullHDFrame(t *testing.T) {
	data := encodeTestFrame(t, 1920, 1080)

	frame, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 1920, frame.Width)
	assert.Equal(t, 1080, frame.Height)
	assert.Len(t, frame.Pix, 1920*1080*3)
}

func TestDecodeTruncatedFrameKeepsNothing(t *testing.T) {
	data := encodeTestFrame(t, 1920, 1080)

	frame, err := Decode(data[:len(data)/2])
	assert.Error(t, err)
	assert.Nil(t, frame)
}

func TestDecodeEmptyInput(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = Decode([]byte{})
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestDecodeGarbageInput(t *testing.T) {
	_, err := Decode(bytes.Repeat([]byte{0xDE, 0xAD}, 512))
	assert.Error(t, err)
}

func TestDecodeSmallFrameInvariant(t *testing.T) {
	for _, size := range []struct{ w, h int }{{64, 64}, {640, 480}, {1280, 720}} {
		frame, err := Decode(encodeTestFrame(t, size.w, size.h))
		require.NoError(t, err)
		assert.Equal(t, size.w*size.h*3, len(frame.Pix),
			"pixel length must equal width*height*3 for %dx%d", size.w, size.h)
	}
}

func TestDecodeYUYV(t *testing.T) {
	// A 2x2 mid-gray frame: Y=128, U=V=128 (zero chroma).
	data := bytes.Repeat([]byte{128, 128}, 4)

	frame, err := DecodeYUYV(data, 2, 2)
	require.NoError(t, err)
	require.Len(t, frame.Pix, 2*2*3)
	for i, v := range frame.Pix {
		assert.Equal(t, byte(128), v, "pixel byte %d", i)
	}
}

func TestDecodeYUYVValidation(t *testing.T) {
	_, err := DecodeYUYV(nil, 2, 2)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = DecodeYUYV(make([]byte, 4), 0, 2)
	assert.ErrorIs(t, err, ErrBadDimensions)

	_, err = DecodeYUYV(make([]byte, 4), MaxSide+1, 2)
	assert.ErrorIs(t, err, ErrBadDimensions)

	// Short buffer for the claimed dimensions.
	_, err = DecodeYUYV(make([]byte, 7), 2, 2)
	assert.Error(t, err)
}

func TestValidateDimensionsCeilings(t *testing.T) {
	assert.NoError(t, validateDimensions(1920, 1080))
	assert.NoError(t, validateDimensions(MaxSide, MaxSide))
	assert.ErrorIs(t, validateDimensions(MaxSide+1, 100), ErrBadDimensions)
	assert.ErrorIs(t, validateDimensions(100, -1), ErrBadDimensions)
}
