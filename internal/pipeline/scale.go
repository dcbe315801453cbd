package pipeline

import "github.com/bnema/waykvm/internal/decode"

// blitScaled samples frame into dst with nearest-neighbor scaling so
// the image fills the destination exactly. dst is XRGB8888 little
// endian, so bytes run B, G, R, X per pixel.
func blitScaled(frame *decode.RGBFrame, dst []byte, dstW, dstH int32) {
	srcW, srcH := int32(frame.Width), int32(frame.Height)
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}
	if len(dst) < int(dstW)*int(dstH)*4 {
		return
	}

	if srcW == dstW && srcH == dstH {
		blitSame(frame.Pix, dst)
		return
	}

	// 16.16 fixed-point source steps per destination pixel.
	xStep := (int64(srcW) << 16) / int64(dstW)
	yStep := (int64(srcH) << 16) / int64(dstH)

	srcY := int64(0)
	for y := int32(0); y < dstH; y++ {
		row := frame.Pix[(srcY>>16)*int64(srcW)*3:]
		out := dst[int(y)*int(dstW)*4:]
		srcX := int64(0)
		for x := int32(0); x < dstW; x++ {
			s := (srcX >> 16) * 3
			o := x * 4
			out[o] = row[s+2]
			out[o+1] = row[s+1]
			out[o+2] = row[s]
			out[o+3] = 0xFF
			srcX += xStep
		}
		srcY += yStep
	}
}

// blitSame repacks RGB into XRGB without scaling.
func blitSame(src, dst []byte) {
	n := len(src) / 3
	if len(dst)/4 < n {
		n = len(dst) / 4
	}
	for i := 0; i < n; i++ {
		s := i * 3
		o := i * 4
		dst[o] = src[s+2]
		dst[o+1] = src[s+1]
		dst[o+2] = src[s]
		dst[o+3] = 0xFF
	}
}
