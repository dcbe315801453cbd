// Package input holds the pure input-side state machines: window-edge
// classification, the interactive-resize state machine and the mapping
// from window coordinates to the HID chip's device space.
package input

import "math"

// DeviceMax is the upper bound of the chip's absolute coordinate space.
const DeviceMax = 4095

// MapToDevice maps a window-local pointer position into device space
// [0, 4095]². Coordinates are clamped to the window first, then scaled
// linearly: (0,0) maps to (0,0) and (width-1, height-1) to (4095,4095).
// The video fills the window exactly, so no letterbox offsets enter
// the math.
func MapToDevice(x, y, width, height int32) (uint16, uint16) {
	return scaleAxis(x, width), scaleAxis(y, height)
}

func scaleAxis(v, span int32) uint16 {
	if span <= 1 {
		return 0
	}
	if v < 0 {
		v = 0
	}
	if v > span-1 {
		v = span - 1
	}
	return uint16(math.Round(float64(v) / float64(span-1) * DeviceMax))
}
