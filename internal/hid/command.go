// Package hid implements the serial protocol spoken by the HID-emulation
// chip on the KVM adapter: command framing and checksums, connection
// negotiation, and the keyboard/mouse send primitives.
package hid

import "fmt"

// Command opcodes understood by the chip.
const (
	OpGetInfo      = 0x01 // query chip version and target status
	OpKeyReport    = 0x02 // general keyboard report
	OpAbsMouse     = 0x04 // absolute mouse report
	OpRelMouse     = 0x05 // relative mouse report
	OpGetParaCfg   = 0x08 // read chip configuration block
	OpSetParaCfg   = 0x09 // write chip configuration block
	OpSetDefault   = 0x0C // restore factory configuration
	OpReset        = 0x0F // soft reset
	respOpcodeFlag = 0x80 // responses echo the opcode with the high bit set
)

// Fixed payload lengths for the report templates.
const (
	keyReportLen = 8 // [modifier, reserved, key1..key6]
	absMouseLen  = 6 // [buttons, x-low, x-high, y-low, y-high, wheel]
	relMouseLen  = 4 // [buttons, dx, dy, wheel]
	paraCfgLen   = 50
)

// MaxPayload is the largest payload the chip accepts in a single frame.
const MaxPayload = 64

// frameHeader is the fixed 5-byte prefix of every command:
// two magic bytes, the chip address, the opcode and the payload length.
var frameHeader = [3]byte{0x57, 0xAB, 0x00}

// Mouse button bits in the report button mask.
const (
	ButtonLeft   = 0x01
	ButtonRight  = 0x02
	ButtonMiddle = 0x04
)

// Device coordinate space for absolute positioning.
const (
	DeviceRangeMax = 4095
)

// Checksum returns the protocol checksum: the sum of all preceding
// bytes modulo 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Frame builds a complete wire frame for op with the given payload and
// appends the checksum. The returned slice is never mutated afterwards.
func Frame(op byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d", len(payload), MaxPayload)
	}
	cmd := make([]byte, 0, 5+len(payload)+1)
	cmd = append(cmd, frameHeader[0], frameHeader[1], frameHeader[2], op, byte(len(payload)))
	cmd = append(cmd, payload...)
	cmd = append(cmd, Checksum(cmd))
	return cmd, nil
}

// keyReport builds the 8-byte keyboard report payload. Only the first
// key slot is used; the chip handles rollover on its own.
func keyReport(modifiers, key byte) []byte {
	p := make([]byte, keyReportLen)
	p[0] = modifiers
	p[2] = key
	return p
}

// releaseReport is the all-zero key report that releases every held key
// and clears the modifier byte.
func releaseReport() []byte {
	return make([]byte, keyReportLen)
}

// absMouseReport builds the absolute mouse payload. x and y are in
// device space [0, 4095] and transmitted little-endian.
func absMouseReport(buttons byte, x, y uint16, wheel int8) []byte {
	return []byte{
		buttons,
		byte(x), byte(x >> 8),
		byte(y), byte(y >> 8),
		byte(wheel),
	}
}

// relMouseReport builds the relative mouse payload. Deltas are clamped
// to the int8 range by the caller.
func relMouseReport(buttons byte, dx, dy, wheel int8) []byte {
	return []byte{buttons, byte(dx), byte(dy), byte(wheel)}
}

// clampDelta squeezes a pointer delta into the int8 range of the
// relative mouse report.
func clampDelta(d int32) int8 {
	if d > 127 {
		return 127
	}
	if d < -127 {
		return -127
	}
	return int8(d)
}

// Chip configuration block offsets (SetParaCfg payload). The block is
// written whole; unnamed regions are left zero.
const (
	cfgOffWorkMode   = 0
	cfgOffSerialMode = 1
	cfgOffAddress    = 2
	cfgOffBaud       = 3  // 4 bytes, big-endian
	cfgOffVendorID   = 11 // 2 bytes, little-endian
	cfgOffProductID  = 13 // 2 bytes, little-endian

	// Operating mode the client expects: software-controlled composite
	// keyboard+mouse device.
	cfgWorkModeExpected = 0x82
	cfgSerialModeSoft   = 0x80

	// USB identity presented to the target machine.
	cfgVendorID  = 0x534D
	cfgProductID = 0x2109
)

// paraCfgPayload builds the 50-byte configuration block that switches
// the chip into the expected operating mode at the given baud rate.
func paraCfgPayload(baud int) []byte {
	p := make([]byte, paraCfgLen)
	p[cfgOffWorkMode] = cfgWorkModeExpected
	p[cfgOffSerialMode] = cfgSerialModeSoft
	p[cfgOffAddress] = 0x00
	p[cfgOffBaud] = byte(baud >> 24)
	p[cfgOffBaud+1] = byte(baud >> 16)
	p[cfgOffBaud+2] = byte(baud >> 8)
	p[cfgOffBaud+3] = byte(baud)
	p[cfgOffVendorID] = byte(cfgVendorID & 0xff)
	p[cfgOffVendorID+1] = byte(cfgVendorID >> 8)
	p[cfgOffProductID] = byte(cfgProductID & 0xff)
	p[cfgOffProductID+1] = byte(cfgProductID >> 8)
	return p
}
