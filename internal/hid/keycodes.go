package hid

// Modifier bits of the keyboard report modifier byte.
const (
	ModLeftCtrl   = 0x01
	ModLeftShift  = 0x02
	ModLeftAlt    = 0x04
	ModLeftGUI    = 0x08
	ModRightCtrl  = 0x10
	ModRightShift = 0x20
	ModRightAlt   = 0x40
	ModRightGUI   = 0x80
)

// HID usage IDs referenced outside the table.
const (
	UsageDelete = 0x4C
)

// evdevToUsage maps Linux input event key codes to USB HID usage IDs.
// Keys without an entry are not forwarded.
var evdevToUsage = map[uint32]byte{
	// Letters
	30: 0x04, // A
	48: 0x05, // B
	46: 0x06, // C
	32: 0x07, // D
	18: 0x08, // E
	33: 0x09, // F
	34: 0x0A, // G
	35: 0x0B, // H
	23: 0x0C, // I
	36: 0x0D, // J
	37: 0x0E, // K
	38: 0x0F, // L
	50: 0x10, // M
	49: 0x11, // N
	24: 0x12, // O
	25: 0x13, // P
	16: 0x14, // Q
	19: 0x15, // R
	31: 0x16, // S
	20: 0x17, // T
	22: 0x18, // U
	47: 0x19, // V
	17: 0x1A, // W
	45: 0x1B, // X
	21: 0x1C, // Y
	44: 0x1D, // Z

	// Digits
	2:  0x1E, // 1
	3:  0x1F, // 2
	4:  0x20, // 3
	5:  0x21, // 4
	6:  0x22, // 5
	7:  0x23, // 6
	8:  0x24, // 7
	9:  0x25, // 8
	10: 0x26, // 9
	11: 0x27, // 0

	// Control and whitespace
	28:  0x28, // Enter
	1:   0x29, // Escape
	14:  0x2A, // Backspace
	15:  0x2B, // Tab
	57:  0x2C, // Space
	12:  0x2D, // -
	13:  0x2E, // =
	26:  0x2F, // [
	27:  0x30, // ]
	43:  0x31, // backslash
	39:  0x33, // ;
	40:  0x34, // '
	41:  0x35, // `
	51:  0x36, // ,
	52:  0x37, // .
	53:  0x38, // /
	58:  0x39, // Caps Lock
	119: 0x48, // Pause

	// Function keys
	59: 0x3A, // F1
	60: 0x3B,
	61: 0x3C,
	62: 0x3D,
	63: 0x3E,
	64: 0x3F,
	65: 0x40,
	66: 0x41,
	67: 0x42,
	68: 0x43,
	87: 0x44, // F11
	88: 0x45, // F12

	// Navigation cluster
	99:  0x46, // Print Screen
	70:  0x47, // Scroll Lock
	110: 0x49, // Insert
	102: 0x4A, // Home
	104: 0x4B, // Page Up
	111: UsageDelete,
	107: 0x4D, // End
	109: 0x4E, // Page Down
	106: 0x4F, // Right
	105: 0x50, // Left
	108: 0x51, // Down
	103: 0x52, // Up

	// Keypad
	69: 0x53, // Num Lock
	98: 0x54, // KP /
	55: 0x55, // KP *
	74: 0x56, // KP -
	78: 0x57, // KP +
	96: 0x58, // KP Enter
	79: 0x59, // KP 1
	80: 0x5A,
	81: 0x5B,
	75: 0x5C,
	76: 0x5D,
	77: 0x5E,
	71: 0x5F,
	72: 0x60,
	73: 0x61, // KP 9
	82: 0x62, // KP 0
	83: 0x63, // KP .
}

// evdevToModifier maps Linux modifier key codes to report modifier bits.
var evdevToModifier = map[uint32]byte{
	29:  ModLeftCtrl,
	42:  ModLeftShift,
	56:  ModLeftAlt,
	125: ModLeftGUI,
	97:  ModRightCtrl,
	54:  ModRightShift,
	100: ModRightAlt,
	126: ModRightGUI,
}

// UsageForKey returns the HID usage for a Linux key code, or 0 when the
// key has no mapping. Modifier keys report usage 0 with their bit set.
func UsageForKey(code uint32) (usage byte, modifier byte) {
	if m, ok := evdevToModifier[code]; ok {
		return 0, m
	}
	return evdevToUsage[code], 0
}

// asciiKey describes how to type one printable character.
type asciiKey struct {
	usage byte
	shift bool
}

// asciiToKey maps printable ASCII to the US-layout key producing it.
var asciiToKey = map[byte]asciiKey{
	' ': {0x2C, false}, '\n': {0x28, false}, '\t': {0x2B, false},
	'-': {0x2D, false}, '_': {0x2D, true},
	'=': {0x2E, false}, '+': {0x2E, true},
	'[': {0x2F, false}, '{': {0x2F, true},
	']': {0x30, false}, '}': {0x30, true},
	'\\': {0x31, false}, '|': {0x31, true},
	';': {0x33, false}, ':': {0x33, true},
	'\'': {0x34, false}, '"': {0x34, true},
	'`': {0x35, false}, '~': {0x35, true},
	',': {0x36, false}, '<': {0x36, true},
	'.': {0x37, false}, '>': {0x37, true},
	'/': {0x38, false}, '?': {0x38, true},
	'1': {0x1E, false}, '!': {0x1E, true},
	'2': {0x1F, false}, '@': {0x1F, true},
	'3': {0x20, false}, '#': {0x20, true},
	'4': {0x21, false}, '$': {0x21, true},
	'5': {0x22, false}, '%': {0x22, true},
	'6': {0x23, false}, '^': {0x23, true},
	'7': {0x24, false}, '&': {0x24, true},
	'8': {0x25, false}, '*': {0x25, true},
	'9': {0x26, false}, '(': {0x26, true},
	'0': {0x27, false}, ')': {0x27, true},
}

// keyForChar resolves a printable character to its usage and modifier.
func keyForChar(c byte) (usage byte, modifiers byte, ok bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return 0x04 + c - 'a', 0, true
	case c >= 'A' && c <= 'Z':
		return 0x04 + c - 'A', ModLeftShift, true
	default:
		k, found := asciiToKey[c]
		if !found {
			return 0, 0, false
		}
		var mod byte
		if k.shift {
			mod = ModLeftShift
		}
		return k.usage, mod, true
	}
}
