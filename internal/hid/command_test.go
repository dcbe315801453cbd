package hid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameChecksum(t *testing.T) {
	tests := []struct {
		name    string
		op      byte
		payload []byte
	}{
		{"empty payload", OpGetInfo, nil},
		{"key report", OpKeyReport, keyReport(ModLeftShift, 0x04)},
		{"release report", OpKeyReport, releaseReport()},
		{"abs mouse", OpAbsMouse, absMouseReport(ButtonLeft, 2048, 4095, 0)},
		{"rel mouse", OpRelMouse, relMouseReport(0, -5, 127, -1)},
		{"config block", OpSetParaCfg, paraCfgPayload(115200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Frame(tt.op, tt.payload)
			require.NoError(t, err)

			// Framed length is header + payload + checksum.
			assert.Len(t, cmd, 5+len(tt.payload)+1)
			assert.Equal(t, []byte{0x57, 0xAB, 0x00}, cmd[:3])
			assert.Equal(t, tt.op, cmd[3])
			assert.Equal(t, byte(len(tt.payload)), cmd[4])

			// Checksum is the byte sum of everything before it.
			var sum byte
			for _, b := range cmd[:len(cmd)-1] {
				sum += b
			}
			assert.Equal(t, sum, cmd[len(cmd)-1])
		})
	}
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	_, err := Frame(OpKeyReport, make([]byte, MaxPayload+1))
	assert.Error(t, err)
}

func TestKeyReportTemplates(t *testing.T) {
	p := keyReport(ModLeftCtrl|ModLeftAlt, UsageDelete)
	require.Len(t, p, 8)
	assert.Equal(t, byte(ModLeftCtrl|ModLeftAlt), p[0])
	assert.Equal(t, byte(0), p[1])
	assert.Equal(t, byte(UsageDelete), p[2])

	// Release is all zeros, including the modifier byte.
	assert.Equal(t, make([]byte, 8), releaseReport())
}

func TestAbsMouseReportLittleEndian(t *testing.T) {
	p := absMouseReport(ButtonLeft, 0x0ABC, 0x0FFF, 0)
	require.Len(t, p, 6)
	assert.Equal(t, byte(ButtonLeft), p[0])
	assert.Equal(t, byte(0xBC), p[1])
	assert.Equal(t, byte(0x0A), p[2])
	assert.Equal(t, byte(0xFF), p[3])
	assert.Equal(t, byte(0x0F), p[4])
}

func TestClampDelta(t *testing.T) {
	assert.Equal(t, int8(127), clampDelta(300))
	assert.Equal(t, int8(-127), clampDelta(-300))
	assert.Equal(t, int8(15), clampDelta(15))
	assert.Equal(t, int8(-15), clampDelta(-15))
}

func TestParseFrameResync(t *testing.T) {
	resp, err := Frame(OpGetInfo|0x80, []byte{0x30, 0x01})
	require.NoError(t, err)

	// Garbage before the frame must not confuse the scanner.
	buf := append([]byte{0x00, 0x57, 0xAB}, resp...)
	payload, ok := parseFrame(buf, OpGetInfo|0x80)
	require.True(t, ok)
	assert.Equal(t, []byte{0x30, 0x01}, payload)

	// Corrupt checksum is rejected.
	bad := append([]byte(nil), resp...)
	bad[len(bad)-1]++
	_, ok = parseFrame(bad, OpGetInfo|0x80)
	assert.False(t, ok)
}

func TestUsageForKey(t *testing.T) {
	usage, mod := UsageForKey(30) // KEY_A
	assert.Equal(t, byte(0x04), usage)
	assert.Equal(t, byte(0), mod)

	usage, mod = UsageForKey(29) // KEY_LEFTCTRL
	assert.Equal(t, byte(0), usage)
	assert.Equal(t, byte(ModLeftCtrl), mod)

	usage, mod = UsageForKey(0xFFFF) // unmapped
	assert.Equal(t, byte(0), usage)
	assert.Equal(t, byte(0), mod)
}

func TestKeyForChar(t *testing.T) {
	usage, mod, ok := keyForChar('a')
	require.True(t, ok)
	assert.Equal(t, byte(0x04), usage)
	assert.Equal(t, byte(0), mod)

	usage, mod, ok = keyForChar('A')
	require.True(t, ok)
	assert.Equal(t, byte(0x04), usage)
	assert.Equal(t, byte(ModLeftShift), mod)

	usage, mod, ok = keyForChar('!')
	require.True(t, ok)
	assert.Equal(t, byte(0x1E), usage)
	assert.Equal(t, byte(ModLeftShift), mod)

	_, _, ok = keyForChar(0x01)
	assert.False(t, ok)
}
