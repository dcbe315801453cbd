package hid

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bnema/waykvm/internal/logger"
	"go.bug.st/serial"
)

// Connection errors surfaced by Connect.
var (
	// ErrUnresponsive means every negotiation strategy was exhausted
	// without the chip answering a probe.
	ErrUnresponsive = errors.New("hid: chip unresponsive at all baud rates")

	// ErrNegotiating rejects a second connect attempt while one is in
	// flight. It is not queued.
	ErrNegotiating = errors.New("hid: negotiation already in progress")

	// ErrNotConnected is returned by send primitives before Connect.
	ErrNotConnected = errors.New("hid: not connected")
)

// ConnState is the connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateNegotiating
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// FallbackBaud is the chip's factory-default rate, probed when the
// preferred rate gets no answer.
const FallbackBaud = 9600

// Negotiation timing. resetHold is how long the control line is held
// active for a hardware reset; the chip needs several seconds.
const (
	defaultProbeTimeout = 500 * time.Millisecond
	defaultResetHold    = 3 * time.Second
	defaultSettleDelay  = 500 * time.Millisecond
	defaultIOTimeout    = 200 * time.Millisecond
)

// Port is the serial transport the engine drives. It matches the subset
// of go.bug.st/serial.Port the protocol needs, so tests can substitute a
// simulated chip.
type Port interface {
	io.ReadWriteCloser
	SetBaud(baud int) error
	SetReadTimeout(d time.Duration) error
	SetRTS(level bool) error
	Drain() error
	ResetInputBuffer() error
}

// PortOpener opens the serial device at the given baud rate.
type PortOpener func(path string, baud int) (Port, error)

// serialPort adapts go.bug.st/serial.Port to the Port interface.
type serialPort struct {
	serial.Port
}

func (p *serialPort) SetBaud(baud int) error {
	return p.Port.SetMode(&serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// OpenSerialPort is the default PortOpener, backed by go.bug.st/serial.
func OpenSerialPort(path string, baud int) (Port, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &serialPort{Port: port}, nil
}

// Engine frames and sends commands to the HID-emulation chip and owns
// the connect/negotiate/reset sequence. All methods serialize access to
// the underlying port; the engine is safe for use from the input role
// and session-control callers, but commands are never interleaved.
type Engine struct {
	mu    sync.Mutex
	open  PortOpener
	port  Port
	state ConnState
	path  string
	baud  int

	// Modifier byte currently held on the target, cleared by releases.
	heldModifiers byte

	probeTimeout time.Duration
	resetHold    time.Duration
	settleDelay  time.Duration
	ioTimeout    time.Duration
}

// NewEngine creates an engine using the real serial transport.
func NewEngine() *Engine {
	return NewEngineWithOpener(OpenSerialPort)
}

// NewEngineWithOpener creates an engine with a custom transport opener.
// Tests use this to connect to a simulated chip.
func NewEngineWithOpener(open PortOpener) *Engine {
	return &Engine{
		open:         open,
		probeTimeout: defaultProbeTimeout,
		resetHold:    defaultResetHold,
		settleDelay:  defaultSettleDelay,
		ioTimeout:    defaultIOTimeout,
	}
}

// State returns the current connection state.
func (e *Engine) State() ConnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Baud returns the negotiated baud rate, or 0 when disconnected.
func (e *Engine) Baud() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected {
		return 0
	}
	return e.baud
}

// Connect opens the serial device and negotiates with the chip.
//
// The ladder: probe at preferredBaud; on silence, drop to the factory
// fallback rate and probe again. If the chip answers at the fallback but
// reports the wrong operating mode, write the configuration block and
// soft-reset it, then re-probe. If the fallback is also silent, toggle
// the RTS line for a hardware reset and run the soft-reset sequence once
// more. Exhausting all of that yields ErrUnresponsive; whether that is
// fatal is the caller's decision.
func (e *Engine) Connect(path string, preferredBaud int) error {
	e.mu.Lock()
	switch e.state {
	case StateNegotiating:
		e.mu.Unlock()
		return ErrNegotiating
	case StateConnected:
		e.mu.Unlock()
		return fmt.Errorf("hid: already connected to %s", e.path)
	}
	e.state = StateNegotiating
	e.mu.Unlock()

	baud, err := e.negotiate(path, preferredBaud)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		if e.port != nil {
			_ = e.port.Close()
			e.port = nil
		}
		e.state = StateDisconnected
		return err
	}
	e.state = StateConnected
	e.path = path
	e.baud = baud
	logger.Info("HID chip connected", "path", path, "baud", baud)
	return nil
}

func (e *Engine) negotiate(path string, preferredBaud int) (int, error) {
	port, err := e.open(path, preferredBaud)
	if err != nil {
		return 0, fmt.Errorf("hid: %w", err)
	}
	e.port = port
	if err := port.SetReadTimeout(e.probeTimeout); err != nil {
		return 0, fmt.Errorf("hid: set read timeout: %w", err)
	}

	// Strategy 1: the preferred rate.
	logger.Debug("Probing chip", "baud", preferredBaud)
	if e.probe() == nil {
		return preferredBaud, nil
	}

	// Strategy 2: the factory fallback rate, reconfiguring the chip if
	// its mode byte does not match.
	logger.Debug("No response, probing fallback", "baud", FallbackBaud)
	if err := port.SetBaud(FallbackBaud); err != nil {
		return 0, fmt.Errorf("hid: switch to fallback baud: %w", err)
	}
	_ = port.ResetInputBuffer()
	if err := e.probeAndReconfigure(); err == nil {
		return FallbackBaud, nil
	}

	// Strategy 3: hardware reset via the control line, then the soft
	// sequence once more.
	logger.Warn("Chip silent at both rates, attempting hardware reset")
	if err := e.hardwareReset(); err != nil {
		return 0, fmt.Errorf("hid: hardware reset: %w", err)
	}
	if err := e.probeAndReconfigure(); err == nil {
		return FallbackBaud, nil
	}

	return 0, ErrUnresponsive
}

// probe sends a get-info query and waits (bounded) for any well-formed
// response.
func (e *Engine) probe() error {
	if err := e.write(OpGetInfo, nil); err != nil {
		return err
	}
	_, err := e.readResponse(OpGetInfo)
	return err
}

// probeAndReconfigure queries the configuration block at the current
// rate. A mode mismatch triggers one reconfigure + soft reset cycle
// followed by a re-probe.
func (e *Engine) probeAndReconfigure() error {
	if err := e.write(OpGetParaCfg, nil); err != nil {
		return err
	}
	cfg, err := e.readResponse(OpGetParaCfg)
	if err != nil {
		return err
	}
	if len(cfg) > cfgOffWorkMode && cfg[cfgOffWorkMode] == cfgWorkModeExpected {
		return nil
	}

	logger.Info("Chip mode mismatch, reconfiguring",
		"have", fmt.Sprintf("0x%02x", cfg[cfgOffWorkMode]),
		"want", fmt.Sprintf("0x%02x", byte(cfgWorkModeExpected)))
	if err := e.write(OpSetParaCfg, paraCfgPayload(FallbackBaud)); err != nil {
		return err
	}
	if _, err := e.readResponse(OpSetParaCfg); err != nil {
		return err
	}
	if err := e.write(OpReset, nil); err != nil {
		return err
	}
	time.Sleep(e.settleDelay)
	_ = e.port.ResetInputBuffer()

	return e.probe()
}

// hardwareReset holds the RTS line active for resetHold, releases it and
// waits for the chip to settle.
func (e *Engine) hardwareReset() error {
	if err := e.port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(e.resetHold)
	if err := e.port.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(e.settleDelay)
	_ = e.port.ResetInputBuffer()
	return nil
}

// Close drops the connection. Safe to call in any state. When a key is
// still down on the target, a release report goes out first so the host
// is not left with a stuck modifier.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateConnected && e.heldModifiers != 0 {
		if err := e.write(OpKeyReport, releaseReport()); err != nil {
			logger.Debugf("Release on close failed: %v", err)
		}
		e.heldModifiers = 0
	}
	e.state = StateDisconnected
	if e.port == nil {
		return nil
	}
	err := e.port.Close()
	e.port = nil
	return err
}

// write frames op+payload and pushes it down the port. A short write or
// a failed flush is reported as-is; retry policy belongs to the caller.
func (e *Engine) write(op byte, payload []byte) error {
	cmd, err := Frame(op, payload)
	if err != nil {
		return err
	}
	n, err := e.port.Write(cmd)
	if err != nil {
		return fmt.Errorf("hid: write 0x%02x: %w", op, err)
	}
	if n != len(cmd) {
		return fmt.Errorf("hid: write 0x%02x: %w", op, io.ErrShortWrite)
	}
	if err := e.port.Drain(); err != nil {
		return fmt.Errorf("hid: flush 0x%02x: %w", op, err)
	}
	logger.Debug("Command sent", "op", fmt.Sprintf("0x%02x", op), "len", len(payload))
	return nil
}

// readResponse scans the input for a framed response to op and returns
// its payload. The wait is bounded by the port read timeout; running out
// of bytes yields an error, never a block.
func (e *Engine) readResponse(op byte) ([]byte, error) {
	want := op | respOpcodeFlag
	deadline := time.Now().Add(e.probeTimeout)
	buf := make([]byte, 0, 64)
	tmp := make([]byte, 64)

	for time.Now().Before(deadline) {
		n, err := e.port.Read(tmp)
		if err != nil {
			return nil, fmt.Errorf("hid: read response 0x%02x: %w", op, err)
		}
		if n == 0 {
			// Read timeout with nothing buffered.
			if payload, ok := parseFrame(buf, want); ok {
				return payload, nil
			}
			continue
		}
		buf = append(buf, tmp[:n]...)
		if payload, ok := parseFrame(buf, want); ok {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("hid: no response to 0x%02x within %s", op, e.probeTimeout)
}

// parseFrame looks for a complete, checksum-valid frame with the wanted
// opcode anywhere in buf.
func parseFrame(buf []byte, wantOp byte) ([]byte, bool) {
	for i := 0; i+5 <= len(buf); i++ {
		if buf[i] != frameHeader[0] || buf[i+1] != frameHeader[1] || buf[i+2] != frameHeader[2] {
			continue
		}
		if buf[i+3] != wantOp {
			continue
		}
		plen := int(buf[i+4])
		end := i + 5 + plen + 1
		if end > len(buf) {
			continue
		}
		frame := buf[i : end-1]
		if Checksum(frame) != buf[end-1] {
			continue
		}
		payload := make([]byte, plen)
		copy(payload, buf[i+5:i+5+plen])
		return payload, true
	}
	return nil, false
}

// sendLocked is the single path every outbound report goes through.
func (e *Engine) sendLocked(op byte, payload []byte) error {
	if e.state != StateConnected {
		return ErrNotConnected
	}
	return e.write(op, payload)
}

// SendKey presses a key. modifiers is the report modifier byte; it is
// remembered so the matching release clears it.
func (e *Engine) SendKey(usage byte, modifiers byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heldModifiers = modifiers
	return e.sendLocked(OpKeyReport, keyReport(modifiers, usage))
}

// SendKeyRelease releases all keys: the all-zero report with the held
// modifier byte cleared.
func (e *Engine) SendKeyRelease() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heldModifiers = 0
	return e.sendLocked(OpKeyReport, releaseReport())
}

// SendMouseAbsolute positions the pointer in device space [0, 4095].
func (e *Engine) SendMouseAbsolute(buttons byte, x, y uint16) error {
	if x > DeviceRangeMax {
		x = DeviceRangeMax
	}
	if y > DeviceRangeMax {
		y = DeviceRangeMax
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked(OpAbsMouse, absMouseReport(buttons, x, y, 0))
}

// SendMouseRelative moves the pointer by a clamped delta.
func (e *Engine) SendMouseRelative(buttons byte, dx, dy int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked(OpRelMouse, relMouseReport(buttons, clampDelta(dx), clampDelta(dy), 0))
}

// SendMouseButton reports a button change at an absolute position.
func (e *Engine) SendMouseButton(buttons byte, x, y uint16) error {
	return e.SendMouseAbsolute(buttons, x, y)
}

// SendScroll reports vertical wheel movement. steps is positive to
// scroll up.
func (e *Engine) SendScroll(steps int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked(OpRelMouse, relMouseReport(0, 0, 0, clampDelta(steps)))
}

// SendCtrlAltDel sends the three-finger salute to the target.
func (e *Engine) SendCtrlAltDel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sendLocked(OpKeyReport, keyReport(ModLeftCtrl|ModLeftAlt, UsageDelete)); err != nil {
		return err
	}
	return e.sendLocked(OpKeyReport, releaseReport())
}

// SendText types a string as a sequence of press/release reports.
// Characters with no US-layout mapping are skipped.
func (e *Engine) SendText(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < len(text); i++ {
		usage, mod, ok := keyForChar(text[i])
		if !ok {
			continue
		}
		if err := e.sendLocked(OpKeyReport, keyReport(mod, usage)); err != nil {
			return err
		}
		if err := e.sendLocked(OpKeyReport, releaseReport()); err != nil {
			return err
		}
	}
	return nil
}

// ResetChip soft-resets the HID chip.
func (e *Engine) ResetChip() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked(OpReset, nil)
}

// FactoryReset restores the chip's factory configuration.
func (e *Engine) FactoryReset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sendLocked(OpSetDefault, nil); err != nil {
		return err
	}
	return e.sendLocked(OpReset, nil)
}
