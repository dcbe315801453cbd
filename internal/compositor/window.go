// Package compositor owns the Wayland presentation surface: registry
// binding, the xdg toplevel, shared-memory buffers and the seat input
// devices. It translates compositor events into plain callbacks so the
// rest of the program never touches wire objects.
package compositor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bnema/waykvm/internal/logger"
	"github.com/rajveermalviya/go-wayland/wayland/client"
	xdg_shell "github.com/rajveermalviya/go-wayland/wayland/stable/xdg-shell"
	"golang.org/x/sys/unix"
)

// Handlers receives translated compositor events. All callbacks fire
// on the event-dispatch goroutine; keep them short.
type Handlers struct {
	PointerMotion func(x, y int32)
	PointerButton func(button uint32, pressed bool, serial uint32)
	PointerAxis   func(value float64)
	Key           func(code uint32, pressed bool)
	Configure     func(width, height int32)
	Close         func()
}

// Window is an xdg toplevel backed by a wl_shm buffer.
type Window struct {
	display    *client.Display
	registry   *client.Registry
	compositor *client.Compositor
	shm        *client.Shm
	seat       *client.Seat
	wmBase     *xdg_shell.WmBase

	surface    *client.Surface
	xdgSurface *xdg_shell.Surface
	toplevel   *xdg_shell.Toplevel

	pointer  *client.Pointer
	keyboard *client.Keyboard

	mu     sync.Mutex
	buf    *ShmBuffer
	width  int32
	height int32

	handlers Handlers

	pointerX      int32
	pointerY      int32
	pointerSerial uint32

	configured atomic.Bool
	closed     atomic.Bool
}

// Connect opens the Wayland display named in $WAYLAND_DISPLAY, binds
// the required globals and creates a toplevel of the given size. The
// first configure has been acknowledged when Connect returns.
func Connect(title string, width, height int32, handlers Handlers) (*Window, error) {
	display, err := client.Connect("")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Wayland display: %w", err)
	}

	w := &Window{
		display:  display,
		width:    width,
		height:   height,
		handlers: handlers,
	}

	registry, err := display.GetRegistry()
	if err != nil {
		w.Destroy()
		return nil, fmt.Errorf("failed to get registry: %w", err)
	}
	w.registry = registry

	registry.SetGlobalHandler(w.handleGlobal)
	if err := w.roundtrip(); err != nil {
		w.Destroy()
		return nil, err
	}
	// Seat capabilities arrive after the bind.
	if err := w.roundtrip(); err != nil {
		w.Destroy()
		return nil, err
	}

	switch {
	case w.compositor == nil:
		err = fmt.Errorf("compositor does not advertise wl_compositor")
	case w.shm == nil:
		err = fmt.Errorf("compositor does not advertise wl_shm")
	case w.wmBase == nil:
		err = fmt.Errorf("compositor does not advertise xdg_wm_base")
	}
	if err != nil {
		w.Destroy()
		return nil, err
	}

	if err := w.createToplevel(title); err != nil {
		w.Destroy()
		return nil, err
	}

	// Wait for the initial configure before attaching a buffer.
	if err := w.roundtrip(); err != nil {
		w.Destroy()
		return nil, err
	}

	buf, err := NewShmBuffer(w.shm, w.width, w.height)
	if err != nil {
		w.Destroy()
		return nil, err
	}
	w.buf = buf

	logger.Debugf("Wayland window up: %dx%d", w.width, w.height)
	return w, nil
}

func (w *Window) handleGlobal(e client.RegistryGlobalEvent) {
	switch e.Interface {
	case "wl_compositor":
		compositor := client.NewCompositor(w.display.Context())
		if err := w.registry.Bind(e.Name, e.Interface, e.Version, compositor); err != nil {
			logger.Errorf("Failed to bind wl_compositor: %v", err)
			return
		}
		w.compositor = compositor
	case "wl_shm":
		shm := client.NewShm(w.display.Context())
		if err := w.registry.Bind(e.Name, e.Interface, e.Version, shm); err != nil {
			logger.Errorf("Failed to bind wl_shm: %v", err)
			return
		}
		w.shm = shm
	case "wl_seat":
		if w.seat != nil {
			return
		}
		seat := client.NewSeat(w.display.Context())
		if err := w.registry.Bind(e.Name, e.Interface, e.Version, seat); err != nil {
			logger.Errorf("Failed to bind wl_seat: %v", err)
			return
		}
		w.seat = seat
		seat.SetCapabilitiesHandler(w.handleSeatCapabilities)
	case "xdg_wm_base":
		wmBase := xdg_shell.NewWmBase(w.display.Context())
		if err := w.registry.Bind(e.Name, e.Interface, e.Version, wmBase); err != nil {
			logger.Errorf("Failed to bind xdg_wm_base: %v", err)
			return
		}
		w.wmBase = wmBase
		// Pong inline so liveness never waits on a slow frame.
		wmBase.SetPingHandler(func(e xdg_shell.WmBasePingEvent) {
			if err := wmBase.Pong(e.Serial); err != nil {
				logger.Warnf("xdg_wm_base pong: %v", err)
			}
		})
	}
}

func (w *Window) handleSeatCapabilities(e client.SeatCapabilitiesEvent) {
	if e.Capabilities&uint32(client.SeatCapabilityPointer) != 0 && w.pointer == nil {
		pointer, err := w.seat.GetPointer()
		if err != nil {
			logger.Errorf("Failed to get wl_pointer: %v", err)
		} else {
			w.pointer = pointer
			w.wirePointer(pointer)
		}
	}
	if e.Capabilities&uint32(client.SeatCapabilityKeyboard) != 0 && w.keyboard == nil {
		keyboard, err := w.seat.GetKeyboard()
		if err != nil {
			logger.Errorf("Failed to get wl_keyboard: %v", err)
		} else {
			w.keyboard = keyboard
			w.wireKeyboard(keyboard)
		}
	}
}

func (w *Window) wirePointer(pointer *client.Pointer) {
	pointer.SetEnterHandler(func(e client.PointerEnterEvent) {
		w.pointerSerial = e.Serial
		w.pointerX = int32(e.SurfaceX)
		w.pointerY = int32(e.SurfaceY)
	})
	pointer.SetMotionHandler(func(e client.PointerMotionEvent) {
		w.pointerX = int32(e.SurfaceX)
		w.pointerY = int32(e.SurfaceY)
		if w.handlers.PointerMotion != nil {
			w.handlers.PointerMotion(w.pointerX, w.pointerY)
		}
	})
	pointer.SetButtonHandler(func(e client.PointerButtonEvent) {
		w.pointerSerial = e.Serial
		if w.handlers.PointerButton != nil {
			pressed := e.State == uint32(client.PointerButtonStatePressed)
			w.handlers.PointerButton(e.Button, pressed, e.Serial)
		}
	})
	pointer.SetAxisHandler(func(e client.PointerAxisEvent) {
		if e.Axis != uint32(client.PointerAxisVerticalScroll) {
			return
		}
		if w.handlers.PointerAxis != nil {
			w.handlers.PointerAxis(e.Value)
		}
	})
}

func (w *Window) wireKeyboard(keyboard *client.Keyboard) {
	keyboard.SetKeymapHandler(func(e client.KeyboardKeymapEvent) {
		// The chip speaks raw HID usages, so the xkb keymap is unused.
		unix.Close(int(e.Fd))
	})
	keyboard.SetKeyHandler(func(e client.KeyboardKeyEvent) {
		if w.handlers.Key != nil {
			pressed := e.State == uint32(client.KeyboardKeyStatePressed)
			w.handlers.Key(e.Key, pressed)
		}
	})
}

func (w *Window) createToplevel(title string) error {
	surface, err := w.compositor.CreateSurface()
	if err != nil {
		return fmt.Errorf("create surface: %w", err)
	}
	w.surface = surface

	xdgSurface, err := w.wmBase.GetXdgSurface(surface)
	if err != nil {
		return fmt.Errorf("get xdg surface: %w", err)
	}
	w.xdgSurface = xdgSurface

	xdgSurface.SetConfigureHandler(func(e xdg_shell.SurfaceConfigureEvent) {
		if err := xdgSurface.AckConfigure(e.Serial); err != nil {
			logger.Warnf("ack configure: %v", err)
		}
		w.configured.Store(true)
	})

	toplevel, err := xdgSurface.GetToplevel()
	if err != nil {
		return fmt.Errorf("get toplevel: %w", err)
	}
	w.toplevel = toplevel

	toplevel.SetConfigureHandler(func(e xdg_shell.ToplevelConfigureEvent) {
		if e.Width == 0 || e.Height == 0 {
			return
		}
		if w.handlers.Configure != nil {
			w.handlers.Configure(e.Width, e.Height)
		}
	})
	toplevel.SetCloseHandler(func(xdg_shell.ToplevelCloseEvent) {
		w.closed.Store(true)
		if w.handlers.Close != nil {
			w.handlers.Close()
		}
	})

	if err := toplevel.SetTitle(title); err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	if err := toplevel.SetAppId("com.github.bnema.waykvm"); err != nil {
		return fmt.Errorf("set app id: %w", err)
	}
	if err := surface.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Dispatch blocks until the compositor delivers events and runs the
// handlers. Call it in a dedicated loop; Nudge wakes it.
func (w *Window) Dispatch() {
	w.display.Context().Dispatch()
}

// Nudge queues a sync request so a Dispatch blocked on a quiet
// compositor wakes up promptly.
func (w *Window) Nudge() {
	if _, err := w.display.Sync(); err != nil {
		logger.Debugf("display sync nudge: %v", err)
	}
}

// roundtrip flushes requests and waits until the compositor has
// processed them.
func (w *Window) roundtrip() error {
	callback, err := w.display.Sync()
	if err != nil {
		return fmt.Errorf("display sync: %w", err)
	}
	done := false
	callback.SetDoneHandler(func(client.CallbackDoneEvent) {
		done = true
	})
	for !done && !w.closed.Load() {
		w.display.Context().Dispatch()
	}
	return nil
}

// CopyIn runs fn against the mapped pixel memory of the current buffer
// while holding the buffer lock, so a concurrent Resize cannot unmap
// the slice mid-write. fn must not retain the slice. Returns fn's
// result, or false when no buffer exists yet.
func (w *Window) CopyIn(fn func(pix []byte, width, height int32) bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return false
	}
	return fn(w.buf.data, w.width, w.height)
}

// Size returns the current window size.
func (w *Window) Size() (int32, int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// Resize replaces the shm buffer with one of the new dimensions.
func (w *Window) Resize(width, height int32) error {
	buf, err := NewShmBuffer(w.shm, width, height)
	if err != nil {
		return err
	}
	w.mu.Lock()
	old := w.buf
	w.buf = buf
	w.width = width
	w.height = height
	w.mu.Unlock()
	// The swap happened under the lock CopyIn holds while writing, so
	// nothing can still reference the old mapping here.
	if old != nil {
		old.Destroy()
	}
	logger.Debugf("Window buffer resized to %dx%d", width, height)
	return nil
}

// Present attaches the current buffer and commits the surface. Must be
// called from the dispatch goroutine.
func (w *Window) Present() error {
	w.mu.Lock()
	buf := w.buf
	width, height := w.width, w.height
	w.mu.Unlock()
	if buf == nil || !w.configured.Load() {
		return nil
	}
	if err := w.surface.Attach(buf.buffer, 0, 0); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if err := w.surface.Damage(0, 0, width, height); err != nil {
		return fmt.Errorf("damage: %w", err)
	}
	if err := w.surface.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// StartResize hands an interactive resize to the compositor using the
// most recent pointer serial.
func (w *Window) StartResize(edges uint32) error {
	if w.seat == nil || w.toplevel == nil {
		return fmt.Errorf("no seat bound")
	}
	return w.toplevel.Resize(w.seat, w.pointerSerial, edges)
}

// PointerPosition returns the last surface-local pointer position.
func (w *Window) PointerPosition() (int32, int32) {
	return w.pointerX, w.pointerY
}

// Closed reports whether the compositor asked the window to close.
func (w *Window) Closed() bool { return w.closed.Load() }

// Destroy tears the window down in reverse creation order.
func (w *Window) Destroy() {
	if w.buf != nil {
		w.buf.Destroy()
		w.buf = nil
	}
	if w.toplevel != nil {
		w.toplevel.Destroy()
		w.toplevel = nil
	}
	if w.xdgSurface != nil {
		w.xdgSurface.Destroy()
		w.xdgSurface = nil
	}
	if w.surface != nil {
		w.surface.Destroy()
		w.surface = nil
	}
	if w.display != nil {
		w.display.Destroy()
		w.display = nil
	}
}
