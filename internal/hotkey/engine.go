package hotkey

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openflow/dictation/internal/registry"
)

const (
	backendWaylandRawInput = "wayland-raw-input"
	backendX11Grab         = "x11-grab"
)

type activeBackend interface {
	Stop()
}

// Engine is the single writer to the process-wide "current hotkey" cell
//: register/unregister/reregister atomically tear down the
// prior backend before starting the next one.
type Engine struct {
	mu       sync.Mutex
	wayland  bool
	registry *registry.SystemRegistry
	events   chan Event
	ctx      context.Context
	cancel   context.CancelFunc

	active activeBackend
}

// New builds an Engine. wayland selects the raw-input backend as primary;
// otherwise X11 grabs are tried first, falling back to raw-input on grab
// failure.
func New(wayland bool, reg *registry.SystemRegistry) *Engine {
	return &Engine{wayland: wayland, registry: reg, events: make(chan Event, 16)}
}

// Events returns the channel Pressed/Released edges are delivered on.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Register parses shortcut and starts the appropriate backend, tearing down
// any existing registration first.
func (e *Engine) Register(shortcut string) error {
	s, err := ParseShortcut(shortcut)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopActiveLocked()

	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx
	e.cancel = cancel

	if e.wayland {
		rb := newRawInputBackend(e.events)
		rb.start(ctx, s)
		e.active = rb
		e.registry.SetHotkey(registry.HotkeyHandle{Shortcut: s.Raw, Backend: backendWaylandRawInput})
		return nil
	}

	xb, err := newX11Backend(e.events)
	if err != nil {
		slog.Warn("X11 backend unavailable, falling back to raw-input", "error", err)
		cancel()
		return e.registerRawInputLocked(s)
	}
	if err := xb.start(ctx, s); err != nil {
		slog.Warn("X11 grab failed, falling back to raw-input", "error", err)
		xb.conn.Close()
		cancel()
		return e.registerRawInputLocked(s)
	}
	e.active = xb
	e.registry.SetHotkey(registry.HotkeyHandle{Shortcut: s.Raw, Backend: backendX11Grab})
	return nil
}

func (e *Engine) registerRawInputLocked(s Shortcut) error {
	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx
	e.cancel = cancel
	rb := newRawInputBackend(e.events)
	rb.start(ctx, s)
	e.active = rb
	e.registry.SetHotkey(registry.HotkeyHandle{Shortcut: s.Raw, Backend: backendWaylandRawInput})
	return nil
}

// Unregister tears down the active backend and clears the registry cell.
func (e *Engine) Unregister() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopActiveLocked()
	e.registry.ClearHotkey()
}

// Reregister re-parses and restarts with a new shortcut string.
func (e *Engine) Reregister(shortcut string) error {
	return e.Register(shortcut)
}

func (e *Engine) stopActiveLocked() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.active != nil {
		e.active.Stop()
		e.active = nil
	}
}
