package output

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// keyInjector is the narrow capability both backends expose.
type keyInjector interface {
	pressChord(shortcut PasteShortcut) error
}

// Injector implements the five-step paste protocol. Backend
// selection follows session type, same rule as HotkeyEngine: Wayland first,
// otherwise X11, with X11 falling back to uinput if XTEST can't be used.
type Injector struct {
	mu       sync.Mutex
	wayland  bool
	shortcut PasteShortcut
	cb       clipboard

	xconn *xgb.Conn
	uin   *uinputKeyboard
	xtest *xtestInjector
}

// New builds an Injector for the given session. wayland selects the
// Wayland clipboard/injection path; otherwise X11.
func New(wayland bool) *Injector {
	return &Injector{wayland: wayland, shortcut: ShortcutCtrlShiftV, cb: newClipboard(wayland)}
}

// SetPasteShortcut updates the chord used on the next paste.
func (in *Injector) SetPasteShortcut(s PasteShortcut) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.shortcut = s
}

// CurrentPasteShortcut reports the configured chord.
func (in *Injector) CurrentPasteShortcut() PasteShortcut {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.shortcut
}

// Prewarm creates the process-owned virtual keyboard device (Wayland) or
// opens the X11 connection and XTEST extension (X11) once, ahead of the
// first injection. The virtual keyboard lives for the process lifetime.
func (in *Injector) Prewarm() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.wayland {
		if in.uin != nil {
			return nil
		}
		k, err := newUinputKeyboard()
		if err != nil {
			slog.Warn("uinput virtual keyboard unavailable, paste injection disabled", "error", err)
			return nil
		}
		in.uin = k
		return nil
	}

	if in.xconn != nil {
		return nil
	}
	conn, err := xgb.NewConn()
	if err != nil {
		slog.Warn("X11 connection unavailable, falling back to uinput for injection", "error", err)
		return in.prewarmUinputFallback()
	}
	in.xconn = conn
	xt, err := newXTestInjector(conn, xproto.Setup(conn))
	if err != nil {
		slog.Warn("XTEST unavailable, falling back to uinput for injection", "error", err)
		return in.prewarmUinputFallback()
	}
	in.xtest = xt
	return nil
}

func (in *Injector) prewarmUinputFallback() error {
	k, err := newUinputKeyboard()
	if err != nil {
		slog.Warn("uinput fallback also unavailable, key injection disabled", "error", err)
		return nil
	}
	in.uin = k
	return nil
}

func (in *Injector) injector() keyInjector {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.xtest != nil {
		return in.xtest
	}
	if in.uin != nil {
		return in.uin
	}
	return nil
}

// Inject runs the five-step protocol for text. action == ActionCopy skips
// the key-injection steps and leaves the transcript on the clipboard.
func (in *Injector) Inject(ctx context.Context, text string, action Action) *PasteFailure {
	previous, hadPrevious := in.snapshot(ctx)

	if err := in.cb.write(ctx, text); err != nil {
		return newFailure(StepClipboardWrite, KindFailed, err.Error(), false)
	}

	if !confirmClipboard(ctx, in.cb, text) {
		return newFailure(StepClipboardWrite, KindUnconfirmed, "clipboard contents did not match transcript within the poll window", true)
	}

	if action == ActionCopy {
		return nil
	}

	ki := in.injector()
	if ki == nil {
		return newFailure(StepKeyInject, KindFailed, "no key injection backend available", true)
	}
	if err := ki.pressChord(in.CurrentPasteShortcut()); err != nil {
		return newFailure(StepKeyInject, KindFailed, err.Error(), true)
	}

	return in.holdAndRestore(ctx, text, previous, hadPrevious)
}

func (in *Injector) snapshot(ctx context.Context) (text string, ok bool) {
	got, err := in.cb.read(ctx)
	if err != nil {
		return "", false
	}
	return got, true
}

// holdAndRestore waits holdDuration then restores the previous clipboard
// contents unless the user copied something else in the meantime, or there
// was nothing to restore to.
func (in *Injector) holdAndRestore(ctx context.Context, text, previous string, hadPrevious bool) *PasteFailure {
	select {
	case <-ctx.Done():
	case <-time.After(holdDuration):
	}

	current, err := in.cb.read(ctx)
	if err != nil || current != text {
		// User copied something else (or the helper failed to read back);
		// leave whatever is there alone.
		return nil
	}

	if !hadPrevious {
		return newFailure(StepClipboardWrite, KindUnconfirmed, "no prior clipboard contents to restore", true)
	}
	if err := in.cb.write(ctx, previous); err != nil {
		return newFailure(StepClipboardWrite, KindUnconfirmed, err.Error(), true)
	}
	return nil
}

// Close releases the virtual keyboard device and/or X11 connection.
func (in *Injector) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.uin != nil {
		in.uin.Close()
		in.uin = nil
	}
	if in.xconn != nil {
		in.xconn.Close()
		in.xconn = nil
	}
}
