package hotkey

import (
	"context"
	"fmt"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/openflow/dictation/internal/x11keys"
)

type x11Backend struct {
	conn  *xgb.Conn
	setup *xproto.SetupInfo
	root  xproto.Window

	shortcut Shortcut
	keycode  xproto.Keycode
	modMask  uint16

	events chan<- Event
	stop   chan struct{}
	done   chan struct{}
}

func newX11Backend(events chan<- Event) (*x11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("X11 connection failed: %w", err)
	}
	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root
	return &x11Backend{conn: conn, setup: setup, root: root, events: events}, nil
}

// derivedModMask resolves the grab's required mod-mask: the shortcut's
// fixed modifiers (Ctrl/Shift use the well-known ControlMask/ShiftMask bits)
// plus Alt/Meta resolved from the current layout's modifier map, since
// those vary by layout and window manager.
func (x *x11Backend) derivedModMask(s Shortcut) (uint16, error) {
	var mask uint16
	if s.Has(ModCtrl) {
		mask |= xproto.ModMaskControl
	}
	if s.Has(ModShift) {
		mask |= xproto.ModMaskShift
	}
	if s.Has(ModAlt) {
		m, err := x11keys.ModMaskForKeysyms(x.conn, x.setup, x11keys.AltL, x11keys.AltR, x11keys.ISOLevel3Shift, x11keys.ModeSwitch)
		if err != nil {
			return 0, fmt.Errorf("resolving Alt mod-mask: %w", err)
		}
		mask |= m
	}
	if s.Has(ModMeta) {
		m, err := x11keys.ModMaskForKeysyms(x.conn, x.setup, x11keys.SuperL, x11keys.SuperR, x11keys.MetaL, x11keys.MetaR)
		if err != nil {
			return 0, fmt.Errorf("resolving Meta mod-mask: %w", err)
		}
		mask |= m
	}
	return mask, nil
}

// lockVariants installs extra grabs so CapsLock/NumLock being active
// doesn't prevent the grab from firing.
func lockVariants(base uint16) []uint16 {
	capsLock := uint16(xproto.ModMaskLock)
	numLock := uint16(xproto.ModMask2) // Mod2 is the conventional NumLock binding
	return []uint16{base, base | capsLock, base | numLock, base | capsLock | numLock}
}

func (x *x11Backend) grab(s Shortcut) error {
	ks, ok := x11KeysymForKey(s.Key)
	if !ok {
		return fmt.Errorf("no X11 keysym for key %q", s.Key)
	}
	kc, err := x11keys.KeycodeForKeysym(x.conn, x.setup, ks)
	if err != nil {
		return err
	}
	mask, err := x.derivedModMask(s)
	if err != nil {
		return err
	}

	for _, variant := range lockVariants(mask) {
		err := xproto.GrabKeyChecked(x.conn, true, x.root, variant, kc,
			xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
		if err != nil {
			return fmt.Errorf("GrabKey: %w", err)
		}
	}

	x.shortcut = s
	x.keycode = kc
	x.modMask = mask
	return nil
}

func (x *x11Backend) ungrab() {
	if x.keycode == 0 {
		return
	}
	for _, variant := range lockVariants(x.modMask) {
		xproto.UngrabKeyChecked(x.conn, x.keycode, x.root, variant).Check()
	}
	x.keycode = 0
}

func (x *x11Backend) start(ctx context.Context, shortcut Shortcut) error {
	if err := x.grab(shortcut); err != nil {
		return err
	}

	x.stop = make(chan struct{})
	x.done = make(chan struct{})

	go func() {
		defer close(x.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-x.stop:
				return
			default:
			}

			ev, err := x.conn.PollForEvent()
			if err != nil {
				return
			}
			if ev == nil {
				time.Sleep(x11IdleSleep)
				continue
			}
			x.dispatch(ev)
		}
	}()
	return nil
}

func (x *x11Backend) dispatch(ev xgb.Event) {
	switch e := ev.(type) {
	case xproto.KeyPressEvent:
		if e.Detail == x.keycode && e.State&x.modMask == x.modMask {
			x.emit(Pressed)
		}
	case xproto.KeyReleaseEvent:
		if e.Detail == x.keycode && e.State&x.modMask == x.modMask {
			x.emit(Released)
		}
	}
}

func (x *x11Backend) emit(edge Edge) {
	select {
	case x.events <- Event{Shortcut: x.shortcut.Raw, Edge: edge}:
	default:
	}
}

func (x *x11Backend) Stop() {
	if x.stop != nil {
		close(x.stop)
	}
	x.ungrab()
	x.conn.Close()
}
