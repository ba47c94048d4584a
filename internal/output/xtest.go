package output

import (
	"fmt"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"

	"github.com/openflow/dictation/internal/x11keys"
)

// xtestInjector presses the paste chord via the XTEST extension, resolving
// keycodes from keysyms the same way HotkeyEngine's X11 backend derives its
// modifier masks (internal/hotkey).
type xtestInjector struct {
	conn *xgb.Conn

	ctrlCode  xproto.Keycode
	shiftCode xproto.Keycode
	vCode     xproto.Keycode
}

func newXTestInjector(conn *xgb.Conn, setup *xproto.SetupInfo) (*xtestInjector, error) {
	if err := xtest.Init(conn); err != nil {
		return nil, fmt.Errorf("XTEST extension unavailable: %w", err)
	}

	ctrl, err := x11keys.KeycodeForKeysym(conn, setup, x11keys.ControlL)
	if err != nil {
		return nil, err
	}
	shift, err := x11keys.KeycodeForKeysym(conn, setup, x11keys.ShiftL)
	if err != nil {
		return nil, err
	}
	v, err := x11keys.KeycodeForKeysym(conn, setup, x11keys.LowerV)
	if err != nil {
		return nil, err
	}

	return &xtestInjector{conn: conn, ctrlCode: ctrl, shiftCode: shift, vCode: v}, nil
}

func (x *xtestInjector) fakeKey(code xproto.Keycode, press bool) error {
	eventType := byte(xproto.KeyRelease)
	if press {
		eventType = byte(xproto.KeyPress)
	}
	return xtest.FakeInputChecked(x.conn, eventType, byte(code), 0, xproto.WindowNone, 0, 0, 0).Check()
}

func (x *xtestInjector) pressChord(shortcut PasteShortcut) error {
	mods := []xproto.Keycode{x.ctrlCode}
	if shortcut == ShortcutCtrlShiftV {
		mods = append(mods, x.shiftCode)
	}

	for _, m := range mods {
		if err := x.fakeKey(m, true); err != nil {
			return err
		}
	}
	if err := x.fakeKey(x.vCode, true); err != nil {
		return err
	}
	time.Sleep(keyEventDelay)
	if err := x.fakeKey(x.vCode, false); err != nil {
		return err
	}
	for i := len(mods) - 1; i >= 0; i-- {
		if err := x.fakeKey(mods[i], false); err != nil {
			return err
		}
	}
	return nil
}
