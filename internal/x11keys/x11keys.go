// Package x11keys resolves X11 keysyms to the keycodes the current keyboard
// mapping binds them to, the one piece of X11 plumbing both the
// OutputInjector's XTEST backend and the HotkeyEngine's X11 backend need.
package x11keys

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// Keysym values needed across this repo (X11 keysymdef.h).
const (
	ControlL    = 0xffe3
	ControlR    = 0xffe4
	ShiftL      = 0xffe1
	ShiftR      = 0xffe2
	AltL        = 0xffe9
	AltR        = 0xffea
	SuperL      = 0xffeb
	SuperR      = 0xffec
	MetaL       = 0xffe7
	MetaR       = 0xffe8
	ISOLevel3Shift = 0xfe03
	ModeSwitch  = 0xff7e
	CapsLock    = 0xffe5
	NumLock     = 0xff7f
	LowerV      = 'v'
)

// KeycodeForKeysym scans the server's keyboard mapping for the keycode
// bound to ks, returning the first match.
func KeycodeForKeysym(conn *xgb.Conn, setup *xproto.SetupInfo, ks uint32) (xproto.Keycode, error) {
	count := setup.MaxKeycode - setup.MinKeycode + 1
	reply, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, byte(count)).Reply()
	if err != nil {
		return 0, fmt.Errorf("GetKeyboardMapping: %w", err)
	}
	perKeycode := int(reply.KeysymsPerKeycode)
	if perKeycode == 0 {
		return 0, fmt.Errorf("keyboard mapping reports 0 keysyms per keycode")
	}
	for i, sym := range reply.Keysyms {
		if uint32(sym) != ks {
			continue
		}
		keycode := setup.MinKeycode + xproto.Keycode(i/perKeycode)
		return keycode, nil
	}
	return 0, fmt.Errorf("no keycode bound to keysym 0x%x", ks)
}

// ModMaskForKeysyms derives the X mod-mask bit(s) whose modifier map
// contains any keycode bound to one of the given keysyms (used to resolve
// the current Alt/Meta mod-mask, which varies by layout and window manager).
func ModMaskForKeysyms(conn *xgb.Conn, setup *xproto.SetupInfo, keysyms ...uint32) (uint16, error) {
	modMapping, err := xproto.GetModifierMapping(conn).Reply()
	if err != nil {
		return 0, fmt.Errorf("GetModifierMapping: %w", err)
	}

	targets := make(map[xproto.Keycode]bool)
	for _, ks := range keysyms {
		if kc, err := KeycodeForKeysym(conn, setup, ks); err == nil {
			targets[kc] = true
		}
	}

	perMod := int(modMapping.KeycodesPerModifier)
	var mask uint16
	for modIndex := 0; modIndex < 8; modIndex++ {
		for j := 0; j < perMod; j++ {
			kc := modMapping.Keycodes[modIndex*perMod+j]
			if kc != 0 && targets[kc] {
				mask |= 1 << uint(modIndex)
			}
		}
	}
	return mask, nil
}
