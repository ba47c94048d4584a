package hotkey

import (
	"fmt"

	"github.com/openflow/dictation/internal/x11keys"
)

// evdev key codes (linux/input-event-codes.h) for every supported key.
const (
	keyEscape    = 1
	keyBackspace = 14
	keyTab       = 15
	keySpace     = 57
	keyEnter     = 28
	keyLeftCtrl  = 29
	keyLeftShift = 42
	keyRightShift = 54
	keyLeftAlt   = 56
	keyRightAlt  = 100
	keyCapsLock  = 58
	keyLeftMeta  = 125
	keyRightMeta = 126
	keyRightCtrl = 97
	keyUp        = 103
	keyLeft      = 105
	keyRight     = 106
	keyDown      = 108
	keyHome      = 102
	keyEnd       = 107
	keyPageUp    = 104
	keyPageDown  = 109
	keyInsert    = 110
	keyDelete    = 111
	keyNumLock   = 69
	keyScrollLock = 70
	keyPause     = 119
	keyA         = 30
	keyZ         = 44
)

var letterCodes = map[string]uint16{
	"a": 30, "b": 48, "c": 46, "d": 32, "e": 18, "f": 33, "g": 34, "h": 35,
	"i": 23, "j": 36, "k": 37, "l": 38, "m": 50, "n": 49, "o": 24, "p": 25,
	"q": 16, "r": 19, "s": 31, "t": 20, "u": 22, "v": 47, "w": 17, "x": 45,
	"y": 21, "z": 44,
}

var digitCodes = map[string]uint16{
	"0": 11, "1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10,
}

var fKeyCodes = map[string]uint16{
	"f1": 59, "f2": 60, "f3": 61, "f4": 62, "f5": 63, "f6": 64, "f7": 65, "f8": 66,
	"f9": 67, "f10": 68, "f11": 87, "f12": 88,
	"f13": 183, "f14": 184, "f15": 185, "f16": 186, "f17": 187, "f18": 188,
	"f19": 189, "f20": 190, "f21": 191, "f22": 192, "f23": 193, "f24": 194,
}

var namedCodes = map[string]uint16{
	"space": keySpace, "enter": keyEnter, "return": keyEnter,
	"esc": keyEscape, "escape": keyEscape, "tab": keyTab, "backspace": keyBackspace,
	"arrowup": keyUp, "arrowdown": keyDown, "arrowleft": keyLeft, "arrowright": keyRight,
	"leftalt": keyLeftAlt, "rightalt": keyRightAlt,
	"leftctrl": keyLeftCtrl, "rightctrl": keyRightCtrl,
	"leftshift": keyLeftShift, "rightshift": keyRightShift,
	"leftmeta": keyLeftMeta, "rightmeta": keyRightMeta,
	"home": keyHome, "end": keyEnd, "pageup": keyPageUp, "pagedown": keyPageDown,
	"insert": keyInsert, "delete": keyDelete,
	"capslock": keyCapsLock, "numlock": keyNumLock, "scrolllock": keyScrollLock, "pause": keyPause,
}

// evdevKeyCode resolves a parsed shortcut's terminal key name to its evdev
// code, for the raw-input backend.
func evdevKeyCode(key string) (uint16, bool) {
	if c, ok := letterCodes[key]; ok {
		return c, true
	}
	if c, ok := digitCodes[key]; ok {
		return c, true
	}
	if c, ok := fKeyCodes[key]; ok {
		return c, true
	}
	if c, ok := namedCodes[key]; ok {
		return c, true
	}
	return 0, false
}

// modifierKeyCodes lists both left/right evdev codes qualifying for a
// Modifier; left and right variants both qualify.
func modifierKeyCodes(m Modifier) []uint16 {
	switch m {
	case ModCtrl:
		return []uint16{keyLeftCtrl, keyRightCtrl}
	case ModAlt:
		return []uint16{keyLeftAlt, keyRightAlt}
	case ModShift:
		return []uint16{keyLeftShift, keyRightShift}
	case ModMeta:
		return []uint16{keyLeftMeta, keyRightMeta}
	default:
		return nil
	}
}

// x11KeysymForKey resolves a parsed shortcut's terminal key name to an X11
// keysym for the X11 backend.
func x11KeysymForKey(key string) (uint32, bool) {
	if len(key) == 1 && key[0] >= 'a' && key[0] <= 'z' {
		return uint32(key[0]), true
	}
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		return uint32(key[0]), true
	}
	named := map[string]uint32{
		"space": 0x0020, "enter": 0xff0d, "return": 0xff0d,
		"esc": 0xff1b, "escape": 0xff1b, "tab": 0xff09, "backspace": 0xff08,
		"arrowup": 0xff52, "arrowdown": 0xff54, "arrowleft": 0xff51, "arrowright": 0xff53,
		"leftalt": x11keys.AltL, "rightalt": x11keys.AltR,
		"leftctrl": x11keys.ControlL, "rightctrl": x11keys.ControlR,
		"leftshift": x11keys.ShiftL, "rightshift": x11keys.ShiftR,
		"leftmeta": x11keys.SuperL, "rightmeta": x11keys.SuperR,
		"home": 0xff50, "end": 0xff57, "pageup": 0xff55, "pagedown": 0xff56,
		"insert": 0xff63, "delete": 0xffff,
		"capslock": x11keys.CapsLock, "numlock": x11keys.NumLock,
		"scrolllock": 0xff14, "pause": 0xff13,
	}
	if ks, ok := named[key]; ok {
		return ks, true
	}
	for i := 1; i <= 24; i++ {
		if key == fmt.Sprintf("f%d", i) {
			return uint32(0xffbe + i - 1), true
		}
	}
	return 0, false
}
