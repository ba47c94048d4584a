package hotkey

import (
	"fmt"
	"strings"
)

// Modifier is one of the four modifier families a shortcut can require.
type Modifier int

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModMeta
)

// Shortcut is a parsed `(Modifier '+')* Key` binding.
type Shortcut struct {
	Raw       string
	Modifiers Modifier
	Key       string
}

var modifierAliases = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"shift":   ModShift,
	"meta":    ModMeta,
	"super":   ModMeta,
	"command": ModMeta,
	"logo":    ModMeta,
}

var validKeys = buildValidKeySet()

func buildValidKeySet() map[string]bool {
	keys := map[string]bool{
		"space": true, "enter": true, "return": true, "esc": true, "escape": true,
		"tab": true, "backspace": true,
		"arrowup": true, "arrowdown": true, "arrowleft": true, "arrowright": true,
		"leftalt": true, "rightalt": true, "leftctrl": true, "rightctrl": true,
		"leftshift": true, "rightshift": true, "leftmeta": true, "rightmeta": true,
		"home": true, "end": true, "pageup": true, "pagedown": true, "insert": true, "delete": true,
		"capslock": true, "numlock": true, "scrolllock": true, "pause": true,
	}
	for c := 'A'; c <= 'Z'; c++ {
		keys[strings.ToLower(string(c))] = true
	}
	for c := '0'; c <= '9'; c++ {
		keys[string(c)] = true
	}
	for i := 1; i <= 24; i++ {
		keys[fmt.Sprintf("f%d", i)] = true
	}
	return keys
}

// ParseShortcut parses a shortcut string, case-insensitively and tolerant of
// surrounding whitespace around each `+`-separated segment. A single-key
// binding (no modifiers) is allowed.
func ParseShortcut(raw string) (Shortcut, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Shortcut{}, fmt.Errorf("empty shortcut")
	}

	parts := strings.Split(trimmed, "+")
	var mods Modifier
	var key string
	for i, p := range parts {
		seg := strings.ToLower(strings.TrimSpace(p))
		if seg == "" {
			return Shortcut{}, fmt.Errorf("empty segment in shortcut %q", raw)
		}
		if m, ok := modifierAliases[seg]; ok {
			mods |= m
			continue
		}
		if i != len(parts)-1 {
			return Shortcut{}, fmt.Errorf("unrecognized modifier %q in shortcut %q", p, raw)
		}
		if !validKeys[seg] {
			return Shortcut{}, fmt.Errorf("unrecognized key %q in shortcut %q", p, raw)
		}
		key = seg
	}
	if key == "" {
		return Shortcut{}, fmt.Errorf("shortcut %q has no terminal key", raw)
	}
	return Shortcut{Raw: raw, Modifiers: mods, Key: key}, nil
}

// Has reports whether m is required by this shortcut.
func (s Shortcut) Has(m Modifier) bool { return s.Modifiers&m != 0 }
