// Package hotkey implements global hotkey detection across a raw-input
// (evdev) backend and an X11 key-grab backend, selected by session type,
// grounded on other_examples' AshBuk-speak-to-ai (the one pack entry that is
// itself an evdev-based Linux dictation daemon) and doismellburning-samoyed's
// go-udev hotplug watcher, repurposed here from ham-radio USB hotplug to
// keyboard hotplug.
package hotkey

import "time"

const (
	rawInputPollInterval = 5 * time.Millisecond
	x11IdleSleep          = 8 * time.Millisecond
	descriptorCheckPeriod = 30 * time.Second
)

// Edge is a hotkey transition delivered to the SessionOrchestrator.
type Edge int

const (
	Pressed Edge = iota
	Released
)

func (e Edge) String() string {
	if e == Pressed {
		return "Pressed"
	}
	return "Released"
}

// Event pairs an Edge with the shortcut that fired it.
type Event struct {
	Shortcut string
	Edge     Edge
}
