package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
)

// excludedDeviceName is the name the OutputInjector registers its uinput
// virtual keyboard under; the raw-input backend must never treat its own
// synthesized device as a trigger source.
const excludedDeviceName = "openflow-dictation-paste"

type rawInputBackend struct {
	mu       sync.Mutex
	shortcut Shortcut
	events   chan<- Event

	devices map[string]*evdev.InputDevice
	held    map[Modifier]map[string]bool // modifier -> set of device paths currently holding it
	latched map[string]bool              // device path -> trigger key currently latched down

	stop chan struct{}
	done chan struct{}
}

func newRawInputBackend(events chan<- Event) *rawInputBackend {
	return &rawInputBackend{
		events:  events,
		devices: make(map[string]*evdev.InputDevice),
		held:    make(map[Modifier]map[string]bool),
		latched: make(map[string]bool),
	}
}

func isKeyboardDevice(dev *evdev.InputDevice) bool {
	if dev.Name == excludedDeviceName {
		return false
	}
	codes, ok := dev.Capabilities[evdev.CapabilityType{Type: evdev.EV_KEY}]
	if !ok {
		return false
	}
	hasA, hasZ, hasEnter := false, false, false
	for _, c := range codes {
		switch c.Code {
		case keyA:
			hasA = true
		case keyZ:
			hasZ = true
		case keyEnter:
			hasEnter = true
		}
	}
	return hasA && hasZ && hasEnter
}

// refreshDevices reconciles the open device set against /dev/input, closing
// descriptors for devices that disappeared and spawning a poll goroutine
// for each newly qualifying keyboard. Any change clears held-modifier and
// latch state to avoid stuck-key artifacts.
func (b *rawInputBackend) refreshDevices(ctx context.Context) {
	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		slog.Warn("raw-input device enumeration failed", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	changed := false
	for _, p := range paths {
		seen[p] = true
		if _, already := b.devices[p]; already {
			continue
		}
		dev, err := evdev.Open(p)
		if err != nil {
			continue
		}
		if !isKeyboardDevice(dev) {
			dev.File.Close()
			continue
		}
		b.devices[p] = dev
		changed = true
		slog.Debug("raw-input device added", "path", p, "name", dev.Name)
		go b.pollDevice(ctx, p, dev)
	}

	for p, dev := range b.devices {
		if !seen[p] {
			dev.File.Close()
			delete(b.devices, p)
			changed = true
			slog.Debug("raw-input device removed", "path", p)
		}
	}

	if changed {
		b.held = make(map[Modifier]map[string]bool)
		b.latched = make(map[string]bool)
	}
}

func (b *rawInputBackend) checkDescriptorsAlive() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p, dev := range b.devices {
		if _, err := os.Stat(fmt.Sprintf("/proc/self/fd/%d", dev.File.Fd())); err != nil {
			dev.File.Close()
			delete(b.devices, p)
		}
	}
}

func (b *rawInputBackend) setHeld(m Modifier, path string, held bool) {
	set, ok := b.held[m]
	if !ok {
		set = make(map[string]bool)
		b.held[m] = set
	}
	if held {
		set[path] = true
	} else {
		delete(set, path)
	}
}

func (b *rawInputBackend) modifiersSatisfied(required Modifier) bool {
	for _, m := range []Modifier{ModCtrl, ModAlt, ModShift, ModMeta} {
		if required&m == 0 {
			continue
		}
		if len(b.held[m]) == 0 {
			return false
		}
	}
	return true
}

func (b *rawInputBackend) pollDevice(ctx context.Context, path string, dev *evdev.InputDevice) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		ev, err := dev.ReadOne()
		if err != nil {
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		b.handleKeyEvent(path, ev.Code, ev.Value)
	}
}

func (b *rawInputBackend) handleKeyEvent(path string, code uint16, value int32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range []Modifier{ModCtrl, ModAlt, ModShift, ModMeta} {
		for _, c := range modifierKeyCodes(m) {
			if c == code {
				b.setHeld(m, path, value != 0)
			}
		}
	}

	triggerCode, ok := evdevKeyCode(b.shortcut.Key)
	if !ok || code != triggerCode {
		return
	}

	switch value {
	case 2:
		return // key repeat never toggles state
	case 1:
		if b.modifiersSatisfied(b.shortcut.Modifiers) {
			b.latched[path] = true
			b.emit(Pressed)
		}
	case 0:
		if b.latched[path] {
			delete(b.latched, path)
			b.emit(Released)
		}
	}
}

func (b *rawInputBackend) emit(edge Edge) {
	select {
	case b.events <- Event{Shortcut: b.shortcut.Raw, Edge: edge}:
	default:
	}
}

func (b *rawInputBackend) start(ctx context.Context, shortcut Shortcut) {
	b.mu.Lock()
	b.shortcut = shortcut
	b.mu.Unlock()

	b.stop = make(chan struct{})
	b.done = make(chan struct{})

	b.refreshDevices(ctx)
	hotplug := watchInputHotplug()

	go func() {
		defer close(b.done)
		descriptorTicker := time.NewTicker(descriptorCheckPeriod)
		defer descriptorTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.closeAll()
				return
			case <-b.stop:
				b.closeAll()
				return
			case <-descriptorTicker.C:
				b.checkDescriptorsAlive()
			case <-hotplug:
				b.refreshDevices(ctx)
			}
		}
	}()
}

func (b *rawInputBackend) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p, dev := range b.devices {
		dev.File.Close()
		delete(b.devices, p)
	}
}

func (b *rawInputBackend) Stop() {
	if b.stop != nil {
		close(b.stop)
	}
}
