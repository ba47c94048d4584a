// Package registry holds the process-wide mutable cells the daemon would
// otherwise scatter as globals: the currently registered hotkey and the
// resolved VAD model path. Both are encapsulated behind syncx.RWGuard
// rather than package-level getters, with explicit lifecycle hooks instead
// of ad-hoc access from every subsystem that needs them.
package registry

import "github.com/openflow/dictation/internal/syncx"

// HotkeyHandle describes the currently active hotkey registration, enough
// for a re-registration to tear down the right backend.
type HotkeyHandle struct {
	Shortcut string
	Backend  string // "wayland-raw-input" | "x11-grab"
}

// SystemRegistry is the single owner of process-wide cells.
type SystemRegistry struct {
	hotkey       *syncx.RWGuard[HotkeyHandle]
	vadModelPath *syncx.RWGuard[string]
}

// New creates an empty registry.
func New() *SystemRegistry {
	return &SystemRegistry{
		hotkey:       syncx.NewGuard(HotkeyHandle{}),
		vadModelPath: syncx.NewGuard(""),
	}
}

// CurrentHotkey returns the active hotkey registration, if any.
func (r *SystemRegistry) CurrentHotkey() HotkeyHandle {
	return r.hotkey.Get()
}

// SetHotkey atomically replaces the current hotkey registration and
// returns the previous one, so a caller can tear it down.
func (r *SystemRegistry) SetHotkey(h HotkeyHandle) HotkeyHandle {
	return r.hotkey.Swap(h)
}

// ClearHotkey atomically clears the registration.
func (r *SystemRegistry) ClearHotkey() HotkeyHandle {
	return r.hotkey.Swap(HotkeyHandle{})
}

// VADModelPath returns the on-disk path ModelManager exported for the VAD
// component. A linked-in neural binding reads it at pipeline construction;
// without one the cell is still kept current so startup diagnostics can
// report whether a model is available.
func (r *SystemRegistry) VADModelPath() string {
	return r.vadModelPath.Get()
}

// SetVADModelPath updates the exported VAD model path after a successful
// install.
func (r *SystemRegistry) SetVADModelPath(path string) {
	r.vadModelPath.Set(path)
}
