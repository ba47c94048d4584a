// Package output implements the clipboard-paste injection protocol: a
// five-step snapshot/write/confirm/inject/restore sequence that delivers a
// transcript to whatever application currently has focus. Subprocess
// clipboard access is the one deliberate stdlib (os/exec) boundary in this
// repo; no ecosystem wrapper in the pack beats shelling out to wl-copy /
// wl-paste / xclip. Key injection splits into a uinput backend for Wayland
// and an XTEST backend for X11, with uinput as the shared fallback.
package output

import "time"

// PasteShortcut selects the chord injected on paste.
type PasteShortcut string

const (
	ShortcutCtrlV      PasteShortcut = "ctrl-v"
	ShortcutCtrlShiftV PasteShortcut = "ctrl-shift-v"
)

// Action distinguishes a clipboard-only copy from a full paste injection.
type Action string

const (
	ActionPaste Action = "Paste"
	ActionCopy  Action = "Copy"
)

// FailureStep and FailureKind make up the PasteFailure taxonomy. Steps
// serialize under these exact names; event consumers match on them.
type FailureStep string

const (
	StepClipboardWrite FailureStep = "ClipboardWrite"
	StepKeyInject      FailureStep = "KeyInject"
)

type FailureKind string

const (
	KindFailed      FailureKind = "Failed"
	KindUnconfirmed FailureKind = "Unconfirmed"
)

const (
	confirmPollInterval = 10 * time.Millisecond
	confirmTimeout      = 250 * time.Millisecond
	keyEventDelay       = 15 * time.Millisecond
	holdDuration        = 650 * time.Millisecond
)
