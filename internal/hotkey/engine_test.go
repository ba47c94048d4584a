package hotkey

import (
	"testing"

	"github.com/openflow/dictation/internal/registry"
)

func TestRegisterRejectsInvalidShortcutWithoutTouchingBackends(t *testing.T) {
	e := New(true, registry.New())
	if err := e.Register("Ctrl+Banana"); err == nil {
		t.Fatalf("expected error for invalid shortcut")
	}
	if got := registryBackend(e); got != "" {
		t.Errorf("registry hotkey backend = %q, want empty (registration never started)", got)
	}
}

func registryBackend(e *Engine) string {
	return e.registry.CurrentHotkey().Backend
}

func TestLockVariantsIncludesBaseAndCombinations(t *testing.T) {
	variants := lockVariants(0x4)
	if len(variants) != 4 {
		t.Fatalf("expected 4 lock variants, got %d", len(variants))
	}
	if variants[0] != 0x4 {
		t.Errorf("variants[0] = %#x, want base mask unmodified", variants[0])
	}
}
