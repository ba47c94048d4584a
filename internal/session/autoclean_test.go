package session

import (
	"testing"

	"github.com/openflow/dictation/internal/settings"
)

func TestAutocleanOffLeavesTextAlone(t *testing.T) {
	in := "  hello   world  "
	if got := Autoclean(in, settings.AutocleanOff); got != in {
		t.Errorf("Autoclean(off) = %q, want unchanged", got)
	}
}

func TestAutocleanFast(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello world", "Hello world."},
		{"  hello   world  ", "Hello world."},
		{"already done.", "Already done."},
		{"is it done?", "Is it done?"},
		{"", ""},
		{"   ", ""},
		{"x", "X."},
	}
	for _, tt := range tests {
		if got := Autoclean(tt.in, settings.AutocleanFast); got != tt.want {
			t.Errorf("Autoclean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
