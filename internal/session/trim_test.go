package session

import "testing"

const rate = 16000

// frames are 320 samples (20ms at 16kHz) throughout.
func observe(t *TrimState, frames int, active bool) {
	for i := 0; i < frames; i++ {
		t.Observe(320, active)
	}
}

func TestWindowEmptyBufferIsNoAudio(t *testing.T) {
	var tr TrimState
	_, _, skip := tr.Window(rate, 0)
	if skip != "no-audio" {
		t.Fatalf("skip = %q, want no-audio", skip)
	}
}

func TestWindowNoSpeechObserved(t *testing.T) {
	var tr TrimState
	observe(&tr, 50, false)
	_, _, skip := tr.Window(rate, int(tr.TotalSamples()))
	if skip != "no-speech" {
		t.Fatalf("skip = %q, want no-speech", skip)
	}
}

func TestWindowBelowMinSpeechIsNoSpeech(t *testing.T) {
	var tr TrimState
	observe(&tr, 10, false)
	// 300ms of speech, below the 350ms floor.
	observe(&tr, 15, true)
	observe(&tr, 10, false)
	_, _, skip := tr.Window(rate, int(tr.TotalSamples()))
	if skip != "no-speech" {
		t.Fatalf("skip = %q, want no-speech", skip)
	}
}

func TestWindowPadsAroundSpeech(t *testing.T) {
	var tr TrimState
	// 1s silence, 1s speech, 1s silence.
	observe(&tr, 50, false)
	observe(&tr, 50, true)
	observe(&tr, 50, false)

	start, end, skip := tr.Window(rate, int(tr.TotalSamples()))
	if skip != "" {
		t.Fatalf("unexpected skip %q", skip)
	}
	// first_active at 1s; 200ms lead padding.
	if want := 16000 - 3200; start != want {
		t.Errorf("start = %d, want %d", start, want)
	}
	// last_active at 2s; trailing silence is 1s > 600ms, so end is
	// last_active + 500ms.
	if want := 32000 + 8000; end != want {
		t.Errorf("end = %d, want %d", end, want)
	}
}

func TestWindowExtendsToBufferEndOnShortTrailingSilence(t *testing.T) {
	var tr TrimState
	observe(&tr, 50, true)
	// 400ms trailing silence, under the 600ms limit.
	observe(&tr, 20, false)

	_, end, skip := tr.Window(rate, int(tr.TotalSamples()))
	if skip != "" {
		t.Fatalf("unexpected skip %q", skip)
	}
	if want := int(tr.TotalSamples()); end != want {
		t.Errorf("end = %d, want buffer end %d", end, want)
	}
}

func TestWindowClampsLeadToBufferStartAfterEviction(t *testing.T) {
	var tr TrimState
	observe(&tr, 100, true)
	// The ring evicted the first second; offsets must stay comparable.
	tr.ShiftOrigin(16000)

	bufferLen := int(tr.TotalSamples()) - 16000
	start, end, skip := tr.Window(rate, bufferLen)
	if skip != "" {
		t.Fatalf("unexpected skip %q", skip)
	}
	if start != 0 {
		t.Errorf("start = %d, want 0 (clamped to buffer start)", start)
	}
	if end != bufferLen {
		t.Errorf("end = %d, want %d", end, bufferLen)
	}
}

func TestWindowInvariants(t *testing.T) {
	var tr TrimState
	observe(&tr, 5, false)
	observe(&tr, 30, true)
	observe(&tr, 5, false)

	if !tr.HasSpeech() {
		t.Fatal("HasSpeech = false after active frames")
	}
	if tr.ActiveSamples()%320 != 0 {
		t.Errorf("active_samples = %d, want multiple of frame size", tr.ActiveSamples())
	}
	if tr.ActiveSamples() > tr.TotalSamples() {
		t.Errorf("active_samples %d > total_samples %d", tr.ActiveSamples(), tr.TotalSamples())
	}
}

func TestResetClearsCounters(t *testing.T) {
	var tr TrimState
	observe(&tr, 30, true)
	tr.ShiftOrigin(100)
	tr.Reset()
	if tr.TotalSamples() != 0 || tr.ActiveSamples() != 0 || tr.HasSpeech() {
		t.Error("Reset left residual state")
	}
}
