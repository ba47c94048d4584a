package session

import (
	"testing"
	"time"

	"github.com/openflow/dictation/internal/asr"
	"github.com/openflow/dictation/internal/audio"
	"github.com/openflow/dictation/internal/config"
	"github.com/openflow/dictation/internal/events"
	"github.com/openflow/dictation/internal/hotkey"
	"github.com/openflow/dictation/internal/models"
	"github.com/openflow/dictation/internal/output"
	"github.com/openflow/dictation/internal/registry"
	"github.com/openflow/dictation/internal/settings"
	"github.com/openflow/dictation/internal/vad"
)

// fixedRecognizer returns the same text for every finalize.
type fixedRecognizer struct{ text string }

func (f *fixedRecognizer) Transcribe([]float32, string, bool) (string, error) {
	return f.text, nil
}
func (f *fixedRecognizer) Close() {}

type harness struct {
	o   *Orchestrator
	bus *events.Bus
	sub <-chan events.Envelope
}

// newHarness builds an orchestrator on a synthetic capture, an
// emit-only output path, and a fixed recognizer, without starting the
// background loops: tests drive onFrame and HandleHotkey directly.
func newHarness(t *testing.T, mode settings.HotkeyMode, text string) *harness {
	t.Helper()

	cfg := &config.Config{
		ConfigDir:        t.TempDir(),
		DataDir:          t.TempDir(),
		DisableASRWarmup: true,
	}
	capture, err := audio.SpawnSynthetic()
	if err != nil {
		t.Fatalf("synthetic capture: %v", err)
	}
	t.Cleanup(capture.Stop)

	mgr, err := models.New(cfg.DataDir, models.Options{})
	if err != nil {
		t.Fatalf("model manager: %v", err)
	}

	engine := asr.New(asr.Config{ModelDir: "/models/test"}, capture.SampleRate(),
		func(asr.Config) (asr.Recognizer, error) {
			return &fixedRecognizer{text: text}, nil
		})

	sets := settings.Defaults()
	sets.Frontend.HotkeyMode = mode

	bus := events.NewBus()
	sub := bus.Subscribe()

	o := New(Deps{
		Cfg:      cfg,
		Bus:      bus,
		Capture:  capture,
		Vad:      vad.New(vad.Config{SampleRate: 16000, Sensitivity: vad.SensitivityMedium, Hangover: 50 * time.Millisecond}),
		Engine:   engine,
		Injector: output.New(true),
		Models:   mgr,
		Hotkeys:  hotkey.New(true, registry.New()),
		Settings: sets,
		Mode:     ModeEmitOnly,
	})
	o.warmup.markReady()
	return &harness{o: o, bus: bus, sub: sub}
}

// next returns the next non-diagnostics event; the throttled audio/VAD
// diagnostics interleave freely with the session events under test.
func (h *harness) next(t *testing.T) events.Envelope {
	t.Helper()
	for {
		select {
		case ev := <-h.sub:
			switch ev.Name {
			case events.AudioDiagnostics, events.VadDiagnostics, events.PerformanceMetrics:
				continue
			}
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
			return events.Envelope{}
		}
	}
}

func (h *harness) expect(t *testing.T, name string) events.Envelope {
	t.Helper()
	ev := h.next(t)
	if ev.Name != name {
		t.Fatalf("event = %s (%v), want %s", ev.Name, ev.Payload, name)
	}
	return ev
}

func speechFrame(n int) *audio.AudioFrame {
	s := make([]float32, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 0.5
		} else {
			s[i] = -0.5
		}
	}
	return &audio.AudioFrame{Samples: s, SampleRate: 16000, Timestamp: time.Now()}
}

func silentFrame(n int) *audio.AudioFrame {
	return &audio.AudioFrame{Samples: make([]float32, n), SampleRate: 16000, Timestamp: time.Now()}
}

func press(h *harness) {
	h.o.HandleHotkey(hotkey.Event{Shortcut: "RightAlt", Edge: hotkey.Pressed})
}

func release(h *harness) {
	h.o.HandleHotkey(hotkey.Event{Shortcut: "RightAlt", Edge: hotkey.Released})
}

func TestPressedWhileWarmingEmitsWarmingAndStaysIdle(t *testing.T) {
	h := newHarness(t, settings.HotkeyModeHold, "hello")
	h.o.warmup.mu.Lock()
	h.o.warmup.state = WarmupWarming
	h.o.warmup.mu.Unlock()

	press(h)
	h.expect(t, events.HudState)
	if h.o.State() != StateIdle {
		t.Errorf("state = %s, want Idle", h.o.State())
	}
}

func TestPressedWhileAsrErrorEmitsAsrError(t *testing.T) {
	h := newHarness(t, settings.HotkeyModeHold, "hello")
	h.o.warmup.mu.Lock()
	h.o.warmup.state = WarmupError
	h.o.warmup.mu.Unlock()

	press(h)
	ev := h.expect(t, events.HudState)
	if ev.Payload != events.HudAsrError {
		t.Errorf("hud = %v, want asr-error", ev.Payload)
	}
}

func TestHoldModeHappyPath(t *testing.T) {
	h := newHarness(t, settings.HotkeyModeHold, "hello world")

	press(h)
	ev := h.expect(t, events.HudState)
	if ev.Payload != events.HudListening {
		t.Fatalf("hud = %v, want listening", ev.Payload)
	}

	// 1.5s of speech: 75 20ms frames.
	for i := 0; i < 75; i++ {
		h.o.onFrame(speechFrame(320))
	}

	release(h)
	ev = h.expect(t, events.HudState)
	if ev.Payload != events.HudProcessing {
		t.Fatalf("hud = %v, want processing", ev.Payload)
	}

	ev = h.expect(t, events.TranscriptionOutput)
	if ev.Payload != "Hello world." {
		t.Errorf("transcript = %v, want autocleaned %q", ev.Payload, "Hello world.")
	}

	ev = h.expect(t, events.HudState)
	if ev.Payload != events.HudIdle {
		t.Errorf("hud = %v, want idle", ev.Payload)
	}
	if h.o.State() != StateIdle {
		t.Errorf("state = %s, want Idle", h.o.State())
	}
}

func TestSilentSessionSkipsWithNoSpeech(t *testing.T) {
	h := newHarness(t, settings.HotkeyModeHold, "hello")

	press(h)
	h.expect(t, events.HudState) // listening

	for i := 0; i < 25; i++ {
		h.o.onFrame(silentFrame(320))
	}

	release(h)
	h.expect(t, events.HudState) // processing

	ev := h.expect(t, events.TranscriptionSkipped)
	if p := ev.Payload.(events.SkippedPayload); p.Code != events.SkipNoSpeech {
		t.Fatalf("skip code = %s, want no-speech", p.Code)
	}
	ev = h.expect(t, events.HudState)
	if ev.Payload != events.HudIdle {
		t.Fatalf("hud = %v, want idle", ev.Payload)
	}
}

func TestEmptySessionSkipsWithNoAudio(t *testing.T) {
	h := newHarness(t, settings.HotkeyModeHold, "hello")

	press(h)
	h.expect(t, events.HudState)
	release(h)
	h.expect(t, events.HudState)

	ev := h.expect(t, events.TranscriptionSkipped)
	if p := ev.Payload.(events.SkippedPayload); p.Code != events.SkipNoAudio {
		t.Fatalf("skip code = %s, want no-audio", p.Code)
	}
}

func TestToggleModeSecondPressFinalizes(t *testing.T) {
	h := newHarness(t, settings.HotkeyModeToggle, "test")

	press(h)
	h.expect(t, events.HudState) // listening

	for i := 0; i < 50; i++ {
		h.o.onFrame(speechFrame(320))
	}

	press(h)
	ev := h.expect(t, events.HudState)
	if ev.Payload != events.HudProcessing {
		t.Fatalf("hud = %v, want processing on second toggle press", ev.Payload)
	}

	h.expect(t, events.TranscriptionOutput)
}

func TestBlockSecureFieldAbortsSession(t *testing.T) {
	h := newHarness(t, settings.HotkeyModeHold, "hello")

	press(h)
	h.expect(t, events.HudState)
	h.o.onFrame(speechFrame(320))

	h.o.BlockSecureField()
	ev := h.expect(t, events.HudState)
	if ev.Payload != events.HudIdle {
		t.Fatalf("hud = %v, want idle after secure-field block", ev.Payload)
	}
	if h.o.State() != StateIdle {
		t.Errorf("state = %s, want Idle", h.o.State())
	}
}

func TestReleaseWhileIdleIsNoOp(t *testing.T) {
	h := newHarness(t, settings.HotkeyModeHold, "hello")
	release(h)
	select {
	case ev := <-h.sub:
		t.Fatalf("unexpected event %s", ev.Name)
	case <-time.After(50 * time.Millisecond):
	}
}
