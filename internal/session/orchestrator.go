// Package session implements the SessionOrchestrator: the state machine
// wiring hotkey edges to audio capture, VAD trimming, ASR finalization, and
// output injection, plus the warmup governance and performance governor
// that keep it responsive.
package session

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/openflow/dictation/internal/asr"
	"github.com/openflow/dictation/internal/audio"
	"github.com/openflow/dictation/internal/capabilities"
	"github.com/openflow/dictation/internal/config"
	"github.com/openflow/dictation/internal/events"
	"github.com/openflow/dictation/internal/hotkey"
	"github.com/openflow/dictation/internal/models"
	"github.com/openflow/dictation/internal/output"
	"github.com/openflow/dictation/internal/resilience"
	"github.com/openflow/dictation/internal/settings"
	"github.com/openflow/dictation/internal/trace"
	"github.com/openflow/dictation/internal/vad"
)

// State is the 3-valued session state. Transitions are
// monotonic within a session: Idle -> Listening -> Processing -> Idle,
// with Idle -> Processing allowed when finalize arrives without an
// explicit processing mark.
type State string

const (
	StateIdle       State = "Idle"
	StateListening  State = "Listening"
	StateProcessing State = "Processing"
)

// OutputMode selects what happens to a cleaned transcript.
type OutputMode string

const (
	ModePaste    OutputMode = "paste"
	ModeCopy     OutputMode = "copy"
	ModeEmitOnly OutputMode = "emit-only"
)

// diagnosticsInterval is the audio/VAD diagnostics aggregation window.
const diagnosticsInterval = 250 * time.Millisecond

// Deps collects the collaborators the orchestrator shares.
type Deps struct {
	Cfg      *config.Config
	Bus      *events.Bus
	Capture  *audio.Capture
	Vad      *vad.Vad
	Engine   *asr.Engine
	Injector *output.Injector
	Models   *models.Manager
	Hotkeys  *hotkey.Engine
	Settings settings.Settings
	Mode     OutputMode
}

// Orchestrator coordinates one dictation session at a time.
type Orchestrator struct {
	cfg      *config.Config
	bus      *events.Bus
	capture  *audio.Capture
	vadEng   *vad.Vad
	engine   *asr.Engine
	injector *output.Injector
	models   *models.Manager
	hotkeys  *hotkey.Engine
	governor   *Governor
	warmup     *warmupRunner
	asrBreaker *resilience.Breaker

	mu        sync.Mutex
	state     State
	trim      TrimState
	listening bool
	front     settings.Frontend
	mode      OutputMode

	// diagnostics accumulators, touched only on the frame worker.
	diagSumSq   float64
	diagPeak    float64
	diagSamples int
	diagLast    time.Time
	lastObs     vad.Observation

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an orchestrator from its collaborators.
func New(d Deps) *Orchestrator {
	mode := d.Mode
	if mode == "" {
		mode = ModePaste
	}
	o := &Orchestrator{
		cfg:      d.Cfg,
		bus:      d.Bus,
		capture:  d.Capture,
		vadEng:   d.Vad,
		engine:   d.Engine,
		injector: d.Injector,
		models:   d.Models,
		hotkeys:  d.Hotkeys,
		state:    StateIdle,
		front:    d.Settings.Frontend,
		mode:     mode,
	}
	o.governor = NewGovernor(d.Bus, d.Vad, vad.DefaultHangover)
	o.asrBreaker = resilience.New(resilience.AsrConfig())
	o.warmup = newWarmupRunner(o)
	return o
}

// Start launches the frame worker, hotkey loop, model-status forwarder,
// governor, and the initial warmup.
func (o *Orchestrator) Start(ctx context.Context) {
	o.ctx, o.cancel = context.WithCancel(ctx)

	sub := o.capture.Subscribe()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		audio.FrameWorker(o.ctx, sub, o.onFrame)
	}()

	o.wg.Add(1)
	go o.hotkeyLoop()

	o.wg.Add(1)
	go o.modelStatusLoop()

	o.governor.Start()

	if !o.cfg.DisableASRWarmup {
		o.warmup.kick()
	} else {
		o.warmup.markReady()
	}
}

// Stop tears the loops down.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.governor.Stop()
	o.wg.Wait()
}

// State reports the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// WarmupState reports the warmup phase for diagnostics.
func (o *Orchestrator) WarmupState() WarmupPhase {
	return o.warmup.phase()
}

// ApplySettings swaps the frontend settings and, when the ASR selection
// changed, re-warms the pipeline.
func (o *Orchestrator) ApplySettings(s settings.Settings) {
	o.mu.Lock()
	prev := settings.ToAsrSelection(o.front)
	o.front = s.Frontend
	next := settings.ToAsrSelection(s.Frontend)
	o.mu.Unlock()

	o.injector.SetPasteShortcut(output.PasteShortcut(s.Frontend.PasteShortcut))
	if prev != next {
		o.ReloadPipeline()
	}
}

// ReloadPipeline reconfigures the ASR engine from the current settings and
// re-warms. Invoked by ModelManager after every successful install.
func (o *Orchestrator) ReloadPipeline() {
	cfg, err := o.resolveAsrConfig()
	if err != nil {
		slog.Warn("pipeline reload: ASR config unresolved", "error", err)
	} else {
		o.engine.Reconfigure(cfg)
	}
	if !o.cfg.DisableASRWarmup {
		o.warmup.kick()
	}
}

// resolveAsrConfig maps the frontend selection onto an asr.Config, looking
// up the installed model's directory through the model manager.
func (o *Orchestrator) resolveAsrConfig() (asr.Config, error) {
	o.mu.Lock()
	front := o.front
	o.mu.Unlock()
	return ResolveAsrConfig(front, o.models)
}

// hotkeyLoop feeds Pressed/Released edges into the state machine.
func (o *Orchestrator) hotkeyLoop() {
	defer o.wg.Done()
	evs := o.hotkeys.Events()
	for {
		select {
		case <-o.ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			o.bus.Publish(events.HotkeyEvent, strings.ToLower(ev.Edge.String()))
			o.HandleHotkey(ev)
		}
	}
}

// modelStatusLoop forwards manifest transitions to the front-end.
func (o *Orchestrator) modelStatusLoop() {
	defer o.wg.Done()
	evs := o.models.Events()
	for {
		select {
		case <-o.ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			o.bus.Publish(events.ModelStatus, ev.Asset)
		}
	}
}

// HandleHotkey advances the state machine on one edge.
func (o *Orchestrator) HandleHotkey(ev hotkey.Event) {
	o.mu.Lock()
	mode := o.front.HotkeyMode
	state := o.state
	o.mu.Unlock()

	switch {
	case ev.Edge == hotkey.Pressed && state == StateIdle:
		o.startSession()
	case ev.Edge == hotkey.Released && state == StateListening && mode == settings.HotkeyModeHold:
		o.beginFinalize()
	case ev.Edge == hotkey.Pressed && state == StateListening && mode == settings.HotkeyModeToggle:
		o.beginFinalize()
	default:
		// Repeated edges in other states are idempotent no-ops.
	}
}

// startSession transitions Idle -> Listening when the ASR is warm,
// otherwise reports why it cannot.
func (o *Orchestrator) startSession() {
	switch o.warmup.phase() {
	case WarmupWarming:
		o.bus.Publish(events.HudState, events.HudWarming)
		return
	case WarmupError:
		o.bus.Publish(events.HudState, events.HudAsrError)
		return
	}

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return
	}
	o.state = StateListening
	o.listening = true
	o.trim.Reset()
	o.mu.Unlock()

	o.engine.Reset()
	o.vadEng.Reset()
	o.bus.Publish(events.HudState, events.HudListening)
}

// beginFinalize transitions to Processing and runs finalization off the
// hotkey thread.
func (o *Orchestrator) beginFinalize() {
	o.mu.Lock()
	if o.state == StateProcessing {
		o.mu.Unlock()
		return
	}
	o.state = StateProcessing
	o.listening = false
	o.mu.Unlock()

	o.bus.Publish(events.HudState, events.HudProcessing)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.finalize()
	}()
}

// BlockSecureField aborts the current session without emitting output.
func (o *Orchestrator) BlockSecureField() {
	o.mu.Lock()
	o.state = StateIdle
	o.listening = false
	o.mu.Unlock()
	o.engine.Reset()
	o.bus.Publish(events.HudState, events.HudIdle)
}

// onFrame runs on the frame worker: VAD, trim accounting, ring append, and
// throttled diagnostics. It never blocks and never unwinds.
func (o *Orchestrator) onFrame(frame *audio.AudioFrame) {
	obs := o.vadEng.Evaluate(frame.Samples)

	o.mu.Lock()
	listening := o.listening
	o.mu.Unlock()

	if listening {
		dropped := o.engine.PushSamples(frame.Samples)
		o.mu.Lock()
		o.trim.Observe(len(frame.Samples), obs.Decision == vad.Active)
		if dropped > 0 {
			o.trim.ShiftOrigin(dropped)
		}
		o.mu.Unlock()
	}

	o.accumulateDiagnostics(frame, obs)
}

func (o *Orchestrator) accumulateDiagnostics(frame *audio.AudioFrame, obs vad.Observation) {
	for _, s := range frame.Samples {
		v := float64(s)
		o.diagSumSq += v * v
		if a := math.Abs(v); a > o.diagPeak {
			o.diagPeak = a
		}
	}
	o.diagSamples += len(frame.Samples)
	o.lastObs = obs

	now := time.Now()
	if now.Sub(o.diagLast) < diagnosticsInterval || o.diagSamples == 0 {
		return
	}
	o.diagLast = now

	rms := math.Sqrt(o.diagSumSq / float64(o.diagSamples))
	o.bus.Publish(events.AudioDiagnostics, events.AudioDiagnosticsPayload{
		SampleRate: frame.SampleRate,
		DeviceID:   o.capture.DeviceID(),
		Synthetic:  o.capture.IsSynthetic(),
		RMS:        rms,
		Peak:       o.diagPeak,
	})
	o.bus.Publish(events.VadDiagnostics, events.VadDiagnosticsPayload{
		Backend:    obs.Backend,
		Active:     obs.Decision == vad.Active,
		Score:      obs.Score,
		Threshold:  obs.Threshold,
		HangoverMs: obs.HangoverMs,
	})
	o.diagSumSq, o.diagPeak, o.diagSamples = 0, 0, 0
}

// finalize runs the trim/recognize/clean/inject sequence, always returning
// the state machine to Idle.
func (o *Orchestrator) finalize() {
	defer func() {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
		o.bus.Publish(events.HudState, events.HudIdle)
	}()

	ctx, span := trace.StartSpan(context.Background(), "finalize")
	defer span.End()
	log := trace.Logger(ctx)

	sampleRate := o.capture.SampleRate()
	samples := o.engine.TakeSamples()
	span.SetAttr("samples", len(samples))

	o.mu.Lock()
	start, end, skip := o.trim.Window(sampleRate, len(samples))
	o.mu.Unlock()
	if skip != "" {
		o.skip(skip, "")
		return
	}

	began := time.Now()
	result, err := resilience.ExecuteWithResult(o.asrBreaker, func() (*asr.Result, error) {
		return o.engine.FinalizeSamples(sampleRate, samples[start:end])
	})
	o.governor.RecordFinalize(time.Since(began))
	if err != nil {
		span.SetAttr("error", err.Error())
		log.Error("finalization failed", "error", err)
		o.bus.Publish(events.TranscriptionError, err.Error())
		return
	}
	if result == nil || strings.TrimSpace(result.Text) == "" {
		o.skip(events.SkipEmptyTranscript, "recognizer produced no text")
		return
	}

	o.mu.Lock()
	cleanMode := o.front.AutocleanMode
	mode := o.mode
	o.mu.Unlock()

	text := Autoclean(result.Text, cleanMode)
	if strings.TrimSpace(text) == "" {
		o.skip(events.SkipCleanEmpty, "autoclean removed all text")
		return
	}

	o.bus.Publish(events.TranscriptionOutput, text)
	if mode == ModeEmitOnly {
		return
	}

	action := output.ActionPaste
	if mode == ModeCopy {
		action = output.ActionCopy
	}
	o.deliver(text, action)
}

func (o *Orchestrator) skip(code, message string) {
	o.bus.Publish(events.TranscriptionSkipped, events.SkippedPayload{Code: code, Message: message})
}

// deliver hands the cleaned transcript to the injector and maps the
// outcome onto paste-* events, attaching the capabilities probe when the
// clipboard step itself failed.
func (o *Orchestrator) deliver(text string, action output.Action) {
	shortcut := string(o.injector.CurrentPasteShortcut())
	failure := o.injector.Inject(o.ctx, text, action)
	if failure == nil {
		o.bus.Publish(events.PasteSucceeded, events.PasteSucceededPayload{
			Shortcut: shortcut,
			Chars:    len([]rune(text)),
		})
		return
	}

	payload := events.PasteFailedPayload{
		Step:                  string(failure.Step),
		Message:               failure.Message,
		Shortcut:              shortcut,
		TranscriptOnClipboard: failure.TranscriptOnClipboard,
	}
	if failure.Kind == output.KindFailed {
		payload.Linux = capabilities.Detect(o.cfg.IsWayland())
		o.bus.Publish(events.PasteFailed, payload)
		return
	}
	o.bus.Publish(events.PasteUnconfirmed, payload)
}

// ResolveAsrConfig maps a frontend selection onto an asr.Config using the
// installed primary asset of the selected kind.
func ResolveAsrConfig(front settings.Frontend, mgr *models.Manager) (asr.Config, error) {
	sel := settings.ToAsrSelection(front)
	kind := models.KindParakeet
	if sel.Family == settings.FamilyWhisper {
		if sel.WhisperBackend == settings.BackendCT2 {
			kind = models.KindWhisperCt2
		} else {
			kind = models.KindWhisperOnnx
		}
	}

	asset, ok := mgr.PrimaryAsset(kind)
	if !ok {
		return asr.Config{}, errModelNotInstalled(kind)
	}

	lang, auto := settings.ParseLanguage(front)
	englishOnly := settings.IsEnglishOnly(front)
	if englishOnly {
		// English-only model variants dictate the language outright.
		lang, auto = "en", false
	}
	return asr.Config{
		Family:      asr.Family(sel.Family),
		Backend:     asr.Backend(sel.WhisperBackend),
		Model:       string(sel.WhisperModel),
		Language:    lang,
		AutoLang:    auto,
		EnglishOnly: englishOnly,
		Precision:   asr.Precision(sel.WhisperPrecision),
		ModelDir:    mgr.AssetDir(asset),
	}, nil
}
