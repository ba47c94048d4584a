package vad

import (
	"log/slog"
	"sync"
	"time"
)

// Decision is the per-frame outcome.
type Decision string

const (
	Active   Decision = "Active"
	Inactive Decision = "Inactive"
)

// Observation is emitted once per frame.
type Observation struct {
	Backend     string
	Decision    Decision
	Score       float64
	Threshold   float64
	HangoverMs  int64
}

// backend is the narrow capability every VAD implementation exposes, a sum
// type dispatched on rather than an inheritance hierarchy.
type backend interface {
	// score returns a raw speech probability/energy score for one
	// WindowSamples-sized chunk (or, for the energy backend, one frame).
	score(samples []float32) (float64, error)
	name() string
	threshold() float64
	reset()
}

// NeuralModel is the narrow interface a real Silero-ONNX binding plugs into
//. This package owns windowing,
// hidden-state bookkeeping and hangover smoothing around it.
type NeuralModel interface {
	// Infer512 runs inference on exactly 512 samples at 16kHz, returning a
	// speech probability in [0,1]. The model instance is expected to carry
	// its own hidden state across calls.
	Infer512(samples []float32) (float32, error)
	Reset()
	Close()
}

// Config configures a Vad instance.
type Config struct {
	SampleRate  int
	Sensitivity Sensitivity
	Hangover    time.Duration
	Neural      NeuralModel // nil disables the neural backend outright
}

// Vad evaluates frames through the preferred backend, falling back from
// neural to energy on runtime failure, and applies hangover smoothing
// identically for both.
type Vad struct {
	mu         sync.Mutex
	cfg        Config
	active     backend
	energy     *energyBackend
	lastSpeech time.Time
	hasSpeech  bool
	hangover   time.Duration
}

// New constructs a Vad, preferring the neural backend when a model is
// supplied.
func New(cfg Config) *Vad {
	if cfg.Hangover <= 0 {
		cfg.Hangover = DefaultHangover
	}
	v := &Vad{cfg: cfg, hangover: cfg.Hangover}
	v.energy = newEnergyBackend(cfg.Sensitivity)
	if cfg.Neural != nil {
		v.active = newNeuralBackend(cfg.Neural, cfg.Sensitivity)
	} else {
		v.active = v.energy
	}
	return v
}

// SetHangover updates the hangover duration (used by the performance
// governor under sustained load).
func (v *Vad) SetHangover(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hangover = d
}

// Reset clears hangover state and, if neural, the model's hidden state.
func (v *Vad) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hasSpeech = false
	v.lastSpeech = time.Time{}
	v.active.reset()
	v.energy.reset()
}

// Evaluate runs one frame through the active backend and applies hangover
// smoothing. On a neural runtime failure it disables the neural backend
// for the lifetime of this Vad and falls back to energy without crashing.
func (v *Vad) Evaluate(samples []float32) Observation {
	v.mu.Lock()
	defer v.mu.Unlock()

	score, err := v.active.score(samples)
	if err != nil {
		if v.active != v.energy {
			slog.Warn("neural VAD backend failed, falling back to energy", "error", err)
			v.active = v.energy
			score, _ = v.energy.score(samples)
		}
	}

	threshold := v.active.threshold()
	rawSpeech := score >= threshold

	now := time.Now()
	if rawSpeech {
		v.hasSpeech = true
		v.lastSpeech = now
	}

	decision := Inactive
	hangoverRemaining := int64(0)
	if v.hasSpeech {
		since := now.Sub(v.lastSpeech)
		if since <= v.hangover {
			decision = Active
			hangoverRemaining = (v.hangover - since).Milliseconds()
		} else {
			v.hasSpeech = false
		}
	}

	return Observation{
		Backend:    v.active.name(),
		Decision:   decision,
		Score:      score,
		Threshold:  threshold,
		HangoverMs: hangoverRemaining,
	}
}
