package asr

import (
	"strings"
	"sync"
	"time"

	apperrors "github.com/openflow/dictation/internal/errors"
)

// Family and backend enums mirror settings.AsrFamily/WhisperBackend but stay
// local to this package so the recognizer dispatch doesn't import settings.
type Family string

const (
	FamilyWhisper  Family = "whisper"
	FamilyParakeet Family = "parakeet"
)

type Backend string

const (
	BackendCT2  Backend = "ct2"
	BackendONNX Backend = "onnx"
)

type Precision string

const (
	PrecisionInt8  Precision = "int8"
	PrecisionFloat Precision = "float"
)

// Config selects which recognizer to lazily construct and where its model
// assets live on disk.
type Config struct {
	Family    Family
	Backend   Backend
	Model     string
	Language  string // BCP-47 tag, "auto", or empty
	AutoLang  bool
	// EnglishOnly marks an English-only model variant: the recognizer is
	// forced to "en" and detection is disabled regardless of Language.
	EnglishOnly bool
	Precision   Precision
	ModelDir    string
}

// ResolveLanguage applies the language policy: auto, an
// empty tag, or the auto-detect flag all request detection; English-only
// models override to "en" regardless of what was configured.
func (c Config) ResolveLanguage(englishOnly bool) (tag string, detect bool) {
	if englishOnly {
		return "en", false
	}
	lang := strings.TrimSpace(c.Language)
	if c.AutoLang || lang == "" || strings.EqualFold(lang, "auto") {
		return "", true
	}
	return lang, false
}

// Result is what a successful finalize produces.
type Result struct {
	Text    string
	Latency time.Duration
}

// Recognizer is the narrow sum-type every ASR backend implements. Production bindings (sherpa-onnx-go,
// whisper.cpp, CTranslate2) are out of scope; this package ships the
// dispatch plus a deterministic backend used by synthetic mode and tests.
type Recognizer interface {
	Transcribe(samples []float32, language string, autoDetect bool) (string, error)
	Close()
}

// RecognizerFactory constructs a Recognizer for a resolved Config. Swapped
// out in tests.
type RecognizerFactory func(cfg Config) (Recognizer, error)

// Engine owns the sample ring and the lazily-initialized recognizer.
type Engine struct {
	mu         sync.Mutex
	cfg        Config
	ring       *SampleRing
	recognizer Recognizer
	factory    RecognizerFactory
}

// New builds an Engine. sampleRate sizes the ring; factory constructs the
// real recognizer on first use (nil uses NewReferenceRecognizer).
func New(cfg Config, sampleRate int, factory RecognizerFactory) *Engine {
	if factory == nil {
		factory = func(cfg Config) (Recognizer, error) {
			return NewReferenceRecognizer(cfg), nil
		}
	}
	return &Engine{cfg: cfg, ring: NewSampleRing(sampleRate), factory: factory}
}

// Config returns the engine's current recognizer configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Reconfigure swaps the recognizer configuration, discarding any existing
// recognizer so the next finalize/warmup constructs a fresh one.
func (e *Engine) Reconfigure(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	if e.recognizer != nil {
		e.recognizer.Close()
		e.recognizer = nil
	}
}

// PushSamples appends to the ring, evicting from the head on overflow. The
// returned count lets the caller shift TrimState's origin.
func (e *Engine) PushSamples(samples []float32) (dropped int) {
	return e.ring.Push(samples)
}

// TakeSamples atomically extracts and clears the ring.
func (e *Engine) TakeSamples() []float32 {
	return e.ring.Take()
}

// Reset clears the ring without returning its contents.
func (e *Engine) Reset() {
	e.ring.Reset()
}

func (e *Engine) ensureRecognizer() (Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recognizer != nil {
		return e.recognizer, nil
	}
	if e.cfg.ModelDir == "" {
		return nil, apperrors.New(apperrors.ModelNotInstalled, "model directory not configured")
	}
	r, err := e.factory(e.cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.RecognizerUnavailable, "constructing recognizer")
	}
	e.recognizer = r
	return r, nil
}

// FinalizeSamples runs the configured recognizer synchronously over the
// given slice. It must not be called from the audio or frame-worker thread;
// callers are expected to dispatch it onto a blocking-task pool.
func (e *Engine) FinalizeSamples(sampleRate int, samples []float32) (*Result, error) {
	if sampleRate != RequiredSampleRate {
		return nil, apperrors.Newf(apperrors.SampleRateUnsupported, "finalize requires %d Hz, got %d", RequiredSampleRate, sampleRate)
	}

	recognizer, err := e.ensureRecognizer()
	if err != nil {
		return nil, err
	}

	cfg := e.Config()
	lang, autoDetect := cfg.ResolveLanguage(cfg.EnglishOnly)

	start := time.Now()
	text, err := recognizer.Transcribe(samples, lang, autoDetect)
	latency := time.Since(start)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.RecognizerRuntime, "recognizer transcribe failed")
	}
	return &Result{Text: text, Latency: latency}, nil
}

// Warmup forces recognizer construction off the audio thread, ahead of the
// first real finalize.
func (e *Engine) Warmup() error {
	_, err := e.ensureRecognizer()
	return err
}
