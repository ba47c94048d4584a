// Package vad implements per-frame voice activity detection: a neural
// backend windowed to 512 samples with a hidden-state accumulator, an
// energy fallback, and shared hangover smoothing. Windowing
// accumulates input across frames so arbitrary frame sizes feed the
// model's fixed 512-sample window.
package vad

import "time"

// WindowSamples is the neural backend's required input window.
const WindowSamples = 512

// Sensitivity is the fixed three-level user-facing knob.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// energyThresholds and neuralThresholds are the documented defaults
// so tests are deterministic.
var energyThresholds = map[Sensitivity]float64{
	SensitivityHigh:   0.0006,
	SensitivityMedium: 0.0010,
	SensitivityLow:    0.0018,
}

var neuralThresholds = map[Sensitivity]float32{
	SensitivityHigh:   0.45,
	SensitivityMedium: 0.55,
	SensitivityLow:    0.65,
}

// DefaultHangover is the trailing window during which a non-speech frame
// is still reported Active after the last detected speech instant.
const DefaultHangover = 500 * time.Millisecond

// PerformanceModeHangoverCeiling is the upper bound the performance
// governor caps hangover at under sustained load.
const PerformanceModeHangoverCeiling = 200 * time.Millisecond
