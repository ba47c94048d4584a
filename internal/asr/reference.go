package asr

import "fmt"

// ReferenceRecognizer is a deterministic stand-in for a real sherpa-onnx /
// whisper.cpp / CTranslate2 binding (all explicitly out of scope). It never
// produces real transcription; it reports the sample count and detected (or
// forced) language so synthetic-mode sessions and tests have something
// observable to assert on.
type ReferenceRecognizer struct {
	cfg Config
}

// NewReferenceRecognizer builds a ReferenceRecognizer for cfg.
func NewReferenceRecognizer(cfg Config) *ReferenceRecognizer {
	return &ReferenceRecognizer{cfg: cfg}
}

// Transcribe implements Recognizer.
func (r *ReferenceRecognizer) Transcribe(samples []float32, language string, autoDetect bool) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	lang := language
	if autoDetect || lang == "" {
		lang = "auto"
	}
	return fmt.Sprintf("[synthetic %s/%s %d samples, lang=%s]", r.cfg.Family, r.cfg.Model, len(samples), lang), nil
}

// Close implements Recognizer.
func (r *ReferenceRecognizer) Close() {}
