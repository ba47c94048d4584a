// Package asr implements the sample ring buffer and lazily-initialized
// recognizer dispatch that sit between VAD-gated audio and finalized text.
// Buffering follows the bounded-channel sizing used by the capture layer and
// orchestrator/audio.Processor's per-device accumulation, generalized from a
// fan-out of per-device channels to a single bounded append/evict sequence.
package asr

import "time"

// MaxBufferSeconds bounds the ring regardless of how long a session holds
// the hotkey down.
const MaxBufferSeconds = 120

// RequiredSampleRate is the only rate finalize_samples accepts.
const RequiredSampleRate = 16000

// WarmupInstallTimeout is how long warmup waits for a queued model download
// before giving up.
const WarmupInstallTimeout = 10 * time.Second
