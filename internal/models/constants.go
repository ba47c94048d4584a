// Package models implements ModelManager: a JSON manifest of downloadable
// ASR/VAD assets, a single-threaded download worker dispatching to an
// archive-extraction plan or an HF-repo plan, and the Whisper-CT2
// post-install directory fixup. Downloads retry per-request through
// retryablehttp and are additionally gated by a queue-wide circuit
// breaker, two distinct concerns.
package models

import "time"

// ProgressThrottleInterval bounds how often a Downloading status event fires.
const ProgressThrottleInterval = 150 * time.Millisecond

// ProgressThrottleBucket is the percent-progress bucket size that also
// forces an event even within the interval.
const ProgressThrottleBucket = 1

// Kind enumerates the four asset families.
type Kind string

const (
	KindWhisperOnnx Kind = "WhisperOnnx"
	KindWhisperCt2  Kind = "WhisperCt2"
	KindParakeet    Kind = "Parakeet"
	KindVad         Kind = "Vad"
)

// Format enumerates supported archive formats.
type Format string

const (
	FormatZip     Format = "Zip"
	FormatTarGz   Format = "TarGz"
	FormatTarBz2  Format = "TarBz2"
	FormatRawFile Format = "RawFile"
)

// StatusKind is the asset lifecycle.
type StatusKind string

const (
	StatusNotInstalled StatusKind = "NotInstalled"
	StatusDownloading  StatusKind = "Downloading"
	StatusInstalled    StatusKind = "Installed"
	StatusError        StatusKind = "Error"
)
