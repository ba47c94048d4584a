// Package audio implements the streaming capture pipeline: device ingress
// (capture.go) and the pure preprocessing step (preprocessor.go) that sits
// between capture and the VAD/ASR stages.
package audio

import "time"

const (
	// TargetSampleRate is the rate AsrEngine and VAD require at finalize.
	TargetSampleRate = 16000

	// FrameDuration is the nominal length of one AudioFrame.
	FrameDuration = 20 * time.Millisecond

	// SubscriberBufferSize bounds each subscriber channel: frames are
	// dropped, never blocked on, once a subscriber falls behind.
	SubscriberBufferSize = 64

	// WatchdogInterval is how often the ingress watchdog checks for stalls.
	WatchdogInterval = 500 * time.Millisecond

	// StallTimeout is how long without a real frame before a restart is
	// attempted.
	StallTimeout = 2 * time.Second

	// RestartBackoffBase and RestartBackoffMax bound the watchdog's
	// exponential restart backoff.
	RestartBackoffBase = 2 * time.Second
	RestartBackoffMax  = 32 * time.Second
)
