package resilience

import "time"

// Breaker presets, one per guarded path.
const (
	// Defaults for paths without a dedicated preset.
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3
	DefaultFailureWindow     = 60 * time.Second
	DefaultMaxBackoff        = 5 * time.Minute

	// ASR finalize path: trip fast so a broken recognizer surfaces as an
	// asr-error HUD state after a few sessions, not dozens.
	AsrThreshold         = 3
	AsrResetTimeout      = 10 * time.Second
	AsrHalfOpenSuccesses = 2

	// Model download queue: lenient, flaky networks are normal and jobs
	// already retry per-request.
	DownloadThreshold         = 10
	DownloadResetTimeout      = 60 * time.Second
	DownloadHalfOpenSuccesses = 5
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
	FailureWindow     time.Duration // sliding window failures count within
	MaxBackoff        time.Duration // cap on the exponential reopen backoff
}

// DefaultConfig returns the general-purpose settings.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// AsrConfig returns the aggressive settings guarding recognizer calls.
func AsrConfig() Config {
	return Config{
		Threshold:         AsrThreshold,
		ResetTimeout:      AsrResetTimeout,
		HalfOpenSuccesses: AsrHalfOpenSuccesses,
	}
}

// DownloadConfig returns the lenient settings guarding the download queue.
func DownloadConfig() Config {
	return Config{
		Threshold:         DownloadThreshold,
		ResetTimeout:      DownloadResetTimeout,
		HalfOpenSuccesses: DownloadHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = DefaultFailureWindow
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}
