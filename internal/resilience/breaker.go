// Package resilience guards the daemon's two failure-prone call paths --
// recognizer finalization and model downloads -- with a sliding-window
// circuit breaker and a retry helper.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is the breaker's three-way state.
type State uint32

const (
	Closed   State = iota // normal operation
	Open                  // failing fast
	HalfOpen              // probing recovery
)

func (s State) String() string {
	return [...]string{"closed", "open", "half-open"}[s]
}

// Errors.
var (
	ErrOpen     = errors.New("circuit breaker open")
	ErrHalfOpen = errors.New("circuit breaker half-open: limiting requests")
	ErrRejected = errors.New("request rejected by circuit breaker")
)

// Breaker fails a guarded path fast once it keeps erroring. Failures are
// counted in a sliding window; once Threshold is reached the breaker opens
// and rejects calls until a backoff elapses, after which one probe window
// (half-open) decides whether to close again. Repeated openings back off
// exponentially.
type Breaker struct {
	cfg            Config
	state          atomic.Uint32
	probeSuccesses atomic.Int32 // successes counted while half-open
	closedStreak   atomic.Int32 // consecutive successes while closed
	openedAt       atomic.Int64 // unix nano of the last open transition
	openCount      atomic.Int32 // openings since the last sustained-good run
	lastLogAt      atomic.Int64 // throttles the rejected-call log line
	onStateChange  func(from, to State)

	mu       sync.Mutex
	failures []int64 // unix-nano timestamps inside the sliding window
}

// New creates a breaker from cfg, filling in defaults.
func New(cfg Config) *Breaker {
	c := cfg.withDefaults()
	return &Breaker{
		cfg:      c,
		failures: make([]int64, 0, c.Threshold),
	}
}

// WithHook registers a state-change callback for metrics and logging.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.onStateChange = fn
	return b
}

// Allow reports whether a call may proceed; a nil return means go ahead.
// An open breaker whose backoff has elapsed flips to half-open and lets
// the call through as the probe.
func (b *Breaker) Allow() error {
	switch State(b.state.Load()) {
	case Open:
		if b.backoffElapsed() {
			b.transition(HalfOpen)
			return nil
		}
		b.logOpenThrottled()
		return ErrOpen
	default:
		return nil
	}
}

// logOpenThrottled logs the rejection at most once per second; an open
// breaker on the download queue would otherwise flood the log every poll.
func (b *Breaker) logOpenThrottled() {
	now := time.Now().UnixNano()
	last := b.lastLogAt.Load()
	if now-last > int64(time.Second) && b.lastLogAt.CompareAndSwap(last, now) {
		slog.Debug("circuit breaker open", "retry_after", b.timeUntilRetry())
	}
}

// timeUntilRetry reports how long until the next probe is allowed.
func (b *Breaker) timeUntilRetry() time.Duration {
	opened := b.openedAt.Load()
	if opened == 0 {
		return 0
	}
	elapsed := time.Since(time.Unix(0, opened))
	if remaining := b.currentBackoff() - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// currentBackoff doubles ResetTimeout per opening, capped at MaxBackoff
// and at 16x so the shift can't overflow.
func (b *Breaker) currentBackoff() time.Duration {
	count := b.openCount.Load()
	if count <= 1 {
		return b.cfg.ResetTimeout
	}
	backoff := b.cfg.ResetTimeout << min(count-1, 4)
	if backoff > b.cfg.MaxBackoff {
		return b.cfg.MaxBackoff
	}
	return backoff
}

// Success records a successful call.
func (b *Breaker) Success() {
	switch State(b.state.Load()) {
	case HalfOpen:
		if b.probeSuccesses.Add(1) >= int32(b.cfg.HalfOpenSuccesses) {
			b.transition(Closed)
		}
	case Closed:
		// A sustained good run forgets prior openings, resetting the
		// backoff ladder.
		if b.closedStreak.Add(1) >= int32(b.cfg.Threshold*2) {
			b.openCount.Store(0)
			b.closedStreak.Store(0)
		}
		b.mu.Lock()
		b.pruneFailures(time.Now().UnixNano())
		b.mu.Unlock()
	}
}

// Failure records a failed call. A half-open probe failure reopens
// immediately; closed-state failures accumulate in the window.
func (b *Breaker) Failure() {
	now := time.Now().UnixNano()
	b.closedStreak.Store(0)

	switch State(b.state.Load()) {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		b.mu.Lock()
		b.failures = append(b.failures, now)
		b.pruneFailures(now)
		count := len(b.failures)
		b.mu.Unlock()

		if count >= b.cfg.Threshold {
			b.transition(Open)
		}
	}
}

// pruneFailures drops timestamps older than the window. Caller holds mu.
func (b *Breaker) pruneFailures(now int64) {
	cutoff := now - int64(b.cfg.FailureWindow)
	i := 0
	for i < len(b.failures) && b.failures[i] < cutoff {
		i++
	}
	if i > 0 {
		b.failures = b.failures[i:]
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces the breaker closed and forgets the backoff ladder.
func (b *Breaker) Reset() {
	b.transition(Closed)
	b.openCount.Store(0)
}

func (b *Breaker) transition(to State) {
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}

	switch to {
	case Closed:
		b.mu.Lock()
		b.failures = b.failures[:0]
		b.mu.Unlock()
		b.probeSuccesses.Store(0)
		b.closedStreak.Store(0)
		slog.Info("circuit breaker closed")
	case Open:
		b.probeSuccesses.Store(0)
		b.openedAt.Store(time.Now().UnixNano())
		count := b.openCount.Add(1)
		slog.Warn("circuit breaker opened",
			"failures", b.cfg.Threshold, "backoff", b.currentBackoff(), "open_count", count)
	case HalfOpen:
		b.probeSuccesses.Store(0)
		slog.Info("circuit breaker half-open", "required_successes", b.cfg.HalfOpenSuccesses)
	}

	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

func (b *Breaker) backoffElapsed() bool {
	opened := b.openedAt.Load()
	if opened == 0 {
		return true
	}
	return time.Since(time.Unix(0, opened)) > b.currentBackoff()
}

// Execute runs fn under the breaker.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.Failure()
		return err
	}
	b.Success()
	return nil
}

// ExecuteWithResult runs a value-returning fn under the breaker.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	if err != nil {
		b.Failure()
		return zero, err
	}
	b.Success()
	return result, nil
}
