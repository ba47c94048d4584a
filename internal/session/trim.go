package session

import "time"

// Trim window tuning, in wall-clock terms converted to samples at the
// session's rate.
const (
	leadPadding      = 200 * time.Millisecond
	tailPadding      = 500 * time.Millisecond
	tailSilenceLimit = 600 * time.Millisecond
	minSpeech        = 350 * time.Millisecond
)

// TrimState tracks per-session speech accounting in absolute sample
// coordinates from session start, so the trim window stays comparable even
// after the ring evicts old samples.
type TrimState struct {
	totalSamples  int64
	bufferStart   int64
	firstActive   int64
	lastActive    int64
	hasActive     bool
	activeSamples int64
}

// Reset clears all counters for a new session.
func (t *TrimState) Reset() {
	*t = TrimState{}
}

// Observe accounts for one frame of frameLen samples, active per the VAD
// decision.
func (t *TrimState) Observe(frameLen int, active bool) {
	start := t.totalSamples
	t.totalSamples += int64(frameLen)
	if !active {
		return
	}
	if !t.hasActive {
		t.firstActive = start
		t.hasActive = true
	}
	t.lastActive = t.totalSamples
	t.activeSamples += int64(frameLen)
}

// ShiftOrigin advances the buffer start by the number of samples the ring
// evicted, keeping absolute offsets comparable.
func (t *TrimState) ShiftOrigin(dropped int) {
	t.bufferStart += int64(dropped)
}

// TotalSamples reports the running session length in samples.
func (t *TrimState) TotalSamples() int64 { return t.totalSamples }

// ActiveSamples reports the cumulative speech-active sample count.
func (t *TrimState) ActiveSamples() int64 { return t.activeSamples }

// HasSpeech reports whether any frame was observed active.
func (t *TrimState) HasSpeech() bool { return t.hasActive }

// Window computes the trim range over a ring snapshot of bufferLen samples,
// returning ring-relative [start, end) indices, or a skip code when the
// session should abort.
func (t *TrimState) Window(sampleRate, bufferLen int) (start, end int, skip string) {
	if bufferLen == 0 {
		return 0, 0, "no-audio"
	}
	if !t.hasActive || t.activeSamples < samplesFor(minSpeech, sampleRate) {
		return 0, 0, "no-speech"
	}

	bufferEnd := t.bufferStart + int64(bufferLen)

	absStart := t.firstActive - samplesFor(leadPadding, sampleRate)
	if absStart < t.bufferStart {
		absStart = t.bufferStart
	}
	absEnd := t.lastActive + samplesFor(tailPadding, sampleRate)
	if absEnd > bufferEnd {
		absEnd = bufferEnd
	}
	if bufferEnd-t.lastActive <= samplesFor(tailSilenceLimit, sampleRate) {
		absEnd = bufferEnd
	}

	if absEnd <= absStart {
		return 0, 0, "trim-rejected"
	}
	return int(absStart - t.bufferStart), int(absEnd - t.bufferStart), ""
}

func samplesFor(d time.Duration, sampleRate int) int64 {
	return int64(d.Milliseconds()) * int64(sampleRate) / 1000
}
