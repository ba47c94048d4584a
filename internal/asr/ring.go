package asr

import "sync"

// SampleRing is a bounded append-only float32 sequence. Capacity is
// MaxBufferSeconds*sampleRate; overflow evicts from the head and reports the
// evicted count so a caller (TrimState) can shift its origin to match.
type SampleRing struct {
	mu       sync.Mutex
	samples  []float32
	capacity int
}

// NewSampleRing builds a ring sized for sampleRate.
func NewSampleRing(sampleRate int) *SampleRing {
	return &SampleRing{capacity: MaxBufferSeconds * sampleRate}
}

// Push appends samples, evicting from the head if capacity is exceeded, and
// returns the number of samples dropped.
func (r *SampleRing) Push(samples []float32) (dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, samples...)
	if over := len(r.samples) - r.capacity; over > 0 {
		r.samples = r.samples[over:]
		dropped = over
	}
	return dropped
}

// Take atomically extracts and clears the buffered samples.
func (r *SampleRing) Take() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.samples
	r.samples = nil
	return out
}

// Len reports the currently buffered sample count.
func (r *SampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Reset discards buffered samples without returning them.
func (r *SampleRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}
