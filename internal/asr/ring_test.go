package asr

import "testing"

func TestSampleRingPushWithinCapacity(t *testing.T) {
	r := &SampleRing{capacity: 100}
	dropped := r.Push(make([]float32, 50))
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if r.Len() != 50 {
		t.Errorf("len = %d, want 50", r.Len())
	}
}

func TestSampleRingEvictsFromHeadOnOverflow(t *testing.T) {
	r := &SampleRing{capacity: 10}
	first := make([]float32, 10)
	for i := range first {
		first[i] = float32(i)
	}
	r.Push(first)

	dropped := r.Push([]float32{100, 101, 102})
	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
	got := r.Take()
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if got[0] != 3 || got[len(got)-1] != 102 {
		t.Errorf("ring contents = %v, want head evicted and tail preserved", got)
	}
}

func TestSampleRingTakeClearsBuffer(t *testing.T) {
	r := NewSampleRing(16000)
	r.Push([]float32{1, 2, 3})
	r.Take()
	if r.Len() != 0 {
		t.Errorf("len after Take = %d, want 0", r.Len())
	}
}

func TestNewSampleRingCapacityMatchesMaxSeconds(t *testing.T) {
	r := NewSampleRing(16000)
	if r.capacity != MaxBufferSeconds*16000 {
		t.Errorf("capacity = %d, want %d", r.capacity, MaxBufferSeconds*16000)
	}
}
