package audio

import "testing"

func TestBytesToFloat32(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected int
	}{
		{"empty", []byte{}, 0},
		{"4 bytes = 1 float", []byte{0, 0, 0, 0}, 1},
		{"8 bytes = 2 floats", []byte{0, 0, 0, 0, 0, 0, 128, 63}, 2}, // 0.0 and 1.0
		{"invalid length", []byte{0, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := bytesToFloat32(tt.input)
			if len(result) != tt.expected {
				t.Errorf("bytesToFloat32 returned %d floats, want %d", len(result), tt.expected)
			}
		})
	}
	if got := bytesToFloat32([]byte{0, 0, 128, 63}); got[0] != 1.0 {
		t.Errorf("bytesToFloat32 decoded %v, want [1.0]", got)
	}
}

func TestFrameSamplesMatches20ms(t *testing.T) {
	if frameSamples != 320 {
		t.Errorf("frameSamples = %d, want 320 (20ms @ 16kHz)", frameSamples)
	}
}

func TestIngestGroupsIntoFrames(t *testing.T) {
	c := &Capture{sampleRate: TargetSampleRate, stopWatch: make(chan struct{})}
	ch := c.Subscribe()

	samples := make([]float32, frameSamples*2+10)
	for i := range samples {
		samples[i] = 0.1
	}
	c.ingest(samples)

	got := 0
	for len(ch) > 0 {
		ev := <-ch
		if ev.Frame == nil || len(ev.Frame.Samples) != frameSamples {
			t.Fatalf("unexpected frame: %+v", ev)
		}
		got++
	}
	if got != 2 {
		t.Errorf("got %d frames, want 2 (remainder buffered)", got)
	}
	if len(c.accum) != 10 {
		t.Errorf("accum leftover = %d, want 10", len(c.accum))
	}
}

func TestFanOutDropsWhenSubscriberFull(t *testing.T) {
	c := &Capture{sampleRate: TargetSampleRate, stopWatch: make(chan struct{})}
	ch := c.Subscribe()
	for i := 0; i < SubscriberBufferSize+10; i++ {
		c.fanOut(Event{Frame: &AudioFrame{Samples: []float32{0}}})
	}
	if len(ch) != SubscriberBufferSize {
		t.Errorf("channel length = %d, want %d (bounded, excess dropped)", len(ch), SubscriberBufferSize)
	}
}

func TestPreprocessRemovesDCAndNormalizes(t *testing.T) {
	frame := &AudioFrame{Samples: []float32{0.5, 0.5, 0.5, 0.5}}
	Preprocess(frame)
	for _, s := range frame.Samples {
		if s > 1e-6 || s < -1e-6 {
			t.Errorf("expected DC-removed constant signal to normalize to ~0, got %v", s)
		}
	}
}

func TestPreprocessIdempotentOnSilence(t *testing.T) {
	frame := &AudioFrame{Samples: make([]float32, 320)}
	Preprocess(frame)
	for _, s := range frame.Samples {
		if s != 0 {
			t.Errorf("silent frame should stay silent, got %v", s)
		}
	}
}

func TestPreprocessTargetsRMS(t *testing.T) {
	samples := make([]float32, 320)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 1.0
		} else {
			samples[i] = -1.0
		}
	}
	frame := &AudioFrame{Samples: samples}
	Preprocess(frame)

	var sumSq float64
	for _, s := range frame.Samples {
		sumSq += float64(s) * float64(s)
	}
	rms := sumSq / float64(len(frame.Samples))
	want := TargetRMS * TargetRMS
	if diff := rms - want; diff > 1e-4 || diff < -1e-4 {
		t.Errorf("rms^2 = %v, want ~%v", rms, want)
	}
}
