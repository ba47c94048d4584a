package audio

import "math"

// TargetRMS is the peak-target RMS normalization aims for, chosen so the
// fixed VAD sensitivity thresholds are tuned against it.
const TargetRMS = 0.05

// minRMSForGain avoids dividing by near-zero RMS on silent frames, which
// would otherwise amplify noise floor into something VAD mistakes for
// speech.
const minRMSForGain = 1e-6

// Preprocess applies DC-offset removal followed by peak-target RMS
// normalization to frame in place. It is idempotent on
// silent frames: a frame of zeros stays all zeros.
func Preprocess(frame *AudioFrame) {
	if frame == nil || len(frame.Samples) == 0 {
		return
	}
	removeDC(frame.Samples)
	normalizeRMS(frame.Samples, TargetRMS)
}

func removeDC(samples []float32) {
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := float32(sum / float64(len(samples)))
	if mean == 0 {
		return
	}
	for i := range samples {
		samples[i] -= mean
	}
}

func normalizeRMS(samples []float32, target float64) {
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSq / float64(len(samples)))
	if rms < minRMSForGain {
		return
	}
	gain := float32(target / rms)
	for i := range samples {
		samples[i] *= gain
	}
}
