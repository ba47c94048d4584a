package vad

// neuralBackend wraps a NeuralModel with the windowing and hidden-state
// bookkeeping the model needs: input accumulates across Evaluate
// calls until >=512 samples are buffered, then one inference runs; between
// runs the most recent probability is reused so every frame still gets an
// Observation.
type neuralBackend struct {
	model       NeuralModel
	sensitivity Sensitivity
	buf         []float32
	lastProb    float32
}

func newNeuralBackend(model NeuralModel, s Sensitivity) *neuralBackend {
	if _, ok := neuralThresholds[s]; !ok {
		s = SensitivityMedium
	}
	return &neuralBackend{model: model, sensitivity: s}
}

func (n *neuralBackend) score(samples []float32) (float64, error) {
	n.buf = append(n.buf, samples...)
	for len(n.buf) >= WindowSamples {
		window := n.buf[:WindowSamples]
		n.buf = n.buf[WindowSamples:]
		prob, err := n.model.Infer512(window)
		if err != nil {
			return float64(n.lastProb), err
		}
		n.lastProb = prob
	}
	return float64(n.lastProb), nil
}

func (n *neuralBackend) name() string      { return "neural" }
func (n *neuralBackend) threshold() float64 { return float64(neuralThresholds[n.sensitivity]) }

func (n *neuralBackend) reset() {
	n.buf = n.buf[:0]
	n.lastProb = 0
	n.model.Reset()
}
