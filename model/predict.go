package model

import "fmt"

// DefaultSegment is the number of samples evaluated per forward pass.
const DefaultSegment = 1 << 14

// Predict runs the network over x as a single sequence, segment samples at a
// time. Conv segments carry ReceptiveField()-1 samples of left context and
// lstm state is carried from one segment to the next, so the result matches
// one full-length pass.
func (n *Network) Predict(x []float32, segment int) ([]float32, error) {
	if len(x) == 0 {
		return nil, nil
	}
	if segment <= 0 {
		segment = DefaultSegment
	}
	tape := n.backend.Tape()
	if tape.IsRecording() {
		tape.StopRecording()
		defer tape.StartRecording()
	}

	out := make([]float32, len(x))
	ctx := n.spec.ReceptiveField() - 1
	var st State
	for start := 0; start < len(x); start += segment {
		end := min(start+segment, len(x))
		from := start
		if len(n.conv) > 0 {
			from = max(0, start-ctx)
		}
		o, err := n.Forward(x[from:end], 1, end-from, &st)
		if err != nil {
			return nil, fmt.Errorf("predict [%d,%d): %w", start, end, err)
		}
		copy(out[start:end], o.Values()[start-from:])
	}
	return out, nil
}
