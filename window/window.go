// Package window reshapes an aligned signal pair into training examples.
//
// A Batch stores Examples x Steps x Channels values row-major. Three layouts
// are supported: Flat (every sample is its own example), Sequence (the whole
// signal is one example) and Chunked (the signal is cut into equal-length
// contiguous examples, dropping the remainder).
package window

import (
	"fmt"
	"math/rand"
)

// DefaultChunks is the chunk count used for recurrent models.
const DefaultChunks = 100

// Policy selects a reshaping layout.
type Policy int

const (
	Flat Policy = iota
	Sequence
	Chunked
)

func (p Policy) String() string {
	switch p {
	case Flat:
		return "flat"
	case Sequence:
		return "sequence"
	case Chunked:
		return "chunked"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ShapeMismatchError reports a signal that cannot be reshaped as requested.
type ShapeMismatchError struct {
	Length int
	Chunks int
	Reason string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: length %d, chunks %d: %s", e.Length, e.Chunks, e.Reason)
}

// Batch is a reshaped view of an input/target pair.
type Batch struct {
	Examples int
	Steps    int
	Channels int

	X []float32
	Y []float32

	// Dropped counts trailing samples that did not fit a whole chunk.
	Dropped int
}

// Shape returns (examples, steps, channels).
func (b *Batch) Shape() [3]int {
	return [3]int{b.Examples, b.Steps, b.Channels}
}

// Example returns the input and target rows of example i.
func (b *Batch) Example(i int) ([]float32, []float32) {
	n := b.Steps * b.Channels
	return b.X[i*n : (i+1)*n], b.Y[i*n : (i+1)*n]
}

// Minibatches partitions example indices into groups of at most size. When
// rng is non-nil the order is shuffled first.
func (b *Batch) Minibatches(size int, rng *rand.Rand) [][]int {
	if size <= 0 || size > b.Examples {
		size = b.Examples
	}
	idx := make([]int, b.Examples)
	for i := range idx {
		idx[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	out := make([][]int, 0, (len(idx)+size-1)/size)
	for start := 0; start < len(idx); start += size {
		end := min(start+size, len(idx))
		out = append(out, idx[start:end])
	}
	return out
}

// ForPolicy reshapes x and y with the given policy. chunks is only used by
// Chunked.
func ForPolicy(p Policy, x []float32, y []float32, chunks int) (*Batch, error) {
	switch p {
	case Flat:
		return FlatBatch(x, y)
	case Sequence:
		return SequenceBatch(x, y)
	case Chunked:
		return ChunkedBatch(x, y, chunks)
	}
	return nil, fmt.Errorf("unknown reshape policy %v", p)
}

// FlatBatch maps every sample to one example of width 1.
func FlatBatch(x []float32, y []float32) (*Batch, error) {
	if err := checkPair(x, y, 0); err != nil {
		return nil, err
	}
	return &Batch{Examples: len(x), Steps: 1, Channels: 1, X: x, Y: y}, nil
}

// SequenceBatch treats the whole signal as a single example.
func SequenceBatch(x []float32, y []float32) (*Batch, error) {
	if err := checkPair(x, y, 0); err != nil {
		return nil, err
	}
	return &Batch{Examples: 1, Steps: len(x), Channels: 1, X: x, Y: y}, nil
}

// ChunkedBatch cuts the signal into n contiguous chunks of floor(len/n)
// samples. Samples past n*floor(len/n) are dropped, never padded.
func ChunkedBatch(x []float32, y []float32, n int) (*Batch, error) {
	if err := checkPair(x, y, n); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, &ShapeMismatchError{Length: len(x), Chunks: n, Reason: "chunk count must be > 0"}
	}
	steps := len(x) / n
	if steps == 0 {
		return nil, &ShapeMismatchError{Length: len(x), Chunks: n, Reason: "fewer samples than chunks"}
	}
	used := n * steps
	return &Batch{
		Examples: n,
		Steps:    steps,
		Channels: 1,
		X:        x[:used],
		Y:        y[:used],
		Dropped:  len(x) - used,
	}, nil
}

func checkPair(x []float32, y []float32, chunks int) error {
	if len(x) != len(y) {
		return &ShapeMismatchError{Length: len(x), Chunks: chunks, Reason: fmt.Sprintf("target has %d samples", len(y))}
	}
	if len(x) == 0 {
		return &ShapeMismatchError{Length: 0, Chunks: chunks, Reason: "empty signal"}
	}
	return nil
}
