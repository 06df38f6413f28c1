// Package signal loads and time-aligns an effect's input and target recordings.
package signal

import (
	"fmt"

	fitcommon "github.com/cwbudde/algo-fxnet/internal/fitcommon"
)

// DefaultOffset is the number of leading samples skipped in both recordings.
const DefaultOffset = 2_000_000

// Pair is an aligned input/target recording.
type Pair struct {
	Input      []float32
	Target     []float32
	SampleRate int

	// Dropped is the number of target samples discarded past the input's end.
	Dropped int
}

// Len returns the aligned length.
func (p *Pair) Len() int { return len(p.Input) }

// Options controls Load.
type Options struct {
	Offset int

	// NoResample rejects pairs with differing sample rates instead of
	// converting the target to the input rate.
	NoResample bool
}

// DefaultOptions returns the offset used by the reference recordings.
func DefaultOptions() Options {
	return Options{Offset: DefaultOffset}
}

// FileFormatError reports a recording that could not be decoded as audio.
type FileFormatError struct {
	Path string
	Err  error
}

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("file format: %s: %v", e.Path, e.Err)
}

func (e *FileFormatError) Unwrap() error { return e.Err }

// AlignmentError reports a target too short to cover the offset input.
type AlignmentError struct {
	Offset    int
	InputLen  int
	TargetLen int
}

func (e *AlignmentError) Error() string {
	if e.Offset >= e.InputLen {
		return fmt.Sprintf("alignment: offset %d leaves no input (input has %d samples)", e.Offset, e.InputLen)
	}
	return fmt.Sprintf("alignment: target has %d samples after offset %d, need %d",
		max(e.TargetLen-e.Offset, 0), e.Offset, e.InputLen-e.Offset)
}

// Load decodes both recordings, keeps channel 0 of each and aligns them.
func Load(inputPath string, targetPath string, opts Options) (*Pair, error) {
	in, inInfo, err := fitcommon.ReadWAVChannel(inputPath, 0)
	if err != nil {
		return nil, &FileFormatError{Path: inputPath, Err: err}
	}
	tgt, tgtInfo, err := fitcommon.ReadWAVChannel(targetPath, 0)
	if err != nil {
		return nil, &FileFormatError{Path: targetPath, Err: err}
	}
	if tgtInfo.SampleRate != inInfo.SampleRate {
		if opts.NoResample {
			return nil, &FileFormatError{
				Path: targetPath,
				Err:  fmt.Errorf("sample rate %d differs from input rate %d", tgtInfo.SampleRate, inInfo.SampleRate),
			}
		}
		tgt, err = fitcommon.ResampleIfNeeded(tgt, tgtInfo.SampleRate, inInfo.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("resample target: %w", err)
		}
	}

	x, y, err := Align(in, tgt, opts.Offset)
	if err != nil {
		return nil, err
	}
	return &Pair{
		Input:      x,
		Target:     y,
		SampleRate: inInfo.SampleRate,
		Dropped:    len(tgt) - opts.Offset - len(y),
	}, nil
}

// Align drops offset samples from both signals and truncates the target to
// the remaining input length. The returned slices share memory with the
// arguments.
func Align(input []float32, target []float32, offset int) ([]float32, []float32, error) {
	if offset < 0 {
		return nil, nil, fmt.Errorf("alignment: negative offset %d", offset)
	}
	if offset >= len(input) || len(target) < len(input) {
		return nil, nil, &AlignmentError{Offset: offset, InputLen: len(input), TargetLen: len(target)}
	}
	x := input[offset:]
	y := target[offset : offset+len(x)]
	return x, y, nil
}
