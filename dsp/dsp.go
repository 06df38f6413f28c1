// Package dsp holds the sample-rate building blocks of the synthetic effects:
// biquad filters, a fixed delay line, a soft clipper and a block convolver.
package dsp

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-approx"
	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Biquad is a second-order IIR section in transposed direct form II.
type Biquad struct {
	b0, b1, b2 float32
	a1, a2     float32

	z1, z2 float32
}

// NewBiquad returns a section with a0-normalized coefficients.
func NewBiquad(b0, b1, b2, a1, a2 float32) *Biquad {
	return &Biquad{b0: b0, b1: b1, b2: b2, a1: a1, a2: a2}
}

// NewLowpass returns an RBJ lowpass at cutoffHz.
func NewLowpass(cutoffHz, sampleRate, q float64) (*Biquad, error) {
	w0, alpha, err := rbj(cutoffHz, sampleRate, q)
	if err != nil {
		return nil, err
	}
	c := math.Cos(w0)
	return normalized((1-c)/2, 1-c, (1-c)/2, 1+alpha, -2*c, 1-alpha), nil
}

// NewHighpass returns an RBJ highpass at cutoffHz.
func NewHighpass(cutoffHz, sampleRate, q float64) (*Biquad, error) {
	w0, alpha, err := rbj(cutoffHz, sampleRate, q)
	if err != nil {
		return nil, err
	}
	c := math.Cos(w0)
	return normalized((1+c)/2, -(1 + c), (1+c)/2, 1+alpha, -2*c, 1-alpha), nil
}

func rbj(cutoffHz, sampleRate, q float64) (w0, alpha float64, err error) {
	if sampleRate <= 0 {
		return 0, 0, fmt.Errorf("sample rate must be > 0")
	}
	if cutoffHz <= 0 || cutoffHz >= sampleRate/2 {
		return 0, 0, fmt.Errorf("cutoff %.1f Hz outside (0, %.1f)", cutoffHz, sampleRate/2)
	}
	if q <= 0 {
		return 0, 0, fmt.Errorf("q must be > 0")
	}
	w0 = 2 * math.Pi * cutoffHz / sampleRate
	return w0, math.Sin(w0) / (2 * q), nil
}

func normalized(b0, b1, b2, a0, a1, a2 float64) *Biquad {
	return NewBiquad(float32(b0/a0), float32(b1/a0), float32(b2/a0), float32(a1/a0), float32(a2/a0))
}

// Process filters one sample.
func (b *Biquad) Process(x float32) float32 {
	y := b.b0*x + b.z1
	b.z1 = flush(b.b1*x - b.a1*y + b.z2)
	b.z2 = flush(b.b2*x - b.a2*y)
	return y
}

// ProcessBlock filters src into dst. dst and src may be the same slice.
func (b *Biquad) ProcessBlock(dst, src []float32) {
	for i, x := range src {
		dst[i] = b.Process(x)
	}
}

// Reset clears the filter state.
func (b *Biquad) Reset() {
	b.z1, b.z2 = 0, 0
}

func flush(x float32) float32 {
	return float32(dspcore.FlushDenormals(float64(x)))
}

// DelayLine delays its input by a fixed number of samples.
type DelayLine struct {
	buf []float32
	pos int
}

// NewDelayLine returns a line of delay samples (at least one).
func NewDelayLine(delay int) *DelayLine {
	if delay < 1 {
		delay = 1
	}
	return &DelayLine{buf: make([]float32, delay)}
}

// Len returns the delay in samples.
func (d *DelayLine) Len() int { return len(d.buf) }

// Peek returns the sample the next Process call will emit.
func (d *DelayLine) Peek() float32 { return d.buf[d.pos] }

// Process stores x and returns the sample stored Len() calls ago.
func (d *DelayLine) Process(x float32) float32 {
	y := d.buf[d.pos]
	d.buf[d.pos] = x
	d.pos++
	if d.pos == len(d.buf) {
		d.pos = 0
	}
	return y
}

// Reset zeroes the line.
func (d *DelayLine) Reset() {
	clear(d.buf)
	d.pos = 0
}

// SoftClip is a tanh saturator built on the fast exponential.
func SoftClip(x float32) float32 {
	// tanh is within float32 rounding of ±1 past here.
	const knee = 9
	switch {
	case x > knee:
		return 1
	case x < -knee:
		return -1
	}
	return 1 - 2/(approx.FastExp(2*x)+1)
}

// Convolver applies an FIR (an impulse response) to consecutive blocks,
// carrying the tail of each block into the next.
type Convolver struct {
	ola  *dspconv.OverlapAdd
	tail []float64
}

// NewConvolver partitions ir into blocks of partSize.
func NewConvolver(ir []float32, partSize int) (*Convolver, error) {
	if len(ir) == 0 {
		return nil, fmt.Errorf("empty impulse response")
	}
	if partSize < 1 {
		return nil, fmt.Errorf("partition size must be >= 1")
	}
	h := make([]float64, len(ir))
	for i, v := range ir {
		h[i] = float64(v)
	}
	ola, err := dspconv.NewOverlapAdd(h, partSize)
	if err != nil {
		return nil, err
	}
	return &Convolver{ola: ola}, nil
}

// Process returns len(block) output samples.
func (c *Convolver) Process(block []float32) ([]float32, error) {
	out := make([]float32, len(block))
	if len(block) == 0 {
		return out, nil
	}
	in := make([]float64, len(block))
	for i, v := range block {
		in[i] = float64(v)
	}
	full, err := c.ola.Process(in)
	if err != nil {
		return nil, err
	}

	// full holds the block's complete response; fold the previous tail in and
	// keep whatever reaches past this block.
	n := max(len(full), len(c.tail))
	acc := make([]float64, max(n, len(block)))
	copy(acc, full)
	for i, v := range c.tail {
		acc[i] += v
	}
	for i := range out {
		out[i] = float32(acc[i])
	}
	c.tail = append(c.tail[:0], acc[len(block):]...)
	return out, nil
}

// Reset drops the pending tail.
func (c *Convolver) Reset() {
	c.tail = c.tail[:0]
}
