// Package synth renders synthetic input/target recordings of simple effects,
// used to exercise the training pipeline without studio captures.
package synth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-fxnet/dsp"
)

// Effect names a synthetic effect.
type Effect string

const (
	EffectDelay   Effect = "delay"
	EffectFuzz    Effect = "fuzz"
	EffectCabinet Effect = "cabinet"
)

// Effects lists the supported effects.
var Effects = []Effect{EffectDelay, EffectFuzz, EffectCabinet}

// Config controls the test signal and the effect applied to it.
type Config struct {
	SampleRate int
	Samples    int
	Seed       int64
	Effect     Effect

	// Level is the input peak.
	Level float64

	// Delay.
	DelaySamples int
	Feedback     float64
	Mix          float64

	// Fuzz.
	Drive    float64
	CutoffHz float64

	// Cabinet.
	Modes     int
	IRSeconds float64
}

// DefaultConfig returns a one-second pure one-sample delay at 48 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:   48000,
		Samples:      48000,
		Seed:         1,
		Effect:       EffectDelay,
		Level:        0.5,
		DelaySamples: 1,
		Feedback:     0,
		Mix:          1,
		Drive:        8,
		CutoffHz:     5000,
		Modes:        24,
		IRSeconds:    0.02,
	}
}

func (c *Config) Validate() error {
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", c.SampleRate)
	}
	if c.Samples < 1 {
		return fmt.Errorf("samples must be >= 1")
	}
	if c.Level <= 0 || c.Level > 1 {
		return fmt.Errorf("level must be in (0,1]")
	}
	switch c.Effect {
	case EffectDelay:
		if c.DelaySamples < 1 {
			return fmt.Errorf("delay must be >= 1 sample")
		}
		if c.Feedback < 0 || c.Feedback >= 1 {
			return fmt.Errorf("feedback must be in [0,1)")
		}
		if c.Mix < 0 || c.Mix > 1 {
			return fmt.Errorf("mix must be in [0,1]")
		}
	case EffectFuzz:
		if c.Drive <= 0 {
			return fmt.Errorf("drive must be > 0")
		}
		if c.CutoffHz <= 0 || c.CutoffHz >= float64(c.SampleRate)/2 {
			return fmt.Errorf("cutoff must be in (0, %d)", c.SampleRate/2)
		}
	case EffectCabinet:
		if c.Modes < 1 {
			return fmt.Errorf("modes must be >= 1")
		}
		if c.IRSeconds <= 0 {
			return fmt.Errorf("ir duration must be > 0")
		}
	default:
		return fmt.Errorf("unknown effect %q (use delay|fuzz|cabinet)", c.Effect)
	}
	return nil
}

// Generate renders the input signal and its processed target.
func Generate(cfg Config) (input, target []float32, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	input = Input(cfg)
	target, err = Apply(cfg, input)
	if err != nil {
		return nil, nil, err
	}
	return input, target, nil
}

// Input renders a deterministic guitar-like test signal: decaying plucks of
// a few partials over a low noise floor, with a slow level swell so the
// effect sees the whole dynamic range.
func Input(cfg Config) []float32 {
	n := cfg.Samples
	buf := make([]float64, n)
	rng := rand.New(rand.NewSource(cfg.Seed))
	sr := float64(cfg.SampleRate)

	pluckEvery := max(int(0.25*sr), 1)
	for start := 0; start < n; start += pluckEvery {
		f0 := 82.4 * math.Pow(2, float64(rng.Intn(36))/12)
		tau := 0.15 + 0.5*rng.Float64()
		decay := math.Exp(-1 / (tau * sr))
		seg := buf[start:min(start+4*pluckEvery, n)]
		for h := 1; h <= 6; h++ {
			f := f0 * float64(h)
			if f >= 0.45*sr {
				break
			}
			amp := (0.6 + 0.4*rng.Float64()) / float64(h)
			addModeRec(seg, amp, f, rng.Float64()*2*math.Pi, decay, cfg.SampleRate)
		}
	}
	for i := range buf {
		swell := 0.55 + 0.45*math.Sin(2*math.Pi*float64(i)/(3*sr))
		buf[i] = buf[i]*swell + 0.01*rng.NormFloat64()
	}

	highpassDC(buf, 0.995)
	return normalize(buf, cfg.Level)
}

// Apply runs cfg.Effect over x.
func Apply(cfg Config, x []float32) ([]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Effect {
	case EffectDelay:
		return delay(cfg, x), nil
	case EffectFuzz:
		return fuzz(cfg, x)
	default:
		return cabinet(cfg, x)
	}
}

func delay(cfg Config, x []float32) []float32 {
	d := dsp.NewDelayLine(cfg.DelaySamples)
	fb := float32(cfg.Feedback)
	wet := float32(cfg.Mix)
	y := make([]float32, len(x))
	for i, v := range x {
		w := d.Peek()
		d.Process(v + fb*w)
		y[i] = (1-wet)*v + wet*w
	}
	return y
}

func fuzz(cfg Config, x []float32) ([]float32, error) {
	sr := float64(cfg.SampleRate)
	hp, err := dsp.NewHighpass(min(40, 0.4*cfg.CutoffHz), sr, math.Sqrt2/2)
	if err != nil {
		return nil, err
	}
	lp, err := dsp.NewLowpass(cfg.CutoffHz, sr, math.Sqrt2/2)
	if err != nil {
		return nil, err
	}
	drive := float32(cfg.Drive)
	y := make([]float32, len(x))
	for i, v := range x {
		y[i] = 0.7 * lp.Process(dsp.SoftClip(drive*hp.Process(v)))
	}
	return y, nil
}

func cabinet(cfg Config, x []float32) ([]float32, error) {
	ir := CabinetIR(cfg)
	c, err := dsp.NewConvolver(ir, 256)
	if err != nil {
		return nil, err
	}
	y, err := c.Process(x)
	if err != nil {
		return nil, err
	}
	var peak float64
	for _, v := range y {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak > 1 {
		s := float32(0.99 / peak)
		for i := range y {
			y[i] *= s
		}
	}
	return y, nil
}

// CabinetIR synthesizes a short speaker-cabinet response: a direct impulse
// plus log-spaced decaying modes between 70 Hz and 6 kHz, bright modes
// decaying fastest.
func CabinetIR(cfg Config) []float32 {
	n := max(int(math.Round(cfg.IRSeconds*float64(cfg.SampleRate))), 1)
	buf := make([]float64, n)
	rng := rand.New(rand.NewSource(cfg.Seed + 1))
	buf[0] = 0.5

	const minF, maxF = 70.0, 6000.0
	for m := 0; m < cfg.Modes; m++ {
		f := minF * math.Pow(maxF/minF, (float64(m)+0.5)/float64(cfg.Modes))
		amp := (0.7 + 0.6*rng.Float64()) / math.Pow(1+f/400, 0.8)
		tau := lerp(0.012, 0.002, math.Sqrt(f/maxF))
		decay := math.Exp(-1 / (tau * float64(cfg.SampleRate)))
		addModeRec(buf, amp, f, rng.Float64()*2*math.Pi, decay, cfg.SampleRate)
	}

	highpassDC(buf, 0.995)
	applyFadeOut(buf, 0.25*cfg.IRSeconds, cfg.SampleRate)
	return normalize(buf, 0.9)
}

// addModeRec adds a decaying cosine via the Chebyshev recurrence.
func addModeRec(out []float64, amp, freq, phase, decay float64, sampleRate int) {
	if len(out) == 0 {
		return
	}
	w := 2 * math.Pi * freq / float64(sampleRate)
	cw := math.Cos(w)
	x0 := math.Cos(phase)
	x1 := math.Cos(phase + w)
	env := amp

	out[0] += env * x0
	if len(out) == 1 {
		return
	}
	env *= decay
	out[1] += env * x1
	for i := 2; i < len(out); i++ {
		env *= decay
		x0, x1 = x1, 2*cw*x1-x0
		out[i] += env * x1
	}
}

func highpassDC(x []float64, r float64) {
	var prevIn, prevOut float64
	for i, v := range x {
		y := v - prevIn + r*prevOut
		prevIn, prevOut = v, y
		x[i] = y
	}
}

// applyFadeOut applies a cosine fade to the last fadeS seconds of buf.
func applyFadeOut(buf []float64, fadeS float64, sampleRate int) {
	n := min(int(math.Round(fadeS*float64(sampleRate))), len(buf))
	if n <= 0 {
		return
	}
	start := len(buf) - n
	for i := 0; i < n; i++ {
		buf[start+i] *= 0.5 * (1 + math.Cos(math.Pi*float64(i)/float64(n)))
	}
}

func normalize(buf []float64, peak float64) []float32 {
	m := 1e-12
	for _, v := range buf {
		m = math.Max(m, math.Abs(v))
	}
	s := peak / m
	out := make([]float32, len(buf))
	for i, v := range buf {
		out[i] = float32(v * s)
	}
	return out
}

func lerp(a, b, t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return a + (b-a)*t
}
