// Package analysis measures how closely a model's output follows the
// recorded effect output.
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

const (
	fftSize   = 4096
	fftHop    = 2048
	maxFrames = 256

	lagWindow = 1 << 16
)

// Band is a frequency range reported by Compare.
type Band struct {
	Name string  `json:"name"`
	LoHz float64 `json:"lo_hz"`
	HiHz float64 `json:"hi_hz"`

	TargetDB     float64 `json:"target_db"`
	PredictionDB float64 `json:"prediction_db"`
	DiffDB       float64 `json:"diff_db"`
}

// DefaultBands splits the audible range the way listening reports do.
var DefaultBands = []Band{
	{Name: "sub-bass", LoHz: 20, HiHz: 100},
	{Name: "bass", LoHz: 100, HiHz: 300},
	{Name: "low-mid", LoHz: 300, HiHz: 1000},
	{Name: "mid", LoHz: 1000, HiHz: 3000},
	{Name: "hi-mid", LoHz: 3000, HiHz: 6000},
	{Name: "high", LoHz: 6000, HiHz: 12000},
	{Name: "air", LoHz: 12000, HiHz: 20000},
}

// Metrics contains error measurements between a target and a prediction.
type Metrics struct {
	SampleRate int `json:"sample_rate"`
	Frames     int `json:"frames"`
	LagSamples int `json:"lag_samples"`

	MSE            float64 `json:"mse"`
	ESR            float64 `json:"esr"`
	TimeRMSE       float64 `json:"time_rmse"`
	TargetRMS      float64 `json:"target_rms"`
	PredictionRMS  float64 `json:"prediction_rms"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`

	Bands []Band `json:"bands,omitempty"`
}

// Compare measures prediction against target over their common length.
// Time-domain errors are taken without lag compensation; LagSamples reports
// the cross-correlation peak so a latency mismatch is visible.
func Compare(target, prediction []float32, sampleRate int) (Metrics, error) {
	m := Metrics{SampleRate: sampleRate}
	if sampleRate <= 0 {
		return m, fmt.Errorf("sample rate must be > 0, got %d", sampleRate)
	}
	n := min(len(target), len(prediction))
	if n == 0 {
		return m, fmt.Errorf("nothing to compare (target %d, prediction %d samples)", len(target), len(prediction))
	}
	target, prediction = target[:n], prediction[:n]
	m.Frames = n

	m.MSE = MSE(target, prediction)
	m.TimeRMSE = math.Sqrt(m.MSE)
	m.ESR = ESR(target, prediction)
	m.TargetRMS = rms(target)
	m.PredictionRMS = rms(prediction)

	lag, err := EstimateLag(target, prediction, min(sampleRate/50, n-1))
	if err != nil {
		return m, err
	}
	m.LagSamples = lag

	spec, err := newSpectra(target, prediction)
	if err != nil {
		return m, err
	}
	if spec != nil {
		m.SpectralRMSEDB = spec.rmseDB()
		m.Bands = spec.bands(DefaultBands, sampleRate)
	}
	return m, nil
}

// MSE is the mean squared difference over the common length.
func MSE(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum / float64(n)
}

// ESR is the error energy normalized by the target energy. A silent target
// yields +Inf unless the prediction is silent too.
func ESR(target, prediction []float32) float64 {
	n := min(len(target), len(prediction))
	var num, den float64
	for i := 0; i < n; i++ {
		d := float64(target[i]) - float64(prediction[i])
		num += d * d
		den += float64(target[i]) * float64(target[i])
	}
	if den == 0 {
		if num == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return num / den
}

// EstimateLag returns the shift in [-maxLag, maxLag] maximizing the
// cross-correlation of the leading samples. Positive means prediction lags
// target: prediction[i] lines up with target[i+lag].
func EstimateLag(target, prediction []float32, maxLag int) (int, error) {
	n := min(len(target), len(prediction), lagWindow)
	if n == 0 || maxLag <= 0 {
		return 0, nil
	}
	maxLag = min(maxLag, n-1)
	a := target[:n]
	b := make([]float32, n)
	for i := range b {
		b[i] = prediction[n-1-i]
	}
	xc := make([]float32, 2*n-1)
	if err := algofft.ConvolveReal(xc, a, b); err != nil {
		return 0, fmt.Errorf("cross-correlation: %w", err)
	}
	best, bestLag := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		if v := float64(xc[n-1+lag]); v > best {
			best, bestLag = v, lag
		}
	}
	return bestLag, nil
}

// spectra holds frame-averaged magnitude spectra of two signals.
type spectra struct {
	target, prediction []float64
}

// newSpectra averages Hann-windowed STFT magnitudes over up to maxFrames
// frames. It returns nil when the signals are shorter than one frame.
func newSpectra(target, prediction []float32) (*spectra, error) {
	n := min(len(target), len(prediction))
	if n < fftSize {
		return nil, nil
	}
	plan, err := algofft.NewPlanReal64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("fft plan: %w", err)
	}
	hann := make([]float64, fftSize)
	for i := range hann {
		hann[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
	}

	bins := fftSize / 2
	s := &spectra{target: make([]float64, bins), prediction: make([]float64, bins)}
	specT := make([]complex128, bins+1)
	specP := make([]complex128, bins+1)
	bufT := make([]float64, fftSize)
	bufP := make([]float64, fftSize)

	frames := 1 + (n-fftSize)/fftHop
	stride := 1
	if frames > maxFrames {
		stride = frames / maxFrames
	}
	used := 0
	for f := 0; f < frames && used < maxFrames; f += stride {
		pos := f * fftHop
		for i := 0; i < fftSize; i++ {
			bufT[i] = float64(target[pos+i]) * hann[i]
			bufP[i] = float64(prediction[pos+i]) * hann[i]
		}
		plan.Forward(specT, bufT)
		plan.Forward(specP, bufP)
		for k := 1; k < bins; k++ {
			s.target[k] += cmplx.Abs(specT[k])
			s.prediction[k] += cmplx.Abs(specP[k])
		}
		used++
	}
	for k := range s.target {
		s.target[k] /= float64(used)
		s.prediction[k] /= float64(used)
	}
	return s, nil
}

func (s *spectra) rmseDB() float64 {
	var sum float64
	n := len(s.target)
	for k := 1; k < n; k++ {
		d := linToDB(s.target[k]) - linToDB(s.prediction[k])
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}

func (s *spectra) bands(defs []Band, sampleRate int) []Band {
	binHz := float64(sampleRate) / fftSize
	out := make([]Band, 0, len(defs))
	for _, b := range defs {
		lo := max(1, int(math.Ceil(b.LoHz/binHz)))
		hi := min(len(s.target)-1, int(math.Floor(b.HiHz/binHz)))
		if lo > hi {
			continue
		}
		var et, ep float64
		for k := lo; k <= hi; k++ {
			et += s.target[k] * s.target[k]
			ep += s.prediction[k] * s.prediction[k]
		}
		cnt := float64(hi - lo + 1)
		b.TargetDB = powToDB(et / cnt)
		b.PredictionDB = powToDB(ep / cnt)
		b.DiffDB = b.PredictionDB - b.TargetDB
		out = append(out, b)
	}
	return out
}

func rms(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func linToDB(x float64) float64 {
	if x < 1e-12 {
		x = 1e-12
	}
	return 20.0 * math.Log10(x)
}

func powToDB(x float64) float64 {
	if x < 1e-24 {
		x = 1e-24
	}
	return 10.0 * math.Log10(x)
}
