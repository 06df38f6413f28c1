package fitcommon

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// WAVInfo describes a decoded file.
type WAVInfo struct {
	SampleRate  int
	NumChannels int
	Frames      int
}

// ReadWAVChannel decodes path and returns one channel as float32 samples.
func ReadWAVChannel(path string, channel int) ([]float32, WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WAVInfo{}, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, WAVInfo{}, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, WAVInfo{}, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, WAVInfo{}, fmt.Errorf("invalid wav buffer: %s", path)
	}
	ch := buf.Format.NumChannels
	info := WAVInfo{
		SampleRate:  buf.Format.SampleRate,
		NumChannels: ch,
		Frames:      len(buf.Data) / ch,
	}
	if info.SampleRate <= 0 {
		return nil, info, fmt.Errorf("invalid wav sample-rate: %d", info.SampleRate)
	}
	if channel < 0 || channel >= ch {
		return nil, info, fmt.Errorf("channel %d out of range (file has %d)", channel, ch)
	}
	out := make([]float32, info.Frames)
	for i := range info.Frames {
		out[i] = buf.Data[i*ch+channel]
	}
	return out, info, nil
}

// ResampleIfNeeded converts in from fromRate to toRate.
func ResampleIfNeeded(in []float32, fromRate int, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	src := make([]float64, len(in))
	for i, v := range in {
		src[i] = float64(v)
	}
	res := r.Process(src)
	out := make([]float32, len(res))
	for i, v := range res {
		out[i] = float32(v)
	}
	return out, nil
}

// WriteInterleavedWAV writes 16-bit PCM with the given channel count.
func WriteInterleavedWAV(path string, samples []float32, channels int, sampleRate int) error {
	if channels < 1 {
		return fmt.Errorf("channels must be >= 1")
	}
	if len(samples)%channels != 0 {
		return fmt.Errorf("sample count %d not divisible by %d channels", len(samples), channels)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	defer enc.Close()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	return enc.Write(buf)
}

func WriteMonoWAV(path string, data []float32, sampleRate int) error {
	return WriteInterleavedWAV(path, data, 1, sampleRate)
}

// Interleave packs equal-length channels frame by frame.
func Interleave(chans ...[]float32) ([]float32, error) {
	if len(chans) == 0 {
		return nil, nil
	}
	n := len(chans[0])
	for _, c := range chans[1:] {
		if len(c) != n {
			return nil, fmt.Errorf("channel length mismatch")
		}
	}
	out := make([]float32, n*len(chans))
	for i := 0; i < n; i++ {
		for c := range chans {
			out[i*len(chans)+c] = chans[c][i]
		}
	}
	return out, nil
}

// Stats returns the absolute peak and the RMS of x.
func Stats(x []float32) (peak float64, rms float64) {
	if len(x) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range x {
		v := float64(s)
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sum += v * v
	}
	return peak, math.Sqrt(sum / float64(len(x)))
}
