package dsp

import (
	"math"
	"testing"
)

func TestLowpassPassesDCAndBlocksNyquist(t *testing.T) {
	lp, err := NewLowpass(1000, 48000, math.Sqrt2/2)
	if err != nil {
		t.Fatalf("NewLowpass: %v", err)
	}
	var y float32
	for i := 0; i < 4000; i++ {
		y = lp.Process(1)
	}
	if math.Abs(float64(y)-1) > 1e-3 {
		t.Fatalf("DC gain = %f, want 1", y)
	}

	lp.Reset()
	var peak float64
	for i := 0; i < 4000; i++ {
		x := float32(1)
		if i%2 == 1 {
			x = -1
		}
		y = lp.Process(x)
		if i > 2000 {
			peak = math.Max(peak, math.Abs(float64(y)))
		}
	}
	if peak > 1e-3 {
		t.Fatalf("Nyquist leaks through lowpass: %g", peak)
	}
}

func TestHighpassBlocksDC(t *testing.T) {
	hp, err := NewHighpass(200, 48000, 0.7)
	if err != nil {
		t.Fatalf("NewHighpass: %v", err)
	}
	buf := make([]float32, 20000)
	for i := range buf {
		buf[i] = 0.5
	}
	hp.ProcessBlock(buf, buf)
	if math.Abs(float64(buf[len(buf)-1])) > 1e-4 {
		t.Fatalf("DC not removed: %g", buf[len(buf)-1])
	}
}

func TestFilterRejectsBadCutoff(t *testing.T) {
	for _, fc := range []float64{0, -10, 24000, 30000} {
		if _, err := NewLowpass(fc, 48000, 0.7); err == nil {
			t.Fatalf("cutoff %g: expected error", fc)
		}
	}
	if _, err := NewHighpass(1000, 48000, 0); err == nil {
		t.Fatalf("expected error for q=0")
	}
}

func TestDelayLine(t *testing.T) {
	d := NewDelayLine(3)
	in := []float32{1, 2, 3, 4, 5, 6}
	want := []float32{0, 0, 0, 1, 2, 3}
	for i, x := range in {
		if p := d.Peek(); p != want[i] {
			t.Fatalf("Peek at %d = %v, want %v", i, p, want[i])
		}
		if y := d.Process(x); y != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, y, want[i])
		}
	}
	d.Reset()
	if d.Process(9) != 0 || d.Len() != 3 {
		t.Fatalf("reset did not clear the line")
	}
	if NewDelayLine(0).Len() != 1 {
		t.Fatalf("zero delay should clamp to one sample")
	}
}

func TestSoftClipTracksTanh(t *testing.T) {
	for x := float32(-12); x <= 12; x += 0.125 {
		got := SoftClip(x)
		want := math.Tanh(float64(x))
		if math.Abs(float64(got)-want) > 3e-2 {
			t.Fatalf("SoftClip(%v) = %v, want %v", x, got, want)
		}
		if got > 1 || got < -1 {
			t.Fatalf("SoftClip(%v) = %v outside [-1,1]", x, got)
		}
	}
}

func TestConvolverMatchesDirectForm(t *testing.T) {
	ir := []float32{1, 0.5, -0.25, 0.125, 0, 0.0625, -0.5}
	x := make([]float32, 300)
	for i := range x {
		x[i] = float32(math.Sin(float64(i) * 0.37))
	}
	want := make([]float32, len(x))
	for n := range x {
		var acc float64
		for k, h := range ir {
			if n-k >= 0 {
				acc += float64(h) * float64(x[n-k])
			}
		}
		want[n] = float32(acc)
	}

	c, err := NewConvolver(ir, 16)
	if err != nil {
		t.Fatalf("NewConvolver: %v", err)
	}
	var got []float32
	for start := 0; start < len(x); start += 37 {
		end := min(start+37, len(x))
		y, err := c.Process(x[start:end])
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		got = append(got, y...)
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-4 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := NewConvolver(nil, 16); err == nil {
		t.Fatalf("expected error for empty IR")
	}
}
