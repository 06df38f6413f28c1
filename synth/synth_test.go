package synth

import (
	"math"
	"testing"
)

func checkFinite(t *testing.T, name string, x []float32, limit float64) {
	t.Helper()
	energy := 0.0
	for i, v := range x {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			t.Fatalf("%s: non-finite sample at %d", name, i)
		}
		if math.Abs(f) > limit {
			t.Fatalf("%s: sample %d = %f exceeds %f", name, i, f, limit)
		}
		energy += f * f
	}
	if energy <= 1e-8 {
		t.Fatalf("%s: expected non-zero energy", name)
	}
}

func TestInputIsNormalized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Samples = 30000
	x := Input(cfg)
	if len(x) != cfg.Samples {
		t.Fatalf("got %d samples, want %d", len(x), cfg.Samples)
	}
	checkFinite(t, "input", x, cfg.Level+1e-6)
}

func TestDefaultIsOneSampleDelay(t *testing.T) {
	x, y, err := Generate(DefaultConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if y[0] != 0 {
		t.Fatalf("first target sample = %f, want 0", y[0])
	}
	for i := 1; i < len(x); i++ {
		if y[i] != x[i-1] {
			t.Fatalf("target[%d] = %f, want input[%d] = %f", i, y[i], i-1, x[i-1])
		}
	}
}

func TestDelayFeedbackAndMix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DelaySamples = 3
	cfg.Feedback = 0.5
	cfg.Mix = 0.5
	x := make([]float32, 10)
	x[0] = 1
	y, err := Apply(cfg, x)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []float32{0.5, 0, 0, 0.5, 0, 0, 0.25, 0, 0, 0.125}
	for i := range want {
		if math.Abs(float64(y[i]-want[i])) > 1e-7 {
			t.Fatalf("y[%d] = %f, want %f", i, y[i], want[i])
		}
	}
}

func TestFuzzSaturates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Effect = EffectFuzz
	cfg.Samples = 24000
	x, y, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	checkFinite(t, "fuzz", y, 1)

	// Saturation compresses: the output crest factor is well below the input's.
	if crest(y) >= crest(x) {
		t.Fatalf("fuzz did not compress: crest in=%f out=%f", crest(x), crest(y))
	}
}

func TestCabinetIR(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Effect = EffectCabinet
	ir := CabinetIR(cfg)
	if len(ir) != int(cfg.IRSeconds*float64(cfg.SampleRate)) {
		t.Fatalf("unexpected IR length %d", len(ir))
	}
	checkFinite(t, "ir", ir, 0.9+1e-6)
	if math.Abs(float64(ir[len(ir)-1])) > 1e-3 {
		t.Fatalf("IR not faded out: %g", ir[len(ir)-1])
	}

	cfg.Samples = 9000
	_, y, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(y) != cfg.Samples {
		t.Fatalf("target length %d, want %d", len(y), cfg.Samples)
	}
	checkFinite(t, "cabinet", y, 1)
}

func TestDeterministicForSeed(t *testing.T) {
	for _, eff := range Effects {
		cfg := DefaultConfig()
		cfg.Effect = eff
		cfg.Samples = 5000
		cfg.Seed = 99
		x1, y1, err := Generate(cfg)
		if err != nil {
			t.Fatalf("%s: %v", eff, err)
		}
		x2, y2, _ := Generate(cfg)
		for i := range x1 {
			if x1[i] != x2[i] || y1[i] != y2[i] {
				t.Fatalf("%s: mismatch at %d", eff, i)
			}
		}
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	mods := map[string]func(*Config){
		"rate":     func(c *Config) { c.SampleRate = 1000 },
		"samples":  func(c *Config) { c.Samples = 0 },
		"level":    func(c *Config) { c.Level = 1.5 },
		"effect":   func(c *Config) { c.Effect = "chorus" },
		"delay":    func(c *Config) { c.DelaySamples = 0 },
		"feedback": func(c *Config) { c.Feedback = 1 },
		"drive":    func(c *Config) { c.Effect = EffectFuzz; c.Drive = 0 },
		"cutoff":   func(c *Config) { c.Effect = EffectFuzz; c.CutoffHz = 30000 },
		"modes":    func(c *Config) { c.Effect = EffectCabinet; c.Modes = 0 },
	}
	for name, mod := range mods {
		cfg := DefaultConfig()
		mod(&cfg)
		if _, _, err := Generate(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func crest(x []float32) float64 {
	var peak, sum float64
	for _, v := range x {
		f := math.Abs(float64(v))
		peak = math.Max(peak, f)
		sum += f * f
	}
	return peak / math.Sqrt(sum/float64(len(x)))
}
