package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/cwbudde/algo-fxnet/evaluate"
	fitcommon "github.com/cwbudde/algo-fxnet/internal/fitcommon"
	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/modelfile"
	"github.com/cwbudde/algo-fxnet/runconfig"
	"github.com/cwbudde/algo-fxnet/synth"
)

func TestRunWritesModelAndPlot(t *testing.T) {
	dir := t.TempDir()
	sc := synth.DefaultConfig()
	sc.Effect = synth.EffectFuzz
	sc.Samples = 4000
	x, y, err := synth.Generate(sc)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	in := filepath.Join(dir, "in.wav")
	tgt := filepath.Join(dir, "out.wav")
	if err := fitcommon.WriteMonoWAV(in, x, sc.SampleRate); err != nil {
		t.Fatal(err)
	}
	if err := fitcommon.WriteMonoWAV(tgt, y, sc.SampleRate); err != nil {
		t.Fatal(err)
	}

	for _, arch := range model.Archs {
		t.Run(string(arch), func(t *testing.T) {
			cfg := runconfig.Default(arch)
			cfg.Input, cfg.Target = in, tgt
			cfg.Offset = 500
			cfg.Chunks = 10
			cfg.Train.Epochs = 1
			cfg.Train.BPTT = 50
			cfg.Output = filepath.Join(dir, string(arch)+".json")
			cfg.Plot = filepath.Join(dir, evaluate.PlotName(arch))
			report := filepath.Join(dir, string(arch)+".report.json")
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}

			log, hook := test.NewNullLogger()
			log.SetLevel(logrus.InfoLevel)
			if err := run(context.Background(), &cfg, "", report, log); err != nil {
				t.Fatalf("run: %v", err)
			}
			for _, p := range []string{cfg.Output, cfg.Plot, report} {
				if info, err := os.Stat(p); err != nil || info.Size() == 0 {
					t.Fatalf("missing output %s: %v", p, err)
				}
			}
			f, err := modelfile.Load(cfg.Output)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			want, _ := model.SpecFor(arch, model.DefaultOptions())
			if f.ParamCount() != want.ParamCount() {
				t.Fatalf("exported %d parameters, want %d", f.ParamCount(), want.ParamCount())
			}
			if n := len(f.Layers); arch == model.ArchDense && n != 17 {
				t.Fatalf("dense export has %d layers, want 17 with separate activations", n)
			}
			if len(hook.AllEntries()) == 0 {
				t.Fatalf("expected log entries")
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	sc := synth.DefaultConfig()
	sc.Samples = 2000
	x, y, err := synth.Generate(sc)
	if err != nil {
		t.Fatal(err)
	}
	cfg := runconfig.Default(model.ArchDense)
	cfg.Input = filepath.Join(dir, "in.wav")
	cfg.Target = filepath.Join(dir, "out.wav")
	cfg.Offset = 0
	cfg.Output = filepath.Join(dir, "dense.json")
	cfg.Plot = ""
	if err := fitcommon.WriteMonoWAV(cfg.Input, x, sc.SampleRate); err != nil {
		t.Fatal(err)
	}
	if err := fitcommon.WriteMonoWAV(cfg.Target, y, sc.SampleRate); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log, _ := test.NewNullLogger()
	if err := run(ctx, &cfg, "", "", log); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if _, err := os.Stat(cfg.Output); !os.IsNotExist(err) {
		t.Fatalf("no model should be exported after cancellation: %v", err)
	}
}
