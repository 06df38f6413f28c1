package modelfile_test

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	fitcommon "github.com/cwbudde/algo-fxnet/internal/fitcommon"
	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/modelfile"
	"github.com/cwbudde/algo-fxnet/signal"
	"github.com/cwbudde/algo-fxnet/train"
	"github.com/cwbudde/algo-fxnet/window"
)

// A target that is the input delayed by one sample goes through loading,
// reshaping, a short dense fit and export. Both 3,000,000-sample recordings
// are written and loaded in full, but the fit only uses the first 32,768
// aligned rows so the test stays within a few seconds; the export does not
// depend on how much data was trained on.
func TestDelayedPairToDenseExport(t *testing.T) {
	if testing.Short() {
		t.Skip("writes two 3,000,000-sample recordings")
	}
	const n = 3_000_000
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(1))
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(0.4*math.Sin(2*math.Pi*float64(i)/97) + 0.1*(rng.Float64()*2-1))
	}
	y := make([]float32, n)
	copy(y[1:], x[:n-1])

	inPath := filepath.Join(dir, "in.wav")
	tgtPath := filepath.Join(dir, "out.wav")
	if err := fitcommon.WriteMonoWAV(inPath, x, 48000); err != nil {
		t.Fatal(err)
	}
	if err := fitcommon.WriteMonoWAV(tgtPath, y, 48000); err != nil {
		t.Fatal(err)
	}

	pair, err := signal.Load(inPath, tgtPath, signal.DefaultOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pair.Len() != n-signal.DefaultOffset || len(pair.Target) != pair.Len() {
		t.Fatalf("aligned %d input and %d target samples, want %d", pair.Len(), len(pair.Target), n-signal.DefaultOffset)
	}

	const rows = 1 << 15
	batch, err := window.FlatBatch(pair.Input[:rows], pair.Target[:rows])
	if err != nil {
		t.Fatalf("FlatBatch: %v", err)
	}
	if batch.Shape() != [3]int{rows, 1, 1} {
		t.Fatalf("batch shape %v", batch.Shape())
	}

	net, err := model.Build(model.ArchDense, model.DefaultOptions(), model.NewBackend(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cfg := train.DefaultConfig(model.ArchDense)
	cfg.Epochs = 2
	hist, err := train.Fit(context.Background(), net, batch, cfg, nil)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(hist.Loss) != 2 {
		t.Fatalf("got %d epoch losses, want 2", len(hist.Loss))
	}

	out := filepath.Join(dir, "dense.json")
	f, err := modelfile.Export(out, net, modelfile.DefaultOptions(model.ArchDense))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(f.Layers) != 17 || f.ParamCount() != 29313 {
		t.Fatalf("exported %d layers with %d parameters, want 17 and 29313", len(f.Layers), f.ParamCount())
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var raw struct {
		InShape []*int `json:"in_shape"`
		Layers  []struct {
			Type       string `json:"type"`
			Activation string `json:"activation"`
		} `json:"layers"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(raw.InShape) != 2 || raw.InShape[0] != nil || raw.InShape[1] == nil || *raw.InShape[1] != 1 {
		t.Fatalf("in_shape is not [null,1]")
	}
	if len(raw.Layers) != 17 {
		t.Fatalf("file has %d layers, want 17", len(raw.Layers))
	}
	for i, l := range raw.Layers {
		wantAct := i%2 == 1
		if (l.Type == "activation") != wantAct {
			t.Fatalf("layer %d has type %q", i, l.Type)
		}
		if wantAct && l.Activation != "relu" {
			t.Fatalf("activation layer %d is %q", i, l.Activation)
		}
	}

	loaded, err := modelfile.Load(out)
	if err != nil {
		t.Fatalf("Load model: %v", err)
	}
	back, err := modelfile.ToNetwork(loaded, model.NewBackend())
	if err != nil {
		t.Fatalf("ToNetwork: %v", err)
	}
	if back.Spec().Arch != model.ArchDense {
		t.Fatalf("rebuilt arch %s", back.Spec().Arch)
	}
}
