package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	ossignal "os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-fxnet/evaluate"
	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/modelfile"
	"github.com/cwbudde/algo-fxnet/runconfig"
	"github.com/cwbudde/algo-fxnet/signal"
	"github.com/cwbudde/algo-fxnet/train"
	"github.com/cwbudde/algo-fxnet/window"
)

func main() {
	configPath := flag.String("config", "", "Optional run config JSON; flags given explicitly override it")
	arch := flag.String("arch", "dense", "Model architecture: conv|dense|lstm")
	input := flag.String("input", "", "Dry input WAV")
	target := flag.String("target", "", "Processed target WAV (first channel is used)")
	offset := flag.Int("offset", signal.DefaultOffset, "Leading samples skipped in both recordings")
	epochs := flag.Int("epochs", 100, "Training epochs")
	batchSize := flag.Int("batch-size", 0, "Examples per optimizer step (0 uses the arch default)")
	chunks := flag.Int("chunks", window.DefaultChunks, "Sequences the lstm input is cut into")
	activation := flag.String("activation", "relu", "Hidden activation of the dense model: relu|tanh")
	bptt := flag.Int("bptt", 256, "Truncated backprop length of the lstm")
	seed := flag.Int64("seed", 1, "Seed for weight init and shuffling")
	out := flag.String("out", "", "Exported model JSON (default: <arch>.json)")
	plotPath := flag.String("plot", "", "Overlay PNG (default: <Arch>_out.png)")
	separate := flag.Bool("separate-activations", false, "Export activations as separate RTNeural layers (default true for dense; =false folds them)")
	predWAV := flag.String("pred-wav", "", "Optional WAV receiving the model prediction")
	reportPath := flag.String("report", "", "Optional evaluation report JSON")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	flag.Parse()

	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		die("fx-train: invalid -log-level: %v", err)
	}
	log.SetLevel(level)

	var cfg *runconfig.Config
	if *configPath != "" {
		cfg, err = runconfig.Load(*configPath)
		if err != nil {
			die("fx-train: %v", err)
		}
	} else {
		a, err := model.ParseArch(*arch)
		if err != nil {
			die("fx-train: %v", err)
		}
		def := runconfig.Default(a)
		cfg = &def
	}

	// Only flags given on the command line override the config.
	var f runconfig.File
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "arch":
			f.Arch = arch
		case "input":
			f.Input = *input
		case "target":
			f.Target = *target
		case "offset":
			f.Offset = offset
		case "epochs":
			f.Epochs = epochs
		case "batch-size":
			if *batchSize > 0 {
				f.BatchSize = batchSize
			}
		case "chunks":
			f.Chunks = chunks
		case "activation":
			f.Activation = activation
		case "bptt":
			f.BPTT = bptt
		case "seed":
			f.Seed = seed
		case "out":
			f.Output = *out
		case "plot":
			f.Plot = *plotPath
		case "separate-activations":
			f.SeparateActivations = separate
		}
	})
	if err := runconfig.ApplyFile(cfg, &f); err != nil {
		die("fx-train: %v", err)
	}
	if cfg.Input == "" || cfg.Target == "" {
		die("fx-train: -input and -target are required")
	}
	if err := cfg.Validate(); err != nil {
		die("fx-train: %v", err)
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *predWAV, *reportPath, log); err != nil {
		die("fx-train: %v", err)
	}
}

func run(ctx context.Context, cfg *runconfig.Config, predWAV, reportPath string, log *logrus.Logger) error {
	started := time.Now()

	pair, err := signal.Load(cfg.Input, cfg.Target, signal.Options{Offset: cfg.Offset})
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d aligned samples @ %d Hz (target dropped %d)\n", pair.Len(), pair.SampleRate, pair.Dropped)

	batch, err := window.ForPolicy(cfg.Arch.Policy(), pair.Input, pair.Target, cfg.Chunks)
	if err != nil {
		return err
	}
	shape := batch.Shape()
	fmt.Printf("Batch %s: %d x %d x %d (dropped %d)\n", cfg.Arch.Policy(), shape[0], shape[1], shape[2], batch.Dropped)

	net, err := model.Build(cfg.Arch, cfg.Model, model.NewBackend(), rand.New(rand.NewSource(cfg.Train.Seed)))
	if err != nil {
		return err
	}
	fmt.Printf("Model %s: %d layers, %d parameters\n", cfg.Arch, net.NumLayers(), net.ParamCount())

	hist, err := train.Fit(ctx, net, batch, cfg.Train, log)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("training interrupted after %d epochs", len(hist.Loss))
		}
		return err
	}
	fmt.Printf("Trained %d epochs (%d steps) in %s, final loss %.6g\n",
		len(hist.Loss), hist.Steps, hist.Elapsed.Round(time.Millisecond), hist.Final())

	rep, err := evaluate.Run(net, pair, evaluate.Options{
		PlotPath:      cfg.Plot,
		PredictionWAV: predWAV,
		Log:           log,
	})
	if err != nil {
		return err
	}
	m := rep.Metrics
	fmt.Printf("MSE %.6g  ESR %.6g  spectral RMSE %.2f dB  lag %d  RTF %.3f\n",
		m.MSE, m.ESR, m.SpectralRMSEDB, m.LagSamples, rep.RealTimeFactor)
	if rep.PlotPath != "" {
		fmt.Printf("Wrote %s\n", rep.PlotPath)
	}
	if reportPath != "" {
		if err := evaluate.WriteReport(reportPath, rep); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", reportPath)
	}

	mf, err := modelfile.Export(cfg.Output, net, modelfile.Options{SeparateActivations: cfg.SeparateActivations})
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d layers, %d parameters)\n", cfg.Output, len(mf.Layers), mf.ParamCount())
	fmt.Printf("Done in %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
