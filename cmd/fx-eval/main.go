package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-fxnet/evaluate"
	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/modelfile"
	"github.com/cwbudde/algo-fxnet/signal"
)

func main() {
	modelPath := flag.String("model", "", "Exported model JSON")
	input := flag.String("input", "", "Dry input WAV")
	target := flag.String("target", "", "Processed target WAV")
	offset := flag.Int("offset", signal.DefaultOffset, "Leading samples skipped in both recordings")
	plotPath := flag.String("plot", "", "Overlay PNG (default: <Arch>_out.png, \"-\" skips it)")
	reportPath := flag.String("report", "", "Optional report JSON")
	predWAV := flag.String("pred-wav", "", "Optional WAV receiving the model prediction")
	segment := flag.Int("segment", model.DefaultSegment, "Samples evaluated per forward pass")
	noResample := flag.Bool("no-resample", false, "Reject recordings with differing sample rates")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	flag.Parse()

	if *modelPath == "" || *input == "" || *target == "" {
		die("fx-eval: -model, -input and -target are required")
	}
	if *offset < 0 {
		die("fx-eval: offset must be >= 0")
	}
	if *segment < 1 {
		*segment = model.DefaultSegment
	}
	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		die("fx-eval: invalid -log-level: %v", err)
	}
	log.SetLevel(level)

	f, err := modelfile.Load(*modelPath)
	if err != nil {
		die("fx-eval: %v", err)
	}
	net, err := modelfile.ToNetwork(f, model.NewBackend())
	if err != nil {
		die("fx-eval: %v", err)
	}
	arch := net.Spec().Arch
	fmt.Printf("Model %s: %s, %d layers, %d parameters\n", *modelPath, arch, len(f.Layers), f.ParamCount())

	pair, err := signal.Load(*input, *target, signal.Options{Offset: *offset, NoResample: *noResample})
	if err != nil {
		die("fx-eval: %v", err)
	}
	fmt.Printf("Loaded %d aligned samples @ %d Hz\n", pair.Len(), pair.SampleRate)

	plot := *plotPath
	switch plot {
	case "":
		plot = evaluate.PlotName(arch)
	case "-":
		plot = ""
	}
	rep, err := evaluate.Run(net, pair, evaluate.Options{
		PlotPath:      plot,
		PredictionWAV: *predWAV,
		Segment:       *segment,
		Log:           log,
	})
	if err != nil {
		die("fx-eval: %v", err)
	}

	m := rep.Metrics
	fmt.Printf("MSE:           %.6g\n", m.MSE)
	fmt.Printf("ESR:           %.6g\n", m.ESR)
	fmt.Printf("Time RMSE:     %.6g\n", m.TimeRMSE)
	fmt.Printf("Spectral RMSE: %.2f dB\n", m.SpectralRMSEDB)
	fmt.Printf("Lag:           %d samples\n", m.LagSamples)
	fmt.Printf("RTF:           %.4f\n", rep.RealTimeFactor)
	for _, b := range m.Bands {
		fmt.Printf("  %-10s %7.2f dB  target %7.2f dB  model %7.2f dB\n", b.Name, b.DiffDB, b.TargetDB, b.PredictionDB)
	}
	if rep.PlotPath != "" {
		fmt.Printf("Wrote %s\n", rep.PlotPath)
	}
	if rep.WAVPath != "" {
		fmt.Printf("Wrote %s\n", rep.WAVPath)
	}
	if *reportPath != "" {
		if err := evaluate.WriteReport(*reportPath, rep); err != nil {
			die("fx-eval: %v", err)
		}
		fmt.Printf("Wrote %s\n", *reportPath)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
