// Package evaluate runs a trained network over the full input recording,
// scores the result against the target and renders the overlay plot.
package evaluate

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-fxnet/analysis"
	fitcommon "github.com/cwbudde/algo-fxnet/internal/fitcommon"
	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/signal"
)

// WindowLength is the number of samples shown in the overlay plot.
const WindowLength = 1000

// Window returns the plotted sample range of arch. The recurrent model is
// shown one window later so its start-up transient is off the plot.
func Window(arch model.Arch) (start, end int) {
	if arch == model.ArchLSTM {
		return WindowLength, 2 * WindowLength
	}
	return 0, WindowLength
}

// PlotName returns the default overlay file name, e.g. "Dense_out.png".
func PlotName(arch model.Arch) string {
	return arch.Title() + "_out.png"
}

// Predict evaluates net over x as one sequence. Recurrent models therefore
// see a much longer sequence here than the chunks they were trained on.
func Predict(net *model.Network, x []float32) ([]float32, error) {
	return net.Predict(x, model.DefaultSegment)
}

// Options controls Run.
type Options struct {
	// PlotPath is the overlay PNG to write; empty skips the plot.
	PlotPath string
	// PredictionWAV, when set, receives the prediction as mono WAV.
	PredictionWAV string
	// Segment overrides model.DefaultSegment.
	Segment int

	Log logrus.FieldLogger
}

// Report summarizes one evaluation.
type Report struct {
	Arch       model.Arch       `json:"arch"`
	ParamCount int              `json:"parameter_count"`
	Window     [2]int           `json:"plot_window"`
	PlotPath   string           `json:"plot_path,omitempty"`
	WAVPath    string           `json:"prediction_wav,omitempty"`
	Metrics    analysis.Metrics `json:"metrics"`
	// RealTimeFactor is prediction time divided by audio duration.
	RealTimeFactor float64 `json:"real_time_factor"`

	Prediction []float32 `json:"-"`
}

// Run predicts the whole input of pair, compares it with the target and
// writes the requested artifacts.
func Run(net *model.Network, pair *signal.Pair, opts Options) (*Report, error) {
	if pair == nil || pair.Len() == 0 {
		return nil, fmt.Errorf("evaluate: empty signal pair")
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	arch := net.Spec().Arch
	log = log.WithField("arch", arch)

	seg := opts.Segment
	if seg <= 0 {
		seg = model.DefaultSegment
	}
	start := time.Now()
	pred, err := net.Predict(pair.Input, seg)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	m, err := analysis.Compare(pair.Target, pred, pair.SampleRate)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		Arch:       arch,
		ParamCount: net.ParamCount(),
		Metrics:    m,
		Prediction: pred,
	}
	if pair.SampleRate > 0 {
		audio := float64(pair.Len()) / float64(pair.SampleRate)
		rep.RealTimeFactor = elapsed.Seconds() / audio
	}
	log.WithFields(logrus.Fields{
		"mse":     m.MSE,
		"esr":     m.ESR,
		"lag":     m.LagSamples,
		"elapsed": elapsed.Round(time.Millisecond).String(),
	}).Info("evaluated")

	ws, we := Window(arch)
	if ws >= pair.Len() {
		ws, we = 0, WindowLength
	}
	we = min(we, pair.Len())
	rep.Window = [2]int{ws, we}
	if opts.PlotPath != "" {
		title := arch.Title() + " Model Output"
		if err := PlotOverlay(opts.PlotPath, title, pair.Target, pred, ws, we); err != nil {
			return nil, fmt.Errorf("plot %s: %w", filepath.Base(opts.PlotPath), err)
		}
		rep.PlotPath = opts.PlotPath
		log.WithField("path", opts.PlotPath).Info("wrote plot")
	}
	if opts.PredictionWAV != "" {
		if err := fitcommon.WriteMonoWAV(opts.PredictionWAV, pred, pair.SampleRate); err != nil {
			return nil, fmt.Errorf("write prediction wav: %w", err)
		}
		rep.WAVPath = opts.PredictionWAV
	}
	return rep, nil
}

// WriteReport stores r as indented JSON. An undefined ESR (silent target)
// is written as -1.
func WriteReport(path string, r *Report) error {
	out := *r
	if math.IsInf(out.Metrics.ESR, 0) || math.IsNaN(out.Metrics.ESR) {
		out.Metrics.ESR = -1
	}
	return fitcommon.WriteJSON(path, &out)
}
