// Package runconfig loads the optional JSON run description of a training
// job. Keys left out of the file keep their per-arch defaults.
package runconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-fxnet/evaluate"
	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/modelfile"
	"github.com/cwbudde/algo-fxnet/signal"
	"github.com/cwbudde/algo-fxnet/train"
	"github.com/cwbudde/algo-fxnet/window"
)

// File is the JSON schema of a run config.
type File struct {
	Arch                *string `json:"arch"`
	Input               string  `json:"input"`
	Target              string  `json:"target"`
	Offset              *int    `json:"offset"`
	Epochs              *int    `json:"epochs"`
	BatchSize           *int    `json:"batch_size"`
	Chunks              *int    `json:"chunks"`
	Activation          *string `json:"activation"`
	BPTT                *int    `json:"bptt"`
	Seed                *int64  `json:"seed"`
	Output              string  `json:"output"`
	Plot                string  `json:"plot"`
	SeparateActivations *bool   `json:"separate_activations"`
}

// Config is a fully resolved training run.
type Config struct {
	Arch   model.Arch
	Input  string
	Target string
	Offset int
	Chunks int

	Model model.Options
	Train train.Config

	Output              string
	Plot                string
	SeparateActivations bool
}

// Default returns the fixed schedule of arch writing "<arch>.json" and
// "<Arch>_out.png" to the working directory.
func Default(arch model.Arch) Config {
	return Config{
		Arch:   arch,
		Offset: signal.DefaultOffset,
		Chunks: window.DefaultChunks,
		Model:  model.DefaultOptions(),
		Train:  train.DefaultConfig(arch),
		Output: string(arch) + ".json",
		Plot:   evaluate.PlotName(arch),

		SeparateActivations: modelfile.DefaultOptions(arch).SeparateActivations,
	}
}

// Validate checks the fields Default cannot guarantee.
func (c *Config) Validate() error {
	if _, err := model.ParseArch(string(c.Arch)); err != nil {
		return err
	}
	if c.Offset < 0 {
		return fmt.Errorf("offset must be >= 0")
	}
	if c.Chunks < 1 {
		return fmt.Errorf("chunks must be >= 1")
	}
	if c.Output == "" {
		return fmt.Errorf("output path is empty")
	}
	if _, err := model.SpecFor(c.Arch, c.Model); err != nil {
		return err
	}
	return c.Train.Validate()
}

// Load reads a run config and applies it on top of the defaults of its arch
// (dense when the file names none). Relative paths are resolved against the
// directory of path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c := Default(model.ArchDense)
	if err := ApplyFile(&c, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for _, p := range []*string{&c.Input, &c.Target, &c.Output, &c.Plot} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Clean(filepath.Join(base, *p))
		}
	}
	return &c, nil
}

// ApplyFile applies a parsed file onto dst. An arch key that differs from
// dst.Arch moves the arch-dependent fields (batch size, output and plot
// names, activation layout) to the new arch's defaults, but only where dst
// still holds the old arch's defaults. Everything else is kept.
func ApplyFile(dst *Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}

	if f.Arch != nil {
		arch, err := model.ParseArch(*f.Arch)
		if err != nil {
			return err
		}
		if arch != dst.Arch {
			switchArch(dst, arch)
		}
	}
	if f.Input != "" {
		dst.Input = strings.TrimSpace(f.Input)
	}
	if f.Target != "" {
		dst.Target = strings.TrimSpace(f.Target)
	}
	if f.Offset != nil {
		if *f.Offset < 0 {
			return fmt.Errorf("offset must be >= 0")
		}
		dst.Offset = *f.Offset
	}
	if f.Epochs != nil {
		if *f.Epochs < 1 {
			return fmt.Errorf("epochs must be >= 1")
		}
		dst.Train.Epochs = *f.Epochs
	}
	if f.BatchSize != nil {
		if *f.BatchSize < 0 {
			return fmt.Errorf("batch_size must be >= 0")
		}
		dst.Train.BatchSize = *f.BatchSize
	}
	if f.Chunks != nil {
		if *f.Chunks < 1 {
			return fmt.Errorf("chunks must be >= 1")
		}
		dst.Chunks = *f.Chunks
	}
	if f.Activation != nil {
		act := model.Activation(strings.ToLower(strings.TrimSpace(*f.Activation)))
		if act != model.ReLU && act != model.Tanh {
			return fmt.Errorf("activation must be relu or tanh, got %q", *f.Activation)
		}
		dst.Model.DenseActivation = act
	}
	if f.BPTT != nil {
		if *f.BPTT < 1 {
			return fmt.Errorf("bptt must be >= 1")
		}
		dst.Train.BPTT = *f.BPTT
	}
	if f.Seed != nil {
		dst.Train.Seed = *f.Seed
	}
	if f.Output != "" {
		dst.Output = strings.TrimSpace(f.Output)
	}
	if f.Plot != "" {
		dst.Plot = strings.TrimSpace(f.Plot)
	}
	if f.SeparateActivations != nil {
		dst.SeparateActivations = *f.SeparateActivations
	}
	return nil
}

func switchArch(dst *Config, arch model.Arch) {
	old, nd := Default(dst.Arch), Default(arch)
	if dst.Train.BatchSize == old.Train.BatchSize {
		dst.Train.BatchSize = nd.Train.BatchSize
	}
	if filepath.Base(dst.Output) == old.Output {
		dst.Output = filepath.Join(filepath.Dir(dst.Output), nd.Output)
	}
	if dst.Plot != "" && filepath.Base(dst.Plot) == old.Plot {
		dst.Plot = filepath.Join(filepath.Dir(dst.Plot), nd.Plot)
	}
	if dst.SeparateActivations == old.SeparateActivations {
		dst.SeparateActivations = nd.SeparateActivations
	}
	dst.Arch = arch
}
