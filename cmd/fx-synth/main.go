package main

import (
	"flag"
	"fmt"
	"os"

	fitcommon "github.com/cwbudde/algo-fxnet/internal/fitcommon"
	"github.com/cwbudde/algo-fxnet/synth"
)

func main() {
	cfg := synth.DefaultConfig()

	effect := flag.String("effect", string(cfg.Effect), "Effect: delay|fuzz|cabinet")
	inputOut := flag.String("input-out", "out/synth/input.wav", "Output WAV for the dry signal")
	targetOut := flag.String("target-out", "out/synth/target.wav", "Output WAV for the processed signal")
	stereoTarget := flag.Bool("stereo-target", false, "Write the target as stereo (target, dry) like a two-track capture")
	seconds := flag.Float64("duration", 0, "Length in seconds (overrides -samples)")
	flag.IntVar(&cfg.Samples, "samples", cfg.Samples, "Length in samples")
	flag.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Sample rate")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	flag.Float64Var(&cfg.Level, "level", cfg.Level, "Input peak level")
	flag.IntVar(&cfg.DelaySamples, "delay", cfg.DelaySamples, "Delay in samples")
	flag.Float64Var(&cfg.Feedback, "feedback", cfg.Feedback, "Delay feedback [0,1)")
	flag.Float64Var(&cfg.Mix, "mix", cfg.Mix, "Delay wet mix [0,1]")
	flag.Float64Var(&cfg.Drive, "drive", cfg.Drive, "Fuzz drive gain")
	flag.Float64Var(&cfg.CutoffHz, "cutoff", cfg.CutoffHz, "Fuzz tone lowpass cutoff in Hz")
	flag.IntVar(&cfg.Modes, "modes", cfg.Modes, "Cabinet resonances")
	flag.Float64Var(&cfg.IRSeconds, "ir-duration", cfg.IRSeconds, "Cabinet impulse response length in seconds")
	flag.Parse()

	name, err := fitcommon.ParseChoice(*effect, "delay", "fuzz", "cabinet")
	if err != nil {
		die("fx-synth: invalid -effect: %v", err)
	}
	cfg.Effect = synth.Effect(name)
	if *seconds > 0 {
		cfg.Samples = int(*seconds * float64(cfg.SampleRate))
	}

	input, target, err := synth.Generate(cfg)
	if err != nil {
		die("fx-synth: %v", err)
	}

	if err := fitcommon.WriteMonoWAV(*inputOut, input, cfg.SampleRate); err != nil {
		die("fx-synth: write input: %v", err)
	}
	if *stereoTarget {
		frames, err := fitcommon.Interleave(target, input)
		if err != nil {
			die("fx-synth: %v", err)
		}
		err = fitcommon.WriteInterleavedWAV(*targetOut, frames, 2, cfg.SampleRate)
		if err != nil {
			die("fx-synth: write target: %v", err)
		}
	} else if err := fitcommon.WriteMonoWAV(*targetOut, target, cfg.SampleRate); err != nil {
		die("fx-synth: write target: %v", err)
	}

	inPeak, inRMS := fitcommon.Stats(input)
	outPeak, outRMS := fitcommon.Stats(target)
	fmt.Printf("Effect: %s, SampleRate: %d Hz, Samples: %d (%.2f s)\n",
		cfg.Effect, cfg.SampleRate, len(input), float64(len(input))/float64(cfg.SampleRate))
	fmt.Printf("Wrote %s (peak %.4f, rms %.4f)\n", *inputOut, inPeak, inRMS)
	fmt.Printf("Wrote %s (peak %.4f, rms %.4f)\n", *targetOut, outPeak, outRMS)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
