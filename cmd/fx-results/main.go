package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	fitcommon "github.com/cwbudde/algo-fxnet/internal/fitcommon"
	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/results"
)

func main() {
	path := flag.String("results", "assets/results/pruning.json", "Pruning records (JSON or .csv)")
	archFlag := flag.String("arch", "all", "Architecture to report: conv|dense|lstm|all")
	latex := flag.Bool("latex", true, "Print LaTeX table rows per series")
	plotDir := flag.String("plot-dir", "", "Directory for <arch>_pruning_<axis>.png plots (empty skips plotting)")
	axisFlag := flag.String("axis", "both", "Plotted quantity: error|runtime|both")
	flag.Parse()

	recs, err := results.Load(*path)
	if err != nil {
		die("fx-results: %v", err)
	}

	archs := model.Archs
	if a, err := fitcommon.ParseChoice(*archFlag, "conv", "dense", "lstm", "all"); err != nil {
		die("fx-results: invalid -arch: %v", err)
	} else if a != "all" {
		archs = []model.Arch{model.Arch(a)}
	}
	ax, err := fitcommon.ParseChoice(*axisFlag, "error", "runtime", "both")
	if err != nil {
		die("fx-results: invalid -axis: %v", err)
	}
	axes := []results.Axis{results.AxisError, results.AxisRuntime}
	if ax != "both" {
		axes = []results.Axis{results.Axis(ax)}
	}

	fmt.Printf("Loaded %d records from %s\n", len(recs), *path)
	for _, arch := range archs {
		series := results.Group(results.Filter(recs, arch))
		if len(series) == 0 {
			fmt.Printf("\n%s: no records\n", arch.Title())
			continue
		}
		if *latex {
			for _, s := range series {
				fmt.Printf("\n%% %s, %s\n", arch.Title(), s.Method)
				if err := results.LaTeXRows(os.Stdout, s); err != nil {
					die("fx-results: %v", err)
				}
			}
		}
		if *plotDir == "" {
			continue
		}
		for _, a := range axes {
			out := filepath.Join(*plotDir, results.PlotName(arch, a))
			if err := results.Plot(out, arch, recs, a); err != nil {
				die("fx-results: %v", err)
			}
			fmt.Printf("Wrote %s\n", out)
		}
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
