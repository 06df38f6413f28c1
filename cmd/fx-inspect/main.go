package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-fxnet/modelfile"
)

func main() {
	modelPath := flag.String("model", "", "Exported model JSON")
	convert := flag.String("convert", "", "Optional path to rewrite the model to, using -separate-activations")
	separate := flag.Bool("separate-activations", false, "With -convert: emit activations as separate layers")
	flag.Parse()

	if *modelPath == "" && flag.NArg() == 1 {
		*modelPath = flag.Arg(0)
	}
	if *modelPath == "" {
		die("fx-inspect: -model is required")
	}

	f, err := modelfile.Load(*modelPath)
	if err != nil {
		die("fx-inspect: %v", err)
	}
	if err := describe(os.Stdout, f); err != nil {
		die("fx-inspect: %v", err)
	}

	if *convert == "" {
		return
	}
	spec, weights, err := modelfile.ToSpec(f)
	if err != nil {
		die("fx-inspect: %v", err)
	}
	out, err := modelfile.FromSpec(spec, weights, modelfile.Options{SeparateActivations: *separate})
	if err != nil {
		die("fx-inspect: %v", err)
	}
	if err := modelfile.Write(*convert, out); err != nil {
		die("fx-inspect: %v", err)
	}
	fmt.Printf("Wrote %s (%d layers)\n", *convert, len(out.Layers))
}

// describe prints one row per layer and the parameter total.
func describe(w io.Writer, f *modelfile.File) error {
	if _, err := fmt.Fprintf(w, "in_shape %s\n", shapeString(f.InShape)); err != nil {
		return err
	}
	fmt.Fprintf(w, "%-3s %-10s %-10s %-10s %-8s %s\n", "#", "type", "activation", "shape", "kernel", "params")
	for i, l := range f.Layers {
		act := l.Activation
		if act == modelfile.ActLinear {
			act = "linear"
		}
		kernel := "-"
		if len(l.KernelSize) > 0 {
			kernel = strconv.Itoa(l.KernelSize[0])
			if len(l.Dilation) > 0 && l.Dilation[0] != 1 {
				kernel += "/d" + strconv.Itoa(l.Dilation[0])
			}
		}
		n := 0
		for _, a := range l.Weights {
			n += len(a.Data)
		}
		fmt.Fprintf(w, "%-3d %-10s %-10s %-10s %-8s %d\n", i, l.Type, act, shapeString(l.Shape), kernel, n)
	}
	_, err := fmt.Fprintf(w, "total parameters: %d\n", f.ParamCount())
	return err
}

func shapeString(s modelfile.Shape) string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d == nil {
			parts[i] = "null"
		} else {
			parts[i] = strconv.Itoa(*d)
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
