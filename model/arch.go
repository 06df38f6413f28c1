package model

import (
	"fmt"
	"strings"

	"github.com/cwbudde/algo-fxnet/window"
)

// Arch selects one of the fixed network variants.
type Arch string

const (
	ArchConv  Arch = "conv"
	ArchDense Arch = "dense"
	ArchLSTM  Arch = "lstm"
)

// Archs lists the supported variants in a stable order.
var Archs = []Arch{ArchConv, ArchDense, ArchLSTM}

// ParseArch accepts "conv", "dense" or "lstm" in any case.
func ParseArch(s string) (Arch, error) {
	a := Arch(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ArchConv, ArchDense, ArchLSTM:
		return a, nil
	}
	return "", fmt.Errorf("unknown architecture %q (use conv|dense|lstm)", s)
}

// Title is the display name used in plot titles and file names.
func (a Arch) Title() string {
	switch a {
	case ArchConv:
		return "Conv"
	case ArchDense:
		return "Dense"
	case ArchLSTM:
		return "LSTM"
	}
	return string(a)
}

// Policy returns the reshaping layout used to train a.
func (a Arch) Policy() window.Policy {
	switch a {
	case ArchConv:
		return window.Sequence
	case ArchLSTM:
		return window.Chunked
	}
	return window.Flat
}

const (
	convChannels = 32
	denseLayers  = 8
	denseWidth   = 64
	lstmUnits    = 84
)

var convKernels = []int{7, 9, 9, 11}

// Options carries the few knobs the fixed variants expose.
type Options struct {
	// DenseActivation is the hidden activation of the dense variant
	// (relu or tanh).
	DenseActivation Activation
}

// DefaultOptions returns relu for the dense variant.
func DefaultOptions() Options {
	return Options{DenseActivation: ReLU}
}

// SpecFor returns the fixed layer list of arch.
func SpecFor(arch Arch, opts Options) (Spec, error) {
	s := Spec{Arch: arch, InputWidth: 1}
	switch arch {
	case ArchConv:
		in := 1
		for _, k := range convKernels {
			s.Layers = append(s.Layers, LayerSpec{
				Kind:       KindConv1D,
				In:         in,
				Out:        convChannels,
				KernelSize: k,
				Dilation:   1,
				Activation: Tanh,
				KernelInit: InitGlorotUniform,
				BiasInit:   InitZeros,
			})
			in = convChannels
		}
		s.Layers = append(s.Layers, LayerSpec{
			Kind: KindDense, In: convChannels, Out: 1, Activation: Linear,
			KernelInit: InitGlorotUniform, BiasInit: InitZeros,
		})

	case ArchDense:
		act := opts.DenseActivation
		if act == "" {
			act = ReLU
		}
		if act != ReLU && act != Tanh {
			return Spec{}, fmt.Errorf("dense activation must be relu or tanh, got %q", act)
		}
		in := 1
		for range denseLayers {
			s.Layers = append(s.Layers, LayerSpec{
				Kind: KindDense, In: in, Out: denseWidth, Activation: act,
				KernelInit: InitRandomNormal, BiasInit: InitRandomNormal,
			})
			in = denseWidth
		}
		s.Layers = append(s.Layers, LayerSpec{
			Kind: KindDense, In: denseWidth, Out: 1, Activation: Linear,
			KernelInit: InitRandomNormal, BiasInit: InitZeros,
		})

	case ArchLSTM:
		s.Layers = []LayerSpec{
			{
				Kind: KindLSTM, In: 1, Out: lstmUnits, Activation: Tanh,
				KernelInit: InitGlorotUniform, RecurrentInit: InitOrthogonal, BiasInit: InitForgetBias,
			},
			{
				Kind: KindDense, In: lstmUnits, Out: 1, Activation: Linear,
				KernelInit: InitGlorotUniform, BiasInit: InitZeros,
			},
		}

	default:
		return Spec{}, fmt.Errorf("unknown architecture %q", arch)
	}
	return s, nil
}
