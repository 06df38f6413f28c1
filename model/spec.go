package model

import (
	"fmt"
)

// Kind names a layer type.
type Kind string

const (
	KindDense  Kind = "dense"
	KindConv1D Kind = "conv1d"
	KindLSTM   Kind = "lstm"
)

// Activation names a pointwise nonlinearity.
type Activation string

const (
	Linear  Activation = "linear"
	Tanh    Activation = "tanh"
	ReLU    Activation = "relu"
	Sigmoid Activation = "sigmoid"
)

// Trainable reports whether the network can evaluate a.
func (a Activation) Trainable() bool {
	switch a {
	case Linear, Tanh, ReLU, Sigmoid:
		return true
	}
	return false
}

// Init names a weight initialization scheme.
type Init string

const (
	InitZeros         Init = "zeros"
	InitGlorotUniform Init = "glorot_uniform"
	InitRandomNormal  Init = "random_normal"
	InitOrthogonal    Init = "orthogonal"
	// InitForgetBias is zeros with the LSTM forget-gate block set to one.
	InitForgetBias Init = "unit_forget_bias"
)

// LayerSpec describes one layer. In and Out are feature widths (channels
// for conv1d, units for lstm).
type LayerSpec struct {
	Kind       Kind
	In         int
	Out        int
	KernelSize int
	Dilation   int
	Activation Activation

	KernelInit    Init
	RecurrentInit Init
	BiasInit      Init
}

// ParamCount returns the number of trainable scalars in the layer.
func (l LayerSpec) ParamCount() int {
	switch l.Kind {
	case KindDense:
		return l.In*l.Out + l.Out
	case KindConv1D:
		return l.KernelSize*l.In*l.Out + l.Out
	case KindLSTM:
		return 4*l.Out*(l.In+l.Out) + 4*l.Out
	}
	return 0
}

// WeightShapes returns the row-major shapes of the layer's exported weight
// arrays in export order.
func (l LayerSpec) WeightShapes() [][]int {
	switch l.Kind {
	case KindDense:
		return [][]int{{l.In, l.Out}, {l.Out}}
	case KindConv1D:
		return [][]int{{l.KernelSize, l.In, l.Out}, {l.Out}}
	case KindLSTM:
		return [][]int{{l.In, 4 * l.Out}, {l.Out, 4 * l.Out}, {4 * l.Out}}
	}
	return nil
}

func (l LayerSpec) Validate() error {
	if l.In <= 0 || l.Out <= 0 {
		return fmt.Errorf("%s layer: widths must be > 0 (in=%d out=%d)", l.Kind, l.In, l.Out)
	}
	switch l.Kind {
	case KindDense, KindLSTM:
	case KindConv1D:
		if l.KernelSize <= 0 {
			return fmt.Errorf("conv1d layer: kernel size must be > 0")
		}
		if l.Dilation <= 0 {
			return fmt.Errorf("conv1d layer: dilation must be > 0")
		}
	default:
		return fmt.Errorf("unknown layer kind %q", l.Kind)
	}
	return nil
}

// Spec is an ordered layer list. It is not modified once a Network is built
// from it.
type Spec struct {
	Arch       Arch
	InputWidth int
	Layers     []LayerSpec
}

// ParamCount sums ParamCount over all layers.
func (s Spec) ParamCount() int {
	n := 0
	for _, l := range s.Layers {
		n += l.ParamCount()
	}
	return n
}

// ReceptiveField is the number of input samples that influence one output
// sample. It is 1 for networks without conv1d layers.
func (s Spec) ReceptiveField() int {
	rf := 1
	for _, l := range s.Layers {
		if l.Kind == KindConv1D {
			rf += (l.KernelSize - 1) * l.Dilation
		}
	}
	return rf
}

// Recurrent reports whether the spec contains an lstm layer.
func (s Spec) Recurrent() bool {
	for _, l := range s.Layers {
		if l.Kind == KindLSTM {
			return true
		}
	}
	return false
}

// Validate checks layer widths chain and that the layer order is one the
// network can evaluate: conv1d layers, then lstm layers, then dense layers,
// with no mix of conv1d and lstm.
func (s Spec) Validate() error {
	if len(s.Layers) == 0 {
		return fmt.Errorf("spec has no layers")
	}
	if s.InputWidth != 1 {
		return fmt.Errorf("input width must be 1, got %d", s.InputWidth)
	}
	width := s.InputWidth
	stage := 0
	hasConv, hasLSTM := false, false
	for i, l := range s.Layers {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		if l.In != width {
			return fmt.Errorf("layer %d: input width %d does not match previous output %d", i, l.In, width)
		}
		width = l.Out

		var st int
		switch l.Kind {
		case KindConv1D:
			st, hasConv = 0, true
		case KindLSTM:
			st, hasLSTM = 1, true
		case KindDense:
			st = 2
		}
		if st < stage {
			return fmt.Errorf("layer %d: %s cannot follow earlier layers", i, l.Kind)
		}
		stage = st
	}
	if hasConv && hasLSTM {
		return fmt.Errorf("conv1d and lstm layers cannot be combined")
	}
	if width != 1 {
		return fmt.Errorf("output width must be 1, got %d", width)
	}
	return nil
}
