// Package modelfile reads and writes trained networks in the JSON layout
// consumed by the RTNeural inference library.
package modelfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	fitcommon "github.com/cwbudde/algo-fxnet/internal/fitcommon"
	"github.com/cwbudde/algo-fxnet/model"
)

// Layer type names.
const (
	TypeDense      = "dense"
	TypeConv1D     = "conv1d"
	TypeLSTM       = "lstm"
	TypeActivation = "activation"
)

// Activation names as written to the file. Linear is the empty string.
const (
	ActLinear  = ""
	ActTanh    = "tanh"
	ActReLU    = "relu"
	ActSigmoid = "sigmoid"
	ActSoftmax = "softmax"
	ActELU     = "elu"
	ActPReLU   = "prelu"
)

var knownActivations = map[string]bool{
	ActLinear: true, ActTanh: true, ActReLU: true, ActSigmoid: true,
	ActSoftmax: true, ActELU: true, ActPReLU: true,
}

// File is the top-level JSON document.
type File struct {
	InShape Shape   `json:"in_shape"`
	Layers  []Layer `json:"layers"`
}

// Layer is one entry of File.Layers. KernelSize and Dilation are only set
// for conv1d; activation layers carry no weights.
type Layer struct {
	Type       string  `json:"type"`
	Activation string  `json:"activation"`
	Shape      Shape   `json:"shape"`
	KernelSize []int   `json:"kernel_size,omitempty"`
	Dilation   []int   `json:"dilation,omitempty"`
	Weights    []Array `json:"weights,omitempty"`
}

// Shape is a layer shape with a leading batch dimension written as null.
// Only the last element carries information.
type Shape []*int

// Width builds [null, w].
func Width(w int) Shape {
	return Shape{nil, &w}
}

// Last returns the final dimension, or 0 when it is null or missing.
func (s Shape) Last() int {
	if len(s) == 0 || s[len(s)-1] == nil {
		return 0
	}
	return *s[len(s)-1]
}

// UnsupportedLayerError reports a layer kind, activation or conv1d dilation
// that cannot be represented.
type UnsupportedLayerError struct {
	Index      int
	Kind       string
	Activation string
	Dilation   int
}

func (e *UnsupportedLayerError) Error() string {
	if e.Dilation != 0 {
		return fmt.Sprintf("layer %d: %s dilation %d unsupported (only 1)", e.Index, e.Kind, e.Dilation)
	}
	if e.Activation != "" {
		return fmt.Sprintf("layer %d: unsupported activation %q for %s layer", e.Index, e.Activation, e.Kind)
	}
	return fmt.Sprintf("layer %d: unsupported layer type %q", e.Index, e.Kind)
}

// ShapeError reports weights inconsistent with a layer's declared shape.
type ShapeError struct {
	Index  int
	Weight int
	Got    []int
	Want   []int
}

func (e *ShapeError) Error() string {
	if e.Weight < 0 {
		return fmt.Sprintf("layer %d: weight count %v, want %v", e.Index, e.Got, e.Want)
	}
	return fmt.Sprintf("layer %d weight %d: shape %v, want %v", e.Index, e.Weight, e.Got, e.Want)
}

// Options controls FromNetwork.
type Options struct {
	// SeparateActivations emits nonlinearities of dense and conv1d layers as
	// their own activation layers instead of the layer's activation field.
	SeparateActivations bool
}

// DefaultOptions returns the export layout used for arch. Dense models
// write their nonlinearities as separate activation layers so every other
// layer is a dense layer; conv and lstm fold them into the layer.
func DefaultOptions(arch model.Arch) Options {
	return Options{SeparateActivations: arch == model.ArchDense}
}

// FromNetwork converts a trained network.
func FromNetwork(net *model.Network, opts Options) (*File, error) {
	return FromSpec(net.Spec(), net.Weights(), opts)
}

// FromSpec converts a layer list and its weights in the exported layout.
func FromSpec(spec model.Spec, weights [][]model.Array, opts Options) (*File, error) {
	if len(weights) != len(spec.Layers) {
		return nil, fmt.Errorf("got weights for %d layers, spec has %d", len(weights), len(spec.Layers))
	}
	f := &File{InShape: Width(spec.InputWidth)}
	for i, ls := range spec.Layers {
		typ, err := layerType(i, ls.Kind)
		if err != nil {
			return nil, err
		}
		act, err := activationName(i, ls)
		if err != nil {
			return nil, err
		}
		if err := checkWeights(i, ls.WeightShapes(), weights[i]); err != nil {
			return nil, err
		}

		l := Layer{Type: typ, Activation: act, Shape: Width(ls.Out)}
		if ls.Kind == model.KindConv1D {
			l.KernelSize = []int{ls.KernelSize}
			l.Dilation = []int{ls.Dilation}
		}
		for _, w := range weights[i] {
			l.Weights = append(l.Weights, Array{Shape: append([]int(nil), w.Shape...), Data: append([]float32(nil), w.Data...)})
		}

		separate := opts.SeparateActivations && ls.Kind != model.KindLSTM && act != ActLinear
		if separate {
			l.Activation = ActLinear
		}
		f.Layers = append(f.Layers, l)
		if separate {
			f.Layers = append(f.Layers, Layer{Type: TypeActivation, Activation: act, Shape: Width(ls.Out)})
		}
	}
	return f, nil
}

func layerType(i int, k model.Kind) (string, error) {
	switch k {
	case model.KindDense:
		return TypeDense, nil
	case model.KindConv1D:
		return TypeConv1D, nil
	case model.KindLSTM:
		return TypeLSTM, nil
	}
	return "", &UnsupportedLayerError{Index: i, Kind: string(k)}
}

func activationName(i int, ls model.LayerSpec) (string, error) {
	if ls.Kind == model.KindLSTM {
		return ActTanh, nil
	}
	switch ls.Activation {
	case model.Linear, "":
		return ActLinear, nil
	case model.Tanh:
		return ActTanh, nil
	case model.ReLU:
		return ActReLU, nil
	case model.Sigmoid:
		return ActSigmoid, nil
	}
	return "", &UnsupportedLayerError{Index: i, Kind: string(ls.Kind), Activation: string(ls.Activation)}
}

func checkWeights(i int, want [][]int, got []model.Array) error {
	if len(got) != len(want) {
		return &ShapeError{Index: i, Weight: -1, Got: []int{len(got)}, Want: []int{len(want)}}
	}
	for j, a := range got {
		if !equalInts(a.Shape, want[j]) || len(a.Data) != numel(want[j]) {
			return &ShapeError{Index: i, Weight: j, Got: a.Shape, Want: want[j]}
		}
	}
	return nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (l Layer) modelWeights() []model.Array {
	out := make([]model.Array, len(l.Weights))
	for i, w := range l.Weights {
		out[i] = model.Array(w)
	}
	return out
}

// ParamCount returns the number of weight values in the file.
func (f *File) ParamCount() int {
	n := 0
	for _, l := range f.Layers {
		for _, w := range l.Weights {
			n += len(w.Data)
		}
	}
	return n
}

// Marshal validates f and encodes it.
func Marshal(f *File) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Write stores f at path, replacing any previous file. Nothing is written
// when f does not validate.
func Write(path string, f *File) error {
	b, err := Marshal(f)
	if err != nil {
		return err
	}
	return fitcommon.WriteFileAtomic(path, b)
}

// Export converts net and writes it to path.
func Export(path string, net *model.Network, opts Options) (*File, error) {
	f, err := FromNetwork(net, opts)
	if err != nil {
		return nil, err
	}
	if err := Write(path, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads and validates a model file.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range f.Layers {
		if f.Layers[i].Activation == "linear" {
			f.Layers[i].Activation = ActLinear
		}
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Validate checks layer types, activations and weight shapes against each
// layer's declared width and the width of the layer before it.
func (f *File) Validate() error {
	in := f.InShape.Last()
	if in <= 0 {
		return errors.New("in_shape has no width")
	}
	if len(f.Layers) == 0 {
		return errors.New("model has no layers")
	}
	for i, l := range f.Layers {
		if !knownActivations[l.Activation] {
			return &UnsupportedLayerError{Index: i, Kind: l.Type, Activation: l.Activation}
		}
		out := l.Shape.Last()
		if out <= 0 {
			return fmt.Errorf("layer %d: shape has no width", i)
		}
		var want [][]int
		switch l.Type {
		case TypeDense:
			want = model.LayerSpec{Kind: model.KindDense, In: in, Out: out}.WeightShapes()
		case TypeConv1D:
			if len(l.KernelSize) != 1 || l.KernelSize[0] <= 0 {
				return fmt.Errorf("layer %d: conv1d needs one positive kernel_size", i)
			}
			if len(l.Dilation) > 1 || (len(l.Dilation) == 1 && l.Dilation[0] <= 0) {
				return fmt.Errorf("layer %d: conv1d dilation %v", i, l.Dilation)
			}
			want = model.LayerSpec{Kind: model.KindConv1D, In: in, Out: out, KernelSize: l.KernelSize[0]}.WeightShapes()
		case TypeLSTM:
			want = model.LayerSpec{Kind: model.KindLSTM, In: in, Out: out}.WeightShapes()
		case TypeActivation:
			if out != in {
				return &ShapeError{Index: i, Weight: -1, Got: []int{out}, Want: []int{in}}
			}
		default:
			return &UnsupportedLayerError{Index: i, Kind: l.Type}
		}
		if err := checkWeights(i, want, l.modelWeights()); err != nil {
			return err
		}
		in = out
	}
	return nil
}
