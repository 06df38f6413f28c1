package modelfile

import (
	"fmt"

	"github.com/cwbudde/algo-fxnet/model"
)

// ToSpec rebuilds the layer list of f. Standalone activation layers are
// folded into the preceding dense or conv1d layer, which must be linear.
func ToSpec(f *File) (model.Spec, [][]model.Array, error) {
	if err := f.Validate(); err != nil {
		return model.Spec{}, nil, err
	}
	spec := model.Spec{InputWidth: f.InShape.Last()}
	var weights [][]model.Array
	in := spec.InputWidth
	hasConv, hasLSTM := false, false
	for i, l := range f.Layers {
		out := l.Shape.Last()
		if l.Type == TypeActivation {
			n := len(spec.Layers)
			if n == 0 || spec.Layers[n-1].Kind == model.KindLSTM || spec.Layers[n-1].Activation != model.Linear {
				return model.Spec{}, nil, &UnsupportedLayerError{Index: i, Kind: l.Type, Activation: l.Activation}
			}
			act, err := modelActivation(i, l)
			if err != nil {
				return model.Spec{}, nil, err
			}
			spec.Layers[n-1].Activation = act
			continue
		}

		ls := model.LayerSpec{In: in, Out: out}
		switch l.Type {
		case TypeDense:
			ls.Kind = model.KindDense
		case TypeConv1D:
			ls.Kind = model.KindConv1D
			ls.KernelSize = l.KernelSize[0]
			ls.Dilation = 1
			if len(l.Dilation) == 1 {
				ls.Dilation = l.Dilation[0]
			}
			hasConv = true
		case TypeLSTM:
			ls.Kind = model.KindLSTM
			hasLSTM = true
		}
		if ls.Kind == model.KindLSTM {
			if l.Activation != ActTanh && l.Activation != ActLinear {
				return model.Spec{}, nil, &UnsupportedLayerError{Index: i, Kind: l.Type, Activation: l.Activation}
			}
			ls.Activation = model.Tanh
		} else {
			act, err := modelActivation(i, l)
			if err != nil {
				return model.Spec{}, nil, err
			}
			ls.Activation = act
		}
		spec.Layers = append(spec.Layers, ls)
		weights = append(weights, l.modelWeights())
		in = out
	}

	switch {
	case hasLSTM:
		spec.Arch = model.ArchLSTM
	case hasConv:
		spec.Arch = model.ArchConv
	default:
		spec.Arch = model.ArchDense
	}
	if err := spec.Validate(); err != nil {
		return model.Spec{}, nil, err
	}
	return spec, weights, nil
}

func modelActivation(i int, l Layer) (model.Activation, error) {
	switch l.Activation {
	case ActLinear:
		return model.Linear, nil
	case ActTanh:
		return model.Tanh, nil
	case ActReLU:
		return model.ReLU, nil
	case ActSigmoid:
		return model.Sigmoid, nil
	}
	return "", &UnsupportedLayerError{Index: i, Kind: l.Type, Activation: l.Activation}
}

// ToNetwork rebuilds a network on be carrying the weights of f. Dilated
// conv1d layers convert with ToSpec but cannot be evaluated.
func ToNetwork(f *File, be model.Backend) (*model.Network, error) {
	spec, weights, err := ToSpec(f)
	if err != nil {
		return nil, err
	}
	for i, l := range f.Layers {
		if l.Type == TypeConv1D && len(l.Dilation) == 1 && l.Dilation[0] != 1 {
			return nil, &UnsupportedLayerError{Index: i, Kind: l.Type, Dilation: l.Dilation[0]}
		}
	}
	net, err := model.New(spec, be, nil)
	if err != nil {
		return nil, err
	}
	if err := net.SetWeights(weights); err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	return net, nil
}
