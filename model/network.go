// Package model builds the conv, dense and lstm effect models on top of the
// born tensor library and exchanges their weights in the RTNeural layout.
package model

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Backend is the autodiff-enabled CPU backend all networks run on.
type Backend = *autodiff.Backend[*cpu.Backend]

// Tensor is a float32 tensor on Backend.
type Tensor = tensor.Tensor[float32, Backend]

// Param is a trainable tensor.
type Param = nn.Parameter[Backend]

// NewBackend returns a fresh CPU backend with its own gradient tape.
func NewBackend() Backend {
	return autodiff.New(cpu.New())
}

// Network is a Spec with allocated weights.
type Network struct {
	spec    Spec
	backend Backend
	layers  []layer

	conv  []*convLayer
	lstm  []*lstmLayer
	dense []*denseLayer
}

// New allocates and initializes the layers of spec. rng drives weight
// initialization; a nil rng uses seed 1.
func New(spec Spec, be Backend, rng *rand.Rand) (*Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	n := &Network{spec: spec, backend: be}
	for i, ls := range spec.Layers {
		if !ls.Activation.Trainable() {
			return nil, fmt.Errorf("layer %d: activation %q not supported", i, ls.Activation)
		}
		name := fmt.Sprintf("layer%d", i)
		switch ls.Kind {
		case KindDense:
			l, err := newDense(name, ls, be, rng)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			n.dense = append(n.dense, l)
			n.layers = append(n.layers, l)
		case KindConv1D:
			l, err := newConv(name, ls, be, rng)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			n.conv = append(n.conv, l)
			n.layers = append(n.layers, l)
		case KindLSTM:
			l, err := newLSTM(name, ls, be, rng)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			n.lstm = append(n.lstm, l)
			n.layers = append(n.layers, l)
		}
	}
	return n, nil
}

// Build is New on SpecFor(arch, opts).
func Build(arch Arch, opts Options, be Backend, rng *rand.Rand) (*Network, error) {
	spec, err := SpecFor(arch, opts)
	if err != nil {
		return nil, err
	}
	return New(spec, be, rng)
}

func (n *Network) Spec() Spec { return n.spec }
func (n *Network) Backend() Backend { return n.backend }
func (n *Network) ParamCount() int { return n.spec.ParamCount() }
func (n *Network) NumLayers() int { return len(n.layers) }
func (n *Network) Layer(i int) LayerSpec { return n.layers[i].layerSpec() }

// Params returns all trainable parameters in layer order.
func (n *Network) Params() []*Param {
	var out []*Param
	for _, l := range n.layers {
		out = append(out, l.params()...)
	}
	return out
}

// Weights returns every layer's weight arrays in the exported layout.
func (n *Network) Weights() [][]Array {
	out := make([][]Array, len(n.layers))
	for i, l := range n.layers {
		out[i] = l.weights()
	}
	return out
}

// SetWeights replaces all weights. The outer index is the layer.
func (n *Network) SetWeights(w [][]Array) error {
	if len(w) != len(n.layers) {
		return fmt.Errorf("got weights for %d layers, network has %d", len(w), len(n.layers))
	}
	for i, l := range n.layers {
		if err := l.setWeights(w[i]); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

// State carries lstm hidden and cell state between Forward calls.
type State struct {
	batch int
	h, c  []*Tensor
}

// Reset drops the carried state.
func (s *State) Reset() {
	s.batch = 0
	s.h, s.c = nil, nil
}

// Forward evaluates batch sequences of steps samples each, x row-major
// [batch*steps]. Recurrent networks start from st (zeros if empty) and leave
// the final state in it; st may be nil.
func (n *Network) Forward(x []float32, batch, steps int, st *State) (*Output, error) {
	if batch <= 0 || steps <= 0 || len(x) != batch*steps {
		return nil, fmt.Errorf("forward: %d samples do not form %d x %d", len(x), batch, steps)
	}
	switch {
	case len(n.lstm) > 0:
		return n.forwardRecurrent(x, batch, steps, st)
	case len(n.conv) > 0:
		return n.forwardConv(x, batch, steps)
	}
	return n.forwardDense(x, batch, steps)
}

func (n *Network) constant(data []float32, shape ...int) *Tensor {
	t, err := tensor.FromSlice(data, tensor.Shape(shape), n.backend)
	if err != nil {
		panic(fmt.Sprintf("model: %v", err))
	}
	return t
}

func (n *Network) applyDense(h *Tensor) *Tensor {
	for _, l := range n.dense {
		h = l.forward(h)
	}
	return h
}

func (n *Network) forwardDense(x []float32, batch, steps int) (*Output, error) {
	rows := batch * steps
	y := n.applyDense(n.constant(x, rows, 1))
	return &Output{Batch: batch, Steps: steps, parts: []part{{t: y, base: 0, stride: 1}}}, nil
}

func (n *Network) forwardConv(x []float32, batch, steps int) (*Output, error) {
	out := &Output{Batch: batch, Steps: steps}
	for b := 0; b < batch; b++ {
		h := n.constant(x[b*steps:(b+1)*steps], 1, 1, steps, 1)
		for _, l := range n.conv {
			h = l.forward(h)
		}
		ch := n.conv[len(n.conv)-1].spec.Out
		rows := h.Reshape(ch, steps).Transpose()
		out.parts = append(out.parts, part{t: n.applyDense(rows), base: b * steps, stride: 1})
	}
	return out, nil
}

func (n *Network) forwardRecurrent(x []float32, batch, steps int, st *State) (*Output, error) {
	if st == nil {
		st = &State{}
	}
	if st.batch != batch || len(st.h) != len(n.lstm) {
		st.batch = batch
		st.h = make([]*Tensor, len(n.lstm))
		st.c = make([]*Tensor, len(n.lstm))
		for i, l := range n.lstm {
			st.h[i] = tensor.Zeros[float32](tensor.Shape{batch, l.spec.Out}, n.backend)
			st.c[i] = tensor.Zeros[float32](tensor.Shape{batch, l.spec.Out}, n.backend)
		}
	}
	h := make([]*Tensor, len(n.lstm))
	c := make([]*Tensor, len(n.lstm))
	copy(h, st.h)
	copy(c, st.c)

	out := &Output{Batch: batch, Steps: steps, parts: make([]part, 0, steps)}
	col := make([]float32, batch)
	for t := 0; t < steps; t++ {
		for b := 0; b < batch; b++ {
			col[b] = x[b*steps+t]
		}
		v := n.constant(col, batch, 1)
		for i, l := range n.lstm {
			h[i], c[i] = l.step(v, h[i], c[i])
			v = h[i]
		}
		out.parts = append(out.parts, part{t: n.applyDense(v), base: t, stride: steps})
	}
	for i := range n.lstm {
		st.h[i] = h[i].Detach()
		st.c[i] = c[i].Detach()
	}
	return out, nil
}

// part maps the rows of a [rows, 1] tensor onto flat output positions
// base + r*stride.
type part struct {
	t            *Tensor
	base, stride int
}

// Output holds the predictions of one Forward call.
type Output struct {
	Batch, Steps int
	parts        []part
}

// Values returns the predictions row-major [Batch*Steps].
func (o *Output) Values() []float32 {
	out := make([]float32, o.Batch*o.Steps)
	for _, p := range o.parts {
		for r, v := range p.t.Data() {
			out[p.base+r*p.stride] = v
		}
	}
	return out
}

// Surrogate returns the scalar sum_i coeff[i]*pred[i] as a [1,1] tensor. Its
// gradient with respect to the parameters is the loss gradient when coeff
// holds dLoss/dpred, so it is the value to backpropagate from. It must be the
// last operation recorded on the tape.
func (o *Output) Surrogate(coeff []float32) *Tensor {
	var sum *Tensor
	for _, p := range o.parts {
		data := p.t.Data()
		g := make([]float32, len(data))
		for r := range g {
			g[r] = coeff[p.base+r*p.stride]
		}
		gt, err := tensor.FromSlice(g, tensor.Shape{1, len(g)}, p.t.Backend())
		if err != nil {
			panic(fmt.Sprintf("model: %v", err))
		}
		s := gt.MatMul(p.t)
		if sum == nil {
			sum = s
		} else {
			sum = sum.Add(s)
		}
	}
	return sum
}

// activate applies a pointwise nonlinearity through the backend so the
// operation is recorded for backpropagation.
func activate(a Activation, x *Tensor) *Tensor {
	be := x.Backend()
	switch a {
	case Tanh:
		return tensor.New[float32](be.Tanh(x.Raw()), be)
	case ReLU:
		return tensor.New[float32](be.ReLU(x.Raw()), be)
	case Sigmoid:
		return tensor.New[float32](be.Sigmoid(x.Raw()), be)
	}
	return x
}
