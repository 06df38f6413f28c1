package model

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Array is a row-major weight array in the exported layout.
type Array struct {
	Shape []int
	Data  []float32
}

type layer interface {
	layerSpec() LayerSpec
	params() []*Param
	weights() []Array
	setWeights(arrs []Array) error
}

func newParam(name string, data []float32, shape tensor.Shape, be Backend) (*Param, error) {
	t, err := tensor.FromSlice(data, shape, be)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return nn.NewParameter(name, t), nil
}

func checkShapes(spec LayerSpec, arrs []Array) error {
	want := spec.WeightShapes()
	if len(arrs) != len(want) {
		return fmt.Errorf("%s layer: got %d weight arrays, want %d", spec.Kind, len(arrs), len(want))
	}
	for i, a := range arrs {
		if !sameShape(a.Shape, want[i]) {
			return fmt.Errorf("%s layer: weight %d has shape %v, want %v", spec.Kind, i, a.Shape, want[i])
		}
		if len(a.Data) != numel(want[i]) {
			return fmt.Errorf("%s layer: weight %d has %d values, want %d", spec.Kind, i, len(a.Data), numel(want[i]))
		}
	}
	return nil
}

func sameShape(a, b []int) bool {
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

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Dense

type denseLayer struct {
	spec LayerSpec
	w    *Param // [in, out]
	b    *Param // [1, out]
}

func newDense(name string, spec LayerSpec, be Backend, rng *rand.Rand) (*denseLayer, error) {
	wv, err := initValues(spec.KernelInit, spec.In*spec.Out, spec.In, spec.Out, spec.In, spec.Out, rng)
	if err != nil {
		return nil, err
	}
	bv, err := initValues(spec.BiasInit, spec.Out, spec.In, spec.Out, 1, spec.Out, rng)
	if err != nil {
		return nil, err
	}
	l := &denseLayer{spec: spec}
	if l.w, err = newParam(name+".kernel", wv, tensor.Shape{spec.In, spec.Out}, be); err != nil {
		return nil, err
	}
	if l.b, err = newParam(name+".bias", bv, tensor.Shape{1, spec.Out}, be); err != nil {
		return nil, err
	}
	return l, nil
}

// forward maps rows [n, in] to [n, out].
func (l *denseLayer) forward(x *Tensor) *Tensor {
	return activate(l.spec.Activation, x.MatMul(l.w.Tensor()).Add(l.b.Tensor()))
}

func (l *denseLayer) layerSpec() LayerSpec { return l.spec }
func (l *denseLayer) params() []*Param { return []*Param{l.w, l.b} }

func (l *denseLayer) weights() []Array {
	return []Array{
		{Shape: []int{l.spec.In, l.spec.Out}, Data: clone(l.w.Tensor().Data())},
		{Shape: []int{l.spec.Out}, Data: clone(l.b.Tensor().Data())},
	}
}

func (l *denseLayer) setWeights(arrs []Array) error {
	if err := checkShapes(l.spec, arrs); err != nil {
		return err
	}
	copy(l.w.Tensor().Data(), arrs[0].Data)
	copy(l.b.Tensor().Data(), arrs[1].Data)
	return nil
}

// Conv1D

// convLayer holds its kernel as [out, in, k, 1] so the sequence can run on
// the time axis of a 2-D convolution with width 1.
type convLayer struct {
	spec LayerSpec
	w    *Param // [out, in, k, 1]
	b    *Param // [out]
}

func newConv(name string, spec LayerSpec, be Backend, rng *rand.Rand) (*convLayer, error) {
	if spec.Dilation != 1 {
		return nil, fmt.Errorf("conv1d dilation %d not supported (only 1)", spec.Dilation)
	}
	k := spec.KernelSize
	wv, err := initValues(spec.KernelInit, k*spec.In*spec.Out, k*spec.In, k*spec.Out, k*spec.In, spec.Out, rng)
	if err != nil {
		return nil, err
	}
	bv, err := initValues(spec.BiasInit, spec.Out, k*spec.In, k*spec.Out, 1, spec.Out, rng)
	if err != nil {
		return nil, err
	}
	l := &convLayer{spec: spec}
	if l.w, err = newParam(name+".kernel", wv, tensor.Shape{spec.Out, spec.In, k, 1}, be); err != nil {
		return nil, err
	}
	if l.b, err = newParam(name+".bias", bv, tensor.Shape{spec.Out}, be); err != nil {
		return nil, err
	}
	return l, nil
}

// forward maps [1, in, T, 1] to [1, out, T, 1]. The input is left padded
// with k-1 zeros, so output t sees inputs t-k+1 .. t only.
func (l *convLayer) forward(x *Tensor) *Tensor {
	be := x.Backend()
	s := x.Shape()
	if pad := (l.spec.KernelSize - 1) * l.spec.Dilation; pad > 0 {
		z := tensor.Zeros[float32](tensor.Shape{s[0], s[1], pad, 1}, be)
		x = tensor.Cat([]*Tensor{z, x}, 2)
	}
	y := tensor.New[float32](be.Conv2D(x.Raw(), l.w.Tensor().Raw(), 1, 0), be)
	y = y.Add(l.b.Tensor().Reshape(1, l.spec.Out, 1, 1))
	return activate(l.spec.Activation, y)
}

func (l *convLayer) layerSpec() LayerSpec { return l.spec }
func (l *convLayer) params() []*Param { return []*Param{l.w, l.b} }

// weights exports the kernel as [k][in][out].
func (l *convLayer) weights() []Array {
	k, in, out := l.spec.KernelSize, l.spec.In, l.spec.Out
	src := l.w.Tensor().Data()
	dst := make([]float32, len(src))
	for co := 0; co < out; co++ {
		for ci := 0; ci < in; ci++ {
			for t := 0; t < k; t++ {
				dst[(t*in+ci)*out+co] = src[(co*in+ci)*k+t]
			}
		}
	}
	return []Array{
		{Shape: []int{k, in, out}, Data: dst},
		{Shape: []int{out}, Data: clone(l.b.Tensor().Data())},
	}
}

func (l *convLayer) setWeights(arrs []Array) error {
	if err := checkShapes(l.spec, arrs); err != nil {
		return err
	}
	k, in, out := l.spec.KernelSize, l.spec.In, l.spec.Out
	dst := l.w.Tensor().Data()
	src := arrs[0].Data
	for co := 0; co < out; co++ {
		for ci := 0; ci < in; ci++ {
			for t := 0; t < k; t++ {
				dst[(co*in+ci)*k+t] = src[(t*in+ci)*out+co]
			}
		}
	}
	copy(l.b.Tensor().Data(), arrs[1].Data)
	return nil
}

// LSTM

// Gate order matches the exported layout: input, forget, cell, output.
const (
	gateI = iota
	gateF
	gateC
	gateO
)

type lstmLayer struct {
	spec LayerSpec
	w    [4]*Param // [in, u]
	u    [4]*Param // [u, u]
	b    [4]*Param // [1, u]
}

func newLSTM(name string, spec LayerSpec, be Backend, rng *rand.Rand) (*lstmLayer, error) {
	in, u := spec.In, spec.Out
	kv, err := initValues(spec.KernelInit, in*4*u, in, 4*u, in, 4*u, rng)
	if err != nil {
		return nil, err
	}
	rv, err := initValues(spec.RecurrentInit, u*4*u, u, 4*u, u, 4*u, rng)
	if err != nil {
		return nil, err
	}
	var bv []float32
	if spec.BiasInit == InitForgetBias {
		bv = make([]float32, 4*u)
		for j := 0; j < u; j++ {
			bv[gateF*u+j] = 1
		}
	} else if bv, err = initValues(spec.BiasInit, 4*u, in, 4*u, 1, 4*u, rng); err != nil {
		return nil, err
	}

	l := &lstmLayer{spec: spec}
	kg := splitGates(kv, in, u)
	rg := splitGates(rv, u, u)
	bg := splitGates(bv, 1, u)
	for g := 0; g < 4; g++ {
		gn := fmt.Sprintf("%s.%c", name, "ifco"[g])
		if l.w[g], err = newParam(gn+".kernel", kg[g], tensor.Shape{in, u}, be); err != nil {
			return nil, err
		}
		if l.u[g], err = newParam(gn+".recurrent", rg[g], tensor.Shape{u, u}, be); err != nil {
			return nil, err
		}
		if l.b[g], err = newParam(gn+".bias", bg[g], tensor.Shape{1, u}, be); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// step advances the cell by one timestep. x is [n, in]; h and c are [n, u].
func (l *lstmLayer) step(x, h, c *Tensor) (*Tensor, *Tensor) {
	pre := func(g int) *Tensor {
		return x.MatMul(l.w[g].Tensor()).Add(h.MatMul(l.u[g].Tensor())).Add(l.b[g].Tensor())
	}
	i := activate(Sigmoid, pre(gateI))
	f := activate(Sigmoid, pre(gateF))
	g := activate(Tanh, pre(gateC))
	o := activate(Sigmoid, pre(gateO))
	c = f.Mul(c).Add(i.Mul(g))
	h = o.Mul(activate(Tanh, c))
	return h, c
}

func (l *lstmLayer) layerSpec() LayerSpec { return l.spec }

func (l *lstmLayer) params() []*Param {
	out := make([]*Param, 0, 12)
	for g := 0; g < 4; g++ {
		out = append(out, l.w[g], l.u[g], l.b[g])
	}
	return out
}

func (l *lstmLayer) weights() []Array {
	in, u := l.spec.In, l.spec.Out
	var kg, rg, bg [4][]float32
	for g := 0; g < 4; g++ {
		kg[g] = l.w[g].Tensor().Data()
		rg[g] = l.u[g].Tensor().Data()
		bg[g] = l.b[g].Tensor().Data()
	}
	return []Array{
		{Shape: []int{in, 4 * u}, Data: mergeGates(kg, in, u)},
		{Shape: []int{u, 4 * u}, Data: mergeGates(rg, u, u)},
		{Shape: []int{4 * u}, Data: mergeGates(bg, 1, u)},
	}
}

func (l *lstmLayer) setWeights(arrs []Array) error {
	if err := checkShapes(l.spec, arrs); err != nil {
		return err
	}
	in, u := l.spec.In, l.spec.Out
	kg := splitGates(arrs[0].Data, in, u)
	rg := splitGates(arrs[1].Data, u, u)
	bg := splitGates(arrs[2].Data, 1, u)
	for g := 0; g < 4; g++ {
		copy(l.w[g].Tensor().Data(), kg[g])
		copy(l.u[g].Tensor().Data(), rg[g])
		copy(l.b[g].Tensor().Data(), bg[g])
	}
	return nil
}

// splitGates cuts a rows x 4u matrix into four rows x u blocks.
func splitGates(src []float32, rows, u int) [4][]float32 {
	var out [4][]float32
	for g := 0; g < 4; g++ {
		blk := make([]float32, rows*u)
		for r := 0; r < rows; r++ {
			copy(blk[r*u:(r+1)*u], src[r*4*u+g*u:r*4*u+(g+1)*u])
		}
		out[g] = blk
	}
	return out
}

func mergeGates(blocks [4][]float32, rows, u int) []float32 {
	out := make([]float32, rows*4*u)
	for g := 0; g < 4; g++ {
		for r := 0; r < rows; r++ {
			copy(out[r*4*u+g*u:r*4*u+(g+1)*u], blocks[g][r*u:(r+1)*u])
		}
	}
	return out
}

func clone(x []float32) []float32 {
	return append([]float32(nil), x...)
}
