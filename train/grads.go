package train

import (
	"github.com/born-ml/born/tensor"

	"github.com/cwbudde/algo-fxnet/model"
)

// accumulator sums parameter gradients over several backward passes.
type accumulator struct {
	params []*model.Param
	sums   []*model.Tensor
}

func newAccumulator(params []*model.Param) *accumulator {
	a := &accumulator{params: params, sums: make([]*model.Tensor, len(params))}
	for i, p := range params {
		a.sums[i] = tensor.Zeros[float32](p.Tensor().Shape(), p.Tensor().Backend())
	}
	return a
}

func (a *accumulator) reset() {
	for _, s := range a.sums {
		clear(s.Data())
	}
}

// add folds one tape's gradient map into the sums. Parameters absent from
// the map received no gradient.
func (a *accumulator) add(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for i, p := range a.params {
		g, ok := grads[p.Tensor().Raw()]
		if !ok || g == nil {
			continue
		}
		dst := a.sums[i].Data()
		for j, v := range g.AsFloat32() {
			dst[j] += v
		}
	}
}

// gradients returns the sums keyed the way the optimizer looks them up.
func (a *accumulator) gradients() map[*tensor.RawTensor]*tensor.RawTensor {
	out := make(map[*tensor.RawTensor]*tensor.RawTensor, len(a.params))
	for i, p := range a.params {
		out[p.Tensor().Raw()] = a.sums[i].Raw()
	}
	return out
}

