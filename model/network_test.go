package model

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func mustBuild(t *testing.T, arch Arch, rng *rand.Rand) *Network {
	t.Helper()
	net, err := Build(arch, DefaultOptions(), NewBackend(), rng)
	if err != nil {
		t.Fatalf("Build(%s): %v", arch, err)
	}
	return net
}

func mustPredict(t *testing.T, net *Network, x []float32, segment int) []float32 {
	t.Helper()
	y, err := net.Predict(x, segment)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	return y
}

func assertClose(t *testing.T, name string, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: length %d, want %d", name, len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("%s[%d] = %g, want %g", name, i, got[i], want[i])
		}
	}
}

func TestParamCounts(t *testing.T) {
	tests := []struct {
		arch   Arch
		want   int
		layers int
	}{
		{ArchConv, 30081, 5},
		{ArchDense, 29313, 9},
		{ArchLSTM, 28981, 2},
	}
	for _, tc := range tests {
		t.Run(string(tc.arch), func(t *testing.T) {
			spec, err := SpecFor(tc.arch, DefaultOptions())
			if err != nil {
				t.Fatalf("SpecFor: %v", err)
			}
			if spec.ParamCount() != tc.want || len(spec.Layers) != tc.layers {
				t.Fatalf("spec has %d parameters in %d layers, want %d in %d",
					spec.ParamCount(), len(spec.Layers), tc.want, tc.layers)
			}

			net, err := New(spec, NewBackend(), nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if net.ParamCount() != tc.want {
				t.Fatalf("network has %d parameters", net.ParamCount())
			}

			var n int
			for _, p := range net.Params() {
				n += len(p.Tensor().Data())
			}
			if n != tc.want {
				t.Fatalf("allocated %d parameters, want %d", n, tc.want)
			}
		})
	}
}

func TestReceptiveField(t *testing.T) {
	spec, err := SpecFor(ArchConv, DefaultOptions())
	if err != nil {
		t.Fatalf("SpecFor: %v", err)
	}
	if got := spec.ReceptiveField(); got != 1+6+8+8+10 {
		t.Fatalf("conv receptive field %d", got)
	}

	spec, err = SpecFor(ArchDense, DefaultOptions())
	if err != nil {
		t.Fatalf("SpecFor: %v", err)
	}
	if got := spec.ReceptiveField(); got != 1 {
		t.Fatalf("dense receptive field %d", got)
	}
}

func TestSpecValidate(t *testing.T) {
	good := Spec{Arch: "custom", InputWidth: 1, Layers: []LayerSpec{
		{Kind: KindDense, In: 1, Out: 4, Activation: Tanh},
		{Kind: KindDense, In: 4, Out: 1, Activation: Linear},
	}}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		layers []LayerSpec
	}{
		{"empty", nil},
		{"width chain", []LayerSpec{
			{Kind: KindDense, In: 1, Out: 4},
			{Kind: KindDense, In: 3, Out: 1},
		}},
		{"output width", []LayerSpec{{Kind: KindDense, In: 1, Out: 2}}},
		{"conv after dense", []LayerSpec{
			{Kind: KindDense, In: 1, Out: 4},
			{Kind: KindConv1D, In: 4, Out: 1, KernelSize: 3, Dilation: 1},
		}},
		{"conv and lstm", []LayerSpec{
			{Kind: KindConv1D, In: 1, Out: 4, KernelSize: 3, Dilation: 1},
			{Kind: KindLSTM, In: 4, Out: 1},
		}},
		{"unknown kind", []LayerSpec{{Kind: "gru", In: 1, Out: 1}}},
		{"zero kernel", []LayerSpec{{Kind: KindConv1D, In: 1, Out: 1, Dilation: 1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := Spec{InputWidth: 1, Layers: tc.layers}
			if err := s.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDenseActivationOption(t *testing.T) {
	spec, err := SpecFor(ArchDense, Options{DenseActivation: Tanh})
	if err != nil {
		t.Fatalf("SpecFor: %v", err)
	}
	if spec.Layers[0].Activation != Tanh || spec.Layers[len(spec.Layers)-1].Activation != Linear {
		t.Fatalf("activations %q ... %q", spec.Layers[0].Activation, spec.Layers[len(spec.Layers)-1].Activation)
	}

	if _, err := SpecFor(ArchDense, Options{DenseActivation: Sigmoid}); err == nil {
		t.Fatalf("expected error for sigmoid hidden activation")
	}
}

func TestParseArch(t *testing.T) {
	a, err := ParseArch(" LSTM ")
	if err != nil {
		t.Fatalf("ParseArch: %v", err)
	}
	if a != ArchLSTM || a.Title() != "LSTM" {
		t.Fatalf("ParseArch = %q (%s)", a, a.Title())
	}
	if _, err := ParseArch("gru"); err == nil {
		t.Fatalf("expected error for gru")
	}
}

func TestNewRejectsDilation(t *testing.T) {
	spec := Spec{InputWidth: 1, Layers: []LayerSpec{
		{Kind: KindConv1D, In: 1, Out: 2, KernelSize: 3, Dilation: 2, Activation: Tanh},
		{Kind: KindDense, In: 2, Out: 1, Activation: Linear},
	}}
	if _, err := New(spec, NewBackend(), nil); err == nil {
		t.Fatalf("expected error for dilation 2")
	}
}

func TestSeededInitIsDeterministic(t *testing.T) {
	a := mustBuild(t, ArchConv, rand.New(rand.NewSource(7)))
	b := mustBuild(t, ArchConv, rand.New(rand.NewSource(7)))
	if !reflect.DeepEqual(a.Weights(), b.Weights()) {
		t.Fatalf("same seed gave different weights")
	}
}

func TestLSTMForgetBiasInit(t *testing.T) {
	net := mustBuild(t, ArchLSTM, nil)
	bias := net.Weights()[0][2]
	u := lstmUnits
	if len(bias.Data) != 4*u {
		t.Fatalf("bias length %d, want %d", len(bias.Data), 4*u)
	}
	for j := 0; j < 4*u; j++ {
		want := float32(0)
		if j >= u && j < 2*u {
			want = 1
		}
		if bias.Data[j] != want {
			t.Fatalf("bias[%d] = %g, want %g", j, bias.Data[j], want)
		}
	}
}

func TestOrthogonalInit(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	rows, cols := 4, 16
	m, err := initValues(InitOrthogonal, rows*cols, rows, cols, rows, cols, rng)
	if err != nil {
		t.Fatalf("initValues: %v", err)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < rows; j++ {
			var d float64
			for c := 0; c < cols; c++ {
				d += float64(m[i*cols+c]) * float64(m[j*cols+c])
			}
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(d-want) > 1e-5 {
				t.Fatalf("row %d . row %d = %g, want %g", i, j, d, want)
			}
		}
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	for _, arch := range Archs {
		t.Run(string(arch), func(t *testing.T) {
			src := mustBuild(t, arch, rand.New(rand.NewSource(1)))
			dst := mustBuild(t, arch, rand.New(rand.NewSource(2)))

			if err := dst.SetWeights(src.Weights()); err != nil {
				t.Fatalf("SetWeights: %v", err)
			}
			if !reflect.DeepEqual(src.Weights(), dst.Weights()) {
				t.Fatalf("weights differ after SetWeights")
			}

			x := testSignal(300)
			assertClose(t, "prediction", mustPredict(t, dst, x, 0), mustPredict(t, src, x, 0), 1e-6)
		})
	}
}

func TestSetWeightsShapeCheck(t *testing.T) {
	net := mustBuild(t, ArchLSTM, nil)
	w := net.Weights()
	w[0][1].Shape = []int{lstmUnits, lstmUnits}
	if err := net.SetWeights(w); err == nil {
		t.Fatalf("expected error for wrong recurrent kernel shape")
	}
	if err := net.SetWeights(w[:1]); err == nil {
		t.Fatalf("expected error for missing layers")
	}
}

func TestConvKernelLayout(t *testing.T) {
	spec := Spec{InputWidth: 1, Layers: []LayerSpec{
		{Kind: KindConv1D, In: 1, Out: 1, KernelSize: 3, Dilation: 1, Activation: Linear},
	}}
	net, err := New(spec, NewBackend(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Exported taps are oldest first: y[t] = k0*x[t-2] + k1*x[t-1] + k2*x[t].
	if err := net.SetWeights([][]Array{{
		{Shape: []int{3, 1, 1}, Data: []float32{0.25, 0.5, 1}},
		{Shape: []int{1}, Data: []float32{0}},
	}}); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	y := mustPredict(t, net, []float32{1, 0, 0, 0, 0}, 0)
	assertClose(t, "impulse response", y, []float32{1, 0.5, 0.25, 0, 0}, 1e-6)
}

func TestConvIsCausal(t *testing.T) {
	net := mustBuild(t, ArchConv, nil)
	x := testSignal(120)
	base := mustPredict(t, net, x, 0)

	const k = 80
	x2 := append([]float32(nil), x...)
	x2[k] += 0.5
	pert := mustPredict(t, net, x2, 0)

	for i := 0; i < k; i++ {
		if base[i] != pert[i] {
			t.Fatalf("output %d changed by a later input", i)
		}
	}
	if base[k] == pert[k] {
		t.Fatalf("output %d ignores its own input", k)
	}
	rf := net.Spec().ReceptiveField()
	for i := k + rf; i < len(x); i++ {
		if math.Abs(float64(base[i]-pert[i])) > 1e-6 {
			t.Fatalf("output %d outside receptive field changed", i)
		}
	}
}

func TestPredictSegmentsMatchFullPass(t *testing.T) {
	for _, arch := range Archs {
		t.Run(string(arch), func(t *testing.T) {
			net := mustBuild(t, arch, nil)
			x := testSignal(257)

			out, err := net.Forward(x, 1, len(x), nil)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}
			assertClose(t, "segmented", mustPredict(t, net, x, 37), out.Values(), 1e-5)
		})
	}
}

func TestPredictLeavesTapeState(t *testing.T) {
	net := mustBuild(t, ArchDense, nil)
	tape := net.Backend().Tape()
	tape.StartRecording()
	mustPredict(t, net, testSignal(10), 0)
	if !tape.IsRecording() || tape.NumOps() != 0 {
		t.Fatalf("tape recording=%v ops=%d", tape.IsRecording(), tape.NumOps())
	}
	tape.StopRecording()
}

func TestForwardBatchLayout(t *testing.T) {
	for _, arch := range Archs {
		t.Run(string(arch), func(t *testing.T) {
			net := mustBuild(t, arch, nil)
			a, b := testSignal(40), testSignal(40)
			for i := range b {
				b[i] *= -0.5
			}
			batch := append(append([]float32(nil), a...), b...)
			out, err := net.Forward(batch, 2, 40, nil)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}
			got := out.Values()
			assertClose(t, "row 0", got[:40], mustPredict(t, net, a, 0), 1e-5)
			assertClose(t, "row 1", got[40:], mustPredict(t, net, b, 0), 1e-5)
		})
	}
}

func TestForwardRejectsBadShape(t *testing.T) {
	net := mustBuild(t, ArchDense, nil)
	if _, err := net.Forward(make([]float32, 10), 3, 3, nil); err == nil {
		t.Fatalf("expected error for 10 values in a 3x3 batch")
	}
}

func TestSurrogateValue(t *testing.T) {
	net := mustBuild(t, ArchLSTM, nil)
	x := testSignal(12)
	out, err := net.Forward(x, 2, 6, nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	pred := out.Values()
	coeff := make([]float32, len(pred))
	var want float64
	for i := range coeff {
		coeff[i] = float32(i%3) - 1
		want += float64(coeff[i]) * float64(pred[i])
	}
	s := out.Surrogate(coeff)
	if !reflect.DeepEqual([]int(s.Shape()), []int{1, 1}) {
		t.Fatalf("surrogate shape %v", s.Shape())
	}
	if got := float64(s.Data()[0]); math.Abs(got-want) > 1e-5 {
		t.Fatalf("surrogate = %g, want %g", got, want)
	}
}

func testSignal(n int) []float32 {
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(0.6*math.Sin(float64(i)*0.21) + 0.2*math.Sin(float64(i)*1.7))
	}
	return x
}
