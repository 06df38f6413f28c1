// Package train fits a model.Network to a reshaped signal pair with MSE loss
// and Adam.
package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/window"
)

// Config holds the training hyperparameters.
type Config struct {
	Epochs int
	// BatchSize is the number of examples per optimizer step. Zero or more
	// than the batch holds means all examples.
	BatchSize int
	// Segment is the number of timesteps evaluated per gradient pass for
	// sequence inputs.
	Segment int
	// BPTT is the truncation length of backpropagation through time.
	BPTT int

	LR    float32
	Beta1 float32
	Beta2 float32
	Eps   float32

	Seed    int64
	Shuffle bool
	// LogEvery logs every n-th epoch. The first and last epoch are always
	// logged.
	LogEvery int
}

// DefaultConfig returns the fixed training schedule of arch.
func DefaultConfig(arch model.Arch) Config {
	cfg := Config{
		Epochs:   100,
		Segment:  4096,
		BPTT:     256,
		LR:       1e-3,
		Beta1:    0.9,
		Beta2:    0.999,
		Eps:      1e-7,
		Seed:     1,
		Shuffle:  true,
		LogEvery: 1,
	}
	switch arch {
	case model.ArchDense:
		cfg.BatchSize = 2048
	case model.ArchConv:
		cfg.BatchSize = 512
	case model.ArchLSTM:
		cfg.BatchSize = 32
	}
	return cfg
}

// Validate rejects configurations Fit cannot run.
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0, got %d", c.Epochs)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size must be >= 0, got %d", c.BatchSize)
	}
	if c.Segment <= 0 {
		return fmt.Errorf("segment must be > 0, got %d", c.Segment)
	}
	if c.BPTT <= 0 {
		return fmt.Errorf("bptt must be > 0, got %d", c.BPTT)
	}
	if !(c.LR > 0) {
		return fmt.Errorf("learning rate must be > 0, got %g", c.LR)
	}
	return nil
}

// History records the mean training loss of each epoch.
type History struct {
	Loss    []float64
	Steps   int
	Elapsed time.Duration
}

// Final returns the loss of the last epoch.
func (h *History) Final() float64 {
	if len(h.Loss) == 0 {
		return math.NaN()
	}
	return h.Loss[len(h.Loss)-1]
}

// Fit trains net on batch for cfg.Epochs epochs and returns the per-epoch
// loss. log may be nil.
func Fit(ctx context.Context, net *model.Network, batch *window.Batch, cfg Config, log logrus.FieldLogger) (*History, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if batch == nil || batch.Examples == 0 || batch.Channels != 1 {
		return nil, fmt.Errorf("train: empty or multi-channel batch")
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	log = log.WithField("arch", net.Spec().Arch)

	t := newTrainer(net, batch, cfg)
	var rng *rand.Rand
	if cfg.Shuffle {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	tape := net.Backend().Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	hist := &History{}
	start := time.Now()
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		var sum float64
		for _, idx := range batch.Minibatches(cfg.BatchSize, rng) {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			loss, err := t.step(idx)
			if err != nil {
				return hist, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			sum += loss * float64(len(idx))
			hist.Steps++
		}
		loss := sum / float64(batch.Examples)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return hist, fmt.Errorf("epoch %d: loss diverged (%v)", epoch, loss)
		}
		hist.Loss = append(hist.Loss, loss)
		if epoch == 1 || epoch == cfg.Epochs || (cfg.LogEvery > 0 && epoch%cfg.LogEvery == 0) {
			log.WithFields(logrus.Fields{
				"epoch":   epoch,
				"loss":    loss,
				"elapsed": time.Since(start).Round(time.Millisecond).String(),
			}).Info("epoch done")
		}
	}
	hist.Elapsed = time.Since(start)
	return hist, nil
}

type trainer struct {
	net   *model.Network
	batch *window.Batch
	cfg   Config
	grads *accumulator
	opt   *optim.Adam[model.Backend]
}

func newTrainer(net *model.Network, batch *window.Batch, cfg Config) *trainer {
	return &trainer{
		net:   net,
		batch: batch,
		cfg:   cfg,
		grads: newAccumulator(net.Params()),
		opt: optim.NewAdam(net.Params(), optim.AdamConfig{
			LR:    cfg.LR,
			Betas: [2]float32{cfg.Beta1, cfg.Beta2},
			Eps:   cfg.Eps,
		}, net.Backend()),
	}
}

// step accumulates the gradient of the minibatch mean loss over all of its
// segments and applies one optimizer update. It returns the minibatch loss.
func (t *trainer) step(idx []int) (float64, error) {
	t.grads.reset()
	var loss float64
	var err error
	switch {
	case t.batch.Steps == 1:
		loss, err = t.flatPass(idx)
	case t.net.Spec().Recurrent():
		loss, err = t.recurrentPass(idx)
	default:
		loss, err = t.sequencePass(idx)
	}
	if err != nil {
		return 0, err
	}
	t.opt.Step(t.grads.gradients())
	return loss, nil
}

// flatPass treats each example as an independent row.
func (t *trainer) flatPass(idx []int) (float64, error) {
	x := make([]float32, len(idx))
	y := make([]float32, len(idx))
	for i, e := range idx {
		x[i], y[i] = t.batch.X[e], t.batch.Y[e]
	}
	return t.backward(x, y, len(idx), 1, 0, float64(len(idx)), nil)
}

// sequencePass runs each example in segments, prefixing every segment with
// the receptive field's worth of preceding input so the summed segment
// gradients equal the full-sequence gradient.
func (t *trainer) sequencePass(idx []int) (float64, error) {
	steps := t.batch.Steps
	ctxLen := t.net.Spec().ReceptiveField() - 1
	n := float64(len(idx) * steps)
	var loss float64
	for _, e := range idx {
		xs, ys := t.batch.Example(e)
		for start := 0; start < steps; start += t.cfg.Segment {
			end := min(start+t.cfg.Segment, steps)
			from := max(0, start-ctxLen)
			l, err := t.backward(xs[from:end], ys[from:end], 1, end-from, start-from, n, nil)
			if err != nil {
				return 0, err
			}
			loss += l
		}
	}
	return loss, nil
}

// recurrentPass runs the minibatch's examples side by side in windows of
// BPTT steps. State flows from one window to the next; gradients do not.
func (t *trainer) recurrentPass(idx []int) (float64, error) {
	steps := t.batch.Steps
	n := float64(len(idx) * steps)
	var st model.State
	var loss float64
	for start := 0; start < steps; start += t.cfg.BPTT {
		end := min(start+t.cfg.BPTT, steps)
		w := end - start
		x := make([]float32, len(idx)*w)
		y := make([]float32, len(idx)*w)
		for b, e := range idx {
			xs, ys := t.batch.Example(e)
			copy(x[b*w:(b+1)*w], xs[start:end])
			copy(y[b*w:(b+1)*w], ys[start:end])
		}
		l, err := t.backward(x, y, len(idx), w, 0, n, &st)
		if err != nil {
			return 0, err
		}
		loss += l
	}
	return loss, nil
}

// backward runs one recorded forward pass over batch sequences of steps
// samples, backpropagates the squared error of every position at or after
// skip within its sequence, scaled by 1/n, and adds the parameter gradients
// to the accumulator. It returns the pass's share of the mean loss.
func (t *trainer) backward(x, y []float32, batch, steps, skip int, n float64, st *model.State) (float64, error) {
	be := t.net.Backend()
	tape := be.Tape()
	if !tape.IsRecording() {
		tape.StartRecording()
		defer tape.StopRecording()
	}
	defer tape.Clear()

	out, err := t.net.Forward(x, batch, steps, st)
	if err != nil {
		return 0, err
	}
	pred := out.Values()
	coeff := make([]float32, len(pred))
	var loss float64
	for i, p := range pred {
		if i%steps < skip {
			continue
		}
		d := float64(p) - float64(y[i])
		loss += d * d / n
		coeff[i] = float32(2 * d / n)
	}

	s := out.Surrogate(coeff)
	seed := tensor.Ones[float32](s.Shape(), be)
	t.grads.add(tape.Backward(seed.Raw(), be))
	return loss, nil
}
