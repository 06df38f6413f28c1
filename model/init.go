package model

import (
	"fmt"
	"math"
	"math/rand"
)

const randomNormalStd = 0.05

// initValues fills n values for a tensor whose fan-in/fan-out are given.
// rows/cols are only used by the orthogonal scheme.
func initValues(scheme Init, n, fanIn, fanOut, rows, cols int, rng *rand.Rand) ([]float32, error) {
	out := make([]float32, n)
	switch scheme {
	case InitZeros, "":
	case InitGlorotUniform:
		limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
		for i := range out {
			out[i] = float32((rng.Float64()*2 - 1) * limit)
		}
	case InitRandomNormal:
		for i := range out {
			out[i] = float32(rng.NormFloat64() * randomNormalStd)
		}
	case InitOrthogonal:
		if rows*cols != n {
			return nil, fmt.Errorf("orthogonal init: %dx%d does not hold %d values", rows, cols, n)
		}
		orthogonal(out, rows, cols, rng)
	default:
		return nil, fmt.Errorf("unknown initializer %q", scheme)
	}
	return out, nil
}

// orthogonal fills dst (rows x cols) so that the shorter dimension is
// orthonormal, using Gram-Schmidt on a Gaussian matrix.
func orthogonal(dst []float32, rows, cols int, rng *rand.Rand) {
	long, short := rows, cols
	if cols > rows {
		long, short = cols, rows
	}
	vecs := make([][]float64, short)
	for i := range vecs {
		v := make([]float64, long)
		for {
			for j := range v {
				v[j] = rng.NormFloat64()
			}
			for _, u := range vecs[:i] {
				d := dot(v, u)
				for j := range v {
					v[j] -= d * u[j]
				}
			}
			if nrm := math.Sqrt(dot(v, v)); nrm > 1e-8 {
				for j := range v {
					v[j] /= nrm
				}
				break
			}
		}
		vecs[i] = v
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if cols > rows {
				dst[r*cols+c] = float32(vecs[r][c])
			} else {
				dst[r*cols+c] = float32(vecs[c][r])
			}
		}
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
