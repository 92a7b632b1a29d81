// Package instance generates synthetic regression problems for exercising
// the selective-inference engine. The core library never depends on it; it
// exists for examples and simulation studies.
package instance

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrConfig reports an invalid instance configuration.
var ErrConfig = errors.New("instance: invalid configuration")

// Config describes an equicorrelated Gaussian design with sparse signal.
type Config struct {
	N        int     // observations
	P        int     // features
	Sparsity int     // number of nonzero true coefficients
	Rho      float64 // pairwise column correlation, in [0, 1)
	Signal   float64 // magnitude of each nonzero coefficient
	Sigma    float64 // noise standard deviation
	// RandomSigns flips each nonzero coefficient's sign with probability
	// one half.
	RandomSigns bool
}

// Gaussian draws X (n×p), y and the true coefficient vector. Columns of X
// are centered, scaled to unit standard deviation and divided by √n, so
// diag(XᵀX) ≈ 1. The first Sparsity coordinates carry the signal.
func Gaussian(cfg Config, rng *rand.Rand) (*mat.Dense, []float64, []float64, error) {
	if cfg.N <= 0 || cfg.P <= 0 {
		return nil, nil, nil, fmt.Errorf("%w: n=%d p=%d", ErrConfig, cfg.N, cfg.P)
	}
	if cfg.Sparsity < 0 || cfg.Sparsity > cfg.P {
		return nil, nil, nil, fmt.Errorf("%w: sparsity=%d with p=%d", ErrConfig, cfg.Sparsity, cfg.P)
	}
	if cfg.Rho < 0 || cfg.Rho >= 1 {
		return nil, nil, nil, fmt.Errorf("%w: rho=%g", ErrConfig, cfg.Rho)
	}
	if cfg.Sigma < 0 {
		return nil, nil, nil, fmt.Errorf("%w: sigma=%g", ErrConfig, cfg.Sigma)
	}
	if rng == nil {
		return nil, nil, nil, fmt.Errorf("%w: nil rng", ErrConfig)
	}

	x := mat.NewDense(cfg.N, cfg.P, nil)
	shared := math.Sqrt(cfg.Rho)
	own := math.Sqrt(1 - cfg.Rho)
	for i := 0; i < cfg.N; i++ {
		z0 := rng.NormFloat64()
		for j := 0; j < cfg.P; j++ {
			x.Set(i, j, own*rng.NormFloat64()+shared*z0)
		}
	}
	standardize(x)

	beta := make([]float64, cfg.P)
	for j := 0; j < cfg.Sparsity; j++ {
		beta[j] = cfg.Signal
		if cfg.RandomSigns && rng.Float64() < 0.5 {
			beta[j] = -cfg.Signal
		}
	}

	y := make([]float64, cfg.N)
	bv := mat.NewVecDense(cfg.P, beta)
	mean := mat.NewVecDense(cfg.N, nil)
	mean.MulVec(x, bv)
	for i := range y {
		y[i] = mean.AtVec(i) + cfg.Sigma*rng.NormFloat64()
	}
	return x, y, beta, nil
}

// standardize centers each column, scales it to unit standard deviation
// and divides by √n.
func standardize(x *mat.Dense) {
	n, p := x.Dims()
	root := math.Sqrt(float64(n))
	for j := 0; j < p; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += x.At(i, j)
		}
		mu := sum / float64(n)
		ss := 0.0
		for i := 0; i < n; i++ {
			d := x.At(i, j) - mu
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(n))
		if sd == 0 {
			sd = 1
		}
		for i := 0; i < n; i++ {
			x.Set(i, j, (x.At(i, j)-mu)/(sd*root))
		}
	}
}
