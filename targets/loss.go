package targets

import "gonum.org/v1/gonum/mat"

// GaussianLoss is the squared-error regression loss
// 0.5·Σ_i w_i (y_i − x_iᵀβ)², the default LossModel.
type GaussianLoss struct {
	x *mat.Dense
	y *mat.VecDense
	w []float64
	n int
	p int
}

// NewGaussianLoss builds an unweighted squared-error loss. X and y are
// copied; the loss is immutable.
func NewGaussianLoss(X *mat.Dense, y []float64) *GaussianLoss {
	return NewWeightedGaussianLoss(X, y, nil)
}

// NewWeightedGaussianLoss builds a squared-error loss with observation
// weights (nil means all ones).
func NewWeightedGaussianLoss(X *mat.Dense, y []float64, weights []float64) *GaussianLoss {
	n, p := X.Dims()
	l := &GaussianLoss{
		x: mat.DenseCopyOf(X),
		y: mat.NewVecDense(n, append([]float64(nil), y...)),
		n: n,
		p: p,
	}
	if weights != nil {
		l.w = append([]float64(nil), weights...)
	}
	return l
}

// Residual returns y − Xβ, unweighted.
func (l *GaussianLoss) Residual(beta *mat.VecDense) *mat.VecDense {
	r := mat.NewVecDense(l.n, nil)
	r.MulVec(l.x, beta)
	r.SubVec(l.y, r)
	return r
}

// Gradient returns XᵀW(Xβ − y).
func (l *GaussianLoss) Gradient(beta *mat.VecDense) *mat.VecDense {
	r := l.Residual(beta)
	if l.w != nil {
		for i := 0; i < l.n; i++ {
			r.SetVec(i, l.w[i]*r.AtVec(i))
		}
	}
	g := mat.NewVecDense(l.p, nil)
	g.MulVec(l.x.T(), r)
	g.ScaleVec(-1, g)
	return g
}

// NumRows returns the observation count.
func (l *GaussianLoss) NumRows() int { return l.n }

// NumCols returns the feature count.
func (l *GaussianLoss) NumCols() int { return l.p }
