// Package randlasso fits the randomized LASSO and reports the selection
// event it generates.
//
// The program solved for a fixed randomization draw ω ~ N(0, Σ_rand) is
//
//	minimize 0.5‖y−Xβ‖² + Σ_j λ_j|β_j| − ωᵀβ + (ε/2)‖β‖²
//
// by cyclic coordinate descent. The fitted point β̂ together with the dual
// subgradient u satisfies the stationarity condition
//
//	Xᵀ(Xβ̂−y) + u − ω + εβ̂ = 0
//
// within tolerance, with u_j = λ_j·sign(β̂_j) exactly on the active set and
// |u_j| ≤ λ_j elsewhere. The resulting Selection carries the sign pattern,
// the active set and the affine description of the selection event consumed
// by the conditional sampler.
package randlasso

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape reports a dimension mismatch or out-of-range configuration
	// value, detected before any numerical work starts.
	ErrShape = errors.New("randlasso: shape or configuration mismatch")
	// ErrNonConvergence reports that coordinate descent exhausted its
	// iteration budget without reaching the stationarity tolerance.
	ErrNonConvergence = errors.New("randlasso: solver did not converge")
	// ErrNotPSD reports a randomization covariance with no Cholesky factor
	// even after adaptive jitter.
	ErrNotPSD = errors.New("randlasso: randomization covariance is not positive semidefinite")
)

// Model is an immutable randomized-LASSO problem instance. Construct with
// NewGaussian; all tuning flows through Options. A Model is safe for
// concurrent Fit calls as long as each call gets its own rng.
type Model struct {
	x *mat.Dense
	y *mat.VecDense
	n int
	p int

	weights []float64     // λ, per-coordinate penalty
	ridge   float64       // ε
	randCov *mat.SymDense // Σ_rand
	colSq   []float64     // diag(XᵀX)

	randChol mat.Cholesky // factor of Σ_rand (possibly jittered)
	randPrec *mat.SymDense

	maxIter int
	tol     float64
	kktTol  float64
}

// Option configures a Model.
type Option func(*Model)

// WithWeights sets the per-coordinate penalty vector λ (length p, all
// entries nonnegative).
func WithWeights(lam []float64) Option {
	return func(m *Model) {
		m.weights = lam
	}
}

// WithRidge sets the ridge coefficient ε ≥ 0.
func WithRidge(eps float64) Option {
	return func(m *Model) {
		m.ridge = eps
	}
}

// WithRandomizationCov sets the randomization covariance Σ_rand (p×p PSD).
func WithRandomizationCov(sigma *mat.SymDense) Option {
	return func(m *Model) {
		m.randCov = sigma
	}
}

// WithMaxIter bounds the coordinate-descent sweeps.
func WithMaxIter(n int) Option {
	return func(m *Model) {
		m.maxIter = n
	}
}

// WithTol sets the convergence tolerance on the largest scaled coordinate
// move per sweep.
func WithTol(tol float64) Option {
	return func(m *Model) {
		m.tol = tol
	}
}

// NewGaussian builds a randomized-LASSO model for squared-error loss.
//
// Defaults follow the standard randomization-calibrated policies: with
// d = diag(XᵀX) and sd = std(y),
//
//	λ_j    = 2·d_j·sd
//	ε      = sd·√(mean(d))/√(n−1)
//	Σ_rand = (0.5·sd·√(mean(d))·√(n/(n−1)))² · I
//
// Shape and configuration errors are reported eagerly.
func NewGaussian(X *mat.Dense, y []float64, opts ...Option) (*Model, error) {
	if X == nil {
		return nil, fmt.Errorf("%w: nil design matrix", ErrShape)
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return nil, fmt.Errorf("%w: empty design matrix %dx%d", ErrShape, n, p)
	}
	if len(y) != n {
		return nil, fmt.Errorf("%w: len(y)=%d, want %d", ErrShape, len(y), n)
	}

	m := &Model{
		x:       mat.DenseCopyOf(X),
		y:       mat.NewVecDense(n, append([]float64(nil), y...)),
		n:       n,
		p:       p,
		ridge:   math.NaN(), // filled from the default policy below
		maxIter: 2000,
		tol:     1e-10,
		kktTol:  1e-6,
	}
	for _, opt := range opts {
		opt(m)
	}

	diag := make([]float64, p)
	for j := 0; j < p; j++ {
		col := m.x.ColView(j)
		diag[j] = mat.Dot(col, col)
	}
	m.colSq = diag
	sd, err := stats.StandardDeviation(y)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}
	meanDiag, err := stats.Mean(diag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}

	if m.weights == nil {
		m.weights = make([]float64, p)
		for j := range m.weights {
			m.weights[j] = 2 * diag[j] * sd
		}
	}
	if len(m.weights) != p {
		return nil, fmt.Errorf("%w: len(weights)=%d, want %d", ErrShape, len(m.weights), p)
	}
	m.weights = append([]float64(nil), m.weights...)
	for j, w := range m.weights {
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("%w: negative penalty weight %g at coordinate %d", ErrShape, w, j)
		}
	}
	if math.IsNaN(m.ridge) {
		if m.n > 1 {
			m.ridge = sd * math.Sqrt(meanDiag) / math.Sqrt(float64(n-1))
		} else {
			m.ridge = sd * math.Sqrt(meanDiag)
		}
	}
	if m.ridge < 0 {
		return nil, fmt.Errorf("%w: negative ridge coefficient %g", ErrShape, m.ridge)
	}
	if m.randCov == nil {
		scale := 0.5 * sd * math.Sqrt(meanDiag)
		if n > 1 {
			scale *= math.Sqrt(float64(n) / float64(n-1))
		}
		m.randCov = mat.NewSymDense(p, nil)
		for j := 0; j < p; j++ {
			m.randCov.SetSym(j, j, scale*scale)
		}
	}
	if r, _ := m.randCov.Dims(); r != p {
		return nil, fmt.Errorf("%w: randomization covariance is %dx%d, want %dx%d", ErrShape, r, r, p, p)
	}
	if m.maxIter <= 0 {
		return nil, fmt.Errorf("%w: maxIter=%d", ErrShape, m.maxIter)
	}
	if m.tol <= 0 {
		return nil, fmt.Errorf("%w: tol=%g", ErrShape, m.tol)
	}

	if err := m.factorizeRandomization(); err != nil {
		return nil, err
	}
	return m, nil
}

// factorizeRandomization Cholesky-factors Σ_rand, retrying once with an
// adaptive trace-scaled jitter before giving up.
func (m *Model) factorizeRandomization() error {
	if m.randChol.Factorize(m.randCov) {
		return m.invertRandomization()
	}

	trace := 0.0
	for i := 0; i < m.p; i++ {
		trace += m.randCov.At(i, i)
	}
	eps := 1e-8 * trace / float64(m.p)
	jittered := mat.NewSymDense(m.p, nil)
	jittered.CopySym(m.randCov)
	for i := 0; i < m.p; i++ {
		jittered.SetSym(i, i, jittered.At(i, i)+eps)
	}
	if !m.randChol.Factorize(jittered) {
		return ErrNotPSD
	}
	m.randCov = jittered
	return m.invertRandomization()
}

func (m *Model) invertRandomization() error {
	m.randPrec = mat.NewSymDense(m.p, nil)
	if err := m.randChol.InverseTo(m.randPrec); err != nil {
		return fmt.Errorf("%w: %v", ErrNotPSD, err)
	}
	return nil
}

// NumRows returns n.
func (m *Model) NumRows() int { return m.n }

// NumCols returns p.
func (m *Model) NumCols() int { return m.p }

// Weights returns a copy of the penalty vector λ.
func (m *Model) Weights() []float64 {
	return append([]float64(nil), m.weights...)
}

// drawRandomization samples ω = L·z with z standard normal and L the
// Cholesky factor of Σ_rand.
func (m *Model) drawRandomization(rng *rand.Rand) *mat.VecDense {
	z := mat.NewVecDense(m.p, nil)
	for i := 0; i < m.p; i++ {
		z.SetVec(i, rng.NormFloat64())
	}
	l := mat.NewTriDense(m.p, mat.Lower, nil)
	m.randChol.LTo(l)
	omega := mat.NewVecDense(m.p, nil)
	omega.MulVec(l, z)
	return omega
}

func softThreshold(z, lam float64) float64 {
	switch {
	case z > lam:
		return z - lam
	case z < -lam:
		return z + lam
	default:
		return 0
	}
}

// Fit draws a fresh randomization and solves the randomized program. The
// result is a deterministic function of the model and the rng state.
func (m *Model) Fit(rng *rand.Rand) (*Selection, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: nil rng", ErrShape)
	}
	omega := m.drawRandomization(rng)
	colSq := m.colSq

	beta := make([]float64, m.p)
	resid := mat.VecDenseCopyOf(m.y) // r = y − Xβ, starts at y for β = 0

	converged := false
	for iter := 0; iter < m.maxIter; iter++ {
		maxMove := 0.0
		for j := 0; j < m.p; j++ {
			denom := colSq[j] + m.ridge
			if denom == 0 {
				continue
			}
			col := m.x.ColView(j)
			// x_jᵀ(y − X_{−j}β_{−j}) + ω_j, with the residual still
			// carrying β_j's own contribution.
			rho := mat.Dot(col, resid) + colSq[j]*beta[j] + omega.AtVec(j)
			next := softThreshold(rho, m.weights[j]) / denom
			if next != beta[j] {
				delta := next - beta[j]
				for i := 0; i < m.n; i++ {
					resid.SetVec(i, resid.AtVec(i)-delta*m.x.At(i, j))
				}
				beta[j] = next
				move := math.Abs(delta) * math.Sqrt(denom)
				if move > maxMove {
					maxMove = move
				}
			}
		}
		if maxMove <= m.tol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fmt.Errorf("%w: no stationary point within %d sweeps", ErrNonConvergence, m.maxIter)
	}

	return m.extractSelection(beta, resid, omega)
}

// extractSelection forms the subgradient from the stationarity equation,
// checks it lies in the penalty's subdifferential, and snaps it onto the
// boundary so the reported invariants hold exactly.
func (m *Model) extractSelection(beta []float64, resid *mat.VecDense, omega *mat.VecDense) (*Selection, error) {
	// u = ω − Xᵀ(Xβ̂−y) − εβ̂ = ω + Xᵀr − εβ̂
	u := mat.NewVecDense(m.p, nil)
	u.MulVec(m.x.T(), resid)
	u.AddVec(u, omega)
	for j := 0; j < m.p; j++ {
		u.SetVec(j, u.AtVec(j)-m.ridge*beta[j])
	}

	signs := make([]float64, m.p)
	var active []int
	for j := 0; j < m.p; j++ {
		if beta[j] != 0 {
			s := 1.0
			if beta[j] < 0 {
				s = -1.0
			}
			if math.Abs(u.AtVec(j)-m.weights[j]*s) > m.kktTol {
				return nil, fmt.Errorf("%w: active subgradient off its face at coordinate %d", ErrNonConvergence, j)
			}
			signs[j] = s
			active = append(active, j)
			u.SetVec(j, m.weights[j]*s)
		} else {
			if math.Abs(u.AtVec(j)) > m.weights[j]+m.kktTol {
				return nil, fmt.Errorf("%w: inactive subgradient outside its box at coordinate %d", ErrNonConvergence, j)
			}
			u.SetVec(j, math.Max(-m.weights[j], math.Min(m.weights[j], u.AtVec(j))))
		}
	}

	return &Selection{
		model:   m,
		Signs:   signs,
		Active:  active,
		Beta:    mat.NewVecDense(m.p, append([]float64(nil), beta...)),
		Subgrad: u,
	}, nil
}
