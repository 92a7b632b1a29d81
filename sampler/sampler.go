// Package sampler approximates the conditional law of the score given a
// randomized-LASSO selection event.
//
// The chain state is the pair of optimization variables z = (β_A, u_{A^c}).
// Conditional on selection, z has density proportional to the randomization
// density evaluated at the affine reconstruction ω(z), restricted to the
// sign orthant on β_A and the box |u_j| ≤ λ_j on u_{A^c}. The kernel is
// projected-gradient Langevin: a Langevin proposal followed by an exact
// Euclidean projection onto the constraint set, so every visited state is
// feasible.
package sampler

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/selinf/go-selective-inference/randlasso"
	"github.com/selinf/go-selective-inference/targets"
)

var (
	// ErrDegenerate reports an empty feasible region: the observed
	// optimization state contradicts the selection event's constraints.
	// This indicates inconsistent inputs and is fatal to the run.
	ErrDegenerate = errors.New("sampler: selection event has empty feasible region")
	// ErrShape reports out-of-range sampling parameters.
	ErrShape = errors.New("sampler: invalid sampling parameters")
)

const feasTol = 1e-8

// Sampler runs the constrained chain for one selection event. It is
// immutable after construction; Sample may be called repeatedly, each call
// advancing only the rng it is handed.
type Sampler struct {
	k int // active coordinates (target dimension)
	p int // total optimization variables

	optLinear *mat.Dense    // p×p, state → reconstruction
	drift     *mat.VecDense // Score + OptOffset
	offset    *mat.VecDense // OptOffset alone
	gradMap   *mat.Dense    // OptLinearᵀ·Σ_rand⁻¹

	signs  []float64 // orthant constraint on the first k state entries
	bounds []float64 // box half-widths on the remaining entries
	init   []float64

	crossPrec *mat.Dense // Γ̃·Σ_rand⁻¹ (k×p)
	scoreProj []float64  // Γ̃·Σ_rand⁻¹·Score (k)
	crossQuad []float64  // diag(Γ̃·Σ_rand⁻¹·Γ̃ᵀ) (k)

	stepSize float64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithStepSize overrides the Langevin step size (default 1/p).
func WithStepSize(h float64) Option {
	return func(s *Sampler) {
		s.stepSize = h
	}
}

// New builds the sampler for a selection event and its target. The observed
// optimization state must be feasible; a contradiction (a sign flip on an
// active coordinate, a subgradient outside its box, or a negative box
// half-width) is ErrDegenerate.
func New(sel *randlasso.Selection, tgt *targets.Target, opts ...Option) (*Sampler, error) {
	if sel == nil || tgt == nil {
		return nil, fmt.Errorf("%w: nil selection or target", ErrShape)
	}
	k := sel.NumActive()
	if tgt.Dim() != k {
		return nil, fmt.Errorf("%w: target has %d coordinates, selection has %d", ErrShape, tgt.Dim(), k)
	}

	prec := sel.RandPrecision()
	p, _ := prec.Dims()
	score := sel.Score()
	optLinear := sel.OptLinear()
	offset := sel.OptOffset()

	s := &Sampler{
		k:         k,
		p:         p,
		optLinear: optLinear,
		offset:    offset,
		signs:     sel.ActiveSigns(),
		bounds:    sel.InactiveBounds(),
		init:      sel.ObservedOptState(),
		stepSize:  1 / float64(p),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stepSize <= 0 {
		return nil, fmt.Errorf("%w: step size %g", ErrShape, s.stepSize)
	}

	s.drift = mat.NewVecDense(p, nil)
	s.drift.AddVec(score, offset)

	s.gradMap = mat.NewDense(p, p, nil)
	s.gradMap.Mul(optLinear.T(), prec)

	if err := s.checkFeasible(); err != nil {
		return nil, err
	}

	if k > 0 {
		s.crossPrec = mat.NewDense(k, p, nil)
		s.crossPrec.Mul(tgt.CovScore, prec)

		proj := mat.NewVecDense(k, nil)
		proj.MulVec(s.crossPrec, score)
		s.scoreProj = append([]float64(nil), proj.RawVector().Data...)

		s.crossQuad = make([]float64, k)
		for j := 0; j < k; j++ {
			s.crossQuad[j] = mat.Dot(s.crossPrec.RowView(j), tgt.CovScore.RowView(j))
		}
	}
	return s, nil
}

func (s *Sampler) checkFeasible() error {
	for i, sign := range s.signs {
		if sign == 0 {
			return fmt.Errorf("%w: zero sign on active coordinate %d", ErrDegenerate, i)
		}
		if s.init[i]*sign < -feasTol {
			return fmt.Errorf("%w: observed coefficient %d violates its sign", ErrDegenerate, i)
		}
	}
	for i, b := range s.bounds {
		if b < 0 {
			return fmt.Errorf("%w: negative subgradient bound at inactive coordinate %d", ErrDegenerate, i)
		}
		if math.Abs(s.init[s.k+i]) > b+feasTol {
			return fmt.Errorf("%w: observed subgradient %d outside its box", ErrDegenerate, i)
		}
	}
	return nil
}

// TargetDim returns k.
func (s *Sampler) TargetDim() int { return s.k }

// ScoreProjection returns Γ̃·Σ_rand⁻¹·S_obs, the score term entering the
// summary engine's density log-ratio.
func (s *Sampler) ScoreProjection() []float64 {
	return append([]float64(nil), s.scoreProj...)
}

// CrossQuad returns diag(Γ̃·Σ_rand⁻¹·Γ̃ᵀ), the quadratic term of the same
// log-ratio.
func (s *Sampler) CrossQuad() []float64 {
	return append([]float64(nil), s.crossQuad...)
}

// Next advances the chain by one step. It is a pure function of the state
// and the rng: the input slice is not mutated, and replaying the same rng
// stream from the same state reproduces the same trajectory. The returned
// state always satisfies the event's constraints exactly.
func (s *Sampler) Next(state []float64, rng *rand.Rand) []float64 {
	omega := mat.NewVecDense(s.p, nil)
	omega.MulVec(s.optLinear, mat.NewVecDense(s.p, state))
	omega.AddVec(omega, s.drift)

	grad := mat.NewVecDense(s.p, nil)
	grad.MulVec(s.gradMap, omega)

	next := make([]float64, s.p)
	sqrtH := math.Sqrt(s.stepSize)
	for i := 0; i < s.p; i++ {
		next[i] = state[i] - 0.5*s.stepSize*grad.AtVec(i) + sqrtH*rng.NormFloat64()
	}
	s.project(next)
	return next
}

// project maps a proposal onto the constraint set: signed magnitudes are
// clamped at zero, inactive subgradients are clipped into their boxes.
func (s *Sampler) project(state []float64) {
	for i, sign := range s.signs {
		if state[i]*sign < 0 {
			state[i] = 0
		}
	}
	for i, b := range s.bounds {
		v := state[s.k+i]
		if v > b {
			state[s.k+i] = b
		} else if v < -b {
			state[s.k+i] = -b
		}
	}
}

// Sample runs burnin+ndraw steps from the observed optimization state and
// returns the last ndraw states projected into target coordinates: row i is
// Γ̃·Σ_rand⁻¹·(OptLinear·z_i + OptOffset). The chain is strictly
// sequential. With k = 0 there is nothing to record and Sample returns nil.
func (s *Sampler) Sample(ndraw, burnin int, rng *rand.Rand) (*mat.Dense, error) {
	if ndraw <= 0 {
		return nil, fmt.Errorf("%w: ndraw=%d", ErrShape, ndraw)
	}
	if burnin < 0 {
		return nil, fmt.Errorf("%w: burnin=%d", ErrShape, burnin)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil rng", ErrShape)
	}
	if s.k == 0 {
		return nil, nil
	}

	state := append([]float64(nil), s.init...)
	for i := 0; i < burnin; i++ {
		state = s.Next(state, rng)
	}

	draws := mat.NewDense(ndraw, s.k, nil)
	recon := mat.NewVecDense(s.p, nil)
	row := mat.NewVecDense(s.k, nil)
	for i := 0; i < ndraw; i++ {
		state = s.Next(state, rng)
		recon.MulVec(s.optLinear, mat.NewVecDense(s.p, state))
		recon.AddVec(recon, s.offset)
		row.MulVec(s.crossPrec, recon)
		for j := 0; j < s.k; j++ {
			draws.Set(i, j, row.AtVec(j))
		}
	}
	return draws, nil
}
