// Package targets constructs the low-dimensional inferential target tied
// to a selected model: the selected-coefficient estimate, its covariance,
// and its cross-covariance with the score of the loss.
package targets

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShape reports a dimension mismatch between the loss model, the
// observation weights and the active indicator.
var ErrShape = errors.New("targets: shape mismatch")

// Alternative is the per-coordinate alternative hypothesis.
type Alternative int

const (
	TwoSided Alternative = iota
	Greater
	Less
)

func (a Alternative) String() string {
	switch a {
	case TwoSided:
		return "twosided"
	case Greater:
		return "greater"
	case Less:
		return "less"
	default:
		return fmt.Sprintf("Alternative(%d)", int(a))
	}
}

// LossModel is the narrow capability set the constructor needs from a
// regression loss: row-wise residuals and the score (gradient) at a given
// coefficient vector.
type LossModel interface {
	// Residual returns y − Xβ (length NumRows).
	Residual(beta *mat.VecDense) *mat.VecDense
	// Gradient returns the score ∇ℓ(β) (length NumCols).
	Gradient(beta *mat.VecDense) *mat.VecDense
	NumRows() int
	NumCols() int
}

// Target is the inferential target for the selected model. All fields have
// length/dimensions in k = |A|; k = 0 is valid and yields empty fields.
type Target struct {
	// Observed is θ̂ = pinv(X_A)·y.
	Observed []float64
	// Cov is Σ_target = dispersion·pinv(XᵀX)_{AA} (k×k); nil when k = 0.
	Cov *mat.SymDense
	// CovScore is the k×p cross-covariance Γ̃ between the target and the
	// full score vector; nil when k = 0.
	CovScore *mat.Dense
	// Alternatives holds one Alternative per coordinate (TwoSided default).
	Alternatives []Alternative
	// Dispersion is the residual-variance estimate scaling Cov.
	Dispersion float64
}

// Dim returns k.
func (t *Target) Dim() int { return len(t.Observed) }

// Selected builds the target for the coordinates marked active. weights are
// observation weights (nil means all ones); they scale the residual sum of
// squares in the dispersion estimate and must agree with any weighting
// already carried by the loss.
//
// The construction uses only the LossModel interface: Hessian columns are
// recovered as gradient differences, so for squared-error loss the outputs
// satisfy the exact identities
//
//	θ̂         = pinv(X_A)·y
//	Σ_target  = dispersion·pinv(X_A)·pinv(X_A)ᵀ
//	Γ̃ᵀ        = −(XᵀX)[:,A]·Σ_target
//
// with dispersion = ‖y − X_A θ̂‖²/(n−k).
func Selected(loss LossModel, weights []float64, active []bool) (*Target, error) {
	if loss == nil {
		return nil, fmt.Errorf("%w: nil loss model", ErrShape)
	}
	n, p := loss.NumRows(), loss.NumCols()
	if len(active) != p {
		return nil, fmt.Errorf("%w: len(active)=%d, want %d", ErrShape, len(active), p)
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != n {
		return nil, fmt.Errorf("%w: len(weights)=%d, want %d", ErrShape, len(weights), n)
	}

	var idx []int
	for j, a := range active {
		if a {
			idx = append(idx, j)
		}
	}
	k := len(idx)
	if k == 0 {
		return &Target{}, nil
	}
	if n <= k {
		return nil, fmt.Errorf("%w: %d active coordinates leave no residual degrees of freedom (n=%d)", ErrShape, k, n)
	}

	zero := mat.NewVecDense(p, nil)
	g0 := loss.Gradient(zero) // −Xᵀy for squared error

	// Hessian columns over the active set: H e_j = ∇ℓ(e_j) − ∇ℓ(0).
	hAct := mat.NewDense(p, k, nil)
	unit := mat.NewVecDense(p, nil)
	for c, j := range idx {
		unit.Zero()
		unit.SetVec(j, 1)
		gj := loss.Gradient(unit)
		for r := 0; r < p; r++ {
			hAct.Set(r, c, gj.AtVec(r)-g0.AtVec(r))
		}
	}

	hAA := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			// Symmetrize against floating asymmetry in the differences.
			hAA.SetSym(a, b, 0.5*(hAct.At(idx[a], b)+hAct.At(idx[b], a)))
		}
	}

	inv, err := pinvSym(hAA)
	if err != nil {
		return nil, err
	}

	// θ̂ = pinv(H_AA)·(Xᵀy)_A, with (Xᵀy)_A = −∇ℓ(0)_A.
	rhs := mat.NewVecDense(k, nil)
	for c, j := range idx {
		rhs.SetVec(c, -g0.AtVec(j))
	}
	theta := mat.NewVecDense(k, nil)
	theta.MulVec(inv, rhs)

	full := mat.NewVecDense(p, nil)
	for c, j := range idx {
		full.SetVec(j, theta.AtVec(c))
	}
	resid := loss.Residual(full)
	rss := 0.0
	for i := 0; i < n; i++ {
		r := resid.AtVec(i)
		rss += weights[i] * r * r
	}
	dispersion := rss / float64(n-k)

	cov := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			cov.SetSym(a, b, dispersion*inv.At(a, b))
		}
	}

	// Γ̃ = (−H[:,A]·Σ_target)ᵀ, k×p.
	cross := mat.NewDense(k, p, nil)
	cross.Mul(cov.T(), hAct.T())
	cross.Scale(-1, cross)

	alts := make([]Alternative, k)
	obs := make([]float64, k)
	copy(obs, theta.RawVector().Data)

	return &Target{
		Observed:     obs,
		Cov:          cov,
		CovScore:     cross,
		Alternatives: alts,
		Dispersion:   dispersion,
	}, nil
}

// pinvSym is the Moore–Penrose pseudoinverse of a symmetric PSD matrix via
// thin SVD, dropping singular values below a relative cutoff.
func pinvSym(s *mat.SymDense) (*mat.SymDense, error) {
	k, _ := s.Dims()
	var svd mat.SVD
	if !svd.Factorize(s, mat.SVDThin) {
		return nil, errors.New("targets: SVD of restricted Hessian failed")
	}
	vals := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	cutoff := 0.0
	for _, d := range vals {
		if d > cutoff {
			cutoff = d
		}
	}
	cutoff *= 1e-12

	inv := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			sum := 0.0
			for c, d := range vals {
				if d > cutoff {
					sum += v.At(a, c) * u.At(b, c) / d
				}
			}
			inv.SetSym(a, b, sum)
		}
	}
	return inv, nil
}
