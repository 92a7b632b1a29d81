package randlasso

import "gonum.org/v1/gonum/mat"

// Selection is the outcome of one randomized fit: the sign pattern, the
// active set, and the algebraic description of the selection event.
//
// The event is the set of optimization states z = (β_A, u_{A^c}) with
// sign(β_j) = s_j on A and |u_j| ≤ λ_j off A; for any such state the
// randomization reconstructs affinely as
//
//	ω(z) = OptLinear·z + Score + OptOffset.
//
// The randomization draw itself is never exposed; it is recoverable only
// through this reconstruction at the observed state.
type Selection struct {
	// Signs has entries in {−1, 0, +1}; nonzero exactly on the active set.
	Signs []float64
	// Active lists the active coordinates in increasing order.
	Active []int
	// Beta is the fitted solution β̂ (length p).
	Beta *mat.VecDense
	// Subgrad is the dual subgradient u (length p), on its face over the
	// active set and inside its box elsewhere.
	Subgrad *mat.VecDense

	model *Model
}

// NumActive returns k = |A|.
func (s *Selection) NumActive() int { return len(s.Active) }

// ActiveIndicator returns the boolean active-set mask of length p.
func (s *Selection) ActiveIndicator() []bool {
	ind := make([]bool, s.model.p)
	for _, j := range s.Active {
		ind[j] = true
	}
	return ind
}

// ActiveSigns returns s_A in active-set order.
func (s *Selection) ActiveSigns() []float64 {
	out := make([]float64, len(s.Active))
	for i, j := range s.Active {
		out[i] = s.Signs[j]
	}
	return out
}

// InactiveBounds returns λ_{A^c} in inactive-coordinate order: the box
// half-widths constraining the subgradient off the active set.
func (s *Selection) InactiveBounds() []float64 {
	var out []float64
	for j := 0; j < s.model.p; j++ {
		if s.Signs[j] == 0 {
			out = append(out, s.model.weights[j])
		}
	}
	return out
}

// ObservedOptState returns the chain's initial state (β̂_A, u_{A^c}).
func (s *Selection) ObservedOptState() []float64 {
	state := make([]float64, 0, s.model.p)
	for _, j := range s.Active {
		state = append(state, s.Beta.AtVec(j))
	}
	for j := 0; j < s.model.p; j++ {
		if s.Signs[j] == 0 {
			state = append(state, s.Subgrad.AtVec(j))
		}
	}
	return state
}

// Score returns the observed score state −Xᵀy.
func (s *Selection) Score() *mat.VecDense {
	score := mat.NewVecDense(s.model.p, nil)
	score.MulVec(s.model.x.T(), s.model.y)
	score.ScaleVec(-1, score)
	return score
}

// OptLinear returns the p×p map from optimization states to the
// data-independent part of the randomization reconstruction. Its first k
// columns (active order) are (XᵀX)[:,A] + ε·E_A; the remaining columns
// embed u_{A^c}.
func (s *Selection) OptLinear() *mat.Dense {
	p := s.model.p
	lin := mat.NewDense(p, p, nil)
	col := mat.NewVecDense(p, nil)
	for i, j := range s.Active {
		col.MulVec(s.model.x.T(), s.model.x.ColView(j))
		for r := 0; r < p; r++ {
			lin.Set(r, i, col.AtVec(r))
		}
		lin.Set(j, i, lin.At(j, i)+s.model.ridge)
	}
	c := len(s.Active)
	for j := 0; j < p; j++ {
		if s.Signs[j] == 0 {
			lin.Set(j, c, 1)
			c++
		}
	}
	return lin
}

// OptOffset returns the constant part of the reconstruction beyond the
// score: the active subgradient λ_A∘s_A embedded in p dimensions.
func (s *Selection) OptOffset() *mat.VecDense {
	off := mat.NewVecDense(s.model.p, nil)
	for _, j := range s.Active {
		off.SetVec(j, s.model.weights[j]*s.Signs[j])
	}
	return off
}

// RandPrecision returns Σ_rand⁻¹.
func (s *Selection) RandPrecision() *mat.SymDense {
	prec := mat.NewSymDense(s.model.p, nil)
	prec.CopySym(s.model.randPrec)
	return prec
}
