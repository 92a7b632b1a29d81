// Package summary turns conditional draws into selective pivots, p-values
// and confidence intervals.
//
// For each target coordinate the pivot is an importance-reweighted
// empirical probability: the chain is run once, and evaluating the pivot at
// any hypothesized parameter value only reweights the draws by the ratio of
// randomization densities at the hypothesized versus the observed score.
// Confidence intervals invert the pivot, which is monotone decreasing in
// the hypothesized value, by bracketed bisection.
package summary

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/selinf/go-selective-inference/sampler"
	"github.com/selinf/go-selective-inference/targets"
)

var (
	// ErrShape reports out-of-range summary options.
	ErrShape = errors.New("summary: invalid options")
	// ErrIntervalSearch reports that bisection could not bracket a pivot
	// root after bounded bracket expansion. It is localized to one
	// coordinate; the run still returns pivots and p-values everywhere and
	// a (−Inf, +Inf) sentinel interval for the failing coordinate.
	ErrIntervalSearch = errors.New("summary: could not bracket pivot root")
)

// Options configures Summarize. Zero values select the defaults: 10000
// draws, 2000 burn-in, 90% coverage, the target's own alternatives.
type Options struct {
	NDraw            int
	Burnin           int
	ComputeIntervals bool
	// Level is the interval coverage (0 < Level < 1).
	Level float64
	// Alternatives overrides the target's per-coordinate alternatives.
	Alternatives []targets.Alternative
}

// Result holds per-coordinate inference output. All slices have length k.
type Result struct {
	// Pivots are the pivot values at the zero null, in [0, 1].
	Pivots []float64
	// PValues are the per-alternative p-values, in [0, 1].
	PValues []float64
	// Intervals holds one (lo, hi) row per coordinate, lo ≤ hi; nil unless
	// intervals were requested. A coordinate whose root search failed
	// carries (−Inf, +Inf).
	Intervals [][2]float64
	// IntervalErrs has one entry per coordinate (nil on success) when
	// intervals were requested, or is nil otherwise.
	IntervalErrs []error
}

// pivotFunc evaluates one coordinate's pivot at a hypothesized value. It
// reads only immutable per-coordinate state plus a scratch buffer, so each
// coordinate may be driven by its own goroutine.
type pivotFunc struct {
	observed float64
	refStat  []float64 // i.i.d. N(0, σ²) reference sample
	base     []float64 // per-draw linear coefficient of the log-ratio
	quad     float64   // quadratic coefficient of the log-ratio
	logw     []float64 // scratch
}

func (f *pivotFunc) at(theta float64) float64 {
	maxLog := math.Inf(-1)
	for i, t := range f.refStat {
		tau := t + theta
		lw := -(tau-f.observed)*f.base[i] - 0.5*(tau*tau-f.observed*f.observed)*f.quad
		f.logw[i] = lw
		if lw > maxLog {
			maxLog = lw
		}
	}
	num, den := 0.0, 0.0
	for i, t := range f.refStat {
		w := math.Exp(f.logw[i] - maxLog)
		den += w
		if t+theta <= f.observed {
			num += w
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Summarize runs the conditional sampler once and computes pivots,
// p-values and (optionally) confidence intervals for every target
// coordinate. The draws matrix is shared read-only across coordinates;
// interval inversion runs concurrently per coordinate. Identical inputs
// and rng state reproduce identical output.
func Summarize(smp *sampler.Sampler, tgt *targets.Target, opts Options, rng *rand.Rand) (*Result, error) {
	if smp == nil || tgt == nil {
		return nil, fmt.Errorf("%w: nil sampler or target", ErrShape)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil rng", ErrShape)
	}
	k := tgt.Dim()
	if smp.TargetDim() != k {
		return nil, fmt.Errorf("%w: sampler has %d coordinates, target has %d", ErrShape, smp.TargetDim(), k)
	}
	if opts.NDraw == 0 {
		opts.NDraw = 10000
	}
	if opts.NDraw < 0 {
		return nil, fmt.Errorf("%w: ndraw=%d", ErrShape, opts.NDraw)
	}
	if opts.Burnin == 0 {
		opts.Burnin = 2000
	}
	if opts.Burnin < 0 {
		return nil, fmt.Errorf("%w: burnin=%d", ErrShape, opts.Burnin)
	}
	if opts.Level == 0 {
		opts.Level = 0.9
	}
	if opts.Level <= 0 || opts.Level >= 1 {
		return nil, fmt.Errorf("%w: level=%g", ErrShape, opts.Level)
	}
	alts := tgt.Alternatives
	if opts.Alternatives != nil {
		if len(opts.Alternatives) != k {
			return nil, fmt.Errorf("%w: %d alternatives for %d coordinates", ErrShape, len(opts.Alternatives), k)
		}
		alts = opts.Alternatives
	}

	if k == 0 {
		return &Result{}, nil
	}

	draws, err := smp.Sample(opts.NDraw, opts.Burnin, rng)
	if err != nil {
		return nil, err
	}
	scoreProj := smp.ScoreProjection()
	crossQuad := smp.CrossQuad()

	// Per-coordinate reference samples are seeded sequentially from the
	// caller's rng so the concurrent phase stays deterministic.
	seeds := make([]int64, k)
	for j := range seeds {
		seeds[j] = rng.Int63()
	}

	res := &Result{
		Pivots:  make([]float64, k),
		PValues: make([]float64, k),
	}
	if opts.ComputeIntervals {
		res.Intervals = make([][2]float64, k)
		res.IntervalErrs = make([]error, k)
	}

	var g errgroup.Group
	for j := 0; j < k; j++ {
		j := j
		g.Go(func() error {
			f := newPivotFunc(j, draws, tgt, scoreProj[j], crossQuad[j], rand.New(rand.NewSource(seeds[j])))
			piv := f.at(0)
			res.Pivots[j] = piv
			res.PValues[j] = pvalue(piv, alts[j])
			if opts.ComputeIntervals {
				lo, hi, err := invertPivot(f, tgt, j, opts.Level)
				if err != nil {
					res.Intervals[j] = [2]float64{math.Inf(-1), math.Inf(1)}
					res.IntervalErrs[j] = err
				} else {
					res.Intervals[j] = [2]float64{lo, hi}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func newPivotFunc(j int, draws *mat.Dense, tgt *targets.Target, scoreProj, crossQuad float64, rng *rand.Rand) *pivotFunc {
	ndraw, _ := draws.Dims()
	variance := tgt.Cov.At(j, j)
	observed := tgt.Observed[j]
	sd := math.Sqrt(variance)

	f := &pivotFunc{
		observed: observed,
		refStat:  make([]float64, ndraw),
		base:     make([]float64, ndraw),
		quad:     crossQuad / (variance * variance),
		logw:     make([]float64, ndraw),
	}
	shift := scoreProj/variance - observed*f.quad
	for i := 0; i < ndraw; i++ {
		f.refStat[i] = sd * rng.NormFloat64()
		f.base[i] = draws.At(i, j)/variance + shift
	}
	return f
}

func pvalue(pivot float64, alt targets.Alternative) float64 {
	switch alt {
	case targets.Greater:
		return 1 - pivot
	case targets.Less:
		return pivot
	default:
		return 2 * math.Min(pivot, 1-pivot)
	}
}

const (
	maxBracketExpand = 10
	bisectIter       = 100
)

// invertPivot finds the equal-tailed interval {θ : tail ≤ pivot(θ) ≤ 1−tail}
// for tail = (1−level)/2, using that the pivot decreases in θ.
func invertPivot(f *pivotFunc, tgt *targets.Target, j int, level float64) (lo, hi float64, err error) {
	tail := (1 - level) / 2
	sd := math.Sqrt(tgt.Cov.At(j, j))
	center := tgt.Observed[j]

	lo, err = bisectDecreasing(f, 1-tail, center, sd)
	if err != nil {
		return 0, 0, fmt.Errorf("coordinate %d: %w", j, err)
	}
	hi, err = bisectDecreasing(f, tail, center, sd)
	if err != nil {
		return 0, 0, fmt.Errorf("coordinate %d: %w", j, err)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}

// bisectDecreasing solves f.at(θ) = c. The bracket starts at center ± 4·sd
// and doubles until the root is contained or the expansion budget runs out.
func bisectDecreasing(f *pivotFunc, c, center, sd float64) (float64, error) {
	width := 4 * sd
	if width == 0 {
		width = 1
	}
	a, b := center-width, center+width
	for e := 0; f.at(a) < c; e++ {
		if e == maxBracketExpand {
			return 0, fmt.Errorf("%w: pivot below %g at left bracket %g", ErrIntervalSearch, c, a)
		}
		width *= 2
		a = center - width
	}
	width = 4 * sd
	if width == 0 {
		width = 1
	}
	for e := 0; f.at(b) > c; e++ {
		if e == maxBracketExpand {
			return 0, fmt.Errorf("%w: pivot above %g at right bracket %g", ErrIntervalSearch, c, b)
		}
		width *= 2
		b = center + width
	}
	for i := 0; i < bisectIter && b-a > 1e-10*(1+math.Abs(center)); i++ {
		mid := 0.5 * (a + b)
		if f.at(mid) > c {
			a = mid
		} else {
			b = mid
		}
	}
	return 0.5 * (a + b), nil
}
