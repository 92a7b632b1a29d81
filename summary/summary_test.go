package summary

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selinf/go-selective-inference/instance"
	"github.com/selinf/go-selective-inference/randlasso"
	"github.com/selinf/go-selective-inference/sampler"
	"github.com/selinf/go-selective-inference/targets"
)

type pipeline struct {
	sel *randlasso.Selection
	tgt *targets.Target
	smp *sampler.Sampler
}

func buildPipeline(t testing.TB, seed int64, lamScale float64) *pipeline {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	x, y, _, err := instance.Gaussian(instance.Config{
		N: 100, P: 20, Sparsity: 5,
		Rho: 0.4, Signal: 3, Sigma: 1,
		RandomSigns: true,
	}, rng)
	require.NoError(t, err)

	var opts []randlasso.Option
	if lamScale > 0 {
		lam := make([]float64, 20)
		m0, err := randlasso.NewGaussian(x, y)
		require.NoError(t, err)
		for j, w := range m0.Weights() {
			lam[j] = w * lamScale
		}
		opts = append(opts, randlasso.WithWeights(lam))
	}
	m, err := randlasso.NewGaussian(x, y, opts...)
	require.NoError(t, err)
	sel, err := m.Fit(rng)
	require.NoError(t, err)

	tgt, err := targets.Selected(targets.NewGaussianLoss(x, y), nil, sel.ActiveIndicator())
	require.NoError(t, err)
	smp, err := sampler.New(sel, tgt)
	require.NoError(t, err)
	return &pipeline{sel: sel, tgt: tgt, smp: smp}
}

func TestSummarizeEndToEnd(t *testing.T) {
	pl := buildPipeline(t, 26, 0)
	k := pl.tgt.Dim()
	require.Greater(t, k, 0, "scenario must select something")

	res, err := Summarize(pl.smp, pl.tgt, Options{
		NDraw:            4000,
		Burnin:           1000,
		ComputeIntervals: true,
	}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.Len(t, res.Pivots, k)
	require.Len(t, res.PValues, k)
	require.Len(t, res.Intervals, k)
	require.Len(t, res.IntervalErrs, k)

	for j := 0; j < k; j++ {
		assert.GreaterOrEqual(t, res.Pivots[j], 0.0)
		assert.LessOrEqual(t, res.Pivots[j], 1.0)
		assert.GreaterOrEqual(t, res.PValues[j], 0.0)
		assert.LessOrEqual(t, res.PValues[j], 1.0)
		if res.IntervalErrs[j] == nil {
			assert.LessOrEqual(t, res.Intervals[j][0], res.Intervals[j][1], "coordinate %d", j)
			assert.False(t, math.IsInf(res.Intervals[j][0], 0), "coordinate %d lower bound", j)
		} else {
			assert.True(t, math.IsInf(res.Intervals[j][0], -1))
			assert.True(t, math.IsInf(res.Intervals[j][1], 1))
		}
	}
}

func TestSummarizeDeterminism(t *testing.T) {
	pl := buildPipeline(t, 31, 0)

	run := func() *Result {
		res, err := Summarize(pl.smp, pl.tgt, Options{
			NDraw:            1500,
			Burnin:           300,
			ComputeIntervals: true,
		}, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Pivots, b.Pivots)
	assert.Equal(t, a.PValues, b.PValues)
	assert.Equal(t, a.Intervals, b.Intervals)
}

func TestSummarizeEmptyTarget(t *testing.T) {
	// A penalty far above every score magnitude selects nothing; the whole
	// pipeline must flow through to empty output without erroring.
	pl := buildPipeline(t, 37, 1e6)
	require.Zero(t, pl.sel.NumActive())
	require.Zero(t, pl.tgt.Dim())

	res, err := Summarize(pl.smp, pl.tgt, Options{ComputeIntervals: true}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Empty(t, res.Pivots)
	assert.Empty(t, res.PValues)
	assert.Empty(t, res.Intervals)
}

func TestSummarizeAlternatives(t *testing.T) {
	pl := buildPipeline(t, 41, 0)
	k := pl.tgt.Dim()
	require.Greater(t, k, 0)

	greater := make([]targets.Alternative, k)
	less := make([]targets.Alternative, k)
	for j := range greater {
		greater[j] = targets.Greater
		less[j] = targets.Less
	}

	opts := Options{NDraw: 800, Burnin: 200}
	base, err := Summarize(pl.smp, pl.tgt, opts, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	optsG := opts
	optsG.Alternatives = greater
	g, err := Summarize(pl.smp, pl.tgt, optsG, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	optsL := opts
	optsL.Alternatives = less
	l, err := Summarize(pl.smp, pl.tgt, optsL, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	for j := 0; j < k; j++ {
		piv := base.Pivots[j]
		assert.InDelta(t, 2*math.Min(piv, 1-piv), base.PValues[j], 1e-12)
		assert.InDelta(t, 1-piv, g.PValues[j], 1e-12)
		assert.InDelta(t, piv, l.PValues[j], 1e-12)
	}
}

func TestSummarizeValidation(t *testing.T) {
	pl := buildPipeline(t, 43, 0)
	rng := rand.New(rand.NewSource(1))

	_, err := Summarize(nil, pl.tgt, Options{}, rng)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Summarize(pl.smp, pl.tgt, Options{}, nil)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Summarize(pl.smp, pl.tgt, Options{NDraw: -1}, rng)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Summarize(pl.smp, pl.tgt, Options{Burnin: -2}, rng)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Summarize(pl.smp, pl.tgt, Options{Level: 1.5}, rng)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Summarize(pl.smp, pl.tgt, Options{Alternatives: []targets.Alternative{targets.TwoSided}}, rng)
	if pl.tgt.Dim() != 1 {
		assert.ErrorIs(t, err, ErrShape)
	}
}

func TestPivotMonotone(t *testing.T) {
	pl := buildPipeline(t, 47, 0)
	require.Greater(t, pl.tgt.Dim(), 0)

	draws, err := pl.smp.Sample(1500, 300, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	f := newPivotFunc(0, draws, pl.tgt, pl.smp.ScoreProjection()[0], pl.smp.CrossQuad()[0], rand.New(rand.NewSource(4)))

	sd := math.Sqrt(pl.tgt.Cov.At(0, 0))
	center := pl.tgt.Observed[0]
	prev := math.Inf(1)
	for _, off := range []float64{-6, -3, -1, 0, 1, 3, 6} {
		cur := f.at(center + off*sd)
		assert.LessOrEqual(t, cur, prev+0.05, "pivot should decrease near θ̂ (offset %g)", off)
		prev = cur
	}
	assert.Greater(t, f.at(center-8*sd), 0.95)
	assert.Less(t, f.at(center+8*sd), 0.05)
}
