package instance

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestGaussianShapesAndScaling(t *testing.T) {
	const (
		n   = 200
		p   = 15
		s   = 4
		tol = 1e-8
	)

	x, y, beta, err := Gaussian(Config{
		N: n, P: p, Sparsity: s,
		Rho: 0.3, Signal: 2.5, Sigma: 1,
	}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("Gaussian() error = %v", err)
	}

	r, c := x.Dims()
	if r != n || c != p {
		t.Fatalf("X is %dx%d, want %dx%d", r, c, n, p)
	}
	if len(y) != n || len(beta) != p {
		t.Fatalf("len(y)=%d len(beta)=%d, want %d and %d", len(y), len(beta), n, p)
	}

	// Columns are standardized and scaled by 1/√n, so ‖x_j‖² = 1 and the
	// column means vanish.
	for j := 0; j < p; j++ {
		col := x.ColView(j)
		if d := mat.Dot(col, col); math.Abs(d-1) > tol {
			t.Errorf("column %d has squared norm %g, want 1", j, d)
		}
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += x.At(i, j)
		}
		if math.Abs(sum) > tol {
			t.Errorf("column %d has mean %g, want 0", j, sum/float64(n))
		}
	}

	for j := 0; j < p; j++ {
		if j < s && math.Abs(beta[j]) != 2.5 {
			t.Errorf("beta[%d] = %g, want magnitude 2.5", j, beta[j])
		}
		if j >= s && beta[j] != 0 {
			t.Errorf("beta[%d] = %g, want 0", j, beta[j])
		}
	}
}

func TestGaussianDeterminism(t *testing.T) {
	cfg := Config{N: 50, P: 8, Sparsity: 2, Rho: 0.4, Signal: 3, Sigma: 1, RandomSigns: true}

	x1, y1, b1, err := Gaussian(cfg, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("Gaussian() error = %v", err)
	}
	x2, y2, b2, err := Gaussian(cfg, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("Gaussian() error = %v", err)
	}

	if !mat.Equal(x1, x2) {
		t.Error("designs differ across identical seeds")
	}
	for i := range y1 {
		if y1[i] != y2[i] {
			t.Fatalf("responses differ at %d", i)
		}
	}
	for j := range b1 {
		if b1[j] != b2[j] {
			t.Fatalf("coefficients differ at %d", j)
		}
	}
}

func TestGaussianValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := []Config{
		{N: 0, P: 5},
		{N: 5, P: 0},
		{N: 5, P: 5, Sparsity: 6},
		{N: 5, P: 5, Sparsity: -1},
		{N: 5, P: 5, Rho: 1},
		{N: 5, P: 5, Rho: -0.1},
		{N: 5, P: 5, Sigma: -1},
	}
	for i, cfg := range cases {
		if _, _, _, err := Gaussian(cfg, rng); !errors.Is(err, ErrConfig) {
			t.Errorf("case %d: error = %v, want ErrConfig", i, err)
		}
	}
	if _, _, _, err := Gaussian(Config{N: 5, P: 5}, nil); !errors.Is(err, ErrConfig) {
		t.Errorf("nil rng: error = %v, want ErrConfig", err)
	}
}
