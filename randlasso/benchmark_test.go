package randlasso

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/selinf/go-selective-inference/instance"
)

func BenchmarkFit(b *testing.B) {
	dims := []struct{ n, p int }{
		{100, 20},
		{200, 50},
		{500, 100},
	}

	for _, d := range dims {
		b.Run(fmt.Sprintf("n%d_p%d", d.n, d.p), func(b *testing.B) {
			x, y, _, err := instance.Gaussian(instance.Config{
				N: d.n, P: d.p, Sparsity: 5,
				Rho: 0.4, Signal: 3, Sigma: 1,
			}, rand.New(rand.NewSource(1)))
			if err != nil {
				b.Fatalf("instance.Gaussian() error = %v", err)
			}
			m, err := NewGaussian(x, y)
			if err != nil {
				b.Fatalf("NewGaussian() error = %v", err)
			}
			rng := rand.New(rand.NewSource(42))

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := m.Fit(rng); err != nil {
					b.Fatalf("Fit() error = %v", err)
				}
			}
		})
	}
}
