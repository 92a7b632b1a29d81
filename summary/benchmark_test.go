package summary

import (
	"fmt"
	"math/rand"
	"testing"
)

func BenchmarkSummarize(b *testing.B) {
	pl := buildPipeline(b, 26, 0)
	if pl.tgt.Dim() == 0 {
		b.Fatal("benchmark scenario selected nothing")
	}

	for _, ndraw := range []int{1000, 5000} {
		for _, intervals := range []bool{false, true} {
			b.Run(fmt.Sprintf("ndraw%d_intervals%v", ndraw, intervals), func(b *testing.B) {
				opts := Options{NDraw: ndraw, Burnin: 200, ComputeIntervals: intervals}
				b.ResetTimer()
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := Summarize(pl.smp, pl.tgt, opts, rand.New(rand.NewSource(42))); err != nil {
						b.Fatalf("Summarize() error = %v", err)
					}
				}
			})
		}
	}
}
