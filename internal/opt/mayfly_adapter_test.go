package opt

import (
	"math"
	"testing"
)

func TestMayflyMinimizesShiftedSphere(t *testing.T) {
	target := []float64{1480, 6, 0.8}
	eval := func(p []float64) float64 {
		var c float64
		for i := range p {
			d := p[i] - target[i]
			c += d * d
		}
		return c
	}
	lower := []float64{1400, 1, 0}
	upper := []float64{1600, 20, 2}

	best, cost := NewMayfly(150, 20, 42).Run(eval, lower, upper, 3)

	if len(best) != 3 {
		t.Fatalf("expected 3 parameters, got %d", len(best))
	}
	for i, v := range best {
		if v < lower[i] || v > upper[i] {
			t.Errorf("parameter %d = %v outside [%v, %v]", i, v, lower[i], upper[i])
		}
	}
	if cost > 100 {
		t.Errorf("expected search to approach the optimum, cost = %v", cost)
	}
	if got := eval(best); math.Abs(got-cost) > 1e-9 {
		t.Errorf("reported cost %v does not match re-evaluation %v", cost, got)
	}
}

func TestMayflySmallPopulation(t *testing.T) {
	// Populations below the library default used to blow up inside
	// mayfly.Optimize because the female count was left at its default.
	eval := func(p []float64) float64 { return p[0] * p[0] }
	best, cost := NewMayfly(20, 5, 1).Run(eval, []float64{-3}, []float64{3}, 1)

	if len(best) != 1 {
		t.Fatalf("expected 1 parameter, got %d", len(best))
	}
	if cost > 9 {
		t.Errorf("cost %v exceeds the worst value in the box", cost)
	}
}

func TestMayflyReproducible(t *testing.T) {
	eval := func(p []float64) float64 { return p[0]*p[0] + p[1]*p[1] }
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	a, costA := NewMayfly(50, 10, 7).Run(eval, lower, upper, 2)
	b, costB := NewMayfly(50, 10, 7).Run(eval, lower, upper, 2)

	if costA != costB {
		t.Fatalf("same seed produced different costs: %v vs %v", costA, costB)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("same seed produced different positions at %d: %v vs %v", i, a[i], b[i])
		}
	}
}
