package peaks

import (
	"math"
	"testing"
)

func TestEvalAtCenterEqualsAmplitude(t *testing.T) {
	cases := []PeakParams{
		{Shape: Gaussian, Center: 1500, Width: 8, Amplitude: 0.5},
		{Shape: Lorentzian, Center: 1520, Width: 10, Amplitude: 0.3},
		{Shape: Voigt, Center: 1500, Width: 8, Amplitude: 0.5, Mix: 0.3},
		{Shape: Voigt, Center: 1500, Width: 8, Amplitude: 0.5, Mix: 1.0},
	}

	for _, p := range cases {
		got := p.Eval(p.Center)
		if math.Abs(got-p.Amplitude) > 1e-12 {
			t.Errorf("%s: Eval at center = %g, want amplitude %g", p.Shape, got, p.Amplitude)
		}
	}
}

func TestEvalSymmetry(t *testing.T) {
	cases := []PeakParams{
		{Shape: Gaussian, Center: 1500, Width: 8, Amplitude: 0.5},
		{Shape: Lorentzian, Center: 1500, Width: 10, Amplitude: 0.3},
		{Shape: Voigt, Center: 1500, Width: 8, Amplitude: 0.5, Mix: 0.4},
	}

	for _, p := range cases {
		for _, offset := range []float64{0.5, 3, 17, 42} {
			left := p.Eval(p.Center - offset)
			right := p.Eval(p.Center + offset)
			if math.Abs(left-right) > 1e-12 {
				t.Errorf("%s: asymmetric at offset %g: %g vs %g", p.Shape, offset, left, right)
			}
		}
	}
}

func TestFWHMClosedForm(t *testing.T) {
	g := PeakParams{Shape: Gaussian, Center: 0, Width: 8, Amplitude: 1}
	want := 2 * math.Sqrt(2*math.Ln2) * 8
	if got := g.FWHM(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Gaussian FWHM = %g, want %g", got, want)
	}

	l := PeakParams{Shape: Lorentzian, Center: 0, Width: 10, Amplitude: 1}
	if got := l.FWHM(); math.Abs(got-20) > 1e-9 {
		t.Errorf("Lorentzian FWHM = %g, want 20", got)
	}
}

func TestFWHMHalfHeight(t *testing.T) {
	// The function value at center +/- FWHM/2 must be half the amplitude,
	// for every shape including the numerically solved pseudo-Voigt.
	cases := []PeakParams{
		{Shape: Gaussian, Center: 1500, Width: 8, Amplitude: 0.5},
		{Shape: Lorentzian, Center: 1500, Width: 10, Amplitude: 0.3},
		{Shape: Voigt, Center: 1500, Width: 8, Amplitude: 0.5, Mix: 0.5},
	}

	for _, p := range cases {
		half := p.FWHM() / 2
		got := p.Eval(p.Center + half)
		if math.Abs(got-p.Amplitude/2) > 1e-6*p.Amplitude {
			t.Errorf("%s: value at half width = %g, want %g", p.Shape, got, p.Amplitude/2)
		}
	}
}

func TestVoigtFWHMBetweenComponents(t *testing.T) {
	p := PeakParams{Shape: Voigt, Center: 0, Width: 8, Amplitude: 1, Mix: 0.5}
	gaussWidth := 2 * math.Sqrt(2*math.Ln2) * 8
	lorentzWidth := 16.0

	got := p.FWHM()
	lo := math.Min(gaussWidth, lorentzWidth)
	hi := math.Max(gaussWidth, lorentzWidth)
	if got < lo || got > hi {
		t.Errorf("Voigt FWHM %g outside component range [%g, %g]", got, lo, hi)
	}
}

func TestAreaClosedForm(t *testing.T) {
	g := PeakParams{Shape: Gaussian, Center: 0, Width: 8, Amplitude: 0.5}
	want := 0.5 * 8 * math.Sqrt(2*math.Pi)
	if got := g.Area(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Gaussian area = %g, want %g", got, want)
	}

	l := PeakParams{Shape: Lorentzian, Center: 0, Width: 10, Amplitude: 0.3}
	want = 0.3 * 10 * math.Pi
	if got := l.Area(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Lorentzian area = %g, want %g", got, want)
	}
}

func TestVoigtAreaMatchesComponents(t *testing.T) {
	// Pure-Gaussian and pure-Lorentzian mixes must reproduce the closed
	// forms; a 50/50 mix must land between them.
	gaussArea := 0.5 * 8 * math.Sqrt(2*math.Pi)
	lorentzArea := 0.5 * 8 * math.Pi

	pureG := PeakParams{Shape: Voigt, Center: 1500, Width: 8, Amplitude: 0.5, Mix: 0}
	if got := pureG.Area(); math.Abs(got-gaussArea)/gaussArea > 1e-3 {
		t.Errorf("Voigt mix=0 area = %g, want %g", got, gaussArea)
	}

	pureL := PeakParams{Shape: Voigt, Center: 1500, Width: 8, Amplitude: 0.5, Mix: 1}
	if got := pureL.Area(); math.Abs(got-lorentzArea)/lorentzArea > 1e-3 {
		t.Errorf("Voigt mix=1 area = %g, want %g", got, lorentzArea)
	}

	mixed := PeakParams{Shape: Voigt, Center: 1500, Width: 8, Amplitude: 0.5, Mix: 0.5}
	got := mixed.Area()
	if got < gaussArea || got > lorentzArea {
		t.Errorf("Voigt mix=0.5 area %g outside [%g, %g]", got, gaussArea, lorentzArea)
	}
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	cases := []PeakParams{
		{Shape: Gaussian, Center: 1500, Width: 8, Amplitude: 0.5},
		{Shape: Lorentzian, Center: 1520, Width: 10, Amplitude: 0.3},
		{Shape: Voigt, Center: 1510, Width: 9, Amplitude: 0.4, Mix: 0.35},
	}
	xs := []float64{1490, 1500, 1505.5, 1523, 1560}

	for _, p := range cases {
		n := p.Shape.NumParams()
		grad := make([]float64, n)
		for _, x := range xs {
			p.Gradient(x, grad)
			for j := 0; j < n; j++ {
				fd := finiteDiff(p, j, x)
				tol := 1e-5 * (1 + math.Abs(fd))
				if math.Abs(grad[j]-fd) > tol {
					t.Errorf("%s: param %d at x=%g: analytic %g, finite diff %g",
						p.Shape, j, x, grad[j], fd)
				}
			}
		}
	}
}

func finiteDiff(p PeakParams, param int, x float64) float64 {
	const h = 1e-6
	bump := func(p PeakParams, delta float64) PeakParams {
		switch param {
		case 0:
			p.Center += delta
		case 1:
			p.Width += delta
		case 2:
			p.Amplitude += delta
		case 3:
			p.Mix += delta
		}
		return p
	}
	return (bump(p, h).Eval(x) - bump(p, -h).Eval(x)) / (2 * h)
}

func TestSumIsAdditive(t *testing.T) {
	a := PeakParams{Shape: Gaussian, Center: 1500, Width: 8, Amplitude: 0.5}
	b := PeakParams{Shape: Lorentzian, Center: 1520, Width: 10, Amplitude: 0.3}
	xs := []float64{1480, 1500, 1510, 1520, 1540}

	sum := Sum([]PeakParams{a, b}, xs)
	for i, x := range xs {
		want := a.Eval(x) + b.Eval(x)
		if math.Abs(sum[i]-want) > 1e-12 {
			t.Errorf("Sum at x=%g: got %g, want %g", x, sum[i], want)
		}
	}
}

func TestParseShape(t *testing.T) {
	for name, want := range map[string]Shape{
		"gaussian": Gaussian, "gauss": Gaussian,
		"lorentzian": Lorentzian, "lorentz": Lorentzian,
		"voigt": Voigt, "pseudo-voigt": Voigt,
	} {
		got, err := ParseShape(name)
		if err != nil {
			t.Errorf("ParseShape(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseShape(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseShape("triangle"); err == nil {
		t.Error("Unknown shape should fail")
	}
}
