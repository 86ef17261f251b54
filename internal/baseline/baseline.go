// Package baseline models the slowly varying background under the absorption
// bands as a low-order polynomial, fit either up front (pre-subtract) or
// jointly with the peaks.
package baseline

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mode selects how the baseline participates in a fit.
type Mode string

const (
	// ModePreSubtract estimates the baseline from peak-free regions before
	// peak fitting and subtracts it. Faster, but baseline error propagates
	// into peak amplitudes.
	ModePreSubtract Mode = "pre-subtract"

	// ModeJoint includes the baseline coefficients as free parameters in the
	// same optimization as the peaks. Removes baseline/peak coupling error
	// at the cost of a larger parameter space.
	ModeJoint Mode = "joint"
)

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case ModePreSubtract, ModeJoint:
		return Mode(name), nil
	default:
		return "", fmt.Errorf("unknown baseline mode: %q", name)
	}
}

// Polynomial holds baseline coefficients in ascending power order.
// Degree 0 is a flat offset, degree 1 a linear slope, and so on.
type Polynomial struct {
	Coeffs []float64 `json:"coeffs"`
}

// NewPolynomial returns a zero polynomial of the given degree.
func NewPolynomial(degree int) Polynomial {
	return Polynomial{Coeffs: make([]float64, degree+1)}
}

// Degree returns the polynomial degree.
func (p Polynomial) Degree() int {
	return len(p.Coeffs) - 1
}

// Eval evaluates the polynomial at x using Horner's scheme.
func (p Polynomial) Eval(x float64) float64 {
	var y float64
	for i := len(p.Coeffs) - 1; i >= 0; i-- {
		y = y*x + p.Coeffs[i]
	}
	return y
}

// EvalAll evaluates the polynomial at each x.
func (p Polynomial) EvalAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = p.Eval(x)
	}
	return out
}

// Fit computes the least-squares polynomial of the given degree through
// (xs, ys) via QR decomposition of the Vandermonde system.
func Fit(xs, ys []float64, degree int) (Polynomial, error) {
	if len(xs) != len(ys) {
		return Polynomial{}, fmt.Errorf("baseline fit: %d x values vs %d y values", len(xs), len(ys))
	}
	if len(xs) < degree+1 {
		return Polynomial{}, fmt.Errorf("baseline fit: need at least %d samples for degree %d, have %d",
			degree+1, degree, len(xs))
	}

	a := mat.NewDense(len(xs), degree+1, nil)
	for i, x := range xs {
		v := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, v)
			v *= x
		}
	}

	var qr mat.QR
	qr.Factorize(a)

	b := mat.NewVecDense(len(ys), append([]float64(nil), ys...))
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, b); err != nil {
		return Polynomial{}, fmt.Errorf("baseline fit: singular system: %w", err)
	}

	coeffs := make([]float64, degree+1)
	for j := range coeffs {
		coeffs[j] = sol.AtVec(j)
	}
	return Polynomial{Coeffs: coeffs}, nil
}

// Estimate fits a baseline through the peak-free portion of the signal by
// iteratively discarding samples that sit well above the current fit.
// Absorption bands only push the signal toward positive polarity, so after a
// few passes the fit settles onto the background between bands.
func Estimate(xs, ys []float64, degree int, polarity float64) (Polynomial, error) {
	const (
		passes     = 4
		maskFactor = 2.0
	)

	mask := make([]bool, len(xs))
	for i := range mask {
		mask[i] = true
	}

	var poly Polynomial
	for pass := 0; pass < passes; pass++ {
		mx, my := masked(xs, ys, mask)
		if len(mx) < degree+1 {
			break
		}
		var err error
		poly, err = Fit(mx, my, degree)
		if err != nil {
			return Polynomial{}, err
		}

		resid := make([]float64, 0, len(mx))
		for i := range xs {
			if mask[i] {
				resid = append(resid, ys[i]-poly.Eval(xs[i]))
			}
		}
		scale := madScale(resid)
		if scale == 0 {
			break
		}

		changed := false
		for i := range xs {
			if !mask[i] {
				continue
			}
			if polarity*(ys[i]-poly.Eval(xs[i])) > maskFactor*scale {
				mask[i] = false
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if poly.Coeffs == nil {
		return Fit(xs, ys, degree)
	}
	return poly, nil
}

// masked returns the samples where mask is set.
func masked(xs, ys []float64, mask []bool) ([]float64, []float64) {
	mx := make([]float64, 0, len(xs))
	my := make([]float64, 0, len(ys))
	for i := range xs {
		if mask[i] {
			mx = append(mx, xs[i])
			my = append(my, ys[i])
		}
	}
	return mx, my
}

// madScale is the median absolute deviation scaled to estimate sigma for
// normally distributed residuals.
func madScale(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	med := median(v)
	dev := make([]float64, len(v))
	for i, x := range v {
		dev[i] = math.Abs(x - med)
	}
	return 1.4826 * median(dev)
}

func median(v []float64) float64 {
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
