// Package peaks implements the absorption line shapes used by the
// deconvolution engine: Gaussian, Lorentzian, and pseudo-Voigt profiles with
// analytic gradients, plus the derived quantities (FWHM, integrated area)
// reported per peak.
package peaks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

// Shape identifies a peak line shape. The set is closed; dispatch is by tag,
// never by runtime probing.
type Shape int

const (
	Gaussian Shape = iota
	Lorentzian
	Voigt // pseudo-Voigt: linear Gaussian/Lorentzian mix sharing one width
)

// gaussFWHM converts a Gaussian sigma to full width at half maximum.
const gaussFWHM = 2.3548200450309493 // 2*sqrt(2*ln 2)

func (s Shape) String() string {
	switch s {
	case Gaussian:
		return "gaussian"
	case Lorentzian:
		return "lorentzian"
	case Voigt:
		return "voigt"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ParseShape maps a shape name to its tag.
func ParseShape(name string) (Shape, error) {
	switch name {
	case "gaussian", "gauss":
		return Gaussian, nil
	case "lorentzian", "lorentz":
		return Lorentzian, nil
	case "voigt", "pseudo-voigt":
		return Voigt, nil
	default:
		return 0, fmt.Errorf("unknown peak shape: %q", name)
	}
}

// NumParams returns the number of free parameters for the shape:
// center, width, amplitude, and for Voigt the mixing fraction.
func (s Shape) NumParams() int {
	if s == Voigt {
		return 4
	}
	return 3
}

// MarshalText implements encoding.TextMarshaler so shapes serialize by name.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(text []byte) error {
	parsed, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PeakParams holds the parameters of a single peak. Width is the Gaussian
// sigma or Lorentzian half width at half maximum; for the pseudo-Voigt both
// components share it. Mix is the Lorentzian fraction in [0,1], used only by
// Voigt peaks.
//
// Width must stay strictly positive. Bounds validation rejects widths below
// epsilon before any evaluation; Eval does not clamp.
type PeakParams struct {
	Shape     Shape   `json:"shape"`
	Center    float64 `json:"center"`
	Width     float64 `json:"width"`
	Amplitude float64 `json:"amplitude"`
	Mix       float64 `json:"mix,omitempty"`
}

// Eval returns the peak's absorbance contribution at wavenumber x.
func (p PeakParams) Eval(x float64) float64 {
	d := x - p.Center
	switch p.Shape {
	case Gaussian:
		return p.Amplitude * math.Exp(-d*d/(2*p.Width*p.Width))
	case Lorentzian:
		w2 := p.Width * p.Width
		return p.Amplitude * w2 / (d*d + w2)
	case Voigt:
		w2 := p.Width * p.Width
		g := math.Exp(-d * d / (2 * w2))
		l := w2 / (d*d + w2)
		return p.Amplitude * (p.Mix*l + (1-p.Mix)*g)
	default:
		return 0
	}
}

// AddTo adds the peak's contribution at each x into dst elementwise.
// dst and xs must have equal length.
func (p PeakParams) AddTo(dst, xs []float64) {
	for i, x := range xs {
		dst[i] += p.Eval(x)
	}
}

// Gradient writes the partial derivatives of Eval(x) with respect to the
// peak's free parameters into grad, ordered center, width, amplitude, and
// for Voigt the mixing fraction. grad must have length Shape.NumParams().
func (p PeakParams) Gradient(x float64, grad []float64) {
	d := x - p.Center
	w2 := p.Width * p.Width

	switch p.Shape {
	case Gaussian:
		g := math.Exp(-d * d / (2 * w2))
		grad[0] = p.Amplitude * g * d / w2
		grad[1] = p.Amplitude * g * d * d / (w2 * p.Width)
		grad[2] = g
	case Lorentzian:
		den := d*d + w2
		grad[0] = p.Amplitude * w2 * 2 * d / (den * den)
		grad[1] = p.Amplitude * 2 * p.Width * d * d / (den * den)
		grad[2] = w2 / den
	case Voigt:
		g := math.Exp(-d * d / (2 * w2))
		den := d*d + w2
		l := w2 / den

		dGdC := g * d / w2
		dGdW := g * d * d / (w2 * p.Width)
		dLdC := w2 * 2 * d / (den * den)
		dLdW := 2 * p.Width * d * d / (den * den)

		grad[0] = p.Amplitude * (p.Mix*dLdC + (1-p.Mix)*dGdC)
		grad[1] = p.Amplitude * (p.Mix*dLdW + (1-p.Mix)*dGdW)
		grad[2] = p.Mix*l + (1-p.Mix)*g
		grad[3] = p.Amplitude * (l - g)
	}
}

// FWHM returns the peak's full width at half maximum: closed form for
// Gaussian and Lorentzian, numeric half-height scan for the pseudo-Voigt.
func (p PeakParams) FWHM() float64 {
	switch p.Shape {
	case Gaussian:
		return gaussFWHM * p.Width
	case Lorentzian:
		return 2 * p.Width
	case Voigt:
		return p.voigtFWHM()
	default:
		return 0
	}
}

// Area returns the integrated peak area: closed form for Gaussian and
// Lorentzian, trapezoidal integration for the pseudo-Voigt.
func (p PeakParams) Area() float64 {
	switch p.Shape {
	case Gaussian:
		return p.Amplitude * p.Width * math.Sqrt(2*math.Pi)
	case Lorentzian:
		return p.Amplitude * p.Width * math.Pi
	case Voigt:
		return p.voigtArea()
	default:
		return 0
	}
}

// voigtFWHM bisects for the half-height crossing on the right flank.
// The profile is symmetric, so the FWHM is twice that distance. The crossing
// lies between the Gaussian HWHM and the heavy-tailed Lorentzian HWHM.
func (p PeakParams) voigtFWHM() float64 {
	unit := PeakParams{Shape: Voigt, Center: 0, Width: p.Width, Amplitude: 1, Mix: p.Mix}

	lo, hi := 0.0, 10*p.Width
	for i := 0; i < 80; i++ {
		mid := (lo + hi) / 2
		if unit.Eval(mid) > 0.5 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + hi
}

// voigtArea integrates the profile over ±tailSpan widths. The Lorentzian
// tail decays as 1/x², so the span must be generous for the area to settle.
func (p PeakParams) voigtArea() float64 {
	const (
		tailSpan = 2000.0
		samples  = 200001
	)
	xs := make([]float64, samples)
	ys := make([]float64, samples)
	floats.Span(xs, p.Center-tailSpan*p.Width, p.Center+tailSpan*p.Width)
	for i, x := range xs {
		ys[i] = p.Eval(x)
	}
	return integrate.Trapezoidal(xs, ys)
}

// Sum evaluates the summed contribution of all peaks at each x. Peaks are
// additive; there is no cross-peak interaction term.
func Sum(ps []PeakParams, xs []float64) []float64 {
	out := make([]float64, len(xs))
	SumInto(out, ps, xs)
	return out
}

// SumInto overwrites dst with the summed contribution of all peaks.
func SumInto(dst []float64, ps []PeakParams, xs []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for _, p := range ps {
		p.AddTo(dst, xs)
	}
}
