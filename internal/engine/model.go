package engine

import (
	"math"

	"github.com/GuilleTCast/fittingo/internal/baseline"
	"github.com/GuilleTCast/fittingo/internal/peaks"
)

// FitModel owns an ordered peak collection (insertion order is report order)
// and one baseline polynomial. The detector creates it as an initial guess;
// only the fit engine mutates it during optimization.
type FitModel struct {
	Peaks    []peaks.PeakParams  `json:"peaks"`
	Baseline baseline.Polynomial `json:"baseline"`
}

// Clone returns a deep copy.
func (m FitModel) Clone() FitModel {
	return FitModel{
		Peaks:    append([]peaks.PeakParams(nil), m.Peaks...),
		Baseline: baseline.Polynomial{Coeffs: append([]float64(nil), m.Baseline.Coeffs...)},
	}
}

// Eval returns the summed peak-plus-baseline model at each x.
func (m FitModel) Eval(xs []float64) []float64 {
	out := peaks.Sum(m.Peaks, xs)
	for i, x := range xs {
		out[i] += m.Baseline.Eval(x)
	}
	return out
}

// numParams returns the free parameter count. Baseline coefficients are free
// only in joint mode; in pre-subtract mode they are fixed before peak
// fitting.
func (m FitModel) numParams(joint bool) int {
	n := 0
	for _, p := range m.Peaks {
		n += p.Shape.NumParams()
	}
	if joint {
		n += len(m.Baseline.Coeffs)
	}
	return n
}

// pack flattens the free parameters into dst, peak by peak in insertion
// order (center, width, amplitude, mix for Voigt), then baseline
// coefficients in joint mode.
func (m FitModel) pack(dst []float64, joint bool) {
	i := 0
	for _, p := range m.Peaks {
		dst[i] = p.Center
		dst[i+1] = p.Width
		dst[i+2] = p.Amplitude
		i += 3
		if p.Shape == peaks.Voigt {
			dst[i] = p.Mix
			i++
		}
	}
	if joint {
		copy(dst[i:], m.Baseline.Coeffs)
	}
}

// unpack writes a flat parameter vector back into the model. The shape tags
// and peak count are fixed by the model; only numeric values change.
func (m *FitModel) unpack(src []float64, joint bool) {
	i := 0
	for k := range m.Peaks {
		m.Peaks[k].Center = src[i]
		m.Peaks[k].Width = src[i+1]
		m.Peaks[k].Amplitude = src[i+2]
		i += 3
		if m.Peaks[k].Shape == peaks.Voigt {
			m.Peaks[k].Mix = src[i]
			i++
		}
	}
	if joint {
		copy(m.Baseline.Coeffs, src[i:])
	}
}

// bounds holds elementwise parameter limits aligned with the packed vector.
type bounds struct {
	lower []float64
	upper []float64
}

// newBounds builds limits for every free parameter: centers within the
// spectrum range, widths in [epsilon, max width], amplitudes on the
// configured polarity side, Voigt mixing in [0,1], baseline coefficients
// unbounded.
func newBounds(m FitModel, xlo, xhi float64, cfg Config, joint bool) bounds {
	n := m.numParams(joint)
	b := bounds{
		lower: make([]float64, n),
		upper: make([]float64, n),
	}

	maxWidth := cfg.MaxWidth
	if maxWidth <= 0 {
		maxWidth = xhi - xlo
	}
	ampLo, ampHi := 0.0, cfg.MaxAmplitude
	if cfg.MaxAmplitude <= 0 {
		ampHi = math.Inf(1)
	}
	if cfg.Polarity < 0 {
		ampLo, ampHi = -ampHi, 0
	}

	i := 0
	for _, p := range m.Peaks {
		b.lower[i], b.upper[i] = xlo, xhi
		b.lower[i+1], b.upper[i+1] = cfg.WidthEpsilon, maxWidth
		b.lower[i+2], b.upper[i+2] = ampLo, ampHi
		i += 3
		if p.Shape == peaks.Voigt {
			b.lower[i], b.upper[i] = 0, 1
			i++
		}
	}
	for ; i < n; i++ {
		b.lower[i], b.upper[i] = math.Inf(-1), math.Inf(1)
	}
	return b
}

// clamp forces every parameter into its bounds in place.
func (b bounds) clamp(v []float64) {
	for i := range v {
		v[i] = math.Max(b.lower[i], math.Min(b.upper[i], v[i]))
	}
}

// check reports the first bound violation, if any.
func (b bounds) check(v []float64) (int, bool) {
	for i := range v {
		if v[i] < b.lower[i] || v[i] > b.upper[i] {
			return i, false
		}
	}
	return 0, true
}
