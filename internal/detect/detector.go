// Package detect proposes initial peak parameters from a baseline-corrected
// absorbance curve. The seeds it produces are starting guesses only; the fit
// engine refines them.
package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/GuilleTCast/fittingo/internal/peaks"
)

// sigmaPerHWHM converts a Gaussian half width at half maximum to sigma.
const sigmaPerHWHM = 1.1774100225154747 // sqrt(2*ln 2)

// Config controls peak detection. Pass by value; detection never mutates it.
type Config struct {
	// Shape is the line shape assigned to every seed.
	Shape peaks.Shape

	// NoiseMult scales the estimated noise floor into the minimum accepted
	// peak height above baseline.
	NoiseMult float64

	// MinHeight is an absolute height floor, applied in addition to the
	// noise-derived threshold.
	MinHeight float64

	// MinProminence is an absolute floor on how far a local maximum must
	// rise above its surrounding saddle. The noise-derived threshold
	// applies to prominence as well, so this only matters for very quiet
	// signals.
	MinProminence float64

	// MinSeparation is the minimum distance between accepted peak centers,
	// in wavenumber units. Closer maxima are merged into the taller seed.
	MinSeparation float64

	// DefaultWidth is the seed width used when the half-height scan fails,
	// e.g. for a maximum at the spectrum edge. Wavenumber units.
	DefaultWidth float64

	// Polarity is +1 for positive absorbance bands, -1 for negative.
	Polarity float64

	// NoiseEstimator selects the noise floor estimate: NoiseMAD or NoiseFFT.
	NoiseEstimator NoiseEstimator

	// VoigtMix seeds the mixing fraction when Shape is Voigt.
	VoigtMix float64
}

// DefaultConfig returns detection defaults suited to absorbance spectra.
func DefaultConfig() Config {
	return Config{
		Shape:          peaks.Gaussian,
		NoiseMult:      5,
		MinHeight:      0,
		MinProminence:  0,
		MinSeparation:  4,
		DefaultWidth:   5,
		Polarity:       1,
		NoiseEstimator: NoiseMAD,
		VoigtMix:       0.5,
	}
}

// Validate rejects configurations the detector cannot honor.
func (c Config) Validate() error {
	if c.Polarity != 1 && c.Polarity != -1 {
		return fmt.Errorf("detect: polarity must be +1 or -1, got %g", c.Polarity)
	}
	if c.NoiseMult < 0 {
		return fmt.Errorf("detect: noise multiplier must be non-negative, got %g", c.NoiseMult)
	}
	if c.MinProminence < 0 {
		return fmt.Errorf("detect: minimum prominence must be non-negative, got %g", c.MinProminence)
	}
	if c.MinSeparation < 0 {
		return fmt.Errorf("detect: minimum separation must be non-negative, got %g", c.MinSeparation)
	}
	if c.DefaultWidth <= 0 {
		return fmt.Errorf("detect: default width must be positive, got %g", c.DefaultWidth)
	}
	return nil
}

// Peaks locates band candidates in the baseline-corrected signal ys over the
// ascending axis xs and returns one seed per accepted candidate, ordered by
// center. Candidates come from two scans: local maxima gated on prominence,
// and curvature shoulders for bands merged into a stronger neighbor's flank.
// An empty result is a valid outcome, not an error.
func Peaks(xs, ys []float64, cfg Config) ([]peaks.PeakParams, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("detect: %d axis samples vs %d signal samples", len(xs), len(ys))
	}
	if len(xs) < 3 {
		return nil, nil
	}

	// Work on the positive-going signal regardless of polarity.
	signal := ys
	if cfg.Polarity < 0 {
		signal = make([]float64, len(ys))
		for i, y := range ys {
			signal[i] = -y
		}
	}

	noise := cfg.NoiseEstimator.Estimate(signal)
	height := math.Max(cfg.NoiseMult*noise, cfg.MinHeight)
	prominence := math.Max(cfg.NoiseMult*noise, cfg.MinProminence)

	candidates := localMaxima(signal, height, prominence)
	candidates = append(candidates, shoulders(xs, signal, height, cfg)...)
	accepted := merge(candidates, xs, signal, cfg.MinSeparation)

	out := make([]peaks.PeakParams, 0, len(accepted))
	for _, idx := range accepted {
		height := signal[idx]
		width := seedWidth(xs, signal, idx, cfg)

		p := peaks.PeakParams{
			Shape:     cfg.Shape,
			Center:    xs[idx],
			Width:     width,
			Amplitude: cfg.Polarity * height,
		}
		if cfg.Shape == peaks.Voigt {
			p.Mix = cfg.VoigtMix
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Center < out[j].Center })
	return out, nil
}

// ManualSeeds validates user-supplied seeds against the axis range and
// polarity. Manual seeding bypasses automatic detection entirely; the two
// are never combined.
func ManualSeeds(seeds []peaks.PeakParams, xs []float64, cfg Config) ([]peaks.PeakParams, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lo, hi := xs[0], xs[len(xs)-1]
	out := make([]peaks.PeakParams, len(seeds))
	for i, s := range seeds {
		if s.Center < lo || s.Center > hi {
			return nil, fmt.Errorf("detect: manual seed %d center %g outside spectrum range [%g, %g]",
				i, s.Center, lo, hi)
		}
		if s.Width <= 0 {
			return nil, fmt.Errorf("detect: manual seed %d has non-positive width %g", i, s.Width)
		}
		if cfg.Polarity*s.Amplitude < 0 {
			return nil, fmt.Errorf("detect: manual seed %d amplitude %g contradicts polarity %g",
				i, s.Amplitude, cfg.Polarity)
		}
		out[i] = s
	}
	return out, nil
}

// localMaxima returns indices where the signal exceeds both neighbors plus
// the height and prominence floors. Plateau samples count if the left
// neighbor is strictly lower. Gating on prominence rather than raw height
// alone keeps noise wiggles riding high on a tall flank from seeding their
// own peaks.
func localMaxima(signal []float64, height, prominence float64) []int {
	var idx []int
	for i := 1; i < len(signal)-1; i++ {
		if signal[i] <= height {
			continue
		}
		if signal[i] > signal[i-1] && signal[i] >= signal[i+1] && prominenceAt(signal, i) >= prominence {
			idx = append(idx, i)
		}
	}
	return idx
}

// prominenceAt measures how far the maximum at i rises above its key saddle,
// the higher of the two lowest points separating it from taller terrain. A
// side with no taller sample contributes its lowest point out to the edge.
func prominenceAt(signal []float64, i int) float64 {
	left := signal[i]
	for j := i - 1; j >= 0; j-- {
		if signal[j] > signal[i] {
			break
		}
		if signal[j] < left {
			left = signal[j]
		}
	}
	right := signal[i]
	for j := i + 1; j < len(signal); j++ {
		if signal[j] > signal[i] {
			break
		}
		if signal[j] < right {
			right = signal[j]
		}
	}
	return signal[i] - math.Max(left, right)
}

// shoulders returns indices where the second derivative of the smoothed
// signal has a local minimum below the noise floor of the curvature. A band
// absorbed into the flank of a stronger neighbor still curves the summed
// signal downward near its own center, so it leaves a distinct negative lobe
// even when the sum has a single maximum. The stencil lag is tied to the
// default seed width so the derivative is taken at band scale rather than
// sample scale.
func shoulders(xs, signal []float64, height float64, cfg Config) []int {
	n := len(signal)
	step := (xs[n-1] - xs[0]) / float64(n-1)
	if step <= 0 {
		return nil
	}
	lag := int(math.Round(cfg.DefaultWidth / (2 * step)))
	if lag < 1 {
		lag = 1
	}
	if n <= 4*lag {
		return nil
	}

	smooth := boxcar(signal, lag)
	d2 := make([]float64, n)
	for i := lag; i < n-lag; i++ {
		d2[i] = smooth[i-lag] - 2*smooth[i] + smooth[i+lag]
	}

	floor := cfg.NoiseMult * madOf(d2[lag:n-lag])
	var idx []int
	for i := lag + 1; i < n-lag-1; i++ {
		if d2[i] >= 0 || -d2[i] <= floor {
			continue
		}
		if d2[i] < d2[i-1] && d2[i] <= d2[i+1] && signal[i] > height {
			idx = append(idx, i)
		}
	}
	return idx
}

func boxcar(v []float64, half int) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		lo, hi := i-half, i+half+1
		if lo < 0 {
			lo = 0
		}
		if hi > len(v) {
			hi = len(v)
		}
		var sum float64
		for j := lo; j < hi; j++ {
			sum += v[j]
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

func madOf(v []float64) float64 {
	med := medianOf(v)
	dev := make([]float64, len(v))
	for i, x := range v {
		dev[i] = math.Abs(x - med)
	}
	return 1.4826 * medianOf(dev)
}

// merge accepts candidates tallest-first and drops any within minSeparation
// of an already accepted peak. The maxima and shoulder scans can nominate
// the same sample, so exact duplicates are dropped regardless of separation.
// Acceptance by height makes the peak count non-increasing as minSeparation
// grows.
func merge(candidates []int, xs, signal []float64, minSeparation float64) []int {
	order := append([]int(nil), candidates...)
	sort.Slice(order, func(i, j int) bool { return signal[order[i]] > signal[order[j]] })

	var accepted []int
	for _, c := range order {
		ok := true
		for _, a := range accepted {
			if c == a || math.Abs(xs[c]-xs[a]) < minSeparation {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

// seedWidth scans outward from the maximum until the signal falls below half
// the peak height, on each side independently. The shorter successful side
// wins; if both scans run off the spectrum the configured default applies.
func seedWidth(xs, signal []float64, idx int, cfg Config) float64 {
	half := signal[idx] / 2

	hwhmLeft := math.NaN()
	for i := idx - 1; i >= 0; i-- {
		if signal[i] < half {
			hwhmLeft = xs[idx] - xs[i]
			break
		}
	}
	hwhmRight := math.NaN()
	for i := idx + 1; i < len(signal); i++ {
		if signal[i] < half {
			hwhmRight = xs[i] - xs[idx]
			break
		}
	}

	hwhm := math.NaN()
	switch {
	case !math.IsNaN(hwhmLeft) && !math.IsNaN(hwhmRight):
		hwhm = math.Min(hwhmLeft, hwhmRight)
	case !math.IsNaN(hwhmLeft):
		hwhm = hwhmLeft
	case !math.IsNaN(hwhmRight):
		hwhm = hwhmRight
	default:
		return cfg.DefaultWidth
	}

	if cfg.Shape == peaks.Lorentzian {
		return hwhm
	}
	return hwhm / sigmaPerHWHM
}
