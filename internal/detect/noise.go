package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// NoiseEstimator selects how the noise floor is estimated from the signal.
type NoiseEstimator string

const (
	// NoiseMAD estimates sigma from the median absolute deviation of
	// successive differences. Differencing removes the slowly varying band
	// structure, and the median ignores the sharp steps at peak flanks.
	NoiseMAD NoiseEstimator = "mad"

	// NoiseFFT estimates sigma from the high-frequency third of the
	// periodogram, where band structure has decayed and white noise
	// dominates.
	NoiseFFT NoiseEstimator = "fft"
)

// ParseNoiseEstimator maps a user-facing name to a NoiseEstimator.
func ParseNoiseEstimator(name string) (NoiseEstimator, error) {
	switch name {
	case "mad", "":
		return NoiseMAD, nil
	case "fft":
		return NoiseFFT, nil
	}
	return "", fmt.Errorf("detect: unknown noise estimator %q (want mad or fft)", name)
}

// Estimate returns the noise sigma for the signal. Unknown estimators fall
// back to MAD.
func (e NoiseEstimator) Estimate(signal []float64) float64 {
	if e == NoiseFFT {
		return noiseFFT(signal)
	}
	return noiseMAD(signal)
}

func noiseMAD(signal []float64) float64 {
	if len(signal) < 2 {
		return 0
	}
	diffs := make([]float64, len(signal)-1)
	for i := range diffs {
		diffs[i] = signal[i+1] - signal[i]
	}

	med := medianOf(diffs)
	for i, d := range diffs {
		diffs[i] = math.Abs(d - med)
	}

	// Var(y[i+1]-y[i]) = 2*sigma^2 for independent noise.
	return 1.4826 * medianOf(diffs) / math.Sqrt2
}

func noiseFFT(signal []float64) float64 {
	n := len(signal)
	if n < 8 {
		return noiseMAD(signal)
	}

	spectrum := fft.FFTReal(signal)

	// Average the periodogram over the top third of the positive
	// frequencies. E|F_k|^2 = n*sigma^2 for white noise.
	lo := n / 3
	hi := n / 2
	var sum float64
	for k := lo; k < hi; k++ {
		sum += real(spectrum[k])*real(spectrum[k]) + imag(spectrum[k])*imag(spectrum[k])
	}
	count := hi - lo
	if count == 0 {
		return noiseMAD(signal)
	}
	return math.Sqrt(sum / float64(count) / float64(n))
}

func medianOf(v []float64) float64 {
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
