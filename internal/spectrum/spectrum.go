// Package spectrum defines the value types shared by the deconvolution
// pipeline: a wavenumber axis paired with one or more absorbance channels.
package spectrum

import "fmt"

// Spectrum holds a strictly monotonic wavenumber axis and one or more
// absorbance channels of equal length. After Normalize the axis is ascending;
// all pipeline code assumes that direction.
type Spectrum struct {
	Wavenumbers []float64   `json:"wavenumbers"`
	Channels    [][]float64 `json:"channels"`

	// SourceFile records where the spectrum was parsed from, if anywhere.
	SourceFile string `json:"sourceFile,omitempty"`
}

// InvalidSpectrumError reports a spectrum that violates the input contract:
// empty data, mismatched lengths, or a non-monotonic axis.
type InvalidSpectrumError struct {
	Reason string
}

func (e *InvalidSpectrumError) Error() string {
	return "invalid spectrum: " + e.Reason
}

func (e *InvalidSpectrumError) Is(target error) bool {
	_, ok := target.(*InvalidSpectrumError)
	return ok
}

// Validate checks the spectrum invariants. It must pass before any fitting
// begins; a failure here is fatal to the call that received the spectrum.
func (s *Spectrum) Validate() error {
	if len(s.Wavenumbers) == 0 {
		return &InvalidSpectrumError{Reason: "empty wavenumber axis"}
	}
	if len(s.Channels) == 0 {
		return &InvalidSpectrumError{Reason: "no absorbance channels"}
	}
	for i, ch := range s.Channels {
		if len(ch) != len(s.Wavenumbers) {
			return &InvalidSpectrumError{Reason: fmt.Sprintf(
				"channel %d has %d samples, axis has %d", i, len(ch), len(s.Wavenumbers))}
		}
	}
	ascending := 0
	descending := 0
	for i := 1; i < len(s.Wavenumbers); i++ {
		switch {
		case s.Wavenumbers[i] > s.Wavenumbers[i-1]:
			ascending++
		case s.Wavenumbers[i] < s.Wavenumbers[i-1]:
			descending++
		default:
			return &InvalidSpectrumError{Reason: fmt.Sprintf(
				"duplicate wavenumber at index %d (%g)", i, s.Wavenumbers[i])}
		}
	}
	if ascending > 0 && descending > 0 {
		return &InvalidSpectrumError{Reason: "wavenumber axis is not monotonic"}
	}
	return nil
}

// Normalize validates the spectrum and reverses in place if the axis is
// descending, so callers always see an ascending axis. IR instruments
// commonly emit descending wavenumbers.
func (s *Spectrum) Normalize() error {
	if err := s.Validate(); err != nil {
		return err
	}
	n := len(s.Wavenumbers)
	if n < 2 || s.Wavenumbers[0] < s.Wavenumbers[1] {
		return nil
	}
	reverse(s.Wavenumbers)
	for _, ch := range s.Channels {
		reverse(ch)
	}
	return nil
}

// Range returns the lowest and highest wavenumber. Assumes Normalize ran.
func (s *Spectrum) Range() (lo, hi float64) {
	return s.Wavenumbers[0], s.Wavenumbers[len(s.Wavenumbers)-1]
}

// Len returns the number of samples per channel.
func (s *Spectrum) Len() int {
	return len(s.Wavenumbers)
}

// Channel returns a single-channel view sharing the wavenumber axis.
// The returned spectrum aliases the underlying slices; it is read-only by
// convention (the pipeline never mutates input data after parsing).
func (s *Spectrum) Channel(i int) (*Spectrum, error) {
	if i < 0 || i >= len(s.Channels) {
		return nil, fmt.Errorf("channel index %d out of range (have %d)", i, len(s.Channels))
	}
	return &Spectrum{
		Wavenumbers: s.Wavenumbers,
		Channels:    [][]float64{s.Channels[i]},
		SourceFile:  s.SourceFile,
	}, nil
}

// Absorbance returns the first channel's absorbance samples.
func (s *Spectrum) Absorbance() []float64 {
	return s.Channels[0]
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
