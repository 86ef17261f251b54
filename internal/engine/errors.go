package engine

// InvalidBoundsError reports a seed model that violates the configured
// parameter bounds: a center outside the spectrum range, a non-positive
// width, or an amplitude contradicting the configured polarity. Rejected at
// model construction, before any iteration runs.
type InvalidBoundsError struct {
	Reason string
}

func (e *InvalidBoundsError) Error() string {
	return "invalid parameter bounds: " + e.Reason
}

func (e *InvalidBoundsError) Is(target error) bool {
	_, ok := target.(*InvalidBoundsError)
	return ok
}

// NumericalInstabilityError reports a singular or ill-conditioned step, or a
// non-finite cost. The engine aborts the offending iteration and returns the
// last good model alongside this error; it is a distinct condition from
// ordinary non-convergence, which is not an error at all.
type NumericalInstabilityError struct {
	Reason    string
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	return "numerical instability: " + e.Reason
}

func (e *NumericalInstabilityError) Is(target error) bool {
	_, ok := target.(*NumericalInstabilityError)
	return ok
}
