// Package engine refines an initial peak model against an observed spectrum
// by damped least squares (Levenberg–Marquardt), enforcing parameter bounds
// on every iteration and supporting cooperative cancellation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/GuilleTCast/fittingo/internal/baseline"
	"github.com/GuilleTCast/fittingo/internal/peaks"
	"github.com/GuilleTCast/fittingo/internal/spectrum"
)

// State names the phase of a fit. A fit moves Seeding → Iterating and ends
// in exactly one of the terminal states.
type State string

const (
	StateSeeding         State = "seeding"
	StateIterating       State = "iterating"
	StateConverged       State = "converged"
	StateMaxIterExceeded State = "max-iterations"
	StateAborted         State = "aborted"
	StateFailed          State = "failed"
)

// Progress is handed to the optional per-iteration callback.
type Progress struct {
	Iteration int
	Cost      float64
	Lambda    float64
	Accepted  bool
}

// Config controls the optimizer. Zero values fall back to the defaults; pass
// by value, the engine never mutates it.
type Config struct {
	// MaxIterations caps the iteration count. Exhaustion is a normal
	// best-effort outcome, not an error.
	MaxIterations int

	// CostTol and ParamTol are the relative-change tolerances below which
	// an iteration counts as quiet; Patience consecutive quiet iterations
	// declare convergence.
	CostTol  float64
	ParamTol float64
	Patience int

	// Levenberg–Marquardt damping schedule. Lambda grows by LambdaUp on a
	// rejected step and shrinks by LambdaDown on an accepted one; exceeding
	// LambdaMax without progress ends the fit.
	LambdaInit float64
	LambdaUp   float64
	LambdaDown float64
	LambdaMax  float64

	// WidthEpsilon is the smallest admissible peak width. Seeds at or below
	// it are rejected, never clamped.
	WidthEpsilon float64

	// MaxWidth bounds peak widths from above; 0 means the axis span.
	MaxWidth float64

	// MaxAmplitude bounds amplitude magnitude; 0 means unbounded.
	MaxAmplitude float64

	// Polarity is the expected absorbance sign: +1 or -1.
	Polarity float64

	// BaselineMode selects pre-subtract or joint baseline handling;
	// BaselineDegree is the polynomial degree.
	BaselineMode   baseline.Mode
	BaselineDegree int

	// OnProgress, if set, is invoked once per iteration.
	OnProgress func(Progress)
}

// DefaultConfig returns the documented defaults. Baseline handling defaults
// to pre-subtract; joint mode is the config switch away described in the
// baseline package.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  200,
		CostTol:        1e-9,
		ParamTol:       1e-9,
		Patience:       3,
		LambdaInit:     1e-3,
		LambdaUp:       10,
		LambdaDown:     0.1,
		LambdaMax:      1e12,
		WidthEpsilon:   1e-6,
		MaxWidth:       0,
		MaxAmplitude:   0,
		Polarity:       1,
		BaselineMode:   baseline.ModePreSubtract,
		BaselineDegree: 0,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.CostTol <= 0 {
		c.CostTol = def.CostTol
	}
	if c.ParamTol <= 0 {
		c.ParamTol = def.ParamTol
	}
	if c.Patience <= 0 {
		c.Patience = def.Patience
	}
	if c.LambdaInit <= 0 {
		c.LambdaInit = def.LambdaInit
	}
	if c.LambdaUp <= 1 {
		c.LambdaUp = def.LambdaUp
	}
	if c.LambdaDown <= 0 || c.LambdaDown >= 1 {
		c.LambdaDown = def.LambdaDown
	}
	if c.LambdaMax <= 0 {
		c.LambdaMax = def.LambdaMax
	}
	if c.WidthEpsilon <= 0 {
		c.WidthEpsilon = def.WidthEpsilon
	}
	if c.Polarity == 0 {
		c.Polarity = def.Polarity
	}
	if c.BaselineMode == "" {
		c.BaselineMode = def.BaselineMode
	}
	return c
}

// StepOutcome describes a single optimizer step.
type StepOutcome struct {
	// Accepted reports whether the candidate reduced the cost and replaced
	// the current model.
	Accepted bool

	// Cost is the sum of squared residuals after the step.
	Cost float64

	// ParamDelta is the largest relative parameter change of an accepted
	// step; zero for a rejected one.
	ParamDelta float64

	// Lambda is the damping value the next step should use.
	Lambda float64
}

// errSingular marks a step whose damped normal equations failed to factor.
// The fit loop responds by raising lambda, same as a cost-increase
// rejection; it only becomes a NumericalInstabilityError once lambda is
// exhausted.
var errSingular = errors.New("singular damped system")

// Fitter performs Levenberg–Marquardt steps for one spectrum and one model
// layout. Step is pure with respect to the model: it returns a new model and
// never mutates its input, which makes single steps unit-testable without
// running a full fit.
type Fitter struct {
	xs, ys []float64
	joint  bool
	bnd    bounds
	n      int // samples
	p      int // free parameters
}

// NewFitter prepares a fitter for the given model layout. The spectrum must
// already be validated and ascending.
func NewFitter(xs, ys []float64, model FitModel, cfg Config) *Fitter {
	cfg = cfg.withDefaults()
	joint := cfg.BaselineMode == baseline.ModeJoint
	return &Fitter{
		xs:    xs,
		ys:    ys,
		joint: joint,
		bnd:   newBounds(model, xs[0], xs[len(xs)-1], cfg, joint),
		n:     len(xs),
		p:     model.numParams(joint),
	}
}

// residuals fills r with model(x) - y and returns the summed squared cost.
func (f *Fitter) residuals(m FitModel, r []float64) float64 {
	pred := m.Eval(f.xs)
	var cost float64
	for i := range r {
		r[i] = pred[i] - f.ys[i]
		cost += r[i] * r[i]
	}
	return cost
}

// jacobian fills row i with the partial derivatives of the model at x_i with
// respect to every free parameter.
func (f *Fitter) jacobian(m FitModel, j *mat.Dense) {
	grad := make([]float64, 4)
	for i, x := range f.xs {
		col := 0
		for _, pk := range m.Peaks {
			np := pk.Shape.NumParams()
			pk.Gradient(x, grad[:np])
			for k := 0; k < np; k++ {
				j.Set(i, col+k, grad[k])
			}
			col += np
		}
		if f.joint {
			v := 1.0
			for k := range m.Baseline.Coeffs {
				j.Set(i, col+k, v)
				v *= x
			}
		}
	}
}

// Step performs one damped least-squares step at the given lambda. On a cost
// reduction the returned model carries the clamped candidate parameters and
// lambda shrinks; otherwise the input model is returned unchanged and lambda
// grows. A non-finite cost is a numerical failure.
func (f *Fitter) Step(m FitModel, lambda float64, cfg Config) (FitModel, StepOutcome, error) {
	cfg = cfg.withDefaults()

	r := make([]float64, f.n)
	cost := f.residuals(m, r)
	if !isFinite(cost) {
		return m, StepOutcome{}, errors.New("non-finite cost")
	}

	if f.p == 0 {
		return m, StepOutcome{Accepted: false, Cost: cost, Lambda: lambda}, nil
	}

	jac := mat.NewDense(f.n, f.p, nil)
	f.jacobian(m, jac)

	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())

	damped := mat.NewSymDense(f.p, nil)
	damped.CopySym(&jtj)
	for i := 0; i < f.p; i++ {
		// Marquardt scaling plus a small floor so flat directions stay
		// factorable.
		damped.SetSym(i, i, jtj.At(i, i)*(1+lambda)+lambda*1e-12)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(damped); !ok {
		return m, StepOutcome{Accepted: false, Cost: cost, Lambda: lambda * cfg.LambdaUp}, errSingular
	}

	g := mat.NewVecDense(f.p, nil)
	g.MulVec(jac.T(), mat.NewVecDense(f.n, r))

	var delta mat.VecDense
	if err := chol.SolveVecTo(&delta, g); err != nil {
		return m, StepOutcome{Accepted: false, Cost: cost, Lambda: lambda * cfg.LambdaUp}, errSingular
	}

	params := make([]float64, f.p)
	m.pack(params, f.joint)

	candidate := make([]float64, f.p)
	var paramDelta float64
	for i := range candidate {
		candidate[i] = params[i] - delta.AtVec(i)
	}
	f.bnd.clamp(candidate)
	for i := range candidate {
		rel := math.Abs(candidate[i]-params[i]) / (1 + math.Abs(params[i]))
		paramDelta = math.Max(paramDelta, rel)
	}

	next := m.Clone()
	next.unpack(candidate, f.joint)

	newCost := f.residuals(next, r)
	if !isFinite(newCost) {
		return m, StepOutcome{}, errors.New("non-finite candidate cost")
	}

	if newCost < cost {
		return next, StepOutcome{
			Accepted:   true,
			Cost:       newCost,
			ParamDelta: paramDelta,
			Lambda:     math.Max(lambda*cfg.LambdaDown, 1e-12),
		}, nil
	}
	// The attempted delta still matters to convergence detection: a tiny
	// rejected step means the gradient is spent.
	return m, StepOutcome{Accepted: false, Cost: cost, ParamDelta: paramDelta, Lambda: lambda * cfg.LambdaUp}, nil
}

// Fit refines the seed model against the spectrum's first channel. It always
// returns a usable FitResult when the inputs validate: converged, best-effort
// after max iterations, or best-so-far after cancellation. A numerical
// failure returns the last good model together with a
// NumericalInstabilityError.
func Fit(ctx context.Context, spec *spectrum.Spectrum, seed FitModel, cfg Config) (*FitResult, error) {
	cfg = cfg.withDefaults()

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	xs, ys := ascending(spec.Wavenumbers, spec.Absorbance())

	if err := validateSeed(seed, xs, cfg); err != nil {
		return nil, err
	}

	slog.Info("Starting fit",
		"peaks", len(seed.Peaks),
		"baseline_mode", string(cfg.BaselineMode),
		"max_iterations", cfg.MaxIterations,
	)

	model := seed.Clone()
	fitter := NewFitter(xs, ys, model, cfg)
	tracker := newConvergenceTracker(cfg)

	// Zero free parameters (no peaks, pre-subtract baseline) is the defined
	// "no peaks found" outcome, not an error.
	if fitter.p == 0 {
		res := newFitResult(model, fitter, StateConverged, 0)
		slog.Info("Fit complete", "state", string(res.State), "cost", res.Cost)
		return res, nil
	}

	lambda := cfg.LambdaInit
	best := model.Clone()
	r := make([]float64, fitter.n)
	bestCost := fitter.residuals(best, r)

	state := StateIterating
	iters := 0
	for iters < cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			state = StateAborted
			break
		}
		iters++

		next, outcome, err := fitter.Step(model, lambda, cfg)
		if err != nil {
			if !errors.Is(err, errSingular) {
				return buildFailure(best, fitter, iters, err.Error())
			}
			if lambda >= cfg.LambdaMax {
				return buildFailure(best, fitter, iters, "damped system stayed singular at maximum lambda")
			}
			// More damping usually restores conditioning; a singular step
			// does not count toward convergence.
			lambda = outcome.Lambda
			continue
		}

		model = next
		lambda = outcome.Lambda
		if outcome.Accepted && outcome.Cost < bestCost {
			bestCost = outcome.Cost
			best = model.Clone()
		}

		if cfg.OnProgress != nil {
			cfg.OnProgress(Progress{Iteration: iters, Cost: outcome.Cost, Lambda: lambda, Accepted: outcome.Accepted})
		}
		slog.Debug("Fit iteration",
			"iteration", iters,
			"cost", outcome.Cost,
			"lambda", lambda,
			"accepted", outcome.Accepted,
		)

		// A step rejected at exhausted damping cannot improve further; that
		// is convergence, not failure.
		if tracker.update(outcome.Cost, outcome.ParamDelta) || (!outcome.Accepted && lambda >= cfg.LambdaMax) {
			state = StateConverged
			break
		}
	}
	if state == StateIterating {
		state = StateMaxIterExceeded
	}

	res := newFitResult(best, fitter, state, iters)
	slog.Info("Fit complete",
		"state", string(res.State),
		"iterations", res.Iterations,
		"cost", res.Cost,
		"reduced_chi_square", res.ReducedChiSquare,
	)
	return res, nil
}

// buildFailure packages a numerical failure: the last good model is still
// returned so the caller can inspect or retry, alongside the typed error.
func buildFailure(best FitModel, f *Fitter, iter int, reason string) (*FitResult, error) {
	res := newFitResult(best, f, StateFailed, iter)
	err := &NumericalInstabilityError{Reason: reason, Iteration: iter}
	slog.Error("Fit failed", "iteration", iter, "reason", reason)
	return res, err
}

// validateSeed rejects seeds outside the configured bounds before any
// iteration runs.
func validateSeed(m FitModel, xs []float64, cfg Config) error {
	lo, hi := xs[0], xs[len(xs)-1]
	maxWidth := cfg.MaxWidth
	if maxWidth <= 0 {
		maxWidth = hi - lo
	}
	for i, p := range m.Peaks {
		if p.Width <= cfg.WidthEpsilon {
			return &InvalidBoundsError{Reason: fmt.Sprintf(
				"peak %d width %g at or below epsilon %g", i, p.Width, cfg.WidthEpsilon)}
		}
		if p.Width > maxWidth {
			return &InvalidBoundsError{Reason: fmt.Sprintf(
				"peak %d width %g exceeds maximum %g", i, p.Width, maxWidth)}
		}
		if p.Center < lo || p.Center > hi {
			return &InvalidBoundsError{Reason: fmt.Sprintf(
				"peak %d center %g outside spectrum range [%g, %g]", i, p.Center, lo, hi)}
		}
		if cfg.Polarity*p.Amplitude < 0 {
			return &InvalidBoundsError{Reason: fmt.Sprintf(
				"peak %d amplitude %g contradicts polarity %g", i, p.Amplitude, cfg.Polarity)}
		}
		if cfg.MaxAmplitude > 0 && math.Abs(p.Amplitude) > cfg.MaxAmplitude {
			return &InvalidBoundsError{Reason: fmt.Sprintf(
				"peak %d amplitude %g exceeds maximum %g", i, p.Amplitude, cfg.MaxAmplitude)}
		}
		if p.Shape == peaks.Voigt && (p.Mix < 0 || p.Mix > 1) {
			return &InvalidBoundsError{Reason: fmt.Sprintf(
				"peak %d mixing fraction %g outside [0, 1]", i, p.Mix)}
		}
	}
	return nil
}

// ascending returns views or copies of the data with an ascending axis,
// never mutating the input.
func ascending(xs, ys []float64) ([]float64, []float64) {
	if len(xs) < 2 || xs[0] < xs[1] {
		return xs, ys
	}
	n := len(xs)
	rx := make([]float64, n)
	ry := make([]float64, n)
	for i := range xs {
		rx[n-1-i] = xs[i]
		ry[n-1-i] = ys[i]
	}
	return rx, ry
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
