// Package optimize provides the bounded, robust nonlinear least-squares
// boundary used by the calibration loop. The loop only depends on the Solver
// interface; LevenbergMarquardt is the conforming default implementation and
// any routine honouring the same signature is substitutable.
package optimize

import "errors"

// ResidualFunc evaluates the residual vector at a candidate parameter
// vector. The returned slice must have the same length on every call.
type ResidualFunc func(x []float64) ([]float64, error)

// Solver minimizes the squared norm of a residual function subject to
// per-component box bounds. Implementations return the best parameter vector
// found; numerical failure is propagated to the caller unmodified.
type Solver interface {
	Solve(fun ResidualFunc, x0, lower, upper []float64) ([]float64, error)
}

// Loss selects the robust loss applied to residuals.
type Loss string

const (
	// LossLinear is plain least squares.
	LossLinear Loss = "linear"
	// LossHuber down-weights residuals beyond the Huber delta, reducing the
	// influence of outlier observations.
	LossHuber Loss = "huber"
)

var (
	// ErrBadBounds is returned when bound vectors do not match x0 or cross.
	ErrBadBounds = errors.New("optimize: bounds do not match the initial vector")

	// ErrNumericalFailure is returned when residuals become non-finite or
	// the damped normal equations cannot be solved.
	ErrNumericalFailure = errors.New("optimize: numerical failure")
)
