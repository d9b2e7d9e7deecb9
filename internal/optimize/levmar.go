package optimize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LMConfig tunes the Levenberg-Marquardt solver.
type LMConfig struct {
	// Loss selects the robust loss; defaults to LossHuber.
	Loss Loss `mapstructure:"loss" yaml:"loss" json:"loss"`
	// HuberDelta is the residual magnitude beyond which Huber weighting
	// kicks in.
	HuberDelta float64 `mapstructure:"huber_delta" yaml:"huber_delta" json:"huber_delta"`
	// MaxIterations bounds the outer iteration count.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations" json:"max_iterations"`
	// CostTolerance stops when the relative cost improvement drops below it.
	CostTolerance float64 `mapstructure:"cost_tolerance" yaml:"cost_tolerance" json:"cost_tolerance"`
	// StepTolerance stops when the step norm drops below it.
	StepTolerance float64 `mapstructure:"step_tolerance" yaml:"step_tolerance" json:"step_tolerance"`
	// InitialDamping seeds the LM damping factor.
	InitialDamping float64 `mapstructure:"initial_damping" yaml:"initial_damping" json:"initial_damping"`
}

// DefaultLMConfig returns the solver defaults used by the calibration loop.
func DefaultLMConfig() LMConfig {
	return LMConfig{
		Loss:           LossHuber,
		HuberDelta:     1.0,
		MaxIterations:  100,
		CostTolerance:  1e-10,
		StepTolerance:  1e-12,
		InitialDamping: 1e-3,
	}
}

// LevenbergMarquardt is a damped Gauss-Newton solver with a
// forward-difference Jacobian, Huber-weighted normal equations and
// projection of every step into the box bounds.
type LevenbergMarquardt struct {
	cfg LMConfig
}

// NewLevenbergMarquardt creates a solver from cfg, filling zero fields with
// defaults.
func NewLevenbergMarquardt(cfg LMConfig) *LevenbergMarquardt {
	def := DefaultLMConfig()
	if cfg.Loss == "" {
		cfg.Loss = def.Loss
	}
	if cfg.HuberDelta <= 0 {
		cfg.HuberDelta = def.HuberDelta
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.CostTolerance <= 0 {
		cfg.CostTolerance = def.CostTolerance
	}
	if cfg.StepTolerance <= 0 {
		cfg.StepTolerance = def.StepTolerance
	}
	if cfg.InitialDamping <= 0 {
		cfg.InitialDamping = def.InitialDamping
	}
	return &LevenbergMarquardt{cfg: cfg}
}

// Solve implements Solver. The initial vector is clamped into the bounds
// before the first evaluation; every accepted iterate stays inside them.
func (lm *LevenbergMarquardt) Solve(fun ResidualFunc, x0, lower, upper []float64) ([]float64, error) {
	n := len(x0)
	if len(lower) != n || len(upper) != n {
		return nil, ErrBadBounds
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("%w: component %d has lower > upper", ErrBadBounds, i)
		}
	}
	if n == 0 {
		return []float64{}, nil
	}

	x := make([]float64, n)
	copy(x, x0)
	clamp(x, lower, upper)

	r, err := fun(x)
	if err != nil {
		return nil, err
	}
	if !finite(r) {
		return nil, fmt.Errorf("%w: non-finite residuals at the initial vector", ErrNumericalFailure)
	}
	m := len(r)
	cost := lm.cost(r)

	lambda := lm.cfg.InitialDamping
	for iter := 0; iter < lm.cfg.MaxIterations; iter++ {
		jac, err := lm.jacobian(fun, x, r, lower, upper)
		if err != nil {
			return nil, err
		}

		w := lm.weights(r)

		// Normal equations JᵀWJ δ = −JᵀWr with LM damping on the diagonal.
		jtj := mat.NewSymDense(n, nil)
		jtr := make([]float64, n)
		for i := 0; i < m; i++ {
			wi := w[i]
			for a := 0; a < n; a++ {
				jia := jac.At(i, a)
				jtr[a] += wi * jia * r[i]
				for b := a; b < n; b++ {
					jtj.SetSym(a, b, jtj.At(a, b)+wi*jia*jac.At(i, b))
				}
			}
		}

		accepted := false
		for try := 0; try < 16; try++ {
			step, err := solveDamped(jtj, jtr, lambda)
			if err != nil {
				lambda *= 10
				continue
			}

			xNew := make([]float64, n)
			floats.AddTo(xNew, x, step)
			clamp(xNew, lower, upper)

			rNew, err := fun(xNew)
			if err != nil || !finite(rNew) || len(rNew) != m {
				lambda *= 10
				continue
			}

			costNew := lm.cost(rNew)
			if costNew < cost {
				stepNorm := floats.Distance(x, xNew, 2)
				improvement := cost - costNew

				x = xNew
				r = rNew
				cost = costNew
				lambda = math.Max(lambda/10, 1e-12)
				accepted = true

				if stepNorm < lm.cfg.StepTolerance || improvement <= lm.cfg.CostTolerance*math.Max(cost, 1) {
					return x, nil
				}
				break
			}
			lambda *= 10
		}

		if !accepted {
			// No downhill step found at any damping; we are at a (local)
			// minimum within numerical resolution.
			return x, nil
		}
	}
	return x, nil
}

// jacobian computes a forward-difference Jacobian, falling back to a backward
// difference for components pinned against their upper bound.
func (lm *LevenbergMarquardt) jacobian(fun ResidualFunc, x, r, lower, upper []float64) (*mat.Dense, error) {
	n := len(x)
	m := len(r)
	jac := mat.NewDense(m, n, nil)
	xs := make([]float64, n)

	for a := 0; a < n; a++ {
		h := math.Sqrt(machineEps) * math.Max(math.Abs(x[a]), 1)
		copy(xs, x)

		sign := 1.0
		if x[a]+h > upper[a] {
			sign = -1
		}
		xs[a] = x[a] + sign*h
		if xs[a] < lower[a] {
			return nil, fmt.Errorf("%w: component %d has no room for a difference step", ErrNumericalFailure, a)
		}

		rs, err := fun(xs)
		if err != nil {
			return nil, err
		}
		if len(rs) != m {
			return nil, fmt.Errorf("%w: residual length changed during differentiation", ErrNumericalFailure)
		}
		for i := 0; i < m; i++ {
			jac.Set(i, a, (rs[i]-r[i])/(sign*h))
		}
	}
	return jac, nil
}

// weights returns the per-residual IRLS weights for the configured loss.
func (lm *LevenbergMarquardt) weights(r []float64) []float64 {
	w := make([]float64, len(r))
	for i := range w {
		w[i] = 1
	}
	if lm.cfg.Loss != LossHuber {
		return w
	}
	for i, ri := range r {
		if a := math.Abs(ri); a > lm.cfg.HuberDelta {
			w[i] = lm.cfg.HuberDelta / a
		}
	}
	return w
}

// cost evaluates the robust total loss of a residual vector.
func (lm *LevenbergMarquardt) cost(r []float64) float64 {
	if lm.cfg.Loss != LossHuber {
		total := 0.0
		for _, ri := range r {
			total += 0.5 * ri * ri
		}
		return total
	}
	d := lm.cfg.HuberDelta
	total := 0.0
	for _, ri := range r {
		if a := math.Abs(ri); a <= d {
			total += 0.5 * ri * ri
		} else {
			total += d * (a - 0.5*d)
		}
	}
	return total
}

// solveDamped solves (JᵀWJ + λ·diag(JᵀWJ)) δ = −JᵀWr.
func solveDamped(jtj *mat.SymDense, jtr []float64, lambda float64) ([]float64, error) {
	n := len(jtr)
	damped := mat.NewSymDense(n, nil)
	damped.CopySym(jtj)
	for a := 0; a < n; a++ {
		diag := jtj.At(a, a)
		if diag == 0 {
			diag = 1
		}
		damped.SetSym(a, a, jtj.At(a, a)+lambda*diag)
	}

	rhs := mat.NewVecDense(n, nil)
	for a := 0; a < n; a++ {
		rhs.SetVec(a, -jtr[a])
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(damped); !ok {
		return nil, ErrNumericalFailure
	}
	var step mat.VecDense
	if err := chol.SolveVecTo(&step, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumericalFailure, err)
	}

	out := make([]float64, n)
	copy(out, step.RawVector().Data)
	return out, nil
}

const machineEps = 2.220446049250313e-16

func clamp(x, lower, upper []float64) {
	for i := range x {
		if x[i] < lower[i] {
			x[i] = lower[i]
		}
		if x[i] > upper[i] {
			x[i] = upper[i]
		}
	}
}

func finite(r []float64) bool {
	for _, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
