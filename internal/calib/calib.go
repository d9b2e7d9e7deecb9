// Package calib drives the alternating calibration of rig geometry and
// marker locations: triangulate markers from the current geometry, refine the
// geometry against the observed pixel data with a bounded robust
// least-squares solve, repeat. Geometry parameters are mutated in place; a
// collection passed in here must not be read or written by other logic until
// the call returns.
package calib

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/RikVolger/CaTE/internal/common"
	"github.com/RikVolger/CaTE/internal/geom"
	"github.com/RikVolger/CaTE/internal/optimize"
	"github.com/RikVolger/CaTE/internal/param"
	"github.com/RikVolger/CaTE/internal/xray"
)

// ErrIterations is returned when the alternating loop is asked to run a
// non-positive number of iterations.
var ErrIterations = errors.New("calib: iteration count must be positive")

// noopDecimals is the decimal tolerance of the post-solve no-op check.
const noopDecimals = 3

// Options configures a calibration run.
type Options struct {
	// Solver performs the bounded nonlinear least-squares minimization.
	// Nil selects a Levenberg-Marquardt solver with Huber loss.
	Solver optimize.Solver

	// PositionBound, when positive, boxes every optimizable position
	// component to its initial value ± the bound before solving.
	PositionBound float64

	// AngleBound, when positive, boxes every optimizable angle to its
	// initial value ± the bound (radians) before solving.
	AngleBound float64

	// Verbose logs per-geometry before/after values at info level.
	Verbose bool

	// Logger receives diagnostics; nil selects slog.Default.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) solver() optimize.Solver {
	if o.Solver != nil {
		return o.Solver
	}
	return optimize.NewLevenbergMarquardt(optimize.DefaultLMConfig())
}

// Calibrate refines geometries (and any optimizable markers) in place
// against the observed data: pack the optimizable parameters and their
// bounds, minimize the reprojection residuals, unpack the solution back into
// the caller's parameter objects. Callers needing a before/after comparison
// must snapshot geometries with Clone first.
//
// Solver failure is returned unmodified; no retry policy is applied here.
func Calibrate(geoms []*geom.Geometry, markers param.Collection, data xray.Data, opts Options) error {
	initial := make([]*geom.Geometry, len(geoms))
	for i, g := range geoms {
		initial[i] = g.Clone()
	}

	if opts.PositionBound > 0 || opts.AngleBound > 0 {
		if err := applyBounds(geoms, opts.PositionBound, opts.AngleBound); err != nil {
			return err
		}
	}

	problem, err := xray.NewProblem(geoms, markers, data)
	if err != nil {
		return err
	}

	x0, err := param.Pack(problem.Params(), param.FieldValue, true)
	if err != nil {
		return err
	}
	lower, upper, err := problem.Bounds()
	if err != nil {
		return err
	}

	solution, err := opts.solver().Solve(problem.Residuals, x0, lower, upper)
	if err != nil {
		return fmt.Errorf("calib: solver: %w", err)
	}

	if _, _, err := problem.Update(solution); err != nil {
		return err
	}

	log := opts.logger()
	if opts.Verbose {
		for i := range geoms {
			logGeometry(log, i, initial[i], geoms[i])
		}
	}

	// Diagnostic no-op detection: its own failure must never abort the run.
	unchanged, cmpErr := geometriesEqual(initial, geoms, noopDecimals)
	if cmpErr != nil {
		log.Warn("geometry comparison failed", "error", cmpErr)
	} else if unchanged {
		log.Warn("calibration pass left all geometries unchanged",
			"decimals", noopDecimals)
	}
	return nil
}

// EstimateMarkers runs the alternating loop for a fixed iteration budget:
// each iteration triangulates a fresh, non-optimizable marker collection from
// the current geometry (Phase T), then calibrates the geometry in place
// against the data (Phase C). The next triangulation uses the just-updated
// geometry, so the two phases tighten each other. There is no internal
// convergence check — termination is purely iteration-count-bounded.
//
// Returns the markers from the final iteration.
func EstimateMarkers(geoms []*geom.Geometry, data xray.Data, iters int, opts Options) (param.Collection, error) {
	if iters <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrIterations, iters)
	}

	log := opts.logger()
	var markers param.Collection
	for i := 0; i < iters; i++ {
		triangulation := common.NewTimer("triangulate")
		points, err := xray.IntersectRays(geoms, data)
		if err != nil {
			return nil, fmt.Errorf("calib: iteration %d: %w", i, err)
		}
		triangulation.Stop()

		// Previous iterations' markers are discarded: geometry is the only
		// state carried across iterations.
		markers = make(param.Collection, len(points))
		for j, pt := range points {
			markers[j] = pt
		}

		refinement := common.NewTimer("refine")
		if err := Calibrate(geoms, markers, data, opts); err != nil {
			return nil, fmt.Errorf("calib: iteration %d: %w", i, err)
		}
		refinement.Stop()

		log.Debug("calibration iteration finished",
			"iteration", i,
			triangulation.Name(), triangulation.Duration(),
			refinement.Name(), refinement.Duration())
	}
	return markers, nil
}

// applyBounds boxes every optimizable geometry parameter around its current
// value.
func applyBounds(geoms []*geom.Geometry, posBound, angleBound float64) error {
	for _, g := range geoms {
		if posBound > 0 {
			for _, v := range []*param.Vector{g.Source, g.Detector} {
				if !v.Optimizable() {
					continue
				}
				val := v.Value()
				lower := make([]float64, len(val))
				upper := make([]float64, len(val))
				for k := range val {
					lower[k] = val[k] - posBound
					upper[k] = val[k] + posBound
				}
				if err := v.SetBounds(lower, upper); err != nil {
					return err
				}
			}
		}
		if angleBound > 0 {
			for _, s := range []*param.Scalar{g.Roll, g.Pitch, g.Yaw} {
				if !s.Optimizable() {
					continue
				}
				v := s.Float()
				if err := s.SetBounds([]float64{v - angleBound}, []float64{v + angleBound}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// geometriesEqual reports whether two geometry lists match to the given
// number of decimals. It returns an error instead of panicking on mismatched
// list lengths so callers can log the failure as a diagnostic.
func geometriesEqual(a, b []*geom.Geometry, decimals int) (bool, error) {
	if len(a) != len(b) {
		return false, fmt.Errorf("calib: comparing %d geometries against %d", len(a), len(b))
	}
	tol := math.Pow(10, -float64(decimals)) / 2
	for i := range a {
		pairs := [][2][]float64{
			{a[i].Source.Value(), b[i].Source.Value()},
			{a[i].Detector.Value(), b[i].Detector.Value()},
			{{a[i].Roll.Float()}, {b[i].Roll.Float()}},
			{{a[i].Pitch.Float()}, {b[i].Pitch.Float()}},
			{{a[i].Yaw.Float()}, {b[i].Yaw.Float()}},
		}
		for _, pair := range pairs {
			for k := range pair[0] {
				if math.Abs(pair[0][k]-pair[1][k]) > tol {
					return false, nil
				}
			}
		}
	}
	return true, nil
}

// logGeometry logs one geometry's before/after values.
func logGeometry(log *slog.Logger, i int, before, after *geom.Geometry) {
	log.Info("geometry calibrated",
		"geometry", i,
		"source", FormatVec(before.Source.Value(), 4)+" -> "+FormatVec(after.Source.Value(), 4),
		"detector", FormatVec(before.Detector.Value(), 4)+" -> "+FormatVec(after.Detector.Value(), 4),
		"roll", formatPair(before.Roll.Float(), after.Roll.Float()),
		"pitch", formatPair(before.Pitch.Float(), after.Pitch.Float()),
		"yaw", formatPair(before.Yaw.Float(), after.Yaw.Float()),
	)
}

// FormatVec renders a vector with a fixed decimal precision. Formatting is
// parameterized per call site; there is no process-wide precision state.
func FormatVec(v []float64, precision int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', precision, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatPair(before, after float64) string {
	return strconv.FormatFloat(before, 'f', 4, 64) + " -> " + strconv.FormatFloat(after, 'f', 4, 64)
}
