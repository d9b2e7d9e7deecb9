package xray

import (
	"fmt"

	"github.com/RikVolger/CaTE/internal/geom"
	"github.com/RikVolger/CaTE/internal/param"
)

// Problem binds geometries, marker parameters and measured observations into
// the residual model consumed by the nonlinear solver. It owns no state of
// its own: solving a Problem mutates the caller's geometry and marker
// parameters in place through the codec.
type Problem struct {
	geoms   []*geom.Geometry
	markers param.Collection
	data    Data
}

// NewProblem validates the observation table against the geometries and
// markers and returns the residual problem.
func NewProblem(geoms []*geom.Geometry, markers param.Collection, data Data) (*Problem, error) {
	if len(data) != len(geoms) {
		return nil, fmt.Errorf("xray: %d views of data for %d geometries", len(data), len(geoms))
	}
	for i, row := range data {
		if len(row) != len(markers) {
			return nil, fmt.Errorf("xray: view %d has %d observations for %d markers", i, len(row), len(markers))
		}
	}
	return &Problem{geoms: geoms, markers: markers, data: data}, nil
}

// Params returns the full ordered parameter collection of the problem:
// markers first, then every geometry's parameters in view order. This order
// is the pack/unpack contract for the whole solve; Residuals and Update must
// see the same collection.
func (p *Problem) Params() param.Collection {
	out := make(param.Collection, 0, len(p.markers)+5*len(p.geoms))
	out = append(out, p.markers...)
	for _, g := range p.geoms {
		out = append(out, g.Params()...)
	}
	return out
}

// Bounds returns the flat lower and upper bound vectors matching a packed
// parameter vector.
func (p *Problem) Bounds() (lower, upper []float64, err error) {
	return param.PackBounds(p.Params(), true)
}

// ResidualCount returns the length of the residual vector: two components
// per observation.
func (p *Problem) ResidualCount() int {
	return 2 * len(p.geoms) * len(p.markers)
}

// Residuals restores the candidate vector into the parameters and returns
// the flattened predicted-minus-observed reprojection errors in
// geometry-major order.
func (p *Problem) Residuals(x []float64) ([]float64, error) {
	if err := param.Unpack(p.Params(), x, true); err != nil {
		return nil, err
	}

	markers := make([][]float64, len(p.markers))
	for j, entry := range p.markers {
		m, ok := entry.(param.Parameter)
		if !ok {
			return nil, fmt.Errorf("xray: marker %d is not a parameter", j)
		}
		markers[j] = m.Value()
	}

	out := make([]float64, 0, p.ResidualCount())
	for i, g := range p.geoms {
		for j, m := range markers {
			pred, err := Project(g, m)
			if err != nil {
				return nil, fmt.Errorf("view %d, marker %d: %w", i, j, err)
			}
			out = append(out, pred.U-p.data[i][j].U, pred.V-p.data[i][j].V)
		}
	}
	return out, nil
}

// Update restores a solver solution into the problem's parameters and
// returns the geometries and markers for convenience.
func (p *Problem) Update(x []float64) ([]*geom.Geometry, param.Collection, error) {
	if err := param.Unpack(p.Params(), x, true); err != nil {
		return nil, nil, err
	}
	return p.geoms, p.markers, nil
}
