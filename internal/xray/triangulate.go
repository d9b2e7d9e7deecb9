package xray

import (
	"errors"
	"fmt"
	"math"

	"github.com/RikVolger/CaTE/internal/geom"
	"github.com/RikVolger/CaTE/internal/param"
	"gonum.org/v1/gonum/mat"
)

// ErrTooFewViews is returned when fewer than two views observe a marker, in
// which case the ray intersection is underdetermined.
var ErrTooFewViews = errors.New("xray: need at least two views to triangulate")

// IntersectRays estimates each marker's 3-D location as the least-squares
// intersection of the rays back-projected from every view's observation of
// it. For rays with origins o_i and unit directions d_i the closest point
// solves Σ(I − d_i d_iᵀ) x = Σ(I − d_i d_iᵀ) o_i.
//
// The markers are returned as non-optimizable parameters: given geometry and
// observations they are deterministic, not free variables of the subsequent
// solve. Callers that want to optimize them flip the flag explicitly.
func IntersectRays(geoms []*geom.Geometry, data Data) ([]*param.Vector, error) {
	if len(geoms) < 2 {
		return nil, ErrTooFewViews
	}
	if len(data) != len(geoms) {
		return nil, fmt.Errorf("xray: %d views of data for %d geometries", len(data), len(geoms))
	}
	nMarkers := len(data[0])
	for i, row := range data {
		if len(row) != nMarkers {
			return nil, fmt.Errorf("xray: view %d has %d markers, view 0 has %d", i, len(row), nMarkers)
		}
	}

	markers := make([]*param.Vector, nMarkers)
	for j := 0; j < nMarkers; j++ {
		a := mat.NewDense(3, 3, nil)
		b := mat.NewVecDense(3, nil)

		for i, g := range geoms {
			o := g.Source.Value()
			d := rayDirection(g, data[i][j])

			// Accumulate (I − ddᵀ) into A and (I − ddᵀ)o into b.
			for r := 0; r < 3; r++ {
				for c := 0; c < 3; c++ {
					p := -d[r] * d[c]
					if r == c {
						p++
					}
					a.Set(r, c, a.At(r, c)+p)
					b.SetVec(r, b.AtVec(r)+p*o[c])
				}
			}
		}

		var x mat.VecDense
		if err := x.SolveVec(a, b); err != nil {
			return nil, fmt.Errorf("xray: marker %d ray intersection is singular: %w", j, err)
		}

		m, err := param.NewVector([]float64{x.AtVec(0), x.AtVec(1), x.AtVec(2)}, false)
		if err != nil {
			return nil, err
		}
		markers[j] = m
	}
	return markers, nil
}

// rayDirection returns the unit direction from the source through the
// detector-plane point of an observation.
func rayDirection(g *geom.Geometry, obs Observation) []float64 {
	det := g.Detector.Value()
	u := g.U()
	v := g.V()

	hit := []float64{
		det[0] + obs.U*u[0] + obs.V*v[0],
		det[1] + obs.U*u[1] + obs.V*v[1],
		det[2] + obs.U*u[2] + obs.V*v[2],
	}
	d := sub(hit, g.Source.Value())
	norm := math.Sqrt(dot(d, d))
	return scale(d, 1/norm)
}
