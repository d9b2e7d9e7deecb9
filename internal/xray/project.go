// Package xray implements the projective model of the rig: central projection
// of 3-D markers onto detector planes, the residual problem handed to the
// nonlinear solver, and least-squares triangulation of markers from
// back-projected rays.
package xray

import (
	"errors"
	"fmt"
	"math"

	"github.com/RikVolger/CaTE/internal/geom"
)

// ErrRayParallel is returned when a source-to-marker ray never crosses the
// detector plane.
var ErrRayParallel = errors.New("xray: ray is parallel to the detector plane")

// Observation is one marker's position on one detector, in detector-frame
// coordinates relative to the detector centre.
type Observation struct {
	U float64 `json:"u" yaml:"u"`
	V float64 `json:"v" yaml:"v"`
}

// Data is the observation table, indexed as data[view][marker]. Marker order
// must be identical across views; that correspondence is what ties the
// multi-view problem together.
type Data [][]Observation

// Project computes the detector-frame coordinates of a 3-D point seen through
// geometry g: the intersection of the source-to-marker ray with the detector
// plane, expressed in the (U, V) basis about the detector centre.
func Project(g *geom.Geometry, marker []float64) (Observation, error) {
	src := g.Source.Value()
	det := g.Detector.Value()
	n := g.N()

	dir := sub(marker, src)
	denom := dot(dir, n)
	if math.Abs(denom) < 1e-12 {
		return Observation{}, ErrRayParallel
	}

	t := dot(sub(det, src), n) / denom
	hit := add(src, scale(dir, t))
	rel := sub(hit, det)
	return Observation{U: dot(rel, g.U()), V: dot(rel, g.V())}, nil
}

// ProjectAll projects every marker through every geometry, producing a
// predicted observation table in the same [view][marker] layout as measured
// data.
func ProjectAll(geoms []*geom.Geometry, markers [][]float64) (Data, error) {
	out := make(Data, len(geoms))
	for i, g := range geoms {
		row := make([]Observation, len(markers))
		for j, m := range markers {
			obs, err := Project(g, m)
			if err != nil {
				return nil, fmt.Errorf("view %d, marker %d: %w", i, j, err)
			}
			row[j] = obs
		}
		out[i] = row
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func sub(a, b []float64) []float64 {
	return []float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func add(a, b []float64) []float64 {
	return []float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func scale(a []float64, s float64) []float64 {
	return []float64{a[0] * s, a[1] * s, a[2] * s}
}
