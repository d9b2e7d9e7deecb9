// Package phantom generates synthetic calibration scenes: known marker
// layouts, circular multi-view rigs, simulated noisy observations and
// controlled corruption of geometry estimates. It backs the end-to-end tests
// and the `cate simulate` command.
package phantom

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/RikVolger/CaTE/internal/geom"
	"github.com/RikVolger/CaTE/internal/param"
	"github.com/RikVolger/CaTE/internal/xray"
)

// Helix lays out n markers along a helix of the given radius and height
// centred on the origin. A helix avoids the degenerate coplanar layouts that
// make the geometry estimation problem rank-deficient.
func Helix(n int, radius, height float64) [][]float64 {
	markers := make([][]float64, n)
	for i := 0; i < n; i++ {
		frac := float64(i) / math.Max(float64(n-1), 1)
		angle := frac * 4 * math.Pi
		markers[i] = []float64{
			radius * math.Cos(angle),
			radius * math.Sin(angle),
			height * (frac - 0.5),
		}
	}
	return markers
}

// CircularGeometries places n source/detector pairs evenly around a circle
// in the x-y plane, each view's detector facing its source through the
// origin. The yaw of view i is its angular position.
func CircularGeometries(n int, sourceDist, detectorDist float64, det geom.Detector) ([]*geom.Geometry, error) {
	if n < 1 {
		return nil, fmt.Errorf("phantom: need at least one view, got %d", n)
	}
	geoms := make([]*geom.Geometry, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		c, s := math.Cos(angle), math.Sin(angle)
		g, err := geom.New(
			[]float64{-sourceDist * c, -sourceDist * s, 0},
			[]float64{detectorDist * c, detectorDist * s, 0},
			det,
		)
		if err != nil {
			return nil, err
		}
		g.Yaw.Set(angle)
		geoms[i] = g
	}
	return geoms, nil
}

// Simulate projects the markers through the geometries and perturbs every
// observation with Gaussian noise of the given standard deviation. The same
// seed reproduces the same observation table.
func Simulate(geoms []*geom.Geometry, markers [][]float64, noise float64, seed int64) (xray.Data, error) {
	data, err := xray.ProjectAll(geoms, markers)
	if err != nil {
		return nil, err
	}
	if noise <= 0 {
		return data, nil
	}

	rng := rand.New(rand.NewSource(seed))
	for i := range data {
		for j := range data[i] {
			data[i][j].U += rng.NormFloat64() * noise
			data[i][j].V += rng.NormFloat64() * noise
		}
	}
	return data, nil
}

// PerturbGeometries corrupts geometry estimates in place with Gaussian noise
// on positions and angles, simulating the imprecision of an initial rig
// survey. The fixed reference view, if any, is left untouched.
func PerturbGeometries(geoms []*geom.Geometry, posSigma, angleSigma float64, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for _, g := range geoms {
		if !g.Source.Optimizable() {
			continue
		}
		for _, target := range []*param.Vector{g.Source, g.Detector} {
			if err := jitterVec(rng, target, posSigma); err != nil {
				return err
			}
		}
		g.Roll.Set(g.Roll.Float() + rng.NormFloat64()*angleSigma)
		g.Pitch.Set(g.Pitch.Float() + rng.NormFloat64()*angleSigma)
		g.Yaw.Set(g.Yaw.Float() + rng.NormFloat64()*angleSigma)
	}
	return nil
}

func jitterVec(rng *rand.Rand, target *param.Vector, sigma float64) error {
	v := target.Value()
	out := make([]float64, len(v))
	for k := range v {
		out[k] = v[k] + rng.NormFloat64()*sigma
	}
	return target.SetValue(out)
}
