package xray

import (
	"math"
	"testing"

	"github.com/RikVolger/CaTE/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orthogonalRig returns two views at right angles around the origin.
func orthogonalRig(t *testing.T) []*geom.Geometry {
	t.Helper()

	g1, err := geom.New([]float64{-1000, 0, 0}, []float64{500, 0, 0}, testDetector())
	require.NoError(t, err)

	g2, err := geom.New([]float64{0, -1000, 0}, []float64{0, 500, 0}, testDetector())
	require.NoError(t, err)
	g2.Yaw.Set(math.Pi / 2)

	return []*geom.Geometry{g1, g2}
}

func TestIntersectRaysRecoversMarkers(t *testing.T) {
	geoms := orthogonalRig(t)
	markers := [][]float64{
		{0, 0, 0},
		{10, -20, 30},
		{-7.5, 12.5, -2.5},
	}

	data, err := ProjectAll(geoms, markers)
	require.NoError(t, err)

	recovered, err := IntersectRays(geoms, data)
	require.NoError(t, err)
	require.Len(t, recovered, len(markers))

	for j, want := range markers {
		got := recovered[j].Value()
		for k := range want {
			assert.InDelta(t, want[k], got[k], 1e-6, "marker %d component %d", j, k)
		}
		assert.False(t, recovered[j].Optimizable(),
			"triangulated markers are deterministic given geometry, not free variables")
	}
}

func TestIntersectRaysTooFewViews(t *testing.T) {
	g, err := geom.New([]float64{-1000, 0, 0}, []float64{500, 0, 0}, testDetector())
	require.NoError(t, err)

	_, err = IntersectRays([]*geom.Geometry{g}, Data{{{U: 0, V: 0}}})
	require.ErrorIs(t, err, ErrTooFewViews)
}

func TestIntersectRaysDimensionChecks(t *testing.T) {
	geoms := orthogonalRig(t)

	_, err := IntersectRays(geoms, Data{{{U: 0, V: 0}}})
	require.Error(t, err, "one view of data for two geometries")

	_, err = IntersectRays(geoms, Data{
		{{U: 0, V: 0}, {U: 1, V: 1}},
		{{U: 0, V: 0}},
	})
	require.Error(t, err, "ragged marker counts across views")
}

func TestIntersectRaysNoisyObservations(t *testing.T) {
	geoms := orthogonalRig(t)
	markers := [][]float64{{3, 4, 5}}

	data, err := ProjectAll(geoms, markers)
	require.NoError(t, err)
	// Perturb one observation; the LS intersection should stay close.
	data[0][0].U += 0.5

	recovered, err := IntersectRays(geoms, data)
	require.NoError(t, err)
	got := recovered[0].Value()
	for k := range markers[0] {
		assert.InDelta(t, markers[0][k], got[k], 1.0)
	}
}
