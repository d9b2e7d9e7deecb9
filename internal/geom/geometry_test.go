package geom

import (
	"math"
	"testing"

	"github.com/RikVolger/CaTE/internal/param"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetector() Detector {
	return Detector{Rows: 1024, Cols: 768, PixelWidth: 0.2, PixelHeight: 0.2}
}

func TestNew(t *testing.T) {
	g, err := New([]float64{-500, 0, 0}, []float64{500, 0, 0}, testDetector())
	require.NoError(t, err)

	assert.Equal(t, []float64{-500, 0, 0}, g.Source.Value())
	assert.Equal(t, []float64{500, 0, 0}, g.Detector.Value())
	assert.Equal(t, 0.0, g.Roll.Float())
	assert.True(t, g.Source.Optimizable())
}

func TestNewRejectsBadVectors(t *testing.T) {
	_, err := New([]float64{1, 2}, []float64{1, 2, 3}, testDetector())
	require.ErrorIs(t, err, param.ErrVectorLength)

	_, err = New([]float64{1, 2, 3}, []float64{1}, testDetector())
	require.ErrorIs(t, err, param.ErrVectorLength)
}

func TestParamsOrder(t *testing.T) {
	g, err := New([]float64{-1, 0, 0}, []float64{1, 0, 0}, testDetector())
	require.NoError(t, err)

	params := g.Params()
	require.Len(t, params, 5)
	assert.Same(t, g.Source, params[0])
	assert.Same(t, g.Detector, params[1])
	assert.Same(t, g.Roll, params[2])
	assert.Same(t, g.Pitch, params[3])
	assert.Same(t, g.Yaw, params[4])
}

func TestIdentityFrame(t *testing.T) {
	g, err := New([]float64{-1, 0, 0}, []float64{1, 0, 0}, testDetector())
	require.NoError(t, err)

	assertVecInDelta(t, []float64{1, 0, 0}, g.N())
	assertVecInDelta(t, []float64{0, 1, 0}, g.U())
	assertVecInDelta(t, []float64{0, 0, 1}, g.V())
}

func TestYawRotatesFrame(t *testing.T) {
	g, err := New([]float64{-1, 0, 0}, []float64{1, 0, 0}, testDetector())
	require.NoError(t, err)
	g.Yaw.Set(math.Pi / 2)

	// A quarter turn about z maps the normal onto +y.
	assertVecInDelta(t, []float64{0, 1, 0}, g.N())
	assertVecInDelta(t, []float64{-1, 0, 0}, g.U())
	assertVecInDelta(t, []float64{0, 0, 1}, g.V())
}

func TestFrameStaysOrthonormal(t *testing.T) {
	g, err := New([]float64{-1, 0, 0}, []float64{1, 0, 0}, testDetector())
	require.NoError(t, err)
	g.Roll.Set(0.3)
	g.Pitch.Set(-0.7)
	g.Yaw.Set(1.9)

	axes := [][]float64{g.N(), g.U(), g.V()}
	for i, a := range axes {
		assert.InDelta(t, 1.0, dot(a, a), 1e-12, "axis %d not unit length", i)
		for j := i + 1; j < len(axes); j++ {
			assert.InDelta(t, 0.0, dot(a, axes[j]), 1e-12, "axes %d and %d not orthogonal", i, j)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g, err := New([]float64{-1, 2, 3}, []float64{4, 5, 6}, testDetector())
	require.NoError(t, err)
	g.Yaw.Set(0.5)
	g.Source.SetOptimizable(false)

	cp := g.Clone()
	assert.Equal(t, g.Source.Value(), cp.Source.Value())
	assert.Equal(t, g.Yaw.Float(), cp.Yaw.Float())
	assert.False(t, cp.Source.Optimizable())

	require.NoError(t, cp.Source.SetValue([]float64{9, 9, 9}))
	cp.Yaw.Set(2)
	assert.Equal(t, []float64{-1, 2, 3}, g.Source.Value())
	assert.Equal(t, 0.5, g.Yaw.Float())
}

func TestCloneKeepsBounds(t *testing.T) {
	g, err := New([]float64{-1, 2, 3}, []float64{4, 5, 6}, testDetector())
	require.NoError(t, err)
	require.NoError(t, g.Source.SetBounds([]float64{-2, 1, 2}, []float64{0, 3, 4}))
	require.NoError(t, g.Yaw.SetBounds([]float64{-0.1}, []float64{0.1}))

	cp := g.Clone()
	lower, upper := cp.Source.Bounds()
	assert.Equal(t, []float64{-2, 1, 2}, lower)
	assert.Equal(t, []float64{0, 3, 4}, upper)
	lower, upper = cp.Yaw.Bounds()
	assert.Equal(t, []float64{-0.1}, lower)
	assert.Equal(t, []float64{0.1}, upper)

	// The clone's bound storage must not alias the original's.
	origLower, _ := g.Yaw.Bounds()
	origLower[0] = -99
	cloneLower, _ := cp.Yaw.Bounds()
	assert.Equal(t, -0.1, cloneLower[0])
}

func TestDetectorSize(t *testing.T) {
	d := testDetector()
	assert.InDelta(t, 204.8, d.Width(), 1e-12)
	assert.InDelta(t, 153.6, d.Height(), 1e-12)
}

func assertVecInDelta(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12)
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
