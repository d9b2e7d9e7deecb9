package param

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScalar(t *testing.T) {
	s := NewScalar(2.5)
	assert.Equal(t, 2.5, s.Float())
	assert.Equal(t, []float64{2.5}, s.Value())
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Optimizable())
}

func TestScalarSetValue(t *testing.T) {
	tests := []struct {
		name    string
		value   []float64
		wantErr error
		want    float64
	}{
		{name: "single element coerced", value: []float64{7.0}, want: 7.0},
		{name: "empty slice", value: []float64{}, wantErr: ErrNotScalar},
		{name: "two elements", value: []float64{1, 2}, wantErr: ErrNotScalar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScalar(0)
			err := s.SetValue(tt.value)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Float())
		})
	}
}

func TestScalarDerivedValue(t *testing.T) {
	angle := 0.1
	s := NewDerivedScalar(func() float64 { return 2 * angle })
	assert.Equal(t, 0.2, s.Float())

	// Derived values are recomputed on every read, never cached.
	angle = 0.3
	assert.InDelta(t, 0.6, s.Float(), 1e-15)

	// Assignment replaces the producer with a stored value.
	require.NoError(t, s.SetValue([]float64{1.5}))
	angle = 100
	assert.Equal(t, 1.5, s.Float())
}

func TestScalarDefaultBounds(t *testing.T) {
	s := NewScalar(1)
	lower, upper := s.Bounds()
	require.Len(t, lower, 1)
	require.Len(t, upper, 1)
	assert.True(t, math.IsInf(lower[0], -1))
	assert.True(t, math.IsInf(upper[0], 1))
}

func TestScalarExplicitBounds(t *testing.T) {
	s := NewScalar(1)
	require.NoError(t, s.SetBounds([]float64{-2}, []float64{2}))
	lower, upper := s.Bounds()
	assert.Equal(t, []float64{-2}, lower)
	assert.Equal(t, []float64{2}, upper)

	assert.ErrorIs(t, s.SetBounds([]float64{-2, -2}, []float64{2, 2}), ErrBoundsLength)
}

func TestNewVector(t *testing.T) {
	tests := []struct {
		name    string
		value   []float64
		wantErr error
	}{
		{name: "length 3", value: []float64{1, 2, 3}},
		{name: "length 2", value: []float64{1, 2}, wantErr: ErrVectorLength},
		{name: "length 4", value: []float64{1, 2, 3, 4}, wantErr: ErrVectorLength},
		{name: "empty", value: nil, wantErr: ErrVectorLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVector(tt.value, true)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, v.Value())
			assert.Equal(t, 3, v.Len())
		})
	}
}

func TestVectorCopiesInput(t *testing.T) {
	in := []float64{1, 2, 3}
	v, err := NewVector(in, true)
	require.NoError(t, err)

	in[0] = 99
	assert.Equal(t, []float64{1, 2, 3}, v.Value())
}

func TestVectorSetValueEnforcesLength(t *testing.T) {
	v, err := NewVector([]float64{1, 2, 3}, true)
	require.NoError(t, err)

	assert.ErrorIs(t, v.SetValue([]float64{1, 2}), ErrVectorLength)
	assert.ErrorIs(t, v.SetValue([]float64{1, 2, 3, 4}), ErrVectorLength)

	require.NoError(t, v.SetValue([]float64{4, 5, 6}))
	assert.Equal(t, []float64{4, 5, 6}, v.Value())
}

func TestVectorDerivedValue(t *testing.T) {
	src := []float64{1, 2, 3}
	v := NewDerivedVector(func() []float64 { return src }, false)
	assert.Equal(t, []float64{1, 2, 3}, v.Value())
	assert.False(t, v.Optimizable())

	src[1] = 9
	assert.Equal(t, []float64{1, 9, 3}, v.Value())

	// Assignment detaches the parameter from the live source.
	require.NoError(t, v.SetValue([]float64{7, 8, 9}))
	src[1] = 0
	assert.Equal(t, []float64{7, 8, 9}, v.Value())
}

func TestVectorDefaultBounds(t *testing.T) {
	v, err := NewVector([]float64{1, 2, 3}, true)
	require.NoError(t, err)

	lower, upper := v.Bounds()
	require.Len(t, lower, 3)
	require.Len(t, upper, 3)
	for i := range lower {
		assert.True(t, math.IsInf(lower[i], -1))
		assert.True(t, math.IsInf(upper[i], 1))
	}
}

func TestSetOptimizable(t *testing.T) {
	s := NewScalar(1)
	require.True(t, s.Optimizable())
	s.SetOptimizable(false)
	assert.False(t, s.Optimizable())
}
