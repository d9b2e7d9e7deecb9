// Package param provides the optimizable-parameter abstraction used by the
// calibration pipeline. A Parameter is a mutable scalar or fixed-length
// vector quantity with optional bounds and an opt-in/opt-out flag; the codec
// in this package marshals ordered collections of parameters to and from the
// flat float vectors consumed by a nonlinear least-squares solver.
package param

import (
	"errors"
	"math"
)

var (
	// ErrNotScalar is returned when a scalar assignment does not reduce to a
	// single number.
	ErrNotScalar = errors.New("param: value must reduce to a single number")

	// ErrVectorLength is returned when a vector parameter is constructed or
	// assigned with a length other than 3.
	ErrVectorLength = errors.New("param: vector value must have length 3")

	// ErrBoundsLength is returned when explicit bounds do not match the
	// parameter's length.
	ErrBoundsLength = errors.New("param: bounds length must match parameter length")
)

// Parameter is a mutable, boundable, optionally-derived value that the
// optimizer can touch. Implementations expose their value as a float slice
// regardless of the underlying shape so the codec can treat them uniformly.
type Parameter interface {
	// Value resolves the current value. Derived values are recomputed on
	// every call, never cached.
	Value() []float64

	// SetValue assigns a new value in place. A derived value becomes a
	// stored value after assignment.
	SetValue(v []float64) error

	// Bounds returns the explicit bounds if set, otherwise unbounded
	// (-Inf, +Inf) slices sized to the current length.
	Bounds() (lower, upper []float64)

	// SetBounds installs explicit per-component bounds.
	SetBounds(lower, upper []float64) error

	// Len reports how many flat-vector slots this parameter occupies. It is
	// computed fresh on every call because derived values may change length
	// over the parameter's life.
	Len() int

	// Optimizable reports whether the parameter takes part in pack/unpack
	// cycles.
	Optimizable() bool

	// SetOptimizable toggles participation in pack/unpack cycles.
	SetOptimizable(on bool)
}

// base holds the state shared by Scalar and Vector.
type base struct {
	lower    []float64 // nil means unbounded
	upper    []float64
	optimize bool
}

func (b *base) Optimizable() bool      { return b.optimize }
func (b *base) SetOptimizable(on bool) { b.optimize = on }

func (b *base) bounds(n int) (lower, upper []float64) {
	if b.lower != nil {
		return b.lower, b.upper
	}
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := range lower {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return lower, upper
}

func (b *base) setBounds(n int, lower, upper []float64) error {
	if len(lower) != n || len(upper) != n {
		return ErrBoundsLength
	}
	b.lower = lower
	b.upper = upper
	return nil
}

// Scalar is a single optimizable number. Its value is either stored directly
// or produced by a zero-argument function, which lets the value be a live
// view onto other state (for example a geometry angle owned elsewhere).
type Scalar struct {
	base
	value    float64
	producer func() float64
}

// NewScalar creates an optimizable scalar with a stored value.
func NewScalar(v float64) *Scalar {
	return &Scalar{base: base{optimize: true}, value: v}
}

// NewDerivedScalar creates an optimizable scalar whose value is recomputed
// from fn on every read.
func NewDerivedScalar(fn func() float64) *Scalar {
	return &Scalar{base: base{optimize: true}, producer: fn}
}

// Float resolves the scalar value.
func (s *Scalar) Float() float64 {
	if s.producer != nil {
		return s.producer()
	}
	return s.value
}

// Set stores a new scalar value, replacing any producer.
func (s *Scalar) Set(v float64) {
	s.producer = nil
	s.value = v
}

// Value implements Parameter.
func (s *Scalar) Value() []float64 { return []float64{s.Float()} }

// SetValue implements Parameter. A single-element slice is coerced to a
// plain number; any other length fails.
func (s *Scalar) SetValue(v []float64) error {
	if len(v) != 1 {
		return ErrNotScalar
	}
	s.Set(v[0])
	return nil
}

// Len implements Parameter. A scalar always occupies one slot.
func (s *Scalar) Len() int { return 1 }

// Bounds implements Parameter.
func (s *Scalar) Bounds() (lower, upper []float64) { return s.bounds(1) }

// SetBounds implements Parameter.
func (s *Scalar) SetBounds(lower, upper []float64) error {
	return s.setBounds(1, lower, upper)
}

// Vector is a 3-vector parameter, used for positions of sources, detectors
// and fiducial markers. The optimize flag has to be given explicitly at
// construction: markers in the reconstruction volume can sit at known or at
// unknown locations, and neither default is obviously right.
type Vector struct {
	base
	value    []float64
	producer func() []float64
}

// NewVector creates a vector parameter. The value must have length 3.
func NewVector(v []float64, optimize bool) (*Vector, error) {
	if len(v) != 3 {
		return nil, ErrVectorLength
	}
	cp := make([]float64, 3)
	copy(cp, v)
	return &Vector{base: base{optimize: optimize}, value: cp}, nil
}

// NewDerivedVector creates a vector parameter whose value is recomputed from
// fn on every read. The producer is trusted to return length-3 slices.
func NewDerivedVector(fn func() []float64, optimize bool) *Vector {
	return &Vector{base: base{optimize: optimize}, producer: fn}
}

// Value implements Parameter.
func (p *Vector) Value() []float64 {
	if p.producer != nil {
		return p.producer()
	}
	return p.value
}

// SetValue implements Parameter. The length-3 invariant is enforced on every
// assignment, not only at construction, so a mis-sized solver vector can
// never desynchronize the codec's slicing.
func (p *Vector) SetValue(v []float64) error {
	if len(v) != 3 {
		return ErrVectorLength
	}
	if p.producer != nil {
		p.producer = nil
		p.value = make([]float64, 3)
	}
	copy(p.value, v)
	return nil
}

// Len implements Parameter.
func (p *Vector) Len() int { return len(p.Value()) }

// Bounds implements Parameter.
func (p *Vector) Bounds() (lower, upper []float64) { return p.bounds(p.Len()) }

// SetBounds implements Parameter.
func (p *Vector) SetBounds(lower, upper []float64) error {
	return p.setBounds(p.Len(), lower, upper)
}
