// Package geom models the static acquisition geometry of one view of a
// cone-beam imaging rig: a point source and a flat detector with an
// orientation given by roll, pitch and yaw. Positions and angles are
// param.Parameter values so the calibration loop can optimize them in place.
package geom

import (
	"math"

	"github.com/RikVolger/CaTE/internal/param"
	"gonum.org/v1/gonum/mat"
)

// Detector describes the physical detector grid. It is a plain value type:
// pixel counts and pitches are manufacturing constants, never optimized.
type Detector struct {
	Rows        int     `mapstructure:"rows" yaml:"rows" json:"rows"`
	Cols        int     `mapstructure:"cols" yaml:"cols" json:"cols"`
	PixelWidth  float64 `mapstructure:"pixel_width" yaml:"pixel_width" json:"pixel_width"`
	PixelHeight float64 `mapstructure:"pixel_height" yaml:"pixel_height" json:"pixel_height"`
}

// Width returns the physical detector width.
func (d Detector) Width() float64 { return float64(d.Rows) * d.PixelWidth }

// Height returns the physical detector height.
func (d Detector) Height() float64 { return float64(d.Cols) * d.PixelHeight }

// Geometry is the pose of one view: source position, detector centre
// position, and the detector's roll/pitch/yaw in radians. With all angles
// zero the detector plane is the world y-z plane and its normal points along
// +x, towards the source side of the rig.
type Geometry struct {
	Source   *param.Vector
	Detector *param.Vector
	Roll     *param.Scalar
	Pitch    *param.Scalar
	Yaw      *param.Scalar

	Props Detector
}

// New creates a geometry with zero angles. Source and detector must be
// 3-vectors.
func New(source, detector []float64, props Detector) (*Geometry, error) {
	src, err := param.NewVector(source, true)
	if err != nil {
		return nil, err
	}
	det, err := param.NewVector(detector, true)
	if err != nil {
		return nil, err
	}
	return &Geometry{
		Source:   src,
		Detector: det,
		Roll:     param.NewScalar(0),
		Pitch:    param.NewScalar(0),
		Yaw:      param.NewScalar(0),
		Props:    props,
	}, nil
}

// Params returns the geometry's parameter collection in its canonical order:
// source, detector, roll, pitch, yaw. This order is the pack/unpack contract
// for a geometry and must match between calibration runs.
func (g *Geometry) Params() param.Collection {
	return param.Collection{g.Source, g.Detector, g.Roll, g.Pitch, g.Yaw}
}

// Rotation returns the detector orientation matrix R = Rz(yaw)·Ry(pitch)·Rx(roll).
func (g *Geometry) Rotation() *mat.Dense {
	cr, sr := math.Cos(g.Roll.Float()), math.Sin(g.Roll.Float())
	cp, sp := math.Cos(g.Pitch.Float()), math.Sin(g.Pitch.Float())
	cy, sy := math.Cos(g.Yaw.Float()), math.Sin(g.Yaw.Float())

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cr, -sr,
		0, sr, cr,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rz := mat.NewDense(3, 3, []float64{
		cy, -sy, 0,
		sy, cy, 0,
		0, 0, 1,
	})

	var r mat.Dense
	r.Mul(rz, ry)
	r.Mul(&r, rx)
	return &r
}

// axis returns the rotated canonical axis i as a plain slice.
func (g *Geometry) axis(i int) []float64 {
	r := g.Rotation()
	return []float64{r.At(0, i), r.At(1, i), r.At(2, i)}
}

// N returns the detector plane normal.
func (g *Geometry) N() []float64 { return g.axis(0) }

// U returns the in-plane horizontal detector axis.
func (g *Geometry) U() []float64 { return g.axis(1) }

// V returns the in-plane vertical detector axis.
func (g *Geometry) V() []float64 { return g.axis(2) }

// Clone returns a deep copy, including installed bounds. Calibration mutates
// geometries in place, so callers snapshot with Clone before calibrating when
// they need to compare before and after.
func (g *Geometry) Clone() *Geometry {
	cp := &Geometry{
		Source:   cloneVector(g.Source),
		Detector: cloneVector(g.Detector),
		Roll:     cloneScalar(g.Roll),
		Pitch:    cloneScalar(g.Pitch),
		Yaw:      cloneScalar(g.Yaw),
		Props:    g.Props,
	}
	return cp
}

func cloneVector(v *param.Vector) *param.Vector {
	cp, _ := param.NewVector(v.Value(), v.Optimizable())
	cloneBounds(cp, v)
	return cp
}

func cloneScalar(s *param.Scalar) *param.Scalar {
	cp := param.NewScalar(s.Float())
	cp.SetOptimizable(s.Optimizable())
	cloneBounds(cp, s)
	return cp
}

// cloneBounds copies src's bounds into dst through fresh slices so the clone
// never aliases the original's bound storage.
func cloneBounds(dst, src param.Parameter) {
	lower, upper := src.Bounds()
	l := make([]float64, len(lower))
	u := make([]float64, len(upper))
	copy(l, lower)
	copy(u, upper)
	// Lengths match by construction, so this cannot fail.
	_ = dst.SetBounds(l, u)
}
