package geom

import (
	"errors"
	"fmt"
	"os"

	"github.com/RikVolger/CaTE/internal/param"
	"gopkg.in/yaml.v3"
)

// geometryFile is the on-disk YAML schema for a list of view geometries.
type geometryFile struct {
	Geometries []geometryRecord `yaml:"geometries"`
}

type geometryRecord struct {
	Source   []float64 `yaml:"source"`
	Detector []float64 `yaml:"detector"`
	Roll     float64   `yaml:"roll"`
	Pitch    float64   `yaml:"pitch"`
	Yaw      float64   `yaml:"yaw"`
	Fixed    bool      `yaml:"fixed,omitempty"`
	Props    Detector  `yaml:"props"`
}

// LoadFile reads a list of geometries from a YAML file. A geometry marked
// fixed has all of its parameters excluded from optimization, which is how a
// reference view is pinned to resolve the global gauge freedom.
func LoadFile(path string) ([]*Geometry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading geometry file: %w", err)
	}

	var f geometryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing geometry file %s: %w", path, err)
	}
	if len(f.Geometries) == 0 {
		return nil, errors.New("geometry file contains no geometries")
	}

	geoms := make([]*Geometry, 0, len(f.Geometries))
	for i, rec := range f.Geometries {
		g, err := New(rec.Source, rec.Detector, rec.Props)
		if err != nil {
			return nil, fmt.Errorf("geometry %d: %w", i, err)
		}
		g.Roll.Set(rec.Roll)
		g.Pitch.Set(rec.Pitch)
		g.Yaw.Set(rec.Yaw)
		if rec.Fixed {
			for _, p := range g.Params() {
				p.(param.Parameter).SetOptimizable(false)
			}
		}
		geoms = append(geoms, g)
	}
	return geoms, nil
}

// SaveFile writes a list of geometries to a YAML file.
func SaveFile(path string, geoms []*Geometry) error {
	f := geometryFile{Geometries: make([]geometryRecord, 0, len(geoms))}
	for _, g := range geoms {
		f.Geometries = append(f.Geometries, geometryRecord{
			Source:   g.Source.Value(),
			Detector: g.Detector.Value(),
			Roll:     g.Roll.Float(),
			Pitch:    g.Pitch.Float(),
			Yaw:      g.Yaw.Float(),
			Fixed:    !g.Source.Optimizable(),
			Props:    g.Props,
		})
	}

	raw, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encoding geometry file: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("writing geometry file: %w", err)
	}
	return nil
}
