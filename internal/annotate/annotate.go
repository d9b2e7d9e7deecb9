// Package annotate manages marker pixel annotations: per-projection marker
// pixel coordinates persisted to a JSON store, conversion from image-frame
// pixels to detector-frame coordinates, and a simple intensity-based marker
// finder to bootstrap annotations from projection images.
package annotate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/RikVolger/CaTE/internal/geom"
	"github.com/RikVolger/CaTE/internal/xray"
)

// Point is a marker location in image-frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Store holds marker pixel locations for a set of projections, keyed by
// projection ID and marker ID. The same marker ID must denote the same
// physical marker in every projection; the codec-facing data tables rely on
// that correspondence.
type Store struct {
	path string
	data map[string]map[string]Point
}

// Open loads a store from path. A missing file yields an empty store so a
// fresh annotation session can start from nothing.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]map[string]Point)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading annotations: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing annotations %s: %w", path, err)
	}
	return s, nil
}

// Set records the pixel location of a marker in a projection.
func (s *Store) Set(projection, marker string, x, y float64) {
	m, ok := s.data[projection]
	if !ok {
		m = make(map[string]Point)
		s.data[projection] = m
	}
	m[marker] = Point{X: x, Y: y}
}

// Save writes the store back to its file.
func (s *Store) Save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("writing annotations: %w", err)
	}
	return nil
}

// Projections returns the sorted projection IDs present in the store.
func (s *Store) Projections() []string {
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Projection returns the marker points of one projection in sorted marker-ID
// order. Sorting keeps the marker ordering consistent across projections,
// which the downstream observation tables require.
func (s *Store) Projection(projection string) []Point {
	m := s.data[projection]
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// Data assembles the observation table for the given projections, converting
// every annotated pixel to detector-frame coordinates. Every projection must
// carry the same number of markers.
func (s *Store) Data(projections []string, det geom.Detector) (xray.Data, error) {
	out := make(xray.Data, 0, len(projections))
	want := -1
	for _, id := range projections {
		points := s.Projection(id)
		if len(points) == 0 {
			return nil, fmt.Errorf("annotate: projection %q has no annotations", id)
		}
		if want == -1 {
			want = len(points)
		} else if len(points) != want {
			return nil, fmt.Errorf("annotate: projection %q has %d markers, expected %d", id, len(points), want)
		}

		row := make([]xray.Observation, len(points))
		for j, p := range points {
			u, v := PixelToDetector(p, det)
			row[j] = xray.Observation{U: u, V: v}
		}
		out = append(out, row)
	}
	return out, nil
}

// PixelToDetector converts an image-frame pixel to detector-frame
// coordinates. In the detector convention the midpoint is (0, 0), the
// vertical axis points up and the observer frame is flipped left-right, so
// the image's vertical axis is reverted and both axes are re-centred and
// scaled by the pixel pitch.
func PixelToDetector(p Point, det geom.Detector) (u, v float64) {
	u = -(p.X - float64(det.Rows)/2) * det.PixelWidth
	v = (float64(det.Cols)/2 - p.Y) * det.PixelHeight
	return u, v
}
