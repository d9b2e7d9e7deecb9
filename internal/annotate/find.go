package annotate

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// FindMarkers locates up to n high-absorption (dark) blobs in a projection
// image and returns their pixel centres, darkest first. Candidates closer
// than minSeparation pixels to an already accepted marker are suppressed so
// one blob never yields two annotations. The result is a starting point for
// annotation, not a precise detection.
func FindMarkers(img image.Image, n int, minSeparation float64) []Point {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	type candidate struct {
		x, y      int
		intensity uint8
	}
	candidates := make([]candidate, 0, w*h/16)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := grayAt(gray, x, y)
			// Keep only local minima; flat background never qualifies.
			if v < grayAt(gray, x-1, y) && v <= grayAt(gray, x+1, y) &&
				v < grayAt(gray, x, y-1) && v <= grayAt(gray, x, y+1) {
				candidates = append(candidates, candidate{x: x, y: y, intensity: v})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].intensity < candidates[j].intensity
	})

	out := make([]Point, 0, n)
	for _, c := range candidates {
		if len(out) == n {
			break
		}
		ok := true
		for _, p := range out {
			if math.Hypot(float64(c.x)-p.X, float64(c.y)-p.Y) < minSeparation {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, refineCentre(gray, c.x, c.y))
		}
	}
	return out
}

// LoadImage opens a projection image from disk.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading projection image: %w", err)
	}
	return img, nil
}

// refineCentre shifts a marker centre to the intensity-weighted centroid of
// darkness in a small window around the seed pixel.
func refineCentre(gray *image.NRGBA, cx, cy int) Point {
	const r = 3
	bounds := gray.Bounds()

	var sumW, sumX, sumY float64
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
				continue
			}
			weight := 255 - float64(grayAt(gray, x, y))
			sumW += weight
			sumX += weight * float64(x)
			sumY += weight * float64(y)
		}
	}
	if sumW == 0 {
		return Point{X: float64(cx), Y: float64(cy)}
	}
	return Point{X: sumX / sumW, Y: sumY / sumW}
}

func grayAt(img *image.NRGBA, x, y int) uint8 {
	return img.NRGBAAt(x, y).R
}
