// Package density merges per-camera density samples into one raster per area.
package density

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
)

// ErrNoCrops is returned when an area has no camera crops to merge.
var ErrNoCrops = eris.New("density: no crop rectangles")

// MergeCrops returns the bounding rectangle of all crops.
func MergeCrops(crops []model.Crop) (model.Crop, error) {
	if len(crops) == 0 {
		return model.Crop{}, ErrNoCrops
	}
	out := crops[0]
	for _, c := range crops[1:] {
		out.Left = math.Min(out.Left, c.Left)
		out.Top = math.Min(out.Top, c.Top)
		out.Right = math.Max(out.Right, c.Right)
		out.Bottom = math.Max(out.Bottom, c.Bottom)
	}
	return out, nil
}

// BoundsOf returns the integer bounding box of the samples, with the right and
// bottom edges one unit past the furthest sample. It reports false when there
// are no samples.
func BoundsOf(samples []model.DensitySample) (model.Crop, bool) {
	if len(samples) == 0 {
		return model.Crop{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range samples {
		minX = math.Min(minX, s.X)
		minY = math.Min(minY, s.Y)
		maxX = math.Max(maxX, s.X)
		maxY = math.Max(maxY, s.Y)
	}
	return model.Crop{
		Left:   math.Trunc(minX),
		Top:    math.Trunc(minY),
		Right:  math.Trunc(maxX) + 1,
		Bottom: math.Trunc(maxY) + 1,
	}, true
}

// FilterSamples keeps the samples inside the closed crop rectangle.
func FilterSamples(samples []model.DensitySample, crop model.Crop) []model.DensitySample {
	out := make([]model.DensitySample, 0, len(samples))
	for _, s := range samples {
		if crop.Contains(s.X, s.Y) {
			out = append(out, s)
		}
	}
	return out
}
