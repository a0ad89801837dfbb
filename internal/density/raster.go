package density

import (
	"math"
	"math/rand/v2"

	"github.com/sells-group/crowdcount/internal/model"
)

// Defaults for Rasterize.
const (
	DefaultResolution = 2
	DefaultCeiling    = 5.0
)

// ClampJitter randomizes the display ceiling by picking one of Choices for each
// raster. It exists for parity with an older display variant and is off unless
// configured. ClampJitter is immutable; generators come from NewRand.
type ClampJitter struct {
	Choices []float64
	Seed    uint64
}

// NewRand returns a generator owned by one caller. The same seed and stream
// always produce the same sequence.
func (j *ClampJitter) NewRand(stream uint64) *rand.Rand {
	if j == nil || len(j.Choices) == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(j.Seed, stream))
}

func (j *ClampJitter) ceiling(base float64, rng *rand.Rand) float64 {
	if j == nil || len(j.Choices) == 0 {
		return base
	}
	if rng == nil {
		rng = j.NewRand(0)
	}
	return j.Choices[rng.IntN(len(j.Choices))]
}

// RasterOptions configures Rasterize.
type RasterOptions struct {
	// Resolution is the number of grid cells per coordinate unit.
	Resolution int
	// Ceiling saturates cell values.
	Ceiling float64
	// Jitter, when set, replaces Ceiling with a randomly chosen value.
	Jitter *ClampJitter
	// Rand draws the jittered ceiling. It must not be shared between
	// goroutines. Nil uses a fresh generator from Jitter.NewRand(0).
	Rand *rand.Rand
}

func (o RasterOptions) withDefaults() RasterOptions {
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
	if o.Ceiling <= 0 {
		o.Ceiling = DefaultCeiling
	}
	return o
}

// Rasterize writes samples into a zeroed grid covering crop. Row indices are
// flipped so grid row 0 holds the samples nearest the crop's bottom edge.
// Samples sharing a cell overwrite each other in input order. Values are
// clamped to [0, ceiling] and rounded to one decimal.
func Rasterize(samples []model.DensitySample, crop model.Crop, opts RasterOptions) *model.DensityGrid {
	opts = opts.withDefaults()
	res := float64(opts.Resolution)

	rows := int(math.Max(crop.Height(), 0) * res)
	cols := int(math.Max(crop.Width(), 0) * res)

	cells := make([][]float64, rows)
	for i := range cells {
		cells[i] = make([]float64, cols)
	}

	ceiling := opts.Jitter.ceiling(opts.Ceiling, opts.Rand)
	for _, s := range samples {
		if !crop.Contains(s.X, s.Y) {
			continue
		}
		i := int((s.Y - crop.Top) * res)
		j := int((s.X - crop.Left) * res)
		if i < 0 || i >= rows || j < 0 || j >= cols {
			continue
		}
		cells[rows-i-1][j] = clamp(s.Value, ceiling)
	}

	return &model.DensityGrid{Crop: crop, Resolution: opts.Resolution, Cells: cells}
}

func clamp(v, ceiling float64) float64 {
	v = math.Max(0, math.Min(v, ceiling))
	return math.Round(v*10) / 10
}
