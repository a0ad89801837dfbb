package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Crop is a rectangle of the shared coordinate frame. It is written as a
// [left, top, right, bottom] array in project metadata.
type Crop struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the horizontal extent of the rectangle.
func (c Crop) Width() float64 { return c.Right - c.Left }

// Height returns the vertical extent of the rectangle.
func (c Crop) Height() float64 { return c.Bottom - c.Top }

// Contains reports whether (x, y) lies inside the closed rectangle.
func (c Crop) Contains(x, y float64) bool {
	return x >= c.Left && x <= c.Right && y >= c.Top && y <= c.Bottom
}

// Array returns the crop as [left, top, right, bottom].
func (c Crop) Array() [4]float64 {
	return [4]float64{c.Left, c.Top, c.Right, c.Bottom}
}

func cropFromSlice(v []float64) (Crop, error) {
	if len(v) != 4 {
		return Crop{}, eris.Errorf("model: crop needs 4 values, got %d", len(v))
	}
	return Crop{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

// MarshalJSON writes the crop as a 4-element array.
func (c Crop) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Array())
}

// UnmarshalJSON accepts either a 4-element array or an object.
func (c *Crop) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		crop, err := cropFromSlice(arr)
		if err != nil {
			return err
		}
		*c = crop
		return nil
	}
	type plain Crop
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return eris.Wrap(err, "model: decode crop")
	}
	*c = Crop(p)
	return nil
}

// UnmarshalYAML accepts either a sequence or a mapping.
func (c *Crop) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var arr []float64
		if err := node.Decode(&arr); err != nil {
			return eris.Wrap(err, "model: decode crop")
		}
		crop, err := cropFromSlice(arr)
		if err != nil {
			return err
		}
		*c = crop
		return nil
	}
	var m struct {
		Left   float64 `yaml:"left"`
		Top    float64 `yaml:"top"`
		Right  float64 `yaml:"right"`
		Bottom float64 `yaml:"bottom"`
	}
	if err := node.Decode(&m); err != nil {
		return eris.Wrap(err, "model: decode crop")
	}
	*c = Crop{Left: m.Left, Top: m.Top, Right: m.Right, Bottom: m.Bottom}
	return nil
}

// DensitySample is a point intensity reading in pixel coordinates local to one
// camera position. Blobs store samples as [x, y, value] triples.
type DensitySample struct {
	X     float64
	Y     float64
	Value float64
}

// MarshalJSON writes the sample as an [x, y, value] triple.
func (s DensitySample) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{s.X, s.Y, s.Value})
}

// UnmarshalJSON reads an [x, y, value] triple.
func (s *DensitySample) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "model: decode density sample")
	}
	if len(v) != 3 {
		return eris.Errorf("model: density sample needs 3 values, got %d", len(v))
	}
	*s = DensitySample{X: v[0], Y: v[1], Value: v[2]}
	return nil
}

// DensityGrid is a rasterized intensity field over a crop. Cells is indexed
// [row][col]; row 0 holds the samples nearest the crop's bottom edge.
type DensityGrid struct {
	Crop       Crop        `json:"crop"`
	Resolution int         `json:"resolution"`
	Cells      [][]float64 `json:"cells"`
}

// Rows returns the number of grid rows.
func (g *DensityGrid) Rows() int { return len(g.Cells) }

// Cols returns the number of grid columns.
func (g *DensityGrid) Cols() int {
	if len(g.Cells) == 0 {
		return 0
	}
	return len(g.Cells[0])
}

// Max returns the largest cell value, or 0 for an empty grid.
func (g *DensityGrid) Max() float64 {
	var m float64
	for _, row := range g.Cells {
		for _, v := range row {
			if v > m {
				m = v
			}
		}
	}
	return m
}
