package model

import "sort"

// Project describes a monitored venue: its areas and the cameras covering them.
type Project struct {
	ID      string                         `json:"id" yaml:"id"`
	Name    string                         `json:"name" yaml:"name"`
	Key     string                         `json:"key" yaml:"key"`
	Lat     float64                        `json:"lat" yaml:"lat"`
	Lon     float64                        `json:"lon" yaml:"lon"`
	Areas   map[string]Area                `json:"areas" yaml:"areas"`
	Cameras map[string]map[string]Position `json:"cameras" yaml:"cameras"`
}

// Area is a named monitored zone.
type Area struct {
	Name     string  `json:"name" yaml:"name"`
	Capacity int     `json:"capacity" yaml:"capacity"`
	Lat      float64 `json:"lat" yaml:"lat"`
	Lon      float64 `json:"lon" yaml:"lon"`
}

// Position is one mounting position of a camera. Crops maps each area the
// position can see to the rectangle of the shared frame it covers.
type Position struct {
	Area  string          `json:"area,omitempty" yaml:"area,omitempty"`
	Crops map[string]Crop `json:"crops,omitempty" yaml:"crops,omitempty"`
}

// PositionRef identifies a camera position covering an area.
type PositionRef struct {
	Camera   string
	Position string
	Crop     Crop
}

// Capacity returns the summed capacity of all areas with a positive capacity.
func (p *Project) Capacity() int {
	total := 0
	for _, a := range p.Areas {
		if a.Capacity > 0 {
			total += a.Capacity
		}
	}
	return total
}

// AreaNames returns the project's area keys in sorted order.
func (p *Project) AreaNames() []string {
	names := make([]string, 0, len(p.Areas))
	for k := range p.Areas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// HasArea reports whether name is a configured area.
func (p *Project) HasArea(name string) bool {
	_, ok := p.Areas[name]
	return ok
}

// AreaFor returns the area a scalar reading from camera/position is attributed
// to: the explicit assignment, else the only area the position has a crop for.
// It returns "" when the reading cannot be attributed.
func (p *Project) AreaFor(camera, position string) string {
	positions, ok := p.Cameras[camera]
	if !ok {
		return ""
	}
	pos, ok := positions[position]
	if !ok {
		return ""
	}
	if pos.Area != "" {
		return pos.Area
	}
	if len(pos.Crops) == 1 {
		for area := range pos.Crops {
			return area
		}
	}
	return ""
}

// PositionsFor returns every camera position with a crop for area, ordered by
// camera then position.
func (p *Project) PositionsFor(area string) []PositionRef {
	var refs []PositionRef
	for camera, positions := range p.Cameras {
		for name, pos := range positions {
			if crop, ok := pos.Crops[area]; ok {
				refs = append(refs, PositionRef{Camera: camera, Position: name, Crop: crop})
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Camera != refs[j].Camera {
			return refs[i].Camera < refs[j].Camera
		}
		return refs[i].Position < refs[j].Position
	})
	return refs
}

// DisplayName returns the area's display name, falling back to its key.
func (p *Project) DisplayName(area string) string {
	if a, ok := p.Areas[area]; ok && a.Name != "" {
		return a.Name
	}
	return area
}
