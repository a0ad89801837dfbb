package dashboard

import (
	"context"
	"math"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/crowdcount/internal/model"
)

// Summary holds the headline figures of a day.
type Summary struct {
	Project string    `json:"project"`
	Name    string    `json:"name"`
	At      time.Time `json:"-"`
	Current int64     `json:"current"`
	Maximum int64     `json:"maximum"`
	Average int64     `json:"average"`
	Minimum int64     `json:"minimum"`
	// Capacity sums the positive area capacities.
	Capacity int `json:"capacity"`
	// Utilisation is Current as a percentage of Capacity, 0 without capacity.
	Utilisation float64          `json:"utilisation"`
	Latest      map[string]int64 `json:"latest"`
}

// Summary reports current, maximum, average and minimum totals of the day.
// Average is the mean total truncated toward zero.
func (s *Service) Summary(ctx context.Context, req Request) (*Summary, error) {
	start := time.Now()
	p, areas, w, obs, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	series, err := s.series(p, areas, w, obs)
	if err != nil {
		return nil, err
	}

	out := summarize(p, series)
	s.metrics.ObservePipeline("summary", time.Since(start))
	return out, nil
}

func summarize(p *model.Project, series *model.AreaSeries) *Summary {
	totals := series.Totals()
	last, _ := series.Last()

	out := &Summary{
		Project:  p.ID,
		Name:     p.Name,
		At:       last.Timestamp,
		Current:  last.Total,
		Maximum:  math.MinInt64,
		Minimum:  math.MaxInt64,
		Capacity: p.Capacity(),
		Latest:   make(map[string]int64, len(series.Areas)),
	}
	var sum int64
	for _, t := range totals {
		out.Maximum = max(out.Maximum, t)
		out.Minimum = min(out.Minimum, t)
		sum += t
	}
	out.Average = sum / int64(len(totals))
	if out.Capacity > 0 {
		out.Utilisation = math.Round(float64(out.Current)/float64(out.Capacity)*1000) / 10
	}
	for _, area := range series.Areas {
		out.Latest[area] = last.Values[area]
	}
	return out
}

// Markers returns a GeoJSON feature collection with one point per located
// area, carrying the area's latest smoothed count.
func (s *Service) Markers(ctx context.Context, req Request) (*geojson.FeatureCollection, error) {
	start := time.Now()
	p, areas, w, obs, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	series, err := s.series(p, areas, w, obs)
	if err != nil {
		return nil, err
	}

	fc := markers(p, series)
	s.metrics.ObservePipeline("markers", time.Since(start))
	return fc, nil
}

func markers(p *model.Project, series *model.AreaSeries) *geojson.FeatureCollection {
	last, _ := series.Last()
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(series.Areas))}
	for _, area := range series.Areas {
		a := p.Areas[area]
		if a.Lat == 0 && a.Lon == 0 {
			continue
		}
		pt := geom.NewPointFlat(geom.XY, []float64{a.Lon, a.Lat})
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       area,
			Geometry: pt,
			Properties: map[string]any{
				"area":     area,
				"name":     p.DisplayName(area),
				"count":    last.Values[area],
				"capacity": a.Capacity,
			},
		})
	}
	if p.Lat != 0 || p.Lon != 0 {
		fc.BBox = geom.NewBounds(geom.XY).Extend(geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}))
		for _, f := range fc.Features {
			fc.BBox.Extend(f.Geometry)
		}
	}
	return fc
}
