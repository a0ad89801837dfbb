// Package timeseries turns irregular multi-source crowd counts into smoothed
// per-minute occupancy series.
package timeseries

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
)

// ErrNoData is returned when no observation falls inside the requested window
// for the requested areas.
var ErrNoData = eris.New("timeseries: no observations in window")

// AreaResolver attributes scalar readings to an area. *model.Project
// implements it.
type AreaResolver interface {
	AreaFor(camera, position string) string
}

// Grid is a contiguous run of minutes starting at Start.
type Grid struct {
	Start   time.Time
	Minutes int
}

// At returns the timestamp of minute i.
func (g Grid) At(i int) time.Time {
	return g.Start.Add(time.Duration(i) * time.Minute)
}

// Index returns the position of t on the grid.
func (g Grid) Index(t time.Time) int {
	return int(t.Sub(g.Start) / time.Minute)
}

// SourceSeries maps a source key to its per-minute values on a Grid.
type SourceSeries map[string][]float64

// Regularized holds one complete per-minute series per (area, source).
type Regularized struct {
	Grid   Grid
	Series map[string]SourceSeries
}

// Sources returns the source keys contributing to area, sorted.
func (r *Regularized) Sources(area string) []string {
	keys := make([]string, 0, len(r.Series[area]))
	for k := range r.Series[area] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Regularizer floors readings to the minute, averages duplicates per source
// and fills every gap so each (area, source) pair has a value for every minute.
type Regularizer struct {
	GroupBy model.GroupBy
	// FillCap bounds how many minutes a known value may be carried into a gap.
	// Minutes beyond the cap read as 0. Zero means unlimited.
	FillCap int
}

type cellKey struct {
	area   string
	source string
	minute time.Time
}

type accum struct {
	sum float64
	n   int
}

// Regularize builds the per-minute grid for the requested areas. Observations
// outside w are ignored; an empty result yields ErrNoData.
func (r Regularizer) Regularize(obs []model.Observation, areas []string, resolver AreaResolver, w Window) (*Regularized, error) {
	requested := make(map[string]bool, len(areas))
	for _, a := range areas {
		requested[a] = true
	}

	obs = w.Filter(obs)

	// Areas each map-reporting source covers anywhere in the window. A reading
	// from such a source that omits one of them counts as 0 for that area.
	mapAreas := make(map[string]map[string]bool)
	for _, o := range obs {
		if len(o.Counts) == 0 {
			continue
		}
		src := o.SourceKey(r.GroupBy)
		for area := range o.Counts {
			if !requested[area] {
				continue
			}
			if mapAreas[src] == nil {
				mapAreas[src] = make(map[string]bool)
			}
			mapAreas[src][area] = true
		}
	}

	cells := make(map[cellKey]*accum)
	add := func(area, src string, minute time.Time, v float64) {
		k := cellKey{area: area, source: src, minute: minute}
		a, ok := cells[k]
		if !ok {
			a = &accum{}
			cells[k] = a
		}
		a.sum += v
		a.n++
	}

	var first, last time.Time
	for _, o := range obs {
		src := o.SourceKey(r.GroupBy)
		minute := o.Timestamp.Truncate(time.Minute)
		added := false

		switch {
		case len(o.Counts) > 0:
			for area := range mapAreas[src] {
				add(area, src, minute, o.Counts[area])
				added = true
			}
		case o.Count != nil && resolver != nil:
			area := resolver.AreaFor(o.Camera, o.Position)
			if requested[area] {
				add(area, src, minute, *o.Count)
				added = true
			}
		}

		if !added {
			continue
		}
		if first.IsZero() || minute.Before(first) {
			first = minute
		}
		if last.IsZero() || minute.After(last) {
			last = minute
		}
	}

	if len(cells) == 0 {
		return nil, ErrNoData
	}

	grid := Grid{Start: first, Minutes: int(last.Sub(first)/time.Minute) + 1}

	known := make(map[string]map[string][]*float64)
	for k, a := range cells {
		if known[k.area] == nil {
			known[k.area] = make(map[string][]*float64)
		}
		vals, ok := known[k.area][k.source]
		if !ok {
			vals = make([]*float64, grid.Minutes)
			known[k.area][k.source] = vals
		}
		mean := a.sum / float64(a.n)
		vals[grid.Index(k.minute)] = &mean
	}

	out := &Regularized{Grid: grid, Series: make(map[string]SourceSeries, len(known))}
	for area, bySource := range known {
		out.Series[area] = make(SourceSeries, len(bySource))
		for src, vals := range bySource {
			out.Series[area][src] = fill(vals, r.FillCap)
		}
	}
	return out, nil
}

// fill completes a sparse minute series. Gaps take the most recent known
// value, leading minutes take the first known value, and either reach is
// bounded by limit (0 = unlimited). Anything left over is 0.
func fill(vals []*float64, limit int) []float64 {
	out := make([]float64, len(vals))

	firstIdx := -1
	for i, v := range vals {
		if v != nil {
			firstIdx = i
			break
		}
	}
	if firstIdx < 0 {
		return out
	}

	lastIdx := -1
	for i, v := range vals {
		switch {
		case v != nil:
			out[i] = *v
			lastIdx = i
		case lastIdx >= 0:
			if limit == 0 || i-lastIdx <= limit {
				out[i] = out[lastIdx]
			}
		default:
			if limit == 0 || firstIdx-i <= limit {
				out[i] = *vals[firstIdx]
			}
		}
	}
	return out
}
