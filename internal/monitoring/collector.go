// Package monitoring watches live projects for capacity breaches and silent
// cameras and reports them to a webhook.
package monitoring

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/store"
	"github.com/sells-group/crowdcount/internal/timeseries"
)

// Snapshot is a point-in-time view of one project's feed.
type Snapshot struct {
	Project string `json:"project"`
	Name    string `json:"name"`

	// Readings counts the records inside the lookback window.
	Readings    int     `json:"readings"`
	Current     int64   `json:"current"`
	Capacity    int     `json:"capacity"`
	Utilisation float64 `json:"utilisation"`

	// StaleSources lists camera/position pairs without a reading in the
	// stale interval.
	StaleSources []string `json:"stale_sources,omitempty"`

	LookbackMinutes int       `json:"lookback_minutes"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Collector gathers snapshots from the stores.
type Collector struct {
	projects   store.ProjectStore
	records    store.ObservationStore
	pipeline   *timeseries.Pipeline
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. Readings are naive wall-clock values, so
// the clock defaults to the local wall time labelled as UTC.
func NewCollector(projects store.ProjectStore, records store.ObservationStore, pipeline *timeseries.Pipeline, staleAfter time.Duration) *Collector {
	return &Collector{
		projects:   projects,
		records:    records,
		pipeline:   pipeline,
		staleAfter: staleAfter,
		now:        wallClock,
	}
}

func wallClock() time.Time {
	t := time.Now()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Collect builds a snapshot of projectID over the trailing lookback window.
func (c *Collector) Collect(ctx context.Context, projectID string, lookback time.Duration) (*Snapshot, error) {
	p, err := c.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "monitoring: load project %s", projectID)
	}

	now := c.now()
	w := timeseries.Window{Start: now.Add(-lookback), End: now}
	obs, err := c.records.QueryObservations(ctx, p.ID, w.Start, w.End)
	if err != nil {
		return nil, eris.Wrapf(err, "monitoring: query observations %s", p.ID)
	}

	snap := &Snapshot{
		Project:         p.ID,
		Name:            p.Name,
		Readings:        len(obs),
		Capacity:        p.Capacity(),
		LookbackMinutes: int(lookback / time.Minute),
		CollectedAt:     now,
		StaleSources:    c.staleSources(p, obs, now),
	}

	if len(obs) > 0 {
		series, err := c.pipeline.Run(obs, p.AreaNames(), p, w)
		switch {
		case errors.Is(err, timeseries.ErrNoData):
		case err != nil:
			return nil, eris.Wrapf(err, "monitoring: aggregate %s", p.ID)
		default:
			if last, ok := series.Last(); ok {
				snap.Current = last.Total
			}
		}
	}
	if snap.Capacity > 0 {
		snap.Utilisation = math.Round(float64(snap.Current)/float64(snap.Capacity)*1000) / 10
	}
	return snap, nil
}

// staleSources returns the configured camera positions whose latest reading is
// older than staleAfter, sorted.
func (c *Collector) staleSources(p *model.Project, obs []model.Observation, now time.Time) []string {
	if c.staleAfter <= 0 {
		return nil
	}
	latest := make(map[string]time.Time)
	for _, o := range obs {
		key := o.Camera + "/" + o.Position
		if o.Timestamp.After(latest[key]) {
			latest[key] = o.Timestamp
		}
	}

	var stale []string
	for camera, positions := range p.Cameras {
		for position := range positions {
			key := camera + "/" + position
			ts, ok := latest[key]
			if !ok || now.Sub(ts) > c.staleAfter {
				stale = append(stale, key)
			}
		}
	}
	sort.Strings(stale)
	return stale
}
