// Package dashboard answers project dashboard queries: occupancy series,
// density maps, summary figures and map markers. Every answer is recomputed
// from the record and blob stores.
package dashboard

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/density"
	"github.com/sells-group/crowdcount/internal/metrics"
	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/store"
	"github.com/sells-group/crowdcount/internal/timeseries"
)

// Request selects a project, a day and optionally a subset of its areas.
type Request struct {
	ProjectID string
	Key       string
	// Date is the calendar day to report on. Zero means today.
	Date time.Time
	// Until, when set, cuts the window off after this time of day.
	Until *time.Duration
	// Areas limits the result to these areas. Empty means all project areas.
	Areas []string
}

// Options configures a Service.
type Options struct {
	Projects store.ProjectStore
	Records  store.ObservationStore
	// Blobs may be nil when density maps are not served.
	Blobs    store.BlobStore
	Pipeline timeseries.Config
	Raster   density.RasterOptions
	// Concurrency bounds parallel blob lookups in one density request.
	Concurrency int
	Metrics     *metrics.Metrics
	// Now overrides the clock used for requests without a date.
	Now func() time.Time
}

// Service orchestrates the stores and the pipelines.
type Service struct {
	projects    store.ProjectStore
	records     store.ObservationStore
	blobs       store.BlobStore
	pipeline    *timeseries.Pipeline
	raster      density.RasterOptions
	concurrency int
	metrics     *metrics.Metrics
	now         func() time.Time
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		projects:    opts.Projects,
		records:     opts.Records,
		blobs:       opts.Blobs,
		pipeline:    timeseries.New(opts.Pipeline),
		raster:      opts.Raster,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
}

// Authorize loads the project and checks its access key.
func (s *Service) Authorize(ctx context.Context, projectID, key string) (*model.Project, error) {
	if projectID == "" || key == "" {
		return nil, ErrUnauthorized
	}
	p, err := s.projects.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: load project %s", projectID)
	}
	if p.Key == "" || subtle.ConstantTimeCompare([]byte(p.Key), []byte(key)) != 1 {
		return nil, ErrUnauthorized
	}
	return p, nil
}

// SeriesResult is an occupancy series with the project it was computed for
// and the display name of each of its areas.
type SeriesResult struct {
	Project string            `json:"project"`
	Names   map[string]string `json:"names"`
	*model.AreaSeries
}

// Series returns the smoothed per-area occupancy series for the request.
func (s *Service) Series(ctx context.Context, req Request) (*SeriesResult, error) {
	start := time.Now()
	p, areas, w, obs, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	series, err := s.series(p, areas, w, obs)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePipeline("series", time.Since(start))

	names := make(map[string]string, len(series.Areas))
	for _, a := range series.Areas {
		names[a] = p.DisplayName(a)
	}
	return &SeriesResult{Project: p.ID, Names: names, AreaSeries: series}, nil
}

func (s *Service) series(p *model.Project, areas []string, w timeseries.Window, obs []model.Observation) (*model.AreaSeries, error) {
	series, err := s.pipeline.Run(obs, areas, p, w)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, eris.Wrapf(ErrNoData, "project %s", p.ID)
	}
	return series, nil
}

// load authorizes the request, validates its areas and fetches the window's
// readings. It returns ErrNoData when the window is empty.
func (s *Service) load(ctx context.Context, req Request) (*model.Project, []string, timeseries.Window, []model.Observation, error) {
	p, err := s.Authorize(ctx, req.ProjectID, req.Key)
	if err != nil {
		return nil, nil, timeseries.Window{}, nil, err
	}

	areas, err := resolveAreas(p, req.Areas)
	if err != nil {
		return nil, nil, timeseries.Window{}, nil, err
	}

	date := req.Date
	if date.IsZero() {
		now := s.now()
		date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	w := s.pipeline.Window(date, req.Until)

	obs, err := s.records.QueryObservations(ctx, p.ID, w.Start, w.End)
	if err != nil {
		return nil, nil, w, nil, eris.Wrapf(err, "dashboard: query observations %s", p.ID)
	}
	if len(obs) == 0 {
		return nil, nil, w, nil, eris.Wrapf(ErrNoData, "project %s on %s", p.ID, date.Format(timeseries.DateLayout))
	}

	s.metrics.AddObservations(len(obs))
	zap.L().Debug("dashboard: loaded observations",
		zap.String("project", p.ID),
		zap.Time("from", w.Start),
		zap.Time("to", w.End),
		zap.Int("count", len(obs)),
	)
	return p, areas, w, obs, nil
}

// resolveAreas defaults to every project area and rejects unknown names.
func resolveAreas(p *model.Project, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return p.AreaNames(), nil
	}
	out := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, a := range requested {
		if !p.HasArea(a) {
			return nil, eris.Wrapf(ErrMalformedInput, "unknown area %q", a)
		}
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out, nil
}
