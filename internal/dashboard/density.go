package dashboard

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crowdcount/internal/density"
	"github.com/sells-group/crowdcount/internal/metrics"
	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/store"
)

// AreaDensity is the density map of one area.
type AreaDensity struct {
	Area string `json:"area"`
	Name string `json:"name"`
	// Crop is the merged rectangle the grid covers.
	Crop model.Crop         `json:"crop"`
	Grid *model.DensityGrid `json:"grid"`
	// Peak is the highest cell value, for scaling the map legend.
	Peak float64 `json:"peak"`
	// Sources counts the camera positions that contributed samples.
	Sources int `json:"sources"`
}

// DensityResult holds one map per area plus the positions that were skipped.
type DensityResult struct {
	Areas   []AreaDensity        `json:"areas"`
	Skipped []*MissingAssetError `json:"skipped,omitempty"`
}

type sourceResult struct {
	samples []model.DensitySample
	skip    *MissingAssetError
}

// Density builds a density map for every requested area from the most recent
// blob of each camera position covering it. Positions without an entry or a
// readable blob are skipped and reported.
func (s *Service) Density(ctx context.Context, req Request) (*DensityResult, error) {
	if s.blobs == nil {
		return nil, eris.New("dashboard: no blob store configured")
	}
	start := time.Now()
	p, areas, w, obs, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	raster := s.raster
	raster.Rand = raster.Jitter.NewRand(jitterStream(p.ID, w.Start))

	result := &DensityResult{Areas: make([]AreaDensity, 0, len(areas))}
	for _, area := range areas {
		refs := p.PositionsFor(area)
		crops := make([]model.Crop, len(refs))
		for i, ref := range refs {
			crops[i] = ref.Crop
		}

		sources, err := s.fetchSources(ctx, area, refs, obs)
		if err != nil {
			return nil, err
		}

		var samples []model.DensitySample
		contributed := 0
		for _, src := range sources {
			if src.skip != nil {
				result.Skipped = append(result.Skipped, src.skip)
				continue
			}
			contributed++
			samples = append(samples, src.samples...)
		}

		crop, err := density.MergeCrops(crops)
		if errors.Is(err, density.ErrNoCrops) {
			var ok bool
			if crop, ok = density.BoundsOf(samples); !ok {
				zap.L().Debug("dashboard: area has no camera crops", zap.String("project", p.ID), zap.String("area", area))
				continue
			}
		}

		grid := density.Rasterize(samples, crop, raster)
		result.Areas = append(result.Areas, AreaDensity{
			Area:    area,
			Name:    p.DisplayName(area),
			Crop:    crop,
			Grid:    grid,
			Peak:    grid.Max(),
			Sources: contributed,
		})
	}

	s.metrics.ObservePipeline("density", time.Since(start))
	return result, nil
}

// jitterStream keys the jitter generator by project and window so repeated
// requests for the same day render the same ceilings.
func jitterStream(projectID string, start time.Time) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(projectID))
	return h.Sum64() ^ uint64(start.Unix())
}

// fetchSources loads the filtered samples of every position covering area.
// Results keep the order of refs.
func (s *Service) fetchSources(ctx context.Context, area string, refs []model.PositionRef, obs []model.Observation) ([]sourceResult, error) {
	results := make([]sourceResult, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			results[i] = s.fetchSource(gctx, area, ref, obs)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "dashboard: fetch density sources")
	}
	return results, nil
}

func (s *Service) fetchSource(ctx context.Context, area string, ref model.PositionRef, obs []model.Observation) sourceResult {
	skip := func(recordID, reason string, err error) sourceResult {
		s.metrics.SkipSource(reason)
		zap.L().Info("dashboard: skipping density source",
			zap.String("area", area),
			zap.String("camera", ref.Camera),
			zap.String("position", ref.Position),
			zap.String("record_id", recordID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return sourceResult{skip: &MissingAssetError{
			Area:     area,
			Camera:   ref.Camera,
			Position: ref.Position,
			RecordID: recordID,
			Reason:   reason,
			Err:      err,
		}}
	}

	id, err := density.LatestEntry(obs, ref.Camera, ref.Position)
	if err != nil {
		return skip("", metrics.SkipNoEntry, err)
	}

	samples, err := s.blobs.GetBlob(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return skip(id, metrics.SkipNoBlob, err)
	case err != nil:
		return skip(id, metrics.SkipBlobError, err)
	}
	return sourceResult{samples: density.FilterSamples(samples, ref.Crop)}
}
