package ingest

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/store"
)

const (
	defaultBatchSize   = 500
	defaultConcurrency = 4
)

// Importer writes decoded records to the record store and, when Blobs is set,
// their density samples to the blob store.
type Importer struct {
	Observations store.ObservationWriter
	Blobs        store.BlobWriter
	BatchSize    int
	Concurrency  int
	Charset      string
}

// Result counts what an import did.
type Result struct {
	Read         int
	Inserted     int
	BlobsWritten int
	BlobsSkipped int
}

// Prepare normalizes keys, stamps the project id, and assigns a UUID to
// records without one.
func Prepare(projectID string, records []Record) {
	for i := range records {
		o := &records[i].Observation
		normalizeObservation(o)
		o.ProjectID = projectID
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
	}
}

// ImportFile decodes path and imports its records into projectID.
func (im *Importer) ImportFile(ctx context.Context, projectID, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r, err := CharsetReader(f, im.Charset)
	if err != nil {
		return Result{}, err
	}
	records, err := Decode(r)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: %s", path)
	}
	return im.Import(ctx, projectID, records)
}

// Import writes records in batches. Batches run concurrently; the first
// failing batch cancels the rest.
func (im *Importer) Import(ctx context.Context, projectID string, records []Record) (Result, error) {
	if im.Observations == nil {
		return Result{}, eris.New("ingest: no observation writer")
	}
	if projectID == "" {
		return Result{}, eris.New("ingest: project id is required")
	}

	Prepare(projectID, records)

	res := Result{Read: len(records)}
	if len(records) == 0 {
		return res, nil
	}

	size := im.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	limit := im.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	log := zap.L().With(zap.String("project", projectID), zap.Int("records", len(records)))

	var inserted, written, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for start := 0; start < len(records); start += size {
		batch := records[start:min(start+size, len(records))]
		g.Go(func() error {
			obs := make([]model.Observation, len(batch))
			for i, rec := range batch {
				obs[i] = rec.Observation
			}
			n, err := im.Observations.InsertObservations(gctx, projectID, obs)
			if err != nil {
				return eris.Wrap(err, "ingest: insert observations")
			}
			inserted.Add(int64(n))

			for _, rec := range batch {
				if len(rec.Density) == 0 {
					continue
				}
				if im.Blobs == nil {
					skipped.Add(1)
					continue
				}
				if err := im.Blobs.PutBlob(gctx, rec.Observation.ID, rec.Density); err != nil {
					return eris.Wrapf(err, "ingest: write blob for %s", rec.Observation.ID)
				}
				written.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	res.Inserted = int(inserted.Load())
	res.BlobsWritten = int(written.Load())
	res.BlobsSkipped = int(skipped.Load())
	if err != nil {
		return res, err
	}

	if res.BlobsSkipped > 0 {
		log.Warn("blob store is read-only, density samples dropped", zap.Int("skipped", res.BlobsSkipped))
	}
	log.Info("import complete",
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Read-res.Inserted),
		zap.Int("blobs", res.BlobsWritten),
	)
	return res, nil
}
