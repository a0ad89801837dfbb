package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
)

// ErrNotFound is returned when a project or blob does not exist.
var ErrNotFound = eris.New("store: not found")

// ObservationStore is the record store: detector readings for one project.
type ObservationStore interface {
	// QueryObservations returns the project's readings with from <= timestamp < to,
	// in no particular order.
	QueryObservations(ctx context.Context, projectID string, from, to time.Time) ([]model.Observation, error)
}

// ObservationWriter inserts readings. Readings whose id already exists are skipped.
type ObservationWriter interface {
	InsertObservations(ctx context.Context, projectID string, obs []model.Observation) (int, error)
}

// ProjectStore yields project metadata.
type ProjectStore interface {
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
}

// ProjectWriter creates or replaces project metadata.
type ProjectWriter interface {
	PutProject(ctx context.Context, p *model.Project) error
}

// BlobStore yields the density samples stored for a record.
type BlobStore interface {
	// GetBlob returns ErrNotFound when the record has no density blob.
	GetBlob(ctx context.Context, recordID string) ([]model.DensitySample, error)
}

// BlobWriter stores density samples for a record.
type BlobWriter interface {
	PutBlob(ctx context.Context, recordID string, samples []model.DensitySample) error
}

// Store is a database holding both readings and project metadata.
type Store interface {
	ObservationStore
	ObservationWriter
	ProjectStore
	ProjectWriter

	Migrate(ctx context.Context) error
	Close() error
}

// BlobName derives the blob name for a record id.
func BlobName(recordID string) string {
	return recordID + ".json"
}
