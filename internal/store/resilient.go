package store

import (
	"context"
	"time"

	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/resilience"
)

// ResilientObservations retries transient record store failures behind a
// circuit breaker.
type ResilientObservations struct {
	next   ObservationStore
	policy *resilience.Policy
}

// WithObservationPolicy wraps next with p.
func WithObservationPolicy(next ObservationStore, p *resilience.Policy) *ResilientObservations {
	return &ResilientObservations{next: next, policy: p}
}

func (r *ResilientObservations) QueryObservations(ctx context.Context, projectID string, from, to time.Time) ([]model.Observation, error) {
	return resilience.Call(ctx, r.policy, "query_observations", func(ctx context.Context) ([]model.Observation, error) {
		return r.next.QueryObservations(ctx, projectID, from, to)
	})
}

// ResilientProjects retries transient project store failures behind a
// circuit breaker.
type ResilientProjects struct {
	next   ProjectStore
	policy *resilience.Policy
}

// WithProjectPolicy wraps next with p.
func WithProjectPolicy(next ProjectStore, p *resilience.Policy) *ResilientProjects {
	return &ResilientProjects{next: next, policy: p}
}

func (r *ResilientProjects) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	return resilience.Call(ctx, r.policy, "get_project", func(ctx context.Context) (*model.Project, error) {
		return r.next.GetProject(ctx, projectID)
	})
}

// ResilientBlobs retries transient blob store failures behind a circuit
// breaker. ErrNotFound is returned as is.
type ResilientBlobs struct {
	next   BlobStore
	policy *resilience.Policy
}

// WithBlobPolicy wraps next with p.
func WithBlobPolicy(next BlobStore, p *resilience.Policy) *ResilientBlobs {
	return &ResilientBlobs{next: next, policy: p}
}

func (r *ResilientBlobs) GetBlob(ctx context.Context, recordID string) ([]model.DensitySample, error) {
	return resilience.Call(ctx, r.policy, "get_blob", func(ctx context.Context) ([]model.DensitySample, error) {
		return r.next.GetBlob(ctx, recordID)
	})
}
