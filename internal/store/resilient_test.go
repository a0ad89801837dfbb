package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/resilience"
)

type flakyBlobs struct {
	failures int
	calls    int
	err      error
}

func (f *flakyBlobs) GetBlob(_ context.Context, id string) ([]model.DensitySample, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.failures {
		return nil, resilience.NewTransientError(errors.New("blob: status 503"), 503)
	}
	return []model.DensitySample{{X: 1, Y: 1, Value: 1}}, nil
}

func testPolicy() *resilience.Policy {
	return resilience.NewPolicy("test",
		resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1},
		resilience.CircuitBreakerConfig{FailureThreshold: 10, ResetTimeout: time.Second},
	)
}

func TestResilientBlobs_RetriesTransient(t *testing.T) {
	next := &flakyBlobs{failures: 2}
	s := WithBlobPolicy(next, testPolicy())

	got, err := s.GetBlob(context.Background(), "rec")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, next.calls)
}

func TestResilientBlobs_NotFoundNotRetried(t *testing.T) {
	next := &flakyBlobs{err: ErrNotFound}
	s := WithBlobPolicy(next, testPolicy())

	_, err := s.GetBlob(context.Background(), "rec")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 1, next.calls)
}

func TestResilientProjects_NilPolicyPassesThrough(t *testing.T) {
	next := &countingProjects{}
	p, err := WithProjectPolicy(next, nil).GetProject(context.Background(), "stadium")
	require.NoError(t, err)
	assert.Equal(t, "stadium", p.ID)
	assert.Equal(t, 1, next.calls)
}

func TestResilientObservations_Query(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	_, err := mem.InsertObservations(ctx, "stadium", []model.Observation{{ID: "a", Timestamp: at(10, 0, 0), Camera: "cam1"}})
	require.NoError(t, err)

	obs, err := WithObservationPolicy(mem, testPolicy()).QueryObservations(ctx, "stadium", at(0, 0, 0), at(23, 0, 0))
	require.NoError(t, err)
	assert.Len(t, obs, 1)
}
