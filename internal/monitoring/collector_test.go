package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/store"
	"github.com/sells-group/crowdcount/internal/timeseries"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testProject() *model.Project {
	return &model.Project{
		ID:   "stadium",
		Name: "Stadium",
		Key:  "secret",
		Areas: map[string]model.Area{
			"plaza": {Name: "Plaza", Capacity: 20},
		},
		Cameras: map[string]map[string]model.Position{
			"cam1": {"north": {Area: "plaza"}},
			"cam2": {"east": {Area: "plaza"}},
		},
	}
}

func reading(id string, ago time.Duration, camera, position string, v float64) model.Observation {
	return model.Observation{
		ID:        id,
		Timestamp: testNow.Add(-ago),
		Camera:    camera,
		Position:  position,
		Count:     &v,
	}
}

func newTestCollector(t *testing.T, obs []model.Observation) *Collector {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.PutProject(ctx, testProject()))
	if len(obs) > 0 {
		_, err := mem.InsertObservations(ctx, "stadium", obs)
		require.NoError(t, err)
	}
	c := NewCollector(mem, mem, timeseries.New(timeseries.Config{}), 15*time.Minute)
	c.now = func() time.Time { return testNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	c := newTestCollector(t, []model.Observation{
		reading("a", 3*time.Minute, "cam1", "north", 18),
		reading("b", 2*time.Minute, "cam1", "north", 18),
		reading("c", 40*time.Minute, "cam2", "east", 2),
	})

	snap, err := c.Collect(context.Background(), "stadium", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "Stadium", snap.Name)
	assert.Equal(t, 3, snap.Readings)
	assert.Equal(t, 20, snap.Capacity)
	assert.Equal(t, 60, snap.LookbackMinutes)
	assert.Equal(t, testNow, snap.CollectedAt)
	assert.Equal(t, []string{"cam2/east"}, snap.StaleSources)
	assert.Positive(t, snap.Current)
	assert.InDelta(t, float64(snap.Current)/20*100, snap.Utilisation, 0.05)
}

func TestCollector_NoReadings(t *testing.T) {
	c := newTestCollector(t, nil)

	snap, err := c.Collect(context.Background(), "stadium", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, snap.Readings)
	assert.Zero(t, snap.Current)
	assert.Equal(t, []string{"cam1/north", "cam2/east"}, snap.StaleSources)
}

func TestCollector_StaleDisabled(t *testing.T) {
	c := newTestCollector(t, nil)
	c.staleAfter = 0

	snap, err := c.Collect(context.Background(), "stadium", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, snap.StaleSources)
}

func TestCollector_UnknownProject(t *testing.T) {
	c := newTestCollector(t, nil)
	_, err := c.Collect(context.Background(), "arena", time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
