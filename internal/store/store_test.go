package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crowdcount/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func at(h, m, s int) time.Time {
	return time.Date(2024, 6, 1, h, m, s, 0, time.UTC)
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertAndQueryWindow", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		v := 4.0

		n, err := s.InsertObservations(ctx, "stadium", []model.Observation{
			{ID: "a", Timestamp: at(9, 59, 59), Camera: "cam1", Counts: map[string]float64{"plaza": 1}},
			{ID: "b", Timestamp: at(10, 0, 0), Camera: "cam1", Position: "north", Count: &v},
			{ID: "c", Timestamp: at(10, 30, 15), Camera: "cam2", Counts: map[string]float64{"plaza": 2.5, "gate": 1}},
			{ID: "d", Timestamp: at(11, 0, 0), Camera: "cam1", Counts: map[string]float64{"plaza": 3}},
		})
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		obs, err := s.QueryObservations(ctx, "stadium", at(10, 0, 0), at(11, 0, 0))
		require.NoError(t, err)
		require.Len(t, obs, 2)

		byID := map[string]model.Observation{}
		for _, o := range obs {
			byID[o.ID] = o
		}
		require.Contains(t, byID, "b")
		require.Contains(t, byID, "c")
		assert.Equal(t, at(10, 0, 0), byID["b"].Timestamp)
		assert.Equal(t, "north", byID["b"].Position)
		require.NotNil(t, byID["b"].Count)
		assert.Equal(t, 4.0, *byID["b"].Count)
		assert.Equal(t, map[string]float64{"plaza": 2.5, "gate": 1}, byID["c"].Counts)
		assert.Equal(t, "stadium", byID["c"].ProjectID)
	})

	t.Run("InsertSkipsDuplicates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		obs := []model.Observation{{ID: "a", Timestamp: at(10, 0, 0), Camera: "cam1", Counts: map[string]float64{"plaza": 1}}}

		n, err := s.InsertObservations(ctx, "stadium", obs)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.InsertObservations(ctx, "stadium", obs)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("QueryOtherProjectEmpty", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.InsertObservations(ctx, "stadium", []model.Observation{{ID: "a", Timestamp: at(10, 0, 0), Camera: "cam1"}})
		require.NoError(t, err)

		obs, err := s.QueryObservations(ctx, "arena", at(0, 0, 0), at(23, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, obs)
	})

	t.Run("PutAndGetProject", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := &model.Project{
			ID:    "stadium",
			Name:  "Stadium",
			Key:   "secret",
			Areas: map[string]model.Area{"plaza": {Name: "Plaza", Capacity: 50}},
			Cameras: map[string]map[string]model.Position{
				"cam1": {"north": {Crops: map[string]model.Crop{"plaza": {Left: 0, Top: 0, Right: 10, Bottom: 5}}}},
			},
		}
		require.NoError(t, s.PutProject(ctx, p))

		got, err := s.GetProject(ctx, "stadium")
		require.NoError(t, err)
		assert.Equal(t, "secret", got.Key)
		assert.Equal(t, 50, got.Capacity())
		assert.Equal(t, "plaza", got.AreaFor("cam1", "north"))

		p.Name = "Renamed"
		require.NoError(t, s.PutProject(ctx, p))
		got, err = s.GetProject(ctx, "stadium")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
	})

	t.Run("GetProjectNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProject(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestMemoryStore(t *testing.T) {
	storeTestSuite(t, func(*testing.T) Store { return NewMemory() })
}

func TestBlobName(t *testing.T) {
	assert.Equal(t, "rec-1.json", BlobName("rec-1"))
}
