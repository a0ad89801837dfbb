package timeseries

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crowdcount/internal/model"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := model.ParseTimestamp(s)
	require.NoError(t, err)
	return v
}

func counts(t *testing.T, id, at, camera string, areaCounts map[string]float64) model.Observation {
	t.Helper()
	return model.Observation{ID: id, Timestamp: ts(t, at), Camera: camera, Counts: areaCounts}
}

func scalar(t *testing.T, id, at, camera, position string, v float64) model.Observation {
	t.Helper()
	return model.Observation{ID: id, Timestamp: ts(t, at), Camera: camera, Position: position, Count: &v}
}

func TestRegularize_AveragesWithinMinute(t *testing.T) {
	obs := []model.Observation{
		counts(t, "a", "2024-06-01T10:00:00", "cam1", map[string]float64{"plaza": 10}),
		counts(t, "b", "2024-06-01T10:00:30", "cam1", map[string]float64{"plaza": 20}),
	}

	r, err := Regularizer{GroupBy: model.GroupByCamera}.Regularize(obs, []string{"plaza"}, nil, Window{})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Grid.Minutes)
	assert.Equal(t, ts(t, "2024-06-01T10:00:00"), r.Grid.Start)
	assert.Equal(t, []float64{15}, r.Series["plaza"]["cam1"])
}

func TestRegularize_FloorsNotRounds(t *testing.T) {
	obs := []model.Observation{
		counts(t, "a", "2024-06-01T10:00:59", "cam1", map[string]float64{"plaza": 4}),
		counts(t, "b", "2024-06-01T10:01:00", "cam1", map[string]float64{"plaza": 8}),
	}

	r, err := Regularizer{GroupBy: model.GroupByCamera}.Regularize(obs, []string{"plaza"}, nil, Window{})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 8}, r.Series["plaza"]["cam1"])
}

func TestRegularize_ForwardAndBackwardFill(t *testing.T) {
	obs := []model.Observation{
		counts(t, "a", "2024-06-01T10:00:00", "cam1", map[string]float64{"plaza": 5}),
		counts(t, "b", "2024-06-01T10:02:00", "cam2", map[string]float64{"plaza": 7}),
		counts(t, "c", "2024-06-01T10:04:00", "cam1", map[string]float64{"plaza": 9}),
	}

	r, err := Regularizer{GroupBy: model.GroupByCamera}.Regularize(obs, []string{"plaza"}, nil, Window{})
	require.NoError(t, err)

	assert.Equal(t, 5, r.Grid.Minutes)
	assert.Equal(t, []float64{5, 5, 5, 5, 9}, r.Series["plaza"]["cam1"])
	assert.Equal(t, []float64{7, 7, 7, 7, 7}, r.Series["plaza"]["cam2"])
}

func TestRegularize_FillCapZeroesDropout(t *testing.T) {
	obs := []model.Observation{
		counts(t, "a", "2024-06-01T10:00:00", "cam1", map[string]float64{"plaza": 3}),
		counts(t, "b", "2024-06-01T10:05:00", "cam2", map[string]float64{"plaza": 1}),
	}

	r, err := Regularizer{GroupBy: model.GroupByCamera, FillCap: 2}.Regularize(obs, []string{"plaza"}, nil, Window{})
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 3, 3, 0, 0, 0}, r.Series["plaza"]["cam1"])
	assert.Equal(t, []float64{0, 0, 0, 1, 1, 1}, r.Series["plaza"]["cam2"])
}

func TestRegularize_IdempotentOnRegularInput(t *testing.T) {
	values := []float64{4, 6, 6, 9, 2}
	var obs []model.Observation
	start := ts(t, "2024-06-01T08:00:00")
	for i, v := range values {
		obs = append(obs, model.Observation{
			ID:        string(rune('a' + i)),
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Camera:    "cam1",
			Counts:    map[string]float64{"plaza": v},
		})
	}

	reg := Regularizer{GroupBy: model.GroupByCamera, FillCap: 10}
	r, err := reg.Regularize(obs, []string{"plaza"}, nil, Window{})
	require.NoError(t, err)
	assert.Equal(t, values, r.Series["plaza"]["cam1"])

	// Feed the regular output back in; it must come out unchanged.
	var again []model.Observation
	for i, v := range r.Series["plaza"]["cam1"] {
		again = append(again, model.Observation{
			Timestamp: r.Grid.At(i),
			Camera:    "cam1",
			Counts:    map[string]float64{"plaza": v},
		})
	}
	r2, err := reg.Regularize(again, []string{"plaza"}, nil, Window{})
	require.NoError(t, err)
	assert.Equal(t, r.Series, r2.Series)
}

func TestRegularize_MissingMapKeyCountsAsZero(t *testing.T) {
	obs := []model.Observation{
		counts(t, "a", "2024-06-01T10:00:00", "cam1", map[string]float64{"plaza": 10, "gate": 4}),
		counts(t, "b", "2024-06-01T10:00:20", "cam1", map[string]float64{"plaza": 20}),
	}

	r, err := Regularizer{GroupBy: model.GroupByCamera}.Regularize(obs, []string{"plaza", "gate"}, nil, Window{})
	require.NoError(t, err)
	assert.Equal(t, []float64{15}, r.Series["plaza"]["cam1"])
	assert.Equal(t, []float64{2}, r.Series["gate"]["cam1"])
}

func TestRegularize_ScalarCountsUseProjectAssignment(t *testing.T) {
	project := &model.Project{
		Cameras: map[string]map[string]model.Position{
			"cam1": {
				"north": {Crops: map[string]model.Crop{"plaza": {Right: 10, Bottom: 10}}},
				"south": {Area: "gate"},
			},
		},
	}
	obs := []model.Observation{
		scalar(t, "a", "2024-06-01T10:00:00", "cam1", "north", 6),
		scalar(t, "b", "2024-06-01T10:00:00", "cam1", "south", 2),
		scalar(t, "c", "2024-06-01T10:00:00", "cam1", "unknown", 99),
	}

	r, err := Regularizer{GroupBy: model.GroupByPosition}.Regularize(obs, []string{"plaza", "gate"}, project, Window{})
	require.NoError(t, err)
	assert.Equal(t, []float64{6}, r.Series["plaza"]["cam1/north"])
	assert.Equal(t, []float64{2}, r.Series["gate"]["cam1/south"])
	assert.Len(t, r.Series, 2)
}

func TestRegularize_IgnoresUnrequestedAreasAndWindow(t *testing.T) {
	w := NewWindow(ts(t, "2024-06-01T00:00:00"), nil, 0)
	obs := []model.Observation{
		counts(t, "a", "2024-05-31T23:59:00", "cam1", map[string]float64{"plaza": 100}),
		counts(t, "b", "2024-06-01T09:00:00", "cam1", map[string]float64{"plaza": 1, "other": 50}),
	}

	r, err := Regularizer{GroupBy: model.GroupByCamera}.Regularize(obs, []string{"plaza"}, nil, w)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Grid.Minutes)
	assert.Equal(t, []float64{1}, r.Series["plaza"]["cam1"])
	assert.NotContains(t, r.Series, "other")
}

func TestRegularize_EmptyIsNoData(t *testing.T) {
	_, err := Regularizer{}.Regularize(nil, []string{"plaza"}, nil, Window{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestFill_AllMissing(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, fill(make([]*float64, 3), 5))
}
