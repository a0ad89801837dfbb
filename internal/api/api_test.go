package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crowdcount/internal/dashboard"
	"github.com/sells-group/crowdcount/internal/density"
	"github.com/sells-group/crowdcount/internal/metrics"
	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/store"
	"github.com/sells-group/crowdcount/internal/timeseries"
)

func testProject() *model.Project {
	return &model.Project{
		ID:   "stadium",
		Name: "Stadium",
		Key:  "secret",
		Lat:  52.0,
		Lon:  4.0,
		Areas: map[string]model.Area{
			"plaza": {Name: "Plaza", Capacity: 100, Lat: 52.001, Lon: 4.002},
			"gate":  {Name: "Gate"},
		},
		Cameras: map[string]map[string]model.Position{
			"cam1": {
				"north": {Crops: map[string]model.Crop{"plaza": {Left: 0, Top: 0, Right: 10, Bottom: 10}}},
				"south": {Area: "gate"},
			},
		},
	}
}

func reading(id string, mm int, position string, v float64) model.Observation {
	return model.Observation{
		ID:        id,
		Timestamp: time.Date(2024, 6, 1, 10, mm, 0, 0, time.UTC),
		Camera:    "cam1",
		Position:  position,
		Count:     &v,
	}
}

type testServer struct {
	handler http.Handler
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

// newTestServerWith lets a test wrap the project store the service reads.
func newTestServerWith(t *testing.T, wrap func(store.ProjectStore) store.ProjectStore) *testServer {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	require.NoError(t, mem.PutProject(ctx, testProject()))
	_, err := mem.InsertObservations(ctx, "stadium", []model.Observation{
		reading("n1", 0, "north", 10),
		reading("s1", 0, "south", 4),
		reading("n2", 1, "north", 12),
		reading("s2", 1, "south", 6),
	})
	require.NoError(t, err)

	blobs := store.NewMemoryBlobs()
	require.NoError(t, blobs.PutBlob(ctx, "n2", []model.DensitySample{{X: 2, Y: 2, Value: 1}, {X: 50, Y: 50, Value: 3}}))

	m, err := metrics.New("test")
	require.NoError(t, err)

	var projects store.ProjectStore = mem
	if wrap != nil {
		projects = wrap(projects)
	}

	svc := dashboard.New(dashboard.Options{
		Projects: projects,
		Records:  mem,
		Blobs:    blobs,
		Pipeline: timeseries.Config{},
		Raster:   density.RasterOptions{Resolution: 2, Ceiling: 5},
		Metrics:  m,
		Now:      func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	return &testServer{handler: NewRouter(Options{Service: svc, Metrics: m}), metrics: m}
}

func (ts *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestRequestID_ReusesIncoming(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New().String()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestSeries(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/api/v1/projects/stadium/series?key=secret&date=2024-06-01")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "stadium", body["project"])
	assert.Equal(t, []any{"gate", "plaza"}, body["areas"])
	assert.Equal(t, map[string]any{"gate": "Gate", "plaza": "Plaza"}, body["names"])

	rows, ok := body["rows"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, rows)
	first := rows[0].(map[string]any)
	assert.Equal(t, "2024-06-01T10:00:00", first["timestamp"])
}

type countingProjects struct {
	store.ProjectStore
	calls atomic.Int32
}

func (c *countingProjects) GetProject(ctx context.Context, id string) (*model.Project, error) {
	c.calls.Add(1)
	return c.ProjectStore.GetProject(ctx, id)
}

func TestSeries_LoadsProjectOnce(t *testing.T) {
	counter := &countingProjects{}
	ts := newTestServerWith(t, func(next store.ProjectStore) store.ProjectStore {
		counter.ProjectStore = next
		return counter
	})

	rec := ts.get(t, "/api/v1/projects/stadium/series?key=secret&date=2024-06-01")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"gate": "Gate", "plaza": "Plaza"}, decode(t, rec)["names"])
	assert.Equal(t, int32(1), counter.calls.Load())
}

func TestSeries_AreaFilter(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/api/v1/projects/stadium/series?key=secret&date=2024-06-01&areas=plaza,%20plaza")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"plaza"}, decode(t, rec)["areas"])
}

func TestSeries_Unauthorized(t *testing.T) {
	ts := newTestServer(t)
	wrong := ts.get(t, "/api/v1/projects/stadium/series?key=nope")
	unknown := ts.get(t, "/api/v1/projects/arena/series?key=secret")

	assert.Equal(t, http.StatusForbidden, wrong.Code)
	assert.Equal(t, http.StatusForbidden, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestSeries_Empty(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/api/v1/projects/stadium/series?key=secret&date=2024-06-02")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "empty", decode(t, rec)["status"])
}

func TestSeries_BadInput(t *testing.T) {
	ts := newTestServer(t)
	for _, q := range []string{
		"date=June",
		"date=2024-06-01&until=25:99",
		"date=2024-06-01&areas=lobby",
	} {
		rec := ts.get(t, "/api/v1/projects/stadium/series?key=secret&"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestDensity(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/api/v1/projects/stadium/density?key=secret&date=2024-06-01&areas=plaza")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res dashboard.DensityResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Areas, 1)
	assert.Equal(t, "plaza", res.Areas[0].Area)
	assert.Equal(t, 1, res.Areas[0].Sources)
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/api/v1/projects/stadium/summary?key=secret&date=2024-06-01")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "Stadium", body["name"])
	assert.Equal(t, float64(100), body["capacity"])
	assert.True(t, strings.HasPrefix(body["at"].(string), "2024-06-01T"))
}

func TestMarkers(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/api/v1/projects/stadium/markers?key=secret&date=2024-06-01")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, "FeatureCollection", body["type"])
	features := body["features"].([]any)
	require.Len(t, features, 1)
}

func TestHomography_Identity(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/api/v1/utils/homography?tl_x=-10&tl_y=-10&tr_x=10&tr_y=-10&br_x=10&br_y=10&bl_x=-10&bl_y=10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Homography [][]float64 `json:"homography"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Homography, 3)
	for i, row := range body.Homography {
		for j, v := range row {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, v, 1e-9)
		}
	}
}

func TestHomography_BadInput(t *testing.T) {
	ts := newTestServer(t)
	missing := ts.get(t, "/api/v1/utils/homography?tl_x=1")
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	collinear := ts.get(t, "/api/v1/utils/homography?tl_x=0&tl_y=0&tr_x=1&tr_y=0&br_x=2&br_y=0&bl_x=3&bl_y=0")
	assert.Equal(t, http.StatusBadRequest, collinear.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.get(t, "/api/v1/projects/stadium/series?key=nope")

	rec := ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_requests_total{endpoint="series",outcome="unauthorized"} 1`)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
