package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m, err := New("crowdcount")
	require.NoError(t, err)

	m.AddObservations(12)
	m.AddObservations(-1)
	m.SkipSource(SkipNoBlob)
	m.SkipSource(SkipNoBlob)
	m.RecordRequest("series", "ok", 10*time.Millisecond)
	m.ObservePipeline("series", 2*time.Millisecond)

	assert.InDelta(t, 12, testutil.ToFloat64(m.observationsProcessed), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.sourcesSkipped.WithLabelValues(SkipNoBlob)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("series", "ok")), 1e-9)
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New("crowdcount")
	require.NoError(t, err)
	m.RecordRequest("density", "empty", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `crowdcount_requests_total{endpoint="density",outcome="empty"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.AddObservations(1)
	m.SkipSource(SkipNoEntry)
	m.RecordRequest("series", "ok", time.Second)
	m.ObservePipeline("series", time.Second)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
