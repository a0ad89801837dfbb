package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/store"
)

const jsonlInput = `{"id":"r1","timestamp":"2024-06-01T10:00:00","camera":"cam1","position":"north","count":12,"density":[[1,2,0.5],[3,4,1.5]]}
{"id":"r2","timestamp":"2024-06-01T10:00:30.250","camera":"cam1","position":"north","count":14}

{"timestamp":"2024-06-01T10:01:00","camera":"cam2","counts":{"plaza":3,"gate":1}}
`

const arrayInput = `[
  {"id":"a1","timestamp":"2024-06-01 10:00:00","camera":"cam1","count":2},
  {"id":"a2","timestamp":"2024-06-01T10:02:00","camera":"cam1","count":4}
]`

func TestDecode_JSONLines(t *testing.T) {
	recs, err := Decode(strings.NewReader(jsonlInput))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "r1", recs[0].Observation.ID)
	require.NotNil(t, recs[0].Observation.Count)
	assert.InDelta(t, 12, *recs[0].Observation.Count, 1e-9)
	assert.Equal(t, []model.DensitySample{{X: 1, Y: 2, Value: 0.5}, {X: 3, Y: 4, Value: 1.5}}, recs[0].Density)

	assert.Equal(t, 250*time.Millisecond, time.Duration(recs[1].Observation.Timestamp.Nanosecond()))
	assert.Empty(t, recs[1].Density)

	assert.Equal(t, map[string]float64{"plaza": 3, "gate": 1}, recs[2].Observation.Counts)
}

func TestDecode_Array(t *testing.T) {
	recs, err := Decode(strings.NewReader(arrayInput))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), recs[0].Observation.Timestamp)
}

func TestDecode_Empty(t *testing.T) {
	recs, err := Decode(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDecode_BadTimestamp(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"id":"x","timestamp":"yesterday","camera":"c"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
}

func TestDecode_BadDensity(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"id":"x","timestamp":"2024-06-01T10:00:00","camera":"c","density":[[1,2]]}`))
	assert.Error(t, err)
}

func TestCharsetReader_Latin1(t *testing.T) {
	in := "{\"timestamp\":\"2024-06-01T10:00:00\",\"camera\":\"caf\xe9\",\"count\":1}"
	r, err := CharsetReader(strings.NewReader(in), "iso-8859-1")
	require.NoError(t, err)

	recs, err := Decode(r)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "caf\u00e9", recs[0].Observation.Camera)
}

func TestCharsetReader_Unknown(t *testing.T) {
	_, err := CharsetReader(strings.NewReader(""), "klingon")
	assert.Error(t, err)
}

func TestNormalizeKey(t *testing.T) {
	decomposed := "cafe\u0301"
	assert.Equal(t, "caf\u00e9", NormalizeKey(" "+decomposed+" "))
}

func TestPrepare(t *testing.T) {
	recs := []Record{
		{Observation: model.Observation{ID: "keep", Camera: "came\u0301"}},
		{Observation: model.Observation{Counts: map[string]float64{"cafe\u0301": 1, "caf\u00e9": 2}}},
	}
	Prepare("p1", recs)

	assert.Equal(t, "keep", recs[0].Observation.ID)
	assert.Equal(t, "cam\u00e9", recs[0].Observation.Camera)
	assert.Equal(t, "p1", recs[0].Observation.ProjectID)

	_, err := uuid.Parse(recs[1].Observation.ID)
	assert.NoError(t, err)
	assert.Equal(t, map[string]float64{"caf\u00e9": 3}, recs[1].Observation.Counts)
}

func TestImport_WritesObservationsAndBlobs(t *testing.T) {
	ctx := context.Background()
	obs := store.NewMemory()
	blobs := store.NewMemoryBlobs()

	recs, err := Decode(strings.NewReader(jsonlInput))
	require.NoError(t, err)

	im := &Importer{Observations: obs, Blobs: blobs, BatchSize: 2}
	res, err := im.Import(ctx, "plaza-project", recs)
	require.NoError(t, err)
	assert.Equal(t, Result{Read: 3, Inserted: 3, BlobsWritten: 1}, res)

	got, err := obs.QueryObservations(ctx, "plaza-project",
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	samples, err := blobs.GetBlob(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestImport_DuplicatesSkipped(t *testing.T) {
	ctx := context.Background()
	obs := store.NewMemory()
	im := &Importer{Observations: obs}

	recs, err := Decode(strings.NewReader(arrayInput))
	require.NoError(t, err)
	_, err = im.Import(ctx, "p", recs)
	require.NoError(t, err)

	recs, err = Decode(strings.NewReader(arrayInput))
	require.NoError(t, err)
	res, err := im.Import(ctx, "p", recs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Read)
	assert.Equal(t, 0, res.Inserted)
}

func TestImport_NoBlobWriter(t *testing.T) {
	recs, err := Decode(strings.NewReader(jsonlInput))
	require.NoError(t, err)

	im := &Importer{Observations: store.NewMemory()}
	res, err := im.Import(context.Background(), "p", recs)
	require.NoError(t, err)
	assert.Equal(t, 1, res.BlobsSkipped)
	assert.Equal(t, 0, res.BlobsWritten)
}

type failingWriter struct{}

func (failingWriter) InsertObservations(context.Context, string, []model.Observation) (int, error) {
	return 0, eris.New("boom")
}

func TestImport_WriterError(t *testing.T) {
	recs, err := Decode(strings.NewReader(arrayInput))
	require.NoError(t, err)

	im := &Importer{Observations: failingWriter{}}
	_, err = im.Import(context.Background(), "p", recs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestImport_RequiresProject(t *testing.T) {
	im := &Importer{Observations: store.NewMemory()}
	_, err := im.Import(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(jsonlInput), 0o644))

	im := &Importer{Observations: store.NewMemory(), Blobs: store.NewMemoryBlobs()}
	res, err := im.ImportFile(context.Background(), "p", path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	_, err = im.ImportFile(context.Background(), "p", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
