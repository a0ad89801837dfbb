package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
)

// FSBlobStore reads density blobs from <dir>/<recordID>.json.
type FSBlobStore struct {
	dir string
}

// NewFSBlobs returns a blob store rooted at dir. The directory is created on
// the first write.
func NewFSBlobs(dir string) *FSBlobStore {
	return &FSBlobStore{dir: dir}
}

func (s *FSBlobStore) path(recordID string) (string, error) {
	name := BlobName(recordID)
	if recordID == "" || filepath.Base(name) != name {
		return "", eris.Errorf("fs blob: invalid record id %q", recordID)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *FSBlobStore) GetBlob(_ context.Context, recordID string) ([]model.DensitySample, error) {
	p, err := s.path(recordID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "fs blob: %s", BlobName(recordID))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fs blob: read %s", p)
	}
	return decodeBlob(data, recordID)
}

func (s *FSBlobStore) PutBlob(_ context.Context, recordID string, samples []model.DensitySample) error {
	p, err := s.path(recordID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "fs blob: mkdir %s", s.dir)
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return eris.Wrapf(err, "fs blob: encode %s", recordID)
	}
	return eris.Wrapf(os.WriteFile(p, data, 0o644), "fs blob: write %s", p)
}

func decodeBlob(data []byte, recordID string) ([]model.DensitySample, error) {
	var samples []model.DensitySample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, eris.Wrapf(err, "blob: decode %s", BlobName(recordID))
	}
	return samples, nil
}
