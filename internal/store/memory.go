package store

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
)

// MemoryStore is an in-process Store used by tests and one-shot CLI runs.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]model.Project
	obs      map[string][]model.Observation
	ids      map[string]struct{}
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]model.Project),
		obs:      make(map[string][]model.Observation),
		ids:      make(map[string]struct{}),
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func (m *MemoryStore) QueryObservations(_ context.Context, projectID string, from, to time.Time) ([]model.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Observation
	for _, o := range m.obs[projectID] {
		if !o.Timestamp.Before(from) && o.Timestamp.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertObservations(_ context.Context, projectID string, obs []model.Observation) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, o := range obs {
		if o.ID == "" {
			return inserted, eris.New("store: observation id is required")
		}
		if _, dup := m.ids[o.ID]; dup {
			continue
		}
		m.ids[o.ID] = struct{}{}
		o.ProjectID = projectID
		m.obs[projectID] = append(m.obs[projectID], o)
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) GetProject(_ context.Context, projectID string) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[projectID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: get project %s", projectID)
	}
	return &p, nil
}

func (m *MemoryStore) PutProject(_ context.Context, p *model.Project) error {
	if p == nil || p.ID == "" {
		return eris.New("memory: project id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

// MemoryBlobStore keeps density blobs in memory.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]model.DensitySample
}

// NewMemoryBlobs returns an empty MemoryBlobStore.
func NewMemoryBlobs() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]model.DensitySample)}
}

func (m *MemoryBlobStore) GetBlob(_ context.Context, recordID string) ([]model.DensitySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.blobs[recordID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: get blob %s", BlobName(recordID))
	}
	return s, nil
}

func (m *MemoryBlobStore) PutBlob(_ context.Context, recordID string, samples []model.DensitySample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[recordID] = samples
	return nil
}
