package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/sells-group/crowdcount/internal/model"
)

// CachedProjectStore memoizes project lookups for a short TTL. Misses and
// errors are not cached.
type CachedProjectStore struct {
	next  ProjectStore
	cache *cache.Cache
}

// NewCachedProjects wraps next. A non-positive ttl disables caching and
// returns next unchanged.
func NewCachedProjects(next ProjectStore, ttl time.Duration) ProjectStore {
	if ttl <= 0 {
		return next
	}
	return &CachedProjectStore{next: next, cache: cache.New(ttl, ttl*2)}
}

func (c *CachedProjectStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	if v, ok := c.cache.Get(projectID); ok {
		p := v.(model.Project)
		return &p, nil
	}
	p, err := c.next.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(projectID, *p, cache.DefaultExpiration)
	return p, nil
}
