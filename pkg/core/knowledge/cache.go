package knowledge

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// IndexCache stores built indexes. Keys come from the Indexer and cover the
// document hash, the embedding model and the chunk layout.
type IndexCache interface {
	Get(ctx context.Context, key string) (*Index, bool, error)
	Put(ctx context.Context, key string, ix *Index) error
}

// MemoryCache keeps indexes in process for a fixed TTL.
type MemoryCache struct {
	c *cache.Cache
}

// NewMemoryCache creates a cache. ttl <= 0 keeps entries until evicted.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryCache{c: cache.New(ttl, 10*time.Minute)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*Index, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.(*Index), true, nil
}

func (m *MemoryCache) Put(_ context.Context, key string, ix *Index) error {
	m.c.SetDefault(key, ix)
	return nil
}

// Len is the number of live entries.
func (m *MemoryCache) Len() int { return m.c.ItemCount() }

// Tiered consults caches in order and backfills the faster tiers on a hit.
type Tiered []IndexCache

func (t Tiered) Get(ctx context.Context, key string) (*Index, bool, error) {
	for i, c := range t {
		ix, ok, err := c.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			for _, faster := range t[:i] {
				_ = faster.Put(ctx, key, ix)
			}
			return ix, true, nil
		}
	}
	return nil, false, nil
}

func (t Tiered) Put(ctx context.Context, key string, ix *Index) error {
	for _, c := range t {
		if err := c.Put(ctx, key, ix); err != nil {
			return err
		}
	}
	return nil
}
