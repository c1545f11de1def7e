package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"
)

// BlobCache is a read-through cache of blobs keyed by id. Entries expire on
// their own; blobs do not change once created so nothing invalidates them.
type BlobCache struct {
	store Store
	ttl   time.Duration
}

func NewBlobCache(store Store, ttl time.Duration) *BlobCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &BlobCache{store: store, ttl: ttl}
}

func blobKey(id string) string {
	return "blob:" + id
}

// Get returns the cached blob for id, or nil when there is none.
func (c *BlobCache) Get(ctx context.Context, id string) (*blob.Blob, error) {
	raw, ok, err := c.store.Get(ctx, blobKey(id))
	if err != nil || !ok {
		return nil, err
	}

	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode cached blob %s: %w", id, err)
	}
	b, err := blob.FromMap(m)
	if err != nil {
		return nil, fmt.Errorf("rebuild cached blob %s: %w", id, err)
	}
	return b, nil
}

// Set caches b under id. A non-positive ttl selects the default.
func (c *BlobCache) Set(ctx context.Context, id string, b *blob.Blob, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(b.ToMap())
	if err != nil {
		return err
	}
	return c.store.Set(ctx, blobKey(id), string(data), ttl)
}
