// Package cache provides the key/value store shared by all workers, the
// read-through blob cache and the idempotency marker service built on it.
package cache

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultCacheTTL       = time.Hour
	DefaultIdempotencyTTL = 24 * time.Hour
)

// Store is a key/value store with per-key expiry. Implementations must make
// each single-key operation atomic.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Config is the cache and idempotency bundle of the process configuration.
type Config struct {
	URL            string
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
}

// Open returns an in-process store for memory:// URLs and a Redis-backed
// store otherwise.
func Open(ctx context.Context, rawURL string) (Store, error) {
	if rawURL == "" || strings.HasPrefix(rawURL, "memory://") {
		return NewMemoryStore(), nil
	}
	return NewRedisStore(ctx, rawURL)
}
