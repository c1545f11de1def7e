package cache

import (
	"context"
	"time"
)

// Idempotency records which request tokens already produced a blob. The
// exists check and the later mark are separate operations, so two concurrent
// calls with the same unseen token may both proceed.
type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &Idempotency{store: store, ttl: ttl}
}

func idempotencyKey(token string) string {
	return "idempotency:" + token
}

func (i *Idempotency) Exists(ctx context.Context, token string) (bool, error) {
	return i.store.Exists(ctx, idempotencyKey(token))
}

// MarkProcessed associates token with blobID for the configured TTL.
func (i *Idempotency) MarkProcessed(ctx context.Context, token string, blobID string) error {
	return i.store.Set(ctx, idempotencyKey(token), blobID, i.ttl)
}

// BlobID returns the blob id recorded for token.
func (i *Idempotency) BlobID(ctx context.Context, token string) (string, bool, error) {
	return i.store.Get(ctx, idempotencyKey(token))
}
