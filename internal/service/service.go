// Package service coordinates the blob backends, the tracker repository, the
// read-through cache and the idempotency markers behind two operations:
// StoreBlob and FindBlob.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/storage"
)

// Error kinds reported to callers. Distinct root causes collapse into one
// kind; the cause text is kept in the message for diagnostics only.
var (
	ErrInvalidBlobData = errors.New("invalid blob data")
	ErrBlobNotFound    = errors.New("blob not found")
	ErrBlobStorage     = errors.New("blob storage error")
)

type StorageConfig interface {
	StorageType() string
}

type StrategyFactory interface {
	Create(ctx context.Context, storageType string) (storage.Strategy, error)
}

type Repository interface {
	Save(ctx context.Context, b *blob.Blob) (*blob.Blob, error)
	Find(ctx context.Context, id string) (*blob.Blob, error)
}

type Cache interface {
	Get(ctx context.Context, id string) (*blob.Blob, error)
	Set(ctx context.Context, id string, b *blob.Blob, ttl time.Duration) error
}

type Idempotency interface {
	Exists(ctx context.Context, token string) (bool, error)
	MarkProcessed(ctx context.Context, token string, blobID string) error
}

type BlobService struct {
	config      StorageConfig
	factory     StrategyFactory
	repo        Repository
	cache       Cache
	idempotency Idempotency
}

func NewBlobService(config StorageConfig, factory StrategyFactory, repo Repository, cache Cache, idempotency Idempotency) *BlobService {
	return &BlobService{
		config:      config,
		factory:     factory,
		repo:        repo,
		cache:       cache,
		idempotency: idempotency,
	}
}

func kindError(kind error, cause error) error {
	return fmt.Errorf("%w: %v", kind, cause)
}

// StoreBlob persists data under id. A token that was already processed
// replays the earlier result through FindBlob without storing again. An
// empty token disables the replay check.
func (s *BlobService) StoreBlob(ctx context.Context, id string, data string, token string) (*blob.Blob, error) {
	if token != "" {
		seen, err := s.idempotency.Exists(ctx, token)
		if err != nil {
			slog.Error("check idempotency token", "id", id, "err", err)
			return nil, kindError(ErrBlobStorage, err)
		}
		if seen {
			slog.Info("replaying stored blob", "id", id)
			return s.FindBlob(ctx, id)
		}
	}

	storageType := strings.ToLower(strings.TrimSpace(s.config.StorageType()))
	b, err := blob.New(id, data, blob.WithStorageType(blob.StorageType(storageType)))
	if err != nil {
		return nil, kindError(ErrInvalidBlobData, err)
	}

	if err := s.persist(ctx, b, token); err != nil {
		slog.Error("store blob", "id", id, "storage_type", storageType, "err", err)
		return nil, kindError(ErrBlobStorage, err)
	}

	slog.Info("stored blob", "id", id, "storage_type", storageType, "size", b.Size())
	return b, nil
}

func (s *BlobService) persist(ctx context.Context, b *blob.Blob, token string) error {
	strategy, err := s.factory.Create(ctx, string(b.StorageType()))
	if err != nil {
		return err
	}
	if err := strategy.Store(ctx, b); err != nil {
		return err
	}
	if _, err := s.repo.Save(ctx, b); err != nil {
		return err
	}
	if token != "" {
		if err := s.idempotency.MarkProcessed(ctx, token, b.ID()); err != nil {
			return err
		}
	}
	return nil
}

// FindBlob returns the blob for id from the cache or, on a miss, from the
// repository, populating the cache afterwards.
func (s *BlobService) FindBlob(ctx context.Context, id string) (*blob.Blob, error) {
	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		slog.Warn("read blob cache", "id", id, "err", err)
	}
	if cached != nil {
		return cached, nil
	}

	b, err := s.repo.Find(ctx, id)
	if err != nil {
		slog.Debug("find blob", "id", id, "err", err)
		return nil, kindError(ErrBlobNotFound, err)
	}

	if err := s.cache.Set(ctx, id, b, 0); err != nil {
		slog.Warn("populate blob cache", "id", id, "err", err)
	}
	return b, nil
}
