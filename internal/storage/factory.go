package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/JuribaDev/juriba-storage/internal/blob"
)

// FactoryConfig carries the per-backend configuration bundles.
type FactoryConfig struct {
	S3        S3Config
	LocalPath string
	DB        *sql.DB
	S3Options []S3Option
}

// Factory resolves a storage tag to its backend. Each backend is built the
// first time it is asked for and reused afterwards; a failed construction is
// retried on the next call.
type Factory struct {
	cfg FactoryConfig

	mu       sync.Mutex
	backends map[blob.StorageType]Strategy
}

func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{
		cfg:      cfg,
		backends: make(map[blob.StorageType]Strategy, len(blob.StorageTypes)),
	}
}

// Create matches storageType case-insensitively against the supported tags.
// An unknown tag fails with ErrUnsupportedType before anything is built.
func (f *Factory) Create(ctx context.Context, storageType string) (Strategy, error) {
	t, err := blob.ParseStorageType(storageType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, storageType)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.backends[t]; ok {
		return s, nil
	}

	var s Strategy
	switch t {
	case blob.StorageS3:
		s, err = NewS3Storage(ctx, f.cfg.S3, f.cfg.S3Options...)
	case blob.StorageDatabase:
		s, err = NewDatabaseStorage(f.cfg.DB)
	case blob.StorageLocal:
		s, err = NewLocalFileStorage(f.cfg.LocalPath)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s storage: %w", t, err)
	}

	f.backends[t] = s
	return s, nil
}
