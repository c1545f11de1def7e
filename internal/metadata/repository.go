// Package metadata keeps the blob_trackers table: the durable index of which
// blobs exist, how large they are and which backend holds them.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/storage"
)

var ErrNotFound = errors.New("blob tracker not found")

// Lookup selects where Find takes the backend tag from.
type Lookup string

const (
	// LookupConfig resolves the backend from the live configuration.
	LookupConfig Lookup = "config"
	// LookupRecord resolves the backend from the tracker row.
	LookupRecord Lookup = "record"
)

// ParseLookup accepts "config", "record" or the empty string.
func ParseLookup(s string) (Lookup, error) {
	switch Lookup(s) {
	case "", LookupConfig:
		return LookupConfig, nil
	case LookupRecord:
		return LookupRecord, nil
	}
	return "", fmt.Errorf("unknown lookup mode %q", s)
}

// Record is one tracker row.
type Record struct {
	ID          string
	Size        int64
	StorageType blob.StorageType
	CreatedAt   time.Time
}

// StrategyFactory resolves a storage tag to a backend.
type StrategyFactory interface {
	Create(ctx context.Context, storageType string) (storage.Strategy, error)
}

// StorageConfig reports the active storage tag.
type StorageConfig interface {
	StorageType() string
}

type Repository struct {
	db      *sql.DB
	factory StrategyFactory
	config  StorageConfig
	lookup  Lookup
}

type Option func(*Repository)

func WithLookup(l Lookup) Option {
	return func(r *Repository) {
		r.lookup = l
	}
}

func NewRepository(db *sql.DB, factory StrategyFactory, config StorageConfig, opts ...Option) *Repository {
	r := &Repository{
		db:      db,
		factory: factory,
		config:  config,
		lookup:  LookupConfig,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save upserts the tracker row for b and returns b unchanged.
func (r *Repository) Save(ctx context.Context, b *blob.Blob) (*blob.Blob, error) {
	if b.StorageType() == "" {
		return nil, fmt.Errorf("tracker for %s: storage type must not be empty", b.ID())
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO blob_trackers(id, size, storage_type, created_at)
		 VALUES($1, $2, $3, $4)
		 ON CONFLICT(id) DO UPDATE SET
		 	size=excluded.size,
		 	storage_type=excluded.storage_type,
		 	created_at=excluded.created_at`,
		b.ID(), b.Size(), string(b.StorageType()), b.CreatedAt().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert tracker %s: %w", b.ID(), err)
	}
	return b, nil
}

// Record returns the tracker row for id without touching any backend.
func (r *Repository) Record(ctx context.Context, id string) (*Record, error) {
	var (
		rec         Record
		storageType string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, size, storage_type, created_at FROM blob_trackers WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Size, &storageType, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tracker %s: %w", id, err)
	}
	rec.StorageType = blob.StorageType(storageType)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// Find loads the tracker row, reads the payload from the resolved backend
// and combines both into a Blob. The Blob carries the row's storage tag.
func (r *Repository) Find(ctx context.Context, id string) (*blob.Blob, error) {
	rec, err := r.Record(ctx, id)
	if err != nil {
		return nil, err
	}

	storageType := r.config.StorageType()
	if r.lookup == LookupRecord {
		storageType = string(rec.StorageType)
	}

	strategy, err := r.factory.Create(ctx, storageType)
	if err != nil {
		return nil, err
	}

	payload, err := strategy.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}

	return blob.New(id, payload.Data,
		blob.WithSize(payload.Size),
		blob.WithCreatedAt(payload.CreatedAt),
		blob.WithStorageType(rec.StorageType),
	)
}

// List returns every tracker row ordered by id.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, size, storage_type, created_at FROM blob_trackers ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec         Record
			storageType string
		)
		if err := rows.Scan(&rec.ID, &rec.Size, &storageType, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tracker: %w", err)
		}
		rec.StorageType = blob.StorageType(storageType)
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
