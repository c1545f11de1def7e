package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"
)

// DatabaseStorage keeps payload bytes in the stored_blobs table. The same
// statements run against SQLite and PostgreSQL.
type DatabaseStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewDatabaseStorage(db *sql.DB) (*DatabaseStorage, error) {
	if db == nil {
		return nil, errors.New("database storage requires a database handle")
	}
	return &DatabaseStorage{db: db, now: time.Now}, nil
}

func (s *DatabaseStorage) Type() blob.StorageType {
	return blob.StorageDatabase
}

// Store upserts the row for b. created_at is written on first insert only.
func (s *DatabaseStorage) Store(ctx context.Context, b *blob.Blob) error {
	raw, err := b.Bytes()
	if err != nil {
		return fmt.Errorf("decoding blob %s: %w", b.ID(), err)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stored_blobs(id, data, size, created_at, updated_at)
		 VALUES($1, $2, $3, $4, $5)
		 ON CONFLICT(id) DO UPDATE SET
		 	data=excluded.data,
		 	size=excluded.size,
		 	updated_at=excluded.updated_at`,
		b.ID(), raw, len(raw), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert stored blob %s: %w", b.ID(), err)
	}
	return nil
}

func (s *DatabaseStorage) Retrieve(ctx context.Context, id string) (*Payload, error) {
	var (
		raw       []byte
		createdAt time.Time
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT data, created_at FROM stored_blobs WHERE id = $1`,
		id,
	).Scan(&raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup stored blob %s: %w", id, err)
	}

	return newPayload(raw, createdAt), nil
}

func (s *DatabaseStorage) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM stored_blobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list stored blobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stored blob: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
