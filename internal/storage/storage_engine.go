// Package storage holds the interchangeable payload backends. Every variant
// persists the decoded bytes of a blob under its id and hands them back
// re-encoded as base64 together with a backend-sourced creation time.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"
)

var (
	// ErrNotFound is returned by Retrieve when the backend holds no payload
	// for the requested id.
	ErrNotFound = errors.New("blob payload not found")

	// ErrUnsupportedType is returned by the factory for an unknown tag.
	ErrUnsupportedType = errors.New("unsupported storage type")
)

// StorageError describes a non-success response from the object store.
type StorageError struct {
	StatusCode int
	Reason     string
	Body       string
}

func (e *StorageError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("object store responded %d %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("object store responded %d %s: %s", e.StatusCode, e.Reason, e.Body)
}

// Payload is what a backend returns for a stored blob.
type Payload struct {
	Data      string
	Size      int64
	CreatedAt time.Time
}

// Strategy is implemented by the local, database and S3 backends.
type Strategy interface {
	// Type reports the tag of the backend.
	Type() blob.StorageType

	// Store persists the decoded payload of b under b.ID(). Storing the same
	// id again overwrites the payload.
	Store(ctx context.Context, b *blob.Blob) error

	// Retrieve returns the payload stored under id, or an error wrapping
	// ErrNotFound.
	Retrieve(ctx context.Context, id string) (*Payload, error)
}

// Lister is implemented by backends that can enumerate the ids they hold
// without an external client.
type Lister interface {
	IDs(ctx context.Context) ([]string, error)
}

func newPayload(raw []byte, createdAt time.Time) *Payload {
	return &Payload{
		Data:      blob.EncodeData(raw),
		Size:      int64(len(raw)),
		CreatedAt: createdAt.UTC(),
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
