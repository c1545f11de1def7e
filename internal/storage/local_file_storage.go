package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"

	"github.com/natefinch/atomic"
)

const metaSuffix = ".meta"

// LocalFileStorage keeps each blob as a pair of files under dataDir: the raw
// payload named by the blob id, and a small JSON document next to it holding
// the creation time.
type LocalFileStorage struct {
	dataDir string
}

type localMeta struct {
	CreatedAt string `json:"createdAt"`
}

// NewLocalFileStorage creates dataDir if it does not exist yet.
func NewLocalFileStorage(dataDir string) (*LocalFileStorage, error) {
	if dataDir == "" {
		return nil, errors.New("local storage path must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating local storage root: %w", err)
	}
	return &LocalFileStorage{dataDir: dataDir}, nil
}

func (s *LocalFileStorage) Type() blob.StorageType {
	return blob.StorageLocal
}

// ObjectPath returns the payload and metadata paths for id.
func (s *LocalFileStorage) ObjectPath(id string) (dataPath string, metaPath string) {
	dataPath = filepath.Join(s.dataDir, id)
	return dataPath, dataPath + metaSuffix
}

func (s *LocalFileStorage) Store(ctx context.Context, b *blob.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := b.Bytes()
	if err != nil {
		return fmt.Errorf("decoding blob %s: %w", b.ID(), err)
	}

	meta, err := json.Marshal(localMeta{CreatedAt: b.CreatedAt().UTC().Format(time.RFC3339)})
	if err != nil {
		return err
	}

	dataPath, metaPath := s.ObjectPath(b.ID())

	// The payload goes first so a reader never sees metadata without data.
	if err := atomic.WriteFile(dataPath, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("writing payload for %s: %w", b.ID(), err)
	}
	if err := atomic.WriteFile(metaPath, bytes.NewReader(meta)); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", b.ID(), err)
	}
	return nil
}

func (s *LocalFileStorage) Retrieve(ctx context.Context, id string) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !blob.ValidID(id) {
		return nil, notFound(id)
	}

	dataPath, metaPath := s.ObjectPath(id)

	metaBytes, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", id, err)
	}

	raw, err := os.ReadFile(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading payload for %s: %w", id, err)
	}

	var meta localMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata for %s: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339, meta.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing createdAt for %s: %w", id, err)
	}

	return newPayload(raw, createdAt), nil
}

// IDs lists every blob id that has both a payload and a metadata file.
func (s *LocalFileStorage) IDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			present[e.Name()] = true
		}
	}

	ids := make([]string, 0, len(entries)/2)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if strings.HasSuffix(name, metaSuffix) || !blob.ValidID(name) {
			continue
		}
		if present[name] && present[name+metaSuffix] {
			ids = append(ids, name)
		}
	}
	return ids, nil
}
