package reconcile_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/database"
	"github.com/JuribaDev/juriba-storage/internal/metadata"
	"github.com/JuribaDev/juriba-storage/internal/reconcile"
	"github.com/JuribaDev/juriba-storage/internal/s3test"
	"github.com/JuribaDev/juriba-storage/internal/storage"

	"github.com/stretchr/testify/require"
)

const (
	idA = "0f8fad5b-d9cb-469f-a165-70867728950e"
	idB = "123e4567-e89b-12d3-a456-426614174000"
	idC = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	idD = "a8098c1a-f86e-11da-bd1a-00112444be1e"
	idE = "6fa459ea-ee8a-3ca4-894e-db77e160355e"
)

type staticConfig string

func (c staticConfig) StorageType() string { return string(c) }

type fixture struct {
	repo    *metadata.Repository
	factory *storage.Factory
	s3cfg   storage.S3Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(t.Context(), "sqlite3://"+filepath.Join(t.TempDir(), "reconcile.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	srv := s3test.New(t)
	s3cfg := storage.S3Config{
		Endpoint:        srv.URL,
		Region:          s3test.Region,
		Bucket:          "blobs",
		AccessKeyID:     s3test.AccessKeyID,
		SecretAccessKey: s3test.SecretAccessKey,
	}

	factory := storage.NewFactory(storage.FactoryConfig{
		S3:        s3cfg,
		LocalPath: filepath.Join(t.TempDir(), "blobs"),
		DB:        db.DB,
	})
	return &fixture{
		repo:    metadata.NewRepository(db.DB, factory, staticConfig("local")),
		factory: factory,
		s3cfg:   s3cfg,
	}
}

func (f *fixture) newBlob(t *testing.T, id string, storageType blob.StorageType) *blob.Blob {
	t.Helper()

	b, err := blob.New(id, "aGVsbG8=", blob.WithStorageType(storageType))
	require.NoError(t, err)
	return b
}

// payload writes only the backend payload.
func (f *fixture) payload(t *testing.T, id string, storageType blob.StorageType) {
	t.Helper()

	s, err := f.factory.Create(t.Context(), string(storageType))
	require.NoError(t, err)
	require.NoError(t, s.Store(t.Context(), f.newBlob(t, id, storageType)))
}

// tracker writes only the tracker row.
func (f *fixture) tracker(t *testing.T, id string, storageType blob.StorageType) {
	t.Helper()

	_, err := f.repo.Save(t.Context(), f.newBlob(t, id, storageType))
	require.NoError(t, err)
}

func (f *fixture) listers(t *testing.T) map[blob.StorageType]storage.Lister {
	t.Helper()

	listers := make(map[blob.StorageType]storage.Lister)
	for _, tag := range []blob.StorageType{blob.StorageLocal, blob.StorageDatabase} {
		s, err := f.factory.Create(t.Context(), string(tag))
		require.NoError(t, err)
		lister, ok := s.(storage.Lister)
		require.Truef(t, ok, "%s backend lists its ids", tag)
		listers[tag] = lister
	}

	minioLister, err := reconcile.NewMinioLister(f.s3cfg)
	require.NoError(t, err)
	listers[blob.StorageS3] = minioLister
	return listers
}

func TestRunFindsOrphansAndDanglingTrackers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// Tracker ids are unique across backends, so each consistent pair gets its own id.
	for tag, id := range map[blob.StorageType]string{blob.StorageLocal: idA, blob.StorageDatabase: idD, blob.StorageS3: idE} {
		f.payload(t, id, tag)
		f.tracker(t, id, tag)
	}
	f.payload(t, idB, blob.StorageLocal)
	f.tracker(t, idC, blob.StorageS3)
	f.payload(t, idB, blob.StorageS3)

	reports, err := reconcile.NewJob(f.repo, f.listers(t)).Run(t.Context())
	require.NoError(t, err)
	require.Len(t, reports, 3)

	byBackend := make(map[blob.StorageType]reconcile.Report)
	for _, r := range reports {
		byBackend[r.Backend] = r
	}
	require.Equal(t, []blob.StorageType{blob.StorageS3, blob.StorageDatabase, blob.StorageLocal},
		[]blob.StorageType{reports[0].Backend, reports[1].Backend, reports[2].Backend})

	require.True(t, byBackend[blob.StorageDatabase].Consistent())

	local := byBackend[blob.StorageLocal]
	require.Equal(t, []string{idB}, local.Orphaned)
	require.Empty(t, local.Dangling)
	require.Equal(t, 1, local.Trackers)
	require.Equal(t, 2, local.Payloads)

	s3 := byBackend[blob.StorageS3]
	require.Equal(t, []string{idB}, s3.Orphaned)
	require.Equal(t, []string{idC}, s3.Dangling)
	require.False(t, s3.Consistent())
}

func TestRunWithMissingBucket(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tracker(t, idA, blob.StorageS3)

	lister, err := reconcile.NewMinioLister(f.s3cfg)
	require.NoError(t, err)

	reports, err := reconcile.NewJob(f.repo, map[blob.StorageType]storage.Lister{blob.StorageS3: lister}).Run(t.Context())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, []string{idA}, reports[0].Dangling)
	require.Zero(t, reports[0].Payloads)
}

type failingLister struct{}

func (failingLister) IDs(context.Context) ([]string, error) {
	return nil, errors.New("backend offline")
}

func TestRunFailsWhenBackendCannotList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := reconcile.NewJob(f.repo, map[blob.StorageType]storage.Lister{blob.StorageLocal: failingLister{}}).Run(t.Context())
	require.ErrorContains(t, err, "backend offline")
}

func TestNewMinioListerRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := reconcile.NewMinioLister(storage.S3Config{Endpoint: "ftp://example.com", Bucket: "b"})
	require.Error(t, err)

	_, err = reconcile.NewMinioLister(storage.S3Config{Endpoint: "http://localhost:9000"})
	require.Error(t, err)
}
