package blob_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"

	"github.com/stretchr/testify/require"
)

const testID = "123e4567-e89b-12d3-a456-426614174000"

func TestNewDerivesSizeAndTimestamp(t *testing.T) {
	t.Parallel()

	data := base64.StdEncoding.EncodeToString([]byte("test data"))
	before := time.Now().UTC().Add(-time.Second)

	b, err := blob.New(testID, data)
	require.NoError(t, err, "New error")
	require.Equal(t, testID, b.ID())
	require.Equal(t, data, b.Data())
	require.Equal(t, int64(9), b.Size(), "size should be decoded byte length")
	require.Equal(t, time.UTC, b.CreatedAt().Location(), "createdAt should be UTC")
	require.True(t, b.CreatedAt().After(before), "createdAt should default to now")
	require.Empty(t, b.StorageType())
}

func TestNewHonorsOptions(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 5, 5, 20, 32, 27, 0, time.FixedZone("CEST", 2*60*60))
	b, err := blob.New(testID, "aGVsbG8=",
		blob.WithSize(42),
		blob.WithCreatedAt(created),
		blob.WithStorageType(blob.StorageLocal),
	)
	require.NoError(t, err)
	require.Equal(t, int64(42), b.Size())
	require.True(t, created.Equal(b.CreatedAt()))
	require.Equal(t, time.UTC, b.CreatedAt().Location())
	require.Equal(t, blob.StorageLocal, b.StorageType())
}

func TestNewRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		id     string
		data   string
		reason string
	}{
		{name: "empty id", id: "", data: "aGVsbG8=", reason: "Blob ID cannot be blank"},
		{name: "blank id", id: "   ", data: "aGVsbG8=", reason: "Blob ID cannot be blank"},
		{name: "not a uuid", id: "not-a-uuid", data: "aGVsbG8=", reason: "Blob ID must be a valid UUID"},
		{name: "uppercase uuid", id: "123E4567-E89B-12D3-A456-426614174000", data: "aGVsbG8=", reason: "Blob ID must be a valid UUID"},
		{name: "empty data", id: testID, data: "", reason: "Blob data cannot be blank"},
		{name: "blank data", id: testID, data: "  ", reason: "Blob data cannot be blank"},
		{name: "not base64", id: testID, data: "not base64!!", reason: "Blob data must be Base64 encoded"},
		{name: "missing padding", id: testID, data: "aGVsbG8", reason: "Blob data must be Base64 encoded"},
		{name: "embedded newline", id: testID, data: "aGVs\nbG8=", reason: "Blob data must be Base64 encoded"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b, err := blob.New(tc.id, tc.data)
			require.Nil(t, b, "no blob should be constructed")
			require.ErrorIs(t, err, blob.ErrInvalid)

			var verr *blob.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.reason, verr.Reason)
		})
	}
}

func TestToMapAndFromMap(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := blob.New(testID, "dGVzdCBkYXRh", blob.WithCreatedAt(created))
	require.NoError(t, err)

	m := b.ToMap()
	require.Equal(t, map[string]string{
		"id":        testID,
		"data":      "dGVzdCBkYXRh",
		"size":      "9",
		"createdAt": "2025-01-02T03:04:05Z",
	}, m)

	restored, err := blob.FromMap(m)
	require.NoError(t, err)
	require.Equal(t, b.ID(), restored.ID())
	require.Equal(t, b.Data(), restored.Data())
	require.Equal(t, b.Size(), restored.Size())
	require.True(t, b.CreatedAt().Equal(restored.CreatedAt()))
}

func TestFromMapRejectsBadSize(t *testing.T) {
	t.Parallel()

	_, err := blob.FromMap(map[string]string{"id": testID, "data": "aGVsbG8=", "size": "many"})
	require.ErrorIs(t, err, blob.ErrInvalid)
}

func TestParseStorageType(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]blob.StorageType{
		"s3":       blob.StorageS3,
		"S3":       blob.StorageS3,
		"Database": blob.StorageDatabase,
		" local ":  blob.StorageLocal,
	} {
		got, err := blob.ParseStorageType(input)
		require.NoErrorf(t, err, "ParseStorageType(%q)", input)
		require.Equal(t, want, got)
	}

	_, err := blob.ParseStorageType("unsupported")
	require.Error(t, err)
}
