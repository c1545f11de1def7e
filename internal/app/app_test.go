package app_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/JuribaDev/juriba-storage/internal/app"
	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/config"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	base := map[string]string{
		"APP_ENV":            "test",
		"DATABASE_URL":       "sqlite3://" + filepath.Join(dir, "app.sqlite"),
		"STORAGE_TYPE":       "local",
		"LOCAL_STORAGE_PATH": filepath.Join(dir, "blobs"),
		"REDIS_URL":          "memory://",
	}
	for k, v := range env {
		base[k] = v
	}

	cfg, err := config.FromEnv(func(key string) string { return base[key] })
	require.NoError(t, err)
	return cfg
}

func TestSetupLogging(t *testing.T) {
	require.NoError(t, app.SetupLogging(io.Discard, "debug"))
	require.Error(t, app.SetupLogging(io.Discard, "loud"))
}

func TestNewServesAndStores(t *testing.T) {
	t.Parallel()

	a, err := app.New(t.Context(), testConfig(t, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/up")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := a.Blobs.StoreBlob(t.Context(), "123e4567-e89b-12d3-a456-426614174000", "aGVsbG8=", "token-1")
	require.NoError(t, err)
	require.Equal(t, blob.StorageLocal, stored.StorageType())

	job, err := app.NewReconcileJob(t.Context(), a.Config, a.DB, []blob.StorageType{blob.StorageLocal, blob.StorageDatabase})
	require.NoError(t, err)
	reports, err := job.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		require.Truef(t, r.Consistent(), "%s: %+v", r.Backend, r)
	}
}

func TestNewRejectsUnknownLookup(t *testing.T) {
	t.Parallel()

	_, err := app.New(t.Context(), testConfig(t, map[string]string{"LOOKUP_STORAGE": "elsewhere"}))
	require.Error(t, err)
}
