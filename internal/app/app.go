// Package app wires configuration into the running components shared by
// the server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/api"
	"github.com/JuribaDev/juriba-storage/internal/auth"
	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/cache"
	"github.com/JuribaDev/juriba-storage/internal/config"
	"github.com/JuribaDev/juriba-storage/internal/database"
	"github.com/JuribaDev/juriba-storage/internal/metadata"
	"github.com/JuribaDev/juriba-storage/internal/reconcile"
	"github.com/JuribaDev/juriba-storage/internal/service"
	"github.com/JuribaDev/juriba-storage/internal/storage"

	"github.com/charmbracelet/log"
)

// SetupLogging installs the charmbracelet handler as the slog default.
func SetupLogging(w io.Writer, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))
	return nil
}

// App holds the long-lived components built from a Config.
type App struct {
	Config  *config.Config
	DB      *database.DB
	Factory *storage.Factory
	Repo    *metadata.Repository
	Store   cache.Store
	Blobs   *service.BlobService
	Users   *auth.Users
	Tokens  *auth.Tokens
	Login   *auth.Service
	Lookup  metadata.Lookup
}

// OpenDatabase opens the configured database and applies migrations.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New opens the database, migrates it and builds every component. Storage
// backends are built lazily by the factory on first use.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	lookup, err := metadata.ParseLookup(cfg.LookupStorage)
	if err != nil {
		return nil, err
	}

	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cacheCfg := cfg.Cache()
	store, err := cache.Open(ctx, cacheCfg.URL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	factory := storage.NewFactory(storage.FactoryConfig{
		S3:        cfg.S3(),
		LocalPath: cfg.Local(),
		DB:        db.DB,
	})
	repo := metadata.NewRepository(db.DB, factory, cfg, metadata.WithLookup(lookup))

	users := auth.NewUsers(db.DB)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTAccessTTL)

	return &App{
		Config:  cfg,
		DB:      db,
		Factory: factory,
		Repo:    repo,
		Store:   store,
		Blobs: service.NewBlobService(cfg, factory, repo,
			cache.NewBlobCache(store, cacheCfg.CacheTTL),
			cache.NewIdempotency(store, cacheCfg.IdempotencyTTL),
		),
		Users:  users,
		Tokens: tokens,
		Login:  auth.NewService(users, tokens),
		Lookup: lookup,
	}, nil
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	return api.NewRouter(
		api.NewHandler(a.Blobs, a.Login),
		auth.NewBearerAuthEngine(a.Tokens, a.Users),
	)
}

// NewReconcileJob builds a job over the given backends. The S3 backend is
// listed through MinIO so that no bucket is created.
func NewReconcileJob(ctx context.Context, cfg *config.Config, db *database.DB, backends []blob.StorageType) (*reconcile.Job, error) {
	factory := storage.NewFactory(storage.FactoryConfig{
		S3:        cfg.S3(),
		LocalPath: cfg.Local(),
		DB:        db.DB,
	})

	listers := make(map[blob.StorageType]storage.Lister, len(backends))
	for _, backend := range backends {
		if backend == blob.StorageS3 {
			l, err := reconcile.NewMinioLister(cfg.S3())
			if err != nil {
				return nil, err
			}
			listers[backend] = l
			continue
		}

		s, err := factory.Create(ctx, string(backend))
		if err != nil {
			return nil, err
		}
		l, ok := s.(storage.Lister)
		if !ok {
			return nil, fmt.Errorf("%s backend cannot list its payloads", backend)
		}
		listers[backend] = l
	}
	return reconcile.NewJob(metadata.NewRepository(db.DB, factory, cfg), listers), nil
}

// Close releases the cache store and the database.
func (a *App) Close() error {
	if err := a.Store.Close(); err != nil {
		slog.Warn("close cache store", "err", err)
	}
	return a.DB.Close()
}
