package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/app"
	"github.com/JuribaDev/juriba-storage/internal/config"

	"golang.org/x/sync/errgroup"
)

func Run(ctx context.Context) error {

	port := flag.String("listen", "", "HTTP listen port (overrides PORT)")
	storageType := flag.String("storage", "", "active storage backend (overrides STORAGE_TYPE)")
	databaseURL := flag.String("database-url", "", "database URL (overrides DATABASE_URL)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")

	flag.Parse()

	var opts []config.Option
	if *port != "" {
		opts = append(opts, config.WithPort(*port))
	}
	if *storageType != "" {
		opts = append(opts, config.WithStorageType(*storageType))
	}
	if *databaseURL != "" {
		opts = append(opts, config.WithDatabaseURL(*databaseURL))
	}
	if *logLevel != "" {
		opts = append(opts, config.WithLogLevel(*logLevel))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := app.SetupLogging(os.Stdout, cfg.LogLevel); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	defer a.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting HTTP server", "port", cfg.Port, "env", cfg.AppEnv, "storage", cfg.StorageType(), "lookup", a.Lookup)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("blobgate exited with error", "error", err)
		os.Exit(1)
	}
}
