// Package database opens the SQL store behind the tracker, payload and user
// tables and applies the embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect names one of the supported SQL engines.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// DB wraps the handle with the dialect it was opened for.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// ParseURL splits a DATABASE_URL into driver name, DSN and dialect.
// Accepted forms are sqlite3://<path> and postgres:// or postgresql:// URLs.
func ParseURL(databaseURL string) (driver string, dsn string, dialect Dialect, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite3://"):
		path := strings.TrimPrefix(databaseURL, "sqlite3://")
		if path == "" {
			return "", "", "", errors.New("sqlite3 database url has no path")
		}
		return "sqlite3", path, SQLite, nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "pgx", databaseURL, Postgres, nil
	default:
		return "", "", "", fmt.Errorf("unsupported database url scheme: %q", databaseURL)
	}
}

// Open connects and pings the database named by databaseURL.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	driver, dsn, dialect, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if dialect == SQLite {
		file, _, _ := strings.Cut(dsn, "?")
		if dir := filepath.Dir(file); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "_busy_timeout") {
			dsn += separator(dsn) + "_busy_timeout=5000"
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == SQLite {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Debug("connected to database", "dialect", dialect)
	return &DB{DB: db, Dialect: dialect}, nil
}

func separator(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&"
	}
	return "?"
}

// Migrate runs all pending up migrations embedded in the binary.
func Migrate(db *DB) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(db.Dialect))
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	var driver database.Driver
	switch db.Dialect {
	case SQLite:
		driver, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	case Postgres:
		driver, err = migratepgx.WithInstance(db.DB, &migratepgx.Config{})
	default:
		return fmt.Errorf("no migrations for dialect %q", db.Dialect)
	}
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(db.Dialect), driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	slog.Info("database migrations applied", "version", version, "dirty", dirty)
	return nil
}
