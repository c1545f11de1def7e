// Package config loads process configuration from an optional .env file and
// the environment, and hands each component its own bundle.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/cache"
	"github.com/JuribaDev/juriba-storage/internal/storage"

	"github.com/joho/godotenv"
)

const EnvTest = "test"

// Config holds all runtime configuration for the service.
type Config struct {
	AppEnv      string
	Port        string
	LogLevel    string
	DatabaseURL string

	StorageBackend   string
	LookupStorage    string
	S3Config         storage.S3Config
	LocalStoragePath string

	CacheConfig cache.Config

	JWTSecret    string
	JWTAccessTTL time.Duration
}

type Option func(*Config)

func WithStorageType(storageType string) Option {
	return func(cfg *Config) {
		cfg.StorageBackend = storageType
	}
}

func WithPort(port string) Option {
	return func(cfg *Config) {
		cfg.Port = port
	}
}

func WithDatabaseURL(url string) Option {
	return func(cfg *Config) {
		cfg.DatabaseURL = url
	}
}

func WithLogLevel(level string) Option {
	return func(cfg *Config) {
		cfg.LogLevel = level
	}
}

// Load reads configuration from a .env file (if present) and environment
// variables, then applies opts.
func Load(opts ...Option) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading from environment")
	}
	return FromEnv(os.Getenv, opts...)
}

// FromEnv builds a Config from getenv without touching the process
// environment.
func FromEnv(getenv func(string) string, opts ...Option) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var errs []string
	duration := func(key string, fallback time.Duration) time.Duration {
		raw := env(key, "")
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return fallback
		}
		return d
	}
	seconds := func(key string, fallback time.Duration) time.Duration {
		raw := env(key, "")
		if raw == "" {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("%s: expected a non-negative number of seconds, got %q", key, raw))
			return fallback
		}
		return time.Duration(n) * time.Second
	}
	boolean := func(key string) bool {
		raw := env(key, "false")
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return b
	}

	appEnv := env("APP_ENV", "development")
	cfg := &Config{
		AppEnv:      appEnv,
		Port:        env("PORT", "3000"),
		LogLevel:    env("LOG_LEVEL", "info"),
		DatabaseURL: env("DATABASE_URL", "sqlite3://storage/blobs.sqlite"),

		StorageBackend: env("STORAGE_TYPE", "s3"),
		LookupStorage:  env("LOOKUP_STORAGE", "config"),
		S3Config: storage.S3Config{
			Endpoint:           env("MINIO_ENDPOINT", "http://localhost:9000"),
			Region:             env("MINIO_REGION", "us-east-1"),
			Bucket:             env("MINIO_BUCKET", "blobs"),
			AccessKeyID:        env("MINIO_ACCESS_KEY_ID", ""),
			SecretAccessKey:    env("MINIO_SECRET_ACCESS_KEY", ""),
			InsecureSkipVerify: boolean("MINIO_SKIP_SSL_VERIFY"),
			Timeout:            duration("MINIO_TIMEOUT", 30*time.Second),
			SkipBucketCreation: appEnv == EnvTest,
		},
		LocalStoragePath: env("LOCAL_STORAGE_PATH", "storage/blobs"),

		CacheConfig: cache.Config{
			URL:            env("REDIS_URL", "redis://localhost:6379/0"),
			CacheTTL:       seconds("REDIS_CACHE_TTL", cache.DefaultCacheTTL),
			IdempotencyTTL: seconds("REDIS_IDEMPOTENCY_TTL", cache.DefaultIdempotencyTTL),
		},

		JWTSecret:    env("JWT_SECRET", "development_secret"),
		JWTAccessTTL: duration("JWT_ACCESS_TTL", 10*time.Minute),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// IsTest reports whether the process runs in the designated test mode.
func (c *Config) IsTest() bool {
	return c.AppEnv == EnvTest
}

// StorageType returns the active backend tag as configured. It is not
// validated here; the storage factory rejects unknown tags.
func (c *Config) StorageType() string {
	return c.StorageBackend
}

func (c *Config) S3() storage.S3Config {
	return c.S3Config
}

// Local returns the filesystem root of the local backend.
func (c *Config) Local() string {
	return c.LocalStoragePath
}

func (c *Config) Cache() cache.Config {
	return c.CacheConfig
}
