package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/sigv4"
)

const defaultS3Timeout = 30 * time.Second

// S3Config holds everything needed to talk to an S3-compatible endpoint.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string

	// SkipBucketCreation is set in test mode; construction then performs no
	// network calls.
	SkipBucketCreation bool

	// InsecureSkipVerify disables TLS certificate checks for dev endpoints.
	InsecureSkipVerify bool

	Timeout time.Duration
}

// S3Storage stores payloads as objects in a single bucket. Requests are sent
// over plain net/http and signed with SigV4.
type S3Storage struct {
	endpoint *url.URL
	bucket   string
	client   *http.Client
	signer   *sigv4.Signer
	now      func() time.Time
}

type S3Option func(*S3Storage)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) S3Option {
	return func(s *S3Storage) {
		s.client = c
	}
}

// WithClock overrides the clock used for signing and for the missing
// Last-Modified fallback.
func WithClock(now func() time.Time) S3Option {
	return func(s *S3Storage) {
		s.now = now
	}
}

// NewS3Storage validates cfg and, unless SkipBucketCreation is set, creates
// the bucket. An existing bucket is not an error.
func NewS3Storage(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Storage, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint must not be empty")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket must not be empty")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3 region must not be empty")
	}

	endpoint, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing s3 endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("s3 endpoint %q must be http or https", cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultS3Timeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	s := &S3Storage{
		endpoint: endpoint,
		bucket:   cfg.Bucket,
		client:   &http.Client{Timeout: timeout, Transport: transport},
		signer: sigv4.NewSigner(sigv4.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}, cfg.Region),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.signer.Now = s.now

	if cfg.SkipBucketCreation {
		return s, nil
	}
	if err := s.createBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3Storage) Type() blob.StorageType {
	return blob.StorageS3
}

// Bucket returns the bucket objects are written to.
func (s *S3Storage) Bucket() string {
	return s.bucket
}

func (s *S3Storage) bucketURL() string {
	return s.endpoint.JoinPath(s.bucket).String()
}

func (s *S3Storage) objectURL(id string) string {
	return s.endpoint.JoinPath(s.bucket, id).String()
}

// do builds, signs and sends a request. body may be nil.
func (s *S3Storage) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if err := s.signer.Sign(req, body); err != nil {
		return nil, err
	}

	return s.client.Do(req)
}

func (s *S3Storage) createBucket(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodPut, s.bucketURL(), nil)
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Info("created bucket", "bucket", s.bucket)
		return nil
	case resp.StatusCode == http.StatusConflict:
		slog.Debug("bucket already exists", "bucket", s.bucket)
		return nil
	default:
		return fmt.Errorf("create bucket %s: %w", s.bucket, responseError(resp, respBody))
	}
}

func (s *S3Storage) Store(ctx context.Context, b *blob.Blob) error {
	raw, err := b.Bytes()
	if err != nil {
		return fmt.Errorf("decoding blob %s: %w", b.ID(), err)
	}

	resp, err := s.do(ctx, http.MethodPut, s.objectURL(b.ID()), raw)
	if err != nil {
		return fmt.Errorf("put object %s: %w", b.ID(), err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("put object", "bucket", s.bucket, "id", b.ID(), "status", resp.StatusCode)
		return responseError(resp, respBody)
	}
	return nil
}

func (s *S3Storage) Retrieve(ctx context.Context, id string) (*Payload, error) {
	resp, err := s.do(ctx, http.MethodGet, s.objectURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		slog.Debug("get object", "bucket", s.bucket, "id", id, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s (status %d)", ErrNotFound, id, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", id, err)
	}

	createdAt := s.now()
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		createdAt, err = http.ParseTime(lm)
		if err != nil {
			return nil, fmt.Errorf("parse Last-Modified for %s: %w", id, err)
		}
	}

	return newPayload(raw, createdAt), nil
}

func responseError(resp *http.Response, body []byte) *StorageError {
	reason := http.StatusText(resp.StatusCode)
	if parts := strings.SplitN(resp.Status, " ", 2); len(parts) == 2 {
		reason = parts[1]
	}
	return &StorageError{
		StatusCode: resp.StatusCode,
		Reason:     reason,
		Body:       strings.TrimSpace(string(body)),
	}
}
