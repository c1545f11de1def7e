package reconcile

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/JuribaDev/juriba-storage/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioLister lists the object keys of the blob bucket.
type MinioLister struct {
	client *minio.Client
	bucket string
}

// NewMinioLister builds a client for the same endpoint, bucket and
// credentials the S3 backend signs for.
func NewMinioLister(cfg storage.S3Config) (*MinioLister, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("endpoint %q must be an http(s) URL", cfg.Endpoint)
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket must not be empty")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       u.Scheme == "https",
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioLister{client: client, bucket: cfg.Bucket}, nil
}

// IDs returns every key in the bucket. A missing bucket holds no payloads.
func (l *MinioLister) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	for obj := range l.client.ListObjects(ctx, l.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			if minio.ToErrorResponse(obj.Err).Code == "NoSuchBucket" {
				return nil, nil
			}
			return nil, fmt.Errorf("list bucket %s: %w", l.bucket, obj.Err)
		}
		ids = append(ids, obj.Key)
	}
	return ids, nil
}
