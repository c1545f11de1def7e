// Package s3test runs an in-process S3-compatible object store for tests. It
// supports bucket creation, object PUT and GET, ListObjectsV2 and
// GetBucketLocation, and checks the SigV4 signature of every request.
package s3test

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/sigv4"
)

const (
	AccessKeyID     = "s3test-access-key"
	SecretAccessKey = "s3test-secret-key"
	Region          = "us-east-1"

	unsignedPayload = "UNSIGNED-PAYLOAD"
)

type object struct {
	data     []byte
	etag     string
	modified time.Time
}

type failure struct {
	status int
	code   string
}

// Server is a running fake object store. Use New to start one.
type Server struct {
	*httptest.Server

	verifier *sigv4.Verifier

	mu               sync.Mutex
	buckets          map[string]map[string]object
	requests         map[string]int
	failures         map[string][]failure
	omitLastModified bool
	now              func() time.Time
}

type Option func(*Server)

// WithoutLastModified makes object GETs omit the Last-Modified header.
func WithoutLastModified() Option {
	return func(s *Server) {
		s.omitLastModified = true
	}
}

// WithClock sets the clock used for object modification times.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New starts a server and closes it when the test finishes.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		verifier: &sigv4.Verifier{
			Credentials: sigv4.Credentials{AccessKeyID: AccessKeyID, SecretAccessKey: SecretAccessKey},
			Region:      Region,
		},
		buckets:  make(map[string]map[string]object),
		requests: make(map[string]int),
		failures: make(map[string][]failure),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.handleRoot))
	t.Cleanup(s.Close)
	return s
}

// Credentials returns the only key pair the server accepts.
func (s *Server) Credentials() sigv4.Credentials {
	return s.verifier.Credentials
}

// CreateBucket creates bucket without going through HTTP.
func (s *Server) CreateBucket(bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string]object)
	}
}

// PutObject stores an object without going through HTTP, creating the bucket
// if needed.
func (s *Server) PutObject(bucket, key string, data []byte) {
	s.CreateBucket(bucket)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket][key] = newObject(data, s.now())
}

// Object returns the stored payload for bucket/key.
func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.buckets[bucket][key]
	return obj.data, ok
}

// Requests counts the requests received with the given method, including
// rejected ones.
func (s *Server) Requests(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method]
}

// FailNext makes the next request with method answer with status and an S3
// error document carrying code.
func (s *Server) FailNext(method string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], failure{status: status, code: code})
}

func newObject(data []byte, modified time.Time) object {
	sum := md5.Sum(data)
	return object{
		data:     append([]byte(nil), data...),
		etag:     fmt.Sprintf("\"%s\"", hex.EncodeToString(sum[:])),
		modified: modified.UTC().Truncate(time.Second),
	}
}

func (s *Server) takeFailure(method string) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[method]++
	queued := s.failures[method]
	if len(queued) == 0 {
		return failure{}, false
	}
	s.failures[method] = queued[1:]
	return queued[0], true
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.takeFailure(r.Method); ok {
		writeS3Error(w, f.code, "Injected failure.", r.URL.Path, f.status)
		return
	}

	if _, err := s.verifier.Verify(r); err != nil {
		slog.Debug("s3test: rejected signature", "path", r.URL.Path, "err", err)
		writeS3Error(w, "SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided.", r.URL.Path, http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeS3Error(w, "IncompleteBody", "You did not provide the number of bytes specified by the Content-Length HTTP header.", r.URL.Path, http.StatusBadRequest)
		return
	}
	if claimed := r.Header.Get(sigv4.HeaderContentSHA256); claimed != unsignedPayload && claimed != sigv4.HashHex(body) {
		writeS3Error(w, "XAmzContentSHA256Mismatch", "The provided 'x-amz-content-sha256' header does not match what was computed.", r.URL.Path, http.StatusBadRequest)
		return
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket == "" {
		writeS3Error(w, "MethodNotAllowed", "The specified method is not allowed against this resource.", r.URL.Path, http.StatusMethodNotAllowed)
		return
	}

	switch {
	case key == "" && r.Method == http.MethodPut:
		s.handleCreateBucket(w, r, bucket)
	case key == "" && r.Method == http.MethodGet && r.URL.Query().Has("location"):
		s.handleGetBucketLocation(w, r, bucket)
	case key == "" && r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		s.handleListObjectsV2(w, r, bucket)
	case key != "" && r.Method == http.MethodPut:
		s.handlePutObject(w, r, bucket, key, body)
	case key != "" && r.Method == http.MethodGet:
		s.handleGetObject(w, r, bucket, key)
	default:
		writeS3Error(w, "NotImplemented", "A header you provided implies functionality that is not implemented.", r.URL.Path, http.StatusNotImplemented)
	}
}

func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	s.mu.Lock()
	_, exists := s.buckets[bucket]
	if !exists {
		s.buckets[bucket] = make(map[string]object)
	}
	s.mu.Unlock()

	if exists {
		writeS3Error(w, "BucketAlreadyOwnedByYou", "Your previous request to create the named bucket succeeded and you already own it.", r.URL.Path, http.StatusConflict)
		return
	}
	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetBucketLocation(w http.ResponseWriter, r *http.Request, bucket string) {
	s.mu.Lock()
	_, exists := s.buckets[bucket]
	s.mu.Unlock()

	if !exists {
		writeS3Error(w, "NoSuchBucket", "The specified bucket does not exist.", r.URL.Path, http.StatusNotFound)
		return
	}
	if err := writeXMLResponse(w, LocationConstraint{XMLNS: s3XMLNamespace, Region: Region}); err != nil {
		slog.Error("s3test: encode location", "bucket", bucket, "err", err)
	}
}

func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request, bucket, key string, body []byte) {
	s.mu.Lock()
	objects, exists := s.buckets[bucket]
	var obj object
	if exists {
		obj = newObject(body, s.now())
		objects[key] = obj
	}
	s.mu.Unlock()

	if !exists {
		writeS3Error(w, "NoSuchBucket", "The specified bucket does not exist.", r.URL.Path, http.StatusNotFound)
		return
	}
	w.Header().Set("ETag", obj.etag)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	s.mu.Lock()
	obj, ok := s.buckets[bucket][key]
	s.mu.Unlock()

	if !ok {
		writeS3Error(w, "NoSuchKey", "The specified key does not exist.", r.URL.Path, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.Header().Set("ETag", obj.etag)
	if !s.omitLastModified {
		w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.data)
}

// GET /bucket?list-type=2[&prefix=&max-keys=&continuation-token=&start-after=].
func (s *Server) handleListObjectsV2(w http.ResponseWriter, r *http.Request, bucket string) {
	s.mu.Lock()
	objects, exists := s.buckets[bucket]
	keys := make([]string, 0, len(objects))
	snapshot := make(map[string]object, len(objects))
	for k, v := range objects {
		keys = append(keys, k)
		snapshot[k] = v
	}
	s.mu.Unlock()

	if !exists {
		writeS3Error(w, "NoSuchBucket", "The specified bucket does not exist.", r.URL.Path, http.StatusNotFound)
		return
	}
	sort.Strings(keys)

	q := r.URL.Query()
	prefix := q.Get("prefix")
	continuationToken := q.Get("continuation-token")
	startAfter := ""
	if continuationToken == "" {
		startAfter = q.Get("start-after")
	}
	after := continuationToken
	if after == "" {
		after = startAfter
	}

	maxKeys := 1000
	if raw := q.Get("max-keys"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxKeys = v
		}
	}

	var (
		summaries   []ObjectSummary
		isTruncated bool
	)
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) || (after != "" && key <= after) {
			continue
		}
		if len(summaries) == maxKeys {
			isTruncated = true
			break
		}
		obj := snapshot[key]
		summaries = append(summaries, ObjectSummary{
			Key:          key,
			LastModified: obj.modified.Format(time.RFC3339),
			ETag:         obj.etag,
			Size:         int64(len(obj.data)),
			StorageClass: "STANDARD",
		})
	}

	nextContinuationToken := ""
	if isTruncated && len(summaries) > 0 {
		nextContinuationToken = summaries[len(summaries)-1].Key
	}

	resp := ListBucketResultV2{
		XMLNS:                 s3XMLNamespace,
		Name:                  bucket,
		Prefix:                prefix,
		KeyCount:              len(summaries),
		MaxKeys:               maxKeys,
		IsTruncated:           isTruncated,
		ContinuationToken:     continuationToken,
		NextContinuationToken: nextContinuationToken,
		StartAfter:            startAfter,
		Contents:              summaries,
	}
	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("s3test: encode list objects v2", "bucket", bucket, "err", err)
	}
}

func writeXMLResponse(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(v)
}

func writeS3Error(w http.ResponseWriter, code string, message string, resource string, status int) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(S3Error{
		Code:     code,
		Message:  message,
		Resource: resource,
	})
}
