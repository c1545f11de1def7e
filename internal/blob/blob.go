// Package blob defines the Blob entity: an opaque base64 payload together
// with its identity, decoded size, creation time and the backend tag that
// persisted it.
package blob

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is matched by every ValidationError.
var ErrInvalid = errors.New("invalid blob")

// uuidPattern matches canonical lowercase 8-4-4-4-12 UUIDs.
var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidationError reports why a Blob could not be constructed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is reports ErrInvalid so callers can match any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Blob is immutable once constructed. Use New to build one; the zero value is
// not a valid Blob.
type Blob struct {
	id          string
	data        string
	size        int64
	createdAt   time.Time
	storageType StorageType
}

type Option func(*Blob)

// WithSize overrides the size that would otherwise be derived from data.
func WithSize(size int64) Option {
	return func(b *Blob) {
		b.size = size
	}
}

// WithCreatedAt sets the creation time. It is normalized to UTC.
func WithCreatedAt(t time.Time) Option {
	return func(b *Blob) {
		b.createdAt = t.UTC()
	}
}

func WithStorageType(t StorageType) Option {
	return func(b *Blob) {
		b.storageType = t
	}
}

// New validates id and data and returns a Blob. When no size is supplied it
// is the byte length of the decoded payload; when no creation time is
// supplied it is the current UTC time.
func New(id string, data string, opts ...Option) (*Blob, error) {
	b := &Blob{
		id:   id,
		data: data,
		size: -1,
	}
	for _, opt := range opts {
		opt(b)
	}

	raw, err := validate(id, data)
	if err != nil {
		return nil, err
	}

	if b.size < 0 {
		b.size = int64(len(raw))
	}
	if b.createdAt.IsZero() {
		b.createdAt = time.Now().UTC()
	}

	return b, nil
}

func validate(id string, data string) ([]byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Reason: "Blob ID cannot be blank"}
	}
	if !ValidID(id) {
		return nil, &ValidationError{Reason: "Blob ID must be a valid UUID"}
	}
	if strings.TrimSpace(data) == "" {
		return nil, &ValidationError{Reason: "Blob data cannot be blank"}
	}

	raw, err := DecodeData(data)
	if err != nil {
		return nil, &ValidationError{Reason: "Blob data must be Base64 encoded"}
	}
	return raw, nil
}

// ValidID reports whether id is a canonical lowercase UUID.
func ValidID(id string) bool {
	return uuidPattern.MatchString(id)
}

// DecodeData strictly decodes standard, padded base64. Line breaks are
// rejected even though the standard library decoder would skip them.
func DecodeData(data string) ([]byte, error) {
	if strings.ContainsAny(data, "\r\n") {
		return nil, base64.CorruptInputError(strings.IndexAny(data, "\r\n"))
	}
	return base64.StdEncoding.Strict().DecodeString(data)
}

// EncodeData is the inverse of DecodeData.
func EncodeData(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func (b *Blob) ID() string {
	return b.id
}

// Data returns the payload as base64 text.
func (b *Blob) Data() string {
	return b.data
}

// Bytes decodes the payload. Construction already validated it, so the error
// is only non-nil for a Blob built outside New.
func (b *Blob) Bytes() ([]byte, error) {
	return DecodeData(b.data)
}

func (b *Blob) Size() int64 {
	return b.size
}

func (b *Blob) CreatedAt() time.Time {
	return b.createdAt
}

func (b *Blob) StorageType() StorageType {
	return b.storageType
}

// ToMap renders the transport representation of the blob.
func (b *Blob) ToMap() map[string]string {
	return map[string]string{
		"id":        b.id,
		"data":      b.data,
		"size":      strconv.FormatInt(b.size, 10),
		"createdAt": b.createdAt.UTC().Format(time.RFC3339),
	}
}

// FromMap rebuilds a Blob from its transport representation. The result is
// validated exactly like New.
func FromMap(m map[string]string) (*Blob, error) {
	var opts []Option

	if raw, ok := m["size"]; ok && raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size < 0 {
			return nil, &ValidationError{Reason: "Blob size must be a non-negative integer"}
		}
		opts = append(opts, WithSize(size))
	}

	if raw, ok := m["createdAt"]; ok && raw != "" {
		createdAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, &ValidationError{Reason: "Blob createdAt must be an ISO-8601 timestamp"}
		}
		opts = append(opts, WithCreatedAt(createdAt))
	}

	return New(m["id"], m["data"], opts...)
}
