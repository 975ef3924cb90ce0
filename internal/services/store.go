package services

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Delimiter separates "folder" levels inside object keys.
const Delimiter = "/"

// Supported storage backends
const (
	BackendS3     = "s3"
	BackendMinio  = "minio"
	BackendMemory = "memory"
)

// Object is a single stored object as returned by a listing
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListOptions controls a listing. An empty Delimiter lists recursively.
// MaxKeys <= 0 means no limit; otherwise it caps objects and prefixes combined.
type ListOptions struct {
	Prefix    string
	Delimiter string
	MaxKeys   int
}

// ListResult holds every page of a listing
type ListResult struct {
	Objects        []Object
	CommonPrefixes []string
}

// ObjectStore is the key/value surface the browser is built on
type ObjectStore interface {
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// BatchDeleter is implemented by stores with a native multi-object delete.
// The returned slice lists keys the store refused; the error is reserved for
// failures of the request as a whole.
type BatchDeleter interface {
	DeleteMany(ctx context.Context, keys []string) ([]KeyError, error)
}

// Presigner is implemented by stores that can hand out temporary GET URLs
type Presigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// UsageReporter returns precomputed bucket usage (object count, total bytes)
type UsageReporter interface {
	BucketUsage(ctx context.Context, bucket string) (objects uint64, size uint64, err error)
}

// StoreConfig holds everything needed to reach a bucket
type StoreConfig struct {
	Backend   string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// NewObjectStore builds the adapter selected by cfg.Backend
func NewObjectStore(ctx context.Context, cfg StoreConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case BackendS3, "":
		return NewS3Store(ctx, cfg)
	case BackendMinio:
		return NewMinioStore(cfg)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// KeyError ties a failure to the key it happened on
type KeyError struct {
	Key string
	Err error
}

func (e KeyError) Error() string {
	return e.Key + ": " + e.Err.Error()
}

func (e KeyError) Unwrap() error {
	return e.Err
}

// StoreError is any failure reported by the object store. Message is the
// store's own text, Code its native error code when one is available.
type StoreError struct {
	Op      string
	Key     string
	Code    string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Op + " failed"
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// CodeNotImplemented is used when an adapter lacks an optional capability
const CodeNotImplemented = "NotImplemented"
