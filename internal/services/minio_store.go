package services

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient is the subset of *minio.Client the store uses
type MinioClient interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// MinioStore implements ObjectStore on top of minio-go. It works against
// MinIO as well as R2 and other S3-compatible endpoints.
type MinioStore struct {
	client MinioClient
	bucket string
}

// NewMinioStore connects to cfg.Endpoint with static V4 credentials
func NewMinioStore(cfg StoreConfig) (*MinioStore, error) {
	host, secure := splitEndpoint(cfg.Endpoint)
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return newMinioStoreWithClient(client, cfg.Bucket), nil
}

func newMinioStoreWithClient(client MinioClient, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// List drains the minio listing channel. minio-go only knows "/" as a
// delimiter, so any non-empty Delimiter means a one-level listing.
func (s *MinioStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	// Cancelling stops the listing goroutine when MaxKeys cuts us short
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	minioOpts := minio.ListObjectsOptions{
		Prefix:    opts.Prefix,
		Recursive: opts.Delimiter == "",
	}
	if opts.MaxKeys > 0 {
		minioOpts.MaxKeys = opts.MaxKeys
	}

	var result ListResult
	seen := make(map[string]bool)
	count := 0

	for obj := range s.client.ListObjects(ctx, s.bucket, minioOpts) {
		if obj.Err != nil {
			return ListResult{}, wrapMinioError("list", opts.Prefix, obj.Err)
		}

		if opts.Delimiter != "" && isCommonPrefix(obj.Key, opts.Prefix, opts.Delimiter) {
			if seen[obj.Key] {
				continue
			}
			seen[obj.Key] = true
			result.CommonPrefixes = append(result.CommonPrefixes, obj.Key)
		} else {
			result.Objects = append(result.Objects, Object{
				Key:          obj.Key,
				Size:         obj.Size,
				LastModified: obj.LastModified,
				ContentType:  obj.ContentType,
			})
		}

		count++
		if opts.MaxKeys > 0 && count >= opts.MaxKeys {
			break
		}
	}

	return result, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return wrapMinioError("put", key, err)
}

// Get opens the object and stats it so a missing key fails here rather than
// on the first Read.
func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapMinioError("get", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, wrapMinioError("get", key, err)
	}
	return obj, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	return wrapMinioError("delete", key, s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}))
}

// DeleteMany streams keys into RemoveObjects, which batches them into
// multi-object delete requests.
func (s *MinioStore) DeleteMany(ctx context.Context, keys []string) ([]KeyError, error) {
	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, key := range keys {
			select {
			case objectsCh <- minio.ObjectInfo{Key: key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var failed []KeyError
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed = append(failed, KeyError{
			Key: rErr.ObjectName,
			Err: wrapMinioError("delete", rErr.ObjectName, rErr.Err),
		})
	}
	if err := ctx.Err(); err != nil {
		return failed, err
	}
	return failed, nil
}

func (s *MinioStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, nil)
	if err != nil {
		return "", wrapMinioError("presign", key, err)
	}
	return u.String(), nil
}

func wrapMinioError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	storeErr := &StoreError{
		Op:      op,
		Key:     key,
		Code:    resp.Code,
		Message: resp.Message,
		Err:     err,
	}
	if storeErr.Message == "" {
		storeErr.Message = err.Error()
	}
	return storeErr
}

// isCommonPrefix reports whether a non-recursive listing entry is a rolled-up
// sub-prefix rather than an object. A marker equal to the listed prefix is an object.
func isCommonPrefix(key, prefix, delimiter string) bool {
	return strings.HasSuffix(key, delimiter) && key != prefix
}

// splitEndpoint accepts either a bare host:port or a URL. An explicit scheme
// wins; otherwise shouldUseSSL decides.
func splitEndpoint(endpoint string) (host string, secure bool) {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https") {
		return u.Host, u.Scheme == "https"
	}
	host = strings.TrimSuffix(endpoint, "/")
	return host, shouldUseSSL(host)
}

// shouldUseSSL determines if SSL should be used based on the endpoint.
// Returns false for localhost, 127.0.0.1, and docker service names.
func shouldUseSSL(endpoint string) bool {
	// Local development endpoints
	if endpoint == "localhost:9000" || endpoint == "127.0.0.1:9000" {
		return false
	}
	// Docker service names (minio:9000, minio1:9000, minio2:9000, etc.)
	// Only match simple hostnames without dots (not domain names like minio.example.com)
	if strings.HasPrefix(endpoint, "minio") && !strings.Contains(strings.Split(endpoint, ":")[0], ".") && strings.Contains(endpoint, ":9000") {
		return false
	}
	return true
}
