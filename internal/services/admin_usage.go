package services

import (
	"context"

	"github.com/minio/madmin-go/v3"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioAdminClient is the madmin method we use
type MinioAdminClient interface {
	DataUsageInfo(ctx context.Context) (madmin.DataUsageInfo, error)
}

// AdminUsage reads bucket totals from the MinIO scanner instead of listing
// every object. Only MinIO serves the admin API.
type AdminUsage struct {
	client MinioAdminClient
}

func NewAdminUsage(cfg StoreConfig) (*AdminUsage, error) {
	host, secure := splitEndpoint(cfg.Endpoint)
	client, err := madmin.NewWithOptions(host, &madmin.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}
	return &AdminUsage{client: client}, nil
}

func (u *AdminUsage) BucketUsage(ctx context.Context, bucket string) (uint64, uint64, error) {
	info, err := u.client.DataUsageInfo(ctx)
	if err != nil {
		return 0, 0, wrapMinioError("usage", bucket, err)
	}

	usage, ok := info.BucketsUsage[bucket]
	if !ok {
		// The scanner has not reached a freshly created bucket yet
		return 0, 0, &StoreError{Op: "usage", Key: bucket, Code: "NoSuchBucket", Message: "no usage data for bucket " + bucket}
	}
	return usage.ObjectsCount, usage.Size, nil
}
