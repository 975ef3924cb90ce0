package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// deleteBatchSize is the DeleteObjects per-request key limit
const deleteBatchSize = 1000

// S3API is the subset of *s3.Client the store uses
type S3API interface {
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
}

// S3Presigner is the subset of *s3.PresignClient the store uses
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements ObjectStore with the AWS SDK. R2 is reached through a
// custom base endpoint with path-style addressing and region "auto".
type S3Store struct {
	api     S3API
	presign S3Presigner
	bucket  string
}

// NewS3Store builds an S3 client for cfg with static credentials
func NewS3Store(ctx context.Context, cfg StoreConfig) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint))
		}
		o.UsePathStyle = true
	})

	return NewS3StoreWithClient(client, awss3.NewPresignClient(client), cfg.Bucket), nil
}

// NewS3StoreWithClient wraps an existing client. presign may be nil.
func NewS3StoreWithClient(api S3API, presign S3Presigner, bucket string) *S3Store {
	return &S3Store{api: api, presign: presign, bucket: bucket}
}

func (s *S3Store) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.MaxKeys > 0 && opts.MaxKeys < 1000 {
		input.MaxKeys = aws.Int32(int32(opts.MaxKeys))
	}

	var result ListResult
	count := 0
	limitReached := func() bool {
		return opts.MaxKeys > 0 && count >= opts.MaxKeys
	}

	paginator := awss3.NewListObjectsV2Paginator(s.api, input)
	for paginator.HasMorePages() && !limitReached() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return ListResult{}, wrapS3Error("list", opts.Prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			if limitReached() {
				break
			}
			result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(cp.Prefix))
			count++
		}
		for _, obj := range page.Contents {
			if limitReached() {
				break
			}
			result.Objects = append(result.Objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
			count++
		}
	}

	return result, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := s.api.PutObject(ctx, input)
	return wrapS3Error("put", key, err)
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapS3Error("get", key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return wrapS3Error("delete", key, err)
}

// DeleteMany issues DeleteObjects in chunks of 1000 keys. Per-key refusals
// come back as KeyErrors; a failed request aborts the remaining chunks.
func (s *S3Store) DeleteMany(ctx context.Context, keys []string) ([]KeyError, error) {
	var failed []KeyError

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		batch := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			batch = append(batch, s3types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.api.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{
				Objects: batch,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return failed, wrapS3Error("delete", keys[start], err)
		}

		for _, e := range out.Errors {
			key := aws.ToString(e.Key)
			failed = append(failed, KeyError{
				Key: key,
				Err: &StoreError{
					Op:      "delete",
					Key:     key,
					Code:    aws.ToString(e.Code),
					Message: aws.ToString(e.Message),
				},
			})
		}
	}

	return failed, nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if s.presign == nil {
		return "", &StoreError{Op: "presign", Key: key, Code: CodeNotImplemented, Message: "presigning is not configured"}
	}
	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(expires))
	if err != nil {
		return "", wrapS3Error("presign", key, err)
	}
	return req.URL, nil
}

func wrapS3Error(op, key string, err error) error {
	if err == nil {
		return nil
	}
	storeErr := &StoreError{Op: op, Key: key, Message: err.Error(), Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		storeErr.Code = apiErr.ErrorCode()
		if msg := apiErr.ErrorMessage(); msg != "" {
			storeErr.Message = msg
		}
	}
	return storeErr
}

// withScheme defaults a bare host to https, the only scheme R2 serves
func withScheme(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return strings.TrimSuffix(endpoint, "/")
	}
	return "https://" + strings.TrimSuffix(endpoint, "/")
}
