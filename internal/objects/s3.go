package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Store implements Store against AWS S3 or an S3-compatible endpoint
// (MinIO, SeaweedFS, ...). Unlike the single-bucket teacher store this one
// is bucket-per-call, matching spec.md's caller-supplied (bucket, key) pairs.
type S3Store struct {
	client *s3.Client
}

// S3Config configures the underlying client.
type S3Config struct {
	Region    string
	Endpoint  string // optional: S3-compatible services like MinIO/SeaweedFS
	AccessKey string
	SecretKey string
}

// NewS3Store creates a new S3-backed Store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts = append(opts, config.WithRegion(region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Store{client: s3.NewFromConfig(awsCfg, clientOpts...)}, nil
}

// NewS3StoreFromEnv builds an S3Store from AWS_REGION, AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY and SHEPHERD_S3_ENDPOINT.
func NewS3StoreFromEnv(ctx context.Context) (*S3Store, error) {
	return NewS3Store(ctx, S3Config{
		Region:    os.Getenv("AWS_REGION"),
		Endpoint:  os.Getenv("SHEPHERD_S3_ENDPOINT"),
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	})
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if bucket == "" || key == "" {
		return nil, ErrInvalidKey
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		if isTransient(err) {
			return nil, markTransient(fmt.Errorf("get %s/%s: %w", bucket, key, err))
		}
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, data io.Reader) error {
	if bucket == "" || key == "" {
		return ErrInvalidKey
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		if isTransient(err) {
			return markTransient(fmt.Errorf("put %s/%s: %w", bucket, key, err))
		}
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// isTransient classifies S3 errors per spec.md §4.3: network errors and 5xx
// are retried, not-found and other 4xx (except 429) are permanent.
func isTransient(err error) bool {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		return code >= 500 || code == http.StatusTooManyRequests
	}
	// No structured HTTP response at all usually means a network-level
	// failure (timeout, connection reset) — treat as transient.
	return true
}

var _ Store = (*S3Store)(nil)
