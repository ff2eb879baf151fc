// Package storage puts uploaded files into an S3-compatible object store.
//
// Any store that speaks the S3 API works: AWS itself, or MinIO / R2 / a
// Supabase bucket through a custom endpoint with path-style addressing.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sakif/snippet-vault/internal/metrics"
)

// ErrNotConfigured is returned by Disabled. Handlers map it to 503.
var ErrNotConfigured = errors.New("storage: object store not configured")

// ObjectStore is what the upload service needs from a bucket.
type ObjectStore interface {
	// Put stores size bytes of body under key and returns the URL browsers
	// should use. body is seekable so the SDK can hash and retry it.
	Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// Config describes the bucket. Endpoint is empty for AWS proper.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// PublicBaseURL is prefixed to object keys to form download URLs,
	// e.g. "https://cdn.example.com/uploads".
	PublicBaseURL string
}

// s3API is the subset of *s3.Client we call. Tests substitute it.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store implements ObjectStore on aws-sdk-go-v2.
type S3Store struct {
	client        s3API
	bucket        string
	publicBaseURL string
	breaker       *gobreaker.CircuitBreaker[struct{}]
}

const breakerName = "object-store"

// NewS3Store loads AWS configuration (static keys if given, otherwise the
// default credential chain) and builds the client once for the process.
func NewS3Store(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Store(client, cfg, logger), nil
}

func newS3Store(client s3API, cfg Config, logger *slog.Logger) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		breaker:       metrics.NewBreaker[struct{}](breakerName, logger),
	}
}

// Put sends an explicit ContentLength. S3 rejects a streamed PutObject
// without one.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) (string, error) {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType),
		})
		return struct{}{}, err
	})
	metrics.RecordBreakerResult(breakerName, err)
	if err != nil {
		return "", fmt.Errorf("storage: putting %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return struct{}{}, err
	})
	metrics.RecordBreakerResult(breakerName, err)
	if err != nil {
		return fmt.Errorf("storage: deleting %s: %w", key, err)
	}
	return nil
}

// PublicURL escapes each path segment of key and joins it to the base URL.
func (s *S3Store) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + strings.Join(segments, "/")
}

// Disabled is wired when no bucket is configured. Every call fails with
// ErrNotConfigured.
type Disabled struct{}

func (Disabled) Put(context.Context, string, string, io.ReadSeeker, int64) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Delete(context.Context, string) error {
	return ErrNotConfigured
}
