// Package s3 provides an S3-compatible blob backend with metrics.
// Containers map to buckets.
package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/metrics"
	"github.com/promptfunc/promptfunc/internal/storage"
)

// BackendConfig is a JSON-serializable config for S3 backends.
type BackendConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
}

// endpointURL adds a scheme to a bare host:port endpoint based on UseSSL.
func (c BackendConfig) endpointURL() string {
	if c.Endpoint == "" || strings.Contains(c.Endpoint, "://") {
		return c.Endpoint
	}
	if c.UseSSL {
		return "https://" + c.Endpoint
	}
	return "http://" + c.Endpoint
}

// S3Backend implements storage.Backend using S3/MinIO.
type S3Backend struct {
	client *s3.Client
}

// NewBackend creates a new S3 backend from a BackendConfig.
func NewBackend(ctx context.Context, cfg BackendConfig) (*S3Backend, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.endpointURL()
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	logging.Info("S3 backend configured",
		zap.String("endpoint", endpoint),
		zap.String("region", cfg.Region))

	return &S3Backend{client: client}, nil
}

// NewBackendFromJSON creates an S3Backend from raw JSON config.
func NewBackendFromJSON(ctx context.Context, raw json.RawMessage) (*S3Backend, error) {
	var cfg BackendConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return NewBackend(ctx, cfg)
}

// StatObject issues a HEAD request for the object.
func (b *S3Backend) StatObject(ctx context.Context, container, name string) (storage.ObjectInfo, error) {
	start := time.Now()

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		metrics.RecordStorageOperation("s3", "head_object", time.Since(start), false)
		if isNotFound(err) {
			return storage.ObjectInfo{}, fmt.Errorf("%s/%s: %w", container, name, storage.ErrObjectNotFound)
		}
		return storage.ObjectInfo{}, fmt.Errorf("head object %s/%s: %w", container, name, err)
	}

	metrics.RecordStorageOperation("s3", "head_object", time.Since(start), true)
	return storage.ObjectInfo{
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}

// OpenObject starts a GET for the whole object and returns its body.
func (b *S3Backend) OpenObject(ctx context.Context, container, name string) (io.ReadCloser, storage.ObjectInfo, error) {
	start := time.Now()

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		metrics.RecordStorageOperation("s3", "get_object", time.Since(start), false)
		if isNotFound(err) {
			return nil, storage.ObjectInfo{}, fmt.Errorf("%s/%s: %w", container, name, storage.ErrObjectNotFound)
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("get object %s/%s: %w", container, name, err)
	}

	metrics.RecordStorageOperation("s3", "get_object", time.Since(start), true)

	info := storage.ObjectInfo{
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}
	logging.Debug("S3 get object",
		zap.String("bucket", container),
		zap.String("key", name),
		zap.Int64("size", info.Size))

	return out.Body, info, nil
}

// isNotFound recognizes the several shapes S3 and S3-compatible servers use for a missing key or bucket.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

// Type returns "s3".
func (b *S3Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends.
func (b *S3Backend) Close() error { return nil }
