package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3ListTimeout bounds every listing call
const S3ListTimeout = 30 * time.Second

// Bucket is one bucket reported by the S3 endpoint
type Bucket struct {
	Name    string
	Created time.Time
}

// Object is one object key reported by the S3 endpoint
type Object struct {
	Key  string
	Size int64
}

// S3Client wraps the MinIO SDK for the read-only S3-protocol check
type S3Client struct {
	client   *minio.Client
	endpoint string
	logger   *slog.Logger
}

// NewS3Client creates a new S3 client for the given endpoint and credentials.
// endpoint is host[:port]; use ParseEndpoint to split a URL.
func NewS3Client(endpoint, accessKey, secretKey string, useSSL bool, region string, logger *slog.Logger) (*S3Client, error) {
	start := time.Now()

	opts := &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		BucketLookup: minio.BucketLookupPath,
	}

	if region == "" {
		region = ExtractRegionFromEndpoint(endpoint)
	}
	if region != "" {
		opts.Region = region
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		logger.Error("Failed to create S3 client",
			"endpoint", endpoint,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, CategorizeS3Error(S3OpConnect, endpoint, fmt.Errorf("failed to create S3 client: %w", err))
	}

	logger.Debug("S3 client created",
		"endpoint", endpoint,
		"ssl", useSSL,
		"region", region,
		"duration_ms", time.Since(start).Milliseconds())

	return &S3Client{
		client:   client,
		endpoint: endpoint,
		logger:   logger,
	}, nil
}

// ListBuckets returns every bucket visible to the credentials
func (c *S3Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, S3ListTimeout)
	defer cancel()

	infos, err := c.client.ListBuckets(ctx)
	if err != nil {
		c.logger.Error("S3 bucket listing failed",
			"endpoint", c.endpoint,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, CategorizeS3Error(S3OpListBuckets, c.endpoint, err)
	}

	buckets := make([]Bucket, 0, len(infos))
	for _, info := range infos {
		buckets = append(buckets, Bucket{Name: info.Name, Created: info.CreationDate})
	}

	c.logger.Debug("S3 buckets listed",
		"endpoint", c.endpoint,
		"count", len(buckets),
		"duration_ms", time.Since(start).Milliseconds())
	return buckets, nil
}

// ListObjects returns at most limit objects from the top level of bucket
func (c *S3Client) ListObjects(ctx context.Context, bucket string, limit int) ([]Object, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, S3ListTimeout)
	defer cancel()

	var objects []Object
	for info := range c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{MaxKeys: limit}) {
		if info.Err != nil {
			c.logger.Error("S3 object listing failed",
				"bucket", bucket,
				"error", info.Err,
				"duration_ms", time.Since(start).Milliseconds())
			return nil, CategorizeS3Error(S3OpListObjects, c.endpoint, info.Err)
		}
		objects = append(objects, Object{Key: info.Key, Size: info.Size})
		if limit > 0 && len(objects) >= limit {
			// stop early; cancelling the context ends the listing goroutine
			break
		}
	}

	c.logger.Debug("S3 objects listed",
		"bucket", bucket,
		"count", len(objects),
		"duration_ms", time.Since(start).Milliseconds())
	return objects, nil
}
