// Package s3 provides an S3-compatible storage backend built on minio-go.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/data-douser/swamp-go/internal/storage"
)

// Config holds configuration for the S3 storage backend.
type Config struct {
	// Endpoint is the host[:port] of the S3 service (required).
	Endpoint string

	// Region defaults to us-east-1.
	Region string

	AccessKey string
	SecretKey string

	// Bucket is created on first use when missing (required).
	Bucket string

	// Prefix is an optional key prefix within the bucket.
	Prefix string

	UseSSL bool
}

// Backend implements storage.Backend for S3-compatible object stores.
type Backend struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	initOnce sync.Once
	initErr  error
}

// New creates a new S3 storage backend. No request is made until first use.
func New(cfg Config) (*Backend, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 storage: endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 storage: access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 storage: init client: %w", err)
	}

	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Backend{
		client: client,
		bucket: bucket,
		region: region,
		prefix: prefix,
	}, nil
}

// Type returns the storage backend type identifier.
func (b *Backend) Type() string {
	return "s3"
}

func (b *Backend) key(name string) string {
	return b.prefix + name
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	b.initOnce.Do(func() {
		exists, err := b.client.BucketExists(ctx, b.bucket)
		if err != nil {
			b.initErr = err
			return
		}
		if exists {
			return
		}
		b.initErr = b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region})
	})
	return b.initErr
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// Put uploads the content of r. The content is buffered so the request can
// carry an exact length.
func (b *Backend) Put(ctx context.Context, name string, r io.Reader, contentType string) error {
	if err := b.ensureBucket(ctx); err != nil {
		return fmt.Errorf("s3 storage: ensure bucket: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("s3 storage: read %s: %w", name, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = b.client.PutObject(ctx, b.bucket, b.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("s3 storage: put %s: %w", name, err)
	}
	return nil
}

// Get retrieves an object.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, int64, string, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return nil, 0, "", fmt.Errorf("s3 storage: ensure bucket: %w", err)
	}
	key := b.key(name)
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, "", &storage.ErrNotFound{Path: key}
		}
		return nil, 0, "", fmt.Errorf("s3 storage: stat %s: %w", key, err)
	}
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, "", fmt.Errorf("s3 storage: get %s: %w", key, err)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return obj, info.Size, contentType, nil
}

// Exists checks if an object exists.
func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return false, fmt.Errorf("s3 storage: ensure bucket: %w", err)
	}
	_, err := b.client.StatObject(ctx, b.bucket, b.key(name), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes an object. S3 accepts deletes of missing keys, so
// existence is checked first and a missing object reports ErrNotFound.
func (b *Backend) Delete(ctx context.Context, name string) error {
	exists, err := b.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return &storage.ErrNotFound{Path: b.key(name)}
	}
	if err := b.client.RemoveObject(ctx, b.bucket, b.key(name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3 storage: delete %s: %w", name, err)
	}
	return nil
}

// List returns object names under prefix, relative to the backend prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("s3 storage: ensure bucket: %w", err)
	}
	var names []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    b.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 storage: list: %w", obj.Err)
		}
		names = append(names, strings.TrimPrefix(obj.Key, b.prefix))
	}
	sort.Strings(names)
	return names, nil
}

// Close releases any resources held by the backend.
func (b *Backend) Close() error {
	return nil
}
