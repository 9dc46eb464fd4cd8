// Package gcs stores session files and exported reports in a Google Cloud
// Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	swampStorage "github.com/data-douser/swamp-go/internal/storage"
)

const defaultContentType = "application/octet-stream"

// Backend implements storage.Backend on one bucket. Object names are
// joined to an optional prefix.
type Backend struct {
	client *storage.Client
	bucket string
	prefix string
}

// Config configures a Backend.
type Config struct {
	Bucket string
	Prefix string

	// CredentialsFile names a service account key. Application Default
	// Credentials are used when it is empty.
	CredentialsFile string

	// Client replaces the client New would build. CredentialsFile is
	// ignored when it is set.
	Client *storage.Client
}

// New validates cfg and connects to the bucket's service.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs storage: bucket is required")
	}
	client := cfg.Client
	if client == nil {
		var err error
		if client, err = newClient(ctx, cfg.CredentialsFile); err != nil {
			return nil, err
		}
	}
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Backend{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

func newClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		key, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("gcs storage: read credentials: %w", err)
		}
		//nolint:staticcheck // SA1019: service account keys still load through WithCredentialsJSON
		opts = append(opts, option.WithCredentialsJSON(key))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage: new client: %w", err)
	}
	return client, nil
}

func (b *Backend) Type() string { return "gcs" }

func (b *Backend) objectPath(name string) string {
	return b.prefix + name
}

func (b *Backend) object(name string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.objectPath(name))
}

// Put writes r to the object name, replacing any previous content.
func (b *Backend) Put(ctx context.Context, name string, r io.Reader, contentType string) error {
	w := b.object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close() //nolint:errcheck // the copy error wins
		return fmt.Errorf("gcs storage: write %s: %w", b.objectPath(name), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs storage: finalize %s: %w", b.objectPath(name), err)
	}
	return nil
}

// Get opens the object name. The size and content type come from the
// reader's attributes; objects stored without a type report
// application/octet-stream.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, int64, string, error) {
	rd, err := b.object(name).NewReader(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return nil, 0, "", &swampStorage.ErrNotFound{Path: b.objectPath(name)}
	case err != nil:
		return nil, 0, "", fmt.Errorf("gcs storage: read %s: %w", b.objectPath(name), err)
	}
	ct := rd.Attrs.ContentType
	if ct == "" {
		ct = defaultContentType
	}
	return rd, rd.Attrs.Size, ct, nil
}

func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	err := b.object(name).Delete(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return &swampStorage.ErrNotFound{Path: b.objectPath(name)}
	case err != nil:
		return fmt.Errorf("gcs storage: delete %s: %w", b.objectPath(name), err)
	}
	return nil
}

// List returns the sorted names under prefix, without the backend prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: b.objectPath(prefix)})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs storage: list %s: %w", b.objectPath(prefix), err)
		}
		names = append(names, strings.TrimPrefix(attrs.Name, b.prefix))
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}
