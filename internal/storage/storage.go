// Package storage defines the blob store used for persisted sessions and
// exported assessment artifacts.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// Backend is a flat namespace of named objects. Names use "/" as the
// separator regardless of the backend.
type Backend interface {
	// Type returns the storage backend type identifier (e.g., "local", "gcs", "s3").
	Type() string

	// Put stores the content of r under name, replacing any existing object.
	Put(ctx context.Context, name string, r io.Reader, contentType string) error

	// Get retrieves an object and returns a ReadCloser with its size and
	// content type. The caller is responsible for closing the reader.
	Get(ctx context.Context, name string) (io.ReadCloser, int64, string, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes an object. Deleting a missing object returns ErrNotFound.
	Delete(ctx context.Context, name string) error

	// List returns the names of all objects starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the storage backend.
	Close() error
}

// ErrNotFound is returned when a requested file does not exist.
type ErrNotFound struct {
	Path string
}

func (e *ErrNotFound) Error() string {
	return "file not found: " + e.Path
}

// IsNotFound reports whether err is or wraps an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// ReadAll fetches an object fully into memory.
func ReadAll(ctx context.Context, b Backend, name string) ([]byte, error) {
	rc, _, _, err := b.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close() //nolint:errcheck // Best effort close
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// WriteAll stores data under name.
func WriteAll(ctx context.Context, b Backend, name string, data []byte, contentType string) error {
	return b.Put(ctx, name, bytes.NewReader(data), contentType)
}
