// Package storage tests for storage interface and error types.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
)

// memBackend is an in-memory Backend used to exercise the helpers.
type memBackend struct {
	objects map[string]string
	getErr  error
}

func (m *memBackend) Type() string { return "mem" }

func (m *memBackend) Put(ctx context.Context, name string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[name] = string(data)
	return nil
}

func (m *memBackend) Get(ctx context.Context, name string) (io.ReadCloser, int64, string, error) {
	if m.getErr != nil {
		return nil, 0, "", m.getErr
	}
	v, ok := m.objects[name]
	if !ok {
		return nil, 0, "", &ErrNotFound{Path: name}
	}
	return io.NopCloser(strings.NewReader(v)), int64(len(v)), "text/plain", nil
}

func (m *memBackend) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := m.objects[name]
	return ok, nil
}

func (m *memBackend) Delete(ctx context.Context, name string) error {
	delete(m.objects, name)
	return nil
}

func (m *memBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memBackend) Close() error { return nil }

func TestErrNotFound_Error(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "simple path",
			path:     "csa_session.json",
			expected: "file not found: csa_session.json",
		},
		{
			name:     "path with directory",
			path:     "results/run-1.xml",
			expected: "file not found: results/run-1.xml",
		},
		{
			name:     "empty path",
			path:     "",
			expected: "file not found: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &ErrNotFound{Path: tt.path}
			if err.Error() != tt.expected {
				t.Errorf("ErrNotFound{%q}.Error() = %q, want %q", tt.path, err.Error(), tt.expected)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("restore: %w", &ErrNotFound{Path: "x"})) {
		t.Error("IsNotFound(wrapped) = false")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("IsNotFound(other) = true")
	}
}

func TestReadWriteAll(t *testing.T) {
	ctx := context.Background()
	b := &memBackend{objects: map[string]string{}}

	if err := WriteAll(ctx, b, "a.json", []byte(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	data, err := ReadAll(ctx, b, "a.json")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("ReadAll() = %q", data)
	}

	if _, err := ReadAll(ctx, b, "missing"); !IsNotFound(err) {
		t.Errorf("ReadAll(missing) error = %v, want ErrNotFound", err)
	}

	b.getErr = errors.New("backend down")
	if _, err := ReadAll(ctx, b, "a.json"); err == nil || IsNotFound(err) {
		t.Errorf("ReadAll() error = %v, want backend error", err)
	}
}
