// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/data-douser/swamp-go/internal/storage"
)

func TestNew(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "local-storage-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	filePath := filepath.Join(tempDir, "plain-file")
	if err := os.WriteFile(filePath, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr string
	}{
		{
			name:    "valid config",
			cfg:     Config{BasePath: tempDir},
			wantErr: false,
		},
		{
			name:      "empty base path",
			cfg:       Config{BasePath: ""},
			wantErr:   true,
			errSubstr: "base path is required",
		},
		{
			name:      "non-existent directory",
			cfg:       Config{BasePath: filepath.Join(tempDir, "missing")},
			wantErr:   true,
			errSubstr: "does not exist",
		},
		{
			name:    "non-existent directory with create",
			cfg:     Config{BasePath: filepath.Join(tempDir, "created", "nested"), Create: true},
			wantErr: false,
		},
		{
			name:      "path is a file not directory",
			cfg:       Config{BasePath: filePath},
			wantErr:   true,
			errSubstr: "not a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if backend.Type() != "local" {
				t.Errorf("Type() = %q, want %q", backend.Type(), "local")
			}
		})
	}
}

func TestBackend_PutGet(t *testing.T) {
	ctx := context.Background()
	backend, err := New(Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := backend.Put(ctx, "csa_session.json", strings.NewReader(`{"host":"h"}`), "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, size, contentType, err := backend.Get(ctx, "csa_session.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != `{"host":"h"}` || size != int64(len(data)) {
		t.Errorf("Get() = %q (%d bytes)", data, size)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}

	if err := backend.Put(ctx, "csa_session.json", strings.NewReader(`{}`), ""); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	data, err = storage.ReadAll(ctx, backend, "csa_session.json")
	if err != nil || string(data) != `{}` {
		t.Errorf("after overwrite = %q, %v", data, err)
	}
}

func TestBackend_FileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := New(Config{BasePath: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := backend.Put(ctx, "nested/rws_cookies.json", strings.NewReader("[]"), ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "nested", "rws_cookies.json"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
	dirInfo, err := os.Stat(filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0o700 {
		t.Errorf("dir mode = %o, want 700", perm)
	}
}

func TestBackend_NotFound(t *testing.T) {
	ctx := context.Background()
	backend, err := New(Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, _, _, err := backend.Get(ctx, "nope.json"); !storage.IsNotFound(err) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := backend.Delete(ctx, "nope.json"); !storage.IsNotFound(err) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	exists, err := backend.Exists(ctx, "nope.json")
	if err != nil || exists {
		t.Errorf("Exists() = %v, %v", exists, err)
	}
}

func TestBackend_PathTraversal(t *testing.T) {
	ctx := context.Background()
	backend, err := New(Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, name := range []string{"../escape", "a/../../escape", ""} {
		t.Run(name, func(t *testing.T) {
			if err := backend.Put(ctx, name, strings.NewReader("x"), ""); err == nil {
				t.Errorf("Put(%q) succeeded", name)
			}
			if _, _, _, err := backend.Get(ctx, name); err == nil {
				t.Errorf("Get(%q) succeeded", name)
			}
		})
	}
}

func TestBackend_ListDelete(t *testing.T) {
	ctx := context.Background()
	backend, err := New(Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, name := range []string{"results/b.xml", "results/a.xml", "csa_session.json"} {
		if err := storage.WriteAll(ctx, backend, name, []byte(name), ""); err != nil {
			t.Fatalf("WriteAll(%s) error = %v", name, err)
		}
	}

	got, err := backend.List(ctx, "results/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if want := []string{"results/a.xml", "results/b.xml"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}

	if err := backend.Delete(ctx, "results/a.xml"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = backend.List(ctx, "")
	if want := []string{"csa_session.json", "results/b.xml"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() after delete = %v, want %v", got, want)
	}
}
