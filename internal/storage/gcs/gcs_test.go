package gcs

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/fsouza/fake-gcs-server/fakestorage"

	swampStorage "github.com/data-douser/swamp-go/internal/storage"
)

// testServer is an in-memory fake-gcs-server holding one bucket.
type testServer struct {
	*fakestorage.Server
	bucket string
}

func newTestServer(t *testing.T, bucket string) *testServer {
	t.Helper()

	server, err := fakestorage.NewServerWithOptions(fakestorage.Options{
		NoListener: true,
	})
	if err != nil {
		t.Fatalf("failed to create fake GCS server: %v", err)
	}

	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: bucket})

	return &testServer{
		Server: server,
		bucket: bucket,
	}
}

func (s *testServer) createFile(t *testing.T, path string, content []byte, contentType string) {
	t.Helper()

	s.CreateObject(fakestorage.Object{
		ObjectAttrs: fakestorage.ObjectAttrs{
			BucketName:  s.bucket,
			Name:        path,
			ContentType: contentType,
		},
		Content: content,
	})
}

func newBackend(t *testing.T, server *testServer, prefix string) *Backend {
	t.Helper()
	backend, err := New(context.Background(), Config{
		Bucket: server.bucket,
		Client: server.Client(),
		Prefix: prefix,
	})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return backend
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("missing bucket", func(t *testing.T) {
		_, err := New(ctx, Config{})
		if err == nil {
			t.Fatal("expected error for missing bucket")
		}
		if !strings.Contains(err.Error(), "bucket is required") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing credentials file", func(t *testing.T) {
		_, err := New(ctx, Config{Bucket: "b", CredentialsFile: "/nonexistent/key.json"})
		if err == nil || !strings.Contains(err.Error(), "read credentials") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("with injected client", func(t *testing.T) {
		server := newTestServer(t, "test-bucket")
		defer server.Stop()

		backend := newBackend(t, server, "")
		defer backend.Close()

		if backend.Type() != "gcs" {
			t.Errorf("Type() = %q, want %q", backend.Type(), "gcs")
		}
	})

	prefixes := []struct {
		name   string
		prefix string
		want   string
	}{
		{"prefix without trailing slash", "sessions", "sessions/"},
		{"prefix with trailing slash", "sessions/", "sessions/"},
		{"no prefix", "", ""},
	}
	for _, tt := range prefixes {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, "test-bucket")
			defer server.Stop()

			backend := newBackend(t, server, tt.prefix)
			defer backend.Close()

			if backend.prefix != tt.want {
				t.Errorf("prefix = %q, want %q", backend.prefix, tt.want)
			}
		})
	}
}

func TestBackend_PutGet(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t, "test-bucket")
	defer server.Stop()

	backend := newBackend(t, server, "swamp/")
	defer backend.Close()

	testContent := []byte(`{"host":"https://www.mir-swamp.org/"}`)
	if err := backend.Put(ctx, "csa_session.json", bytes.NewReader(testContent), "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// The object lands under the prefix.
	obj, err := server.GetObject("test-bucket", "swamp/csa_session.json")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if !bytes.Equal(obj.Content, testContent) {
		t.Errorf("stored content = %q", obj.Content)
	}

	reader, size, contentType, err := backend.Get(ctx, "csa_session.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer reader.Close()

	if size != int64(len(testContent)) {
		t.Errorf("Get() size = %d, want %d", size, len(testContent))
	}
	if contentType != "application/json" {
		t.Errorf("Get() contentType = %q, want %q", contentType, "application/json")
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(content, testContent) {
		t.Errorf("Get() content = %q, want %q", string(content), string(testContent))
	}
}

func TestBackend_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t, "test-bucket")
	defer server.Stop()

	backend := newBackend(t, server, "")
	defer backend.Close()

	_, _, _, err := backend.Get(ctx, "nonexistent-file.txt")
	if !swampStorage.IsNotFound(err) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestBackend_Get_DefaultContentType(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t, "test-bucket")
	defer server.Stop()

	server.createFile(t, "results/run-1.xml", []byte("<AnalyzerReport/>"), "")

	backend := newBackend(t, server, "")
	defer backend.Close()

	reader, _, contentType, err := backend.Get(ctx, "results/run-1.xml")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer reader.Close()

	if contentType != "application/octet-stream" {
		t.Errorf("Get() contentType = %q, want %q", contentType, "application/octet-stream")
	}
}

func TestBackend_Exists(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t, "test-bucket")
	defer server.Stop()

	server.createFile(t, "existing-file.txt", []byte("content"), "text/plain")

	backend := newBackend(t, server, "")
	defer backend.Close()

	tests := []struct {
		name string
		want bool
	}{
		{"existing-file.txt", true},
		{"missing-file.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := backend.Exists(ctx, tt.name)
			if err != nil {
				t.Fatalf("Exists() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Exists(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestBackend_ListDelete(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t, "test-bucket")
	defer server.Stop()

	server.createFile(t, "swamp/results/b.xml", []byte("b"), "application/xml")
	server.createFile(t, "swamp/results/a.xml", []byte("a"), "application/xml")
	server.createFile(t, "swamp/rws_session.json", []byte("{}"), "application/json")
	server.createFile(t, "other/results/c.xml", []byte("c"), "application/xml")

	backend := newBackend(t, server, "swamp")
	defer backend.Close()

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
	if err := backend.Delete(ctx, "results/a.xml"); !swampStorage.IsNotFound(err) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	got, err = backend.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if want := []string{"results/b.xml", "rws_session.json"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() after delete = %v, want %v", got, want)
	}
}

func TestBackend_objectPath(t *testing.T) {
	server := newTestServer(t, "test-bucket")
	defer server.Stop()

	t.Run("without prefix", func(t *testing.T) {
		backend := newBackend(t, server, "")
		if path := backend.objectPath("test.txt"); path != "test.txt" {
			t.Errorf("objectPath() = %q, want %q", path, "test.txt")
		}
	})

	t.Run("with prefix", func(t *testing.T) {
		backend := newBackend(t, server, "sessions/")
		if path := backend.objectPath("test.txt"); path != "sessions/test.txt" {
			t.Errorf("objectPath() = %q, want %q", path, "sessions/test.txt")
		}
	})
}
