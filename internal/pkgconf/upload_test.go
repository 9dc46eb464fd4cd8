package pkgconf

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/fakeswamp"
	"github.com/data-douser/swamp-go/internal/handler"
	"github.com/data-douser/swamp-go/internal/session"
)

func newUploader(t *testing.T, opts fakeswamp.Options) (*Uploader, *fakeswamp.Server) {
	t.Helper()
	fake := fakeswamp.New(opts)
	fake.AddUser("alice", "secret", fakeswamp.Object{"user_uid": "u-1", "first_name": "Alice"})
	fake.AddProject(fakeswamp.Object{"project_uid": "p-1", "full_name": "Alpha", "project_owner_uid": "u-1"})
	fake.AddPackageType("C/C++", "1", "plat-c")
	fake.AddPlatform(fakeswamp.Object{"platform_uuid": "plat-c", "name": "CentOS Linux 6 64-bit"})
	fake.AddPlatformVersion(fakeswamp.Object{"platform_version_uuid": "pv-c1", "platform_uuid": "plat-c", "full_name": "CentOS Linux 6.7 64-bit"})
	srv := fake.Start()
	t.Cleanup(srv.Close)

	s, err := session.Login(context.Background(), session.Options{Host: srv.URL, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return NewUploader(handler.NewFactory(s, handler.Options{}), nil), fake
}

func mustParse(t *testing.T, conf string) *Conf {
	t.Helper()
	c, err := Parse(strings.NewReader(conf))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return c
}

func TestUploader_Upload(t *testing.T) {
	ctx := context.Background()
	u, fake := newUploader(t, fakeswamp.Options{})

	v, err := u.Upload(ctx, Upload{
		Conf:         mustParse(t, helloConf),
		Archive:      strings.NewReader("tarball"),
		Filename:     "hello-1.0.tar.gz",
		ProjectID:    "p-1",
		Dependencies: map[string]string{"centos linux 6.7 64-bit": "gcc", "Solaris 11": "cc"},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	pkgs := fake.Packages()
	if len(pkgs) != 1 {
		t.Fatalf("Packages() = %d, want 1", len(pkgs))
	}
	if pkgs[0]["name"] != "hello" || pkgs[0]["package_type_id"] != "1" || pkgs[0]["description"] != DefaultDescription {
		t.Errorf("stored package = %v", pkgs[0])
	}
	if v.VersionString() != "1.0" || v.Package == nil || v.Package.Name() != "hello" {
		t.Errorf("Upload() = %v", v.Fields())
	}
	stored := fake.Versions()[0]
	if stored["build_system"] != "make" || stored["source_path"] != "hello-1.0" {
		t.Errorf("stored version = %v", stored)
	}
	if got := fake.Sharing(v.ID()); len(got) != 1 || got[0] != "p-1" {
		t.Errorf("Sharing() = %v", got)
	}
	deps := fake.Dependencies()
	if len(deps) != 1 || deps[0]["platform_version_uuid"] != "pv-c1" || deps[0]["dependency_list"] != "gcc" {
		t.Errorf("Dependencies() = %v", deps)
	}

	// A second version reuses the package.
	conf := mustParse(t, strings.Replace(helloConf, "package-version = 1.0", "package-version = 1.1", 1))
	if _, err := u.Upload(ctx, Upload{Conf: conf, Archive: strings.NewReader("tarball 2"), Filename: "hello-1.1.tar.gz", ProjectID: "p-1"}); err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}
	if n := len(fake.Packages()); n != 1 {
		t.Errorf("Packages() = %d after second upload, want 1", n)
	}
	if n := len(fake.Versions()); n != 2 {
		t.Errorf("Versions() = %d, want 2", n)
	}
}

func TestUploader_FallbackTypeID(t *testing.T) {
	u, fake := newUploader(t, fakeswamp.Options{FailPackageTypes: true})
	conf := mustParse(t, "package-short-name=snake\npackage-version=2\npackage-language=Python-3\n")
	if _, err := u.Upload(context.Background(), Upload{Conf: conf, Archive: strings.NewReader("x"), Filename: "snake.zip", ProjectID: "p-1"}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got := fake.Packages()[0]["package_type_id"]; got != "5" {
		t.Errorf("package_type_id = %v, want 5", got)
	}
}

func TestUploader_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		up      Upload
		wantErr any
	}{
		{
			name:    "invalid conf",
			up:      Upload{Conf: mustParse(t, "package-version=1\n"), Archive: strings.NewReader("x"), Filename: "a.tgz", ProjectID: "p-1"},
			wantErr: new(*errdefs.ParserError),
		},
		{
			name:    "unknown project",
			up:      Upload{Conf: mustParse(t, helloConf), Archive: strings.NewReader("x"), Filename: "a.tgz", ProjectID: "p-9"},
			wantErr: new(*errdefs.InvalidIdentifierError),
		},
		{
			name:    "no archive",
			up:      Upload{Conf: mustParse(t, helloConf), ProjectID: "p-1"},
			wantErr: new(*errdefs.ClientOptionError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, fake := newUploader(t, fakeswamp.Options{})
			_, err := u.Upload(context.Background(), tt.up)
			if err == nil || !errors.As(err, tt.wantErr) {
				t.Fatalf("Upload() error = %v, want %T", err, tt.wantErr)
			}
			if n := fake.Requests("POST", "/packages"); n != 0 {
				t.Errorf("POST /packages = %d, want 0", n)
			}
		})
	}
}
