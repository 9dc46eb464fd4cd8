package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/data-douser/swamp-go/internal/errdefs"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Host != DefaultHost || c.Timeout != 60*time.Second || !c.RequireSecureCookies {
		t.Errorf("Default() = %+v", c)
	}
	if c.Retry.Attempts != 3 || c.Retry.BaseDelay != 500*time.Millisecond || c.CacheScopes != 64 {
		t.Errorf("Default() retry/cache = %+v %d", c.Retry, c.CacheScopes)
	}
	if filepath.Base(c.SessionDir) != ".SWAMP_SESSION" && filepath.Base(c.SessionDir) != "Swamp" {
		t.Errorf("SessionDir = %q", c.SessionDir)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `host: https://swamp.example.org
username: alice
timeout: 30s
retry:
  attempts: 5
default_platforms:
  C/C++: plat-c
storage:
  type: gcs
  bucket: sessions
export:
  type: local
  dir: out
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SWAMP_HOST", "")
	t.Setenv("SWAMP_TIMEOUT", "")
	t.Setenv("SWAMP_USERNAME", "bob")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Host != "https://swamp.example.org" || c.Username != "bob" || c.Timeout != 30*time.Second {
		t.Errorf("Load() = %+v", c)
	}
	if c.Retry.Attempts != 5 || c.Retry.BaseDelay != DefaultRetryBaseDelay {
		t.Errorf("Retry = %+v", c.Retry)
	}
	if c.DefaultPlatforms["C/C++"] != "plat-c" {
		t.Errorf("DefaultPlatforms = %v", c.DefaultPlatforms)
	}
	if s := c.SessionStorage(); s.Type != "gcs" || s.Bucket != "sessions" {
		t.Errorf("SessionStorage() = %+v", s)
	}
	if c.Export.Dir != "out" {
		t.Errorf("Export = %+v", c.Export)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load(explicit missing) error = nil")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SWAMP_HOST=https://dotenv.example.org\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "c.yaml")
	if err := os.WriteFile(cfgPath, []byte("{}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SWAMP_HOST", "")
	os.Unsetenv("SWAMP_HOST")

	c, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Host != "https://dotenv.example.org" {
		t.Errorf("Host = %q", c.Host)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(*Config) bool
		wantErr bool
	}{
		{
			name:  "strings",
			env:   map[string]string{"SWAMP_HOST": " https://h.example ", "SWAMP_PROXY": "http://proxy:3128"},
			check: func(c *Config) bool { return c.Host == "https://h.example" && c.Proxy == "http://proxy:3128" },
		},
		{
			name:  "empty ignored",
			env:   map[string]string{"SWAMP_HOST": ""},
			check: func(c *Config) bool { return c.Host == DefaultHost },
		},
		{
			name:  "bool",
			env:   map[string]string{"SWAMP_REQUIRE_SECURE_COOKIES": "false"},
			check: func(c *Config) bool { return !c.RequireSecureCookies },
		},
		{
			name:  "durations",
			env:   map[string]string{"SWAMP_TIMEOUT": "15", "SWAMP_RETRY_BASE_DELAY": "2s"},
			check: func(c *Config) bool { return c.Timeout == 15*time.Second && c.Retry.BaseDelay == 2*time.Second },
		},
		{
			name: "s3 storage",
			env: map[string]string{
				"SWAMP_STORAGE": "s3", "SWAMP_S3_ENDPOINT": "localhost:9000",
				"SWAMP_S3_BUCKET": "b", "SWAMP_S3_USE_SSL": "true",
			},
			check: func(c *Config) bool {
				return c.Storage.Type == "s3" && c.Storage.Bucket == "b" && c.Storage.UseSSL && c.Validate() == nil
			},
		},
		{name: "bad int", env: map[string]string{"SWAMP_RETRY_ATTEMPTS": "many"}, wantErr: true},
		{name: "bad bool", env: map[string]string{"SWAMP_S3_USE_SSL": "maybe"}, wantErr: true},
		{name: "bad duration", env: map[string]string{"SWAMP_TIMEOUT": "soon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			err := c.ApplyEnv(envOf(tt.env))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if errdefs.ExitCode(err) != 1 {
					t.Errorf("ExitCode() = %d, want 1", errdefs.ExitCode(err))
				}
				return
			}
			if !tt.check(c) {
				t.Errorf("ApplyEnv() = %+v", c)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad host", func(c *Config) { c.Host = "mir-swamp.org" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"no attempts", func(c *Config) { c.Retry.Attempts = 0 }},
		{"no cache", func(c *Config) { c.CacheScopes = 0 }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "ftp" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Type = "gcs" }},
		{"s3 without endpoint", func(c *Config) { c.Storage = Storage{Type: "s3", Bucket: "b"} }},
		{"export without dir", func(c *Config) { c.Export.Dir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			var optErr *errdefs.ClientOptionError
			if !errors.As(err, &optErr) {
				t.Errorf("Validate() error = %v, want ClientOptionError", err)
			}
		})
	}
}

func TestSessionStorageDefaultsToSessionDir(t *testing.T) {
	c := Default()
	c.SessionDir = "/tmp/sessions"
	if s := c.SessionStorage(); s.Dir != "/tmp/sessions" {
		t.Errorf("SessionStorage().Dir = %q", s.Dir)
	}
	c.Storage.Dir = "/elsewhere"
	if s := c.SessionStorage(); s.Dir != "/elsewhere" {
		t.Errorf("SessionStorage().Dir = %q", s.Dir)
	}
	opts := c.SessionOptions()
	if opts.Host != c.Host || opts.Transport.Timeout != c.Timeout || !opts.RequireSecureCookies {
		t.Errorf("SessionOptions() = %+v", opts)
	}
}
