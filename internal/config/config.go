// Package config loads client settings from a YAML file, a .env file and
// SWAMP_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/session"
	"github.com/data-douser/swamp-go/internal/transport"
)

const (
	DefaultHost           = "https://www.mir-swamp.org"
	DefaultTimeout        = 60 * time.Second
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultCacheScopes    = 64
	EnvPrefix             = "SWAMP_"
)

// Config holds every client setting.
type Config struct {
	Host     string `yaml:"host"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Proxy   string            `yaml:"proxy"`
	CAFile  string            `yaml:"ca_file"`
	Headers map[string]string `yaml:"headers"`

	RequireSecureCookies bool          `yaml:"require_secure_cookies"`
	Timeout              time.Duration `yaml:"timeout"`
	Retry                Retry         `yaml:"retry"`

	// SessionDir is where the local session store lives.
	SessionDir  string `yaml:"session_dir"`
	CacheScopes int    `yaml:"cache_scopes"`

	// DefaultPlatforms maps package type names to platform identifiers,
	// consulted when the service does not name a default platform.
	DefaultPlatforms map[string]string `yaml:"default_platforms"`

	// Storage holds the session store. Export is where downloaded
	// results and archives are written.
	Storage Storage `yaml:"storage"`
	Export  Storage `yaml:"export"`
}

type Retry struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

// Storage selects and configures a blob storage backend.
type Storage struct {
	// Type is local, gcs or s3.
	Type string `yaml:"type"`

	// Dir is the root of local storage.
	Dir string `yaml:"dir"`

	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// CredentialsFile is a GCS service account key. Application Default
	// Credentials are used when empty.
	CredentialsFile string `yaml:"credentials_file"`

	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Host:                 DefaultHost,
		RequireSecureCookies: true,
		Timeout:              DefaultTimeout,
		Retry:                Retry{Attempts: DefaultRetryAttempts, BaseDelay: DefaultRetryBaseDelay},
		SessionDir:           DefaultSessionDir(),
		CacheScopes:          DefaultCacheScopes,
		Storage:              Storage{Type: "local"},
		Export:               Storage{Type: "local", Dir: "."},
	}
}

// DefaultSessionDir is ~/.SWAMP_SESSION, or %LOCALAPPDATA%/Swamp on
// Windows.
func DefaultSessionDir() string {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, "Swamp")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".SWAMP_SESSION"
	}
	return filepath.Join(home, ".SWAMP_SESSION")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "swamp.yaml"
	}
	return filepath.Join(dir, "swamp", "config.yaml")
}

// Load builds the configuration: defaults, then the YAML file at path (or
// DefaultPath when path is empty), then a .env file in the working
// directory, then SWAMP_* variables. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &errdefs.ClientOptionError{Msg: fmt.Sprintf("config %s: %v", path, err)}
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, &errdefs.ClientOptionError{Msg: fmt.Sprintf("config %s: %v", path, err)}
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays SWAMP_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	strs := map[string]*string{
		"HOST":                 &c.Host,
		"USERNAME":             &c.Username,
		"PASSWORD":             &c.Password,
		"PROXY":                &c.Proxy,
		"CA_FILE":              &c.CAFile,
		"SESSION_DIR":          &c.SessionDir,
		"STORAGE":              &c.Storage.Type,
		"STORAGE_DIR":          &c.Storage.Dir,
		"GCS_BUCKET":           &c.Storage.Bucket,
		"GCS_PREFIX":           &c.Storage.Prefix,
		"GCS_CREDENTIALS":      &c.Storage.CredentialsFile,
		"S3_ENDPOINT":          &c.Storage.Endpoint,
		"S3_REGION":            &c.Storage.Region,
		"S3_ACCESS_KEY":        &c.Storage.AccessKey,
		"S3_SECRET_KEY":        &c.Storage.SecretKey,
		"EXPORT_STORAGE":       &c.Export.Type,
		"EXPORT_DIR":           &c.Export.Dir,
		"EXPORT_BUCKET":        &c.Export.Bucket,
		"EXPORT_PREFIX":        &c.Export.Prefix,
		"EXPORT_S3_ENDPOINT":   &c.Export.Endpoint,
		"EXPORT_S3_ACCESS_KEY": &c.Export.AccessKey,
		"EXPORT_S3_SECRET_KEY": &c.Export.SecretKey,
	}
	for name, dst := range strs {
		if v, ok := env(name); ok {
			*dst = v
		}
	}
	// One bucket variable serves either backend type.
	if v, ok := env("S3_BUCKET"); ok {
		c.Storage.Bucket = v
	}

	bools := map[string]*bool{
		"REQUIRE_SECURE_COOKIES": &c.RequireSecureCookies,
		"S3_USE_SSL":             &c.Storage.UseSSL,
		"EXPORT_S3_USE_SSL":      &c.Export.UseSSL,
	}
	for name, dst := range bools {
		if v, ok := env(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return &errdefs.ClientOptionError{Msg: fmt.Sprintf("%s%s: %v", EnvPrefix, name, err)}
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":          &c.Timeout,
		"RETRY_BASE_DELAY": &c.Retry.BaseDelay,
	}
	for name, dst := range durations {
		if v, ok := env(name); ok {
			d, err := parseDuration(v)
			if err != nil {
				return &errdefs.ClientOptionError{Msg: fmt.Sprintf("%s%s: %v", EnvPrefix, name, err)}
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"RETRY_ATTEMPTS": &c.Retry.Attempts,
		"CACHE_SCOPES":   &c.CacheScopes,
	}
	for name, dst := range ints {
		if v, ok := env(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return &errdefs.ClientOptionError{Msg: fmt.Sprintf("%s%s: %v", EnvPrefix, name, err)}
			}
			*dst = n
		}
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate reports the first invalid setting as a ClientOptionError.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &errdefs.ClientOptionError{Msg: fmt.Sprintf("invalid host %q", c.Host)}
	}
	if c.Timeout <= 0 {
		return &errdefs.ClientOptionError{Msg: "timeout must be positive"}
	}
	if c.Retry.Attempts < 1 {
		return &errdefs.ClientOptionError{Msg: "retry attempts must be at least 1"}
	}
	if c.CacheScopes < 1 {
		return &errdefs.ClientOptionError{Msg: "cache_scopes must be at least 1"}
	}
	if err := c.SessionStorage().validate("storage"); err != nil {
		return err
	}
	return c.Export.validate("export")
}

func (s Storage) validate(section string) error {
	switch s.Type {
	case "local":
		if s.Dir == "" {
			return &errdefs.ClientOptionError{Msg: section + ": dir is required for local storage"}
		}
	case "gcs":
		if s.Bucket == "" {
			return &errdefs.ClientOptionError{Msg: section + ": bucket is required for gcs storage"}
		}
	case "s3":
		if s.Bucket == "" || s.Endpoint == "" {
			return &errdefs.ClientOptionError{Msg: section + ": bucket and endpoint are required for s3 storage"}
		}
	default:
		return &errdefs.ClientOptionError{Msg: fmt.Sprintf("%s: unknown storage type %q (supported: local, gcs, s3)", section, s.Type)}
	}
	return nil
}

// SessionStorage returns the session store settings. Local storage without
// a dir uses SessionDir.
func (c *Config) SessionStorage() Storage {
	s := c.Storage
	if s.Type == "local" && s.Dir == "" {
		s.Dir = c.SessionDir
	}
	return s
}

// TransportOptions returns the HTTP settings.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		Timeout:        c.Timeout,
		ProxyURL:       c.Proxy,
		CAFile:         c.CAFile,
		Headers:        c.Headers,
		RetryAttempts:  c.Retry.Attempts,
		RetryBaseDelay: c.Retry.BaseDelay,
	}
}

// SessionOptions returns login settings for the configured host.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Host:                 c.Host,
		Username:             c.Username,
		Password:             c.Password,
		RequireSecureCookies: c.RequireSecureCookies,
		Transport:            c.TransportOptions(),
	}
}
