// Package local stores objects as files below a base directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/data-douser/swamp-go/internal/storage"
)

const (
	tmpPrefix  = ".tmp-"
	tmpPattern = tmpPrefix + "*"
)

// Backend implements storage.Backend on a directory tree.
type Backend struct {
	basePath string
	fileMode os.FileMode
	dirMode  os.FileMode
}

type Config struct {
	BasePath string

	// Create makes BasePath (and parents) when it does not exist.
	Create bool

	// FileMode is the permission of written files (default: 0600).
	FileMode os.FileMode

	// DirMode is the permission of created directories (default: 0700).
	DirMode os.FileMode
}

// New checks that cfg.BasePath is a directory, creating it when
// cfg.Create is set.
func New(cfg Config) (*Backend, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("local storage: base path is required")
	}

	fileMode := cfg.FileMode
	if fileMode == 0 {
		fileMode = 0o600
	}
	dirMode := cfg.DirMode
	if dirMode == 0 {
		dirMode = 0o700
	}

	switch info, err := os.Stat(cfg.BasePath); {
	case errors.Is(err, fs.ErrNotExist) && cfg.Create:
		if err := os.MkdirAll(cfg.BasePath, dirMode); err != nil {
			return nil, fmt.Errorf("local storage: create directory: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("local storage: %s does not exist", cfg.BasePath)
	case err != nil:
		return nil, fmt.Errorf("local storage: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("local storage: %s is not a directory", cfg.BasePath)
	}

	return &Backend{
		basePath: filepath.Clean(cfg.BasePath),
		fileMode: fileMode,
		dirMode:  dirMode,
	}, nil
}

func (b *Backend) Type() string { return "local" }

// BasePath is the cleaned root directory.
func (b *Backend) BasePath() string { return b.basePath }

// resolve maps an object name to a path inside the base directory. Names
// that escape it are rejected.
func (b *Backend) resolve(name string) (string, error) {
	if name == "" {
		return "", errors.New("local storage: empty object name")
	}
	p := filepath.Clean(filepath.Join(b.basePath, filepath.FromSlash(name)))
	if p != b.basePath && !strings.HasPrefix(p, b.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("local storage: %q is outside the base directory", name)
	}
	return p, nil
}

// Put writes into a temporary sibling and renames it over name, so a
// reader sees either the old object or the complete new one.
func (b *Backend) Put(ctx context.Context, name string, r io.Reader, contentType string) error {
	p, err := b.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), b.dirMode); err != nil {
		return fmt.Errorf("local storage: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), tmpPattern)
	if err != nil {
		return fmt.Errorf("local storage: create temp file: %w", err)
	}
	if err := b.fill(tmp, r); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local storage: write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local storage: rename %s: %w", name, err)
	}
	return nil
}

// fill copies r into f, sets the file mode and closes f.
func (b *Backend) fill(f *os.File, r io.Reader) error {
	_, err := io.Copy(f, r)
	if err == nil {
		err = f.Chmod(b.fileMode)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Get opens name. The content type is guessed from the extension.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, int64, string, error) {
	p, err := b.resolve(name)
	if err != nil {
		return nil, 0, "", err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, "", &storage.ErrNotFound{Path: p}
	}
	if err != nil {
		return nil, 0, "", fmt.Errorf("local storage: open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		err = errors.New("is a directory")
	}
	if err != nil {
		_ = f.Close()
		return nil, 0, "", fmt.Errorf("local storage: %s: %w", name, err)
	}
	ct := mime.TypeByExtension(filepath.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, info.Size(), ct, nil
}

func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	p, err := b.resolve(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	p, err := b.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &storage.ErrNotFound{Path: p}
		}
		return fmt.Errorf("local storage: delete %s: %w", name, err)
	}
	return nil
}

// List walks the base directory and returns slash-separated names that
// start with prefix. Temporary files from in-flight writes are skipped.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(b.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(b.basePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			names = append(names, rel)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("local storage: list: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) Close() error { return nil }
