// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

// DefaultDirName is the per-user application directory used when no home
// directory is configured.
const DefaultDirName = ".postmanager"

// Config holds local filesystem backend settings.
type Config struct {
	// HomeDir overrides the base directory. Defaults to ~/.postmanager/data.
	HomeDir string `json:"home_dir"`
	// Root is the namespace below the base directory, e.g. "blog/".
	Root string `json:"root"`
}

// Backend implements storage.Backend using the local filesystem.
type Backend struct {
	root string
}

// New creates a filesystem backend rooted at HomeDir/Root.
// The root directory is created with its parents if absent.
func New(cfg Config) (*Backend, error) {
	base := cfg.HomeDir
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		base = filepath.Join(home, DefaultDirName, "data")
	}

	abs, err := filepath.Abs(filepath.Join(base, filepath.FromSlash(cfg.Root)))
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", cfg.Root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create root path %s: %w", abs, err)
	}

	return &Backend{root: withSeparator(abs)}, nil
}

// NewFromJSON creates a Backend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*Backend, error) {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse local config: %w", err)
		}
	}
	return New(cfg)
}

func withSeparator(path string) string {
	path = strings.TrimRight(path, string(os.PathSeparator))
	return path + string(os.PathSeparator)
}

// fullPath resolves filename below the root. Names that clean to the root
// itself or to anything outside it are rejected.
func (b *Backend) fullPath(op, filename string) (string, error) {
	path := filepath.Join(b.root, filepath.FromSlash(filename))
	if !strings.HasPrefix(path, b.root) {
		return "", storage.NewError(op, filename, storage.ErrInvalidKey)
	}
	return path, nil
}

// Root returns the absolute root directory, ending with a separator.
func (b *Backend) Root() string { return b.root }

// GetJSON reads and decodes a JSON file.
func (b *Backend) GetJSON(_ context.Context, filename string, v any) error {
	data, err := b.read("get json", filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storage.NewError("decode json", b.root+filename, err)
	}
	return nil
}

// SaveJSON writes body as indented JSON.
func (b *Backend) SaveJSON(_ context.Context, body any, filename string) error {
	data, err := json.MarshalIndent(body, "", "    ")
	if err != nil {
		return storage.NewError("encode json", b.root+filename, err)
	}
	return b.write("save json", filename, data)
}

// GetBytes reads a file.
func (b *Backend) GetBytes(_ context.Context, filename string) ([]byte, error) {
	return b.read("get bytes", filename)
}

// SaveBytes writes a file.
func (b *Backend) SaveBytes(_ context.Context, data []byte, filename string) error {
	return b.write("save bytes", filename, data)
}

// DeleteFile removes a file from the local filesystem.
func (b *Backend) DeleteFile(_ context.Context, filename string) error {
	path, err := b.fullPath("delete file", filename)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return storage.NewError("delete file", path, err)
	}
	logging.Debug("local delete file", logging.Key(path))
	return nil
}

// DeleteDirectory removes the backend root and everything below it.
func (b *Backend) DeleteDirectory(_ context.Context) error {
	if err := os.RemoveAll(b.root); err != nil {
		return storage.NewError("delete directory", b.root, err)
	}
	logging.Debug("local delete directory", logging.Root(b.root))
	return nil
}

// ListFiles walks the root recursively. A root that was never written to
// lists as empty.
func (b *Backend) ListFiles(_ context.Context) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == b.root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".postmanager-") {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, storage.NewError("list files", b.root, err)
	}
	return files, nil
}

// Derive returns a backend rooted at the joined path. The directory is
// created on first write.
func (b *Backend) Derive(relativeRoot string) storage.Backend {
	return &Backend{root: withSeparator(filepath.Join(b.root, filepath.FromSlash(relativeRoot)))}
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *Backend) Close() error { return nil }

func (b *Backend) read(op, filename string) ([]byte, error) {
	path, err := b.fullPath(op, filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NotFound(op, path)
		}
		return nil, storage.NewError(op, path, err)
	}
	return data, nil
}

// write replaces path atomically via a temp file and rename.
func (b *Backend) write(op, filename string, data []byte) error {
	path, err := b.fullPath(op, filename)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return storage.NewError(op, path, err)
	}

	tmp, err := os.CreateTemp(dir, ".postmanager-*.tmp")
	if err != nil {
		return storage.NewError(op, path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storage.NewError(op, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storage.NewError(op, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return storage.NewError(op, path, err)
	}

	logging.Debug("local write", logging.Key(path), logging.Size(len(data)))
	return nil
}

var (
	_ storage.Backend          = (*Backend)(nil)
	_ storage.DirectoryRemover = (*Backend)(nil)
)
