package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/metrics"
)

// Adapter wraps a single Backend and forwards every call to it. It adds the
// ability to derive child adapters for nested namespaces, so post code never
// needs to know which backend it runs on.
type Adapter struct {
	backend Backend
}

// NewAdapter creates an Adapter over backend.
func NewAdapter(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

// Backend returns the wrapped backend.
func (a *Adapter) Backend() Backend { return a.backend }

// Root returns the root of the wrapped backend.
func (a *Adapter) Root() string { return a.backend.Root() }

// Type returns the type of the wrapped backend.
func (a *Adapter) Type() string { return a.backend.Type() }

// Child returns an adapter rooted at Root()+relativeRoot on a backend of the
// same kind. The underlying client is shared, not reopened.
func (a *Adapter) Child(relativeRoot string) *Adapter {
	return &Adapter{backend: a.backend.Derive(relativeRoot)}
}

// GetJSON decodes filename into v.
func (a *Adapter) GetJSON(ctx context.Context, filename string, v any) error {
	return a.observe("get_json", func() error {
		return a.backend.GetJSON(ctx, filename, v)
	})
}

// SaveJSON stores body as JSON under filename.
func (a *Adapter) SaveJSON(ctx context.Context, body any, filename string) error {
	return a.observe("save_json", func() error {
		return a.backend.SaveJSON(ctx, body, filename)
	})
}

// GetBytes returns the raw bytes stored under filename.
func (a *Adapter) GetBytes(ctx context.Context, filename string) ([]byte, error) {
	var data []byte
	err := a.observe("get_bytes", func() error {
		var err error
		data, err = a.backend.GetBytes(ctx, filename)
		return err
	})
	return data, err
}

// SaveBytes stores data under filename.
func (a *Adapter) SaveBytes(ctx context.Context, data []byte, filename string) error {
	return a.observe("save_bytes", func() error {
		return a.backend.SaveBytes(ctx, data, filename)
	})
}

// DeleteFile removes filename. Missing files are ignored.
func (a *Adapter) DeleteFile(ctx context.Context, filename string) error {
	return a.observe("delete_file", func() error {
		return a.backend.DeleteFile(ctx, filename)
	})
}

// ListFiles lists every file under the root, relative to the root.
func (a *Adapter) ListFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := a.observe("list_files", func() error {
		var err error
		files, err = a.backend.ListFiles(ctx)
		return err
	})
	return files, err
}

// DeleteAll removes everything under the root. Backends implementing
// DirectoryRemover do it in one call; others have every listed file deleted
// one by one.
func (a *Adapter) DeleteAll(ctx context.Context) error {
	if remover, ok := a.backend.(DirectoryRemover); ok {
		return a.observe("delete_directory", func() error {
			return remover.DeleteDirectory(ctx)
		})
	}

	files, err := a.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("list %s: %w", a.Root(), err)
	}
	for _, name := range files {
		if err := a.DeleteFile(ctx, name); err != nil {
			return err
		}
	}
	logging.Debug("deleted namespace",
		logging.Backend(a.Type()),
		logging.Root(a.Root()),
		zap.Int("files", len(files)))
	return nil
}

func (a *Adapter) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	// A miss is an expected outcome for lookups, not a backend failure.
	metrics.RecordStorageOperation(a.backend.Type(), op, time.Since(start), err == nil || IsNotFound(err))
	return err
}
