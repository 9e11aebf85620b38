// Package memory provides an in-process storage backend with object-store
// semantics: a flat key space addressed by root prefix plus filename.
// It is used for tests and dry runs; nothing survives the process.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

// Store is the shared object map. Backends derived from one another share
// the same Store.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Keys returns every key in the store, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Object returns a copy of the object stored under key.
func (s *Store) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Backend implements storage.Backend on a Store.
type Backend struct {
	store *Store
	root  string
}

// New creates a Backend on store rooted at root. A non-empty root is
// normalized to end with exactly one "/".
func New(store *Store, root string) *Backend {
	if root = strings.TrimRight(root, "/"); root != "" {
		root += "/"
	}
	return &Backend{store: store, root: root}
}

// NewFromJSON creates a Backend on a fresh Store. The only recognised field
// is "root".
func NewFromJSON(raw json.RawMessage) (*Backend, error) {
	var cfg struct {
		Root string `json:"root"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}
	return New(NewStore(), cfg.Root), nil
}

// Store returns the underlying Store.
func (b *Backend) Store() *Store { return b.store }

// Root returns the key prefix.
func (b *Backend) Root() string { return b.root }

// GetJSON decodes the object under filename into v.
func (b *Backend) GetJSON(ctx context.Context, filename string, v any) error {
	data, err := b.GetBytes(ctx, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storage.NewError("decode json", b.root+filename, err)
	}
	return nil
}

// SaveJSON encodes body and stores it under filename.
func (b *Backend) SaveJSON(ctx context.Context, body any, filename string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return storage.NewError("encode json", b.root+filename, err)
	}
	return b.SaveBytes(ctx, data, filename)
}

// GetBytes returns a copy of the object under filename.
func (b *Backend) GetBytes(_ context.Context, filename string) ([]byte, error) {
	key := b.root + filename
	data, ok := b.store.Object(key)
	if !ok {
		return nil, storage.NotFound("get bytes", key)
	}
	return data, nil
}

// SaveBytes stores a copy of data under filename.
func (b *Backend) SaveBytes(_ context.Context, data []byte, filename string) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.objects[b.root+filename] = append([]byte(nil), data...)
	return nil
}

// DeleteFile removes the object under filename, if present.
func (b *Backend) DeleteFile(_ context.Context, filename string) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	delete(b.store.objects, b.root+filename)
	return nil
}

// ListFiles returns every key under the root prefix, relative to the root.
func (b *Backend) ListFiles(_ context.Context) ([]string, error) {
	files := []string{}
	for _, key := range b.store.Keys() {
		if name, ok := strings.CutPrefix(key, b.root); ok && name != "" {
			files = append(files, name)
		}
	}
	return files, nil
}

// Derive returns a backend on the same Store rooted at Root()+relativeRoot.
func (b *Backend) Derive(relativeRoot string) storage.Backend {
	return New(b.store, b.root+relativeRoot)
}

// Type returns "memory".
func (b *Backend) Type() string { return "memory" }

// Close is a no-op.
func (b *Backend) Close() error { return nil }

var _ storage.Backend = (*Backend)(nil)
