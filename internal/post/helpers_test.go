package post

import (
	"context"
	"sync"
	"testing"

	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/storage"
	"github.com/subaquatic-pierre/postmanager/internal/storage/memory"
)

func init() {
	logging.InitNop()
}

// recorder is shared by a recordingBackend and everything derived from it.
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error // full key -> error returned by saves
}

func (r *recorder) record(op, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+" "+key)
	if op == "save" {
		return r.fail[key]
	}
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// recordingBackend wraps a backend, logging every call and optionally
// failing saves of chosen keys.
type recordingBackend struct {
	storage.Backend
	rec *recorder
}

func (b *recordingBackend) GetJSON(ctx context.Context, filename string, v any) error {
	b.rec.record("get", b.Root()+filename)
	return b.Backend.GetJSON(ctx, filename, v)
}

func (b *recordingBackend) SaveJSON(ctx context.Context, body any, filename string) error {
	if err := b.rec.record("save", b.Root()+filename); err != nil {
		return err
	}
	return b.Backend.SaveJSON(ctx, body, filename)
}

func (b *recordingBackend) GetBytes(ctx context.Context, filename string) ([]byte, error) {
	b.rec.record("get", b.Root()+filename)
	return b.Backend.GetBytes(ctx, filename)
}

func (b *recordingBackend) SaveBytes(ctx context.Context, data []byte, filename string) error {
	if err := b.rec.record("save", b.Root()+filename); err != nil {
		return err
	}
	return b.Backend.SaveBytes(ctx, data, filename)
}

func (b *recordingBackend) DeleteFile(ctx context.Context, filename string) error {
	b.rec.record("delete", b.Root()+filename)
	return b.Backend.DeleteFile(ctx, filename)
}

func (b *recordingBackend) ListFiles(ctx context.Context) ([]string, error) {
	b.rec.record("list", b.Root())
	return b.Backend.ListFiles(ctx)
}

func (b *recordingBackend) Derive(relativeRoot string) storage.Backend {
	return &recordingBackend{Backend: b.Backend.Derive(relativeRoot), rec: b.rec}
}

// newTestAdapter returns an adapter over a fresh memory store rooted at
// "blog/", with its recorder and store.
func newTestAdapter(t *testing.T) (*storage.Adapter, *recorder, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	rec := &recorder{fail: make(map[string]error)}
	return storage.NewAdapter(&recordingBackend{Backend: memory.New(store, "blog/"), rec: rec}), rec, store
}
