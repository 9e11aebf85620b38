package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subaquatic-pierre/postmanager/internal/storage"
	"github.com/subaquatic-pierre/postmanager/internal/storage/local"
	"github.com/subaquatic-pierre/postmanager/internal/storage/memory"
)

func TestAdapter_ChildKeepsBackendKind(t *testing.T) {
	store := memory.NewStore()
	a := storage.NewAdapter(memory.New(store, "blog/"))

	child := a.Child("3/").Child("media/")
	assert.Equal(t, "blog/3/media/", child.Root())
	assert.Equal(t, "memory", child.Type())

	ctx := context.Background()
	require.NoError(t, child.SaveBytes(ctx, []byte("x"), "a.txt"))
	_, ok := store.Object("blog/3/media/a.txt")
	assert.True(t, ok)
}

func TestAdapter_ChildLeavesParentUnchanged(t *testing.T) {
	a := storage.NewAdapter(memory.New(memory.NewStore(), "blog/"))
	_ = a.Child("1/")
	assert.Equal(t, "blog/", a.Root())
}

func TestAdapter_Delegates(t *testing.T) {
	a := storage.NewAdapter(memory.New(memory.NewStore(), ""))
	ctx := context.Background()

	require.NoError(t, a.SaveJSON(ctx, map[string]string{"k": "v"}, "m.json"))
	var got map[string]string
	require.NoError(t, a.GetJSON(ctx, "m.json", &got))
	assert.Equal(t, "v", got["k"])

	files, err := a.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m.json"}, files)

	require.NoError(t, a.DeleteFile(ctx, "m.json"))
	_, err = a.GetBytes(ctx, "m.json")
	assert.True(t, storage.IsNotFound(err))
}

func TestAdapter_DeleteAllObjectStore(t *testing.T) {
	store := memory.NewStore()
	a := storage.NewAdapter(memory.New(store, "blog/"))
	ctx := context.Background()

	require.NoError(t, a.SaveJSON(ctx, []int{0, 1}, "index.json"))
	post := a.Child("1/")
	require.NoError(t, post.SaveJSON(ctx, "c", "content.json"))
	require.NoError(t, post.Child("media/").SaveBytes(ctx, []byte("x"), "a.txt"))

	require.NoError(t, post.DeleteAll(ctx))
	assert.Equal(t, []string{"blog/index.json"}, store.Keys())
}

func TestAdapter_DeleteAllLocal(t *testing.T) {
	home := t.TempDir()
	b, err := local.New(local.Config{HomeDir: home, Root: "blog/"})
	require.NoError(t, err)
	a := storage.NewAdapter(b)
	ctx := context.Background()

	post := a.Child("1/")
	require.NoError(t, post.SaveJSON(ctx, "c", "content.json"))
	require.NoError(t, post.Child("media/").SaveBytes(ctx, []byte("x"), "a.txt"))

	require.NoError(t, post.DeleteAll(ctx))
	_, err = os.Stat(filepath.Join(home, "blog", "1"))
	assert.True(t, os.IsNotExist(err))
}

func TestError_Format(t *testing.T) {
	err := storage.NotFound("get json", "blog/index.json")
	assert.EqualError(t, err, "storage: get json blog/index.json: object not found")
	assert.True(t, storage.IsNotFound(err))
}
