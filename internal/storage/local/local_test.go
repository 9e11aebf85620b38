package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

func newTestBackend(t *testing.T, root string) (*Backend, string) {
	t.Helper()
	home := t.TempDir()
	b, err := New(Config{HomeDir: home, Root: root})
	require.NoError(t, err)
	return b, home
}

func TestNew_CreatesRoot(t *testing.T) {
	b, home := newTestBackend(t, "blog/")

	info, err := os.Stat(filepath.Join(home, "blog"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, strings.HasSuffix(b.Root(), string(os.PathSeparator)))
	assert.Equal(t, "local", b.Type())
}

func TestNewFromJSON(t *testing.T) {
	home := t.TempDir()
	b, err := NewFromJSON([]byte(`{"home_dir":"` + filepath.ToSlash(home) + `","root":"news"}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "news")+string(os.PathSeparator), b.Root())

	_, err = NewFromJSON([]byte(`{bad`))
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	b, home := newTestBackend(t, "blog/")
	ctx := context.Background()

	require.NoError(t, b.SaveJSON(ctx, map[string]int{"latest_id": 7}, "latest_id.json"))

	raw, err := os.ReadFile(filepath.Join(home, "blog", "latest_id.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "    \"latest_id\": 7")

	var got map[string]int
	require.NoError(t, b.GetJSON(ctx, "latest_id.json", &got))
	assert.Equal(t, 7, got["latest_id"])
}

func TestSaveBytes_CreatesParents(t *testing.T) {
	b, home := newTestBackend(t, "")
	ctx := context.Background()

	require.NoError(t, b.SaveBytes(ctx, []byte("img"), "3/media/cat.png"))
	data, err := os.ReadFile(filepath.Join(home, "3", "media", "cat.png"))
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))

	got, err := b.GetBytes(ctx, "3/media/cat.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)
}

func TestGet_MissingIsNotFound(t *testing.T) {
	b, _ := newTestBackend(t, "blog/")

	_, err := b.GetBytes(context.Background(), "missing.json")
	assert.True(t, storage.IsNotFound(err))

	var v any
	err = b.GetJSON(context.Background(), "missing.json", &v)
	assert.True(t, storage.IsNotFound(err))
}

func TestGetJSON_Invalid(t *testing.T) {
	b, home := newTestBackend(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(home, "bad.json"), []byte("nope"), 0644))

	var v any
	err := b.GetJSON(context.Background(), "bad.json", &v)
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err))
}

func TestDeleteFile(t *testing.T) {
	b, home := newTestBackend(t, "")
	ctx := context.Background()

	require.NoError(t, b.SaveBytes(ctx, []byte("x"), "a.txt"))
	require.NoError(t, b.DeleteFile(ctx, "a.txt"))
	_, err := os.Stat(filepath.Join(home, "a.txt"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, b.DeleteFile(ctx, "a.txt"))
}

func TestListFiles_Recursive(t *testing.T) {
	b, _ := newTestBackend(t, "blog/")
	ctx := context.Background()

	for _, name := range []string{"index.json", "0/meta.json", "0/media/index.json", "0/media/a.png"} {
		require.NoError(t, b.SaveBytes(ctx, []byte("{}"), name))
	}

	files, err := b.ListFiles(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"index.json", "0/meta.json", "0/media/index.json", "0/media/a.png"}, files)
}

func TestListFiles_UnwrittenRootIsEmpty(t *testing.T) {
	b, _ := newTestBackend(t, "")
	child := b.Derive("never/")

	files, err := child.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDerive(t *testing.T) {
	b, home := newTestBackend(t, "blog/")
	child := b.Derive("2/")

	assert.Equal(t, filepath.Join(home, "blog", "2")+string(os.PathSeparator), child.Root())

	// Derive performs no I/O
	_, err := os.Stat(filepath.Join(home, "blog", "2"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, child.SaveJSON(context.Background(), "hello", "content.json"))
	_, err = os.Stat(filepath.Join(home, "blog", "2", "content.json"))
	assert.NoError(t, err)
}

func TestDeleteDirectory(t *testing.T) {
	b, home := newTestBackend(t, "blog/")
	ctx := context.Background()
	child := b.Derive("5/").(*Backend)

	require.NoError(t, child.SaveBytes(ctx, []byte("x"), "media/a.txt"))
	require.NoError(t, b.SaveBytes(ctx, []byte("[]"), "index.json"))

	require.NoError(t, child.DeleteDirectory(ctx))

	_, err := os.Stat(filepath.Join(home, "blog", "5"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(home, "blog", "index.json"))
	assert.NoError(t, err)

	// removing a missing directory succeeds
	assert.NoError(t, child.DeleteDirectory(ctx))
}

func TestFullPath_RejectsEscapes(t *testing.T) {
	b, home := newTestBackend(t, "blog/")
	media := b.Derive("0/media/")
	ctx := context.Background()

	for _, name := range []string{"../../latest_id.json", "../../../escaped.txt", "..", ""} {
		err := media.SaveBytes(ctx, []byte("x"), name)
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "save %q", name)

		_, err = media.GetBytes(ctx, name)
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "get %q", name)

		assert.ErrorIs(t, media.DeleteFile(ctx, name), storage.ErrInvalidKey, "delete %q", name)
	}

	_, err := os.Stat(filepath.Join(home, "blog", "latest_id.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(home, "escaped.txt"))
	assert.True(t, os.IsNotExist(err))

	// Inner ".." that stays below the root is fine.
	require.NoError(t, media.SaveBytes(ctx, []byte("ok"), "a/../b.txt"))
	data, err := media.GetBytes(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
}
