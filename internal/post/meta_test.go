package post

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttrs_KeepsOrder(t *testing.T) {
	attrs, err := ParseAttrs([]byte(`{"title":"Hi","id":3,"tags":["a","b"],"draft":false}`))
	require.NoError(t, err)

	var keys []string
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{"title", "id", "tags", "draft"}, keys)
	assert.JSONEq(t, `["a","b"]`, string(attrs[2].Value))
}

func TestParseAttrs_DuplicateKeys(t *testing.T) {
	attrs, err := ParseAttrs([]byte(`{"a":1,"b":2,"a":3}`))
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].Key)
	assert.Equal(t, "3", string(attrs[0].Value))
}

func TestParseAttrs_NotObject(t *testing.T) {
	for _, in := range []string{`[]`, `"x"`, ``, `{"a":`} {
		_, err := ParseAttrs([]byte(in))
		assert.True(t, errors.Is(err, ErrValidation), "input %q", in)
	}
}

func TestParseMeta_RequiresID(t *testing.T) {
	_, err := ParseMeta(nil, []byte(`{"title":"Hello"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ParseMeta(nil, []byte(`{}`))
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestParseMeta_RejectsNonIntegerID(t *testing.T) {
	for _, in := range []string{`{"id":"3"}`, `{"id":1.5}`, `{"id":null}`, `{"id":-1}`} {
		_, err := ParseMeta(nil, []byte(in))
		assert.True(t, errors.Is(err, ErrValidation), "input %s", in)
	}
}

func TestMeta_Accessors(t *testing.T) {
	m, err := ParseMeta(nil, []byte(`{"id":7,"title":"Hello","views":10}`))
	require.NoError(t, err)

	assert.Equal(t, 7, m.ID())
	assert.Equal(t, "Hello", m.Title())
	assert.Equal(t, []string{"id", "title", "views"}, m.Keys())

	v, ok := m.Get("views")
	require.True(t, ok)
	assert.Equal(t, "10", string(v))

	id, ok := m.Get("id")
	require.True(t, ok)
	assert.Equal(t, "7", string(id))

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMeta_TitleNotString(t *testing.T) {
	m, err := ParseMeta(nil, []byte(`{"id":1,"title":42}`))
	require.NoError(t, err)
	assert.Equal(t, "", m.Title())
}

func TestMeta_UpdateNeverChangesID(t *testing.T) {
	for _, x := range []string{`99`, `"abc"`, `null`, `0`, `{"nested":1}`} {
		m, err := ParseMeta(nil, []byte(`{"id":4,"title":"T"}`))
		require.NoError(t, err)

		require.NoError(t, m.UpdateJSON([]byte(`{"id":`+x+`,"title":"New"}`)))
		assert.Equal(t, 4, m.ID(), "update with id %s", x)
		assert.Equal(t, "New", m.Title())
	}
}

func TestMeta_SetIgnoresID(t *testing.T) {
	m, err := ParseMeta(nil, []byte(`{"id":4}`))
	require.NoError(t, err)
	require.NoError(t, m.Set("id", 10))
	assert.Equal(t, 4, m.ID())
}

func TestMeta_UpdateAppendsNewKeys(t *testing.T) {
	m, err := ParseMeta(nil, []byte(`{"id":1,"title":"A","author":"x"}`))
	require.NoError(t, err)

	m.Update([]Attr{
		{Key: "summary", Value: json.RawMessage(`"s"`)},
		{Key: "title", Value: json.RawMessage(`"B"`)},
	})
	require.NoError(t, m.Set("author", nil))

	assert.Equal(t, []string{"id", "title", "author", "summary"}, m.Keys())

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"title":"B","author":null,"summary":"s"}`, string(data))
}

func TestMeta_MarshalKeepsIDPosition(t *testing.T) {
	m, err := ParseMeta(nil, []byte(`{"title":"Hello","id":0}`))
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Hello","id":0}`, string(data))
}

func TestMeta_Save(t *testing.T) {
	adapter, _, store := newTestAdapter(t)
	m, err := ParseMeta(adapter, []byte(`{"id":2,"title":"Saved"}`))
	require.NoError(t, err)

	require.NoError(t, m.Save(context.Background()))
	data, ok := store.Object("blog/meta_data.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":2,"title":"Saved"}`, string(data))
}

func TestMeta_SaveWithoutAdapter(t *testing.T) {
	m, err := ParseMeta(nil, []byte(`{"id":2}`))
	require.NoError(t, err)
	assert.Error(t, m.Save(context.Background()))
}
