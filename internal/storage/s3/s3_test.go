package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}

// mockS3 is an in-memory S3 client. Listings are split into pages of
// pageSize keys so continuation handling is exercised.
type mockS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	buckets  map[string]bool
	pageSize int

	getErr    error
	putErr    error
	listErr   error
	listCalls int
}

func newMockS3() *mockS3 {
	return &mockS3{
		objects:  make(map[string][]byte),
		types:    make(map[string]string),
		buckets:  make(map[string]bool),
		pageSize: 2,
	}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	m.types[*in.Key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	prefix := aws.ToString(in.Prefix)
	after := aws.ToString(in.ContinuationToken)
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > m.pageSize {
		keys = keys[:m.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (m *mockS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.buckets[*in.Bucket] {
		return nil, &apiError{code: "NotFound", msg: "bucket not found"}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[*in.Bucket] = true
	return &s3.CreateBucketOutput{}, nil
}

func TestNew_NormalizesRoot(t *testing.T) {
	mock := newMockS3()
	assert.Equal(t, "", New(mock, "b", "").Root())
	assert.Equal(t, "blog/", New(mock, "b", "blog").Root())
	assert.Equal(t, "blog/", New(mock, "b", "blog/").Root())
	assert.Equal(t, "blog/", New(mock, "b", "blog//").Root())
	assert.Equal(t, "", New(mock, "b", "/").Root())
}

func TestJSONRoundTrip(t *testing.T) {
	mock := newMockS3()
	b := New(mock, "bucket", "blog/")
	ctx := context.Background()

	require.NoError(t, b.SaveJSON(ctx, map[string]int{"latest_id": 3}, "latest_id.json"))
	assert.Contains(t, mock.objects, "blog/latest_id.json")
	assert.Equal(t, "application/json", mock.types["blog/latest_id.json"])

	var got struct {
		LatestID int `json:"latest_id"`
	}
	require.NoError(t, b.GetJSON(ctx, "latest_id.json", &got))
	assert.Equal(t, 3, got.LatestID)
}

func TestBytesRoundTrip(t *testing.T) {
	b := New(newMockS3(), "bucket", "")
	ctx := context.Background()

	require.NoError(t, b.SaveBytes(ctx, []byte("hello"), "media/a.txt"))
	data, err := b.GetBytes(ctx, "media/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestGet_MissingIsNotFound(t *testing.T) {
	b := New(newMockS3(), "bucket", "blog/")

	_, err := b.GetBytes(context.Background(), "nope.json")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))

	var v map[string]any
	err = b.GetJSON(context.Background(), "nope.json", &v)
	assert.True(t, storage.IsNotFound(err))
}

func TestGet_OtherErrorsAreNotNotFound(t *testing.T) {
	mock := newMockS3()
	mock.getErr = &apiError{code: "AccessDenied", msg: "denied"}
	b := New(mock, "bucket", "")

	_, err := b.GetBytes(context.Background(), "a")
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err))

	var serr *storage.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "a", serr.Key)
}

func TestGetJSON_InvalidJSON(t *testing.T) {
	mock := newMockS3()
	mock.objects["bad.json"] = []byte("{not json")
	b := New(mock, "bucket", "")

	var v map[string]any
	err := b.GetJSON(context.Background(), "bad.json", &v)
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err))
}

func TestSave_PropagatesPutError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("boom")
	b := New(mock, "bucket", "")

	err := b.SaveBytes(context.Background(), []byte("x"), "x")
	assert.ErrorContains(t, err, "boom")
}

func TestDeleteFile(t *testing.T) {
	mock := newMockS3()
	b := New(mock, "bucket", "blog/")
	ctx := context.Background()

	require.NoError(t, b.SaveBytes(ctx, []byte("x"), "1/content.json"))
	require.NoError(t, b.DeleteFile(ctx, "1/content.json"))
	assert.NotContains(t, mock.objects, "blog/1/content.json")

	// deleting again is fine
	require.NoError(t, b.DeleteFile(ctx, "1/content.json"))
}

func TestListFiles_PaginatesAndStripsRoot(t *testing.T) {
	mock := newMockS3()
	for _, k := range []string{
		"blog/index.json",
		"blog/latest_id.json",
		"blog/0/content.json",
		"blog/0/meta.json",
		"blog/0/media/index.json",
		"other/index.json",
	} {
		mock.objects[k] = []byte("{}")
	}
	b := New(mock, "bucket", "blog")

	files, err := b.ListFiles(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"index.json",
		"latest_id.json",
		"0/content.json",
		"0/meta.json",
		"0/media/index.json",
	}, files)
	assert.Equal(t, 3, mock.listCalls)
}

func TestListFiles_EmptyRootListsBucket(t *testing.T) {
	mock := newMockS3()
	mock.objects["a"] = []byte("1")
	mock.objects["b/c"] = []byte("2")

	files, err := New(mock, "bucket", "").ListFiles(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b/c"}, files)
}

func TestListFiles_Error(t *testing.T) {
	mock := newMockS3()
	mock.listErr = errors.New("list failed")

	_, err := New(mock, "bucket", "").ListFiles(context.Background())
	assert.ErrorContains(t, err, "list failed")
}

func TestDerive_ConcatenatesRoot(t *testing.T) {
	mock := newMockS3()
	parent := New(mock, "bucket", "blog/")
	child := parent.Derive("4/")

	assert.Equal(t, "blog/4/", child.Root())
	assert.Equal(t, "s3", child.Type())

	ctx := context.Background()
	require.NoError(t, child.SaveJSON(ctx, []string{}, "index.json"))
	assert.Contains(t, mock.objects, "blog/4/index.json")

	// the child reads through the same client
	data, err := parent.GetBytes(ctx, "4/index.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestEnsureBucket_CreatesMissingBucket(t *testing.T) {
	mock := newMockS3()
	b := New(mock, "posts", "")

	require.NoError(t, b.EnsureBucket(context.Background()))
	assert.True(t, mock.buckets["posts"])

	// second call finds the bucket
	require.NoError(t, b.EnsureBucket(context.Background()))
}

func TestNewBackend_RequiresBucket(t *testing.T) {
	_, err := NewBackend(context.Background(), BackendConfig{})
	assert.Error(t, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(errNoSuchKey))
	assert.True(t, isNotFound(&apiError{code: "NotFound"}))
	assert.False(t, isNotFound(&apiError{code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("plain")))
}
