// Package s3 provides an S3-compatible object store backend with metrics.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/metrics"
	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

// Client is the subset of the S3 API used by Backend. *s3.Client satisfies it.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// BackendConfig is a JSON-serializable config for S3 backends.
type BackendConfig struct {
	Endpoint     string `json:"endpoint"`
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	Region       string `json:"region"`
	UsePathStyle bool   `json:"use_path_style"`
}

// Backend implements storage.Backend on an S3 bucket. Object keys are the
// plain concatenation of the root prefix and the filename.
type Backend struct {
	client Client
	bucket string
	root   string
}

// New creates a Backend over an already configured client. A non-empty root
// is normalized to end with exactly one "/"; an empty root addresses the
// bucket root.
func New(client Client, bucket, root string) *Backend {
	return &Backend{
		client: client,
		bucket: bucket,
		root:   normalizeRoot(root),
	}
}

// NewBackend creates a Backend from a BackendConfig.
func NewBackend(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return New(client, cfg.Bucket, cfg.Prefix), nil
}

// NewBackendFromJSON creates a Backend from raw JSON config.
func NewBackendFromJSON(ctx context.Context, raw json.RawMessage) (*Backend, error) {
	var cfg BackendConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return NewBackend(ctx, cfg)
}

// normalizeRoot ends a non-empty root with exactly one "/".
func normalizeRoot(root string) string {
	root = strings.TrimRight(root, "/")
	if root == "" {
		return ""
	}
	return root + "/"
}

func (b *Backend) key(filename string) string {
	return b.root + filename
}

// Bucket returns the bucket name.
func (b *Backend) Bucket() string { return b.bucket }

// Root returns the key prefix.
func (b *Backend) Root() string { return b.root }

// EnsureBucket checks the bucket exists and creates it when it does not.
func (b *Backend) EnsureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		metrics.RecordS3Operation("head_bucket", time.Since(start), true)
		return nil
	}

	_, createErr := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if createErr != nil {
		metrics.RecordS3Operation("create_bucket", time.Since(start), false)
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", b.bucket, createErr)
	}
	metrics.RecordS3Operation("create_bucket", time.Since(start), true)
	logging.Info("created S3 bucket", logging.Bucket(b.bucket))
	return nil
}

// GetJSON fetches and decodes a JSON object.
func (b *Backend) GetJSON(ctx context.Context, filename string, v any) error {
	data, err := b.get(ctx, "get json", filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storage.NewError("decode json", b.key(filename), err)
	}
	return nil
}

// SaveJSON encodes body and uploads it.
func (b *Backend) SaveJSON(ctx context.Context, body any, filename string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return storage.NewError("encode json", b.key(filename), err)
	}
	return b.put(ctx, "save json", filename, data, "application/json")
}

// GetBytes fetches a raw object.
func (b *Backend) GetBytes(ctx context.Context, filename string) ([]byte, error) {
	return b.get(ctx, "get bytes", filename)
}

// SaveBytes uploads a raw object.
func (b *Backend) SaveBytes(ctx context.Context, data []byte, filename string) error {
	return b.put(ctx, "save bytes", filename, data, http.DetectContentType(data))
}

// DeleteFile removes an object. S3 DeleteObject succeeds for missing keys.
func (b *Backend) DeleteFile(ctx context.Context, filename string) error {
	start := time.Now()
	key := b.key(filename)

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		metrics.RecordS3Operation("delete_object", time.Since(start), false)
		return storage.NewError("delete file", key, err)
	}

	metrics.RecordS3Operation("delete_object", time.Since(start), true)
	logging.Debug("S3 delete object", logging.Key(key))
	return nil
}

// ListFiles lists every key under the root prefix, following continuation
// tokens until the listing is exhausted. Names are returned relative to the
// root.
func (b *Backend) ListFiles(ctx context.Context) ([]string, error) {
	start := time.Now()
	files := []string{}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
	}
	if b.root != "" {
		input.Prefix = aws.String(b.root)
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.RecordS3Operation("list_objects", time.Since(start), false)
			return nil, storage.NewError("list files", b.root, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), b.root)
			if name == "" {
				continue
			}
			files = append(files, name)
		}
	}

	metrics.RecordS3Operation("list_objects", time.Since(start), true)
	return files, nil
}

// Derive returns a backend on the same bucket and client whose prefix is
// the string concatenation of this root and relativeRoot.
func (b *Backend) Derive(relativeRoot string) storage.Backend {
	return New(b.client, b.bucket, b.root+relativeRoot)
}

// Type returns "s3".
func (b *Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends.
func (b *Backend) Close() error { return nil }

func (b *Backend) get(ctx context.Context, op, filename string) ([]byte, error) {
	start := time.Now()
	key := b.key(filename)

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			metrics.RecordS3Operation("get_object", time.Since(start), true)
			return nil, storage.NotFound(op, key)
		}
		metrics.RecordS3Operation("get_object", time.Since(start), false)
		return nil, storage.NewError(op, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		metrics.RecordS3Operation("get_object", time.Since(start), false)
		return nil, storage.NewError(op, key, err)
	}

	metrics.RecordS3Operation("get_object", time.Since(start), true)
	metrics.RecordContentDownload(int64(len(data)), true)
	return data, nil
}

func (b *Backend) put(ctx context.Context, op, filename string, data []byte, contentType string) error {
	start := time.Now()
	key := b.key(filename)

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		metrics.RecordS3Operation("put_object", time.Since(start), false)
		metrics.RecordContentUpload(0, false)
		return storage.NewError(op, key, err)
	}

	metrics.RecordS3Operation("put_object", time.Since(start), true)
	metrics.RecordContentUpload(int64(len(data)), true)

	logging.Debug("S3 put object", logging.Key(key), logging.Size(len(data)))
	return nil
}

// isNotFound reports whether err indicates the S3 object does not exist.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ storage.Backend = (*Backend)(nil)
