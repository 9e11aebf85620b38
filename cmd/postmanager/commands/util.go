package commands

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/subaquatic-pierre/postmanager/internal/config"
	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/method"
	"github.com/subaquatic-pierre/postmanager/internal/post"
	"github.com/subaquatic-pierre/postmanager/internal/retry"
	"github.com/subaquatic-pierre/postmanager/internal/storage"
	"github.com/subaquatic-pierre/postmanager/internal/storage/factory"
	s3backend "github.com/subaquatic-pierre/postmanager/internal/storage/s3"
)

// loadConfig loads configuration, applies flag overrides and initializes
// the logger. CLI commands log to stderr so stdout carries only output.
func loadConfig(opts *globalOptions, logOutput string) (*config.Config, error) {
	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, err
	}
	if opts.collection != "" {
		cfg.Collection = opts.collection
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: logOutput,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// openStorage builds the configured backend and wraps it in a root adapter.
// For the object store the bucket is checked, and created if missing, with
// exponential backoff.
func openStorage(ctx context.Context, cfg *config.Config) (*storage.Adapter, error) {
	raw, err := cfg.BackendJSON()
	if err != nil {
		return nil, err
	}
	backend, err := factory.NewBackend(ctx, cfg.Storage.Backend, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	if s3b, ok := backend.(*s3backend.Backend); ok {
		err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			if err := s3b.EnsureBucket(ctx); err != nil {
				logging.Warn("bucket not ready, retrying", logging.Bucket(s3b.Bucket()), zap.Error(err))
				return retry.Retryable(err)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to reach bucket %s: %w", s3b.Bucket(), err)
		}
	}

	logging.Debug("storage opened",
		logging.Backend(backend.Type()),
		logging.Root(backend.Root()))
	return storage.NewAdapter(backend), nil
}

// openManager loads configuration and opens the manager of the selected
// collection.
func openManager(ctx context.Context, opts *globalOptions) (*post.Manager, error) {
	cfg, err := loadConfig(opts, "stderr")
	if err != nil {
		return nil, err
	}
	root, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return post.NewManager(ctx, root.Child(cfg.Collection+"/"), cfg.Collection)
}

// printResult writes the response envelope for res. A failed call is also
// reported as an error so the process exits non-zero.
func printResult(cmd *cobra.Command, res method.Result) error {
	resp, err := res.Response()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "    ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, res.Err)
	}
	return nil
}

// parseMetaFlags turns --title and repeated key=value flags into a JSON
// object, preserving flag order. Values that parse as JSON are kept as-is;
// anything else is stored as a string.
func parseMetaFlags(title string, pairs []string) (json.RawMessage, error) {
	var b strings.Builder
	b.WriteByte('{')
	n := 0
	add := func(key string, value json.RawMessage) {
		if n > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		b.Write(k)
		b.WriteByte(':')
		b.Write(value)
		n++
	}

	if title != "" {
		t, _ := json.Marshal(title)
		add("title", t)
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q, expected key=value", pair)
		}
		add(key, jsonValue(value))
	}
	if n == 0 {
		return nil, nil
	}
	b.WriteByte('}')
	return json.RawMessage(b.String()), nil
}

func jsonValue(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}

// parseMediaFlags reads name=path flags into data URLs. The MIME type is
// sniffed from the file contents.
func parseMediaFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	media := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, path, ok := strings.Cut(pair, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid --media %q, expected name=path", pair)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read media %s: %w", name, err)
		}
		media[name] = toDataURL(data)
	}
	return media, nil
}

func toDataURL(data []byte) string {
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
