// Package logging wraps a global zap logger for the post manager and adds
// field constructors for the identifiers every layer logs: collection, post
// id, storage backend, root and key.
package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey struct{}

// RequestIDHeader carries the request id in and out of the HTTP server.
const RequestIDHeader = "X-Request-ID"

var logger = zap.NewNop()

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	OutputPath string // stdout, stderr or a file path; empty means stderr
}

// Init replaces the global logger. An unknown level falls back to info.
func Init(cfg Config) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
	}

	l, err := zc.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// InitNop discards all log output.
func InitNop() {
	logger = zap.NewNop()
}

// Sync flushes buffered entries.
func Sync() error {
	return logger.Sync()
}

// Field constructors shared by the storage, post and api packages.

// Collection names a post collection.
func Collection(name string) zap.Field { return zap.String("collection", name) }

// PostID names a post within its collection.
func PostID(id int) zap.Field { return zap.Int("post_id", id) }

// Backend names a storage backend type.
func Backend(kind string) zap.Field { return zap.String("backend", kind) }

// Root is a storage namespace root: a directory or key prefix.
func Root(root string) zap.Field { return zap.String("root", root) }

// Bucket names an S3 bucket.
func Bucket(name string) zap.Field { return zap.String("bucket", name) }

// Key is a full object key or file path.
func Key(key string) zap.Field { return zap.String("key", key) }

// Media names a media item of a post.
func Media(name string) zap.Field { return zap.String("media", name) }

// Size is a payload size in bytes.
func Size(n int) zap.Field { return zap.Int("size", n) }

// WithContext returns the request-scoped logger, or the global one.
func WithContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return l
	}
	return logger
}

func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Middleware tags each request with an id (the incoming X-Request-ID or a
// new UUID), stores a logger carrying it in the context and logs the
// outcome: server errors at error, client errors at warn, the rest at info.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		l := WithContext(r.Context()).With(zap.String("request_id", requestID))
		r = r.WithContext(context.WithValue(r.Context(), contextKey{}, l))
		l.Debug("request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr))

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			Size(rw.size),
			zap.Duration("duration", time.Since(start)),
		}
		switch {
		case rw.status >= http.StatusInternalServerError:
			l.Error("request completed", fields...)
		case rw.status >= http.StatusBadRequest:
			l.Warn("request completed", fields...)
		default:
			l.Info("request completed", fields...)
		}
	})
}
