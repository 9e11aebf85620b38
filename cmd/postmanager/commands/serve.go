package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/subaquatic-pierre/postmanager/internal/api"
	"github.com/subaquatic-pierre/postmanager/internal/auth"
	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve every collection over HTTP",
		Long: `Start the HTTP API on listen_addr and Prometheus metrics on metrics_addr.

Routes:
  GET    /health
  GET    /{collection}                   index, or {"id": n} with ?title=
  GET    /{collection}/{id}              post with content and media index
  GET    /{collection}/{id}/media/{name} raw media bytes, or ?format=data_url|byte64
  POST   /{collection}                   create (token required if jwt_secret is set)
  PUT    /{collection}/{id}              update (token required if jwt_secret is set)
  DELETE /{collection}/{id}              delete (token required if jwt_secret is set)

Example:
  POSTMANAGER_STORAGE_BACKEND=s3 POSTMANAGER_STORAGE_S3_BUCKET=posts postmanager serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *globalOptions) error {
	cfg, err := loadConfig(opts, "")
	if err != nil {
		return err
	}
	defer logging.Sync()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	root, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer root.Backend().Close()

	authHandler := auth.New(cfg.JWTSecret)
	if !authHandler.Enabled() {
		logging.Warn("jwt_secret not set, mutating routes are unauthenticated")
	}
	srv := api.NewServer(root, authHandler)

	// Open the default collection up front so storage problems surface at startup
	if _, err := srv.Manager(ctx, cfg.Collection); err != nil {
		return err
	}

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		logging.Info("shutting down...")

		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
		}
		metricsServer.Close()
		cancel()
	}()

	logging.Info("server listening",
		zap.String("addr", cfg.ListenAddr),
		logging.Backend(root.Type()),
		logging.Collection(cfg.Collection))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}
