package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/audio-gateway/internal/api"
	"github.com/JakeFAU/audio-gateway/internal/cache"
	"github.com/JakeFAU/audio-gateway/internal/config"
	"github.com/JakeFAU/audio-gateway/internal/gateway"
	"github.com/JakeFAU/audio-gateway/internal/logging"
	"github.com/JakeFAU/audio-gateway/internal/metrics"
	"github.com/JakeFAU/audio-gateway/internal/processor"
	"github.com/JakeFAU/audio-gateway/internal/source"
)

// newServeCmd creates the 'serve' subcommand that runs the HTTP gateway.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the gateway HTTP server",
		Long: `Loads configuration, wires the storage, cache, and processing
pipeline, and serves the gateway until interrupted.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	tags, err := gateway.BuildTags(cfg.CustomTags)
	if err != nil {
		return fmt.Errorf("validate custom tags: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := source.New(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	fetchTimeout := time.Duration(cfg.Processor.TimeoutSeconds) * time.Second
	remote := source.NewHTTPFetcher(fetchTimeout, cfg.Storage.MaxSourceSize, logger.Named("fetch"))
	loader := source.NewLoader(store, remote, logger.Named("source"))

	artifacts, err := cache.New(cfg.Cache, cfg.Processor, logger.Named("cache"))
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}

	var results source.Storage
	if cfg.Storage.Results.Enabled {
		results = store
	}

	proc := processor.New(ctx, cfg.Processor, processor.Options{
		Loader:        loader,
		Cache:         artifacts,
		Results:       results,
		Safe:          gateway.NewSafeChars(cfg.Storage.SafeChars),
		Tags:          tags,
		MaxSourceSize: cfg.Storage.MaxSourceSize,
		Logger:        logger.Named("processor"),
	})

	apiServer := api.NewServer(proc, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started",
			zap.String("host", cfg.Application.Host),
			zap.Int("port", cfg.Application.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
