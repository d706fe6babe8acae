package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/rembg-api/internal/config"
	"github.com/Brownie44l1/rembg-api/internal/handlers"
	"github.com/Brownie44l1/rembg-api/internal/logging"
	"github.com/Brownie44l1/rembg-api/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	gin.SetMode(cfg.GinMode)

	provider := model.NewProvider(model.ProviderConfig{
		URL:             cfg.ModelURL,
		Path:            cfg.ModelPath,
		DownloadTimeout: cfg.DownloadTimeout,
	}, model.LoadSession(model.SessionOptions{
		LibraryPath: cfg.OnnxRuntimeLib,
		Threads:     cfg.OnnxThreads,
	}), logger)
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Warn("failed to close model", zap.Error(err))
		}
		if err := model.ShutdownRuntime(); err != nil {
			logger.Warn("failed to shut down onnx runtime", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PreloadModel {
		if _, err := provider.Get(ctx); err != nil {
			return fmt.Errorf("preload model: %w", err)
		}
	}

	handler := handlers.NewHandler(provider, logger, handlers.Limits{
		UploadBytes: cfg.MaxUploadBytes(),
		ImagePixels: cfg.MaxImagePixels,
	})
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handlers.NewRouter(handler, logger),
	}

	logger.Info("server starting",
		zap.String("addr", srv.Addr),
		zap.String("model_path", cfg.ModelPath),
		zap.Bool("model_preloaded", cfg.PreloadModel))
	logger.Info("endpoints",
		zap.Strings("routes", []string{
			"GET  /        - upload page",
			"GET  /health  - health check",
			"POST /process - multipart: file, remove_bg, enhance, upscale",
		}))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
