//	@title			Filehost API
//	@version		1.0
//	@description	Minimal file hosting: upload with a shared key, fetch by public URL, delete by capability URL.
//
//	@BasePath	/

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/filedrop/service/internal/config"
	"github.com/filedrop/service/internal/files"
	"github.com/filedrop/service/internal/logging"
	"github.com/filedrop/service/internal/server"
	"github.com/filedrop/service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	fs := afero.NewOsFs()

	store, err := newStorage(cfg, fs, logger)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}

	// Wire dependencies: storage → service → handler
	svc, err := files.NewService(cfg, store, fs, logger)
	if err != nil {
		logger.Fatal("files service init failed", zap.Error(err))
	}
	handler := files.NewHandler(svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(cfg, handler, logger),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       cfg.UploadTimeout,
		WriteTimeout:      cfg.UploadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppEnv),
			zap.String("storage", cfg.StorageBackend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newStorage(cfg *config.Config, fs afero.Fs, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageBackend == config.BackendMinio {
		return storage.NewMinioStorage(
			cfg.StorageEndpoint,
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			cfg.StorageBucket,
			cfg.StorageUseSSL,
			fs,
			logger.Named("storage"),
		)
	}
	return storage.NewLocalStorage(fs, cfg.ServeRoot(), cfg.Subdirs()...)
}
