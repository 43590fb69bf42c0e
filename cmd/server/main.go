package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vytor/hanziflash/internal/api"
	"github.com/vytor/hanziflash/internal/app"
	"github.com/vytor/hanziflash/internal/config"
	"github.com/vytor/hanziflash/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration: %v", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
		logger.WithColors(true),
	)
	logger.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	log.Info("===========================================")
	log.Info("HanziFlash Server Starting")
	log.Info("===========================================")
	log.Info("configuration loaded")
	log.Debug("addr=%s", cfg.Addr)
	log.Debug("offline_db_path=%q", cfg.OfflineDBPath)
	log.Debug("remote_enabled=%t", cfg.RemoteEnabled())
	log.Debug("remote_migrate=%t", cfg.RemoteMigrate)
	log.Debug("log_level=%s", cfg.LogLevel)
	log.Debug("fetch_timeout=%s", cfg.FetchTimeout)
	log.Debug("fetch_max_bytes=%s", humanize.IBytes(uint64(cfg.FetchMaxBytes)))
	log.Debug("cache_worker_count=%d", cfg.CacheWorkerCount)
	log.Debug("cache_queue_size=%d", cfg.CacheQueueSize)
	log.Debug("audio_compression=%t level=%d", cfg.AudioCompression, cfg.AudioCompressionLevel)
	log.Debug("blob_prefix=%s", cfg.BlobPrefix)
	log.Debug("s3_enabled=%t", cfg.S3Enabled())

	ctx, cancel := context.WithCancel(logger.NewContext(context.Background(), log))

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize: %v", err)
		cancel()
		os.Exit(1)
	}
	application.Start(ctx)

	srv := &api.Server{
		StudyService: application.Study,
		Offline:      application.Manager,
		Blobs:        application.Registry,
		Checks: []api.ReadinessCheck{
			{Name: "offline", Check: application.CheckOffline},
			{Name: "remote", Check: application.CheckRemote},
		},
	}

	// Configure HTTP server. No WriteTimeout: the offline event stream is
	// long-lived and API routes carry their own timeout.
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Start HTTP server
	go func() {
		log.Info("HTTP server listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop

	log.Info("received signal %v, initiating graceful shutdown", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Cancelling the base context also ends open event streams.
	cancel()

	log.Debug("shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error: %v", err)
	}

	if err := application.Close(); err != nil {
		log.Error("shutdown error: %v", err)
	}

	log.Info("===========================================")
	log.Info("HanziFlash Server Stopped")
	log.Info("===========================================")
}
