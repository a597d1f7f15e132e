package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rsilva/mediavault/internal/config"
	"github.com/rsilva/mediavault/internal/handlers"
	"github.com/rsilva/mediavault/internal/metrics"
	"github.com/rsilva/mediavault/internal/middleware"
	"github.com/rsilva/mediavault/internal/storage"
	"github.com/rsilva/mediavault/internal/storage/filesystem"
	"github.com/rsilva/mediavault/internal/storage/s3"
	"github.com/rsilva/mediavault/internal/store"
	"github.com/rsilva/mediavault/internal/store/postgres"
	"github.com/rsilva/mediavault/internal/store/sqlite"
	"github.com/rsilva/mediavault/internal/upload"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting mediavault",
		"port", cfg.Port,
		"db_driver", cfg.DBDriver,
		"storage_backend", cfg.StorageBackend,
		"max_file_size", cfg.MaxFileSize,
		"default_chunk_size", cfg.DefaultChunkSize,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize session store
	var sessions store.SessionStore
	switch cfg.DBDriver {
	case "postgres":
		pgStore, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to initialize postgres store", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		sessions = pgStore
		slog.Info("session store initialized", "driver", "postgres")

	default:
		sqlStore, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to initialize sqlite store", "error", err)
			os.Exit(1)
		}
		defer sqlStore.Close()
		sessions = sqlStore
		slog.Info("session store initialized", "driver", "sqlite", "path", cfg.DBPath)
	}

	// Initialize storage backend
	var backend storage.Backend
	switch cfg.StorageBackend {
	case "s3":
		s3Backend, err := s3.NewS3Storage(ctx, s3.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		})
		if err != nil {
			slog.Error("failed to initialize s3 storage", "error", err)
			os.Exit(1)
		}
		backend = s3Backend
		slog.Info("storage backend initialized", "backend", "s3", "bucket", cfg.S3Bucket)

	default:
		fsBackend, err := filesystem.NewFilesystemStorage(cfg.UploadDir)
		if err != nil {
			slog.Error("failed to initialize filesystem storage", "error", err)
			os.Exit(1)
		}
		backend = fsBackend
		slog.Info("storage backend initialized", "backend", "local", "dir", cfg.UploadDir)
	}

	// Upload session manager
	manager := upload.NewManager(upload.Config{
		MaxFileSize:         cfg.MaxFileSize,
		DefaultChunkSize:    cfg.DefaultChunkSize,
		MaxChunkSize:        cfg.MaxChunkSize,
		AllowedContentTypes: cfg.AllowedContentTypes,
		MaxSessionsPerOwner: cfg.MaxUserUploads,
		SessionTimeout:      time.Duration(cfg.UploadSessionTimeoutMinutes) * time.Minute,
	}, sessions, backend, backend)

	// Scrape-time gauges read from the session store
	prometheus.MustRegister(metrics.NewSessionMetricsCollector(sessions))

	// Record start time for health checks
	startTime := time.Now()

	// Setup HTTP router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/uploads", handlers.UploadInitHandler(manager, cfg))
	mux.HandleFunc("/api/uploads/chunk/", handlers.UploadChunkHandler(manager, cfg))
	mux.HandleFunc("/api/uploads/complete/", handlers.UploadCompleteHandler(manager))
	mux.HandleFunc("/api/uploads/status/", handlers.UploadStatusHandler(manager))
	mux.HandleFunc("/api/uploads/", handlers.UploadCancelHandler(manager))

	mux.HandleFunc("/health", handlers.HealthHandler(sessions, startTime))
	mux.Handle("/metrics", promhttp.Handler())

	// Wrap with middleware (order: Recovery -> Logging -> Security -> Metrics -> handlers)
	handler := middleware.RecoveryMiddleware(
		middleware.LoggingMiddleware(
			middleware.SecurityHeadersMiddleware(
				metrics.Middleware(mux),
			),
		),
	)

	// Setup HTTP server. Write timeout is generous because chunk bodies can
	// be large on slow links.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start expiry sweep
	go upload.StartCleanupWorker(ctx, manager, time.Duration(cfg.CleanupIntervalMinutes)*time.Minute)

	// Start HTTP server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)

		// Stop the cleanup worker
		cancel()

		// Give outstanding requests 10 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				slog.Error("server close failed", "error", err)
			}
			os.Exit(1)
		}

		slog.Info("server shutdown complete")
	}
}
