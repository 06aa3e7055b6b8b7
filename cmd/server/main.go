package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/seace/internal/application"
	"github.com/JonMunkholm/seace/internal/config"
	"github.com/JonMunkholm/seace/internal/logging"
	"github.com/JonMunkholm/seace/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"upload_max_size", cfg.Upload.MaxFileSize,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"session_idle_ttl", cfg.Session.IdleTTL,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"export_log", cfg.Audit.Enabled(),
		"archive", cfg.Archive.Enabled(),
	)

	ctx := context.Background()
	app, err := application.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var exports web.ExportLog
	if app.Exports != nil {
		exports = app.Exports
	}
	server := web.NewServer(cfg, app.Service, app.Sessions, exports)

	// Background jobs stop on shutdown
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go app.Sessions.StartSweeper(jobCtx, cfg.Session.SweepInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		limiter := app.Service.Limiter()
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for uploads to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
