package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/metrics"
	"github.com/cloudetl/pipeline-runner/internal/pipeline"
	"github.com/cloudetl/pipeline-runner/internal/server"
	"github.com/cloudetl/pipeline-runner/internal/storage"
)

func main() {
	serve := flag.Bool("serve", false, "Run the read-back API and re-run the pipeline on an interval")
	flag.Parse()

	// A .env file is optional; real environments inject variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var reporter metrics.Reporter = metrics.NoopReporter{}
	if !cfg.Metrics.Disabled {
		cw, err := metrics.NewCloudWatchReporter(cfg.Metrics, logger)
		if err != nil {
			logger.Warn("Metrics backend unavailable, continuing without metrics", "error", err)
		} else {
			reporter = cw
		}
	}

	p := pipeline.New(cfg, store, reporter, logger)

	if !*serve {
		// Single-shot mode: one invocation, result on stdout, exit code by
		// status.
		result := p.Run(context.Background())
		json.NewEncoder(os.Stdout).Encode(result)
		if !result.Success() {
			os.Exit(1)
		}
		return
	}

	runServe(cfg, store, p, logger)
}

// runServe runs the HTTP read-back API and re-invokes the pipeline on the
// configured interval until SIGINT/SIGTERM.
func runServe(cfg *config.Config, store storage.Storage, p *pipeline.Pipeline, logger *slog.Logger) {
	status := &server.RunStatus{}
	httpServer := server.NewServer(cfg.Server, store, status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		status.Set(p.Run(ctx))

		ticker := time.NewTicker(cfg.Server.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status.Set(p.Run(ctx))
			}
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	cancel()
	logger.Info("Shutdown complete")
}

// newLogger builds the process logger: JSON records by default, tinted
// text for local development.
func newLogger(cfg config.Logging) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
