package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade_ingest/internal/app"
	"trade_ingest/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", app.DefaultConfigPath, "path to config.yaml")
	flag.Parse()

	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bootstrap.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown error", slog.Any("error", err))
		}
	}()

	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return 1
	}

	// 3. Feed Worker
	worker, err := bootstrap.NewFeedWorker()
	if err != nil {
		slog.Error("❌ Feed worker setup failed", slog.Any("error", err))
		return 1
	}
	if err := worker.Connect(ctx); err != nil {
		var ce *domain.ConnectionError
		if errors.As(err, &ce) {
			slog.Error("❌ Failed to connect to feed", slog.String("endpoint", ce.Endpoint), slog.Any("error", ce.Err))
		} else {
			slog.Error("❌ Failed to connect to feed", slog.Any("error", err))
		}
		return 1
	}

	slog.InfoContext(ctx, "✨ Trade ingest running. Press Ctrl+C to exit.")

	// Wait for shutdown signal or the worker giving up
	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("👋 Shutting down gracefully...")
	case <-worker.Done():
		if err := worker.Err(); err != nil {
			slog.Error("Feed worker stopped", slog.Any("error", err))
			exitCode = 1
		}
	}

	worker.Disconnect()
	slog.Info("📊 Final metrics", slog.Any("metrics", bootstrap.Metrics.Snapshot()))
	return exitCode
}
