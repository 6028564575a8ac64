package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"eduface/internal/app"
	"eduface/internal/config"
	"eduface/internal/logging"
	"eduface/internal/worker"
)

// Worker consumes queued attendance batches and writes them to the store.
func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.QueueBackend != "redis" {
		slog.Error("the worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api process")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	if err := worker.New(p.Queue, p.Service).Run(ctx); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}
