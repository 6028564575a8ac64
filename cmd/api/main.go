package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"eduface/internal/app"
	"eduface/internal/auth"
	"eduface/internal/config"
	"eduface/internal/httpapi"
	"eduface/internal/logging"
	"eduface/internal/queue"
	"eduface/internal/worker"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("close handles", "error", err)
		}
	}()
	slog.Info("store connected", "backend", cfg.StoreBackend, "ids", cfg.IDAllocator, "queue", cfg.QueueBackend)

	// An in-memory queue only reaches consumers in this process.
	if _, ok := p.Queue.(*queue.InMemory); ok {
		go func() {
			if err := worker.New(p.Queue, p.Service).Run(ctx); err != nil {
				slog.Error("in-process worker stopped", "error", err)
			}
		}()
	}

	health := make(map[string]httpapi.Checker, len(p.Health))
	for name, check := range p.Health {
		health[name] = check
	}
	tokens := auth.NewTokens(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	h := httpapi.New(p.Service, tokens, p.Queue, health)
	r := httpapi.NewRouter(h, httpapi.RouterOptions{
		AllowOrigins:    cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server forced shutdown", "error", err)
	}
	slog.Info("server exited")
	return nil
}
