// Package app opens the stores selected by configuration and assembles the
// portal service shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eduface/internal/auth"
	"eduface/internal/config"
	"eduface/internal/ids"
	"eduface/internal/pgstore"
	"eduface/internal/portal"
	"eduface/internal/queue"
	"eduface/internal/sheet"
	"eduface/internal/sheet/gsheets"
	"eduface/internal/sheet/xlsx"
	"eduface/internal/sheetdb"
	"eduface/internal/store"
)

// Portal holds every open handle. Close releases them in reverse order.
type Portal struct {
	Service *portal.Service
	Repo    portal.Repository
	// Sheets is set for the spreadsheet backends.
	Sheets *sheetdb.DB
	Redis  *store.Redis
	Queue  queue.Queue
	Health map[string]func(context.Context) bool

	closers []func() error
}

// Open connects to the configured backends. Any connectivity failure is
// returned; callers treat it as fatal.
func Open(ctx context.Context, cfg config.App) (*Portal, error) {
	p := &Portal{Health: map[string]func(context.Context) bool{}}
	if err := p.open(ctx, cfg); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Portal) open(ctx context.Context, cfg config.App) error {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cfg.IDAllocator == "redis" || cfg.QueueBackend == "redis" {
		r, err := store.NewRedis(dialCtx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		p.Redis = r
		p.closers = append(p.closers, r.Close)
		p.Health["redis"] = r.Healthy
	}

	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(dialCtx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		p.closers = append(p.closers, db.Close)
		p.Health["store"] = db.Healthy
		pg := pgstore.New(db.Client)
		if err := pg.Migrate(dialCtx, cfg.Subjects); err != nil {
			return err
		}
		p.Repo = pg
	case "sheets", "xlsx":
		backend, err := openBackend(dialCtx, cfg)
		if err != nil {
			return err
		}
		p.closers = append(p.closers, backend.Close)
		p.Health["store"] = func(ctx context.Context) bool {
			_, err := backend.Sheets(ctx)
			return err == nil
		}

		adapter := sheet.NewAdapter(backend, sheet.Options{
			CallTimeout: cfg.StoreCallTimeout,
			MaxRetries:  cfg.StoreRetryMax,
		})
		var alloc ids.Allocator = ids.Local{}
		if cfg.IDAllocator == "redis" {
			alloc = ids.NewRedis(p.Redis.Client)
		}
		p.Sheets = sheetdb.New(adapter, alloc, sheetdb.Options{
			Subjects:       cfg.Subjects,
			LegacyFallback: cfg.LegacyFallback,
		})
		p.Repo = p.Sheets

		if ok, err := adapter.Exists(dialCtx, sheet.Users); err != nil {
			return fmt.Errorf("check users table: %w", err)
		} else if !ok {
			slog.Warn("users table missing, run portalctl create-subject-sheets", "backend", backend.Name())
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.QueueBackend == "redis" {
		p.Queue = queue.NewRedis(p.Redis.Client, "")
	} else {
		p.Queue = queue.NewInMemory(256)
	}

	p.Service = portal.NewService(p.Repo, auth.Passwords{}, cfg.Subjects)
	return nil
}

func openBackend(ctx context.Context, cfg config.App) (sheet.Backend, error) {
	if cfg.StoreBackend == "xlsx" {
		b, err := xlsx.Open(cfg.XLSXPath)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	c, err := gsheets.Open(ctx, gsheets.Config{
		SpreadsheetID:   cfg.SheetsID,
		CredentialsJSON: []byte(cfg.SheetsCreds),
		CredentialsFile: cfg.SheetsCredsFile,
		RequestsPerMin:  cfg.SheetsPerMin,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases every handle opened so far.
func (p *Portal) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
