package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"eduface/internal/config"
	"eduface/internal/portal"
	"eduface/internal/queue"
)

func xlsxConfig(t *testing.T) config.App {
	t.Helper()
	return config.App{
		StoreBackend: "xlsx",
		XLSXPath:     filepath.Join(t.TempDir(), "portal.xlsx"),
		IDAllocator:  "local",
		QueueBackend: "memory",
		Subjects:     []string{"Math", "Physics"},
	}
}

func TestOpen_XLSX(t *testing.T) {
	p, err := Open(context.Background(), xlsxConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.Sheets == nil || p.Service == nil {
		t.Fatal("expected spreadsheet repository and service")
	}
	if _, ok := p.Queue.(*queue.InMemory); !ok {
		t.Errorf("queue = %T, want in-memory", p.Queue)
	}
	if !p.Health["store"](context.Background()) {
		t.Error("store should be healthy")
	}

	created, err := p.Sheets.Bootstrap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 5 {
		t.Errorf("created %v, want 5 tables", created)
	}
	if _, err := p.Service.CreateAdmin(context.Background(), "Admin", "admin@eduface.com", "admin123"); err != nil {
		t.Fatal(err)
	}
	u, err := p.Service.Authenticate(context.Background(), "admin@eduface.com", "admin123", "admin")
	if err != nil || u.Role != portal.RoleAdmin {
		t.Errorf("Authenticate() = %+v, %v", u, err)
	}
}

func TestOpen_RedisQueueAndIDs(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := xlsxConfig(t)
	cfg.RedisAddr = mr.Addr()
	cfg.IDAllocator = "redis"
	cfg.QueueBackend = "redis"

	p, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, ok := p.Queue.(*queue.Redis); !ok {
		t.Errorf("queue = %T, want redis", p.Queue)
	}
	if _, err := p.Sheets.Bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	u, err := p.Service.CreateAdmin(context.Background(), "Admin", "admin@eduface.com", "admin123")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != 1 {
		t.Errorf("id = %d, want 1", u.ID)
	}
	if v, err := mr.Get("portal:ids:users"); err != nil || v != "1" {
		t.Errorf("redis counter = %q, %v", v, err)
	}
}

func TestOpen_UnreachableRedisIsFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := xlsxConfig(t)
	cfg.RedisAddr = mr.Addr()
	cfg.QueueBackend = "redis"
	mr.Close()

	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := xlsxConfig(t)
	cfg.StoreBackend = "csv"
	_, err := Open(context.Background(), cfg)
	if err == nil || errors.Is(err, portal.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
