package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"beacon-presence-api/internal/config"
	"beacon-presence-api/internal/docstore"
)

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Store.Driver = "memory"
	s, closeFn, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	closeFn()
	if _, ok := s.(*docstore.Memory); !ok {
		t.Fatalf("memory driver returned %T", s)
	}

	cfg.Store.Driver = "redis"
	if _, _, err := Open(ctx, cfg, nil); !errors.Is(err, ErrNoRedis) {
		t.Fatalf("redis without client: %v", err)
	}

	cfg.Store.Driver = "mongo"
	if _, _, err := Open(ctx, cfg, nil); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestOpen_SQLiteCreatesSchemaAndTracksPool(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "nested", "presence.db")

	s, closeFn, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := docstore.Put(ctx, s, "ledger", "2024-05-01/A", []byte(`{}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	UpdatePool(3, 1)
	if got := s.(*docstore.SQL).DB().Stats().MaxOpenConnections; got != 3 {
		t.Fatalf("max open = %d, want 3", got)
	}

	closeFn()
	UpdatePool(7, 1) // closed: must not touch the old pool
}
