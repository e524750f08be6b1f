// Package db opens the document store selected by STORE_DRIVER.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"beacon-presence-api/internal/config"
	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/redisx"
)

var dbLogger = logx.GetScope("db")

var (
	mu     sync.Mutex
	baseDB *sql.DB
)

// ErrNoRedis is returned for STORE_DRIVER=redis without a Redis client.
var ErrNoRedis = errors.New("db: redis driver needs a redis client")

// Open returns the configured store with its schema in place. rdb is only
// used by the redis driver.
func Open(ctx context.Context, cfg *config.Config, rdb *redisx.Client) (docstore.Store, func(), error) {
	var sqlStore *docstore.SQL
	switch cfg.Store.Driver {
	case "memory":
		return docstore.NewMemory(), func() {}, nil
	case "redis":
		if rdb == nil {
			return nil, func() {}, ErrNoRedis
		}
		return docstore.NewRedis(rdb), func() {}, nil
	case "sqlite":
		s, err := docstore.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		sqlStore = s
	case "postgres":
		s, err := docstore.OpenPostgres(cfg.PG.URL, cfg.PG.MaxOpenConns, cfg.PG.MaxIdleConns)
		if err != nil {
			return nil, func() {}, err
		}
		sqlStore = s
	default:
		return nil, func() {}, fmt.Errorf("db: unsupported driver %q", cfg.Store.Driver)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlStore.InitSchema(ctx); err != nil {
		_ = sqlStore.Close()
		return nil, func() {}, err
	}

	mu.Lock()
	baseDB = sqlStore.DB()
	mu.Unlock()
	closer := func() {
		mu.Lock()
		baseDB = nil
		mu.Unlock()
		if err := sqlStore.Close(); err != nil {
			dbLogger.Sugar().Errorf("close store: %v", err)
		}
	}
	return sqlStore, closer, nil
}

// UpdatePool updates DB pool settings at runtime. It is a no-op for the
// memory and redis drivers.
func UpdatePool(maxOpen, maxIdle int) {
	mu.Lock()
	defer mu.Unlock()
	if baseDB == nil {
		return
	}
	if maxOpen > 0 {
		baseDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		baseDB.SetMaxIdleConns(maxIdle)
	}
}
