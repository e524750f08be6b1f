// Package main is the entry point for the presence API server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"beacon-presence-api/internal/analytics"
	"beacon-presence-api/internal/config"
	"beacon-presence-api/internal/db"
	"beacon-presence-api/internal/esx"
	"beacon-presence-api/internal/httpx"
	"beacon-presence-api/internal/httpx/kit"
	"beacon-presence-api/internal/httpx/mw"
	"beacon-presence-api/internal/httpx/search"
	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/mqttx"
	"beacon-presence-api/internal/mqx"
	"beacon-presence-api/internal/presence"
	"beacon-presence-api/internal/redisx"
	"beacon-presence-api/internal/route"
	"beacon-presence-api/internal/server"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	// Load config (env first; optional Apollo override)
	cfg, store, apClose, err := config.Load()
	if err != nil {
		panic(err)
	}
	if apClose != nil {
		defer apClose()
	}

	logx.Init(cfg.Log.Level, cfg.Log.Format)
	mainLogger := logx.GetScope("main")
	defer func() { _ = mainLogger.Sync() }()

	mainLogger.Info("config loaded",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("venue_tz", cfg.Presence.Timezone),
		zap.String("log.level", cfg.Log.Level),
	)

	// Redis first: the redis store driver depends on it
	rdb, rclose, err := redisx.Open(cfg)
	if err != nil {
		mainLogger.Warn("redis init failed", zap.Error(err))
	}
	defer rclose()

	docs, closeDB, err := db.Open(context.Background(), cfg, rdb)
	if err != nil {
		mainLogger.Error("open store error", zap.Error(err))
		panic(err)
	}
	defer closeDB()

	// Post-commit sinks: RabbitMQ fan-out and the reporting index
	var sinks []presence.Sink
	if cfg.MQ.URL != "" {
		if pub, err := mqx.NewRabbitPublisher(cfg.MQ.URL, "presence"); err != nil {
			mainLogger.Warn("mq init failed", zap.Error(err))
		} else {
			defer func() { _ = pub.Close() }()
			sinks = append(sinks, mqx.NewVisitPublisher(pub))
		}
	}

	var searcher search.Searcher
	esClient, esClose, err := esx.Open(cfg)
	if err != nil {
		mainLogger.Warn("es init failed", zap.Error(err))
	} else {
		defer esClose()
		if esClient != nil {
			idx := esx.NewVisitIndexer(esClient, esx.DefaultIndex)
			sinks = append(sinks, idx)
			searcher = idx
		}
	}

	var skip presence.SkipCache = presence.NewMemorySkipCache(cfg.Presence.SkipWindow, cfg.Presence.CacheTTL)
	if rdb != nil {
		skip = presence.NewRedisSkipCache(rdb, cfg.Presence.SkipWindow, cfg.Presence.CacheTTL)
	}

	svc := presence.NewService(docs,
		presence.WithSkipCache(skip),
		presence.WithSinks(sinks...),
		presence.WithSettings(func() presence.Settings {
			c := store.Get()
			return presence.Settings{VisitWindow: c.Presence.VisitWindow, Location: c.Location()}
		}),
	)
	engine := analytics.NewEngine(svc.Ledger(), svc.Locations(), func() analytics.Thresholds {
		c := store.Get()
		return analytics.Thresholds{RevisitGap: c.Presence.RevisitGap, LongStayMinutes: c.Presence.LongStayMinutes}
	})

	sub, err := mqttx.Start(cfg, svc)
	if err != nil {
		mainLogger.Warn("mqtt init failed", zap.Error(err))
	}
	defer sub.Close()

	// Fiber app and routes
	app := fiber.New(fiber.Config{ErrorHandler: kit.ErrorHandler()})
	httpx.RegisterCommonMiddlewares(app)
	httpx.Register(app, httpx.Deps{
		Presence:    svc,
		Analytics:   engine,
		Planner:     route.NewPlanner(svc.Locations()),
		Redis:       rdb,
		Search:      searcher,
		IngestLimit: mw.RateLimit(rdb, cfg.RateLimit.WindowSec, cfg.RateLimit.Max),
	})

	// Validators: rollback strategy for invalid config
	store.AddValidator(func(newCfg *config.Config, changed map[string]bool) error {
		if changed["pg.max_open"] || changed["pg.max_idle"] {
			if newCfg.PG.MaxIdleConns > newCfg.PG.MaxOpenConns {
				return fmt.Errorf("PG_MAX_IDLE cannot exceed PG_MAX_OPEN")
			}
		}
		if changed["visit.window"] && newCfg.Presence.VisitWindow > time.Hour {
			return fmt.Errorf("visit.window %s is longer than an hour", newCfg.Presence.VisitWindow)
		}
		return nil
	})

	store.Watch(func(newCfg *config.Config, changed map[string]bool) {
		if changed["pg.max_open"] || changed["pg.max_idle"] {
			db.UpdatePool(newCfg.PG.MaxOpenConns, newCfg.PG.MaxIdleConns)
			mainLogger.Info("db pool updated",
				zap.Int("max_open", newCfg.PG.MaxOpenConns),
				zap.Int("max_idle", newCfg.PG.MaxIdleConns),
			)
		}
		if changed["visit.window"] || changed["revisit.gap"] || changed["long_stay.minutes"] {
			mainLogger.Info("presence thresholds updated",
				zap.Duration("visit_window", newCfg.Presence.VisitWindow),
				zap.Duration("revisit_gap", newCfg.Presence.RevisitGap),
				zap.Int("long_stay_minutes", newCfg.Presence.LongStayMinutes),
			)
		}
		for _, key := range []string{"pg.url", "redis.addr", "mq.url", "es.addrs", "dedup.skip_window", "rate_limit.max"} {
			if changed[key] {
				mainLogger.Warn("setting changed; restart required to take effect", zap.String("key", key))
			}
		}
		if changed["log.level"] || changed["log.format"] {
			logx.Init(newCfg.Log.Level, newCfg.Log.Format)
			mainLogger.Info("logger reconfigured",
				zap.String("level", newCfg.Log.Level),
				zap.String("format", newCfg.Log.Format),
			)
		}
	})

	// Graceful shutdown
	go func() {
		ln, err := server.GetListener(cfg.Server.Addr, cfg.Server.SocketActivation)
		if err != nil {
			mainLogger.Sugar().Errorf("listener error: %v", err)
			return
		}
		if err := app.Listener(ln); err != nil {
			mainLogger.Sugar().Infof("fiber exit: %v", err)
		}
	}()
	mainLogger.Sugar().Infof("server started on %s", cfg.Server.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	mainLogger.Sugar().Info("shutting down...")
	_ = app.ShutdownWithTimeout(10 * time.Second)
}
