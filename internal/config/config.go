package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/samber/lo"

	"beacon-presence-api/internal/logx"
)

// Config holds the application configuration
type Config struct {
	AppEnv string
	Server struct {
		Addr             string
		SocketActivation bool
	}
	Log struct {
		Level  string // debug, info, warn, error
		Format string // text, json
	}
	Store struct {
		Driver     string // memory, sqlite, postgres, redis
		SQLitePath string
	}
	PG struct {
		URL          string
		MaxOpenConns int
		MaxIdleConns int
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	MQ struct {
		URL string // RabbitMQ URL
	}
	ES struct {
		Addrs    string // comma separated
		Username string
		Password string
	}
	MQTT struct {
		Broker   string
		Topic    string
		ClientID string
	}
	Presence struct {
		Timezone        string
		SkipWindow      time.Duration
		CacheTTL        time.Duration
		VisitWindow     time.Duration
		RevisitGap      time.Duration
		LongStayMinutes int

		loc *time.Location // resolved Timezone, set by Validate
	}
	RateLimit struct {
		WindowSec int
		Max       int
	}
	Apollo struct {
		Enable    bool
		AppID     string
		Cluster   string
		Namespace string
		Addrs     string
		AccessKey string
	}
}

// Load loads config from env, and if enabled, overrides with Apollo values.
// Returns config, the hot-reload store, an optional apollo closer, and error.
func Load() (*Config, *Store, func(), error) {
	configLogger := logx.GetScope("config")
	cfg := FromEnv()

	if err := Validate(cfg); err != nil {
		return nil, nil, nil, err
	}

	store := NewStore(cfg)

	if cfg.Apollo.Enable {
		closer, err := overrideFromApollo(cfg, store)
		if err != nil {
			configLogger.Sugar().Errorf("apollo override failed: %v", err)
			return cfg, store, closer, err
		}
		return store.Get(), store, closer, nil
	}

	return cfg, store, nil, nil
}

// FromEnv reads every setting from the process environment, applying defaults.
func FromEnv() *Config {
	cfg := &Config{}

	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.Server.Addr = getEnv("SERVER_ADDR", ":8080")
	cfg.Server.SocketActivation = getBool("SOCKET_ACTIVATION", false)
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "text")

	cfg.Store.Driver = getEnv("STORE_DRIVER", "sqlite")
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", "data/presence.db")

	cfg.PG.URL = getEnv("POSTGRES_URL", "")
	cfg.PG.MaxOpenConns = getInt("PG_MAX_OPEN", 10)
	cfg.PG.MaxIdleConns = getInt("PG_MAX_IDLE", 5)

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)

	// RabbitMQ
	cfg.MQ.URL = getEnv("RABBITMQ_URL", "")

	// Elasticsearch
	cfg.ES.Addrs = getEnv("ES_ADDRS", "")
	cfg.ES.Username = getEnv("ES_USERNAME", "")
	cfg.ES.Password = getEnv("ES_PASSWORD", "")

	// MQTT beacon ingestion
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "beacons/+/detections")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "presence-api")

	cfg.Presence.Timezone = getEnv("VENUE_TZ", "UTC")
	cfg.Presence.SkipWindow = getDuration("DEDUP_SKIP_WINDOW", 5*time.Second)
	cfg.Presence.CacheTTL = getDuration("DEDUP_CACHE_TTL", 10*time.Minute)
	cfg.Presence.VisitWindow = getDuration("VISIT_WINDOW", 30*time.Second)
	cfg.Presence.RevisitGap = getDuration("REVISIT_GAP", 30*time.Second)
	cfg.Presence.LongStayMinutes = getInt("LONG_STAY_MINUTES", 5)

	cfg.RateLimit.WindowSec = getInt("RATE_LIMIT_WINDOW_SEC", 60)
	cfg.RateLimit.Max = getInt("RATE_LIMIT_MAX", 600)

	cfg.Apollo.Enable = getBool("APOLLO_ENABLE", false)
	cfg.Apollo.AppID = getEnv("APOLLO_APP_ID", "")
	cfg.Apollo.Cluster = getEnv("APOLLO_CLUSTER", "default")
	cfg.Apollo.Namespace = getEnv("APOLLO_NAMESPACE", "application")
	cfg.Apollo.Addrs = getEnv("APOLLO_ADDRS", "")
	cfg.Apollo.AccessKey = getEnv("APOLLO_ACCESS_KEY", "")

	return cfg
}

// Validate rejects settings the engine cannot run with.
func Validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.PG.URL == "" {
		return fmt.Errorf("STORE_DRIVER=postgres requires POSTGRES_URL")
	}
	if cfg.Store.Driver == "redis" && cfg.Redis.Addr == "" {
		return fmt.Errorf("STORE_DRIVER=redis requires REDIS_ADDR")
	}
	if cfg.PG.MaxIdleConns > cfg.PG.MaxOpenConns {
		return fmt.Errorf("PG_MAX_IDLE cannot exceed PG_MAX_OPEN")
	}
	p := cfg.Presence
	if p.SkipWindow <= 0 || p.VisitWindow <= 0 || p.RevisitGap <= 0 || p.CacheTTL <= 0 {
		return fmt.Errorf("presence windows must be positive")
	}
	if p.CacheTTL < p.SkipWindow {
		return fmt.Errorf("DEDUP_CACHE_TTL must be at least DEDUP_SKIP_WINDOW")
	}
	if p.LongStayMinutes <= 0 {
		return fmt.Errorf("LONG_STAY_MINUTES must be positive")
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return fmt.Errorf("invalid VENUE_TZ: %w", err)
	}
	cfg.Presence.loc = loc
	return nil
}

// Location is the venue timezone. It is resolved once by Validate; an
// unvalidated config resolves it on each call.
func (c *Config) Location() *time.Location {
	if c.Presence.loc != nil {
		return c.Presence.loc
	}
	loc, err := time.LoadLocation(c.Presence.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	return lo.Ternary(v != "", v, def)
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
