package config

import (
	"strconv"
	"time"

	agollo "github.com/apolloconfig/agollo/v4"
	apconf "github.com/apolloconfig/agollo/v4/env/config"
	"github.com/apolloconfig/agollo/v4/storage"

	"beacon-presence-api/internal/logx"
)

// apolloKeys maps Apollo namespace keys onto config fields. Empty strings are
// ignored so a blank key never wipes a value that came from the environment.
var apolloKeys = map[string]func(cfg *Config, v string){
	"app.env":           func(c *Config, v string) { c.AppEnv = v },
	"server.addr":       func(c *Config, v string) { c.Server.Addr = v },
	"log.level":         func(c *Config, v string) { c.Log.Level = v },
	"log.format":        func(c *Config, v string) { c.Log.Format = v },
	"pg.url":            func(c *Config, v string) { c.PG.URL = v },
	"pg.max_open":       setInt(func(c *Config, n int) { c.PG.MaxOpenConns = n }),
	"pg.max_idle":       setInt(func(c *Config, n int) { c.PG.MaxIdleConns = n }),
	"redis.addr":        func(c *Config, v string) { c.Redis.Addr = v },
	"redis.password":    func(c *Config, v string) { c.Redis.Password = v },
	"redis.db":          setInt(func(c *Config, n int) { c.Redis.DB = n }),
	"mq.url":            func(c *Config, v string) { c.MQ.URL = v },
	"es.addrs":          func(c *Config, v string) { c.ES.Addrs = v },
	"es.username":       func(c *Config, v string) { c.ES.Username = v },
	"es.password":       func(c *Config, v string) { c.ES.Password = v },
	"dedup.skip_window": setDuration(func(c *Config, d time.Duration) { c.Presence.SkipWindow = d }),
	"visit.window":      setDuration(func(c *Config, d time.Duration) { c.Presence.VisitWindow = d }),
	"revisit.gap":       setDuration(func(c *Config, d time.Duration) { c.Presence.RevisitGap = d }),
	"long_stay.minutes": setInt(func(c *Config, n int) { c.Presence.LongStayMinutes = n }),
	"rate_limit.max":    setInt(func(c *Config, n int) { c.RateLimit.Max = n }),
}

func setInt(fn func(*Config, int)) func(*Config, string) {
	return func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			fn(c, n)
		}
	}
}

func setDuration(fn func(*Config, time.Duration)) func(*Config, string) {
	return func(c *Config, v string) {
		if d, err := time.ParseDuration(v); err == nil {
			fn(c, d)
		}
	}
}

// applyOverrides copies every known, non-empty key from lookup into cfg.
func applyOverrides(cfg *Config, lookup func(key string) (string, bool)) {
	for key, set := range apolloKeys {
		if v, ok := lookup(key); ok && v != "" {
			set(cfg, v)
		}
	}
}

// overrideFromApollo starts Apollo client and overrides config values if present.
// Returns a closer to stop the Apollo client.
func overrideFromApollo(cfg *Config, store *Store) (func(), error) {
	apolloLogger := logx.GetScope("apollo")
	if cfg.Apollo.Addrs == "" || cfg.Apollo.AppID == "" {
		apolloLogger.Sugar().Warn("missing APOLLO_ADDRS or APOLLO_APP_ID; skip")
		return nil, nil
	}

	ns := cfg.Apollo.Namespace
	if ns == "" {
		ns = "application"
	}

	appCfg := &apconf.AppConfig{
		AppID:         cfg.Apollo.AppID,
		Cluster:       cfg.Apollo.Cluster,
		NamespaceName: ns,
		IP:            cfg.Apollo.Addrs,
		Secret:        cfg.Apollo.AccessKey,
	}

	client, err := agollo.StartWithConfig(func() (*apconf.AppConfig, error) { return appCfg, nil })
	if err != nil {
		return nil, err
	}

	next := cloneConfig(cfg)
	applyOverrides(next, cacheLookup(client, ns))
	if err := store.UpdateValidated(next, map[string]bool{"apollo.init": true}); err != nil {
		apolloLogger.Sugar().Warnw("initial apollo config rejected", "err", err)
	}

	listener := &changeListener{ns: ns, client: client, store: store, logger: apolloLogger}
	client.AddChangeListener(listener)

	// agollo v4 exposes no Stop; the closer only detaches our listener.
	return func() { client.RemoveChangeListener(listener) }, nil
}

func cacheLookup(client agollo.Client, namespace string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		cache := client.GetConfigCache(namespace)
		if cache == nil {
			return "", false
		}
		v, err := cache.Get(key)
		if err != nil {
			return "", false
		}
		s, ok := v.(string)
		return s, ok
	}
}

type changeListener struct {
	ns     string
	client agollo.Client
	store  *Store
	logger *logx.Logger
}

func (c *changeListener) OnChange(e *storage.ChangeEvent) {
	c.logger.Sugar().Infow("apollo change", "namespace", e.Namespace, "changes", len(e.Changes))
	next := cloneConfig(c.store.Get())
	applyOverrides(next, cacheLookup(c.client, c.ns))
	changed := map[string]bool{}
	for k := range e.Changes {
		changed[k] = true
	}
	if err := c.store.UpdateValidated(next, changed); err != nil {
		c.logger.Sugar().Warnw("apollo change rejected", "err", err)
	}
}

// OnNewestChange receives the full namespace snapshot; OnChange already covers it.
func (c *changeListener) OnNewestChange(e *storage.FullChangeEvent) {
	c.logger.Sugar().Debugw("apollo snapshot", "namespace", e.Namespace, "keys", len(e.Changes))
}
