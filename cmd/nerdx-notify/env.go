package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nerdx/nerdx-notify/internal/app"
	"github.com/nerdx/nerdx-notify/internal/backend/supabase"
	"github.com/nerdx/nerdx-notify/internal/cache"
	"github.com/nerdx/nerdx-notify/internal/credential"
	"github.com/nerdx/nerdx-notify/internal/logging"
	"github.com/nerdx/nerdx-notify/internal/model"
	"github.com/nerdx/nerdx-notify/internal/notify"
)

// appEnv holds everything a command needs, wired from config.
type appEnv struct {
	cfg      *model.AppConfig
	log      *zap.Logger
	closeLog func() error
	client   *supabase.Client
	cache    *cache.SQLiteCache
}

// newEnv loads config and wires the logger, keyring, backend client and
// snapshot cache. The cache is optional: failing to open it is logged.
func newEnv() (*appEnv, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("version", version))

	opts := []supabase.Option{
		supabase.WithLogger(log),
		supabase.WithTimeout(time.Duration(cfg.Backend.TimeoutSec) * time.Second),
		supabase.WithHeartbeat(time.Duration(cfg.Realtime.HeartbeatSec) * time.Second),
	}
	if store, err := credential.Open(); err != nil {
		log.Warn("keyring unavailable, session will not persist", zap.Error(err))
	} else {
		opts = append(opts, supabase.WithSessionStore(credential.NewSessionStore(store)))
	}

	env := &appEnv{
		cfg:      cfg,
		log:      log,
		closeLog: closeLog,
		client:   supabase.NewClient(cfg.Backend.URL, cfg.Backend.AnonKey, opts...),
	}

	if cfg.Cache.Enabled {
		c, err := cache.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			log.Warn("snapshot cache unavailable", zap.String("path", cfg.Cache.Path), zap.Error(err))
		} else {
			env.cache = c
		}
	}
	return env, nil
}

// Close releases the cache and flushes the log.
func (r *appEnv) Close() {
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			r.log.Warn("closing cache", zap.Error(err))
		}
	}
	_ = r.closeLog()
}

// feedFactory builds feeds from the pagination and realtime config.
func (r *appEnv) feedFactory() app.FeedFactory {
	return func(userID string) *notify.Feed {
		opts := notify.FeedOptions{
			PageSize:       r.cfg.Pagination.PageSize,
			Mode:           notify.Mode(r.cfg.Pagination.Mode),
			HydrateTimeout: time.Duration(r.cfg.Realtime.HydrateTimeoutSec) * time.Second,
			Realtime:       r.cfg.Realtime.Enabled,
			Logger:         r.log,
		}
		if r.cache != nil {
			opts.Cache = r.cache
		}
		return notify.NewFeed(r.client, userID, opts)
	}
}
