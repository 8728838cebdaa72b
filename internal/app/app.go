// Package app assembles the curation pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/FranksOps/curator/internal/cache"
	"github.com/FranksOps/curator/internal/cache/postgres"
	"github.com/FranksOps/curator/internal/cache/redisbackend"
	"github.com/FranksOps/curator/internal/cache/sqlite"
	"github.com/FranksOps/curator/internal/config"
	"github.com/FranksOps/curator/internal/embed"
	"github.com/FranksOps/curator/internal/fingerprint"
	"github.com/FranksOps/curator/internal/pipeline"
	"github.com/FranksOps/curator/internal/rank"
	"github.com/FranksOps/curator/internal/youtube"
)

// App holds the wired components. Close releases the cache backing.
type App struct {
	Config   *config.Config
	Cache    *cache.Store
	YouTube  *youtube.Client
	Prober   *embed.Prober
	Ranker   rank.Ranker
	Pipeline *pipeline.Pipeline

	logger *zap.Logger
}

// New builds every stage from cfg. The cache never makes New fail: an
// unreachable backing is replaced by a no-op one and logged.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store := OpenCache(ctx, cfg.Cache, logger)

	yt, err := youtube.NewClient(ctx, youtube.Config{
		APIKey:            cfg.YouTube.APIKey,
		Endpoint:          cfg.YouTube.Endpoint,
		Timeout:           cfg.YouTube.Timeout,
		RegionCode:        cfg.YouTube.RegionCode,
		RelevanceLanguage: cfg.YouTube.RelevanceLanguage,
		MaxResults:        cfg.YouTube.MaxResults,
		SafeSearch:        cfg.YouTube.SafeSearch,
		DailyQuota:        cfg.YouTube.DailyQuota,
		QuotaThreshold:    cfg.YouTube.QuotaThreshold,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	if !yt.Configured() {
		logger.Warn("no YouTube API key configured, every lookup will return the fallback")
	}

	profile, err := fingerprint.ParseProfile(cfg.Embed.Fingerprint)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	prober, err := embed.New(embed.Config{
		BaseURL:     cfg.Embed.BaseURL,
		Timeout:     cfg.Embed.Timeout,
		CacheTTL:    cfg.Embed.CacheTTL,
		RPS:         cfg.Embed.RPS,
		Burst:       cfg.Embed.Burst,
		Jitter:      cfg.Embed.Jitter,
		Concurrency: cfg.Embed.Concurrency,
		Fingerprint: profile,
		UserAgents:  cfg.Embed.UserAgents,
		Proxies:     cfg.Embed.Proxies,
	}, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	ranker := rank.Ranker{
		ViewsWeight: cfg.Ranking.ViewsWeight,
		LikesWeight: cfg.Ranking.LikesWeight,
		Limit:       cfg.Ranking.Limit,
	}

	p := pipeline.New(yt, yt, prober, ranker,
		pipeline.WithConfig(pipeline.Config{
			MaxProbe:    cfg.Pipeline.MaxProbe,
			Concurrency: cfg.Embed.Concurrency,
			ResultTTL:   cfg.Pipeline.ResultTTL,
		}),
		pipeline.WithResultCache(store),
		pipeline.WithLogger(logger),
	)

	return &App{
		Config:   cfg,
		Cache:    store,
		YouTube:  yt,
		Prober:   prober,
		Ranker:   ranker,
		Pipeline: p,
		logger:   logger,
	}, nil
}

// Close releases the cache backing.
func (a *App) Close() error {
	if a == nil || a.Cache == nil {
		return nil
	}
	return a.Cache.Close()
}

// OpenCache opens the configured backing. Durable backings are fronted by an
// in-process tier, which is swept for expired entries every SweepInterval. A
// backing that cannot be opened degrades to no caching.
func OpenCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) *cache.Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []cache.Option{cache.WithLogger(logger), cache.WithName(cfg.Backend)}

	l1 := cache.NewMemory()
	l1.StartJanitor(cfg.SweepInterval)

	var (
		l2  cache.Backend
		err error
	)
	switch cfg.Backend {
	case config.BackendRedis:
		l2, err = redisbackend.New(ctx, redisbackend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case config.BackendSQLite:
		l2, err = sqlite.New(cfg.SQLite.Path)
	case config.BackendPostgres:
		l2, err = postgres.New(ctx, cfg.Postgres.DSN)
	default:
		return cache.New(l1, opts...)
	}

	if err != nil {
		_ = l1.Close()
		logger.Warn("cache backing unavailable, continuing without cache",
			zap.String("backend", cfg.Backend), zap.Error(err))
		return cache.New(cache.Noop{}, cache.WithLogger(logger), cache.WithName("noop"))
	}
	logger.Info("cache backing opened", zap.String("backend", cfg.Backend))
	return cache.New(&cache.Tiered{L1: l1, L2: l2}, opts...)
}
