package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/mohammad-safakhou/wsorch/config"
	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/agent/google"
	"github.com/mohammad-safakhou/wsorch/internal/embedding"
	"github.com/mohammad-safakhou/wsorch/internal/executor"
	"github.com/mohammad-safakhou/wsorch/internal/intent"
	"github.com/mohammad-safakhou/wsorch/internal/jobs"
	"github.com/mohammad-safakhou/wsorch/internal/logging"
	"github.com/mohammad-safakhou/wsorch/internal/metrics"
	"github.com/mohammad-safakhou/wsorch/internal/orchestrator"
	"github.com/mohammad-safakhou/wsorch/internal/plan"
	"github.com/mohammad-safakhou/wsorch/internal/records"
	"github.com/mohammad-safakhou/wsorch/internal/records/memory"
	"github.com/mohammad-safakhou/wsorch/internal/retrieval"
	"github.com/mohammad-safakhou/wsorch/internal/store"
	"github.com/mohammad-safakhou/wsorch/internal/synth"
)

// app is the dependency graph shared by every command.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	metrics  *metrics.Collectors
	records  records.Store
	pg       *store.Store
	rdb      *redis.Client
	embedder embedding.Provider
	jobs     jobs.Repository
	orch     *orchestrator.Service

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg, logger: logging.New(cfg.General.LogLevel, os.Stderr)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.metrics, err = metrics.New()
	if err != nil {
		return nil, err
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		if cfg.Embedding.Dimensions != store.EmbeddingDimensions {
			return nil, fmt.Errorf("embedding.dimensions must be %d with the postgres backend", store.EmbeddingDimensions)
		}
		pctx, cancel := context.WithTimeout(ctx, cfg.Storage.Postgres.Timeout)
		a.pg, err = store.NewWithDSN(pctx, cfg.Storage.Postgres.DSN())
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, a.pg.Close)
		a.records = a.pg
	default:
		mem, err := memory.New()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mem.Close)
		a.records = mem
	}

	if cfg.Queue.Enabled || cfg.Embedding.RedisCache {
		r := cfg.Storage.Redis
		a.rdb, err = store.ConnectRedis(ctx, r.Addr(), r.Password, r.DB, r.Timeout)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.rdb.Close)
	}

	cacheOpts := []embedding.CacheOption{
		embedding.WithHooks(a.metrics.CacheHooks()),
		embedding.WithCacheLogger(logging.Component(a.logger, "embedding")),
	}
	if cfg.Embedding.RedisCache {
		cacheOpts = append(cacheOpts, embedding.WithRedis(a.rdb, cfg.Embedding.KeyPrefix))
	}
	a.embedder = embedding.NewCachedProvider(
		embedding.NewHashProvider(cfg.Embedding.Dimensions),
		cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL, cacheOpts...)

	if cfg.Queue.Enabled {
		a.jobs = jobs.NewRedisRepository(a.rdb, cfg.Queue.ResultTTL)
	} else {
		a.jobs = jobs.NewMemoryRepository(0, cfg.Queue.ResultTTL)
	}

	search := retrieval.New(a.records, a.embedder, retrieval.WithObserver(a.metrics.ObserveRetrieval))
	limit := cfg.Retrieval.FallbackLimit
	dispatcher, err := agent.NewDispatcher(
		google.NewGmail(search, limit),
		google.NewCalendar(search, limit),
		google.NewDrive(search),
	)
	if err != nil {
		return nil, err
	}

	engineOpts := []executor.Option{
		executor.WithStepTimeout(cfg.General.StepTimeout),
		executor.WithMetrics(a.metrics.Engine()),
		executor.WithLogger(logging.Component(a.logger, "engine")),
		executor.WithTracer(otel.Tracer("wsorch/executor")),
	}
	orchOpts := []orchestrator.Option{
		orchestrator.WithDefaultUser(cfg.General.DefaultUserID),
		orchestrator.WithRunTimeout(cfg.General.RunTimeout),
		orchestrator.WithLogger(logging.Component(a.logger, "orchestrator")),
	}
	if a.pg != nil {
		engineOpts = append(engineOpts, executor.WithCheckpointManager(executor.NewStoreCheckpointManager(a.pg)))
		orchOpts = append(orchOpts, orchestrator.WithHistory(a.pg))
	}

	a.orch = orchestrator.New(
		intent.NewRuleClassifier(),
		plan.NewPlanner(),
		executor.New(engineOpts...),
		dispatcher,
		synth.NewTemplate(),
		orchOpts...,
	)
	return a, nil
}

func (a *app) log(component string) *logrus.Entry {
	return logging.Component(a.logger, component)
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.WithError(err).Warn("close")
		}
	}
	a.closers = nil
}
