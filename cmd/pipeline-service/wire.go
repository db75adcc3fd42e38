package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"golang-market-insight/internal/analytics"
	"golang-market-insight/internal/executor/config"
	"golang-market-insight/internal/executor/repository"
	"golang-market-insight/internal/executor/repository/memory"
	"golang-market-insight/internal/executor/service"
	"golang-market-insight/internal/executor/worker"
	"golang-market-insight/pkg/clickhouse"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/metrics"
	"golang-market-insight/pkg/postgres"
	"golang-market-insight/pkg/redis"
	"golang-market-insight/pkg/telegram"
)

// stores groups the repositories selected by store.driver.
type stores struct {
	marketData repository.MarketDataRepository
	jobRuns    repository.JobRunRepository
	analytics  repository.AnalyticsResultRepository
	insights   repository.InsightRepository
}

// app holds every long-lived component of the pipeline process.
type app struct {
	cfg          *config.Config
	logger       *logger.Logger
	recorder     *metrics.Recorder
	stores       stores
	pool         *worker.Pool
	orchestrator service.OrchestratorService
	reconciler   service.ReconcilerService

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", logger.ErrorField(err))
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (stores, []func() error, error) {
	if cfg.Store.Driver == common.StoreDriverMemory {
		log.Warn("Using in-memory store, data is lost on exit")
		return stores{
			marketData: memory.NewMarketDataRepository(),
			jobRuns:    memory.NewJobRunRepository(),
			analytics:  memory.NewAnalyticsResultRepository(),
			insights:   memory.NewInsightRepository(),
		}, nil, nil
	}

	db, err := postgres.NewDB(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		return stores{}, nil, fmt.Errorf("initialize database: %w", err)
	}
	closers := []func() error{db.Close}

	s := stores{
		marketData: repository.NewMarketDataRepository(db.DB),
		jobRuns:    repository.NewJobRunRepository(db.DB),
		analytics:  repository.NewAnalyticsResultRepository(db.DB),
		insights:   repository.NewInsightRepository(db.DB),
	}

	// Bars can live in ClickHouse; run state always stays in postgres for its row-level claims.
	if cfg.Store.Driver == common.StoreDriverClickHouse {
		ch, err := clickhouse.NewClient(clickhouse.Config{
			Host:        cfg.ClickHouse.Host,
			Port:        cfg.ClickHouse.Port,
			User:        cfg.ClickHouse.User,
			Password:    cfg.ClickHouse.Password,
			Database:    cfg.ClickHouse.Database,
			DialTimeout: cfg.ClickHouse.DialTimeout,
			ReadTimeout: cfg.ClickHouse.ReadTimeout,
		})
		if err != nil {
			return stores{}, closers, fmt.Errorf("initialize clickhouse: %w", err)
		}
		closers = append(closers, ch.Close)
		if err := ch.InitSchema(ctx, repository.ClickHouseSchema); err != nil {
			return stores{}, closers, err
		}
		s.marketData = repository.NewClickHouseMarketDataRepository(ch, log)
	}
	return s, closers, nil
}

func newSource(cfg *config.Config, log *logger.Logger) repository.MarketDataSource {
	if cfg.Source.Provider == common.SourceProviderYahoo {
		return repository.NewYahooFinanceRepository(cfg, log)
	}
	return repository.NewPolygonRepository(cfg, log)
}

// newPublisher falls back to a no-op publisher when redis is unreachable.
func newPublisher(cfg *config.Config, log *logger.Logger) (repository.EventPublisher, func() error) {
	if cfg.Redis.Host == "" {
		return repository.NewNoopEventPublisher(), nil
	}
	client, err := redis.NewClient(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		log.Warn("Redis unavailable, run events will not be published", logger.ErrorField(err))
		return repository.NewNoopEventPublisher(), nil
	}
	return repository.NewRedisEventPublisher(client.Client, cfg.Redis.StreamMaxLen), client.Close
}

func newNotifier(cfg *config.Config, log *logger.Logger) telegram.Notifier {
	if cfg.Telegram.BotToken == "" {
		return telegram.NewNoop()
	}
	notifier, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		log.Warn("Failed to initialize Telegram notifier", logger.ErrorField(err))
		return telegram.NewNoop()
	}
	return notifier
}

// newApp builds the pipeline. reg receives the prometheus collectors.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{cfg: cfg, logger: log, recorder: metrics.New(reg)}

	s, closers, err := openStores(ctx, cfg, log)
	a.closers = append(a.closers, closers...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.stores = s

	publisher, closePublisher := newPublisher(cfg, log)
	if closePublisher != nil {
		a.closers = append(a.closers, closePublisher)
	}

	ai, err := repository.NewAIRepository(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize insight provider: %w", err)
	}
	if ai == nil {
		log.Info("No insight provider configured, insights use the template")
	}

	a.pool = worker.NewPool(worker.Config{
		Workers:       cfg.Executor.Workers,
		QueueSize:     cfg.Executor.QueueSize,
		MaxRetries:    cfg.Executor.MaxRetries,
		BackoffBase:   cfg.Executor.BackoffBase,
		BackoffFactor: cfg.Executor.BackoffFactor,
		BackoffMax:    cfg.Executor.BackoffMax,
	}, log, a.recorder)

	a.orchestrator = service.NewOrchestratorService(service.Dependencies{
		Source:     newSource(cfg, log),
		MarketData: s.marketData,
		JobRuns:    s.jobRuns,
		Analytics:  s.analytics,
		Insights:   s.insights,
		Publisher:  publisher,
		Engine:     analytics.NewEngine(cfg.Analytics),
		Generator:  service.NewInsightGenerator(ai, cfg.AI, log, a.recorder),
		Pool:       a.pool,
		Notifier:   newNotifier(cfg, log),
		Recorder:   a.recorder,
		Logger:     log,
		Config:     cfg.Pipeline,
	})
	a.reconciler = service.NewReconcilerService(s.jobRuns, cfg.Pipeline, log)
	return a, nil
}
