// Command lifescope runs the behavioural insight pipeline: event intake,
// nightly aggregation, badge awarding and narrative reports over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aimd54/lifescope-insights/internal/api"
	"github.com/aimd54/lifescope-insights/internal/api/insights"
	"github.com/aimd54/lifescope-insights/internal/cache"
	"github.com/aimd54/lifescope-insights/internal/config"
	"github.com/aimd54/lifescope-insights/internal/events"
	"github.com/aimd54/lifescope-insights/internal/llm"
	"github.com/aimd54/lifescope-insights/internal/repository"
	"github.com/aimd54/lifescope-insights/internal/service/aggregator"
	"github.com/aimd54/lifescope-insights/internal/service/badges"
	"github.com/aimd54/lifescope-insights/internal/service/ingest"
	"github.com/aimd54/lifescope-insights/internal/service/report"
	"github.com/aimd54/lifescope-insights/internal/service/scheduler"
	"github.com/aimd54/lifescope-insights/internal/service/stats"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	badgesPath := flag.String("badges", "", "optional YAML badge catalog, replaces the badges section of the config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *badgesPath, log); err != nil {
		log.Fatal().Err(err).Msg("Service terminated with error")
	}
	log.Info().Msg("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, badgesPath string, log *logger.Logger) error {
	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if cfg.Database.Postgres.AutoMigrate {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info().Msg("Database migrations applied")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Database.Redis.Addr(),
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
		PoolSize: cfg.Database.Redis.PoolSize,
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The cache is optional; the pipeline keeps working on the store alone.
		log.Warn().Err(err).Str("addr", cfg.Database.Redis.Addr()).Msg("Redis unreachable at startup")
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	metricsRepo := repository.NewMetricsRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	reportRepo := repository.NewReportRepository(db)

	catalog := cfg.Badges
	if badgesPath != "" {
		catalog, err = repository.LoadBadgeCatalog(badgesPath)
		if err != nil {
			return err
		}
	}
	if err := repository.SeedBadges(ctx, badgeRepo, catalog); err != nil {
		return err
	}
	log.Info().Int("badges", len(catalog)).Msg("Badge catalog seeded")

	layer := cache.NewLayer(
		cache.NewRedisStore(redisClient, cfg.Cache.OperationTimeout),
		cache.TTLs{
			Ledger:  cfg.Cache.LedgerTTL,
			Metrics: cfg.Cache.MetricsTTL,
			Report:  cfg.Cache.ReportTTL,
		},
		log.Component("cache"),
	)

	ingestLoc, err := cfg.Ingest.GetLocation()
	if err != nil {
		return err
	}
	clock := quartz.NewReal()

	// Services
	accumulator := ingest.NewAccumulator(ledgerRepo, layer, clock, ingestLoc, log.Component("ingest"))
	aggregatorService := aggregator.NewService(ledgerRepo, metricsRepo, layer, log.Component("aggregator"))
	badgeService := badges.NewService(badgeRepo, aggregatorService, nil, clock, log.Component("badges"))
	statsService := stats.NewService(metricsRepo, ledgerRepo, log.Component("stats"))

	generator, err := llm.New(cfg.LLM, log.Component("llm"))
	if err != nil {
		return err
	}
	reportService := report.NewService(report.Deps{
		Users:     userRepo,
		Metrics:   aggregatorService,
		Reports:   reportRepo,
		Badges:    badgeRepo,
		Weekly:    statsService,
		Generator: generator,
		Cache:     layer,
	}, report.Config{
		MaxTokens:         cfg.LLM.MaxTokens,
		GenerationTimeout: cfg.Report.GenerationTimeout,
		DefaultStyle:      cfg.Report.DefaultStyle,
	}, log.Component("report"))

	schedulerService := scheduler.NewService(cfg.Scheduler, cfg.Cache.EvictionAge, scheduler.Deps{
		Users:      ledgerRepo,
		Aggregator: aggregatorService,
		Badges:     badgeService,
		Cache:      layer,
	}, clock, log.Component("scheduler"))
	if err := schedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer schedulerService.Stop()

	// HTTP
	metricsPath := ""
	if cfg.Metrics.Prometheus.Enabled {
		metricsPath = cfg.Metrics.Prometheus.Path
	}
	handler := insights.NewHandler(insights.Services{
		Ingest:  accumulator,
		Metrics: aggregatorService,
		Badges:  badgeService,
		Reports: reportService,
		Stats:   statsService,
		Cache:   layer,
	}, log.Component("api"))
	router := api.NewRouter(handler, api.Options{
		Environment: cfg.Server.Environment,
		MetricsPath: metricsPath,
		Checks: []api.HealthCheck{
			{Name: "postgres", Check: db.Health},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
	}, log.Component("http"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Events.Enabled {
		worker := ingest.NewWorker(accumulator, cfg.Ingest.QueueSize, cfg.Ingest.Workers, log.Component("ingest-worker"))

		// The worker drains its queue after Close, so it gets a context that
		// outlives the stream consumer.
		workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
		defer cancelWorker()

		g.Go(func() error {
			return worker.Run(workerCtx)
		})

		source := events.NewStreamSource(redisClient, worker, cfg.Events, log.Component("events"))
		g.Go(func() error {
			defer worker.Close()
			return source.Run(gctx)
		})
	}

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("llm_provider", cfg.LLM.Provider).
		Bool("events", cfg.Events.Enabled).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Msg("LifeScope insights started")

	return g.Wait()
}
