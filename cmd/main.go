package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	chclient "beehive/internal/adapters/clickhouse"
	"beehive/internal/adapters/config"
	"beehive/internal/adapters/errors/noop"
	"beehive/internal/adapters/errors/sentry"
	"beehive/internal/adapters/kafka"
	pgclient "beehive/internal/adapters/postgres"
	redisclient "beehive/internal/adapters/redis"
	"beehive/internal/consumers"
	"beehive/internal/domain/reward"
	"beehive/internal/events"
	"beehive/internal/metrics"
	chrepo "beehive/internal/repository/clickhouse"
	pgrepo "beehive/internal/repository/postgres"
	distributionsvc "beehive/internal/services/distribution"
	rewardsvc "beehive/internal/services/reward"
	rollupsvc "beehive/internal/services/rollup"
	"beehive/internal/workers"
	"beehive/pkg/errors"
	"beehive/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// PostgreSQL is the authoritative store; everything else degrades
	pg, err := pgclient.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pg.Close()

	if err := pg.MigrateUp(pgrepo.Migrations); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	redis := initRedis(cfg, log)
	if redis != nil {
		defer redis.Close()
	}

	producer := initKafka(cfg, log)
	if producer != nil {
		defer producer.Close()
	}

	auditSink, stopAudit := initAuditSink(cfg, log)
	defer stopAudit()

	// Repositories
	db := pg.DB()
	rewardRepo := pgrepo.NewRewardRepository(db)
	traceRepo := pgrepo.NewRollupTraceRepository(db)
	balanceRepo := pgrepo.NewBalanceRepository(db)
	memberRepo := pgrepo.NewMemberRepository(db)
	matrixRepo := pgrepo.NewMatrixRepository(db)
	timerRepo := pgrepo.NewTimerRepository(db)
	levelRepo := pgrepo.NewLevelConfigRepository(db)

	// Services
	publisher := events.NewPublisher(producer, log)
	clock := clockwork.NewRealClock()

	distribution := distributionsvc.NewService(
		levelRepo, memberRepo, matrixRepo, rewardRepo,
		auditSink, publisher, clock, cfg.Rewards, log,
	)

	claims := rewardsvc.NewService(
		rewardsvc.NewDBAdapter(db), rewardRepo, balanceRepo, redis,
		auditSink, publisher, clock, cfg.Rewards, log,
	)

	rollups := rollupsvc.NewService(
		rollupsvc.NewDBAdapter(db),
		rewardRepo, traceRepo, memberRepo, matrixRepo, timerRepo,
		redis, auditSink, publisher, clock, cfg.Rewards, log,
	)

	// Background workers
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewTimeoutWorker(
		rollups,
		cfg.Workers.TimeoutSweepInterval,
		cfg.Workers.TimeoutSweepEnabled,
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	startConsumers(ctx, cfg, distribution, rollups, claims, log)

	if cfg.Metrics.Enabled {
		srv := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Infow("Metrics server started", "port", cfg.Metrics.Port)
	}

	log.Info("System initialized successfully")

	waitForShutdown(ctx, cancel, scheduler, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initRedis connects to Redis when enabled, nil otherwise. Without Redis
// sweep runs are not serialized and summaries are never cached.
func initRedis(cfg *config.Config, log *logger.Logger) *redisclient.Client {
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled")
		return nil
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		log.Warnf("Failed to connect to Redis, continuing without it: %v", err)
		return nil
	}
	return client
}

// initKafka creates the event producer when enabled, nil otherwise
func initKafka(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("Kafka disabled, lifecycle events will not be published")
		return nil
	}
	return kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
}

// startConsumers launches the Kafka input boundary: upgrade events feed the
// distribution engine, claim commands feed the claim path. Without Kafka the
// engine is driven only by its background sweeps.
func startConsumers(ctx context.Context, cfg *config.Config, distribution *distributionsvc.Service, rollups *rollupsvc.Service, claims *rewardsvc.Service, log *logger.Logger) {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		return
	}

	upgrades := consumers.NewUpgradeConsumer(
		kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topic:   kafka.TopicMemberUpgraded,
		}),
		distribution,
		rollups,
	)
	go func() {
		if err := upgrades.Start(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("Upgrade consumer stopped: %v", err)
		}
	}()

	claimCmds := consumers.NewClaimConsumer(
		kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topic:   kafka.TopicClaimRequested,
		}),
		claims,
	)
	go func() {
		if err := claimCmds.Start(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("Claim consumer stopped: %v", err)
		}
	}()
}

// initAuditSink wires the ClickHouse audit stream, or a no-op sink. The
// returned stop function flushes buffered events on shutdown.
func initAuditSink(cfg *config.Config, log *logger.Logger) (reward.AuditSink, func()) {
	nopStop := func() {}

	if !cfg.ClickHouse.Enabled {
		log.Info("ClickHouse disabled, audit events will not be recorded")
		return chrepo.NoopSink{}, nopStop
	}

	client, err := chclient.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Warnf("Failed to connect to ClickHouse, audit disabled: %v", err)
		return chrepo.NoopSink{}, nopStop
	}

	store := chrepo.NewRewardEventStore(client)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		log.Warnf("Failed to migrate ClickHouse schema, audit disabled: %v", err)
		return chrepo.NoopSink{}, nopStop
	}

	store.Start(context.Background())

	return store, func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := store.Stop(stopCtx); err != nil {
			log.Warnf("Failed to stop audit stream: %v", err)
		}
		_ = client.Close()
	}
}

// waitForShutdown waits for a shutdown signal and stops everything
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, scheduler *workers.Scheduler, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}
	cancel()

	if errorTracker != nil {
		if err := errorTracker.Flush(ctx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
