// Package main is the entry point for the progress engine API server.
//
// The server owns the whole pipeline: the HTTP API accepts activity facts
// and parent decisions, the command layer appends to the ledger, the event
// dispatcher fans each fact out to the derived-state refreshers (streaks,
// goals, achievements, caches), and the scheduler runs the sweeps that no
// event can trigger (midnight streak breaks, cache reseeds, balance audits).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deen-kids/deen-progress-engine/config"
	"github.com/deen-kids/deen-progress-engine/internal/application/command"
	"github.com/deen-kids/deen-progress-engine/internal/application/eventhandler"
	"github.com/deen-kids/deen-progress-engine/internal/application/query"
	"github.com/deen-kids/deen-progress-engine/internal/application/saga"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/messaging"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/redis"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/scheduler"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/deen-kids/deen-progress-engine/internal/interface/http"
	"github.com/deen-kids/deen-progress-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupSlog(cfg)
	appLog := setupAppLogger(cfg)

	log.Info("starting deen progress engine",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional: the engine degrades to database-only reads)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		snapshotCache    *redis.SnapshotCache
		leaderboardCache *redis.LeaderboardCache
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			snapshotCache = redis.NewSnapshotCache(redisCache, cfg.Engine.SnapshotCacheTTL)
			leaderboardCache = redis.NewLeaderboardCache(redisCache, cfg.Engine.LeaderboardCacheTTL)
			log.Info("Redis connection established")
		}
	} else {
		log.Info("Redis disabled, serving reads from the database only")
	}

	// Interface-typed views of the caches; stay nil when Redis is absent so
	// consumers see a true nil, not a typed one.
	var (
		snapshotStore    query.SnapshotStore
		leaderboardStore query.LeaderboardStore
		invalidator      eventhandler.SnapshotInvalidator
		scorer           eventhandler.LeaderboardScorer
	)
	if snapshotCache != nil {
		snapshotStore = snapshotCache
		invalidator = snapshotCache
	}
	if leaderboardCache != nil {
		leaderboardStore = leaderboardCache
		scorer = leaderboardCache
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	familyRepo := postgres.NewFamilyRepository(dbConn)
	childRepo := postgres.NewChildRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	goalRepo := postgres.NewGoalRepository(dbConn)
	achievementRepo := postgres.NewAchievementRepository(dbConn)
	rewardRepo := postgres.NewRewardRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS & DISPATCHER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event pipeline...")
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.AsyncMode = true
	busCfg.WorkerPoolSize = cfg.Engine.EventWorkers
	eventBus := messaging.NewInMemoryEventBus(busCfg)

	dispatcherCfg := messaging.DefaultDispatcherConfig(eventBus)
	dispatcherCfg.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherCfg)
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	dispatcher.Use(messaging.LoggingMiddleware(log))
	dispatcher.Use(messaging.MetricsMiddleware(dispatcher.Metrics()))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	achievementFlow := saga.NewAchievementFlow(
		childRepo, ledgerRepo, goalRepo, achievementRepo, eventBus, log)

	activityHandler := eventhandler.NewActivityRecordedHandler(
		childRepo, ledgerRepo, goalRepo, achievementFlow, eventBus, log)
	goalCompletedHandler := eventhandler.NewGoalCompletedHandler(achievementFlow, log)
	balanceHandler := eventhandler.NewBalanceChangedHandler(
		childRepo, invalidator, scorer, log)

	if err := dispatcher.Register(shared.EventActivityRecorded, "refresh_derived_state", activityHandler.Handle); err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}
	if err := dispatcher.Register(shared.EventGoalCompleted, "reevaluate_achievements", goalCompletedHandler.Handle); err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}
	for _, eventType := range []shared.EventType{
		shared.EventPointsCredited,
		shared.EventClaimDecided,
		shared.EventStreakUpdated,
		shared.EventBalanceDriftDetected,
	} {
		if err := dispatcher.Register(eventType, "refresh_caches", balanceHandler.Handle); err != nil {
			return fmt.Errorf("failed to register event handler: %w", err)
		}
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping event dispatcher...")
		_ = dispatcher.Stop()
		_ = eventBus.Close()
	}()

	// Commands
	registerFamily := command.NewRegisterFamilyHandler(familyRepo)
	registerChild := command.NewRegisterChildHandler(familyRepo, childRepo)
	recordActivity := command.NewRecordActivityHandler(
		childRepo, ledgerRepo, eventBus, cfg.Engine.MaxClockSkew)
	createGoal := command.NewCreateGoalHandler(childRepo, goalRepo)
	setGoalProgress := command.NewSetGoalProgressHandler(goalRepo, eventBus)
	createReward := command.NewCreateRewardHandler(familyRepo, rewardRepo)
	claimReward := command.NewClaimRewardHandler(childRepo, rewardRepo)
	decideClaim := command.NewDecideClaimHandler(rewardRepo, eventBus)
	acknowledgeAchievement := command.NewAcknowledgeAchievementHandler(achievementRepo)
	reconcileBalance := command.NewReconcileBalanceHandler(
		childRepo, ledgerRepo, goalRepo, rewardRepo, eventBus)

	// Queries
	getSnapshot := query.NewGetProgressSnapshotHandler(
		childRepo, ledgerRepo, goalRepo, achievementRepo, rewardRepo, snapshotStore, log)
	getLeaderboard := query.NewGetLeaderboardHandler(childRepo, leaderboardStore, log)
	getDailyProgress := query.NewGetDailyProgressHandler(childRepo, ledgerRepo)
	getRewardCatalog := query.NewGetRewardCatalogHandler(rewardRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	sched := scheduler.NewScheduler(schedCfg)

	streakJob := jobs.NewRecomputeStreaksJob(
		childRepo, ledgerRepo, eventBus, log, jobs.DefaultRecomputeStreaksConfig())
	// Runs hourly so every timezone gets a recompute shortly after its own
	// midnight, not just the server's.
	if err := sched.Register(streakJob, scheduler.MustParseCronExpression("5 * * * *")); err != nil {
		return fmt.Errorf("failed to register streak job: %w", err)
	}

	reconcileJob := jobs.NewReconcileBalancesJob(
		childRepo, reconcileBalance, log, jobs.DefaultReconcileBalancesConfig())
	if err := sched.Register(reconcileJob, scheduler.MustParseCronExpression("30 3 * * *")); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	if leaderboardCache != nil {
		leaderboardJob := jobs.NewRebuildLeaderboardJob(
			childRepo, leaderboardCache, log, jobs.DefaultRebuildLeaderboardConfig())
		if err := sched.Register(leaderboardJob, scheduler.NewIntervalSchedule(1*time.Hour)); err != nil {
			return fmt.Errorf("failed to register leaderboard job: %w", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		log.Info("stopping scheduler...")
		_ = sched.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.Config{
		Host:               cfg.HTTP.Host,
		Port:               cfg.HTTP.Port,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
	}

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		RegisterFamily:         registerFamily,
		RegisterChild:          registerChild,
		RecordActivity:         recordActivity,
		CreateGoal:             createGoal,
		SetGoalProgress:        setGoalProgress,
		CreateReward:           createReward,
		ClaimReward:            claimReward,
		DecideClaim:            decideClaim,
		AcknowledgeAchievement: acknowledgeAchievement,
		ReconcileBalance:       reconcileBalance,

		GetProgressSnapshot: getSnapshot,
		GetLeaderboard:      getLeaderboard,
		GetDailyProgress:    getDailyProgress,
		GetRewardCatalog:    getRewardCatalog,

		FamilyRepo: familyRepo,
		ChildRepo:  childRepo,
		GoalRepo:   goalRepo,
		RewardRepo: rewardRepo,

		Logger:        appLog,
		HealthChecker: &dbHealthChecker{conn: dbConn},
	})

	errCh := server.StartAsync()
	log.Info("HTTP server listening", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// dbHealthChecker adapts the postgres connection health probe to the HTTP
// server's readiness contract.
type dbHealthChecker struct {
	conn *postgres.Connection
}

func (h *dbHealthChecker) Check(ctx context.Context) httpapi.HealthStatus {
	status, err := h.conn.Health(ctx)
	if err != nil {
		return httpapi.HealthStatus{Healthy: false, Ready: false, Message: err.Error()}
	}
	if !status.Healthy {
		return httpapi.HealthStatus{Healthy: false, Ready: false, Message: status.Error}
	}
	return httpapi.HealthStatus{Healthy: true, Ready: true}
}

// setupSlog configures the structured logger the infrastructure layers use.
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// setupAppLogger configures the field-based logger the HTTP layer uses.
func setupAppLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	switch cfg.Observability.LogLevel {
	case "debug":
		opts.Level = logger.LevelDebug
	case "warn":
		opts.Level = logger.LevelWarn
	case "error":
		opts.Level = logger.LevelError
	}
	return logger.New(opts)
}
