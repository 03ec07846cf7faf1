// Package main is the entry point for the guild bot.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"guild-bot/internal/api"
	"guild-bot/internal/bot"
	"guild-bot/internal/config"
	"guild-bot/internal/handler"
	"guild-bot/internal/metrics"
	"guild-bot/internal/pkg/db"
	"guild-bot/internal/pkg/lock"
	"guild-bot/internal/pkg/logging"
	"guild-bot/internal/regen"
	"guild-bot/internal/repository"
	"guild-bot/internal/scheduler"
	"guild-bot/internal/service"
	"guild-bot/internal/storage/redisstore"
	"guild-bot/internal/workout"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Guild bot exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Guild bot stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsManager := metrics.NewManager("guild", "bot", promRegistry)

	clock := clockwork.NewRealClock()

	userRepo := repository.NewUserRepository(dbPool.Pool)
	dailyRepo := repository.NewDailyProgressRepository(dbPool.Pool)
	workoutRepo := repository.NewWorkoutRepository(dbPool.Pool)

	health := map[string]api.HealthChecker{"postgres": dbPool.HealthCheck}

	var (
		hpStore    regen.Store           = regen.NewMemoryStore()
		timerStore workout.SnapshotStore = workout.NewMemoryStore()
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		store := redisstore.New(redisClient, cfg.Redis.StateTTL)
		if err := store.Ping(ctx); err != nil {
			return err
		}
		hpStore, timerStore = store, store
		health["redis"] = store.Ping
		log.Info().Str("addr", cfg.Redis.Addr).Msg("HP and timer state kept in Redis")
	} else {
		log.Warn().Msg("No Redis configured, HP and timer state kept in memory")
	}

	userLock := lock.NewUserLock()
	calendar := service.NewCalendar(clock, cfg.Daily.FallbackTimezone)
	timezones := service.NewTimezoneResolver(userRepo, cfg.Daily.TimezoneCacheMB, cfg.Daily.TimezoneCacheTTL)

	progressService := service.NewProgressService(
		userRepo, workoutRepo, calendar, timezones, userLock, metricsManager,
		cfg.Progression.TimedXPPerMinute,
	)
	dailyService := service.NewDailyService(
		userRepo, dailyRepo, workoutRepo, calendar, userLock, metricsManager,
		service.DailyConfig{
			QuestBonusXP:       cfg.Daily.QuestBonusXP,
			MaxStreakFreezes:   cfg.Daily.MaxStreakFreezes,
			StreakQuestMinimum: cfg.Daily.StreakQuestMinimum,
		},
	)

	regenRegistry := regen.NewRegistry(clock, hpStore, regen.Options{
		Interval:      cfg.Regen.Interval,
		RatePerMinute: cfg.Regen.RatePerMinute,
		DefaultMaxHP:  cfg.Regen.DefaultMaxHP,
		IsExempt:      regen.ExemptRoutes(cfg.Regen.ExemptRoutes...),
		IdleTimeout:   cfg.Regen.IdleTimeout,
	}, metricsManager)
	defer regenRegistry.StopAll()

	tracker := workout.NewTracker(clock, timerStore, workout.Options{
		XPPerEstimatedMinute: cfg.Progression.TimedXPPerMinute,
		MinRatio:             cfg.Timer.MinRatio,
		MaxRatio:             cfg.Timer.MaxRatio,
	}, func(userID int64, elapsed time.Duration) {
		log.Trace().Int64("user_id", userID).Dur("elapsed", elapsed).Msg("Workout timer tick")
	})
	defer tracker.Close()

	if cfg.Scheduler.Enabled {
		resetter := service.NewBatchResetter(userRepo, dailyService, metricsManager, cfg.Scheduler.BatchSize)
		sched, err := scheduler.New(clock, resetter, cfg.Scheduler.Interval)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				log.Warn().Err(err).Msg("Scheduler shutdown failed")
			}
		}()
	}

	router := api.NewRouter(api.Deps{
		Progress:  progressService,
		Daily:     dailyService,
		Timezones: timezones,
		Regen:     regenRegistry,
		Timers:    tracker,
		Metrics:   metricsManager,
		Gatherer:  promRegistry,
		Health:    health,
	})
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	guild := handler.NewGuildHandler(progressService, dailyService, timezones, tracker, regenRegistry)
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:    cfg,
		Guild:     guild,
		Daily:     dailyService,
		Timezones: timezones,
		Metrics:   metricsManager,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		telegramBot.Start()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		telegramBot.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
