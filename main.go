package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ms-clinic-queue/internal/analytics"
	analytics_api "ms-clinic-queue/internal/analytics/api"
	"ms-clinic-queue/internal/announce"
	"ms-clinic-queue/internal/auth"
	"ms-clinic-queue/internal/clock"
	"ms-clinic-queue/internal/config"
	"ms-clinic-queue/internal/database"
	"ms-clinic-queue/internal/events"
	"ms-clinic-queue/internal/identity"
	"ms-clinic-queue/internal/kafka"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/queue/db"
	"ms-clinic-queue/internal/queue/queue_api"
	"ms-clinic-queue/internal/queue/service"
	"ms-clinic-queue/internal/queue/slip"
	"ms-clinic-queue/internal/rollover"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Clinic Queue Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("APP", fmt.Sprintf("Service stopped with error: %v", err))
	}
	logger.Info("APP", "✅ Clinic Queue Service shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	businessDay, err := clock.InZone(cfg.Queue.Zone)
	if err != nil {
		log.Warn("CONFIG", fmt.Sprintf("%v; falling back to %s", err, clock.DefaultZone))
		businessDay = clock.Kolkata()
	}

	log.Info("APP", "Verifying database connections")
	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()
	if err := database.Prepare(ctx, bunDB, cfg.Database, log); err != nil {
		return fmt.Errorf("prepare schema: %w", err)
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.Redis.Addr, log)
	if err != nil {
		if cfg.Events.Bus == "redis" || cfg.Events.Bus == "" {
			return err
		}
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable, profile cache disabled: %v", err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus, err := events.Open(cfg.Events, cfg.Kafka, redisClient, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	store := db.New(bunDB, cfg.Queue.DefaultCapacity)
	store.BusinessDay = businessDay
	hub := events.NewHub(bus, store, log, events.Options{Buffer: cfg.Queue.SubscriberBuffer})

	profiles := identity.NewService(&identity.DB{Bun: bunDB}, profileCache(redisClient, cfg.Redis), log)

	announcer, closeAnnouncer := newAnnouncer(cfg, log)
	defer closeAnnouncer()

	queue := service.NewQueueService(store, profiles, hub, hub, announcer, log, service.Options{
		MaxRetries:  cfg.Queue.MaxCASRetries,
		BusinessDay: businessDay,
	})

	ctrl := rollover.NewController(store, hub, log, rollover.Options{
		RetentionDays: cfg.Rollover.RetentionDays,
		MetaPolicy:    db.MetaPolicy(cfg.Rollover.MetaPolicy),
		BusinessDay:   businessDay,
	})

	slips, err := slip.NewGenerator(cfg.Slip.Secret, cfg.Slip.Size)
	if err != nil {
		return fmt.Errorf("slip generator: %w", err)
	}
	if cfg.Slip.Secret == "change-me" {
		log.LogSecurity("SLIP_SECRET", "using the default slip secret; set SLIP_SECRET in production")
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth, log)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	log.Info("HTTP", "Setting up router and middleware")
	handler := queue_api.NewHandler(queue, profiles, ctrl, slips, log)
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB), queue.Today), log)
	router := queue_api.NewRouter(handler,
		auth.Middleware(verifier, log),
		auth.RequireStaff(profiles, log),
		log,
		analyticsHandler,
	)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	if cfg.Rollover.Enabled {
		sched, err := rollover.NewScheduler(gctx, ctrl, cfg.Rollover.CheckInterval, log)
		if err != nil {
			return fmt.Errorf("rollover scheduler: %w", err)
		}
		sched.Start()
		g.Go(func() error {
			<-gctx.Done()
			return sched.Shutdown()
		})
	} else {
		log.Info("ROLLOVER", "Automatic rollover disabled (ROLLOVER_ENABLED=false)")
	}

	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("🚀 Clinic Queue Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
			return err
		}
		return nil
	})

	return g.Wait()
}

func profileCache(client *redis.Client, cfg config.RedisConfig) *identity.RedisCache {
	if client == nil {
		return nil
	}
	return identity.NewRedisCache(client, cfg.ProfileCacheTTL)
}

// newAnnouncer always logs; ANNOUNCER=kafka also publishes to the
// announcements topic for the display screens.
func newAnnouncer(cfg *config.Config, log *logger.Logger) (announce.Sink, func()) {
	logSink := announce.LogSink{Logger: log}
	if cfg.Events.Announcer != "kafka" {
		return logSink, func() {}
	}

	topic := cfg.Kafka.Topics.Announcements
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{topic}, 1, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	kafkaSink := announce.NewKafkaSink(cfg.Kafka.Brokers, topic, log)
	return announce.Multi{logSink, kafkaSink}, func() {
		if err := kafkaSink.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close announcement writer: %v", err))
		}
	}
}
