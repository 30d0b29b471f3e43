// Command rollover-worker runs the daily rollover outside the API process.
// Running it next to API instances is safe: the rollover marker lets one
// claim per business day win.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"ms-clinic-queue/internal/clock"
	"ms-clinic-queue/internal/config"
	"ms-clinic-queue/internal/database"
	"ms-clinic-queue/internal/events"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/queue/db"
	"ms-clinic-queue/internal/rollover"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	once := flag.Bool("once", false, "run a single rollover check and exit")
	flag.Parse()

	log := logger.New(logger.Options{Service: "clinic-rollover", Dir: "logs"})
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *once); err != nil {
		log.Fatal("ROLLOVER", fmt.Sprintf("Rollover worker failed: %v", err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, once bool) error {
	businessDay, err := clock.InZone(cfg.Queue.Zone)
	if err != nil {
		log.Warn("CONFIG", fmt.Sprintf("%v; falling back to %s", err, clock.DefaultZone))
		businessDay = clock.Kolkata()
	}

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()
	if err := database.Prepare(ctx, bunDB, cfg.Database, log); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Events.Bus == "redis" || cfg.Events.Bus == "" {
		if redisClient, err = database.ConnectRedis(ctx, cfg.Redis.Addr, log); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	// The worker only publishes; API processes deliver to their streams.
	bus, err := events.Open(cfg.Events, cfg.Kafka, redisClient, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	store := db.New(bunDB, cfg.Queue.DefaultCapacity)
	store.BusinessDay = businessDay
	ctrl := rollover.NewController(store, bus, log, rollover.Options{
		RetentionDays: cfg.Rollover.RetentionDays,
		MetaPolicy:    db.MetaPolicy(cfg.Rollover.MetaPolicy),
		BusinessDay:   businessDay,
	})

	if once {
		result, err := ctrl.Tick(ctx)
		if err != nil {
			return err
		}
		log.Info("ROLLOVER", fmt.Sprintf("Single run for %s: claimed=%v purged=%d", result.Today, result.Claimed, result.TicketsPurged))
		return nil
	}

	sched, err := rollover.NewScheduler(ctx, ctrl, cfg.Rollover.CheckInterval, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start()
		log.Info("ROLLOVER", "Rollover worker started, waiting for shutdown signal")
		<-gctx.Done()
		return sched.Shutdown()
	})
	return g.Wait()
}
