// Command migrate applies or rolls back the SQL migrations.
package main

import (
	"context"
	"flag"
	"fmt"

	"ms-clinic-queue/internal/config"
	"ms-clinic-queue/internal/database"
	"ms-clinic-queue/internal/database/migrations"
	"ms-clinic-queue/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	log := logger.New(logger.Options{Service: "clinic-migrate"})
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	ctx := context.Background()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect: %v", err))
	}
	defer bunDB.Close()

	if cfg.Database.Driver == "sqlite" {
		if *direction != "up" {
			log.Fatal("DATABASE", "sqlite schemas only support -direction=up")
		}
		if err := database.CreateSchema(ctx, bunDB); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to create schema: %v", err))
		}
		log.Info("DATABASE", "✅ sqlite schema ready")
		return
	}

	runner := migrations.NewRunner(bunDB.DB, cfg.Database.MigrationsDir, log)
	defer runner.Close()

	switch *direction {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	default:
		log.Fatal("CONFIG", fmt.Sprintf("unknown direction %q", *direction))
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration %s failed: %v", *direction, err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Migrations %s complete", *direction))
}
