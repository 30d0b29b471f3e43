package database

import (
	"context"
	"fmt"
	"time"

	"ms-clinic-queue/internal/logger"

	"github.com/go-redis/redis/v8"
)

// ConnectRedis creates the shared client used for the profile cache and
// the redis event bus, and checks it with a ping.
func ConnectRedis(ctx context.Context, addr string, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password
		DB:       0,  // use default DB
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		log.Error("REDIS", fmt.Sprintf("Failed to connect to Redis at %s: %v", addr, err))
		return nil, err
	}

	log.Info("REDIS", fmt.Sprintf("✅ Connected to Redis at %s", addr))
	return client, nil
}
