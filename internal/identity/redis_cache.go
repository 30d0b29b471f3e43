package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-clinic-queue/internal/models"

	"github.com/go-redis/redis/v8"
)

const profileKeyPrefix = "profile:"

// RedisCache keeps profiles as JSON with a TTL.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{Client: client, TTL: ttl}
}

func profileKey(id string) string {
	return profileKeyPrefix + id
}

// Get returns nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, id string) (*models.Profile, error) {
	raw, err := c.Client.Get(ctx, profileKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get profile from Redis: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached profile: %w", err)
	}
	return &profile, nil
}

func (c *RedisCache) Set(ctx context.Context, profile *models.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return c.Client.Set(ctx, profileKey(profile.ID), raw, c.TTL).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, id string) error {
	return c.Client.Del(ctx, profileKey(id)).Err()
}
