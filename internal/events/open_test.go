package events

import (
	"testing"

	"ms-clinic-queue/internal/config"
	"ms-clinic-queue/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSelectsBus(t *testing.T) {
	log := logger.NewDiscard()

	bus, err := Open(config.EventsConfig{Bus: "local"}, config.KafkaConfig{}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &LocalBus{}, bus)

	_, err = Open(config.EventsConfig{Bus: "redis"}, config.KafkaConfig{}, nil, log)
	assert.Error(t, err, "redis bus without a client")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	bus, err = Open(config.EventsConfig{Bus: "redis"}, config.KafkaConfig{}, client, log)
	require.NoError(t, err)
	assert.IsType(t, &RedisBus{}, bus)

	_, err = Open(config.EventsConfig{Bus: "nats"}, config.KafkaConfig{}, nil, log)
	assert.Error(t, err)
}
