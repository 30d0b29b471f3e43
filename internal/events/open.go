package events

import (
	"fmt"

	"ms-clinic-queue/internal/config"
	"ms-clinic-queue/internal/kafka"
	"ms-clinic-queue/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Open builds the configured bus. The redis bus needs client; the kafka bus
// gets a consumer group unique to this process so every process sees every
// event.
func Open(cfg config.EventsConfig, kcfg config.KafkaConfig, client *redis.Client, log *logger.Logger) (Bus, error) {
	switch cfg.Bus {
	case "local":
		log.Info("EVENTS", "Using in-process event bus")
		return NewLocalBus(0), nil
	case "redis", "":
		if client == nil {
			return nil, fmt.Errorf("EVENT_BUS=redis requires a redis connection")
		}
		log.Info("EVENTS", "Using redis pub/sub event bus")
		return NewRedisBus(client, log), nil
	case "kafka":
		if err := kafka.EnsureTopicsExist(kcfg.Brokers, []string{kcfg.Topics.QueueEvents}, 3, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		groupID := fmt.Sprintf("%s-%s", kcfg.GroupID, uuid.NewString()[:8])
		log.Info("EVENTS", fmt.Sprintf("Using kafka event bus on %s (group %s)", kcfg.Topics.QueueEvents, groupID))
		return NewKafkaBus(kcfg.Brokers, kcfg.Topics.QueueEvents, groupID, log), nil
	default:
		return nil, fmt.Errorf("unsupported EVENT_BUS %q", cfg.Bus)
	}
}
