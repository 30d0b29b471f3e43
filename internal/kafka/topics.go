package kafka

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"ms-clinic-queue/internal/logger"

	"github.com/segmentio/kafka-go"
)

// EnsureTopicsExist creates the topics on the cluster controller. Existing
// topics are left alone.
func EnsureTopicsExist(brokers []string, topics []string, partitions int, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	if partitions < 1 {
		partitions = 1
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
		if err != nil {
			if errors.Is(err, kafka.TopicAlreadyExists) {
				log.LogKafka("TOPIC", topic, "already exists")
				continue
			}
			log.Error("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
			continue
		}
		log.LogKafka("TOPIC", topic, "created")
	}
	return nil
}
