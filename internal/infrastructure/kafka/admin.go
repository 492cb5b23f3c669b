package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type TopicSpec struct {
	Partitions        int
	ReplicationFactor int
}

func topicConfigs(topics []string, spec TopicSpec) []kafka.TopicConfig {
	partitions := spec.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := spec.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	configs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		configs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		}
	}
	return configs
}

// EnsureTopics creates the given topics through the cluster controller.
// Topics that already exist are left untouched.
func EnsureTopics(ctx context.Context, brokers []string, topics []string, spec TopicSpec, logger *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(topicConfigs(topics, spec)...)
	if err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			logger.Info("One or more Kafka topics already exist, skipping creation.", zap.Strings("topics", topics))
			return nil
		}
		return fmt.Errorf("failed to create Kafka topics: %w", err)
	}

	logger.Info("Kafka topics ensured successfully.", zap.Strings("topics", topics))
	return nil
}
