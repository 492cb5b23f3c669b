package kafka

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	HeaderEventType     = "event-type"
	HeaderEventID       = "event-id"
	HeaderCorrelationID = "correlation-id"
)

type ProducerConfig struct {
	Brokers      []string
	WriteTimeout time.Duration
}

// Producer writes outbox payloads to Kafka. Messages with the same partition
// key always land on the same partition.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(cfg ProducerConfig, l *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       kafka.LoggerFunc(l.Sugar().Debugf),
		ErrorLogger:  kafka.LoggerFunc(l.Sugar().Errorf),
	}

	l.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Brokers))
	return &Producer{writer: writer, logger: l}
}

func (p *Producer) Publish(ctx context.Context, topic, partitionKey string, payload []byte, eventType string) error {
	msg := newMessage(topic, partitionKey, payload, eventType)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to produce message to topic %s: %w", topic, err)
	}
	p.logger.Debug("Produced message to topic",
		zap.String("topic", topic),
		zap.String("event_type", eventType),
		zap.String("partition_key", partitionKey))
	return nil
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka producer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.logger.Info("Kafka producer closed.")
	return nil
}

// newMessage builds the Kafka record. The event id and correlation id are
// lifted out of the envelope into headers so they can be inspected without
// decoding the body.
func newMessage(topic, partitionKey string, payload []byte, eventType string) kafka.Message {
	headers := []kafka.Header{{Key: HeaderEventType, Value: []byte(eventType)}}
	if id := jsoniter.Get(payload, "event_id").ToString(); id != "" {
		headers = append(headers, kafka.Header{Key: HeaderEventID, Value: []byte(id)})
	}
	if corr := jsoniter.Get(payload, "correlation_id").ToString(); corr != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(corr)})
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(partitionKey),
		Value:   payload,
		Headers: headers,
	}
}
