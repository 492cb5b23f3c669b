package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"eventhub/internal/consumer"
)

// Subscriber reads a set of topics as one consumer group member.
type Subscriber struct {
	brokers []string
	groupID string
	logger  *zap.Logger
}

var _ consumer.Subscriber = (*Subscriber)(nil)

func NewSubscriber(brokers []string, groupID string, l *zap.Logger) *Subscriber {
	return &Subscriber{brokers: brokers, groupID: groupID, logger: l}
}

func readerConfig(brokers []string, groupID string, topics []string, l *zap.Logger) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
		Logger:      kafka.LoggerFunc(l.Sugar().Debugf),
		ErrorLogger: kafka.LoggerFunc(l.Sugar().Errorf),
	}
}

// Subscribe fetches messages until ctx is cancelled. The offset of a message
// is committed only after onMessage accepted it.
func (s *Subscriber) Subscribe(ctx context.Context, topics []string, onMessage consumer.MessageFunc) error {
	if len(topics) == 0 {
		return errors.New("at least one topic is required")
	}

	reader := kafka.NewReader(readerConfig(s.brokers, s.groupID, topics, s.logger))
	defer func() {
		if err := reader.Close(); err != nil {
			s.logger.Error("Failed to close Kafka reader", zap.Error(err))
		}
	}()

	s.logger.Info("Kafka subscriber started",
		zap.Strings("topics", topics),
		zap.String("group_id", s.groupID),
		zap.Strings("brokers", s.brokers))

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := onMessage(ctx, m.Value); err != nil {
			s.logger.Error("Error handling Kafka message, offset not committed",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			continue
		}

		if err := reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("Failed to commit offset for message",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			continue
		}
		s.logger.Debug("Committed message offset",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset))
	}
}
