package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"eventhub/internal/domain/event"
)

var ErrTransport = errors.New("event transport failed")

var (
	messagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_consumer_messages_total",
		Help: "Messages received from the broker by outcome",
	}, []string{"outcome"})
)

type State int32

const (
	StateIdle State = iota
	StateSubscribing
	StateConsuming
	StateDeserializing
	StateRouting
	StateCancelled
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateConsuming:
		return "consuming"
	case StateDeserializing:
		return "deserializing"
	case StateRouting:
		return "routing"
	case StateCancelled:
		return "cancelled"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MessageFunc receives one raw broker payload. A nil return acknowledges it.
type MessageFunc func(ctx context.Context, payload []byte) error

// Subscriber blocks delivering messages from topics until ctx is cancelled or
// the transport fails.
type Subscriber interface {
	Subscribe(ctx context.Context, topics []string, onMessage MessageFunc) error
}

type Router interface {
	Route(ctx context.Context, msg event.Message) int
}

type Consumer struct {
	subscriber Subscriber
	router     Router
	logger     *zap.Logger
	state      atomic.Int32
}

func New(subscriber Subscriber, router Router, logger *zap.Logger) *Consumer {
	return &Consumer{
		subscriber: subscriber,
		router:     router,
		logger:     logger,
	}
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
}

// StartConsuming blocks for the lifetime of the subscription. Cancelling ctx
// is a clean stop and returns nil; a transport failure returns an error
// wrapping ErrTransport.
func (c *Consumer) StartConsuming(ctx context.Context, topics []string) error {
	c.setState(StateSubscribing)
	c.logger.Info("Event consumer subscribing", zap.Strings("topics", topics))

	err := c.subscriber.Subscribe(ctx, topics, c.handle)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		c.setState(StateCancelled)
		c.logger.Info("Event consumer stopped")
		return nil
	}
	if err != nil {
		c.setState(StateFaulted)
		c.logger.Error("Event consumer transport failed", zap.Strings("topics", topics), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.setState(StateCancelled)
	c.logger.Info("Event consumer subscription ended")
	return nil
}

// handle never fails a message: undecodable payloads are dropped so the
// stream keeps moving.
func (c *Consumer) handle(ctx context.Context, payload []byte) error {
	defer c.setState(StateConsuming)

	c.setState(StateDeserializing)
	msg, err := event.ParseMessage(payload)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, event.ErrUnknownType) {
			reason = "unknown_type"
		}
		messagesConsumed.WithLabelValues(reason).Inc()
		c.logger.Warn("Dropping undecodable event",
			zap.String("reason", reason),
			zap.Int("payload_bytes", len(payload)),
			zap.Error(err))
		return nil
	}

	c.setState(StateRouting)
	handled := c.router.Route(ctx, msg)
	if handled == 0 {
		messagesConsumed.WithLabelValues("unhandled").Inc()
		c.logger.Warn("Event was delivered but no handler consumed it",
			zap.String("event_id", msg.ID),
			zap.String("event_type", string(msg.Type)),
			zap.String("correlation_id", msg.CorrelationID))
		return nil
	}

	messagesConsumed.WithLabelValues("handled").Inc()
	c.logger.Debug("Event routed",
		zap.String("event_id", msg.ID),
		zap.String("event_type", string(msg.Type)),
		zap.Int("handled", handled))
	return nil
}
