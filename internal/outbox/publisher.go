package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"eventhub/internal/domain"
)

// BrokerPublisher sends one serialized event to the broker.
type BrokerPublisher interface {
	Publish(ctx context.Context, topic, partitionKey string, payload []byte, eventType string) error
}

// Store is the part of the outbox repository the publisher needs.
type Store interface {
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	RecordFailure(ctx context.Context, id string, errMsg string) (int, error)
}

// persistTimeout bounds the store write that records a broker outcome. Once
// the broker has answered, that write ignores cancellation of the pass.
const persistTimeout = 5 * time.Second

type Config struct {
	BatchSize        int
	MaxRetryAttempts int
}

// Result summarizes one publisher pass.
//
// Failed counts events whose delivery did not complete this pass. DeadLettered
// counts events found already exhausted plus those whose failure this pass
// used up the last attempt; the latter are also counted in Failed. Cancelled
// counts the interrupted event and every event of the batch left unattempted.
type Result struct {
	Fetched      int
	Succeeded    int
	Failed       int
	DeadLettered int
	Cancelled    int
}

func (r Result) OK() bool {
	return r.Failed == 0
}

type Publisher struct {
	store  Store
	broker BrokerPublisher
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewPublisher(store Store, broker BrokerPublisher, cfg Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:  store,
		broker: broker,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// PublishPendingEvents runs one pass over the oldest pending events. The
// returned error is set only when the batch could not be fetched; per event
// failures are recorded on the rows and reported through Result.
func (p *Publisher) PublishPendingEvents(ctx context.Context) (Result, error) {
	started := time.Now()
	defer func() { passDuration.Observe(time.Since(started).Seconds()) }()

	var res Result

	events, err := p.store.FetchPending(ctx, p.cfg.BatchSize, p.cfg.MaxRetryAttempts)
	if err != nil {
		return res, fmt.Errorf("failed to fetch pending outbox events: %w", err)
	}
	res.Fetched = len(events)
	if len(events) == 0 {
		p.logger.Debug("No pending outbox events found")
		return res, nil
	}

	p.logger.Debug("Found pending outbox events", zap.Int("count", len(events)))

	for i := range events {
		if ctx.Err() != nil {
			res.Cancelled += len(events) - i
			p.logger.Info("Outbox pass cancelled", zap.Int("remaining", len(events)-i))
			break
		}
		if !p.publishOne(ctx, &events[i], &res) {
			res.Cancelled += len(events) - i
			p.logger.Info("Outbox pass cancelled during publish",
				zap.String("event_id", events[i].ID),
				zap.Int("remaining", len(events)-i))
			break
		}
	}

	if res.Succeeded > 0 || res.Failed > 0 || res.DeadLettered > 0 {
		p.logger.Info("Outbox pass completed",
			zap.Int("fetched", res.Fetched),
			zap.Int("published", res.Succeeded),
			zap.Int("failed", res.Failed),
			zap.Int("dead_lettered", res.DeadLettered),
			zap.Int("cancelled", res.Cancelled))
	}
	return res, nil
}

// publishOne handles a single event and reports false when the pass must stop
// because the caller cancelled it.
func (p *Publisher) publishOne(ctx context.Context, e *domain.OutboxEvent, res *Result) bool {
	log := p.logger.With(
		zap.String("event_id", e.ID),
		zap.String("event_type", e.EventType),
		zap.String("topic", e.Topic),
	)

	if e.IsDeadLettered(p.cfg.MaxRetryAttempts) {
		res.DeadLettered++
		log.Warn("Skipping dead-lettered outbox event", zap.Int("attempts", e.PublishAttempts))
		return true
	}

	err := p.broker.Publish(ctx, e.Topic, e.PartitionKey, e.Payload, e.EventType)
	if err != nil && ctx.Err() != nil {
		return false
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err != nil {

		res.Failed++
		publishErrors.WithLabelValues(e.EventType).Inc()

		attempts, recErr := p.store.RecordFailure(storeCtx, e.ID, err.Error())
		if recErr != nil {
			log.Error("Failed to record publish failure",
				zap.Int("attempts", e.PublishAttempts),
				zap.NamedError("publish_error", err),
				zap.Error(recErr))
			return true
		}

		if attempts >= p.cfg.MaxRetryAttempts {
			res.DeadLettered++
			eventsDeadLettered.WithLabelValues(e.EventType).Inc()
			log.Error("Outbox event dead-lettered after exhausting retries",
				zap.Int("attempts", attempts),
				zap.Int("max_attempts", p.cfg.MaxRetryAttempts),
				zap.Error(err))
			return true
		}

		log.Warn("Failed to publish outbox event, will retry",
			zap.Int("attempts", attempts),
			zap.Int("max_attempts", p.cfg.MaxRetryAttempts),
			zap.Error(err))
		return true
	}

	if err := p.store.MarkPublished(storeCtx, e.ID, p.now().UTC()); err != nil {
		// The broker already has the message; the row stays pending and is
		// sent again on a later pass.
		res.Failed++
		log.Error("Published outbox event but failed to mark it",
			zap.Int("attempts", e.PublishAttempts),
			zap.Error(err))
		return true
	}

	res.Succeeded++
	eventsPublished.WithLabelValues(e.EventType).Inc()
	log.Debug("Outbox event published", zap.Int("attempts", e.PublishAttempts+1))
	return true
}
