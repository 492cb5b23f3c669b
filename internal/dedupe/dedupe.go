// Package dedupe suppresses repeated deliveries of the same event to the same
// handler. Delivery is at-least-once, so a redelivered event would otherwise
// run its side effects twice.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventhub/internal/domain/event"
	"eventhub/internal/router"
)

const keyPrefix = "dedupe"

var duplicatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eventhub_dedupe_duplicates_skipped_total",
	Help: "Redelivered events skipped because the handler already processed them",
}, []string{"handler"})

// Guard remembers, per handler, which event ids were processed within TTL.
type Guard struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewGuard(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Guard {
	return &Guard{client: client, ttl: ttl, logger: logger}
}

func key(handler, eventID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, handler, eventID)
}

// Wrap returns a handler that runs h at most once per event id. A failed or
// panicking run releases the claim so a redelivery can try again. When Redis is unavailable
// h runs anyway.
func (g *Guard) Wrap(name string, h router.Handler) router.Handler {
	return func(ctx context.Context, msg event.Message) error {
		k := key(name, msg.ID)

		claimed, err := g.client.SetNX(ctx, k, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
		if err != nil {
			g.logger.Warn("Dedupe check failed, running handler without it",
				zap.String("handler", name),
				zap.String("event_id", msg.ID),
				zap.Error(err))
			return h(ctx, msg)
		}
		if !claimed {
			duplicatesSkipped.WithLabelValues(name).Inc()
			g.logger.Info("Skipping duplicate delivery",
				zap.String("handler", name),
				zap.String("event_id", msg.ID),
				zap.String("event_type", string(msg.Type)))
			return nil
		}

		defer func() {
			if rec := recover(); rec != nil {
				g.release(ctx, k, name, msg.ID)
				panic(rec)
			}
		}()

		if err := h(ctx, msg); err != nil {
			g.release(ctx, k, name, msg.ID)
			return err
		}
		return nil
	}
}

func (g *Guard) release(ctx context.Context, k, handler, eventID string) {
	if err := g.client.Del(context.WithoutCancel(ctx), k).Err(); err != nil {
		g.logger.Warn("Failed to release dedupe claim",
			zap.String("handler", handler),
			zap.String("event_id", eventID),
			zap.Error(err))
	}
}
