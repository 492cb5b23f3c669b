package events

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"eventhub/internal/app/publish"
	"eventhub/internal/domain/event"
	"eventhub/internal/router"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Publisher interface {
	Publish(ctx context.Context, eventType, eventData string, opts ...publish.Option) (publish.Result, error)
}

// Wrapper decorates a named handler, for example with duplicate suppression.
type Wrapper func(name string, h router.Handler) router.Handler

type subscription struct {
	eventType event.Type
	name      string
	handler   router.Handler
}

// Register subscribes the built-in handlers. wrap may be nil.
func Register(b *router.Builder, p Publisher, wrap Wrapper, logger *zap.Logger) error {
	if wrap == nil {
		wrap = func(_ string, h router.Handler) router.Handler { return h }
	}

	subs := []subscription{
		{event.TypeUserRegistered, "welcome-notifier", WelcomeNotifier(logger.With(zap.String("handler", "welcome-notifier")))},
		{event.TypePaymentFailed, "payment-failure-alerter", PaymentFailureAlerter(p, logger.With(zap.String("handler", "payment-failure-alerter")))},
		{event.TypeSystemAlertRaised, "alert-logger", AlertLogger(logger.With(zap.String("handler", "alert-logger")))},
	}
	audit := AuditLog(logger.With(zap.String("handler", "audit-log")))
	for _, t := range event.KnownTypes() {
		subs = append(subs, subscription{t, "audit-log", audit})
	}

	for _, s := range subs {
		if err := b.Subscribe(s.eventType, s.name, wrap(s.name, s.handler)); err != nil {
			return fmt.Errorf("failed to subscribe %s to %s: %w", s.name, s.eventType, err)
		}
	}
	return nil
}

// AuditLog records every delivered event.
func AuditLog(logger *zap.Logger) router.Handler {
	return func(_ context.Context, msg event.Message) error {
		logger.Info("Event received",
			zap.String("event_id", msg.ID),
			zap.String("event_type", string(msg.Type)),
			zap.String("correlation_id", msg.CorrelationID),
			zap.Time("occurred_at", msg.OccurredAt))
		return nil
	}
}

func WelcomeNotifier(logger *zap.Logger) router.Handler {
	return func(_ context.Context, msg event.Message) error {
		evt, ok := msg.Event.(event.UserRegistered)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", msg.Event, msg.Type)
		}
		logger.Info("Sending welcome notification",
			zap.String("event_id", msg.ID),
			zap.String("user_id", evt.UserID),
			zap.String("email", evt.Email))
		return nil
	}
}

// PaymentFailureAlerter raises a SystemAlertRaised event for every failed
// payment. The alert goes through the outbox like any other event and keeps
// the correlation id of the failure.
func PaymentFailureAlerter(p Publisher, logger *zap.Logger) router.Handler {
	return func(ctx context.Context, msg event.Message) error {
		evt, ok := msg.Event.(event.PaymentFailed)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", msg.Event, msg.Type)
		}

		alert := event.SystemAlertRaised{
			Source:   "payments",
			Severity: event.SeverityWarning,
			Message:  fmt.Sprintf("payment for order %s failed: %s", evt.OrderID, evt.Reason),
		}
		data, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}

		res, err := p.Publish(ctx, string(event.TypeSystemAlertRaised), string(data), publish.WithCorrelationID(msg.CorrelationID))
		if err != nil {
			return fmt.Errorf("failed to raise alert for order %s: %w", evt.OrderID, err)
		}
		logger.Info("Raised alert for failed payment",
			zap.String("event_id", msg.ID),
			zap.String("order_id", evt.OrderID),
			zap.String("alert_event_id", res.EventID))
		return nil
	}
}

func AlertLogger(logger *zap.Logger) router.Handler {
	return func(_ context.Context, msg event.Message) error {
		evt, ok := msg.Event.(event.SystemAlertRaised)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", msg.Event, msg.Type)
		}
		fields := []zap.Field{
			zap.String("event_id", msg.ID),
			zap.String("source", evt.Source),
			zap.String("severity", string(evt.Severity)),
			zap.String("alert", evt.Message),
		}
		if evt.Severity == event.SeverityCritical {
			logger.Error("Critical system alert", fields...)
			return nil
		}
		logger.Warn("System alert", fields...)
		return nil
	}
}
