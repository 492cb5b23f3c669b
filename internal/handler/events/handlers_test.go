package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"eventhub/internal/app/publish"
	"eventhub/internal/domain/event"
	"eventhub/internal/repository/outbox_repo/memory"
	"eventhub/internal/router"
)

func TestRegister(t *testing.T) {
	t.Parallel()

	var wrapped []string
	wrap := func(name string, h router.Handler) router.Handler {
		wrapped = append(wrapped, name)
		return h
	}

	b := router.NewBuilder(zap.NewNop())
	svc := publish.NewService(memory.NewOutboxRepository(), event.DefaultTopics(), zap.NewNop())
	require.NoError(t, Register(b, svc, wrap, zap.NewNop()))

	r := b.Build()
	assert.Len(t, r.Types(), len(event.KnownTypes()))
	assert.Equal(t, 2, r.HandlerCount(event.TypeUserRegistered))
	assert.Equal(t, 1, r.HandlerCount(event.TypeOrderCreated))
	assert.Len(t, wrapped, 3+len(event.KnownTypes()))
}

func TestPaymentFailureAlerter_PublishesAlert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	svc := publish.NewService(repo, event.DefaultTopics(), zap.NewNop())

	h := PaymentFailureAlerter(svc, zap.NewNop())
	err := h(ctx, event.Message{
		ID:            "e-1",
		Type:          event.TypePaymentFailed,
		CorrelationID: "checkout-42",
		Event:         event.PaymentFailed{OrderID: "o-1", Reason: "card declined"},
	})
	require.NoError(t, err)

	pending, err := repo.FetchPending(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, string(event.TypeSystemAlertRaised), pending[0].EventType)
	assert.Equal(t, "checkout-42", pending[0].CorrelationID)
	assert.Equal(t, event.TopicSystemEvents, pending[0].Topic)

	msg, err := event.ParseMessage(pending[0].Payload)
	require.NoError(t, err)
	alert := msg.Event.(event.SystemAlertRaised)
	assert.Equal(t, event.SeverityWarning, alert.Severity)
	assert.Contains(t, alert.Message, "card declined")
}

func TestHandlers_RejectMismatchedPayload(t *testing.T) {
	t.Parallel()

	msg := event.Message{ID: "e-1", Type: event.TypeUserRegistered, Event: event.OrderCreated{}}
	require.Error(t, WelcomeNotifier(zap.NewNop())(context.Background(), msg))
	require.Error(t, AlertLogger(zap.NewNop())(context.Background(), msg))
}

func TestAlertLogger_SeverityLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	h := AlertLogger(zap.New(core))

	for _, sev := range []event.AlertSeverity{event.SeverityWarning, event.SeverityCritical} {
		require.NoError(t, h(context.Background(), event.Message{
			ID:    "e-" + string(sev),
			Type:  event.TypeSystemAlertRaised,
			Event: event.SystemAlertRaised{Source: "db", Severity: sev, Message: "replica lag"},
		}))
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
