package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventhub/internal/domain/event"
	"eventhub/internal/router"
)

type fakeSubscriber struct {
	payloads [][]byte
	err      error
	topics   []string
	acks     int
	states   []State
	consumer *Consumer
	block    bool
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, topics []string, onMessage MessageFunc) error {
	s.topics = topics
	for _, p := range s.payloads {
		if err := onMessage(ctx, p); err == nil {
			s.acks++
		}
		s.states = append(s.states, s.consumer.State())
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func envelope(t *testing.T, id string, evt event.Event) []byte {
	t.Helper()

	env, err := event.NewEnvelope(id, "corr-"+id, evt, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	payload, err := env.Marshal()
	require.NoError(t, err)
	return payload
}

func TestStartConsuming_RoutesAndDropsBadMessages(t *testing.T) {
	t.Parallel()

	var seen []string
	var routedStates []State
	var c *Consumer

	b := router.NewBuilder(zap.NewNop())
	require.NoError(t, b.Subscribe(event.TypeOrderCreated, "collect", func(_ context.Context, msg event.Message) error {
		seen = append(seen, msg.ID)
		routedStates = append(routedStates, c.State())
		return nil
	}))

	sub := &fakeSubscriber{
		payloads: [][]byte{
			envelope(t, "e-1", event.OrderCreated{OrderID: "o-1", UserID: "u-1", Amount: 10, Currency: "USD"}),
			[]byte(`not json`),
			[]byte(`{"event_id":"e-x","event_type":"Bogus","data":{}}`),
			envelope(t, "e-2", event.UserRegistered{UserID: "u-1", Email: "a@b.c"}),
			envelope(t, "e-3", event.OrderCreated{OrderID: "o-2", UserID: "u-1", Amount: 5, Currency: "USD"}),
		},
	}
	c = New(sub, b.Build(), zap.NewNop())
	sub.consumer = c
	assert.Equal(t, StateIdle, c.State())

	ctx, cancel := context.WithCancel(context.Background())
	sub.block = true
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := c.StartConsuming(ctx, []string{"order-events", "user-events"})
	require.NoError(t, err)

	assert.Equal(t, []string{"e-1", "e-3"}, seen)
	assert.Equal(t, []State{StateRouting, StateRouting}, routedStates)
	assert.Equal(t, 5, sub.acks, "every message is acknowledged, including dropped ones")
	for _, s := range sub.states {
		assert.Equal(t, StateConsuming, s)
	}
	assert.Equal(t, []string{"order-events", "user-events"}, sub.topics)
	assert.Equal(t, StateCancelled, c.State())
}

func TestStartConsuming_TransportFailure(t *testing.T) {
	t.Parallel()

	broken := errors.New("broker connection lost")
	sub := &fakeSubscriber{err: broken}
	c := New(sub, router.NewBuilder(zap.NewNop()).Build(), zap.NewNop())
	sub.consumer = c

	err := c.StartConsuming(context.Background(), []string{"order-events"})
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, broken)
	assert.Equal(t, StateFaulted, c.State())
}

func TestStartConsuming_HandlerFailureDoesNotStopStream(t *testing.T) {
	t.Parallel()

	b := router.NewBuilder(zap.NewNop())
	require.NoError(t, b.Subscribe(event.TypeSystemAlertRaised, "pager", func(context.Context, event.Message) error {
		return errors.New("pager service down")
	}))

	alert := event.SystemAlertRaised{Source: "db", Severity: event.SeverityCritical, Message: "replica lag"}
	sub := &fakeSubscriber{payloads: [][]byte{envelope(t, "e-1", alert), envelope(t, "e-2", alert)}}
	c := New(sub, b.Build(), zap.NewNop())
	sub.consumer = c

	require.NoError(t, c.StartConsuming(context.Background(), []string{"system-events"}))
	assert.Equal(t, 2, sub.acks)
	assert.Equal(t, StateCancelled, c.State())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "faulted", StateFaulted.String())
	assert.Equal(t, "state(42)", State(42).String())
}
