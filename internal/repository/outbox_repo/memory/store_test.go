package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/domain"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo *OutboxRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Create(context.Background(), &domain.OutboxEvent{
			ID:         fmt.Sprintf("e-%d", i),
			EventType:  "OrderCreated",
			Payload:    []byte(`{}`),
			Topic:      "order-events",
			OccurredAt: base.Add(time.Duration(n-i) * time.Second),
		}))
	}
}

func TestCreate_RejectsDuplicate(t *testing.T) {
	t.Parallel()

	repo := NewOutboxRepository()
	event := &domain.OutboxEvent{ID: "e-1", OccurredAt: base}
	require.NoError(t, repo.Create(context.Background(), event))

	err := repo.Create(context.Background(), event)
	require.ErrorIs(t, err, domain.ErrDuplicateEvent)
}

func TestFetchPending_OrdersByOccurredAtAndLimits(t *testing.T) {
	t.Parallel()

	repo := NewOutboxRepository()
	seed(t, repo, 5)

	events, err := repo.FetchPending(context.Background(), 3, 5)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e-4", events[0].ID)
	assert.Equal(t, "e-3", events[1].ID)
	assert.Equal(t, "e-2", events[2].ID)
}

func TestFetchPending_ExcludesPublishedAndExhausted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewOutboxRepository()
	seed(t, repo, 3)

	require.NoError(t, repo.MarkPublished(ctx, "e-0", base))
	for i := 0; i < 2; i++ {
		_, err := repo.RecordFailure(ctx, "e-1", "boom")
		require.NoError(t, err)
	}

	events, err := repo.FetchPending(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e-2", events[0].ID)

	dead, err := repo.ListDeadLettered(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "e-1", dead[0].ID)
	assert.Equal(t, "boom", dead[0].LastErrorMessage)
}

func TestMarkPublished_IsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewOutboxRepository()
	seed(t, repo, 1)

	_, err := repo.RecordFailure(ctx, "e-0", "timeout")
	require.NoError(t, err)
	require.NoError(t, repo.MarkPublished(ctx, "e-0", base.Add(time.Minute)))

	event, err := repo.GetByID(ctx, "e-0")
	require.NoError(t, err)
	assert.True(t, event.IsPublished)
	assert.Empty(t, event.LastErrorMessage)
	assert.Equal(t, 2, event.PublishAttempts, "the successful attempt is counted too")

	require.ErrorIs(t, repo.MarkPublished(ctx, "e-0", base), domain.ErrEventNotPending)
	_, err = repo.RecordFailure(ctx, "e-0", "late")
	require.ErrorIs(t, err, domain.ErrEventNotPending)
}

func TestGetByID_ReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewOutboxRepository()
	seed(t, repo, 1)

	event, err := repo.GetByID(ctx, "e-0")
	require.NoError(t, err)
	event.Payload[0] = 'x'
	event.PublishAttempts = 99

	again, err := repo.GetByID(ctx, "e-0")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), again.Payload)
	assert.Zero(t, again.PublishAttempts)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestReadSide(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewOutboxRepository()

	oldest, err := repo.OldestPending(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, oldest)

	seed(t, repo, 3)
	require.NoError(t, repo.Create(ctx, &domain.OutboxEvent{ID: "u-1", EventType: "UserRegistered", OccurredAt: base.Add(time.Hour)}))

	count, err := repo.CountPending(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	byType, err := repo.CountPendingByType(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"OrderCreated": 3, "UserRegistered": 1}, byType)

	oldest, err = repo.OldestPending(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.True(t, base.Add(time.Second).Equal(*oldest))

	dead, err := repo.CountDeadLettered(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, dead)
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewOutboxRepository()
	_, err := repo.FetchPending(ctx, 10, 5)
	require.ErrorIs(t, err, context.Canceled)
}
