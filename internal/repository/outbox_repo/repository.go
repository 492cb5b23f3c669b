package outbox_repo

import (
	"context"
	"time"

	"eventhub/internal/domain"
)

// OutboxRepository is the durable append log of outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	CreateTx(ctx context.Context, querier domain.Querier, event *domain.OutboxEvent) error
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	RecordFailure(ctx context.Context, id string, errMsg string) (int, error)
	GetByID(ctx context.Context, id string) (*domain.OutboxEvent, error)

	CountPending(ctx context.Context, maxAttempts int) (int, error)
	CountPendingByType(ctx context.Context, maxAttempts int) (map[string]int, error)
	OldestPending(ctx context.Context, maxAttempts int) (*time.Time, error)
	CountDeadLettered(ctx context.Context, maxAttempts int) (int, error)
	ListDeadLettered(ctx context.Context, maxAttempts, limit int) ([]domain.OutboxEvent, error)
}
