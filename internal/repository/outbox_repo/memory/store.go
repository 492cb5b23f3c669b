// Package memory holds an in-process OutboxRepository. It keeps the same
// guards as the postgres implementation and is used by tests and local runs
// without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"eventhub/internal/domain"
	"eventhub/internal/repository/outbox_repo"
)

type OutboxRepository struct {
	mu     sync.RWMutex
	events map[string]*domain.OutboxEvent
}

var _ outbox_repo.OutboxRepository = (*OutboxRepository)(nil)

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{events: make(map[string]*domain.OutboxEvent)}
}

func (r *OutboxRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.ID]; ok {
		return fmt.Errorf("outbox event %s: %w", event.ID, domain.ErrDuplicateEvent)
	}

	stored := clone(event)
	stored.IsPublished = false
	stored.PublishedAt = nil
	stored.PublishAttempts = 0
	stored.LastErrorMessage = ""
	r.events[event.ID] = stored
	return nil
}

// CreateTx ignores the querier: there is no transaction to enlist in.
func (r *OutboxRepository) CreateTx(ctx context.Context, _ domain.Querier, event *domain.OutboxEvent) error {
	return r.Create(ctx, event)
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(limit, func(e *domain.OutboxEvent) bool { return e.IsPending(maxAttempts) }), nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[id]
	if !ok || event.IsPublished {
		return fmt.Errorf("outbox event %s: %w", id, domain.ErrEventNotPending)
	}
	at := publishedAt
	event.IsPublished = true
	event.PublishedAt = &at
	event.PublishAttempts++
	event.LastErrorMessage = ""
	return nil
}

func (r *OutboxRepository) RecordFailure(ctx context.Context, id string, errMsg string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[id]
	if !ok || event.IsPublished {
		return 0, fmt.Errorf("outbox event %s: %w", id, domain.ErrEventNotPending)
	}
	event.PublishAttempts++
	event.LastErrorMessage = errMsg
	return event.PublishAttempts, nil
}

func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*domain.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, fmt.Errorf("outbox event %s: %w", id, domain.ErrEventNotFound)
	}
	return clone(event), nil
}

func (r *OutboxRepository) CountPending(ctx context.Context, maxAttempts int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(r.list(0, func(e *domain.OutboxEvent) bool { return e.IsPending(maxAttempts) })), nil
}

func (r *OutboxRepository) CountPendingByType(ctx context.Context, maxAttempts int) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range r.list(0, func(e *domain.OutboxEvent) bool { return e.IsPending(maxAttempts) }) {
		counts[e.EventType]++
	}
	return counts, nil
}

func (r *OutboxRepository) OldestPending(ctx context.Context, maxAttempts int) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pending := r.list(1, func(e *domain.OutboxEvent) bool { return e.IsPending(maxAttempts) })
	if len(pending) == 0 {
		return nil, nil
	}
	oldest := pending[0].OccurredAt
	return &oldest, nil
}

func (r *OutboxRepository) CountDeadLettered(ctx context.Context, maxAttempts int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(r.list(0, func(e *domain.OutboxEvent) bool { return e.IsDeadLettered(maxAttempts) })), nil
}

func (r *OutboxRepository) ListDeadLettered(ctx context.Context, maxAttempts, limit int) ([]domain.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(limit, func(e *domain.OutboxEvent) bool { return e.IsDeadLettered(maxAttempts) }), nil
}

// list returns copies of matching events ordered by OccurredAt, then ID.
// A non-positive limit means no limit.
func (r *OutboxRepository) list(limit int, match func(*domain.OutboxEvent) bool) []domain.OutboxEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.OutboxEvent
	for _, e := range r.events {
		if match(e) {
			out = append(out, *clone(e))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clone(e *domain.OutboxEvent) *domain.OutboxEvent {
	c := *e
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	if e.PublishedAt != nil {
		at := *e.PublishedAt
		c.PublishedAt = &at
	}
	return &c
}
