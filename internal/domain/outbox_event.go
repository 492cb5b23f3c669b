package domain

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrEventNotFound   = errors.New("outbox event not found")
	ErrEventNotPending = errors.New("outbox event is not pending")
	ErrDuplicateEvent  = errors.New("outbox event already exists")
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so repository writes can
// run standalone or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OutboxEvent is one durably recorded event awaiting (or done with) delivery
// to the broker. Rows are created by the publish service and mutated only by
// the outbox publisher.
type OutboxEvent struct {
	ID               string
	EventType        string
	Payload          []byte
	Topic            string
	PartitionKey     string
	CorrelationID    string
	IsPublished      bool
	PublishedAt      *time.Time
	PublishAttempts  int
	LastErrorMessage string
	OccurredAt       time.Time
}

// IsDeadLettered reports whether the event exhausted its retry budget without
// being published. Dead-lettered rows are kept for inspection.
func (e *OutboxEvent) IsDeadLettered(maxAttempts int) bool {
	return !e.IsPublished && e.PublishAttempts >= maxAttempts
}

// IsPending reports whether the event is still eligible for delivery.
func (e *OutboxEvent) IsPending(maxAttempts int) bool {
	return !e.IsPublished && e.PublishAttempts < maxAttempts
}

// Age is the time elapsed since the event occurred.
func (e *OutboxEvent) Age(now time.Time) time.Duration {
	return now.Sub(e.OccurredAt)
}
