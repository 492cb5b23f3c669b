package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"eventhub/internal/domain"
	"eventhub/internal/repository/outbox_repo"
)

const uniqueViolation = "23505"

const selectColumns = `id, event_type, payload, topic, partition_key, correlation_id,
		is_published, published_at, publish_attempts, last_error_message, occurred_at`

type OutboxRepository struct {
	db *sql.DB
}

var _ outbox_repo.OutboxRepository = (*OutboxRepository)(nil)

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	return r.CreateTx(ctx, r.db, event)
}

func (r *OutboxRepository) CreateTx(ctx context.Context, querier domain.Querier, event *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, event_type, payload, topic, partition_key, correlation_id,
			is_published, publish_attempts, last_error_message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, 0, '', $7)
	`
	_, err := querier.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Topic,
		event.PartitionKey,
		event.CorrelationID,
		event.OccurredAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("outbox event %s: %w", event.ID, domain.ErrDuplicateEvent)
		}
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM outbox_events
		WHERE is_published = FALSE AND publish_attempts < $1
		ORDER BY occurred_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox events: %w", err)
	}
	return scanEvents(rows)
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	query := `
		UPDATE outbox_events
		SET is_published = TRUE, published_at = $1,
			publish_attempts = publish_attempts + 1, last_error_message = ''
		WHERE id = $2 AND is_published = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, publishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s as published: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for outbox event %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("outbox event %s: %w", id, domain.ErrEventNotPending)
	}
	return nil
}

func (r *OutboxRepository) RecordFailure(ctx context.Context, id string, errMsg string) (int, error) {
	query := `
		UPDATE outbox_events
		SET publish_attempts = publish_attempts + 1, last_error_message = $1
		WHERE id = $2 AND is_published = FALSE
		RETURNING publish_attempts
	`
	var attempts int
	err := r.db.QueryRowContext(ctx, query, errMsg, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("outbox event %s: %w", id, domain.ErrEventNotPending)
		}
		return 0, fmt.Errorf("failed to record failure for outbox event %s: %w", id, err)
	}
	return attempts, nil
}

func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*domain.OutboxEvent, error) {
	query := `SELECT ` + selectColumns + ` FROM outbox_events WHERE id = $1`

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("outbox event %s: %w", id, domain.ErrEventNotFound)
		}
		return nil, fmt.Errorf("failed to get outbox event %s: %w", id, err)
	}
	return event, nil
}

func (r *OutboxRepository) CountPending(ctx context.Context, maxAttempts int) (int, error) {
	query := `SELECT COUNT(*) FROM outbox_events WHERE is_published = FALSE AND publish_attempts < $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, maxAttempts).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}

func (r *OutboxRepository) CountPendingByType(ctx context.Context, maxAttempts int) (map[string]int, error) {
	query := `
		SELECT event_type, COUNT(*)
		FROM outbox_events
		WHERE is_published = FALSE AND publish_attempts < $1
		GROUP BY event_type
	`
	rows, err := r.db.QueryContext(ctx, query, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending outbox events by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan pending count row: %w", err)
		}
		counts[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending counts: %w", err)
	}
	return counts, nil
}

func (r *OutboxRepository) OldestPending(ctx context.Context, maxAttempts int) (*time.Time, error) {
	query := `SELECT MIN(occurred_at) FROM outbox_events WHERE is_published = FALSE AND publish_attempts < $1`

	var oldest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, maxAttempts).Scan(&oldest); err != nil {
		return nil, fmt.Errorf("failed to get oldest pending outbox event: %w", err)
	}
	if !oldest.Valid {
		return nil, nil
	}
	return &oldest.Time, nil
}

func (r *OutboxRepository) CountDeadLettered(ctx context.Context, maxAttempts int) (int, error) {
	query := `SELECT COUNT(*) FROM outbox_events WHERE is_published = FALSE AND publish_attempts >= $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, maxAttempts).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dead-lettered outbox events: %w", err)
	}
	return count, nil
}

func (r *OutboxRepository) ListDeadLettered(ctx context.Context, maxAttempts, limit int) ([]domain.OutboxEvent, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM outbox_events
		WHERE is_published = FALSE AND publish_attempts >= $1
		ORDER BY occurred_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead-lettered outbox events: %w", err)
	}
	return scanEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.OutboxEvent, error) {
	event := &domain.OutboxEvent{}
	var publishedAt sql.NullTime
	err := row.Scan(
		&event.ID,
		&event.EventType,
		&event.Payload,
		&event.Topic,
		&event.PartitionKey,
		&event.CorrelationID,
		&event.IsPublished,
		&publishedAt,
		&event.PublishAttempts,
		&event.LastErrorMessage,
		&event.OccurredAt,
	)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		event.PublishedAt = &publishedAt.Time
	}
	return event, nil
}

func scanEvents(rows *sql.Rows) ([]domain.OutboxEvent, error) {
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}
	return events, nil
}
