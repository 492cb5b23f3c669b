package monitor

import (
	"context"
	"fmt"
	"time"

	"eventhub/internal/domain"
)

// Reader is the read side of the outbox store.
type Reader interface {
	GetByID(ctx context.Context, id string) (*domain.OutboxEvent, error)
	CountPending(ctx context.Context, maxAttempts int) (int, error)
	CountPendingByType(ctx context.Context, maxAttempts int) (map[string]int, error)
	OldestPending(ctx context.Context, maxAttempts int) (*time.Time, error)
	CountDeadLettered(ctx context.Context, maxAttempts int) (int, error)
	ListDeadLettered(ctx context.Context, maxAttempts, limit int) ([]domain.OutboxEvent, error)
}

// EventView is the operator facing projection of one outbox row.
type EventView struct {
	ID               string     `json:"id"`
	EventType        string     `json:"event_type"`
	Topic            string     `json:"topic"`
	PartitionKey     string     `json:"partition_key"`
	CorrelationID    string     `json:"correlation_id,omitempty"`
	IsPublished      bool       `json:"is_published"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	PublishAttempts  int        `json:"publish_attempts"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`
	DeadLettered     bool       `json:"dead_lettered"`
	OccurredAt       time.Time  `json:"occurred_at"`
	Payload          string     `json:"payload"`
}

type Snapshot struct {
	Pending          int            `json:"pending"`
	PendingByType    map[string]int `json:"pending_by_type"`
	OldestPendingAge *Duration      `json:"oldest_pending_age,omitempty"`
	DeadLettered     int            `json:"dead_lettered"`
	MaxRetryAttempts int            `json:"max_retry_attempts"`
	TakenAt          time.Time      `json:"taken_at"`
}

// Duration marshals as seconds with a human readable companion.
type Duration struct {
	Seconds float64 `json:"seconds"`
	Human   string  `json:"human"`
}

func NewDuration(d time.Duration) *Duration {
	return &Duration{Seconds: d.Seconds(), Human: d.Round(time.Second).String()}
}

// Monitor answers operational questions about the outbox. It never writes.
type Monitor struct {
	store            Reader
	maxRetryAttempts int
	now              func() time.Time
}

func New(store Reader, maxRetryAttempts int) *Monitor {
	return &Monitor{store: store, maxRetryAttempts: maxRetryAttempts, now: time.Now}
}

func (m *Monitor) PendingCount(ctx context.Context) (int, error) {
	return m.store.CountPending(ctx, m.maxRetryAttempts)
}

func (m *Monitor) PendingByType(ctx context.Context) (map[string]int, error) {
	return m.store.CountPendingByType(ctx, m.maxRetryAttempts)
}

// OldestPendingAge reports how long the oldest pending event has waited.
// ok is false when nothing is pending.
func (m *Monitor) OldestPendingAge(ctx context.Context) (age time.Duration, ok bool, err error) {
	oldest, err := m.store.OldestPending(ctx, m.maxRetryAttempts)
	if err != nil {
		return 0, false, err
	}
	if oldest == nil {
		return 0, false, nil
	}
	age = m.now().Sub(*oldest)
	if age < 0 {
		age = 0
	}
	return age, true, nil
}

func (m *Monitor) DeadLetterCount(ctx context.Context) (int, error) {
	return m.store.CountDeadLettered(ctx, m.maxRetryAttempts)
}

func (m *Monitor) DeadLettered(ctx context.Context, limit int) ([]EventView, error) {
	events, err := m.store.ListDeadLettered(ctx, m.maxRetryAttempts, limit)
	if err != nil {
		return nil, err
	}
	views := make([]EventView, 0, len(events))
	for i := range events {
		views = append(views, m.view(&events[i]))
	}
	return views, nil
}

// Event looks up a single row. A missing id yields domain.ErrEventNotFound.
func (m *Monitor) Event(ctx context.Context, id string) (EventView, error) {
	e, err := m.store.GetByID(ctx, id)
	if err != nil {
		return EventView{}, err
	}
	return m.view(e), nil
}

func (m *Monitor) Snapshot(ctx context.Context) (Snapshot, error) {
	s := Snapshot{MaxRetryAttempts: m.maxRetryAttempts, TakenAt: m.now().UTC()}

	var err error
	if s.Pending, err = m.PendingCount(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("pending count: %w", err)
	}
	if s.PendingByType, err = m.PendingByType(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("pending by type: %w", err)
	}
	age, ok, err := m.OldestPendingAge(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("oldest pending: %w", err)
	}
	if ok {
		s.OldestPendingAge = NewDuration(age)
	}
	if s.DeadLettered, err = m.DeadLetterCount(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("dead-letter count: %w", err)
	}
	return s, nil
}

func (m *Monitor) view(e *domain.OutboxEvent) EventView {
	return EventView{
		ID:               e.ID,
		EventType:        e.EventType,
		Topic:            e.Topic,
		PartitionKey:     e.PartitionKey,
		CorrelationID:    e.CorrelationID,
		IsPublished:      e.IsPublished,
		PublishedAt:      e.PublishedAt,
		PublishAttempts:  e.PublishAttempts,
		LastErrorMessage: e.LastErrorMessage,
		DeadLettered:     e.IsDeadLettered(m.maxRetryAttempts),
		OccurredAt:       e.OccurredAt,
		Payload:          string(e.Payload),
	}
}
