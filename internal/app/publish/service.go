package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eventhub/internal/domain"
	"eventhub/internal/domain/event"
)

// Column widths of outbox_events.
const (
	MaxCorrelationIDLength = 64
	MaxPartitionKeyLength  = 255
)

var (
	ErrValidation       = errors.New("invalid event")
	ErrUnknownEventType = errors.New("unknown event type")
)

// ValidationError is returned when a publish request is rejected before
// anything is written. errors.Is(err, ErrValidation) holds for every instance.
type ValidationError struct {
	Reason string
	Fields []event.FieldError
	Err    error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	b.WriteString(": ")
	b.WriteString(e.Reason)
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.String())
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// OutboxWriter is the append side of the outbox store.
type OutboxWriter interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	CreateTx(ctx context.Context, querier domain.Querier, event *domain.OutboxEvent) error
}

type Result struct {
	EventID       string
	CorrelationID string
}

type Option func(*options)

type options struct {
	correlationID string
	querier       domain.Querier
}

// WithCorrelationID propagates a caller supplied correlation id instead of
// generating a new one.
func WithCorrelationID(id string) Option {
	return func(o *options) {
		o.correlationID = strings.TrimSpace(id)
	}
}

// WithQuerier writes the outbox row through q, typically the caller's
// *sql.Tx, so the event commits or rolls back with the business change.
func WithQuerier(q domain.Querier) Option {
	return func(o *options) {
		o.querier = q
	}
}

type Service struct {
	store  OutboxWriter
	topics event.TopicMap
	logger *zap.Logger

	newID func() string
	now   func() time.Time
}

func NewService(store OutboxWriter, topics event.TopicMap, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		topics: topics,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
}

// Publish validates one event and records it in the outbox. It returns only
// after the row is durably written; delivery to the broker happens later.
func (s *Service) Publish(ctx context.Context, eventType, eventData string, opts ...Option) (Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	eventType = strings.TrimSpace(eventType)
	eventData = strings.TrimSpace(eventData)
	if eventType == "" {
		return Result{}, &ValidationError{Reason: "event type is required"}
	}
	if eventData == "" {
		return Result{}, &ValidationError{Reason: "event data is required"}
	}

	t, known := event.ParseType(eventType)
	topic, routed := s.topics.Resolve(t)
	if !known || !routed {
		s.logger.Warn("Rejected event of unknown type", zap.String("event_type", eventType))
		return Result{}, &ValidationError{
			Reason: fmt.Sprintf("event type %q is not supported", eventType),
			Err:    ErrUnknownEventType,
		}
	}

	evt, err := event.Decode(t, []byte(eventData))
	if err != nil {
		return Result{}, &ValidationError{Reason: "event data could not be decoded", Err: err}
	}
	if fields := evt.Validate(); len(fields) > 0 {
		return Result{}, &ValidationError{Reason: "event data failed validation", Fields: fields}
	}

	if fields := checkLengths(o.correlationID, evt.PartitionKey()); len(fields) > 0 {
		return Result{}, &ValidationError{Reason: "event metadata is too long", Fields: fields}
	}

	eventID := s.newID()
	correlationID := o.correlationID
	if correlationID == "" {
		correlationID = s.newID()
	}
	partitionKey := evt.PartitionKey()
	if partitionKey == "" {
		partitionKey = eventID
	}
	occurredAt := s.now().UTC()

	envelope, err := event.NewEnvelope(eventID, correlationID, evt, occurredAt)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build envelope: %w", err)
	}
	payload, err := envelope.Marshal()
	if err != nil {
		return Result{}, fmt.Errorf("failed to serialize envelope: %w", err)
	}

	row := &domain.OutboxEvent{
		ID:            eventID,
		EventType:     string(t),
		Payload:       payload,
		Topic:         topic,
		PartitionKey:  partitionKey,
		CorrelationID: correlationID,
		OccurredAt:    occurredAt,
	}

	if o.querier != nil {
		err = s.store.CreateTx(ctx, o.querier, row)
	} else {
		err = s.store.Create(ctx, row)
	}
	if err != nil {
		s.logger.Error("Failed to save event to outbox",
			zap.String("event_id", eventID),
			zap.String("event_type", string(t)),
			zap.Error(err))
		return Result{}, fmt.Errorf("failed to save event to outbox: %w", err)
	}

	s.logger.Info("Event added to outbox",
		zap.String("event_id", eventID),
		zap.String("event_type", string(t)),
		zap.String("topic", topic),
		zap.String("correlation_id", correlationID))

	return Result{EventID: eventID, CorrelationID: correlationID}, nil
}

func checkLengths(correlationID, partitionKey string) []event.FieldError {
	var fields []event.FieldError
	if utf8.RuneCountInString(correlationID) > MaxCorrelationIDLength {
		fields = append(fields, event.FieldError{
			Field:   "correlation_id",
			Message: fmt.Sprintf("must be at most %d characters", MaxCorrelationIDLength),
		})
	}
	if utf8.RuneCountInString(partitionKey) > MaxPartitionKeyLength {
		fields = append(fields, event.FieldError{
			Field:   "partition_key",
			Message: fmt.Sprintf("must be at most %d characters", MaxPartitionKeyLength),
		})
	}
	return fields
}
