package event

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrMalformedEnvelope = errors.New("malformed event envelope")

// Envelope is the wire format stored in the outbox and sent to the broker.
type Envelope struct {
	EventID       string              `json:"event_id"`
	EventType     Type                `json:"event_type"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Data          jsoniter.RawMessage `json:"data"`
}

// Message is an inbound event after envelope parsing and typed decoding.
type Message struct {
	ID            string
	Type          Type
	CorrelationID string
	OccurredAt    time.Time
	Event         Event
}

func NewEnvelope(id, correlationID string, evt Event, occurredAt time.Time) (Envelope, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s data: %w", evt.Type(), err)
	}
	return Envelope{
		EventID:       id,
		EventType:     evt.Type(),
		CorrelationID: correlationID,
		OccurredAt:    occurredAt.UTC(),
		Data:          data,
	}, nil
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseMessage decodes a broker payload into a typed Message, dispatching on
// the embedded event_type.
func ParseMessage(payload []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return Message{}, fmt.Errorf("%w: event_id and event_type are required", ErrMalformedEnvelope)
	}
	if len(env.Data) == 0 {
		return Message{}, fmt.Errorf("%w: data is required", ErrMalformedEnvelope)
	}

	evt, err := Decode(env.EventType, env.Data)
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:            env.EventID,
		Type:          env.EventType,
		CorrelationID: env.CorrelationID,
		OccurredAt:    env.OccurredAt,
		Event:         evt,
	}, nil
}
