package event

import (
	"errors"
	"fmt"
	"strings"
)

// Type is the discriminator carried by every event. Only the kinds listed in
// the catalog below are accepted anywhere in the pipeline.
type Type string

const (
	TypeUserRegistered     Type = "UserRegistered"
	TypeUserProfileUpdated Type = "UserProfileUpdated"
	TypeOrderCreated       Type = "OrderCreated"
	TypePaymentProcessed   Type = "PaymentProcessed"
	TypePaymentFailed      Type = "PaymentFailed"
	TypeSystemAlertRaised  Type = "SystemAlertRaised"
)

var ErrUnknownType = errors.New("unknown event type")

// Event is implemented by every strongly typed event payload.
type Event interface {
	Type() Type
	// PartitionKey returns the natural entity key, or "" when the event has none.
	PartitionKey() string
	Validate() []FieldError
}

// FieldError describes one invalid field of an event payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

type decodeFunc func(data []byte) (Event, error)

func decoderFor[T Event]() decodeFunc {
	return func(data []byte) (Event, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

var catalog = map[Type]decodeFunc{
	TypeUserRegistered:     decoderFor[UserRegistered](),
	TypeUserProfileUpdated: decoderFor[UserProfileUpdated](),
	TypeOrderCreated:       decoderFor[OrderCreated](),
	TypePaymentProcessed:   decoderFor[PaymentProcessed](),
	TypePaymentFailed:      decoderFor[PaymentFailed](),
	TypeSystemAlertRaised:  decoderFor[SystemAlertRaised](),
}

// ParseType normalizes raw and reports whether it names a known kind.
func ParseType(raw string) (Type, bool) {
	t := Type(strings.TrimSpace(raw))
	_, ok := catalog[t]
	return t, ok
}

// KnownTypes returns every kind in the catalog.
func KnownTypes() []Type {
	return []Type{
		TypeUserRegistered,
		TypeUserProfileUpdated,
		TypeOrderCreated,
		TypePaymentProcessed,
		TypePaymentFailed,
		TypeSystemAlertRaised,
	}
}

// Decode turns a serialized body into the typed event registered for t.
func Decode(t Type, data []byte) (Event, error) {
	decode, ok := catalog[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	evt, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return evt, nil
}

type fieldErrors []FieldError

func (fe *fieldErrors) require(field, value string) {
	if strings.TrimSpace(value) == "" {
		*fe = append(*fe, FieldError{Field: field, Message: "is required"})
	}
}

func (fe *fieldErrors) check(ok bool, field, message string) {
	if !ok {
		*fe = append(*fe, FieldError{Field: field, Message: message})
	}
}
