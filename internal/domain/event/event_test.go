package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	t.Parallel()

	typ, ok := ParseType("  UserRegistered ")
	require.True(t, ok)
	assert.Equal(t, TypeUserRegistered, typ)

	_, ok = ParseType("Bogus")
	assert.False(t, ok)
}

func TestDecode_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := Decode("Bogus", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestDecode_MalformedBody(t *testing.T) {
	t.Parallel()

	_, err := Decode(TypeOrderCreated, []byte(`{"order_id":`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		typ        Type
		body       string
		wantFields []string
	}{
		{
			name: "valid user registered",
			typ:  TypeUserRegistered,
			body: `{"user_id":"u-1","email":"a@example.com"}`,
		},
		{
			name:       "user registered without email",
			typ:        TypeUserRegistered,
			body:       `{"user_id":"u-1"}`,
			wantFields: []string{"email"},
		},
		{
			name:       "user registered with bad email",
			typ:        TypeUserRegistered,
			body:       `{"user_id":"u-1","email":"nope"}`,
			wantFields: []string{"email"},
		},
		{
			name:       "profile update without changes",
			typ:        TypeUserProfileUpdated,
			body:       `{"user_id":"u-1"}`,
			wantFields: []string{"changed_fields"},
		},
		{
			name:       "order with several problems",
			typ:        TypeOrderCreated,
			body:       `{"order_id":"o-1","amount":0,"currency":"EURO"}`,
			wantFields: []string{"user_id", "amount", "currency"},
		},
		{
			name:       "payment processed missing transaction",
			typ:        TypePaymentProcessed,
			body:       `{"payment_id":"p-1","order_id":"o-1","amount":10}`,
			wantFields: []string{"transaction_id"},
		},
		{
			name:       "payment failed without reason",
			typ:        TypePaymentFailed,
			body:       `{"order_id":"o-1"}`,
			wantFields: []string{"reason"},
		},
		{
			name:       "alert with unknown severity",
			typ:        TypeSystemAlertRaised,
			body:       `{"source":"billing","severity":"loud","message":"x"}`,
			wantFields: []string{"severity"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			evt, err := Decode(tt.typ, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.typ, evt.Type())

			var got []string
			for _, fe := range evt.Validate() {
				got = append(got, fe.Field)
			}
			assert.Equal(t, tt.wantFields, got)
		})
	}
}

func TestPartitionKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "u-1", UserRegistered{UserID: "u-1"}.PartitionKey())
	assert.Equal(t, "o-9", PaymentFailed{OrderID: "o-9"}.PartitionKey())
	assert.Empty(t, SystemAlertRaised{Source: "x"}.PartitionKey())
}

func TestCatalogAndTopicsCoverEachOther(t *testing.T) {
	t.Parallel()

	topics := DefaultTopics()
	for _, typ := range KnownTypes() {
		_, known := ParseType(string(typ))
		assert.True(t, known, typ)

		_, mapped := topics.Resolve(typ)
		assert.True(t, mapped, typ)
	}
	assert.Equal(t, []string{TopicOrderEvents, TopicPaymentEvents, TopicSystemEvents, TopicUserEvents}, topics.Topics())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	occurred := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	env, err := NewEnvelope("evt-1", "corr-1", UserRegistered{UserID: "u-1", Email: "a@example.com"}, occurred)
	require.NoError(t, err)

	payload, err := env.Marshal()
	require.NoError(t, err)

	msg, err := ParseMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", msg.ID)
	assert.Equal(t, "corr-1", msg.CorrelationID)
	assert.Equal(t, TypeUserRegistered, msg.Type)
	assert.True(t, occurred.Equal(msg.OccurredAt))

	registered, ok := msg.Event.(UserRegistered)
	require.True(t, ok)
	assert.Equal(t, "a@example.com", registered.Email)
}

func TestParseMessage_Rejects(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload string
		target  error
	}{
		"not json":     {payload: `not-json`, target: ErrMalformedEnvelope},
		"missing type": {payload: `{"event_id":"e","data":{}}`, target: ErrMalformedEnvelope},
		"missing data": {payload: `{"event_id":"e","event_type":"OrderCreated"}`, target: ErrMalformedEnvelope},
		"unknown type": {payload: `{"event_id":"e","event_type":"Bogus","data":{}}`, target: ErrUnknownType},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseMessage([]byte(tt.payload))
			require.ErrorIs(t, err, tt.target)
		})
	}
}
