package event

import "sort"

const (
	TopicUserEvents    = "user-events"
	TopicOrderEvents   = "order-events"
	TopicPaymentEvents = "payment-events"
	TopicSystemEvents  = "system-events"
)

// TopicMap is the static event type to topic resolution table.
type TopicMap map[Type]string

func DefaultTopics() TopicMap {
	return TopicMap{
		TypeUserRegistered:     TopicUserEvents,
		TypeUserProfileUpdated: TopicUserEvents,
		TypeOrderCreated:       TopicOrderEvents,
		TypePaymentProcessed:   TopicPaymentEvents,
		TypePaymentFailed:      TopicPaymentEvents,
		TypeSystemAlertRaised:  TopicSystemEvents,
	}
}

func (m TopicMap) Resolve(t Type) (string, bool) {
	topic, ok := m[t]
	if !ok || topic == "" {
		return "", false
	}
	return topic, true
}

// Topics returns the distinct destination topics, sorted.
func (m TopicMap) Topics() []string {
	seen := make(map[string]struct{}, len(m))
	topics := make([]string, 0, len(m))
	for _, topic := range m {
		if topic == "" {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
