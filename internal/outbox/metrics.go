package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_outbox_events_published_total",
		Help: "The total number of outbox events published to the broker",
	}, []string{"event_type"})
	publishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_outbox_publish_errors_total",
		Help: "The total number of failed publish attempts",
	}, []string{"event_type"})
	eventsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_outbox_events_dead_lettered_total",
		Help: "The total number of outbox events that exhausted their retry budget",
	}, []string{"event_type"})
	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventhub_outbox_pass_duration_seconds",
		Help:    "Duration of one outbox publisher pass",
		Buckets: prometheus.DefBuckets,
	})
	tickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventhub_outbox_tick_errors_total",
		Help: "The total number of publisher ticks that failed or panicked",
	})
)
