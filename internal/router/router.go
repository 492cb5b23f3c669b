package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"eventhub/internal/domain/event"
)

var (
	ErrEmptyEventType = errors.New("event type is required")
	ErrNilHandler     = errors.New("handler is required")
)

var (
	handlerInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_router_handler_invocations_total",
		Help: "Handler invocations by event type, handler and outcome",
	}, []string{"event_type", "handler", "outcome"})
	unroutedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_router_unrouted_events_total",
		Help: "Events that arrived with no registered handler",
	}, []string{"event_type"})
)

// Handler reacts to one delivered event. Returning an error marks only this
// invocation as failed.
type Handler func(ctx context.Context, msg event.Message) error

type registration struct {
	name    string
	handler Handler
}

// Builder collects subscriptions during startup. It is not safe for
// concurrent use.
type Builder struct {
	routes map[event.Type][]registration
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	return &Builder{
		routes: make(map[event.Type][]registration),
		logger: logger,
	}
}

// Subscribe appends a handler for eventType. Handlers of one type run in the
// order they were subscribed.
func (b *Builder) Subscribe(eventType event.Type, name string, handler Handler) error {
	eventType = event.Type(strings.TrimSpace(string(eventType)))
	if eventType == "" {
		return ErrEmptyEventType
	}
	if handler == nil {
		return fmt.Errorf("%w: %s for %s", ErrNilHandler, name, eventType)
	}
	if name == "" {
		name = fmt.Sprintf("%s#%d", eventType, len(b.routes[eventType])+1)
	}
	b.routes[eventType] = append(b.routes[eventType], registration{name: name, handler: handler})
	return nil
}

// Build freezes the subscriptions into a Router. Later Subscribe calls on the
// builder do not affect routers already built.
func (b *Builder) Build() *Router {
	routes := make(map[event.Type][]registration, len(b.routes))
	for t, regs := range b.routes {
		routes[t] = append([]registration(nil), regs...)
	}
	return &Router{routes: routes, logger: b.logger}
}

// Router dispatches events to their handlers. It has no mutation API and is
// safe for concurrent use.
type Router struct {
	routes map[event.Type][]registration
	logger *zap.Logger
}

// Route runs every handler registered for msg.Type sequentially and returns
// how many completed without error. A failing or panicking handler never
// stops the ones after it.
func (r *Router) Route(ctx context.Context, msg event.Message) int {
	regs := r.routes[msg.Type]
	if len(regs) == 0 {
		unroutedEvents.WithLabelValues(string(msg.Type)).Inc()
		r.logger.Info("No handlers registered for event type",
			zap.String("event_id", msg.ID),
			zap.String("event_type", string(msg.Type)))
		return 0
	}

	handled := 0
	for _, reg := range regs {
		if err := invoke(ctx, reg.handler, msg); err != nil {
			handlerInvocations.WithLabelValues(string(msg.Type), reg.name, "error").Inc()
			r.logger.Error("Event handler failed",
				zap.String("event_id", msg.ID),
				zap.String("event_type", string(msg.Type)),
				zap.String("handler", reg.name),
				zap.String("correlation_id", msg.CorrelationID),
				zap.Error(err))
			continue
		}
		handlerInvocations.WithLabelValues(string(msg.Type), reg.name, "ok").Inc()
		handled++
	}
	return handled
}

func invoke(ctx context.Context, h Handler, msg event.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, msg)
}

// Types lists the event types that have at least one handler, sorted.
func (r *Router) Types() []event.Type {
	types := make([]event.Type, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (r *Router) HandlerCount(t event.Type) int {
	return len(r.routes[t])
}
