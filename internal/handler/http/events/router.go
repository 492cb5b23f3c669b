package events_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func RegisterRoutes(r chi.Router, p Publisher, m Monitor, l *zap.Logger) {
	handler := NewEventHandler(p, m, l.With(zap.String("component", "EventsHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("eventhub is healthy!"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/events", handler.PublishEventHandler)

	r.Route("/outbox", func(r chi.Router) {
		r.Get("/stats", handler.StatsHandler)
		r.Get("/pending/count", handler.PendingCountHandler)
		r.Get("/pending/by-type", handler.PendingByTypeHandler)
		r.Get("/pending/oldest", handler.OldestPendingHandler)
		r.Get("/dead-letters", handler.DeadLettersHandler)
		r.Get("/events/{id}", handler.GetEventHandler)
	})
}
