package events_http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"eventhub/internal/app/publish"
	"eventhub/internal/domain"
	"eventhub/internal/domain/event"
	"eventhub/internal/monitor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	HeaderCorrelationID = "X-Correlation-ID"

	maxRequestBodyBytes = 1 << 20

	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

type Publisher interface {
	Publish(ctx context.Context, eventType, eventData string, opts ...publish.Option) (publish.Result, error)
}

type Monitor interface {
	PendingCount(ctx context.Context) (int, error)
	PendingByType(ctx context.Context) (map[string]int, error)
	OldestPendingAge(ctx context.Context) (time.Duration, bool, error)
	DeadLettered(ctx context.Context, limit int) ([]monitor.EventView, error)
	Event(ctx context.Context, id string) (monitor.EventView, error)
	Snapshot(ctx context.Context) (monitor.Snapshot, error)
}

type EventHandler struct {
	publisher Publisher
	monitor   Monitor
	logger    *zap.Logger
}

func NewEventHandler(p Publisher, m Monitor, l *zap.Logger) *EventHandler {
	return &EventHandler{publisher: p, monitor: m, logger: l}
}

// PublishEventRequest carries event_data either as a JSON string holding the
// serialized body or as the JSON body itself.
type PublishEventRequest struct {
	EventType string              `json:"event_type"`
	EventData jsoniter.RawMessage `json:"event_data"`
}

type PublishEventResponse struct {
	Success       bool               `json:"success"`
	EventID       string             `json:"event_id,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Message       string             `json:"message"`
	Errors        []event.FieldError `json:"errors,omitempty"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type OldestPendingResponse struct {
	Pending bool              `json:"pending"`
	Age     *monitor.Duration `json:"age,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func eventData(raw jsoniter.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

func (h *EventHandler) PublishEventHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, PublishEventResponse{Message: "Request body too large"})
			return
		}
		h.logger.Warn("Failed to read PublishEvent request body", zap.Error(err))
		h.writeJSON(w, http.StatusBadRequest, PublishEventResponse{Message: "Invalid request body"})
		return
	}

	var req PublishEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Warn("Invalid request body for PublishEvent", zap.Error(err))
		h.writeJSON(w, http.StatusBadRequest, PublishEventResponse{Message: "Invalid request body"})
		return
	}

	var opts []publish.Option
	if corr := r.Header.Get(HeaderCorrelationID); corr != "" {
		opts = append(opts, publish.WithCorrelationID(corr))
	}

	res, err := h.publisher.Publish(r.Context(), req.EventType, eventData(req.EventData), opts...)
	if err != nil {
		var verr *publish.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, PublishEventResponse{
				Message: verr.Error(),
				Errors:  verr.Fields,
			})
			return
		}
		h.logger.Error("Failed to publish event", zap.String("event_type", req.EventType), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, PublishEventResponse{Message: "Internal server error"})
		return
	}

	w.Header().Set(HeaderCorrelationID, res.CorrelationID)
	h.writeJSON(w, http.StatusAccepted, PublishEventResponse{
		Success:       true,
		EventID:       res.EventID,
		CorrelationID: res.CorrelationID,
		Message:       "Event accepted for delivery",
	})
}

func (h *EventHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.monitor.Snapshot(r.Context())
	if err != nil {
		h.internalError(w, "Failed to build outbox snapshot", err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *EventHandler) PendingCountHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.monitor.PendingCount(r.Context())
	if err != nil {
		h.internalError(w, "Failed to count pending events", err)
		return
	}
	h.writeJSON(w, http.StatusOK, CountResponse{Count: count})
}

func (h *EventHandler) PendingByTypeHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := h.monitor.PendingByType(r.Context())
	if err != nil {
		h.internalError(w, "Failed to count pending events by type", err)
		return
	}
	h.writeJSON(w, http.StatusOK, counts)
}

func (h *EventHandler) OldestPendingHandler(w http.ResponseWriter, r *http.Request) {
	age, ok, err := h.monitor.OldestPendingAge(r.Context())
	if err != nil {
		h.internalError(w, "Failed to get oldest pending event", err)
		return
	}
	resp := OldestPendingResponse{Pending: ok}
	if ok {
		resp.Age = monitor.NewDuration(age)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *EventHandler) DeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxDeadLetterLimit)
	}

	views, err := h.monitor.DeadLettered(r.Context(), limit)
	if err != nil {
		h.internalError(w, "Failed to list dead-lettered events", err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *EventHandler) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Event ID is required"})
		return
	}

	view, err := h.monitor.Event(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Event not found"})
			return
		}
		h.internalError(w, "Failed to get outbox event", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *EventHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
}

func (h *EventHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
