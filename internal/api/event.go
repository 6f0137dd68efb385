package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/meetwatch/internal/calendar"
	"github.com/go-chi/chi/v5"
)

// EventHandler handles calendar event management endpoints.
type EventHandler struct {
	*Handler
	cal calendar.Service
}

// NewEventHandler creates a new event handler. cal may be nil when no
// calendar is configured; all endpoints then return 503.
func NewEventHandler(base *Handler, cal calendar.Service) *EventHandler {
	return &EventHandler{Handler: base, cal: cal}
}

// RegisterRoutes registers event routes.
func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Route("/{eventID}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Put("/", h.UpdateEvent)
			r.Delete("/", h.DeleteEvent)
		})
	})
}

func (h *EventHandler) calendarReady(w http.ResponseWriter) bool {
	if h.cal == nil {
		Error(w, http.StatusServiceUnavailable, "calendar_unavailable")
		return false
	}
	return true
}

// ListEvents returns upcoming events, optionally bounded by from/to query
// parameters (RFC 3339).
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if !h.calendarReady(w) {
		return
	}

	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid from time")
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid to time")
			return
		}
		to = t
	}

	var maxResults int64 = 10
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid max")
			return
		}
		maxResults = n
	}

	events, err := h.cal.ListEvents(r.Context(), from, to, maxResults)
	if err != nil {
		slog.Error("Failed to list calendar events", "error", err)
		Error(w, http.StatusBadGateway, "calendar_error")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// GetEvent returns a single calendar event.
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	if !h.calendarReady(w) {
		return
	}
	eventID := chi.URLParam(r, "eventID")

	event, err := h.cal.GetEvent(r.Context(), eventID)
	if err != nil {
		slog.Error("Failed to get calendar event", "error", err, "event_id", eventID)
		Error(w, http.StatusBadGateway, "calendar_error")
		return
	}
	if event == nil {
		Error(w, http.StatusNotFound, "event not found")
		return
	}
	JSON(w, http.StatusOK, event)
}

// UpdateEvent replaces the title, description and times of an event.
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	if !h.calendarReady(w) {
		return
	}
	eventID := chi.URLParam(r, "eventID")

	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
	}
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Start.IsZero() || !req.End.After(req.Start) {
		Error(w, http.StatusBadRequest, "start must precede end")
		return
	}

	event, err := h.cal.UpdateEvent(r.Context(), eventID, req.Title, req.Description, req.Start, req.End)
	if err != nil {
		slog.Error("Failed to update calendar event", "error", err, "event_id", eventID)
		Error(w, http.StatusBadGateway, "calendar_error")
		return
	}
	JSON(w, http.StatusOK, event)
}

// DeleteEvent removes a calendar event. Deleting a missing event succeeds.
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if !h.calendarReady(w) {
		return
	}
	eventID := chi.URLParam(r, "eventID")

	if err := h.cal.DeleteEvent(r.Context(), eventID); err != nil {
		slog.Error("Failed to delete calendar event", "error", err, "event_id", eventID)
		Error(w, http.StatusBadGateway, "calendar_error")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
