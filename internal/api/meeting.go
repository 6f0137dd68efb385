package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/meetwatch/internal/calendar"
	"github.com/ashureev/meetwatch/internal/domain"
	"github.com/go-chi/chi/v5"
)

// MeetingHandler handles detected-message endpoints, turning confirmed
// detections into calendar events.
type MeetingHandler struct {
	*Handler
	cal calendar.Service
}

// NewMeetingHandler creates a new meeting handler. cal may be nil when no
// calendar is configured; confirmation then returns 503.
func NewMeetingHandler(base *Handler, cal calendar.Service) *MeetingHandler {
	return &MeetingHandler{Handler: base, cal: cal}
}

// RegisterRoutes registers meeting routes.
func (h *MeetingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/messages/{messageID}", func(r chi.Router) {
		r.Get("/", h.GetMessage)
		r.Post("/confirm", h.Confirm)
	})
}

// GetMessage returns a single detected message.
func (h *MeetingHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	msg, err := h.repo.GetDetectedMessage(r.Context(), messageID)
	if err != nil {
		slog.Error("Failed to load detected message", "error", err, "message_id", messageID)
		Error(w, http.StatusInternalServerError, "failed to load message")
		return
	}
	if msg == nil {
		Error(w, http.StatusNotFound, "message not found")
		return
	}

	JSON(w, http.StatusOK, msg)
}

// Confirm schedules a calendar event from a detected message and marks the
// detection confirmed.
func (h *MeetingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	if h.cal == nil {
		Error(w, http.StatusServiceUnavailable, "calendar_unavailable")
		return
	}

	ctx := r.Context()
	msg, err := h.repo.GetDetectedMessage(ctx, messageID)
	if err != nil {
		slog.Error("Failed to load detected message", "error", err, "message_id", messageID)
		Error(w, http.StatusInternalServerError, "failed to load message")
		return
	}
	if msg == nil {
		Error(w, http.StatusNotFound, "message not found")
		return
	}
	if msg.Confirmed {
		JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "already_confirmed",
			"event_id": msg.CalendarEventID,
		})
		return
	}

	withName := strconv.FormatInt(msg.ChatID, 10)
	if user, err := h.repo.GetUser(ctx, msg.UserID); err == nil && user != nil {
		if user.FirstName != "" {
			withName = user.FirstName
		} else if user.Username != "" {
			withName = user.Username
		}
	}

	event, err := h.cal.CreateMeetingFromMessage(ctx, msg.Text, withName)
	if err != nil {
		slog.Error("Failed to create calendar event", "error", err, "message_id", messageID)
		Error(w, http.StatusBadGateway, "calendar_error")
		return
	}

	if err := h.repo.ConfirmDetectedMessage(ctx, messageID, event.ID); err != nil {
		slog.Error("Failed to mark message confirmed", "error", err, "message_id", messageID)
		Error(w, http.StatusInternalServerError, "failed to confirm message")
		return
	}

	record := &domain.CalendarEvent{
		UserID:      msg.UserID,
		EventID:     event.ID,
		Title:       event.Title,
		Description: event.Description,
		StartTime:   event.StartTime,
		EndTime:     event.EndTime,
		HTMLLink:    event.HTMLLink,
	}
	if err := h.repo.SaveCalendarEvent(ctx, record); err != nil {
		slog.Warn("Failed to record calendar event", "error", err, "event_id", event.ID)
	}

	slog.Info("Meeting scheduled from message",
		"message_id", messageID, "user_id", msg.UserID, "event_id", event.ID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "confirmed",
		"event_id":  event.ID,
		"html_link": event.HTMLLink,
		"start":     event.StartTime,
		"end":       event.EndTime,
	})
}

// messageIDParam parses the {messageID} route parameter.
func messageIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "messageID")
	messageID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || messageID <= 0 {
		Error(w, http.StatusBadRequest, "invalid message id")
		return 0, false
	}
	return messageID, true
}
