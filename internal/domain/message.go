package domain

import (
	"time"
)

// DetectedMessage is an immutable record of a monitored message that matched
// the meeting vocabulary. Only the calendar event attachment is written after
// creation, when the user confirms the detection.
type DetectedMessage struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	ChatID          int64     `json:"chat_id"`
	Text            string    `json:"text"`
	Keywords        []string  `json:"keywords"`
	Confirmed       bool      `json:"confirmed"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
