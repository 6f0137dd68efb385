package domain

import (
	"time"
)

// CalendarEvent is the local bookkeeping record for an event created in the
// external calendar on behalf of a user.
type CalendarEvent struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	EventID     string    `json:"event_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	HTMLLink    string    `json:"html_link,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
