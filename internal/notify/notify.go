// Package notify delivers session and detection events to the chat-bot
// front end. The session layer depends only on the Notifier interface, never
// on the concrete front-end transport.
package notify

import (
	"context"
)

// Login outcomes reported to the front end.
const (
	OutcomeAuthorized   = "authorized"
	OutcomeDisconnected = "disconnected"
	OutcomeFailed       = "failed"
)

// MeetingDetection describes a monitored message that matched the meeting
// vocabulary.
type MeetingDetection struct {
	UserID    int64    `json:"user_id"`
	ChatID    int64    `json:"chat_id"`
	MessageID int64    `json:"message_id"`
	Text      string   `json:"text"`
	Keywords  []string `json:"keywords"`
}

// Notifier is the sink for events the front end turns into user-facing
// messages.
type Notifier interface {
	MeetingDetected(ctx context.Context, d MeetingDetection)
	LoginOutcome(ctx context.Context, userID int64, outcome string)
}
