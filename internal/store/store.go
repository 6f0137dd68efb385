// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/meetwatch/internal/domain"
)

// Repository defines the interface for persisting users, detected messages
// and calendar event records.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when
	// the user does not exist.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// ListUsers returns all known users.
	ListUsers(ctx context.Context) ([]*domain.User, error)

	// SetSessionStatus records whether a user has an authorized monitoring
	// session and where its blob lives.
	SetSessionStatus(ctx context.Context, userID int64, connected bool, sessionRef string) error

	// SetCalendarStatus records whether a user has connected their calendar.
	SetCalendarStatus(ctx context.Context, userID int64, connected bool) error

	// SaveDetectedMessage stores a keyword match and returns its ID.
	SaveDetectedMessage(ctx context.Context, userID, chatID int64, text string, keywords []string) (int64, error)

	// GetDetectedMessage retrieves a detected message by ID. Returns
	// (nil, nil) when it does not exist.
	GetDetectedMessage(ctx context.Context, messageID int64) (*domain.DetectedMessage, error)

	// ConfirmDetectedMessage marks a detection confirmed and attaches the
	// calendar event it produced.
	ConfirmDetectedMessage(ctx context.Context, messageID int64, eventID string) error

	// SaveCalendarEvent stores the local record of a created calendar event.
	SaveCalendarEvent(ctx context.Context, event *domain.CalendarEvent) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
