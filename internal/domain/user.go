// Package domain contains core domain types for the meetwatch application.
package domain

import (
	"time"
)

// AuthStatus describes where a user is in the login handshake.
type AuthStatus string

const (
	StatusUnauthenticated  AuthStatus = "unauthenticated"
	StatusAwaitingCode     AuthStatus = "awaiting_code"
	StatusAwaitingPassword AuthStatus = "awaiting_password"
	StatusAuthorized       AuthStatus = "authorized"
)

// User represents a chat user and their monitoring session state.
type User struct {
	UserID            int64     `json:"user_id"`
	PhoneNumber       string    `json:"phone_number,omitempty"`
	Username          string    `json:"username,omitempty"`
	FirstName         string    `json:"first_name,omitempty"`
	LastName          string    `json:"last_name,omitempty"`
	SessionConnected  bool      `json:"session_connected"`
	SessionRef        string    `json:"session_ref,omitempty"`
	CalendarConnected bool      `json:"calendar_connected"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasSession returns true if the user has a persisted monitoring session.
func (u *User) HasSession() bool {
	return u.SessionConnected && u.SessionRef != ""
}
