// Package telegram wraps the MTProto client library behind a narrow
// interface so the login state machine and lifecycle manager never touch the
// wire protocol directly, and so failures arrive as typed errors rather than
// message text.
package telegram

import (
	"context"
)

// IncomingMessage is a text message delivered on a live connection.
type IncomingMessage struct {
	ChatID int64
	Text   string
}

// MessageHandler receives incoming messages for an authorized connection.
// Handlers must not block; slow downstream work belongs in their own
// goroutines.
type MessageHandler func(ctx context.Context, msg IncomingMessage)

// Client is one user's connection to the messaging network. A Client is
// live (connected) from creation until Close; authorization is a separate
// property driven through the login handshake.
type Client interface {
	// SendCode requests a one-time login code for the phone number and
	// returns the verification token to pass back to SignIn.
	SendCode(ctx context.Context, phone string) (codeHash string, err error)

	// SignIn submits phone + code + verification token. Returns
	// ErrPasswordNeeded when the account has a second factor.
	SignIn(ctx context.Context, phone, code, codeHash string) error

	// SignInWithPassword completes a two-factor login.
	SignInWithPassword(ctx context.Context, password string) error

	// IsAuthorized asks the network whether this session is authorized.
	IsAuthorized(ctx context.Context) (bool, error)

	// OnNewMessage installs the incoming-message handler. At most one
	// handler is active; installing replaces the previous one.
	OnNewMessage(h MessageHandler)

	// Connected reports whether the underlying connection is still live.
	Connected() bool

	// Close tears the connection down and stops its background loop.
	Close() error
}

// Factory creates per-user clients. Session blobs are keyed by user ID so a
// recreated client resumes the persisted session when one exists.
type Factory interface {
	NewClient(ctx context.Context, userID int64) (Client, error)
}
