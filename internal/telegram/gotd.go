package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gotd/td/session"
	gotd "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/ashureev/meetwatch/internal/sessionfile"
)

// GotdFactory builds per-user MTProto clients backed by gotd/td, with
// session blobs persisted through the sessionfile store.
type GotdFactory struct {
	apiID          int
	apiHash        string
	blobs          *sessionfile.Store
	connectTimeout time.Duration
}

// NewGotdFactory creates a Factory for the given application credentials.
func NewGotdFactory(apiID int, apiHash string, blobs *sessionfile.Store, connectTimeout time.Duration) *GotdFactory {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	return &GotdFactory{
		apiID:          apiID,
		apiHash:        apiHash,
		blobs:          blobs,
		connectTimeout: connectTimeout,
	}
}

// NewClient opens a connection for the user, resuming the persisted session
// blob when one exists. The connection runs on its own background goroutine
// until Close.
func (f *GotdFactory) NewClient(ctx context.Context, userID int64) (Client, error) {
	c := &gotdClient{
		userID: userID,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.deliver(ctx, u.Message)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.deliver(ctx, u.Message)
		return nil
	})

	c.client = gotd.NewClient(f.apiID, f.apiHash, gotd.Options{
		SessionStorage: &session.FileStorage{Path: f.blobs.Path(userID)},
		UpdateHandler:  dispatcher,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		defer close(c.done)
		err := c.client.Run(runCtx, func(ctx context.Context) error {
			close(c.ready)
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("telegram connection terminated", "user_id", userID, "error", err)
		}
	}()

	select {
	case <-c.ready:
		return c, nil
	case <-c.done:
		cancel()
		return nil, ErrConnectionUnavailable
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, ctx.Err()
	case <-time.After(f.connectTimeout):
		cancel()
		<-c.done
		return nil, ErrConnectionUnavailable
	}
}

// gotdClient adapts *gotd.Client to the Client interface.
type gotdClient struct {
	userID int64
	client *gotd.Client
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	mu      sync.RWMutex
	handler MessageHandler
}

func (c *gotdClient) SendCode(ctx context.Context, phone string) (string, error) {
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", mapAuthError(err)
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("telegram: unexpected sent code type %T", sent)
	}
	return code.PhoneCodeHash, nil
}

func (c *gotdClient) SignIn(ctx context.Context, phone, code, codeHash string) error {
	if _, err := c.client.Auth().SignIn(ctx, phone, code, codeHash); err != nil {
		return mapAuthError(err)
	}
	return nil
}

func (c *gotdClient) SignInWithPassword(ctx context.Context, password string) error {
	if _, err := c.client.Auth().Password(ctx, password); err != nil {
		return mapAuthError(err)
	}
	return nil
}

func (c *gotdClient) IsAuthorized(ctx context.Context) (bool, error) {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, mapAuthError(err)
	}
	return status.Authorized, nil
}

func (c *gotdClient) OnNewMessage(h MessageHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *gotdClient) Connected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *gotdClient) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// deliver forwards an incoming text message to the installed handler.
// Outgoing and non-text messages are dropped here so the listener path only
// ever sees monitorable input.
func (c *gotdClient) deliver(ctx context.Context, msg tg.MessageClass) {
	m, ok := msg.(*tg.Message)
	if !ok || m.Out || m.Message == "" {
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return
	}

	handler(ctx, IncomingMessage{
		ChatID: peerID(m.PeerID),
		Text:   m.Message,
	})
}

func peerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	default:
		return 0
	}
}

// mapAuthError converts gotd errors into this package's typed taxonomy.
// Classification uses the library's typed RPC error helpers, never message
// text.
func mapAuthError(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWaitError{Wait: wait}
	}
	switch {
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return ErrPasswordNeeded
	case tgerr.Is(err, "PHONE_NUMBER_INVALID"):
		return ErrPhoneInvalid
	case tgerr.Is(err, "PHONE_CODE_INVALID"):
		return ErrCodeInvalid
	case tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		return ErrCodeExpired
	case tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return ErrPasswordInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return ErrConnectionUnavailable
	}
	return err
}
