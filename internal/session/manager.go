// Package session drives the per-user login handshake against the messaging
// network and owns the set of live monitoring connections.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashureev/meetwatch/internal/detect"
	"github.com/ashureev/meetwatch/internal/domain"
	"github.com/ashureev/meetwatch/internal/notify"
	"github.com/ashureev/meetwatch/internal/sessionfile"
	"github.com/ashureev/meetwatch/internal/store"
	"github.com/ashureev/meetwatch/internal/telegram"
)

// ErrNoPendingLogin is returned when a code or password confirmation arrives
// with no login attempt in flight. The caller must restart from RequestCode.
var ErrNoPendingLogin = errors.New("session: no pending login")

// Config holds manager tuning knobs.
type Config struct {
	// CodeRequestInterval is the minimum gap between login-code requests
	// for one user before the local limiter reports a wait.
	CodeRequestInterval time.Duration

	// DownstreamTimeout bounds the fire-and-forget persistence and
	// notification calls on the message ingestion path.
	DownstreamTimeout time.Duration
}

// Manager serializes all handshake transitions and connection lifecycle per
// user ID. Operations on different users never contend: the shared map lock
// is held only to look entries up, and every transition runs under the
// entry's own mutex.
type Manager struct {
	factory  telegram.Factory
	blobs    *sessionfile.Store
	repo     store.Repository
	notifier notify.Notifier
	detector *detect.Detector

	codeInterval      time.Duration
	downstreamTimeout time.Duration

	mu    sync.RWMutex
	users map[int64]*userEntry
}

// pendingLogin bridges a code request and its confirmation. At most one
// exists per user; a new RequestCode replaces it wholesale so a token is
// never reused across phone numbers.
type pendingLogin struct {
	phone    string
	codeHash string
}

type userEntry struct {
	mu      sync.Mutex
	status  domain.AuthStatus
	client  telegram.Client
	pending *pendingLogin
	limiter *rate.Limiter
}

// NewManager wires the manager to its collaborators. The notifier is an
// interface so the manager never references the front end directly.
func NewManager(factory telegram.Factory, blobs *sessionfile.Store, repo store.Repository, notifier notify.Notifier, detector *detect.Detector, cfg Config) *Manager {
	if cfg.CodeRequestInterval <= 0 {
		cfg.CodeRequestInterval = 30 * time.Second
	}
	if cfg.DownstreamTimeout <= 0 {
		cfg.DownstreamTimeout = 10 * time.Second
	}
	return &Manager{
		factory:           factory,
		blobs:             blobs,
		repo:              repo,
		notifier:          notifier,
		detector:          detector,
		codeInterval:      cfg.CodeRequestInterval,
		downstreamTimeout: cfg.DownstreamTimeout,
		users:             make(map[int64]*userEntry),
	}
}

func (m *Manager) entry(userID int64) *userEntry {
	m.mu.RLock()
	e, ok := m.users[userID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.users[userID]; ok {
		return e
	}
	e = &userEntry{
		status:  domain.StatusUnauthenticated,
		limiter: rate.NewLimiter(rate.Every(m.codeInterval), 1),
	}
	m.users[userID] = e
	return e
}

// lookup returns the entry without creating one.
func (m *Manager) lookup(userID int64) *userEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[userID]
}

// RequestCode starts a fresh login attempt: any in-flight attempt and live
// connection for the user is discarded first, then a one-time code is
// requested for the phone number. Rate limits, local and remote, surface as
// *telegram.FloodWaitError carrying the mandated wait; they are never
// retried here.
func (m *Manager) RequestCode(ctx context.Context, userID int64, phone string) error {
	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	// At most one login attempt is ever live per user; starting over
	// unconditionally invalidates the previous token.
	m.teardownLocked(e, userID)

	if err := m.blobs.Remove(userID); err != nil {
		slog.Warn("failed to remove stale session blob", "user_id", userID, "error", err)
	}

	r := e.limiter.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		slog.Warn("code request locally rate limited", "user_id", userID, "wait", delay)
		return &telegram.FloodWaitError{Wait: delay}
	}

	client, err := m.connect(ctx, userID)
	if err != nil {
		return err
	}

	codeHash, err := client.SendCode(ctx, phone)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			slog.Warn("failed to close connection after code request failure", "user_id", userID, "error", closeErr)
		}
		if wait, ok := telegram.AsFloodWait(err); ok {
			slog.Warn("code request rate limited by network", "user_id", userID, "wait", wait)
		} else {
			slog.Error("code request failed", "user_id", userID, "error", err)
		}
		return err
	}

	e.client = client
	e.pending = &pendingLogin{phone: phone, codeHash: codeHash}
	e.status = domain.StatusAwaitingCode
	slog.Info("login code requested", "user_id", userID)
	return nil
}

// ConfirmCode submits the one-time code for the pending login.
//   - ErrNoPendingLogin: no attempt in flight, restart from RequestCode.
//   - telegram.ErrPasswordNeeded: account has a second factor; the pending
//     phone and token stay valid and ConfirmPassword completes the login.
//   - telegram.ErrCodeInvalid: state unchanged, the caller may resubmit.
//   - telegram.ErrCodeExpired: the token is dead and the attempt is torn
//     down; the caller must restart from RequestCode.
func (m *Manager) ConfirmCode(ctx context.Context, userID int64, code string) error {
	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil || e.pending == nil {
		return ErrNoPendingLogin
	}

	err := e.client.SignIn(ctx, e.pending.phone, code, e.pending.codeHash)
	switch {
	case err == nil:
		return m.completeLoginLocked(ctx, e, userID)
	case errors.Is(err, telegram.ErrPasswordNeeded):
		e.status = domain.StatusAwaitingPassword
		slog.Info("two-factor password required", "user_id", userID)
		return err
	case errors.Is(err, telegram.ErrCodeInvalid):
		slog.Warn("invalid login code", "user_id", userID)
		return err
	case errors.Is(err, telegram.ErrCodeExpired):
		m.teardownLocked(e, userID)
		m.notifier.LoginOutcome(ctx, userID, notify.OutcomeFailed)
		slog.Warn("login code expired, attempt discarded", "user_id", userID)
		return err
	default:
		slog.Error("sign in failed", "user_id", userID, "error", err)
		return err
	}
}

// ConfirmPassword completes a two-factor login. Valid only while the user is
// awaiting the password; a wrong password keeps the state so the caller may
// resubmit.
func (m *Manager) ConfirmPassword(ctx context.Context, userID int64, password string) error {
	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil || e.status != domain.StatusAwaitingPassword {
		return ErrNoPendingLogin
	}

	err := e.client.SignInWithPassword(ctx, password)
	switch {
	case err == nil:
		return m.completeLoginLocked(ctx, e, userID)
	case errors.Is(err, telegram.ErrPasswordInvalid):
		slog.Warn("wrong two-factor password", "user_id", userID)
		return err
	default:
		slog.Error("two-factor sign in failed", "user_id", userID, "error", err)
		return err
	}
}

// completeLoginLocked runs the shared completion steps: listener attach,
// durable status, pending cleanup, notification. The session blob itself is
// written by the client library into the sessionfile path.
func (m *Manager) completeLoginLocked(ctx context.Context, e *userEntry, userID int64) error {
	m.attachListener(e.client, userID)
	e.pending = nil
	e.status = domain.StatusAuthorized

	if err := m.repo.SetSessionStatus(ctx, userID, true, m.blobs.Path(userID)); err != nil {
		slog.Error("failed to persist session status", "user_id", userID, "error", err)
	}

	m.notifier.LoginOutcome(ctx, userID, notify.OutcomeAuthorized)
	slog.Info("user authorized", "user_id", userID)
	return nil
}

// IsAuthorized reports whether the user completed the handshake and the
// connection is still live.
func (m *Manager) IsAuthorized(userID int64) bool {
	e := m.lookup(userID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == domain.StatusAuthorized && e.client != nil && e.client.Connected()
}

// Status returns the user's position in the handshake.
func (m *Manager) Status(userID int64) domain.AuthStatus {
	e := m.lookup(userID)
	if e == nil {
		return domain.StatusUnauthenticated
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// connect opens a connection, retrying once on a transient failure before
// surfacing connection_unavailable.
func (m *Manager) connect(ctx context.Context, userID int64) (telegram.Client, error) {
	client, err := m.factory.NewClient(ctx, userID)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, telegram.ErrConnectionUnavailable) {
		return nil, err
	}

	slog.Warn("connection attempt failed, retrying once", "user_id", userID)
	client, err = m.factory.NewClient(ctx, userID)
	if err != nil {
		slog.Error("reconnect failed", "user_id", userID, "error", err)
		return nil, err
	}
	return client, nil
}

// teardownLocked closes the live connection (if any) and clears transient
// login state. It does not touch the persisted blob; RequestCode and
// Disconnect handle that themselves.
func (m *Manager) teardownLocked(e *userEntry, userID int64) {
	if e.client != nil {
		if err := e.client.Close(); err != nil {
			slog.Warn("failed to close connection", "user_id", userID, "error", err)
		}
		e.client = nil
	}
	e.pending = nil
	e.status = domain.StatusUnauthenticated
}
