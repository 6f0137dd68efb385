package session

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/meetwatch/internal/domain"
	"github.com/ashureev/meetwatch/internal/notify"
)

// Resume re-establishes an authorized connection from the persisted session
// blob, without repeating the handshake. Returns false when no blob exists
// or the network no longer accepts it; the caller falls back to RequestCode.
func (m *Manager) Resume(ctx context.Context, userID int64) (bool, error) {
	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == domain.StatusAuthorized && e.client != nil && e.client.Connected() {
		return true, nil
	}
	if !m.blobs.Exists(userID) {
		return false, nil
	}

	// Discard any half-done handshake before reopening from the blob.
	m.teardownLocked(e, userID)

	client, err := m.connect(ctx, userID)
	if err != nil {
		return false, err
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil || !authorized {
		if closeErr := client.Close(); closeErr != nil {
			slog.Warn("failed to close connection after resume rejection", "user_id", userID, "error", closeErr)
		}
		if err != nil {
			slog.Warn("resume authorization check failed", "user_id", userID, "error", err)
		} else {
			slog.Info("persisted session no longer authorized", "user_id", userID)
		}
		return false, nil
	}

	m.attachListener(client, userID)
	e.client = client
	e.pending = nil
	e.status = domain.StatusAuthorized

	if err := m.repo.SetSessionStatus(ctx, userID, true, m.blobs.Path(userID)); err != nil {
		slog.Error("failed to persist session status", "user_id", userID, "error", err)
	}

	slog.Info("session resumed", "user_id", userID)
	return true, nil
}

// ResumeAll sweeps the user table at startup and resumes every session the
// store believes is connected. Failures are logged per user and do not stop
// the sweep.
func (m *Manager) ResumeAll(ctx context.Context) {
	users, err := m.repo.ListUsers(ctx)
	if err != nil {
		slog.Error("resume sweep failed to list users", "error", err)
		return
	}

	resumed := 0
	for _, u := range users {
		if !u.SessionConnected {
			continue
		}
		ok, err := m.Resume(ctx, u.UserID)
		if err != nil {
			slog.Warn("resume sweep: resume failed", "user_id", u.UserID, "error", err)
			continue
		}
		if !ok {
			slog.Info("resume sweep: session stale, user must log in again", "user_id", u.UserID)
			if err := m.repo.SetSessionStatus(ctx, u.UserID, false, ""); err != nil {
				slog.Error("resume sweep: failed to clear session status", "user_id", u.UserID, "error", err)
			}
			continue
		}
		resumed++
	}
	slog.Info("resume sweep complete", "resumed", resumed, "total", len(users))
}

// Disconnect closes the user's connection, deletes the persisted blob and
// marks the user unauthenticated. Disconnecting a user with nothing live is
// a no-op success.
func (m *Manager) Disconnect(ctx context.Context, userID int64) error {
	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	hadSession := e.client != nil || m.blobs.Exists(userID)

	m.teardownLocked(e, userID)

	if err := m.blobs.Remove(userID); err != nil {
		return err
	}

	if !hadSession {
		return nil
	}

	if err := m.repo.SetSessionStatus(ctx, userID, false, ""); err != nil {
		slog.Error("failed to persist disconnect", "user_id", userID, "error", err)
	}
	m.notifier.LoginOutcome(ctx, userID, notify.OutcomeDisconnected)
	slog.Info("user disconnected", "user_id", userID)
	return nil
}

// ShutdownAll closes every live connection concurrently, best-effort.
// Per-user failures are logged, never propagated, so a stuck connection
// cannot abort process shutdown. Safe to call while handshakes are in
// flight; each teardown waits its turn on the entry lock.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	entries := make(map[int64]*userEntry, len(m.users))
	for id, e := range m.users {
		entries[id] = e
	}
	m.mu.Unlock()

	g := new(errgroup.Group)
	for userID, e := range entries {
		userID, e := userID, e
		g.Go(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.client == nil {
				return nil
			}
			if err := e.client.Close(); err != nil {
				slog.Warn("shutdown: failed to close connection", "user_id", userID, "error", err)
			}
			e.client = nil
			e.pending = nil
			e.status = domain.StatusUnauthenticated
			return nil
		})
	}
	_ = g.Wait()
	slog.Info("all connections closed", "count", len(entries))
}
