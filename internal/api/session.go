package api

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/meetwatch/internal/domain"
	"github.com/ashureev/meetwatch/internal/session"
	"github.com/ashureev/meetwatch/internal/telegram"
	"github.com/go-chi/chi/v5"
)

// SessionController is the slice of the session manager the HTTP layer uses.
type SessionController interface {
	RequestCode(ctx context.Context, userID int64, phone string) error
	ConfirmCode(ctx context.Context, userID int64, code string) error
	ConfirmPassword(ctx context.Context, userID int64, password string) error
	Resume(ctx context.Context, userID int64) (bool, error)
	Disconnect(ctx context.Context, userID int64) error
	IsAuthorized(userID int64) bool
	Status(userID int64) domain.AuthStatus
}

// SessionHandler handles login and session lifecycle endpoints.
type SessionHandler struct {
	*Handler
	sessions SessionController
	timeout  time.Duration
}

// NewSessionHandler creates a new session handler. timeout bounds each
// handshake call against the messaging network.
func NewSessionHandler(base *Handler, sessions SessionController, timeout time.Duration) *SessionHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SessionHandler{Handler: base, sessions: sessions, timeout: timeout}
}

// handshakeContext bounds a login call so a stalled network request cannot
// pin the HTTP worker.
func (h *SessionHandler) handshakeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Route("/{userID}", func(r chi.Router) {
			r.Post("/login/code", h.RequestCode)
			r.Post("/login/confirm", h.ConfirmLogin)
			r.Post("/resume", h.Resume)
			r.Delete("/session", h.Disconnect)
			r.Get("/status", h.Status)
		})
	})
}

// ListUsers returns all known users.
func (h *SessionHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.ListUsers(r.Context())
	if err != nil {
		slog.Error("Failed to list users", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// RequestCode starts a fresh login attempt by sending a confirmation code.
func (h *SessionHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Phone     string `json:"phone"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		Error(w, http.StatusBadRequest, "phone is required")
		return
	}

	ctx, cancel := h.handshakeContext(r)
	defer cancel()

	if err := h.sessions.RequestCode(ctx, userID, req.Phone); err != nil {
		writeLoginError(w, userID, err)
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		user = &domain.User{UserID: userID}
	}
	user.PhoneNumber = req.Phone
	if req.Username != "" {
		user.Username = req.Username
	}
	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if err := h.repo.UpsertUser(r.Context(), user); err != nil {
		slog.Warn("Failed to record user profile", "error", err, "user_id", userID)
	}

	JSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusAwaitingCode)})
}

// ConfirmLogin supplies either the confirmation code or the account
// password, exactly one of the two.
func (h *SessionHandler) ConfirmLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.Code == "") == (req.Password == "") {
		Error(w, http.StatusBadRequest, "exactly one of code or password is required")
		return
	}

	ctx, cancel := h.handshakeContext(r)
	defer cancel()

	var err error
	if req.Code != "" {
		err = h.sessions.ConfirmCode(ctx, userID, req.Code)
	} else {
		err = h.sessions.ConfirmPassword(ctx, userID, req.Password)
	}
	if err != nil {
		writeLoginError(w, userID, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": string(h.sessions.Status(userID))})
}

// Resume re-establishes monitoring from a persisted session.
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.handshakeContext(r)
	defer cancel()

	resumed, err := h.sessions.Resume(ctx, userID)
	if err != nil {
		writeLoginError(w, userID, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"resumed": resumed,
		"status":  string(h.sessions.Status(userID)),
	})
}

// Disconnect tears down the user's live connection and persisted session.
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Disconnect(r.Context(), userID); err != nil {
		slog.Error("Failed to disconnect session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// Status reports the user's login state and connection health.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	resp := map[string]interface{}{
		"user_id":    userID,
		"status":     string(h.sessions.Status(userID)),
		"authorized": h.sessions.IsAuthorized(userID),
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Warn("Failed to load user for status", "error", err, "user_id", userID)
	} else if user != nil {
		resp["phone_number"] = user.PhoneNumber
		resp["session_connected"] = user.SessionConnected
		resp["calendar_connected"] = user.CalendarConnected
	}

	JSON(w, http.StatusOK, resp)
}

// userIDParam parses the {userID} route parameter, writing a 400 on failure.
func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "userID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		Error(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return userID, true
}

// writeLoginError maps login failures onto stable error codes.
func writeLoginError(w http.ResponseWriter, userID int64, err error) {
	if wait, ok := telegram.AsFloodWait(err); ok {
		slog.Warn("Login rate limited", "user_id", userID, "wait", wait)
		JSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":        "rate_limited",
			"wait_seconds": int64(math.Ceil(wait.Seconds())),
		})
		return
	}

	switch {
	case errors.Is(err, telegram.ErrPhoneInvalid):
		Error(w, http.StatusBadRequest, "invalid_phone")
	case errors.Is(err, telegram.ErrCodeInvalid):
		Error(w, http.StatusBadRequest, "invalid_code")
	case errors.Is(err, telegram.ErrCodeExpired):
		Error(w, http.StatusGone, "code_expired")
	case errors.Is(err, telegram.ErrPasswordNeeded):
		Error(w, http.StatusUnauthorized, "needs_password")
	case errors.Is(err, telegram.ErrPasswordInvalid):
		Error(w, http.StatusUnauthorized, "wrong_password")
	case errors.Is(err, session.ErrNoPendingLogin):
		Error(w, http.StatusConflict, "no_pending_login")
	case errors.Is(err, telegram.ErrConnectionUnavailable):
		Error(w, http.StatusBadGateway, "connection_unavailable")
	default:
		slog.Error("Unexpected login failure", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "unexpected")
	}
}
