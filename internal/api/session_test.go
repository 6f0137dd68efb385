package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/meetwatch/internal/domain"
	"github.com/ashureev/meetwatch/internal/session"
	"github.com/ashureev/meetwatch/internal/telegram"
	"github.com/go-chi/chi/v5"
)

// fakeController scripts session manager behavior per method.
type fakeController struct {
	mu          sync.Mutex
	requestErr  error
	codeErr     error
	passwordErr error
	resumeOK    bool
	resumeErr   error
	status      domain.AuthStatus

	lastPhone    string
	lastCode     string
	lastPassword string
	disconnected []int64
}

func (c *fakeController) RequestCode(ctx context.Context, userID int64, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPhone = phone
	return c.requestErr
}

func (c *fakeController) ConfirmCode(ctx context.Context, userID int64, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCode = code
	return c.codeErr
}

func (c *fakeController) ConfirmPassword(ctx context.Context, userID int64, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPassword = password
	return c.passwordErr
}

func (c *fakeController) Resume(ctx context.Context, userID int64) (bool, error) {
	return c.resumeOK, c.resumeErr
}

func (c *fakeController) Disconnect(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = append(c.disconnected, userID)
	return nil
}

func (c *fakeController) IsAuthorized(userID int64) bool {
	return c.status == domain.StatusAuthorized
}

func (c *fakeController) Status(userID int64) domain.AuthStatus {
	if c.status == "" {
		return domain.StatusUnauthenticated
	}
	return c.status
}

func newSessionRouter(ctrl *fakeController, repo *memRepo) chi.Router {
	r := chi.NewRouter()
	h := NewSessionHandler(NewHandler(repo), ctrl, time.Second)
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRequestCodeEndpoint(t *testing.T) {
	ctrl := &fakeController{}
	repo := newMemRepo()
	router := newSessionRouter(ctrl, repo)

	rec := doJSON(t, router, http.MethodPost, "/api/users/42/login/code", map[string]string{"phone": "+15550001"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ctrl.lastPhone != "+15550001" {
		t.Errorf("phone = %q", ctrl.lastPhone)
	}
	user, _ := repo.GetUser(context.Background(), 42)
	if user == nil || user.PhoneNumber != "+15550001" {
		t.Errorf("phone not recorded: %+v", user)
	}
}

func TestRequestCodeRecordsProfile(t *testing.T) {
	ctrl := &fakeController{}
	repo := newMemRepo()
	router := newSessionRouter(ctrl, repo)

	rec := doJSON(t, router, http.MethodPost, "/api/users/42/login/code", map[string]string{
		"phone":      "+15550001",
		"username":   "alice",
		"first_name": "Alice",
		"last_name":  "Doe",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	user, _ := repo.GetUser(context.Background(), 42)
	if user == nil {
		t.Fatal("user should be recorded")
	}
	if user.Username != "alice" || user.FirstName != "Alice" || user.LastName != "Doe" {
		t.Errorf("profile not recorded: %+v", user)
	}

	// A later phone-only restart must not wipe the recorded profile.
	rec = doJSON(t, router, http.MethodPost, "/api/users/42/login/code", map[string]string{
		"phone": "+15550002",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("second request: status = %d", rec.Code)
	}
	user, _ = repo.GetUser(context.Background(), 42)
	if user.FirstName != "Alice" || user.PhoneNumber != "+15550002" {
		t.Errorf("profile lost on restart: %+v", user)
	}
}

func TestRequestCodeRequiresPhone(t *testing.T) {
	router := newSessionRouter(&fakeController{}, newMemRepo())

	rec := doJSON(t, router, http.MethodPost, "/api/users/42/login/code", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRequestCodeInvalidUserID(t *testing.T) {
	router := newSessionRouter(&fakeController{}, newMemRepo())

	rec := doJSON(t, router, http.MethodPost, "/api/users/abc/login/code", map[string]string{"phone": "+1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRequestCodeFloodWait(t *testing.T) {
	ctrl := &fakeController{requestErr: &telegram.FloodWaitError{Wait: 42 * time.Second}}
	router := newSessionRouter(ctrl, newMemRepo())

	rec := doJSON(t, router, http.MethodPost, "/api/users/42/login/code", map[string]string{"phone": "+1"})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["error"] != "rate_limited" {
		t.Errorf("error = %v", body["error"])
	}
	if body["wait_seconds"].(float64) != 42 {
		t.Errorf("wait_seconds = %v, want 42", body["wait_seconds"])
	}
}

func TestConfirmRequiresExactlyOneCredential(t *testing.T) {
	router := newSessionRouter(&fakeController{}, newMemRepo())

	rec := doJSON(t, router, http.MethodPost, "/api/users/42/login/confirm",
		map[string]string{"code": "12345", "password": "hunter2"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("both credentials: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/users/42/login/confirm", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no credentials: status = %d, want 400", rec.Code)
	}
}

func TestConfirmErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"invalid code", telegram.ErrCodeInvalid, http.StatusBadRequest, "invalid_code"},
		{"expired code", telegram.ErrCodeExpired, http.StatusGone, "code_expired"},
		{"needs password", telegram.ErrPasswordNeeded, http.StatusUnauthorized, "needs_password"},
		{"no pending login", session.ErrNoPendingLogin, http.StatusConflict, "no_pending_login"},
		{"connection unavailable", telegram.ErrConnectionUnavailable, http.StatusBadGateway, "connection_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "unexpected"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := &fakeController{codeErr: tc.err}
			router := newSessionRouter(ctrl, newMemRepo())

			rec := doJSON(t, router, http.MethodPost, "/api/users/42/login/confirm",
				map[string]string{"code": "12345"})

			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if body := decodeJSON(t, rec); body["error"] != tc.wantBody {
				t.Errorf("error = %v, want %q", body["error"], tc.wantBody)
			}
		})
	}
}

func TestConfirmWithPassword(t *testing.T) {
	ctrl := &fakeController{status: domain.StatusAuthorized}
	router := newSessionRouter(ctrl, newMemRepo())

	rec := doJSON(t, router, http.MethodPost, "/api/users/42/login/confirm",
		map[string]string{"password": "hunter2"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ctrl.lastPassword != "hunter2" {
		t.Errorf("password = %q", ctrl.lastPassword)
	}
	if body := decodeJSON(t, rec); body["status"] != string(domain.StatusAuthorized) {
		t.Errorf("status = %v", body["status"])
	}
}

func TestWrongPasswordMapping(t *testing.T) {
	ctrl := &fakeController{passwordErr: telegram.ErrPasswordInvalid}
	router := newSessionRouter(ctrl, newMemRepo())

	rec := doJSON(t, router, http.MethodPost, "/api/users/42/login/confirm",
		map[string]string{"password": "nope"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decodeJSON(t, rec); body["error"] != "wrong_password" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestResumeEndpoint(t *testing.T) {
	ctrl := &fakeController{resumeOK: true, status: domain.StatusAuthorized}
	router := newSessionRouter(ctrl, newMemRepo())

	rec := doJSON(t, router, http.MethodPost, "/api/users/42/resume", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["resumed"] != true {
		t.Errorf("resumed = %v", body["resumed"])
	}
}

func TestDisconnectEndpoint(t *testing.T) {
	ctrl := &fakeController{}
	router := newSessionRouter(ctrl, newMemRepo())

	rec := doJSON(t, router, http.MethodDelete, "/api/users/42/session", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(ctrl.disconnected) != 1 || ctrl.disconnected[0] != 42 {
		t.Errorf("disconnected = %v", ctrl.disconnected)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &fakeController{status: domain.StatusAwaitingPassword}
	repo := newMemRepo()
	repo.UpsertUser(context.Background(), &domain.User{UserID: 42, PhoneNumber: "+15550001"})
	router := newSessionRouter(ctrl, repo)

	rec := doJSON(t, router, http.MethodGet, "/api/users/42/status", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["status"] != string(domain.StatusAwaitingPassword) {
		t.Errorf("status = %v", body["status"])
	}
	if body["authorized"] != false {
		t.Errorf("authorized = %v", body["authorized"])
	}
	if body["phone_number"] != "+15550001" {
		t.Errorf("phone_number = %v", body["phone_number"])
	}
}
