package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/meetwatch/internal/calendar"
	"github.com/ashureev/meetwatch/internal/domain"
	"github.com/go-chi/chi/v5"
)

// fakeCalendar keeps events in memory and records created meetings.
type fakeCalendar struct {
	mu        sync.Mutex
	createErr error
	created   []string
	events    map[string]*calendar.Event
}

func (c *fakeCalendar) put(ev *calendar.Event) {
	if c.events == nil {
		c.events = make(map[string]*calendar.Event)
	}
	copied := *ev
	c.events[ev.ID] = &copied
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, title, description string, start, end time.Time) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	ev := &calendar.Event{ID: "evt-1", Title: title, Description: description, StartTime: start, EndTime: end}
	c.put(ev)
	return ev, nil
}

func (c *fakeCalendar) GetEvent(ctx context.Context, eventID string) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[eventID]
	if !ok {
		return nil, nil
	}
	copied := *ev
	return &copied, nil
}

func (c *fakeCalendar) UpdateEvent(ctx context.Context, eventID, title, description string, start, end time.Time) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[eventID]
	if !ok {
		return nil, errors.New("event not found")
	}
	ev.Title = title
	ev.Description = description
	ev.StartTime = start
	ev.EndTime = end
	copied := *ev
	return &copied, nil
}

func (c *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, eventID)
	return nil
}

func (c *fakeCalendar) ListEvents(ctx context.Context, from, to time.Time, maxResults int64) ([]*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*calendar.Event, 0, len(c.events))
	for _, ev := range c.events {
		copied := *ev
		out = append(out, &copied)
	}
	return out, nil
}

func (c *fakeCalendar) CreateMeetingFromMessage(ctx context.Context, messageText, withName string) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, withName)
	ev := &calendar.Event{
		ID:       "evt-1",
		Title:    "جلسه با " + withName,
		HTMLLink: "https://calendar.example/evt-1",
	}
	c.put(ev)
	return ev, nil
}

func (c *fakeCalendar) TestConnection(ctx context.Context) error { return nil }

func newMeetingRouter(repo *memRepo, cal calendar.Service) chi.Router {
	r := chi.NewRouter()
	h := NewMeetingHandler(NewHandler(repo), cal)
	h.RegisterRoutes(r)
	return r
}

func seedMessage(t *testing.T, repo *memRepo) int64 {
	t.Helper()
	ctx := context.Background()
	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, FirstName: "Alice"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	id, err := repo.SaveDetectedMessage(ctx, 1, 99, "meeting at 14:30", []string{"meeting"})
	if err != nil {
		t.Fatalf("SaveDetectedMessage: %v", err)
	}
	return id
}

func TestConfirmMessageCreatesEvent(t *testing.T) {
	repo := newMemRepo()
	cal := &fakeCalendar{}
	router := newMeetingRouter(repo, cal)
	id := seedMessage(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/api/messages/1/confirm", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["status"] != "confirmed" || body["event_id"] != "evt-1" {
		t.Errorf("body = %v", body)
	}
	if len(cal.created) != 1 || cal.created[0] != "Alice" {
		t.Errorf("created = %v, want meeting with Alice", cal.created)
	}

	msg, _ := repo.GetDetectedMessage(context.Background(), id)
	if !msg.Confirmed || msg.CalendarEventID != "evt-1" {
		t.Errorf("message not confirmed: %+v", msg)
	}
	if repo.eventCount() != 1 {
		t.Errorf("saved %d event records, want 1", repo.eventCount())
	}
}

func TestConfirmMessageTwice(t *testing.T) {
	repo := newMemRepo()
	router := newMeetingRouter(repo, &fakeCalendar{})
	seedMessage(t, repo)

	first := doJSON(t, router, http.MethodPost, "/api/messages/1/confirm", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first confirm: status = %d", first.Code)
	}

	second := doJSON(t, router, http.MethodPost, "/api/messages/1/confirm", nil)
	if second.Code != http.StatusOK {
		t.Fatalf("second confirm: status = %d", second.Code)
	}
	body := decodeJSON(t, second)
	if body["status"] != "already_confirmed" || body["event_id"] != "evt-1" {
		t.Errorf("body = %v", body)
	}
	if repo.eventCount() != 1 {
		t.Errorf("saved %d event records, want 1", repo.eventCount())
	}
}

func TestConfirmMessageWithoutCalendar(t *testing.T) {
	repo := newMemRepo()
	router := newMeetingRouter(repo, nil)
	seedMessage(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/api/messages/1/confirm", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body := decodeJSON(t, rec); body["error"] != "calendar_unavailable" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestConfirmMissingMessage(t *testing.T) {
	router := newMeetingRouter(newMemRepo(), &fakeCalendar{})

	rec := doJSON(t, router, http.MethodPost, "/api/messages/7/confirm", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestConfirmMessageCalendarFailure(t *testing.T) {
	repo := newMemRepo()
	cal := &fakeCalendar{createErr: errors.New("quota exceeded")}
	router := newMeetingRouter(repo, cal)
	id := seedMessage(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/api/messages/1/confirm", nil)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	msg, _ := repo.GetDetectedMessage(context.Background(), id)
	if msg.Confirmed {
		t.Error("message must not be confirmed when event creation fails")
	}
}

func TestGetMessage(t *testing.T) {
	repo := newMemRepo()
	router := newMeetingRouter(repo, &fakeCalendar{})
	seedMessage(t, repo)

	rec := doJSON(t, router, http.MethodGet, "/api/messages/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["text"] != "meeting at 14:30" {
		t.Errorf("text = %v", body["text"])
	}

	rec = doJSON(t, router, http.MethodGet, "/api/messages/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing message: status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	repo := newMemRepo()
	router := chi.NewRouter()
	NewHealthHandler(repo, time.Second).RegisterHealth(router)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	repo.setPingErr(errUnreachable)
	rec = doJSON(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v", body["status"])
	}
}
