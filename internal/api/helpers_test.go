package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ashureev/meetwatch/internal/domain"
)

// memRepo is an in-memory Repository for handler tests.
type memRepo struct {
	mu            sync.Mutex
	users         map[int64]*domain.User
	messages      map[int64]*domain.DetectedMessage
	events        []*domain.CalendarEvent
	nextMessageID int64
	pingErr       error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    make(map[int64]*domain.User),
		messages: make(map[int64]*domain.DetectedMessage),
	}
}

func (r *memRepo) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *memRepo) UpsertUser(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.UserID] = &copied
	return nil
}

func (r *memRepo) ListUsers(ctx context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		copied := *u
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memRepo) SetSessionStatus(ctx context.Context, userID int64, connected bool, sessionRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.SessionConnected = connected
		u.SessionRef = sessionRef
	}
	return nil
}

func (r *memRepo) SetCalendarStatus(ctx context.Context, userID int64, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.CalendarConnected = connected
	}
	return nil
}

func (r *memRepo) SaveDetectedMessage(ctx context.Context, userID, chatID int64, text string, keywords []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMessageID++
	r.messages[r.nextMessageID] = &domain.DetectedMessage{
		ID:       r.nextMessageID,
		UserID:   userID,
		ChatID:   chatID,
		Text:     text,
		Keywords: keywords,
	}
	return r.nextMessageID, nil
}

func (r *memRepo) GetDetectedMessage(ctx context.Context, messageID int64) (*domain.DetectedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *memRepo) ConfirmDetectedMessage(ctx context.Context, messageID int64, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok {
		return fmt.Errorf("detected message %d not found", messageID)
	}
	m.Confirmed = true
	m.CalendarEventID = eventID
	return nil
}

func (r *memRepo) SaveCalendarEvent(ctx context.Context, event *domain.CalendarEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

func (r *memRepo) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) setPingErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingErr = err
}

func (r *memRepo) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var errUnreachable = errors.New("database unreachable")
