// Package calendar provides the Google Calendar collaborator used to turn
// confirmed detections into events.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Event is the calendar-agnostic view of an event handed back to callers.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	HTMLLink    string    `json:"html_link,omitempty"`
}

// Service is the calendar contract the API layer depends on.
type Service interface {
	// CreateEvent creates an event. Zero start defaults to one hour from
	// now; zero end defaults to one hour after start.
	CreateEvent(ctx context.Context, title, description string, start, end time.Time) (*Event, error)

	// GetEvent returns an event, or (nil, nil) when it does not exist.
	GetEvent(ctx context.Context, eventID string) (*Event, error)

	// UpdateEvent replaces title/description/times of an existing event.
	UpdateEvent(ctx context.Context, eventID, title, description string, start, end time.Time) (*Event, error)

	// DeleteEvent removes an event. Deleting a missing event is a no-op.
	DeleteEvent(ctx context.Context, eventID string) error

	// ListEvents returns events overlapping [from, to], ordered by start.
	ListEvents(ctx context.Context, from, to time.Time, maxResults int64) ([]*Event, error)

	// CreateMeetingFromMessage builds an event from a detected message,
	// extracting a start time from the text when one is present.
	CreateMeetingFromMessage(ctx context.Context, messageText, withName string) (*Event, error)

	// TestConnection verifies the calendar is reachable.
	TestConnection(ctx context.Context) error
}

// GoogleCalendar implements Service on the Calendar v3 API with a service
// account.
type GoogleCalendar struct {
	svc        *gcal.Service
	calendarID string
	timezone   string
	location   *time.Location
	now        func() time.Time
}

// NewGoogleCalendar builds a client from a service account key file.
func NewGoogleCalendar(ctx context.Context, serviceAccountFile, calendarID, timezone string) (*GoogleCalendar, error) {
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsFile(serviceAccountFile),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load calendar timezone %q: %w", timezone, err)
	}

	return &GoogleCalendar{
		svc:        svc,
		calendarID: calendarID,
		timezone:   timezone,
		location:   location,
		now:        time.Now,
	}, nil
}

// CreateEvent creates an event with the default reminder set (email a day
// ahead, popup half an hour ahead).
func (g *GoogleCalendar) CreateEvent(ctx context.Context, title, description string, start, end time.Time) (*Event, error) {
	if start.IsZero() {
		start = g.now().Add(time.Hour)
	}
	if end.IsZero() {
		end = start.Add(time.Hour)
	}

	body := &gcal.Event{
		Summary:     title,
		Description: description,
		Start: &gcal.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := g.svc.Events.Insert(g.calendarID, body).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	slog.Info("calendar event created", "event_id", created.Id)
	return &Event{
		ID:          created.Id,
		Title:       created.Summary,
		Description: created.Description,
		StartTime:   start,
		EndTime:     end,
		HTMLLink:    created.HtmlLink,
	}, nil
}

// GetEvent returns the event or (nil, nil) when it does not exist.
func (g *GoogleCalendar) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	ev, err := g.svc.Events.Get(g.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return fromGoogleEvent(ev), nil
}

// UpdateEvent replaces the mutable fields of an existing event.
func (g *GoogleCalendar) UpdateEvent(ctx context.Context, eventID, title, description string, start, end time.Time) (*Event, error) {
	body := &gcal.Event{
		Summary:     title,
		Description: description,
		Start: &gcal.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
	}

	updated, err := g.svc.Events.Update(g.calendarID, eventID, body).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return fromGoogleEvent(updated), nil
}

// DeleteEvent removes the event; already-gone events are a no-op.
func (g *GoogleCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	if err := g.svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// ListEvents returns events in [from, to] ordered by start time.
func (g *GoogleCalendar) ListEvents(ctx context.Context, from, to time.Time, maxResults int64) ([]*Event, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	call := g.svc.Events.List(g.calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Context(ctx)
	if !from.IsZero() {
		call = call.TimeMin(from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		call = call.TimeMax(to.Format(time.RFC3339))
	}

	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]*Event, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, fromGoogleEvent(item))
	}
	return events, nil
}

// TestConnection lists calendars to verify credentials and reachability.
func (g *GoogleCalendar) TestConnection(ctx context.Context) error {
	if _, err := g.svc.CalendarList.List().MaxResults(1).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar connection test: %w", err)
	}
	return nil
}

func fromGoogleEvent(ev *gcal.Event) *Event {
	out := &Event{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
		HTMLLink:    ev.HtmlLink,
	}
	if ev.Start != nil && ev.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			out.StartTime = t
		}
	}
	if ev.End != nil && ev.End.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
			out.EndTime = t
		}
	}
	return out
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}
