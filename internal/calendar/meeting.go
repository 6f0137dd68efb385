package calendar

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// clockPattern matches the first HH:MM occurrence in a message.
var clockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

// ExtractMeetingTime derives a meeting start from free-form text. A valid
// HH:MM in the text schedules today at that time, rolled to tomorrow when
// the moment has already passed. Text without a usable time defaults to
// tomorrow at 10:00.
func ExtractMeetingTime(text string, now time.Time) time.Time {
	m := clockPattern.FindStringSubmatch(text)
	if m != nil {
		var hour, minute int
		fmt.Sscanf(m[1], "%d", &hour)
		fmt.Sscanf(m[2], "%d", &minute)
		if hour < 24 && minute < 60 {
			start := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
			if !start.After(now) {
				start = start.AddDate(0, 0, 1)
			}
			return start
		}
	}

	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 10, 0, 0, 0, now.Location())
}

// CreateMeetingFromMessage builds a one-hour event from a detected chat
// message. withName labels who the meeting is with.
func (g *GoogleCalendar) CreateMeetingFromMessage(ctx context.Context, messageText, withName string) (*Event, error) {
	start := ExtractMeetingTime(messageText, g.now().In(g.location))
	end := start.Add(time.Hour)

	title := fmt.Sprintf("جلسه با %s", withName)
	description := fmt.Sprintf("جلسه ایجاد شده از پیام:\n%s", messageText)

	return g.CreateEvent(ctx, title, description, start, end)
}
