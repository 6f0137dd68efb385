package calendar

import (
	"testing"
	"time"
)

func TestExtractMeetingTimeFutureClock(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	start := ExtractMeetingTime("بیا جلسه داشته باشیم ساعت 14:30", now)

	want := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestExtractMeetingTimePastClockRollsToTomorrow(t *testing.T) {
	now := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)

	start := ExtractMeetingTime("meeting at 14:30 worked well", now)

	want := time.Date(2025, 3, 11, 14, 30, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestExtractMeetingTimeNoClockDefaultsTomorrowMorning(t *testing.T) {
	now := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)

	start := ExtractMeetingTime("let's have a meeting soon", now)

	want := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestExtractMeetingTimeRejectsImpossibleClock(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	start := ExtractMeetingTime("score was 99:99 last night", now)

	want := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestExtractMeetingTimeUsesFirstClock(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	start := ExtractMeetingTime("either 11:00 or 15:00 tomorrow", now)

	want := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}
