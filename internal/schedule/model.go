package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one open interval of the weekday-based clinic schedule for a
// given month, e.g. "Mondays in March 2025, 09:00-13:00".
type Entry struct {
	ID        uuid.UUID
	Year      int
	Month     int
	DayOfWeek time.Weekday
	Start     int // minutes from midnight
	End       int
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Override replaces the weekday rules for one specific calendar date.
// An unavailable override closes the clinic for that date even when the
// weekday rules would have it open.
type Override struct {
	ID        uuid.UUID
	Date      time.Time
	Start     int
	End       int
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Interval is a contiguous open period within one day.
type Interval struct {
	Start int // minutes from midnight
	End   int
}

// TimeSlot is a bookable window derived from the open intervals. It is
// never persisted; the booking ledger stores its label (e.g. "10:00-10:30").
type TimeSlot struct {
	Start int
	End   int
}

func (s TimeSlot) String() string {
	return FormatClock(s.Start) + "-" + FormatClock(s.End)
}

func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start < o.End && o.Start < s.End
}

// ParseClock parses "HH:MM" into minutes from midnight.
func ParseClock(v string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q", v)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", v)
	}
	return h*60 + m, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseTimeSlot parses a slot label like "10:00-10:30".
func ParseTimeSlot(label string) (TimeSlot, error) {
	parts := strings.SplitN(label, "-", 2)
	if len(parts) != 2 {
		return TimeSlot{}, fmt.Errorf("invalid time slot %q", label)
	}
	start, err := ParseClock(strings.TrimSpace(parts[0]))
	if err != nil {
		return TimeSlot{}, fmt.Errorf("invalid time slot %q: %w", label, err)
	}
	end, err := ParseClock(strings.TrimSpace(parts[1]))
	if err != nil {
		return TimeSlot{}, fmt.Errorf("invalid time slot %q: %w", label, err)
	}
	if end <= start {
		return TimeSlot{}, fmt.Errorf("invalid time slot %q: end not after start", label)
	}
	return TimeSlot{Start: start, End: end}, nil
}

// DateOf strips the time-of-day component, keeping the location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DateString renders a calendar date the way the API and lock keys spell it.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDate parses "2006-01-02".
func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	return t, nil
}
