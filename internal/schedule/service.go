package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Service resolves which intervals are open on a date and derives the
// bookable slots from them. Specific-date overrides win over the weekday
// rules; a date nothing governs is simply closed, not an error.
type Service struct {
	repo      Repository
	increment time.Duration
}

func NewService(repo Repository, increment time.Duration) *Service {
	return &Service{repo: repo, increment: increment}
}

// OpenIntervals returns the ordered open intervals for a calendar date.
func (s *Service) OpenIntervals(ctx context.Context, date time.Time) ([]Interval, error) {
	overrides, err := s.repo.OverridesFor(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	var intervals []Interval
	if len(overrides) > 0 {
		// Any override row takes the whole date off the weekday rules,
		// including an all-unavailable set that closes the day.
		for _, ov := range overrides {
			if ov.Available {
				intervals = append(intervals, Interval{Start: ov.Start, End: ov.End})
			}
		}
	} else {
		entries, err := s.repo.EntriesFor(ctx, date.Year(), int(date.Month()), date.Weekday())
		if err != nil {
			return nil, fmt.Errorf("load schedule entries: %w", err)
		}
		for _, e := range entries {
			if e.Available {
				intervals = append(intervals, Interval{Start: e.Start, End: e.End})
			}
		}
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
	return intervals, nil
}

// SlotsForDate returns the bookable slots for a date, sized for the
// requested treatment duration when one is given.
func (s *Service) SlotsForDate(ctx context.Context, date time.Time, durationMinutes int) ([]TimeSlot, error) {
	if durationMinutes < 0 {
		return nil, fmt.Errorf("treatment duration must not be negative, got %d", durationMinutes)
	}

	intervals, err := s.OpenIntervals(ctx, date)
	if err != nil {
		return nil, err
	}

	return GenerateSlots(intervals, int(s.increment.Minutes()), durationMinutes), nil
}

// MonthEntries exposes the raw weekday rules for the admin schedule view.
func (s *Service) MonthEntries(ctx context.Context, year, month int) ([]Entry, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	return s.repo.EntriesForMonth(ctx, year, month)
}

// ReplaceMonth swaps the weekday rules for one month wholesale. The
// schedule-setup surface edits a month at a time, so partial updates are
// not supported.
func (s *Service) ReplaceMonth(ctx context.Context, year, month int, entries []Entry) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("invalid month %d", month)
	}
	for _, e := range entries {
		if e.DayOfWeek < time.Sunday || e.DayOfWeek > time.Saturday {
			return fmt.Errorf("invalid day of week %d", e.DayOfWeek)
		}
		if e.End <= e.Start {
			return fmt.Errorf("entry end %s not after start %s", FormatClock(e.End), FormatClock(e.Start))
		}
	}
	if err := validateNonOverlapping(entries); err != nil {
		return err
	}
	return s.repo.ReplaceMonth(ctx, year, month, entries)
}

func (s *Service) UpsertOverride(ctx context.Context, ov Override) (*Override, error) {
	if ov.Available && ov.End <= ov.Start {
		return nil, fmt.Errorf("override end %s not after start %s", FormatClock(ov.End), FormatClock(ov.Start))
	}
	ov.Date = DateOf(ov.Date)
	return s.repo.UpsertOverride(ctx, ov)
}

func (s *Service) DeleteOverrides(ctx context.Context, date time.Time) error {
	return s.repo.DeleteOverrides(ctx, DateOf(date))
}

// validateNonOverlapping rejects two open entries for the same weekday that
// share minutes, e.g. 09:00-13:00 and 12:00-17:00 on Mondays.
func validateNonOverlapping(entries []Entry) error {
	byDay := make(map[time.Weekday][]Entry)
	for _, e := range entries {
		if e.Available {
			byDay[e.DayOfWeek] = append(byDay[e.DayOfWeek], e)
		}
	}
	for day, dayEntries := range byDay {
		sort.Slice(dayEntries, func(i, j int) bool { return dayEntries[i].Start < dayEntries[j].Start })
		for i := 1; i < len(dayEntries); i++ {
			if dayEntries[i].Start < dayEntries[i-1].End {
				return fmt.Errorf("overlapping intervals on %s: %s-%s and %s-%s",
					day,
					FormatClock(dayEntries[i-1].Start), FormatClock(dayEntries[i-1].End),
					FormatClock(dayEntries[i].Start), FormatClock(dayEntries[i].End))
			}
		}
	}
	return nil
}
