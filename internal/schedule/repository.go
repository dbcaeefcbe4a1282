package schedule

import (
	"context"
	"errors"
	"time"
)

var (
	ErrOverrideNotFound = errors.New("schedule override not found")
)

// Repository contains all DB interactions needed by the schedule service.
type Repository interface {
	// EntriesFor returns the weekday rules governing a (year, month, weekday).
	EntriesFor(ctx context.Context, year, month int, weekday time.Weekday) ([]Entry, error)
	EntriesForMonth(ctx context.Context, year, month int) ([]Entry, error)

	// OverridesFor returns the specific-date rows for a calendar date.
	OverridesFor(ctx context.Context, date time.Time) ([]Override, error)

	// Admin schedule setup
	ReplaceMonth(ctx context.Context, year, month int, entries []Entry) error
	UpsertOverride(ctx context.Context, ov Override) (*Override, error)
	DeleteOverrides(ctx context.Context, date time.Time) error
}
