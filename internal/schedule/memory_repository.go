package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps the schedule in maps. Used by tests and by local
// development without a database.
type MemoryRepository struct {
	mu        sync.Mutex
	entries   map[monthKey][]Entry
	overrides map[string][]Override

	Err error // when set, every call fails
}

type monthKey struct {
	Year  int
	Month int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries:   make(map[monthKey][]Entry),
		overrides: make(map[string][]Override),
	}
}

func (r *MemoryRepository) EntriesFor(_ context.Context, year, month int, weekday time.Weekday) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	var result []Entry
	for _, e := range r.entries[monthKey{year, month}] {
		if e.DayOfWeek == weekday {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *MemoryRepository) EntriesForMonth(_ context.Context, year, month int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	stored := r.entries[monthKey{year, month}]
	result := make([]Entry, len(stored))
	copy(result, stored)
	return result, nil
}

func (r *MemoryRepository) OverridesFor(_ context.Context, date time.Time) ([]Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	stored := r.overrides[DateString(date)]
	result := make([]Override, len(stored))
	copy(result, stored)
	return result, nil
}

func (r *MemoryRepository) ReplaceMonth(_ context.Context, year, month int, entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}

	stored := make([]Entry, len(entries))
	copy(stored, entries)
	now := time.Now()
	for i := range stored {
		stored[i].ID = uuid.New()
		stored[i].Year = year
		stored[i].Month = month
		stored[i].CreatedAt = now
		stored[i].UpdatedAt = now
	}
	r.entries[monthKey{year, month}] = stored
	return nil
}

func (r *MemoryRepository) UpsertOverride(_ context.Context, ov Override) (*Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	key := DateString(ov.Date)
	now := time.Now()

	for i, existing := range r.overrides[key] {
		if existing.Start == ov.Start {
			ov.ID = existing.ID
			ov.CreatedAt = existing.CreatedAt
			ov.UpdatedAt = now
			r.overrides[key][i] = ov
			return &ov, nil
		}
	}

	ov.ID = uuid.New()
	ov.CreatedAt = now
	ov.UpdatedAt = now
	r.overrides[key] = append(r.overrides[key], ov)
	return &ov, nil
}

func (r *MemoryRepository) DeleteOverrides(_ context.Context, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}

	key := DateString(date)
	if len(r.overrides[key]) == 0 {
		return ErrOverrideNotFound
	}
	delete(r.overrides, key)
	return nil
}
