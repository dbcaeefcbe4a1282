package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewService(repo, 30*time.Minute), repo
}

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func seedWeekdays(t *testing.T, repo *MemoryRepository) {
	t.Helper()
	err := repo.ReplaceMonth(context.Background(), 2025, 3, []Entry{
		{DayOfWeek: time.Monday, Start: 540, End: 780, Available: true},   // 09:00-13:00
		{DayOfWeek: time.Monday, Start: 870, End: 1080, Available: true},  // 14:30-18:00
		{DayOfWeek: time.Tuesday, Start: 540, End: 780, Available: false}, // marked closed
	})
	require.NoError(t, err)
}

func TestOpenIntervals_WeekdayRules(t *testing.T) {
	svc, repo := newTestService(t)
	seedWeekdays(t, repo)

	got, err := svc.OpenIntervals(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, []Interval{{Start: 540, End: 780}, {Start: 870, End: 1080}}, got)
}

func TestOpenIntervals_UnavailableEntriesFiltered(t *testing.T) {
	svc, repo := newTestService(t)
	seedWeekdays(t, repo)

	tuesday := monday.AddDate(0, 0, 1)
	got, err := svc.OpenIntervals(context.Background(), tuesday)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenIntervals_UngovernedDateIsClosed(t *testing.T) {
	svc, repo := newTestService(t)
	seedWeekdays(t, repo)

	thursday := monday.AddDate(0, 0, 3)
	got, err := svc.OpenIntervals(context.Background(), thursday)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenIntervals_OverrideWinsOverWeekday(t *testing.T) {
	svc, repo := newTestService(t)
	seedWeekdays(t, repo)

	_, err := svc.UpsertOverride(context.Background(), Override{
		Date: monday, Start: 600, End: 720, Available: true, // 10:00-12:00 only
	})
	require.NoError(t, err)

	got, err := svc.OpenIntervals(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, []Interval{{Start: 600, End: 720}}, got)
}

func TestOpenIntervals_UnavailableOverrideClosesOpenDay(t *testing.T) {
	svc, repo := newTestService(t)
	seedWeekdays(t, repo)

	_, err := svc.UpsertOverride(context.Background(), Override{Date: monday, Available: false})
	require.NoError(t, err)

	got, err := svc.OpenIntervals(context.Background(), monday)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSlotsForDate(t *testing.T) {
	svc, repo := newTestService(t)
	seedWeekdays(t, repo)

	slots, err := svc.SlotsForDate(context.Background(), monday, 0)
	require.NoError(t, err)
	// 09:00-13:00 gives eight 30-minute slots, 14:30-18:00 gives seven.
	assert.Len(t, slots, 15)
	assert.Equal(t, "09:00-09:30", slots[0].String())
	assert.Equal(t, "17:30-18:00", slots[len(slots)-1].String())
}

func TestSlotsForDate_ClosedDayYieldsEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	slots, err := svc.SlotsForDate(context.Background(), monday, 0)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotsForDate_NegativeDurationRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SlotsForDate(context.Background(), monday, -15)
	assert.Error(t, err)
}

func TestReplaceMonth_RejectsOverlappingEntries(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.ReplaceMonth(context.Background(), 2025, 3, []Entry{
		{DayOfWeek: time.Monday, Start: 540, End: 780, Available: true},
		{DayOfWeek: time.Monday, Start: 720, End: 1020, Available: true},
	})
	assert.Error(t, err)
}

func TestReplaceMonth_AllowsBackToBackEntries(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.ReplaceMonth(context.Background(), 2025, 3, []Entry{
		{DayOfWeek: time.Monday, Start: 540, End: 780, Available: true},
		{DayOfWeek: time.Monday, Start: 780, End: 1020, Available: true},
	})
	assert.NoError(t, err)
}

func TestReplaceMonth_RejectsInvalidMonth(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Error(t, svc.ReplaceMonth(context.Background(), 2025, 13, nil))
}
