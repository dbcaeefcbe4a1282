package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	day10 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	day11 = time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	day12 = time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
)

const (
	consultTreatment = "初診の方【無料相談】"
	hygieneTreatment = "ホワイトニング"
)

func addPending(t *testing.T, repo *MemoryRepository, treatment, email string, prefs ...Preference) uuid.UUID {
	t.Helper()
	detail, err := repo.CreateAppointment(context.Background(), &Appointment{
		PatientName:     "Test Patient",
		Phone:           "090-0000-0000",
		Email:           email,
		TreatmentName:   treatment,
		AppointmentDate: prefs[0].Date,
	}, prefs)
	require.NoError(t, err)
	return detail.ID
}

func confirmInto(t *testing.T, repo *MemoryRepository, id uuid.UUID, date time.Time, slot string, max int) {
	t.Helper()
	_, err := repo.ConfirmAppointment(context.Background(), ConfirmParams{
		ID: id, Date: date, TimeSlot: slot, MaxCapacity: max,
	})
	require.NoError(t, err)
}

func TestCheckCapacity_EmptySlot(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	check, err := eval.CheckCapacity(context.Background(), consultTreatment, day10, "10:00-10:30", nil)
	require.NoError(t, err)
	assert.True(t, check.CanReserve)
	assert.Equal(t, 0, check.CurrentCount)
	assert.Equal(t, 1, check.MaxCapacity)
}

func TestCheckCapacity_ConfirmedOccupantFillsConsultSlot(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	id := addPending(t, repo, consultTreatment, "a@example.com",
		Preference{Rank: 1, Date: day10, TimeSlot: "10:00-10:30"})
	confirmInto(t, repo, id, day10, "10:00-10:30", 1)

	check, err := eval.CheckCapacity(context.Background(), consultTreatment, day10, "10:00-10:30", nil)
	require.NoError(t, err)
	assert.False(t, check.CanReserve)
	assert.Equal(t, 1, check.CurrentCount)
}

func TestCheckCapacity_PendingPreferenceCountsAsDemand(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	addPending(t, repo, consultTreatment, "a@example.com",
		Preference{Rank: 1, Date: day10, TimeSlot: "10:00-10:30"})

	check, err := eval.CheckCapacity(context.Background(), consultTreatment, day10, "10:00-10:30", nil)
	require.NoError(t, err)
	assert.False(t, check.CanReserve)
	assert.Equal(t, 1, check.CurrentCount)
}

func TestCheckCapacity_DedupesMultiRankPreferences(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	// One appointment naming the same slot at two ranks occupies it once.
	addPending(t, repo, hygieneTreatment, "a@example.com",
		Preference{Rank: 1, Date: day11, TimeSlot: "09:00-09:30"},
		Preference{Rank: 2, Date: day11, TimeSlot: "09:00-09:30"},
		Preference{Rank: 3, Date: day12, TimeSlot: "10:00-10:30"},
	)

	check, err := eval.CheckCapacity(context.Background(), hygieneTreatment, day11, "09:00-09:30", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, check.CurrentCount)
	assert.True(t, check.CanReserve)
}

func TestCheckCapacity_EachPreferredSlotCounted(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	// A pending appointment occupies every slot it names.
	addPending(t, repo, consultTreatment, "a@example.com",
		Preference{Rank: 1, Date: day11, TimeSlot: "09:00-09:30"},
		Preference{Rank: 2, Date: day11, TimeSlot: "09:30-10:00"},
		Preference{Rank: 3, Date: day12, TimeSlot: "10:00-10:30"},
	)

	for _, target := range []struct {
		date time.Time
		slot string
	}{
		{day11, "09:00-09:30"},
		{day11, "09:30-10:00"},
		{day12, "10:00-10:30"},
	} {
		check, err := eval.CheckCapacity(context.Background(), consultTreatment, target.date, target.slot, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, check.CurrentCount, "slot %s %s", target.date, target.slot)
	}
}

func TestCheckCapacity_DifferentTreatmentDoesNotCount(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	addPending(t, repo, hygieneTreatment, "a@example.com",
		Preference{Rank: 1, Date: day10, TimeSlot: "10:00-10:30"})

	check, err := eval.CheckCapacity(context.Background(), consultTreatment, day10, "10:00-10:30", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, check.CurrentCount)
}

func TestCheckCapacity_ExclusionEnablesMoveIntoOwnSlot(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	id := addPending(t, repo, consultTreatment, "a@example.com",
		Preference{Rank: 1, Date: day10, TimeSlot: "10:00-10:30"})
	confirmInto(t, repo, id, day10, "10:00-10:30", 1)

	check, err := eval.CheckCapacity(context.Background(), consultTreatment, day10, "10:00-10:30", &id)
	require.NoError(t, err)
	assert.True(t, check.CanReserve)
	assert.Equal(t, 0, check.CurrentCount)
}

func TestCheckCapacity_IdempotentWithoutWrites(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	addPending(t, repo, hygieneTreatment, "a@example.com",
		Preference{Rank: 1, Date: day10, TimeSlot: "10:00-10:30"})

	first, err := eval.CheckCapacity(context.Background(), hygieneTreatment, day10, "10:00-10:30", nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := eval.CheckCapacity(context.Background(), hygieneTreatment, day10, "10:00-10:30", nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCheckCapacity_FailsClosedOnRepositoryError(t *testing.T) {
	repo := NewMemoryRepository()
	repo.Err = assert.AnError
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	check, err := eval.CheckCapacity(context.Background(), hygieneTreatment, day10, "10:00-10:30", nil)
	assert.Error(t, err)
	assert.False(t, check.CanReserve)
}

func TestCheckConflict(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, DefaultCapacityPolicy())

	id := addPending(t, repo, hygieneTreatment, "a@example.com",
		Preference{Rank: 1, Date: day10, TimeSlot: "14:00-14:30"})
	confirmInto(t, repo, id, day10, "14:00-14:30", 4)

	// Same patient, same slot: conflict.
	ok, err := eval.CheckConflict(context.Background(), "a@example.com", day10, "14:00-14:30", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// Overlapping wider slot also conflicts.
	ok, err = eval.CheckConflict(context.Background(), "a@example.com", day10, "14:00-15:00", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// Different patient is fine.
	ok, err = eval.CheckConflict(context.Background(), "b@example.com", day10, "14:00-14:30", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same patient, non-overlapping slot is fine.
	ok, err = eval.CheckConflict(context.Background(), "a@example.com", day10, "15:00-15:30", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// Excluding the holder lets it be re-confirmed into its own slot.
	ok, err = eval.CheckConflict(context.Background(), "a@example.com", day10, "14:00-14:30", &id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistinctCount(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, 0, DistinctCount(nil))
	assert.Equal(t, 2, DistinctCount([]uuid.UUID{a, b, a, a}))
}
