package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanamidental/booking-service/internal/schedule"
)

// MemoryRepository is an in-process Repository with the same transition
// semantics as the Postgres one, guarded by a single mutex. It backs the
// test suites and local development without a database.
type MemoryRepository struct {
	mu    sync.Mutex
	appts map[uuid.UUID]Appointment
	prefs map[uuid.UUID][]Preference

	// Err, when set, makes every call fail. Lets tests exercise the
	// fail-closed paths.
	Err error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appts: make(map[uuid.UUID]Appointment),
		prefs: make(map[uuid.UUID][]Preference),
	}
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, appt *Appointment, prefs []Preference) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	now := time.Now()
	stored := *appt
	stored.ID = uuid.New()
	stored.Status = StatusPending
	stored.CreatedAt = now
	stored.UpdatedAt = now

	storedPrefs := make([]Preference, len(prefs))
	copy(storedPrefs, prefs)
	for i := range storedPrefs {
		storedPrefs[i].AppointmentID = stored.ID
	}

	r.appts[stored.ID] = stored
	r.prefs[stored.ID] = storedPrefs

	return &AppointmentDetail{Appointment: stored, Preferences: storedPrefs}, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return r.getLocked(id)
}

func (r *MemoryRepository) getLocked(id uuid.UUID) (*Appointment, error) {
	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := appt
	return &copied, nil
}

func (r *MemoryRepository) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	appt, err := r.getLocked(id)
	if err != nil {
		return nil, err
	}

	prefs := make([]Preference, len(r.prefs[id]))
	copy(prefs, r.prefs[id])

	return &AppointmentDetail{Appointment: *appt, Preferences: prefs}, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, filter ListFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	var result []Appointment
	for _, a := range r.appts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Date != nil {
			effective := a.AppointmentDate
			if a.ConfirmedDate != nil {
				effective = *a.ConfirmedDate
			}
			if !sameDate(effective, *filter.Date) {
				continue
			}
		}
		result = append(result, a)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

func (r *MemoryRepository) SlotOccupants(_ context.Context, treatmentName string, date time.Time, timeSlot string, exclude *uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return r.slotOccupantsLocked(treatmentName, date, timeSlot, exclude), nil
}

// slotOccupantsLocked may return the same ID more than once when a pending
// appointment names the slot at several ranks, matching the SQL shape.
func (r *MemoryRepository) slotOccupantsLocked(treatmentName string, date time.Time, timeSlot string, exclude *uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for id, a := range r.appts {
		if exclude != nil && id == *exclude {
			continue
		}
		if a.TreatmentName != treatmentName {
			continue
		}
		switch a.Status {
		case StatusConfirmed:
			if a.ConfirmedDate != nil && a.ConfirmedSlot != nil &&
				sameDate(*a.ConfirmedDate, date) && *a.ConfirmedSlot == timeSlot {
				ids = append(ids, id)
			}
		case StatusPending:
			for _, p := range r.prefs[id] {
				if sameDate(p.Date, date) && p.TimeSlot == timeSlot {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}

func (r *MemoryRepository) ConfirmedForPatient(_ context.Context, email string, date time.Time, exclude *uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return r.confirmedForPatientLocked(email, date, exclude), nil
}

func (r *MemoryRepository) confirmedForPatientLocked(email string, date time.Time, exclude *uuid.UUID) []Appointment {
	var result []Appointment
	for id, a := range r.appts {
		if exclude != nil && id == *exclude {
			continue
		}
		if a.Status == StatusConfirmed && a.Email == email &&
			a.ConfirmedDate != nil && sameDate(*a.ConfirmedDate, date) {
			result = append(result, a)
		}
	}
	return result
}

func (r *MemoryRepository) ConfirmAppointment(_ context.Context, p ConfirmParams) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	appt, ok := r.appts[p.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAppointmentCancelled
	}

	occupants := r.slotOccupantsLocked(appt.TreatmentName, p.Date, p.TimeSlot, &p.ID)
	if count := DistinctCount(occupants); count >= p.MaxCapacity {
		return nil, &CapacityExceededError{CurrentCount: count, MaxCapacity: p.MaxCapacity}
	}

	if anySlotOverlap(r.confirmedForPatientLocked(appt.Email, p.Date, &p.ID), p.TimeSlot) {
		return nil, ErrPatientConflict
	}

	date := schedule.DateOf(p.Date)
	slot := p.TimeSlot
	appt.Status = StatusConfirmed
	appt.ConfirmedDate = &date
	appt.ConfirmedSlot = &slot
	appt.UpdatedAt = time.Now()
	r.appts[p.ID] = appt

	copied := appt
	return &copied, nil
}

func (r *MemoryRepository) ResetToPending(_ context.Context, id uuid.UUID, prefs []Preference) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAppointmentCancelled
	}

	appt.Status = StatusPending
	appt.ConfirmedDate = nil
	appt.ConfirmedSlot = nil
	appt.AppointmentDate = schedule.DateOf(prefs[0].Date)
	appt.UpdatedAt = time.Now()

	stored := make([]Preference, len(prefs))
	copy(stored, prefs)
	for i := range stored {
		stored[i].AppointmentID = id
	}

	r.appts[id] = appt
	r.prefs[id] = stored

	return &AppointmentDetail{Appointment: appt, Preferences: stored}, nil
}

func (r *MemoryRepository) CancelAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAppointmentCancelled
	}

	appt.Status = StatusCancelled
	appt.UpdatedAt = time.Now()
	r.appts[id] = appt

	copied := appt
	return &copied, nil
}

func (r *MemoryRepository) ConfirmedOn(_ context.Context, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	var result []Appointment
	for _, a := range r.appts {
		if a.Status == StatusConfirmed && a.ConfirmedDate != nil && sameDate(*a.ConfirmedDate, date) {
			result = append(result, a)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ConfirmedSlot != nil && result[j].ConfirmedSlot != nil &&
			*result[i].ConfirmedSlot < *result[j].ConfirmedSlot
	})

	return result, nil
}
