package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrAppointmentCancelled = errors.New("appointment is cancelled")
	ErrPatientConflict      = errors.New("patient already holds a confirmed appointment in this slot")
)

// CapacityExceededError is the typed confirm rejection for a full slot. It
// carries the occupancy so the admin dashboard can show why.
type CapacityExceededError struct {
	CurrentCount int
	MaxCapacity  int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("slot capacity exceeded: %d of %d occupied", e.CurrentCount, e.MaxCapacity)
}

// ConfirmParams is the authoritative confirm write. MaxCapacity comes from
// the capacity policy; the repository re-counts occupants and re-checks the
// patient conflict inside the same transaction as the status flip.
type ConfirmParams struct {
	ID          uuid.UUID
	Date        time.Time
	TimeSlot    string
	MaxCapacity int
}

// ListFilter narrows the admin dashboard listing. Zero values mean no
// filtering on that field.
type ListFilter struct {
	Status Status
	Date   *time.Time // matches confirmed date, or appointment date while pending
	Limit  int
	Offset int
}

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	CreateAppointment(ctx context.Context, appt *Appointment, prefs []Preference) (*AppointmentDetail, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	// SlotOccupants returns the IDs of appointments occupying a
	// (treatment, date, slot): confirmed matches plus pending appointments
	// with a preference naming the slot. IDs may repeat when an appointment
	// names the slot at several ranks; callers dedupe.
	SlotOccupants(ctx context.Context, treatmentName string, date time.Time, timeSlot string, exclude *uuid.UUID) ([]uuid.UUID, error)

	// ConfirmedForPatient returns the patient's confirmed appointments on a
	// date, for the per-patient overlap check.
	ConfirmedForPatient(ctx context.Context, email string, date time.Time, exclude *uuid.UUID) ([]Appointment, error)

	// ConfirmAppointment performs the capacity and conflict checks and the
	// pending-to-confirmed flip as one serializable transaction. Returns
	// *CapacityExceededError or ErrPatientConflict on rejection, leaving the
	// row untouched.
	ConfirmAppointment(ctx context.Context, p ConfirmParams) (*Appointment, error)

	// ResetToPending clears the confirmed fields and replaces the
	// preferences wholesale in one transaction (the modify flow).
	ResetToPending(ctx context.Context, id uuid.UUID, prefs []Preference) (*AppointmentDetail, error)

	// CancelAppointment marks the row cancelled, keeping confirmed fields
	// and preferences for audit. Cancelled is terminal.
	CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ConfirmedOn lists confirmed appointments for a date (reminder worker).
	ConfirmedOn(ctx context.Context, date time.Time) ([]Appointment, error)
}
