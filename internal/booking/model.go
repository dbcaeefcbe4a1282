package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Appointment is one row of the booking ledger. While pending it carries
// ranked preferences and AppointmentDate holds the first preference's date
// as a display fallback; once confirmed, ConfirmedDate and ConfirmedSlot
// are the booking. Cancelled rows keep their confirmed fields and
// preferences as an audit trail.
type Appointment struct {
	ID            uuid.UUID
	PatientName   string
	Phone         string
	Email         string
	Age           *int
	Notes         string
	TreatmentName string
	Fee           string
	Status        Status

	AppointmentDate time.Time
	ConfirmedDate   *time.Time
	ConfirmedSlot   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Preference is one ranked (date, time slot) choice owned by a pending
// appointment. Rank is 1-based and unique within the appointment.
type Preference struct {
	AppointmentID uuid.UUID
	Rank          int
	Date          time.Time
	TimeSlot      string
}

type AppointmentDetail struct {
	Appointment
	Preferences []Preference
}
