package notify

import (
	"context"

	"github.com/rs/zerolog"
)

type EventKind string

const (
	EventBookingRequested    EventKind = "booking_requested"
	EventBookingConfirmed    EventKind = "booking_confirmed"
	EventModificationRequest EventKind = "modification_requested"
	EventCancellationRequest EventKind = "cancellation_requested"
	EventAppointmentReminder EventKind = "appointment_reminder"
)

// PreferredSlot is one ranked (date, time slot) choice carried in a
// booking-requested or modification-requested event.
type PreferredSlot struct {
	Rank     int    `json:"rank"`
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

// Event is the payload handed to the mail/SMS dispatch boundary. The
// transport and templating live outside this service; the fields here are
// everything a template needs.
type Event struct {
	Kind          EventKind       `json:"kind"`
	AppointmentID string          `json:"appointment_id"`
	PatientName   string          `json:"patient_name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Treatment     string          `json:"treatment"`
	Fee           string          `json:"fee,omitempty"`
	Preferences   []PreferredSlot `json:"preferences,omitempty"`
	ConfirmedDate string          `json:"confirmed_date,omitempty"`
	ConfirmedSlot string          `json:"confirmed_slot,omitempty"`
	NeedsFollowUp bool            `json:"needs_follow_up,omitempty"`
	AdminEmail    string          `json:"admin_email,omitempty"`
}

// Notifier delivers an event to the patient and the clinic inbox.
// Delivery is best-effort: the booking state change has already been
// committed by the time Notify runs, and a failure must only be logged.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the structured log. It stands in for the
// mail/SMS provider in dev and keeps an audit line in prod alongside the
// real sender.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	n.log.Info().
		Str("kind", string(ev.Kind)).
		Str("appointment_id", ev.AppointmentID).
		Str("email", ev.Email).
		Str("treatment", ev.Treatment).
		Str("confirmed_date", ev.ConfirmedDate).
		Str("confirmed_slot", ev.ConfirmedSlot).
		Bool("needs_follow_up", ev.NeedsFollowUp).
		Int("preferences", len(ev.Preferences)).
		Msg("notification dispatched")
	return nil
}
