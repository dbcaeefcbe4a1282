package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hanamidental/booking-service/internal/notify"
	redisclient "github.com/hanamidental/booking-service/internal/redis"
	"github.com/hanamidental/booking-service/internal/schedule"
)

var (
	ErrSlotBusy = errors.New("slot is currently being confirmed, please retry")
)

// FieldError is one field-level validation failure surfaced to the form.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// PreferenceInput is one ranked (date, slot) choice submitted by a patient.
type PreferenceInput struct {
	Date     time.Time
	TimeSlot string
}

type CreateInput struct {
	PatientName   string
	Phone         string
	Email         string
	Age           *int
	Notes         string
	TreatmentName string
	Fee           string
	Preferences   []PreferenceInput
}

// SlotAvailability is one row of the patient-facing availability view.
type SlotAvailability struct {
	Slot         schedule.TimeSlot
	Available    bool
	CurrentCount int
	MaxCapacity  int
}

// CancelResult reports a cancellation together with the advisory
// phone-follow-up flag for late cancellations of a confirmed visit.
type CancelResult struct {
	Appointment        *Appointment
	NeedsPhoneFollowUp bool
}

// Service is the appointment lifecycle controller: it owns the
// pending/confirmed/cancelled transitions, runs the capacity and conflict
// gates at confirm time, and emits notification events after each
// committed transition.
type Service struct {
	repo           Repository
	sched          *schedule.Service
	eval           *Evaluator
	locker         redisclient.Locker
	notifier       notify.Notifier
	log            zerolog.Logger
	followupWindow time.Duration
	clinicEmail    string
}

func NewService(repo Repository, sched *schedule.Service, eval *Evaluator, locker redisclient.Locker, notifier notify.Notifier, log zerolog.Logger, followupWindow time.Duration, clinicEmail string) *Service {
	return &Service{
		repo:           repo,
		sched:          sched,
		eval:           eval,
		locker:         locker,
		notifier:       notifier,
		log:            log.With().Str("component", "booking").Logger(),
		followupWindow: followupWindow,
		clinicEmail:    clinicEmail,
	}
}

// Availability returns the day's slots for a treatment with their current
// occupancy. This is the advisory view: it narrows the form, it never
// gates a confirm.
func (s *Service) Availability(ctx context.Context, date time.Time, treatmentName string, durationMinutes int) ([]SlotAvailability, error) {
	slots, err := s.sched.SlotsForDate(ctx, date, durationMinutes)
	if err != nil {
		return nil, err
	}

	result := make([]SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		check, err := s.eval.CheckCapacity(ctx, treatmentName, date, slot.String(), nil)
		if err != nil {
			return nil, err
		}
		result = append(result, SlotAvailability{
			Slot:         slot,
			Available:    check.CanReserve,
			CurrentCount: check.CurrentCount,
			MaxCapacity:  check.MaxCapacity,
		})
	}

	return result, nil
}

// Create inserts a pending appointment with its ranked preferences. Full
// preferences are logged but do not block: the admin resolves contention at
// confirm time.
func (s *Service) Create(ctx context.Context, in CreateInput) (*AppointmentDetail, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	for _, p := range in.Preferences {
		check, err := s.eval.CheckCapacity(ctx, in.TreatmentName, p.Date, p.TimeSlot, nil)
		if err != nil {
			s.log.Warn().Err(err).Msg("advisory capacity check failed during create")
			continue
		}
		if !check.CanReserve {
			s.log.Info().
				Str("treatment", in.TreatmentName).
				Str("date", schedule.DateString(p.Date)).
				Str("slot", p.TimeSlot).
				Int("count", check.CurrentCount).
				Msg("preference targets a full slot")
		}
	}

	appt := &Appointment{
		PatientName:     strings.TrimSpace(in.PatientName),
		Phone:           strings.TrimSpace(in.Phone),
		Email:           strings.TrimSpace(in.Email),
		Age:             in.Age,
		Notes:           in.Notes,
		TreatmentName:   in.TreatmentName,
		Fee:             in.Fee,
		Status:          StatusPending,
		AppointmentDate: schedule.DateOf(in.Preferences[0].Date),
	}

	prefs := buildPreferences(in.Preferences)

	detail, err := s.repo.CreateAppointment(ctx, appt, prefs)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.emit(ctx, s.eventFor(notify.EventBookingRequested, &detail.Appointment, detail.Preferences, false))

	return detail, nil
}

// Confirm commits a pending appointment into one (date, slot). The
// capacity and conflict gates run inside the repository's transaction; the
// per-slot lock keeps concurrent admin confirms from racing at the
// capacity boundary.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, date time.Time, timeSlot string) (*Appointment, error) {
	if _, err := schedule.ParseTimeSlot(timeSlot); err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "time_slot", Message: err.Error()}}}
	}

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAppointmentCancelled
	}

	maxCapacity := s.eval.Policy().Capacity(appt.TreatmentName)

	var confirmed *Appointment
	key := redisclient.SlotLockKey(schedule.DateString(date), timeSlot)
	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		updated, err := s.repo.ConfirmAppointment(lockCtx, ConfirmParams{
			ID:          id,
			Date:        date,
			TimeSlot:    timeSlot,
			MaxCapacity: maxCapacity,
		})
		if err != nil {
			return err
		}
		confirmed = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.emit(ctx, s.eventFor(notify.EventBookingConfirmed, confirmed, nil, false))

	return confirmed, nil
}

// Modify regresses an appointment to pending with a fresh preference list.
// Capacity and conflict checks wait for the next confirm.
func (s *Service) Modify(ctx context.Context, id uuid.UUID, prefs []PreferenceInput) (*AppointmentDetail, error) {
	if err := validatePreferences(prefs); err != nil {
		return nil, err
	}

	detail, err := s.repo.ResetToPending(ctx, id, buildPreferences(prefs))
	if err != nil {
		return nil, err
	}

	s.emit(ctx, s.eventFor(notify.EventModificationRequest, &detail.Appointment, detail.Preferences, false))

	return detail, nil
}

// Cancel is terminal from pending or confirmed. A confirmed visit
// cancelled inside the follow-up window is flagged for a phone call; the
// flag is advice for the front desk, nothing blocks on it.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*CancelResult, error) {
	appt, err := s.repo.CancelAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	needsFollowUp := false
	if d := appt.ConfirmedDate; d != nil {
		until := d.Sub(schedule.DateOf(now))
		if until >= 0 && until <= s.followupWindow {
			needsFollowUp = true
		}
	}

	s.emit(ctx, s.eventFor(notify.EventCancellationRequest, appt, nil, needsFollowUp))

	return &CancelResult{Appointment: appt, NeedsPhoneFollowUp: needsFollowUp}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	return s.repo.ListAppointments(ctx, filter)
}

// ConfirmedOn feeds the reminder worker.
func (s *Service) ConfirmedOn(ctx context.Context, date time.Time) ([]Appointment, error) {
	return s.repo.ConfirmedOn(ctx, date)
}

// Remind emits reminder events for every confirmed appointment on a date.
func (s *Service) Remind(ctx context.Context, date time.Time) (int, error) {
	appts, err := s.repo.ConfirmedOn(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("load confirmed appointments: %w", err)
	}

	for i := range appts {
		s.emit(ctx, s.eventFor(notify.EventAppointmentReminder, &appts[i], nil, false))
	}

	return len(appts), nil
}

// emit dispatches a notification after a committed transition. Failures
// are logged only; the state change is the durable fact.
func (s *Service) emit(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("kind", string(ev.Kind)).
			Str("appointment_id", ev.AppointmentID).
			Msg("notification dispatch failed")
	}
}

func (s *Service) eventFor(kind notify.EventKind, appt *Appointment, prefs []Preference, needsFollowUp bool) notify.Event {
	ev := notify.Event{
		Kind:          kind,
		AppointmentID: appt.ID.String(),
		PatientName:   appt.PatientName,
		Email:         appt.Email,
		Phone:         appt.Phone,
		Treatment:     appt.TreatmentName,
		Fee:           appt.Fee,
		NeedsFollowUp: needsFollowUp,
		AdminEmail:    s.clinicEmail,
	}

	if appt.ConfirmedDate != nil {
		ev.ConfirmedDate = schedule.DateString(*appt.ConfirmedDate)
	}
	if appt.ConfirmedSlot != nil {
		ev.ConfirmedSlot = *appt.ConfirmedSlot
	}

	for _, p := range prefs {
		ev.Preferences = append(ev.Preferences, notify.PreferredSlot{
			Rank:     p.Rank,
			Date:     schedule.DateString(p.Date),
			TimeSlot: p.TimeSlot,
		})
	}

	return ev
}

func buildPreferences(inputs []PreferenceInput) []Preference {
	prefs := make([]Preference, 0, len(inputs))
	for i, in := range inputs {
		prefs = append(prefs, Preference{
			Rank:     i + 1,
			Date:     schedule.DateOf(in.Date),
			TimeSlot: in.TimeSlot,
		})
	}
	return prefs
}

func validateCreate(in CreateInput) error {
	var fields []FieldError

	if strings.TrimSpace(in.PatientName) == "" {
		fields = append(fields, FieldError{Field: "patient_name", Message: "required"})
	}
	if strings.TrimSpace(in.Phone) == "" {
		fields = append(fields, FieldError{Field: "phone", Message: "required"})
	}
	if email := strings.TrimSpace(in.Email); email == "" {
		fields = append(fields, FieldError{Field: "email", Message: "required"})
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields = append(fields, FieldError{Field: "email", Message: "malformed email address"})
	}
	if in.Age != nil && (*in.Age < 0 || *in.Age > 150) {
		fields = append(fields, FieldError{Field: "age", Message: "out of range"})
	}
	if strings.TrimSpace(in.TreatmentName) == "" {
		fields = append(fields, FieldError{Field: "treatment_name", Message: "required"})
	}

	if err := validatePreferences(in.Preferences); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			fields = append(fields, ve.Fields...)
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validatePreferences(prefs []PreferenceInput) error {
	var fields []FieldError

	if len(prefs) == 0 {
		fields = append(fields, FieldError{Field: "preferences", Message: "at least one preferred slot is required"})
	}
	for i, p := range prefs {
		if p.Date.IsZero() {
			fields = append(fields, FieldError{Field: fmt.Sprintf("preferences[%d].date", i), Message: "required"})
		}
		if _, err := schedule.ParseTimeSlot(p.TimeSlot); err != nil {
			fields = append(fields, FieldError{Field: fmt.Sprintf("preferences[%d].time_slot", i), Message: err.Error()})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
