package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanamidental/booking-service/internal/schedule"
)

const confirmRetries = 3

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the occupant
// count runs identically on the advisory path and inside the confirm
// transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Helpers

const appointmentColumns = `
	id, patient_name, phone, email, age, notes, treatment_name, fee,
	status, appointment_date, confirmed_date, confirmed_slot, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var age *int
	var confirmedDate *time.Time
	var confirmedSlot *string

	err := row.Scan(
		&a.ID,
		&a.PatientName,
		&a.Phone,
		&a.Email,
		&age,
		&a.Notes,
		&a.TreatmentName,
		&a.Fee,
		&a.Status,
		&a.AppointmentDate,
		&confirmedDate,
		&confirmedSlot,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Age = age
	a.ConfirmedDate = confirmedDate
	a.ConfirmedSlot = confirmedSlot
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func slotOccupantIDs(ctx context.Context, q querier, treatmentName string, date time.Time, timeSlot string, exclude *uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `
		SELECT a.id
		FROM appointments a
		WHERE a.treatment_name = $1
		  AND a.status = 'confirmed'
		  AND a.confirmed_date = $2
		  AND a.confirmed_slot = $3
		  AND ($4::uuid IS NULL OR a.id <> $4)
		UNION ALL
		SELECT a.id
		FROM appointments a
		JOIN appointment_preferences p ON p.appointment_id = a.id
		WHERE a.treatment_name = $1
		  AND a.status = 'pending'
		  AND p.preferred_date = $2
		  AND p.preferred_slot = $3
		  AND ($4::uuid IS NULL OR a.id <> $4)
	`, treatmentName, schedule.DateOf(date), timeSlot, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func confirmedForPatient(ctx context.Context, q querier, email string, date time.Time, exclude *uuid.UUID) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE email = $1
		  AND status = 'confirmed'
		  AND confirmed_date = $2
		  AND ($3::uuid IS NULL OR id <> $3)
		ORDER BY confirmed_slot
	`, email, schedule.DateOf(date), exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func loadPreferences(ctx context.Context, q querier, appointmentID uuid.UUID) ([]Preference, error) {
	rows, err := q.Query(ctx, `
		SELECT appointment_id, pref_rank, preferred_date, preferred_slot
		FROM appointment_preferences
		WHERE appointment_id = $1
		ORDER BY pref_rank
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.AppointmentID, &p.Rank, &p.Date, &p.TimeSlot); err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return prefs, nil
}

func insertPreferences(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, prefs []Preference) error {
	for _, p := range prefs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO appointment_preferences (appointment_id, pref_rank, preferred_date, preferred_slot)
			VALUES ($1, $2, $3, $4)
		`, appointmentID, p.Rank, schedule.DateOf(p.Date), p.TimeSlot); err != nil {
			return fmt.Errorf("insert preference rank %d: %w", p.Rank, err)
		}
	}
	return nil
}

// Interface methods

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment, prefs []Preference) (*AppointmentDetail, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New()

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_name, phone, email, age, notes, treatment_name, fee,
			 status, appointment_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientName, appt.Phone, appt.Email, appt.Age, appt.Notes,
		appt.TreatmentName, appt.Fee, schedule.DateOf(appt.AppointmentDate))

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	for i := range prefs {
		prefs[i].AppointmentID = created.ID
	}
	if err := insertPreferences(ctx, tx, created.ID, prefs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}

	return &AppointmentDetail{Appointment: *created, Preferences: prefs}, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	prefs, err := loadPreferences(ctx, r.pool, id)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	return &AppointmentDetail{Appointment: *appt, Preferences: prefs}, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var date *time.Time
	if filter.Date != nil {
		d := schedule.DateOf(*filter.Date)
		date = &d
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::text = '' OR status = $1)
		  AND ($2::date IS NULL OR COALESCE(confirmed_date, appointment_date) = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, string(filter.Status), date, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) SlotOccupants(ctx context.Context, treatmentName string, date time.Time, timeSlot string, exclude *uuid.UUID) ([]uuid.UUID, error) {
	return slotOccupantIDs(ctx, r.pool, treatmentName, date, timeSlot, exclude)
}

func (r *PgRepository) ConfirmedForPatient(ctx context.Context, email string, date time.Time, exclude *uuid.UUID) ([]Appointment, error) {
	return confirmedForPatient(ctx, r.pool, email, date, exclude)
}

func (r *PgRepository) ConfirmAppointment(ctx context.Context, p ConfirmParams) (*Appointment, error) {
	var appt *Appointment
	var err error

	for attempt := 0; attempt < confirmRetries; attempt++ {
		appt, err = r.confirmOnce(ctx, p)
		if err == nil || !isSerializationFailure(err) {
			return appt, err
		}
	}

	return nil, fmt.Errorf("confirm did not serialize after %d attempts: %w", confirmRetries, err)
}

// confirmOnce runs the authoritative check-then-write as one serializable
// transaction: the occupant count, the patient conflict scan, and the
// status flip all see the same ledger snapshot.
func (r *PgRepository) confirmOnce(ctx context.Context, p ConfirmParams) (*Appointment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin confirm: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, p.ID)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAppointmentCancelled
	}

	occupants, err := slotOccupantIDs(ctx, tx, appt.TreatmentName, p.Date, p.TimeSlot, &p.ID)
	if err != nil {
		return nil, fmt.Errorf("count slot occupants: %w", err)
	}
	if count := DistinctCount(occupants); count >= p.MaxCapacity {
		return nil, &CapacityExceededError{CurrentCount: count, MaxCapacity: p.MaxCapacity}
	}

	confirmed, err := confirmedForPatient(ctx, tx, appt.Email, p.Date, &p.ID)
	if err != nil {
		return nil, fmt.Errorf("load confirmed appointments: %w", err)
	}
	if anySlotOverlap(confirmed, p.TimeSlot) {
		return nil, ErrPatientConflict
	}

	row = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    confirmed_date = $2,
		    confirmed_slot = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, p.ID, schedule.DateOf(p.Date), p.TimeSlot)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm: %w", err)
	}

	return updated, nil
}

func (r *PgRepository) ResetToPending(ctx context.Context, id uuid.UUID, prefs []Preference) (*AppointmentDetail, error) {
	if len(prefs) == 0 {
		return nil, errors.New("reset to pending requires at least one preference")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin modify: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'pending',
		    confirmed_date = NULL,
		    confirmed_slot = NULL,
		    appointment_date = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		RETURNING `+appointmentColumns+`
	`, id, schedule.DateOf(prefs[0].Date))

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.notFoundOrCancelled(ctx, id)
		}
		return nil, fmt.Errorf("reset appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM appointment_preferences
		WHERE appointment_id = $1
	`, id); err != nil {
		return nil, fmt.Errorf("clear preferences: %w", err)
	}

	for i := range prefs {
		prefs[i].AppointmentID = id
	}
	if err := insertPreferences(ctx, tx, id, prefs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit modify: %w", err)
	}

	return &AppointmentDetail{Appointment: *appt, Preferences: prefs}, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		RETURNING `+appointmentColumns+`
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.notFoundOrCancelled(ctx, id)
		}
		return nil, err
	}

	return appt, nil
}

func (r *PgRepository) ConfirmedOn(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND confirmed_date = $1
		ORDER BY confirmed_slot
	`, schedule.DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// notFoundOrCancelled distinguishes a missing row from a terminal one after
// a guarded UPDATE matched nothing.
func (r *PgRepository) notFoundOrCancelled(ctx context.Context, id uuid.UUID) error {
	appt, err := r.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if appt.Status == StatusCancelled {
		return ErrAppointmentCancelled
	}
	return ErrAppointmentNotFound
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
