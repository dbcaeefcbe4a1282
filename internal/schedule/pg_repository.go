package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var weekday int

	err := row.Scan(
		&e.ID,
		&e.Year,
		&e.Month,
		&weekday,
		&e.Start,
		&e.End,
		&e.Available,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.DayOfWeek = time.Weekday(weekday)
	return &e, nil
}

func scanOverride(row pgx.Row) (*Override, error) {
	var ov Override

	err := row.Scan(
		&ov.ID,
		&ov.Date,
		&ov.Start,
		&ov.End,
		&ov.Available,
		&ov.CreatedAt,
		&ov.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &ov, nil
}

// Interface methods

func (r *PgRepository) EntriesFor(ctx context.Context, year, month int, weekday time.Weekday) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, year, month, day_of_week, start_minutes, end_minutes, is_available, created_at, updated_at
		FROM clinic_schedule_entries
		WHERE year = $1 AND month = $2 AND day_of_week = $3
		ORDER BY start_minutes
	`, year, month, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) EntriesForMonth(ctx context.Context, year, month int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, year, month, day_of_week, start_minutes, end_minutes, is_available, created_at, updated_at
		FROM clinic_schedule_entries
		WHERE year = $1 AND month = $2
		ORDER BY day_of_week, start_minutes
	`, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) OverridesFor(ctx context.Context, date time.Time) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, override_date, start_minutes, end_minutes, is_available, created_at, updated_at
		FROM clinic_schedule_overrides
		WHERE override_date = $1
		ORDER BY start_minutes
	`, DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Override
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ov)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ReplaceMonth(ctx context.Context, year, month int, entries []Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace month: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM clinic_schedule_entries
		WHERE year = $1 AND month = $2
	`, year, month); err != nil {
		return fmt.Errorf("clear month: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO clinic_schedule_entries
				(id, year, month, day_of_week, start_minutes, end_minutes, is_available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, uuid.New(), year, month, int(e.DayOfWeek), e.Start, e.End, e.Available); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) UpsertOverride(ctx context.Context, ov Override) (*Override, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO clinic_schedule_overrides
			(id, override_date, start_minutes, end_minutes, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (override_date, start_minutes) DO UPDATE
		SET end_minutes = EXCLUDED.end_minutes,
		    is_available = EXCLUDED.is_available,
		    updated_at = now()
		RETURNING id, override_date, start_minutes, end_minutes, is_available, created_at, updated_at
	`, uuid.New(), DateOf(ov.Date), ov.Start, ov.End, ov.Available)

	return scanOverride(row)
}

func (r *PgRepository) DeleteOverrides(ctx context.Context, date time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM clinic_schedule_overrides
		WHERE override_date = $1
	`, DateOf(date))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
