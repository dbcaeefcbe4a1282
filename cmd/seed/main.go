package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanamidental/booking-service/internal/db"
	"github.com/hanamidental/booking-service/internal/schedule"
)

var treatments = []string{
	"初診の方【無料相談】",
	"精密検査",
	"ホワイトニング",
	"クリーニング",
	"矯正相談カウンセリング",
	"むし歯治療",
	"定期検診",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedSchedule(context.Background(), pool, 3); err != nil {
		log.Fatalf("seed schedule: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, 200); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

// seedSchedule writes weekday rules for the next monthCount months:
// morning and afternoon sessions every day except Thursday and Sunday.
func seedSchedule(ctx context.Context, pool *pgxpool.Pool, monthCount int) error {
	log.Printf("seeding schedule for %d months", monthCount)

	openDays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Friday, time.Saturday,
	}

	morning := [2]string{"09:00", "13:00"}
	afternoon := [2]string{"14:30", "18:00"}

	now := time.Now()
	for i := 0; i < monthCount; i++ {
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)

		for _, day := range openDays {
			for _, session := range [][2]string{morning, afternoon} {
				start, _ := schedule.ParseClock(session[0])
				end, _ := schedule.ParseClock(session[1])
				if _, err := pool.Exec(ctx, `
					INSERT INTO clinic_schedule_entries
						(id, year, month, day_of_week, start_minutes, end_minutes, is_available, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, true, now(), now())
					ON CONFLICT DO NOTHING
				`, uuid.New(), month.Year(), int(month.Month()), int(day), start, end); err != nil {
					return fmt.Errorf("insert schedule entry: %w", err)
				}
			}
		}
	}

	return nil
}

// seedAppointments inserts pending requests with 1-3 ranked preferences on
// upcoming open days.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d appointments", count)

	slots := []string{
		"09:00-09:30", "09:30-10:00", "10:00-10:30", "10:30-11:00",
		"11:00-11:30", "11:30-12:00", "12:00-12:30", "12:30-13:00",
		"14:30-15:00", "15:00-15:30", "15:30-16:00", "16:00-16:30",
		"16:30-17:00", "17:00-17:30", "17:30-18:00",
	}

	for i := 0; i < count; i++ {
		id := uuid.New()
		treatment := treatments[gofakeit.Number(0, len(treatments)-1)]
		age := gofakeit.Number(6, 85)

		firstDate := nextOpenDay(time.Now().AddDate(0, 0, gofakeit.Number(1, 21)))

		if _, err := pool.Exec(ctx, `
			INSERT INTO appointments
				(id, patient_name, phone, email, age, notes, treatment_name, fee,
				 status, appointment_date, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, now(), now())
		`, id, gofakeit.Name(), gofakeit.Phone(), gofakeit.Email(), age,
			gofakeit.Sentence(6), treatment, fmt.Sprintf("%d円", gofakeit.Number(3, 30)*1000),
			schedule.DateOf(firstDate)); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		prefCount := gofakeit.Number(1, 3)
		prefDate := firstDate
		for rank := 1; rank <= prefCount; rank++ {
			slot := slots[gofakeit.Number(0, len(slots)-1)]
			if _, err := pool.Exec(ctx, `
				INSERT INTO appointment_preferences (appointment_id, pref_rank, preferred_date, preferred_slot)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT DO NOTHING
			`, id, rank, schedule.DateOf(prefDate), slot); err != nil {
				return fmt.Errorf("insert preference: %w", err)
			}
			prefDate = nextOpenDay(prefDate.AddDate(0, 0, gofakeit.Number(1, 3)))
		}
	}

	return nil
}

// nextOpenDay skips Thursdays and Sundays, matching the seeded schedule.
func nextOpenDay(t time.Time) time.Time {
	for t.Weekday() == time.Thursday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
