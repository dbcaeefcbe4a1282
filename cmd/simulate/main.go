// simulate hammers the booking API with concurrent create and confirm
// requests aimed at a single day, then verifies against Postgres that no
// (treatment, date, slot) ended up over its capacity limit.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/hanamidental/booking-service/internal/booking"
	"github.com/hanamidental/booking-service/internal/db"
	"github.com/hanamidental/booking-service/internal/schedule"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	ConfirmRatio float64
	TargetDate   string
	Treatment    string
	PostgresDSN  string
}

type DataPool struct {
	Slots []string

	mu           sync.RWMutex
	appointments []string
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment() (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, rejected bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case rejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	booking OperationMetrics
	confirm OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()

	log.Printf("config: duration=%s workers=%d confirm_ratio=%.2f date=%s treatment=%q",
		cfg.Duration, cfg.Workers, cfg.ConfirmRatio, cfg.TargetDate, cfg.Treatment)

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool: &DataPool{
			Slots: []string{
				"09:00-09:30", "09:30-10:00", "10:00-10:30", "10:30-11:00",
				"11:00-11:30", "11:30-12:00", "12:00-12:30", "12:30-13:00",
			},
		},
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	if cfg.PostgresDSN != "" {
		if err := verifyCapacityInvariant(cfg); err != nil {
			log.Fatalf("capacity invariant check FAILED: %v", err)
		}
		log.Println("capacity invariant holds")
	}
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.4),
		TargetDate:   getEnv("SIM_TARGET_DATE", time.Now().AddDate(0, 0, 7).Format("2006-01-02")),
		Treatment:    getEnv("SIM_TREATMENT", "初診の方【無料相談】"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
	}
}

func (s *Simulator) Run() {
	deadline := time.Now().Add(s.config.Duration)

	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				if rand.Float64() < s.config.ConfirmRatio {
					s.doConfirm()
				} else {
					s.doCreate()
				}
			}
		}()
	}
	wg.Wait()
}

func (s *Simulator) doCreate() {
	slot := s.pool.Slots[rand.Intn(len(s.pool.Slots))]

	body, _ := json.Marshal(map[string]any{
		"patient_name": gofakeit.Name(),
		"phone":        gofakeit.Phone(),
		"email":        gofakeit.Email(),
		"treatment":    s.config.Treatment,
		"preferences": []map[string]string{
			{"date": s.config.TargetDate, "time_slot": slot},
		},
	})

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		s.booking.Record(latency, false, false)
		return
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusCreated {
		s.booking.Record(latency, false, resp.StatusCode == http.StatusConflict)
		return
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err == nil && created.ID != "" {
		s.pool.AddAppointment(created.ID)
	}
	s.booking.Record(latency, true, false)
}

func (s *Simulator) doConfirm() {
	id, ok := s.pool.GetRandomAppointment()
	if !ok {
		return
	}

	slot := s.pool.Slots[rand.Intn(len(s.pool.Slots))]
	body, _ := json.Marshal(map[string]string{
		"date":      s.config.TargetDate,
		"time_slot": slot,
	})

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/appointments/"+id+"/confirm", "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		s.confirm.Record(latency, false, false)
		return
	}
	defer drain(resp)

	s.confirm.Record(latency, resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict)
}

func (s *Simulator) PrintReport() {
	printOp := func(name string, om *OperationMetrics) {
		avg, p50, p95 := om.Stats()
		fmt.Printf("%-10s total=%d success=%d rejected=%d error=%d avg=%s p50=%s p95=%s\n",
			name, om.Total, om.Success, om.Rejected, om.Error, avg, p50, p95)
	}

	fmt.Println("--- simulation report ---")
	printOp("create", &s.booking)
	printOp("confirm", &s.confirm)
}

// verifyCapacityInvariant recounts every occupied (treatment, date, slot)
// straight from Postgres and compares it against the capacity policy.
func verifyCapacityInvariant(cfg SimConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	date, err := schedule.ParseDate(cfg.TargetDate)
	if err != nil {
		return err
	}

	policy := booking.DefaultCapacityPolicy()

	rows, err := pool.Query(ctx, `
		SELECT DISTINCT confirmed_slot
		FROM appointments
		WHERE status = 'confirmed' AND confirmed_date = $1 AND treatment_name = $2
	`, schedule.DateOf(date), cfg.Treatment)
	if err != nil {
		return err
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	max := policy.Capacity(cfg.Treatment)
	for _, slot := range slots {
		var confirmed int
		err := pool.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM appointments
			WHERE status = 'confirmed' AND confirmed_date = $1 AND confirmed_slot = $2 AND treatment_name = $3
		`, schedule.DateOf(date), slot, cfg.Treatment).Scan(&confirmed)
		if err != nil {
			return err
		}
		if confirmed > max {
			return fmt.Errorf("slot %s holds %d confirmed appointments, capacity is %d", slot, confirmed, max)
		}
	}

	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
