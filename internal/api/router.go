package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hanamidental/booking-service/internal/booking"
	"github.com/hanamidental/booking-service/internal/schedule"
)

type RouterConfig struct {
	Bookings *booking.Service
	Schedule *schedule.Service
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Patient-facing booking flow
	r.Get("/availability", availabilityHandler(cfg.Bookings))
	r.Post("/appointments", createAppointmentHandler(cfg.Bookings))

	// Appointment lifecycle
	r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/modify", modifyAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))

	// Admin schedule setup
	r.Get("/schedule/{year}/{month}", getScheduleMonthHandler(cfg.Schedule))
	r.Put("/schedule/{year}/{month}", putScheduleMonthHandler(cfg.Schedule))
	r.Put("/schedule/overrides/{date}", putOverrideHandler(cfg.Schedule))
	r.Delete("/schedule/overrides/{date}", deleteOverrideHandler(cfg.Schedule))

	return r
}
