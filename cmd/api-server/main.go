package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hanamidental/booking-service/internal/api"
	"github.com/hanamidental/booking-service/internal/booking"
	"github.com/hanamidental/booking-service/internal/config"
	"github.com/hanamidental/booking-service/internal/db"
	"github.com/hanamidental/booking-service/internal/notify"
	redisclient "github.com/hanamidental/booking-service/internal/redis"
	"github.com/hanamidental/booking-service/internal/schedule"
)

const version = "1.2.0"

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "api-server").Logger()
	log.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	policy, err := booking.LoadCapacityPolicy(cfg.CapacityPolicyFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.CapacityPolicyFile).Msg("capacity policy load error")
	}

	schedRepo := schedule.NewPgRepository(pgPool)
	schedSvc := schedule.NewService(schedRepo, cfg.SlotIncrement)

	bookingRepo := booking.NewPgRepository(pgPool)
	evaluator := booking.NewEvaluator(bookingRepo, policy)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	notifier := notify.NewLogNotifier(log)

	bookingSvc := booking.NewService(bookingRepo, schedSvc, evaluator, locker, notifier, log,
		cfg.CancelFollowupWindow, cfg.ClinicEmail)

	handler := api.NewRouter(api.RouterConfig{
		Bookings: bookingSvc,
		Schedule: schedSvc,
		PgPool:   pgPool,
		Redis:    rdb,
		Logger:   log,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
