package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hanamidental/booking-service/internal/booking"
	"github.com/hanamidental/booking-service/internal/config"
	"github.com/hanamidental/booking-service/internal/db"
	"github.com/hanamidental/booking-service/internal/notify"
	redisclient "github.com/hanamidental/booking-service/internal/redis"
	"github.com/hanamidental/booking-service/internal/schedule"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "reminder-worker").Logger()
	log.Info().Msg("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.ReminderInterval).
		Dur("lead", cfg.ReminderLead).
		Msg("running reminder worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()

	policy, err := booking.LoadCapacityPolicy(cfg.CapacityPolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("capacity policy load error")
	}

	repo := booking.NewPgRepository(pgPool)
	schedSvc := schedule.NewService(schedule.NewPgRepository(pgPool), cfg.SlotIncrement)
	evaluator := booking.NewEvaluator(repo, policy)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	notifier := notify.NewLogNotifier(log)

	svc := booking.NewService(repo, schedSvc, evaluator, locker, notifier, log,
		cfg.CancelFollowupWindow, cfg.ClinicEmail)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.ReminderLead, log)

	ticker := time.NewTicker(cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.ReminderLead, log)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, lead time.Duration, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	target := time.Now().Add(lead)

	start := time.Now()
	sent, err := svc.Remind(runCtx, target)
	if err != nil {
		log.Error().Err(err).Msg("reminder run error")
		return
	}
	log.Info().
		Int("reminders", sent).
		Str("date", target.Format("2006-01-02")).
		Dur("elapsed", time.Since(start)).
		Msg("reminder run complete")
}
