package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"genstudio/internal/bootstrap"
	"genstudio/internal/infra"
)

// recoverEvery re-runs recovery so jobs whose owner died are adopted once
// their lease expires.
const recoverEvery = "@every 30s"

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: bootstrap failed")
	}
	defer rt.Close()

	recoverJobs := func() {
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		res, err := rt.Orchestrator.Recover(rctx, cfg.StalePendingAfter)
		if err != nil {
			logger.Error().Err(err).Msg("worker: recovery failed")
			return
		}
		logger.Info().
			Int("resumed", res.Resumed).
			Int("stale_pending", res.StalePending).
			Int("active", rt.Orchestrator.Active()).
			Msg("worker: recovery pass")
	}
	recoverJobs()

	scheduler := cron.New()
	if _, err := rt.Orchestrator.ScheduleReconcile(scheduler, cfg.ReconcileSchedule); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.ReconcileSchedule).Msg("worker: invalid reconcile schedule")
	}
	if _, err := scheduler.AddFunc(recoverEvery, recoverJobs); err != nil {
		logger.Fatal().Err(err).Msg("worker: schedule recovery")
	}
	scheduler.Start()

	logger.Info().Str("reconcile", cfg.ReconcileSchedule).Msg("worker: started")
	<-ctx.Done()

	<-scheduler.Stop().Done()
	logger.Info().Msg("worker: stopped")
}
