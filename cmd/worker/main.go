package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"memberpay/internal/app"
	"memberpay/internal/pkg/logger"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/secrets"
	"memberpay/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	v, err := config.Viper(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, secrets.NewViperProvider(v))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start engine")
	}
	defer a.Close()

	jobs := a.Jobs()
	sched := workers.NewScheduler(a.Runner)
	sched.Every(app.JobSweep, cfg.Jobs.SweepInterval, jobs[app.JobSweep])
	sched.Every(app.JobPurge, cfg.Jobs.PurgeInterval, jobs[app.JobPurge])
	sched.DailyAt(app.JobResync, cfg.Jobs.ResyncHour, jobs[app.JobResync])

	log.Info().
		Dur("sweep_interval", cfg.Jobs.SweepInterval).
		Dur("purge_interval", cfg.Jobs.PurgeInterval).
		Int("resync_hour_utc", cfg.Jobs.ResyncHour).
		Msg("starting background workers")

	sched.Run(ctx)
	log.Info().Msg("workers stopped")
}
