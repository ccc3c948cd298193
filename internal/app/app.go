// Package app assembles the reconciliation engine from configuration. The
// server, the worker and the CLI all build through it so they share one
// wiring.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"memberpay/internal/engine/checkout"
	"memberpay/internal/engine/idempotency"
	"memberpay/internal/engine/members"
	"memberpay/internal/engine/notify"
	"memberpay/internal/engine/providers"
	"memberpay/internal/engine/reconcile"
	"memberpay/internal/pkg/logger"
	"memberpay/internal/platform/audit"
	"memberpay/internal/platform/auth"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/database"
	"memberpay/internal/platform/repositories"
	"memberpay/internal/platform/secrets"
	"memberpay/internal/workers"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"

	JobSweep  = "sweep"
	JobPurge  = "purge"
	JobResync = "resync"
)

type App struct {
	Config     *config.Config
	Secrets    secrets.Provider
	DB         *sql.DB
	Redis      *redis.Client
	Claims     idempotency.Store
	Profiles   *repositories.ProfileRepository
	Recorder   *audit.Recorder
	Providers  *providers.Registry
	Sink       notify.Sink
	Reconciler *reconcile.Service
	Members    *members.Service
	Checkout   *checkout.Service
	Runner     *workers.Runner

	discord *notify.Discord
	log     zerolog.Logger
}

// New opens storage, applies migrations and builds every service. Close
// releases what it opened.
func New(ctx context.Context, cfg *config.Config, sp secrets.Provider) (*App, error) {
	a := &App{
		Config:  cfg,
		Secrets: sp,
		Runner:  workers.NewRunner(),
		log:     logger.Component("app"),
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = db

	if err := database.Migrate(db); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	claims, err := a.claimStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Claims = claims

	a.Profiles = repositories.NewProfileRepository(db)
	a.Recorder = audit.NewRecorder(db)
	a.Providers = buildRegistry(cfg, sp)
	a.Sink = a.buildSink()

	a.Reconciler = reconcile.NewService(reconcile.Dependencies{
		Claims:    a.Claims,
		Profiles:  a.Profiles,
		Providers: a.Providers,
		Sink:      a.Sink,
		Audit:     a.Recorder,
	}, reconcile.Options{
		WebhookTTL:      cfg.Idempotency.WebhookTTL,
		ItemTimeout:     cfg.Jobs.ItemTimeout,
		PurgeBatchSize:  cfg.Jobs.PurgeBatchSize,
		PurgeMaxBatches: cfg.Jobs.PurgeMaxBatches,
	})
	a.Members = members.NewService(a.Profiles, a.Recorder)
	a.Checkout = checkout.NewService(a.Providers, a.Profiles)

	a.log.Info().
		Str("claim_backend", cfg.Idempotency.Backend).
		Strs("providers", a.Providers.Names()).
		Msg("engine assembled")

	return a, nil
}

func (a *App) claimStore(ctx context.Context) (idempotency.Store, error) {
	switch strings.ToLower(a.Config.Idempotency.Backend) {
	case "", BackendSQLite:
		return idempotency.NewSQLStore(a.DB, nil), nil
	case BackendRedis:
		rc := a.Config.Redis
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return idempotency.NewRedisStore(a.Redis, a.Config.Idempotency.KeyPrefix, nil), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", a.Config.Idempotency.Backend)
	}
}

func buildRegistry(cfg *config.Config, sp secrets.Provider) *providers.Registry {
	var ps []providers.Provider
	if cfg.Paystack.Enabled {
		ps = append(ps, providers.NewPaystack(cfg.Paystack, sp))
	}
	if cfg.PayFast.Enabled {
		ps = append(ps, providers.NewPayFast(cfg.PayFast, sp))
	}
	return providers.NewRegistry(ps...)
}

func (a *App) buildSink() notify.Sink {
	sinks := notify.Multi{notify.Log{Logger: logger.Component("notify")}}
	if name := a.Config.Notify.DiscordSecretName; name != "" {
		a.discord = notify.NewDiscord(a.Secrets, name, a.Config.Notify.Timeout)
		sinks = append(sinks, a.discord)
	}
	return sinks
}

// Jobs returns the scheduled reconciliation jobs by name.
func (a *App) Jobs() map[string]workers.Job {
	return map[string]workers.Job{
		JobSweep: func(ctx context.Context) error {
			_, err := a.Reconciler.Sweep(ctx)
			return err
		},
		JobPurge: func(ctx context.Context) error {
			_, err := a.Reconciler.Purge(ctx)
			return err
		},
		JobResync: func(ctx context.Context) error {
			_, err := a.Reconciler.Resync(ctx)
			return err
		},
	}
}

// TokenService builds the job-trigger token service from the configured
// signing secret.
func (a *App) TokenService(ctx context.Context) (*auth.TokenService, error) {
	secret, err := a.Secrets.GetSecret(ctx, a.Config.Ops.TokenSecretName)
	if err != nil {
		return nil, fmt.Errorf("ops token secret: %w", err)
	}
	return auth.NewTokenService(secret, a.Config.Ops.TokenTTL), nil
}

// Close waits for in-flight jobs and notifications, then closes storage.
func (a *App) Close() error {
	a.Runner.Wait()
	if a.discord != nil {
		a.discord.Wait()
	}

	var firstErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
