package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"memberpay/internal/api"
	"memberpay/internal/api/handlers"
	"memberpay/internal/api/middleware"
	"memberpay/internal/app"
	"memberpay/internal/pkg/logger"
	"memberpay/internal/platform/auth"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/secrets"
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

	tokenSvc, err := a.TokenService(ctx)
	if err != nil {
		// Job endpoints then reject every request.
		log.Warn().Err(err).Msg("job trigger endpoints disabled")
		tokenSvc = auth.NewTokenService("", cfg.Ops.TokenTTL)
	}

	checks := map[string]handlers.HealthCheck{"database": a.DB.PingContext}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	deps := &api.Dependencies{
		WebhookHandler:  handlers.NewWebhookHandler(a.Reconciler, a.Secrets, cfg.Paystack.SecretName, cfg.Paystack.VerifySignature),
		MemberHandler:   handlers.NewMemberHandler(a.Members, a.Reconciler),
		CheckoutHandler: handlers.NewCheckoutHandler(a.Checkout),
		JobsHandler:     handlers.NewJobsHandler(ctx, a.Runner, a.Jobs()),
		HealthHandler:   handlers.NewHealthHandler(checks),
		MetricsHandler:  handlers.NewMetricsHandler(a.Reconciler.Stats()),
		AuditHandler:    handlers.NewAuditHandler(a.Recorder),
		JobsAuth:        middleware.NewJobsAuth(tokenSvc, auth.ScopeJobs),
		RateLimiter:     middleware.NewRateLimiter(nil),
		PublicPerMinute: cfg.RateLimit.PublicPerMinute,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go cleanupLoop(ctx, deps.RateLimiter)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func cleanupLoop(ctx context.Context, rl *middleware.RateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}
