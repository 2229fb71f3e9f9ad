package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genstudio/internal/bootstrap"
	"genstudio/internal/http/handlers"
	httpapi "genstudio/internal/http/httpapi"
	"genstudio/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: bootstrap failed")
	}
	defer rt.Close()

	// Jobs left behind by a previous process are picked up here unless a
	// worker already holds their lease.
	if res, err := rt.Orchestrator.Recover(ctx, cfg.StalePendingAfter); err != nil {
		logger.Error().Err(err).Msg("api: recovery failed")
	} else if res.Resumed > 0 || res.StalePending > 0 {
		logger.Info().Int("resumed", res.Resumed).Int("stale_pending", res.StalePending).Msg("api: recovered jobs")
	}

	go func() {
		if err := rt.RunRelay(ctx); err != nil {
			logger.Error().Err(err).Msg("api: progress relay stopped")
		}
	}()

	app := &handlers.App{
		Resolver:     rt.Resolver,
		Orchestrator: rt.Orchestrator,
		Assets:       rt.Assets,
		Materializer: rt.Materializer,
		Logger:       logger,
		DeliveryTTL:  cfg.DeliveryURLTTL,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
		Static:          rt.Static,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
