// Command server runs the reply-engine HTTP API and the background retry
// scheduler. It loads configuration from the environment (.env supported),
// opens the SQLite store, wires the Gemini classifier and the mail relay,
// and shuts everything down gracefully on SIGINT/SIGTERM.
//
// @title        Reply Engine API
// @version      1.0
// @description  Reply-intent classification and autonomous auto-reply service.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/replypilot/go-reply-engine/internal/config"
	"github.com/replypilot/go-reply-engine/internal/detect"
	httpapi "github.com/replypilot/go-reply-engine/internal/http"
	"github.com/replypilot/go-reply-engine/internal/mail"
	"github.com/replypilot/go-reply-engine/internal/observability"
	"github.com/replypilot/go-reply-engine/internal/repo"
	"github.com/replypilot/go-reply-engine/internal/scheduler"
	"github.com/replypilot/go-reply-engine/internal/services"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	classifier, err := detect.NewGeminiClassifier(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("classifier setup failed")
	}
	sender := mail.NewRelaySender(cfg.Relay.URL, cfg.Relay.Token, cfg.Relay.Timeout)

	// Background retry/escalation loop. The HTTP layer builds its own
	// service instances; the scheduler shares the same DB and pipeline.
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		det := detect.NewDetector(classifier)
		svc := services.NewReplyService(db, det, sender)
		sched = scheduler.New(db, svc, scheduler.Options{
			Interval:         cfg.Scheduler.Interval,
			Jitter:           cfg.Scheduler.Jitter,
			BaseRetryDelay:   cfg.Scheduler.BaseRetryDelay,
			MaxRetryAttempts: cfg.Scheduler.MaxRetryAttempts,
			Lookback:         cfg.Scheduler.Lookback,
			BatchLimit:       cfg.Scheduler.BatchLimit,
		}, log.Logger)
		sched.Start(ctx)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, classifier, sender, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
