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
	"github.com/vaxsync/vaxsync-backend/internal/app"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/database"
	"github.com/vaxsync/vaxsync-backend/internal/handler"
	"github.com/vaxsync/vaxsync-backend/internal/logger"
	"github.com/vaxsync/vaxsync-backend/internal/router"
	"github.com/vaxsync/vaxsync-backend/internal/service"
	"github.com/vaxsync/vaxsync-backend/internal/validator"
	"github.com/vaxsync/vaxsync-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting VaxSync Backend")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories & Services ────────────────────────────
	a, err := app.New(cfg, pool, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire services")
	}
	svc := a.Services

	// ─── Reference Data & Initial Derivation ───────────────────────────
	// The catalog must exist before the first pass can resolve schedules.
	// An existing catalog is left as the admins edited it.
	res, err := svc.Catalog.SeedCatalog(ctx)
	switch {
	case err != nil:
		log.Fatal().Err(err).Msg("Catalog seed failed")
	case res.Skipped:
		log.Info().Msg("Catalog already present")
	default:
		log.Info().Int("vaccines", res.Vaccines).Int("schedule_entries", res.ScheduleEntries).Msg("Catalog seeded")
	}

	if cfg.DeriveOnStartup {
		res, err := svc.Derivation.Run(ctx, service.RunOptions{})
		switch {
		case errors.Is(err, service.ErrDerivationRunning):
			log.Info().Msg("Startup derivation skipped, another pass holds the lock")
		case err != nil:
			log.Fatal().Err(err).Msg("Startup derivation failed")
		case res.Skipped:
			log.Info().Msg("Required doses already derived")
		}
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(),
		School:     handler.NewSchoolHandler(svc.School),
		Student:    handler.NewStudentHandler(svc.Student),
		Dose:       handler.NewDoseHandler(svc.Dose),
		Catalog:    handler.NewCatalogHandler(svc.Catalog),
		Compliance: handler.NewComplianceHandler(svc.Compliance),
		Derivation: handler.NewDerivationHandler(rdb, svc.Student, svc.Queue, svc.Audit, log, cfg.AllowedOrigins),
		Audit:      handler.NewAuditHandler(svc.Audit),
		Dashboard:  handler.NewDashboardHandler(svc.Dashboard),
		System:     handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	recomputeWorker := worker.NewRecomputeWorker(rdb, svc.Derivation, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		recomputeWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(svc.Auth, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the worker; it requeues whatever it had batched.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Recompute worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
