package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-viva/internal/audit"
	"github.com/stemsi/exstem-viva/internal/backend"
	"github.com/stemsi/exstem-viva/internal/config"
	"github.com/stemsi/exstem-viva/internal/database"
	"github.com/stemsi/exstem-viva/internal/generator"
	"github.com/stemsi/exstem-viva/internal/handler"
	"github.com/stemsi/exstem-viva/internal/logger"
	"github.com/stemsi/exstem-viva/internal/metrics"
	"github.com/stemsi/exstem-viva/internal/middleware"
	"github.com/stemsi/exstem-viva/internal/proctor"
	"github.com/stemsi/exstem-viva/internal/repository"
	"github.com/stemsi/exstem-viva/internal/router"
	"github.com/stemsi/exstem-viva/internal/validator"
	"github.com/stemsi/exstem-viva/internal/worker"
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
		Str("backend", cfg.BackendBaseURL).
		Msg("Starting ExStem Viva")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	eventRepo := repository.NewProctorEventRepository(pool)

	// ─── Proctoring Collaborators ──────────────────────────────────────
	registry := proctor.NewRegistry()
	publisher := audit.NewPublisher(rdb, log, audit.DefaultBuffer)
	observer := proctor.Observers{publisher, metrics.Observer{}}

	client := backend.NewClient(cfg.BackendBaseURL, nil, log)

	var gen *generator.Generator
	if cfg.LLMAPIKey != "" {
		gen, err = generator.New(generator.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Count:   cfg.QuestionCount,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize question generator")
		}
		log.Info().Str("model", cfg.LLMModel).Int("questions", gen.Count()).Msg("In-process question generation enabled")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		WS: handler.NewWSHandler(client, gen, registry, observer, handler.StreamConfig{
			Timing: proctor.Timing{
				GenerateTimeout: cfg.GenerateTimeout,
				ScoreReveal:     cfg.ScoreReveal,
				RedirectGrace:   cfg.RedirectGrace,
				BlurDebounce:    cfg.BlurDebounce,
				LoaderRotate:    cfg.LoaderRotate,
			},
			Threshold:      cfg.ViolationThreshold,
			Progressive:    cfg.ProgressiveAnswers,
			HomeURL:        cfg.HomeURL,
			AllowedOrigins: cfg.AllowedOrigins,
		}, log),
		Admin:   handler.NewAdminHandler(eventRepo, registry, log),
		Monitor: handler.NewMonitorHandler(rdb, eventRepo, registry, log),
	}
	if gen != nil {
		handlers.Generate = handler.NewGenerateHandler(gen, log)
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	eventWorker := worker.NewEventWorker(eventRepo, rdb, log)
	limiter := middleware.NewRateLimiter(cfg.GenerateRatePerMinute, time.Minute)

	workers.Add(3)
	go func() { defer workers.Done(); publisher.Run(workerCtx) }()
	go func() { defer workers.Done(); eventWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); limiter.RunCleanup(workerCtx) }()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(middleware.NewAuthenticator(cfg.JWTSecret), limiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Int("live_attempts", registry.Len()).
		Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked websocket
	// connections are not tracked by Shutdown and finish on their own.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Int64("audit_dropped", publisher.Dropped()).Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
