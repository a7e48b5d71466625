package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/broker"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/lockprofile"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/storage"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
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
		Msg("Starting ExStem Proctor")

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

	// ─── Connect to MinIO (optional) ───────────────────────────────────
	// Without object storage, locked-browser sessions run without capture.
	var captures capture.Store
	if mc, err := database.NewMinioClient(ctx, cfg, log); err != nil {
		log.Warn().Err(err).Msg("MinIO unavailable, proctoring capture disabled")
	} else {
		captures = storage.NewMinioStore(mc, cfg.MinioBucket)
	}

	// ─── Connect to RabbitMQ (optional) ────────────────────────────────
	publisher, err := broker.NewPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer publisher.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool, rdb, log)
	questionRepo := repository.NewQuestionRepository(pool)
	enrollmentRepo := repository.NewEnrollmentRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	eventQueue := repository.NewEventQueue(rdb)
	answerQueue := repository.NewAnswerQueue(rdb)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	dispatcher := worker.NewDispatcher(eventQueue, worker.DispatcherConfig{
		QueueSize:   cfg.DispatchQueueSize,
		Workers:     cfg.DispatchWorkers,
		MaxRetries:  cfg.DispatchMaxRetries,
		RetryDelay:  cfg.DispatchRetryDelay,
		SendTimeout: 2 * time.Second,
	}, log)
	dispatcher.Start(workerCtx)

	var workers sync.WaitGroup
	for _, w := range []interface{ Start(context.Context) }{
		worker.NewViolationWorker(pool, rdb, log),
		worker.NewCaptureWorker(pool, rdb, log),
		worker.NewAutosaveWorker(pool, rdb, log),
	} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			w.Start(workerCtx)
		}()
	}

	// ─── Initialize Services ──────────────────────────────────────────
	clk := clockwork.NewRealClock()
	registry := session.NewRegistry()
	authService := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry)

	sessionService := service.NewExamSessionService(service.ExamSessionDeps{
		Exams:       examRepo,
		Questions:   questionRepo,
		Enrollments: enrollmentRepo,
		Sessions:    sessionRepo,
		Results:     resultRepo,
		Events:      dispatcher,
		Captures:    captures,
		Answers:     answerQueue,
		Publisher:   publisher,
		Lifecycle:   eventQueue,
		Clock:       clk,
		Policy: session.Policy{
			CaptureInterval:      cfg.CaptureInterval,
			ViewportPollInterval: cfg.ViewportPollInterval,
			AbortAfterViolations: cfg.AbortAfterViolations,
			SaveRetryBase:        time.Second,
		},
		MaxFrameBytes: cfg.MaxCaptureFrameSize,
	}, registry, log)

	profileService := service.NewLockProfileService(examRepo, lockprofile.RuntimeURLs{
		FrontendURL:         cfg.FrontendURL,
		InfrastructureHosts: cfg.SEBAllowedHosts,
	})
	violationService := service.NewViolationService(dispatcher, violationRepo, registry, clk, log)
	monitorService := service.NewMonitorService(registry, violationService, log)

	opticalDeps := service.OpticalDeps{
		Exams:         examRepo,
		Questions:     questionRepo,
		Sessions:      sessionRepo,
		Results:       resultRepo,
		Publisher:     publisher,
		Clock:         clk,
		MinConfidence: cfg.OMRMinConfidence,
	}
	if cfg.OMRServiceURL != "" {
		opticalDeps.Detector = service.NewOMRClient(cfg.OMRServiceURL, &http.Client{Timeout: 30 * time.Second})
	}
	opticalService := service.NewOpticalService(opticalDeps, log)

	violationLimiter := middleware.NewRateLimiter(rdb, cfg.ViolationRateLimit, time.Minute, config.CacheKey.ViolationRateKey, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(sessionService, log),
		Exam:          handler.NewExamHandler(profileService, violationService, violationLimiter, log),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Monitor:       handler.NewMonitorHandler(rdb, monitorService, violationService, log),
		Optical:       handler.NewOpticalHandler(opticalService, log),
		System:        handler.NewSystemHandler(pool, rdb, dispatcher, registry, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
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

	// 2. Tear down live sessions. Their end markers go through the dispatcher.
	sessionService.Shutdown()

	// 3. Flush the dispatcher, then stop the workers and let them drain their queues.
	dispatcher.Close()
	workerCancel()
	workers.Wait()

	log.Info().
		Uint64("events_delivered", dispatcher.Delivered()).
		Uint64("events_dropped", dispatcher.Dropped()).
		Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
