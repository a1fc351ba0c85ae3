package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voiverse/interview-server/internal/config"
	"github.com/voiverse/interview-server/internal/evaluation"
	"github.com/voiverse/interview-server/internal/gemini"
	"github.com/voiverse/interview-server/internal/handler"
	"github.com/voiverse/interview-server/internal/jobs"
	"github.com/voiverse/interview-server/internal/middleware"
	"github.com/voiverse/interview-server/internal/model"
	"github.com/voiverse/interview-server/internal/ratelimit"
	"github.com/voiverse/interview-server/internal/redis"
	"github.com/voiverse/interview-server/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sessionStore, err := store.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer sessionStore.Close()
	log.Info().Msg("session store ready")

	admission := ratelimit.NewAdmission(cfg)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		admission = ratelimit.NewRedisAdmission(redisClient.Client, cfg)
		log.Info().Msg("redis connected, rate limits shared across instances")
	}

	generator := gemini.NewClient(gemini.Config{
		BaseURL:          cfg.GeminiBaseURL,
		APIKey:           cfg.GeminiAPIKey,
		InterviewerModel: cfg.InterviewerModel,
		EvaluatorModel:   cfg.EvaluatorModel,
		Timeout:          cfg.APITimeout(),
		MaxAttempts:      config.GenerateMaxAttempts,
		BaseDelay:        config.GenerateBaseDelay,
	})

	evaluator := evaluation.NewEngine(generator, evaluation.Options{
		Timeout: cfg.EvalTimeout(),
		Thresholds: model.TierThresholds{
			S: cfg.STierThreshold,
			A: cfg.ATierThreshold,
			B: cfg.BTierThreshold,
		},
		STierNotification:   cfg.STierNotification,
		DefaultNotification: cfg.DefaultNotification,
	})

	interviewHandler := handler.NewInterviewHandler(cfg, sessionStore, generator, evaluator, admission)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	ipLimitMiddleware := middleware.NewIPRateLimitMiddleware(
		cfg.RateLimitRequests, cfg.AddressWindow(), "interviews",
	)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1/interviews", func(r chi.Router) {
		r.Use(ipLimitMiddleware.Handler)
		r.Mount("/", interviewHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(sessionStore, config.CleanupJobInterval, config.SessionRetentionAge)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0, // streaming responses
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
