package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	_ "github.com/Johnmelogay/reparai-app-sub000/docs"
	"github.com/Johnmelogay/reparai-app-sub000/internal/ai"
	"github.com/Johnmelogay/reparai-app-sub000/internal/config"
	"github.com/Johnmelogay/reparai-app-sub000/internal/db"
	"github.com/Johnmelogay/reparai-app-sub000/internal/funnel"
	"github.com/Johnmelogay/reparai-app-sub000/internal/geocode"
	apphttp "github.com/Johnmelogay/reparai-app-sub000/internal/http"
	"github.com/Johnmelogay/reparai-app-sub000/internal/http/handlers"
)

// @title Reparaí API
// @version 1.0
// @description Diagnostic funnel and provider matching backend for the Reparaí marketplace.
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", "reparai-backend").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer store.Close()

	generator, classifier := buildAdapters(cfg, logger)

	registry := funnel.NewRegistry(funnel.Config{
		Params: funnel.Params{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MaxQuestions:        cfg.MaxQuestions,
		},
		Generator:  generator,
		Classifier: classifier,
		Questions:  funnel.NewQuestionCache(cfg.AICacheSize),
		Analyses:   funnel.NewAnalysisCache(cfg.AICacheSize),
		Logger:     logger,
		SessionTTL: cfg.SessionTTL,
	})

	h := &handlers.Handler{
		Store:          store,
		Funnels:        registry,
		Geocoder:       &geocode.NominatimGeocoder{},
		Validator:      validator.New(),
		Logger:         logger,
		AdminKey:       cfg.AdminKey,
		CountryDefault: cfg.CountryDefault,
		AITimeout:      cfg.AITimeout,
	}

	router := apphttp.NewRouter(cfg, logger, h)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildAdapters picks the AI collaborators from config. Preference order:
// a direct LLM endpoint, then the serverless functions, then the
// deterministic mock used for local development and demos.
func buildAdapters(cfg config.Config, logger zerolog.Logger) (ai.Generator, ai.Classifier) {
	switch {
	case cfg.LLMBaseURL != "":
		adapter := &ai.LLMAdapter{
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			APIKey:  cfg.LLMAPIKey,
			Client:  &http.Client{Timeout: cfg.AITimeout},
		}
		logger.Info().Str("base_url", cfg.LLMBaseURL).Str("model", cfg.LLMModel).Msg("using LLM adapter")
		return adapter, adapter
	case cfg.AIURL != "":
		client := &http.Client{Timeout: cfg.AITimeout}
		logger.Info().Str("ai_url", cfg.AIURL).Msg("using AI function adapter")
		return &ai.HTTPGenerator{BaseURL: cfg.AIURL, Client: client},
			&ai.HTTPClassifier{BaseURL: cfg.AIURL, Client: client}
	default:
		logger.Warn().Msg("no AI endpoint configured, using mock adapter")
		return &ai.MockGenerator{}, &ai.MockClassifier{}
	}
}
