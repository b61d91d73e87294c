package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/internal/auth"
	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/config"
	"github.com/freeeve/baghchal/api/internal/handler"
	"github.com/freeeve/baghchal/api/internal/logger"
	"github.com/freeeve/baghchal/api/internal/middleware"
	"github.com/freeeve/baghchal/api/internal/repository"
	"github.com/freeeve/baghchal/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/baghchal/api/internal/repository/redis"
	"github.com/freeeve/baghchal/api/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().
		Bool("postgres", cfg.DatabaseURL != "").
		Bool("redis", cfg.RedisURL != "").
		Int("analysisGames", cfg.AnalysisGames).
		Msg("Config loaded")

	ctx := context.Background()
	store := &repository.TieredPolicyStore{}

	// Database
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()
		store.Store = postgres.NewPolicyRepo(db)
	}

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := redisrepo.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		defer redisClient.Close()
		store.Cache = redisClient
	}

	opponent, err := bot.ParseDifficulty(cfg.TrainingOpponent)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid TRAINING_OPPONENT")
	}

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	svcCfg := service.DefaultConfig()
	svcCfg.Analysis.Games = cfg.AnalysisGames
	svcCfg.Analysis.ProbeGames = cfg.AnalysisProbeGames
	svcCfg.Analysis.Workers = cfg.AnalysisWorkers
	svcCfg.Analysis.Seed = cfg.AnalysisSeed
	svcCfg.Analysis.TimeBudget = cfg.MinimaxTimeBudget
	svcCfg.Training.Episodes = cfg.TrainingEpisodes
	svcCfg.Training.Opponent = opponent

	var policyStore repository.PolicyStore
	if store.Enabled() {
		policyStore = store
	} else {
		log.Warn().Msg("No policy store configured, trained policies are lost on restart")
	}
	analysisSvc := service.NewAnalysisService(svcCfg, policyStore, wsHub)
	if err := analysisSvc.RestorePolicies(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to restore policies (non-fatal)")
	}

	// Handlers
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	aiHandler := handler.NewAIHandler(analysisSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("POST /ai/analysis", aiHandler.RunAnalysis)
	api.HandleFunc("GET /ai/q-table/{player}", aiHandler.GetQTable)
	api.Handle("POST /ai/training", auth.RequireAdmin(http.HandlerFunc(aiHandler.StartTraining)))
	api.HandleFunc("GET /ai/training/{player}", aiHandler.TrainingStatus)
	api.Handle("DELETE /ai/training/{player}", auth.RequireAdmin(http.HandlerFunc(aiHandler.CancelTraining)))
	api.HandleFunc("GET /ai/policies", aiHandler.ListPolicies)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS(cfg.CORSOrigins), middleware.JSON)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     root,
		ReadTimeout: 15 * time.Second,
		// Analysis runs inside the request.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if err := analysisSvc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Training jobs did not stop in time")
	}
	log.Info().Msg("Server stopped")
}
