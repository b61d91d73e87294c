package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port        string
	DatabaseURL string // empty disables the durable policy store
	RedisURL    string // empty disables the policy cache
	JWTSecret   string
	CORSOrigins string

	AnalysisGames      int
	AnalysisProbeGames int
	AnalysisWorkers    int
	AnalysisSeed       int64
	MinimaxTimeBudget  time.Duration

	TrainingEpisodes int
	TrainingOpponent string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:        envOrDefault("PORT", "8010"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   envOrDefault("JWT_SECRET", "dev-secret-change-me"),
		CORSOrigins: envOrDefault("CORS_ORIGINS", "*"),

		AnalysisGames:      envInt("ANALYSIS_GAMES", 20),
		AnalysisProbeGames: envInt("ANALYSIS_PROBE_GAMES", 4),
		AnalysisWorkers:    envInt("ANALYSIS_WORKERS", 4),
		AnalysisSeed:       int64(envInt("ANALYSIS_SEED", 1)),
		MinimaxTimeBudget:  envDuration("MINIMAX_TIME_BUDGET", 0),

		TrainingEpisodes: envInt("TRAINING_EPISODES", 5000),
		TrainingOpponent: envOrDefault("TRAINING_OPPONENT", "medium"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Int("default", fallback).Msg("Invalid integer, using default")
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Dur("default", fallback).Msg("Invalid duration, using default")
		return fallback
	}
	return d
}
