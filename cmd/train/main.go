package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/bot/qlearn"
	"github.com/freeeve/baghchal/api/internal/logger"
	"github.com/freeeve/baghchal/api/internal/repository"
	"github.com/freeeve/baghchal/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/baghchal/api/internal/repository/redis"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

func main() {
	var (
		sideName string
		episodes int
		opponent string
		inFile   string
		outFile  string
		useStore bool
		seed     int64
		debug    bool
	)
	params := qlearn.DefaultHyperparameters()

	flag.StringVar(&sideName, "side", "tiger", "Side to train: tiger or goat")
	flag.IntVar(&episodes, "episodes", 5000, "Number of training games")
	flag.StringVar(&opponent, "opponent", "medium", "Opponent level: easy, medium, hard or random")
	flag.StringVar(&inFile, "in", "", "Continue from this policy file")
	flag.StringVar(&outFile, "out", "", "Write the trained policy to this file")
	flag.BoolVar(&useStore, "store", false, "Load from and save to the policy store (DATABASE_URL, REDIS_URL)")
	flag.Int64Var(&seed, "seed", 0, "Seed (0 = random)")
	flag.Float64Var(&params.Alpha, "alpha", params.Alpha, "Learning rate")
	flag.Float64Var(&params.Gamma, "gamma", params.Gamma, "Discount")
	flag.Float64Var(&params.EpsilonDecay, "epsilon-decay", params.EpsilonDecay, "Exploration decay per episode")
	flag.IntVar(&params.CommitEvery, "commit-every", params.CommitEvery, "Episodes between snapshots")
	flag.BoolVar(&debug, "debug", false, "Verbose logging")

	flag.Parse()
	logger.InitCLI(debug)

	side, err := baghchal.ParseSide(sideName)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -side")
	}
	level, err := bot.ParseDifficulty(opponent)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -opponent")
	}
	if outFile == "" && !useStore {
		log.Fatal().Msg("Nowhere to save: set -out or -store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Stopping, saving the last snapshot")
		cancel()
	}()

	var store repository.PolicyStore
	if useStore {
		s, closeStore := openStore(context.Background())
		defer closeStore()
		store = s
	}

	agent := qlearn.NewAgent(side)
	switch {
	case inFile != "":
		data, err := os.ReadFile(inFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read policy")
		}
		restore(agent, data, inFile)
	case store != nil:
		data, err := store.LoadPolicy(context.Background(), side)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load policy")
		}
		if data != nil {
			restore(agent, data, "store")
		}
	}

	_, err = agent.Train(ctx, qlearn.TrainConfig{
		Opponent: bot.ContestantForDifficulty(level),
		Episodes: episodes,
		Params:   params,
		Seed:     seed,
	}, nil)
	if err != nil && !errors.Is(err, qlearn.ErrTrainingInterrupted) {
		log.Fatal().Err(err).Msg("Training failed")
	}

	// Interrupted runs keep the last published snapshot.
	snap := agent.Snapshot()
	data, err := qlearn.Encode(snap)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode policy")
	}
	if outFile != "" {
		if err := os.WriteFile(outFile, data, 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write policy")
		}
	}
	if store != nil {
		if err := store.SavePolicy(context.Background(), side, data); err != nil {
			log.Fatal().Err(err).Msg("Failed to save policy")
		}
	}
	log.Info().
		Str("side", side.String()).
		Int("episodes", snap.Episodes).
		Int("states", snap.States()).
		Int("pairs", snap.Pairs()).
		Dur("trainingTime", snap.TrainingTime).
		Msg("Policy saved")
}

func restore(agent *qlearn.Agent, data []byte, from string) {
	snap, err := qlearn.Decode(data)
	if err != nil {
		log.Fatal().Err(err).Str("from", from).Msg("Failed to decode policy")
	}
	if snap.Side != agent.Side() {
		log.Fatal().Str("from", from).Str("side", snap.Side.String()).Msg("Policy is for the other side")
	}
	agent.Handle().Store(snap)
	log.Info().Str("from", from).Int("episodes", snap.Episodes).Int("states", snap.States()).Msg("Continuing from saved policy")
}

func openStore(ctx context.Context) (repository.PolicyStore, func()) {
	store := &repository.TieredPolicyStore{}
	var closers []func()
	if url := os.Getenv("DATABASE_URL"); url != "" {
		db, err := postgres.Connect(ctx, url)
		if err != nil {
			log.Fatal().Err(err).Msg("Database connection failed")
		}
		closers = append(closers, func() { db.Close() })
		store.Store = postgres.NewPolicyRepo(db)
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		client, err := redisrepo.NewClient(ctx, url)
		if err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		closers = append(closers, func() { client.Close() })
		store.Cache = client
	}
	if !store.Enabled() {
		log.Fatal().Msg("-store needs DATABASE_URL or REDIS_URL")
	}
	return store, func() {
		for _, c := range closers {
			c()
		}
	}
}
