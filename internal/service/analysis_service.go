package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/internal/analysis"
	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/bot/qlearn"
	"github.com/freeeve/baghchal/api/internal/model"
	"github.com/freeeve/baghchal/api/internal/repository"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

var (
	ErrTrainingInProgress = errors.New("training already in progress for this side")
	ErrNoTrainingJob      = errors.New("no training job for this side")
	ErrPolicyNotFound     = errors.New("no saved policy for this side")
	ErrNoPolicyStore      = errors.New("no policy store configured")
	ErrInvalidEpisodes    = errors.New("episodes must be positive")
)

// AnalysisConfig controls comparison runs.
type AnalysisConfig struct {
	Games      int
	ProbeGames int
	Workers    int
	Seed       int64
	TimeBudget time.Duration // per minimax move, 0 = none
	MaxPlies   int
}

// TrainingConfig holds the defaults for training jobs.
type TrainingConfig struct {
	Episodes int
	Opponent bot.Difficulty
	Params   qlearn.Hyperparameters
	// MaxEpisodes caps a single request.
	MaxEpisodes int
}

// Config configures an AnalysisService.
type Config struct {
	Analysis AnalysisConfig
	Training TrainingConfig
}

// DefaultConfig returns the settings used for unset fields.
func DefaultConfig() Config {
	return Config{
		Analysis: AnalysisConfig{
			Games:      20,
			ProbeGames: 4,
			Workers:    4,
			Seed:       1,
			MaxPlies:   bot.DefaultMaxPlies,
		},
		Training: TrainingConfig{
			Episodes:    5000,
			Opponent:    bot.Medium,
			Params:      qlearn.DefaultHyperparameters(),
			MaxEpisodes: 1000000,
		},
	}
}

// AnalysisService owns the learned agent of each side, runs comparisons
// against the guest AI levels and manages training jobs.
type AnalysisService struct {
	cfg         Config
	agents      map[baghchal.Side]*qlearn.Agent
	store       repository.PolicyStore
	broadcaster Broadcaster
	jobs        *jobRegistry
}

// NewAnalysisService creates an AnalysisService. store may be nil, in
// which case policies live in memory only.
func NewAnalysisService(cfg Config, store repository.PolicyStore, broadcaster Broadcaster) *AnalysisService {
	def := DefaultConfig()
	if cfg.Analysis.Games <= 0 {
		cfg.Analysis.Games = def.Analysis.Games
	}
	if cfg.Analysis.ProbeGames < 0 {
		cfg.Analysis.ProbeGames = 0
	}
	if cfg.Analysis.Workers <= 0 {
		cfg.Analysis.Workers = 1
	}
	if cfg.Analysis.MaxPlies <= 0 {
		cfg.Analysis.MaxPlies = def.Analysis.MaxPlies
	}
	if cfg.Training.Episodes <= 0 {
		cfg.Training.Episodes = def.Training.Episodes
	}
	if cfg.Training.Opponent == "" {
		cfg.Training.Opponent = def.Training.Opponent
	}
	if cfg.Training.Params == (qlearn.Hyperparameters{}) {
		cfg.Training.Params = def.Training.Params
	}
	if cfg.Training.MaxEpisodes <= 0 {
		cfg.Training.MaxEpisodes = def.Training.MaxEpisodes
	}
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &AnalysisService{
		cfg: cfg,
		agents: map[baghchal.Side]*qlearn.Agent{
			baghchal.Tiger: qlearn.NewAgent(baghchal.Tiger),
			baghchal.Goat:  qlearn.NewAgent(baghchal.Goat),
		},
		store:       store,
		broadcaster: broadcaster,
		jobs:        newJobRegistry(),
	}
}

// Agent returns the learned agent playing side.
func (s *AnalysisService) Agent(side baghchal.Side) *qlearn.Agent {
	return s.agents[side]
}

// RunAnalysis plays the learned agents against the guest AI level named by
// difficulty, plus short probe matches against the other levels, and
// builds the comparison report.
func (s *AnalysisService) RunAnalysis(ctx context.Context, difficulty string) (*model.AnalysisResponse, error) {
	level, err := bot.ParseGuestDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	cfg := s.cfg.Analysis
	tiger, goat := s.agents[baghchal.Tiger], s.agents[baghchal.Goat]
	q := qlearn.Contestant(tiger, goat)

	start := time.Now()
	results, err := s.playAgainst(ctx, q, level, cfg.Games, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("analysis against %s: %w", level, err)
	}

	probes := make(map[string][]bot.MatchResult)
	if cfg.ProbeGames > 0 {
		for i, other := range bot.GuestDifficulties() {
			if other == level {
				continue
			}
			probe, err := s.playAgainst(ctx, q, other, cfg.ProbeGames, bot.GameSeed(cfg.Seed, cfg.Games+i))
			if err != nil {
				return nil, fmt.Errorf("probe against %s: %w", other, err)
			}
			probes[string(other)] = probe
		}
	}

	tSnap, gSnap := tiger.Snapshot(), goat.Snapshot()
	resp, err := analysis.BuildComparison(analysis.ComparisonInput{
		Difficulty:   string(level),
		QName:        qlearn.Name,
		GuestName:    string(level),
		Results:      results,
		Probes:       probes,
		TrainingTime: tSnap.TrainingTime + gSnap.TrainingTime,
		QStates:      tSnap.States() + gSnap.States(),
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("difficulty", string(level)).
		Int("games", resp.NumGames).
		Int("qWins", resp.QLearningWins).
		Int("guestWins", resp.GuestAIWins).
		Int("draws", resp.Draws).
		Int64("coverageGaps", tiger.CoverageGaps()+goat.CoverageGaps()).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis complete")
	return resp, nil
}

func (s *AnalysisService) playAgainst(ctx context.Context, q bot.Contestant, level bot.Difficulty, games int, seed int64) ([]bot.MatchResult, error) {
	var opts []bot.MinimaxOption
	if s.cfg.Analysis.TimeBudget > 0 {
		opts = append(opts, bot.WithTimeBudget(s.cfg.Analysis.TimeBudget))
	}
	return bot.PlayMatch(ctx, bot.MatchConfig{
		A:        q,
		B:        bot.ContestantForDifficulty(level, opts...),
		Games:    games,
		Sides:    bot.AlternateSides,
		Seed:     seed,
		Workers:  s.cfg.Analysis.Workers,
		MaxPlies: s.cfg.Analysis.MaxPlies,
	})
}

// GetQTable summarizes the current policy of the side named by player.
func (s *AnalysisService) GetQTable(_ context.Context, player string) (model.QTableResponse, error) {
	side, err := baghchal.ParseSide(player)
	if err != nil {
		return model.QTableResponse{}, err
	}
	return analysis.SummarizeTable(s.agents[side].Snapshot(), analysis.DefaultSampleSize), nil
}

// RestorePolicies loads each side's saved policy from the store, if any.
// A side with no saved policy keeps its current one.
func (s *AnalysisService) RestorePolicies(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	for _, side := range []baghchal.Side{baghchal.Tiger, baghchal.Goat} {
		err := s.LoadPolicy(ctx, side)
		if errors.Is(err, ErrPolicyNotFound) {
			log.Info().Str("side", side.String()).Msg("No saved policy, starting untrained")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadPolicy replaces side's policy with the saved one.
func (s *AnalysisService) LoadPolicy(ctx context.Context, side baghchal.Side) error {
	if s.store == nil {
		return ErrNoPolicyStore
	}
	data, err := s.store.LoadPolicy(ctx, side)
	if err != nil {
		return fmt.Errorf("load %s policy: %w", side, err)
	}
	if data == nil {
		return ErrPolicyNotFound
	}
	snap, err := qlearn.Decode(data)
	if err != nil {
		return fmt.Errorf("load %s policy: %w", side, err)
	}
	if snap.Side != side {
		return fmt.Errorf("load %s policy: %w: stored policy plays %s", side, qlearn.ErrBadFormat, snap.Side)
	}
	s.agents[side].Handle().Store(snap)
	log.Info().
		Str("side", side.String()).
		Int("episodes", snap.Episodes).
		Int("states", snap.States()).
		Msg("Policy restored")
	return nil
}

// SavePolicy persists side's current policy.
func (s *AnalysisService) SavePolicy(ctx context.Context, side baghchal.Side) error {
	if s.store == nil {
		return ErrNoPolicyStore
	}
	data, err := qlearn.Encode(s.agents[side].Snapshot())
	if err != nil {
		return err
	}
	if err := s.store.SavePolicy(ctx, side, data); err != nil {
		return fmt.Errorf("save %s policy: %w", side, err)
	}
	return nil
}

// ListPolicies reports the saved policy of each side. Stores that cannot
// enumerate their contents are read side by side instead.
func (s *AnalysisService) ListPolicies(ctx context.Context) (model.PolicyListResponse, error) {
	if s.store == nil {
		return model.PolicyListResponse{}, ErrNoPolicyStore
	}
	infos, err := s.storedPolicies(ctx)
	if err != nil {
		return model.PolicyListResponse{}, fmt.Errorf("list policies: %w", err)
	}
	resp := model.PolicyListResponse{Policies: make([]model.PolicyInfo, 0, len(infos))}
	for _, info := range infos {
		resp.Policies = append(resp.Policies, model.PolicyInfo{
			Player:    info.Side.String(),
			Episodes:  info.Episodes,
			SizeBytes: info.Size,
			UpdatedAt: info.UpdatedAt,
		})
	}
	return resp, nil
}

func (s *AnalysisService) storedPolicies(ctx context.Context) ([]repository.PolicyInfo, error) {
	if lister, ok := s.store.(repository.PolicyLister); ok {
		infos, err := lister.ListPolicies(ctx)
		if !errors.Is(err, repository.ErrListUnsupported) {
			return infos, err
		}
	}
	var infos []repository.PolicyInfo
	for _, side := range []baghchal.Side{baghchal.Tiger, baghchal.Goat} {
		data, err := s.store.LoadPolicy(ctx, side)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		snap, err := qlearn.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s policy: %w", side, err)
		}
		infos = append(infos, repository.PolicyInfo{Side: side, Episodes: snap.Episodes, Size: len(data)})
	}
	return infos, nil
}
