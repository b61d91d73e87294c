package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// DefaultMaxPlies ends a game as a draw when neither side has won.
const DefaultMaxPlies = 300

// End reasons reported on a MatchResult.
const (
	EndCaptures      = "captures"
	EndTigersTrapped = "tigers trapped"
	EndGoatStalemate = "goat stalemate"
	EndPlyCap        = "ply cap"
)

// Contestant is one participant in a match. New builds a fresh strategy for
// each game so games never share search state or random sources.
type Contestant struct {
	Name string
	New  func(seed int64) Strategy
}

// ContestantForDifficulty wraps a built-in difficulty level.
func ContestantForDifficulty(d Difficulty, opts ...MinimaxOption) Contestant {
	return Contestant{
		Name: string(d),
		New: func(seed int64) Strategy {
			return StrategyForDifficulty(d, seed, opts...)
		},
	}
}

// FallbackCounter is implemented by strategies that sometimes fall back to
// a random move, such as a learned policy meeting an unseen state.
type FallbackCounter interface {
	Fallbacks() int64
}

// PlayerStats is one contestant's share of a game.
type PlayerStats struct {
	Name         string          `json:"name"`
	Side         baghchal.Side   `json:"side"`
	Decisions    int             `json:"decisions"`
	DecisionTime time.Duration   `json:"decision_time_ns"`
	Nodes        int64           `json:"nodes"`
	Fallbacks    int64           `json:"fallbacks"`
	Samples      []time.Duration `json:"-"`
}

// MatchResult describes one finished game.
type MatchResult struct {
	Game      int           `json:"game"`
	Seed      int64         `json:"seed"`
	Winner    baghchal.Side `json:"winner"`
	EndReason string        `json:"end_reason"`
	Moves     int           `json:"moves"`
	Captured  int           `json:"goats_captured"`
	Duration  time.Duration `json:"duration_ns"`
	Tiger     PlayerStats   `json:"tiger"`
	Goat      PlayerStats   `json:"goat"`
}

// WinnerName returns the winning contestant's name, or "" for a draw.
func (r *MatchResult) WinnerName() string {
	switch r.Winner {
	case baghchal.Tiger:
		return r.Tiger.Name
	case baghchal.Goat:
		return r.Goat.Name
	default:
		return ""
	}
}

// Player returns the stats of the named contestant and whether it played.
func (r *MatchResult) Player(name string) (PlayerStats, bool) {
	switch name {
	case r.Tiger.Name:
		return r.Tiger, true
	case r.Goat.Name:
		return r.Goat, true
	default:
		return PlayerStats{}, false
	}
}

// GameConfig configures a single game.
type GameConfig struct {
	Tiger    Contestant
	Goat     Contestant
	Seed     int64 // 0 = random
	MaxPlies int
	Game     int
}

// RunGame plays one game to the end. An illegal move from either strategy
// is returned as an error wrapping *baghchal.IllegalMoveError.
func RunGame(ctx context.Context, cfg GameConfig) (*MatchResult, error) {
	if cfg.MaxPlies == 0 {
		cfg.MaxPlies = DefaultMaxPlies
	}

	strategies := map[baghchal.Side]Strategy{
		baghchal.Tiger: cfg.Tiger.New(agentSeed(cfg.Seed, 1)),
		baghchal.Goat:  cfg.Goat.New(agentSeed(cfg.Seed, 2)),
	}
	result := &MatchResult{
		Game:  cfg.Game,
		Seed:  cfg.Seed,
		Tiger: PlayerStats{Name: cfg.Tiger.Name, Side: baghchal.Tiger},
		Goat:  PlayerStats{Name: cfg.Goat.Name, Side: baghchal.Goat},
	}
	players := map[baghchal.Side]*PlayerStats{
		baghchal.Tiger: &result.Tiger,
		baghchal.Goat:  &result.Goat,
	}

	start := time.Now()
	gs := baghchal.NewInitialState()
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if over, winner := baghchal.IsGameOver(gs); over {
			result.Winner = winner
			switch winner {
			case baghchal.Tiger:
				result.EndReason = EndCaptures
			case baghchal.Goat:
				result.EndReason = EndTigersTrapped
			default:
				result.EndReason = EndGoatStalemate
			}
			break
		}
		if gs.Ply >= cfg.MaxPlies {
			result.Winner = baghchal.None
			result.EndReason = EndPlyCap
			break
		}

		side := gs.SideToMove
		ps := players[side]
		dec, ok := strategies[side].ChooseMove(gs)
		if !ok {
			return nil, fmt.Errorf("%s (%s) found no move in a live position at ply %d", ps.Name, side, gs.Ply)
		}
		next, err := baghchal.Apply(gs, dec.Move)
		if err != nil {
			return nil, fmt.Errorf("%s (%s) at ply %d: %w", ps.Name, side, gs.Ply, err)
		}
		ps.Decisions++
		ps.DecisionTime += dec.Stats.Elapsed
		ps.Nodes += dec.Stats.Nodes
		ps.Samples = append(ps.Samples, dec.Stats.Elapsed)
		gs = next
	}

	result.Moves = gs.Ply
	result.Captured = gs.GoatsCaptured
	result.Duration = time.Since(start)
	for side, s := range strategies {
		if fc, ok := s.(FallbackCounter); ok {
			players[side].Fallbacks = fc.Fallbacks()
		}
	}

	log.Debug().
		Int("game", cfg.Game).
		Str("tiger", cfg.Tiger.Name).
		Str("goat", cfg.Goat.Name).
		Str("winner", result.Winner.String()).
		Str("reason", result.EndReason).
		Int("moves", result.Moves).
		Msg("Game finished")
	return result, nil
}

// agentSeed gives the two strategies of a game distinct seeds.
func agentSeed(seed int64, k int64) int64 {
	if seed == 0 {
		return 0
	}
	return seed*2 + k
}

// SideAssignment decides which contestant plays tiger in each game.
type SideAssignment int

const (
	// AlternateSides gives A the tigers in even-numbered games.
	AlternateSides SideAssignment = iota
	ATiger
	AGoat
)

// ParseSideAssignment parses "alternate", "a-tiger" or "a-goat".
func ParseSideAssignment(s string) (SideAssignment, error) {
	switch s {
	case "", "alternate":
		return AlternateSides, nil
	case "a-tiger":
		return ATiger, nil
	case "a-goat":
		return AGoat, nil
	}
	return 0, fmt.Errorf("unknown side assignment %q", s)
}

// MatchConfig configures a series of games between two contestants.
type MatchConfig struct {
	A, B     Contestant
	Games    int
	Sides    SideAssignment
	Seed     int64 // 0 = random
	Workers  int   // parallel games, default 1
	MaxPlies int
}

// PlayMatch plays cfg.Games games on a bounded pool of workers. Each game is
// independent and reproducible from its seed. Cancellation takes effect
// between games: the results of finished games are returned along with the
// context error. Any other error aborts the match.
func PlayMatch(ctx context.Context, cfg MatchConfig) ([]MatchResult, error) {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	matchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*MatchResult, cfg.Games)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	sem := make(chan struct{}, workers)

schedule:
	for i := 0; i < cfg.Games; i++ {
		select {
		case sem <- struct{}{}:
		case <-matchCtx.Done():
			break schedule
		}
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			if matchCtx.Err() != nil {
				return
			}

			tiger, goat := cfg.A, cfg.B
			if cfg.Sides == AGoat || (cfg.Sides == AlternateSides && idx%2 == 1) {
				tiger, goat = cfg.B, cfg.A
			}
			result, err := RunGame(matchCtx, GameConfig{
				Tiger:    tiger,
				Goat:     goat,
				Seed:     GameSeed(cfg.Seed, idx),
				MaxPlies: cfg.MaxPlies,
				Game:     idx,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					firstErr = err
					cancel()
				}
				return
			}
			results[idx] = result
		}(i)
	}
	wg.Wait()

	completed := make([]MatchResult, 0, cfg.Games)
	for _, r := range results {
		if r != nil {
			completed = append(completed, *r)
		}
	}
	if firstErr != nil {
		return completed, firstErr
	}
	return completed, ctx.Err()
}
