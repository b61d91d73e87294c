package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/rand"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// Strategy picks moves for whichever side is to move.
type Strategy interface {
	Name() string
	// ChooseMove returns false when the position has no legal move.
	ChooseMove(gs *baghchal.State) (Decision, bool)
}

// Decision is a chosen move plus how it was found.
type Decision struct {
	Move  baghchal.Move
	Stats SearchStats
}

// SearchStats reports the work behind one decision.
type SearchStats struct {
	Depth   int
	Nodes   int64
	Elapsed time.Duration
	Score   int
}

// Difficulty selects a built-in strategy.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
	// Random plays uniformly random legal moves. It is a baseline and
	// training opponent, not a guest AI level.
	Random Difficulty = "random"
)

// ErrUnknownDifficulty is returned by ParseDifficulty.
var ErrUnknownDifficulty = errors.New("unknown difficulty")

// GuestDifficulties are the levels a guest AI can be configured with.
func GuestDifficulties() []Difficulty {
	return []Difficulty{Easy, Medium, Hard}
}

// ParseDifficulty parses a difficulty name, ignoring case.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Easy, Medium, Hard, Random:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
}

// ParseGuestDifficulty is ParseDifficulty restricted to GuestDifficulties.
func ParseGuestDifficulty(s string) (Difficulty, error) {
	d, err := ParseDifficulty(s)
	if err != nil {
		return "", err
	}
	if d == Random {
		return "", fmt.Errorf("%w: %q is not a guest level", ErrUnknownDifficulty, s)
	}
	return d, nil
}

// StrategyForDifficulty returns the strategy for a difficulty level, seeded
// for reproducible play. Unknown levels fall back to easy.
func StrategyForDifficulty(d Difficulty, seed int64, opts ...MinimaxOption) Strategy {
	switch d {
	case Random:
		return NewRandomStrategy(seed)
	case Medium:
		return NewMinimaxStrategy(append([]MinimaxOption{WithDepth(3), WithRandomMargin(8), WithSeed(seed)}, opts...)...)
	case Hard:
		return NewMinimaxStrategy(append([]MinimaxOption{WithDepth(4), WithSeed(seed)}, opts...)...)
	default:
		return NewMinimaxStrategy(append([]MinimaxOption{WithDepth(1), WithRandomMargin(40), WithSeed(seed)}, opts...)...)
	}
}

// --- RandomStrategy ---

// RandomStrategy plays a uniformly random legal move.
type RandomStrategy struct {
	rng *rand.Rand
}

// NewRandomStrategy returns a RandomStrategy with its own random source.
func NewRandomStrategy(seed int64) *RandomStrategy {
	return &RandomStrategy{rng: newRng(seed)}
}

func (*RandomStrategy) Name() string { return string(Random) }

func (s *RandomStrategy) ChooseMove(gs *baghchal.State) (Decision, bool) {
	start := time.Now()
	moves := baghchal.LegalMoves(gs)
	if len(moves) == 0 {
		return Decision{}, false
	}
	return Decision{
		Move:  moves[s.rng.Intn(len(moves))],
		Stats: SearchStats{Nodes: 1, Elapsed: time.Since(start)},
	}, true
}
