package qlearn

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// Name identifies learned-policy players in match results and reports.
const Name = "double_q_learning"

// Hyperparameters control a training run.
type Hyperparameters struct {
	Alpha        float64 // learning rate
	Gamma        float64 // discount
	Epsilon      float64 // initial exploration rate
	EpsilonMin   float64
	EpsilonDecay float64 // multiplied into epsilon after each episode

	CaptureReward float64 // per goat captured during a transition
	BlockReward   float64 // per tiger newly trapped during a transition

	CommitEvery int // episodes between published snapshots
	MaxPlies    int // an episode reaching this many plies is a draw
}

// DefaultHyperparameters returns the settings used when none are given.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Alpha:         0.1,
		Gamma:         0.95,
		Epsilon:       1.0,
		EpsilonMin:    0.05,
		EpsilonDecay:  0.999,
		CaptureReward: 0.05,
		BlockReward:   0.02,
		CommitEvery:   250,
		MaxPlies:      bot.DefaultMaxPlies,
	}
}

// Agent is a tabular double Q-learning agent for one side. Its current
// policy lives in a Handle; training works on a private copy and publishes
// snapshots, so play and introspection never see a table mid-update.
type Agent struct {
	handle    *Handle
	fallbacks atomic.Int64
}

// NewAgent returns an untrained agent for side.
func NewAgent(side baghchal.Side) *Agent {
	return &Agent{handle: NewHandle(side)}
}

// NewAgentWithHandle returns an agent publishing to an existing handle.
func NewAgentWithHandle(h *Handle) *Agent {
	return &Agent{handle: h}
}

func (a *Agent) Side() baghchal.Side { return a.handle.Side() }

// Handle returns the handle holding the agent's current policy.
func (a *Agent) Handle() *Handle { return a.handle }

// Snapshot returns the current published policy.
func (a *Agent) Snapshot() *Snapshot { return a.handle.Load() }

// CoverageGaps returns how many decisions, across all players of this
// agent, fell back to a random move on an unseen state.
func (a *Agent) CoverageGaps() int64 { return a.fallbacks.Load() }

// Player returns a greedy player bound to the current snapshot. Each game
// should get its own player.
func (a *Agent) Player(seed int64) *Player {
	return &Player{
		snap:  a.handle.Load(),
		rng:   newRand(seed),
		agent: a,
	}
}

// Player plays the greedy policy of one snapshot. It is not safe for
// concurrent use.
type Player struct {
	snap      *Snapshot
	rng       *rand.Rand
	agent     *Agent
	fallbacks int64
}

func (*Player) Name() string { return Name }

// Fallbacks returns the number of random moves this player made on
// states missing from its tables.
func (p *Player) Fallbacks() int64 { return p.fallbacks }

// ChooseMove picks the legal move with the highest QA+QB. On a state the
// tables have never seen it plays a uniformly random legal move instead.
func (p *Player) ChooseMove(gs *baghchal.State) (bot.Decision, bool) {
	start := time.Now()
	moves := baghchal.LegalMoves(gs)
	if len(moves) == 0 {
		return bot.Decision{}, false
	}
	key := gs.Key()
	if !p.snap.Seen(key) {
		p.fallbacks++
		p.agent.fallbacks.Add(1)
		log.Debug().Str("side", p.snap.Side.String()).Str("state", key).Msg("Unseen state, playing random move")
		return bot.Decision{
			Move:  moves[p.rng.Intn(len(moves))],
			Stats: bot.SearchStats{Nodes: 1, Elapsed: time.Since(start)},
		}, true
	}
	best := greedy(p.snap, key, moves)
	return bot.Decision{
		Move:  moves[best],
		Stats: bot.SearchStats{Nodes: int64(len(moves)), Elapsed: time.Since(start)},
	}, true
}

// greedy returns the index of the move with the highest QA+QB; ties go to
// the earliest move.
func greedy(s *Snapshot, key string, moves []baghchal.Move) int {
	best, bestV := 0, s.Sum(key, moves[0].String())
	for i := 1; i < len(moves); i++ {
		if v := s.Sum(key, moves[i].String()); v > bestV {
			best, bestV = i, v
		}
	}
	return best
}

// Contestant plays each side with the agent trained for it. A side with no
// agent is played by an untrained one, which always falls back to random
// moves.
func Contestant(agents ...*Agent) bot.Contestant {
	bySide := make(map[baghchal.Side]*Agent)
	for _, a := range agents {
		bySide[a.Side()] = a
	}
	for _, side := range []baghchal.Side{baghchal.Tiger, baghchal.Goat} {
		if bySide[side] == nil {
			bySide[side] = NewAgent(side)
		}
	}
	return bot.Contestant{
		Name: Name,
		New: func(seed int64) bot.Strategy {
			return &sidedPlayer{
				tiger: bySide[baghchal.Tiger].Player(seed),
				goat:  bySide[baghchal.Goat].Player(bot.GameSeed(seed, 1)),
			}
		},
	}
}

type sidedPlayer struct {
	tiger, goat *Player
}

func (*sidedPlayer) Name() string { return Name }

func (s *sidedPlayer) ChooseMove(gs *baghchal.State) (bot.Decision, bool) {
	if gs.SideToMove == baghchal.Tiger {
		return s.tiger.ChooseMove(gs)
	}
	return s.goat.ChooseMove(gs)
}

func (s *sidedPlayer) Fallbacks() int64 {
	return s.tiger.Fallbacks() + s.goat.Fallbacks()
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(uint64(seed)))
}
