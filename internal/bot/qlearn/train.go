package qlearn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// ErrTrainingInterrupted is returned when a training run is cancelled. The
// agent keeps its last published snapshot.
var ErrTrainingInterrupted = errors.New("training interrupted")

// TrainConfig configures one training run.
type TrainConfig struct {
	Opponent bot.Contestant
	Episodes int
	Params   Hyperparameters
	Seed     int64 // 0 = random
}

// Progress reports a training run's state after a batch of episodes.
type Progress struct {
	Side     baghchal.Side `json:"side"`
	Opponent string        `json:"opponent"`
	Episode  int           `json:"episode"`
	Episodes int           `json:"episodes"`
	Epsilon  float64       `json:"epsilon"`
	States   int           `json:"states"`
	Wins     int           `json:"wins"`
	Losses   int           `json:"losses"`
	Draws    int           `json:"draws"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// trainer holds the private working tables of one run.
type trainer struct {
	side    baghchal.Side
	a, b    Table
	params  Hyperparameters
	rng     *rand.Rand
	epsilon float64
}

// Train runs cfg.Episodes full games against cfg.Opponent, continuing
// from the agent's current policy. A snapshot is published every
// CommitEvery episodes and once more at the end. progress, if non-nil, is
// called after each publish. On cancellation the work since the last
// publish is dropped and ErrTrainingInterrupted is returned.
func (a *Agent) Train(ctx context.Context, cfg TrainConfig, progress func(Progress)) (*Snapshot, error) {
	params := cfg.Params
	if params == (Hyperparameters{}) {
		params = DefaultHyperparameters()
	}
	if params.CommitEvery <= 0 {
		params.CommitEvery = DefaultHyperparameters().CommitEvery
	}
	if params.MaxPlies <= 0 {
		params.MaxPlies = bot.DefaultMaxPlies
	}
	if cfg.Opponent.New == nil {
		return nil, fmt.Errorf("train %s: no opponent", a.Side())
	}

	base := a.handle.Load()
	t := &trainer{
		side:    a.Side(),
		a:       base.A.clone(),
		b:       base.B.clone(),
		params:  params,
		rng:     newRand(cfg.Seed),
		epsilon: params.Epsilon,
	}
	opponent := cfg.Opponent.New(cfg.Seed)

	start := time.Now()
	p := Progress{Side: t.side, Opponent: cfg.Opponent.Name, Episodes: cfg.Episodes}
	log.Info().Str("side", t.side.String()).Str("opponent", cfg.Opponent.Name).Int("episodes", cfg.Episodes).Msg("Training started")

	for ep := 1; ep <= cfg.Episodes; ep++ {
		if err := ctx.Err(); err != nil {
			log.Info().Str("side", t.side.String()).Int("episode", ep-1).Msg("Training interrupted")
			return nil, fmt.Errorf("%w after %d episodes: %v", ErrTrainingInterrupted, ep-1, err)
		}
		winner, err := t.episode(opponent)
		if err != nil {
			return nil, fmt.Errorf("train %s episode %d: %w", t.side, ep, err)
		}
		switch winner {
		case t.side:
			p.Wins++
		case baghchal.None:
			p.Draws++
		default:
			p.Losses++
		}
		t.epsilon = max(params.EpsilonMin, t.epsilon*params.EpsilonDecay)

		if ep%params.CommitEvery == 0 || ep == cfg.Episodes {
			snap := &Snapshot{
				Side:         t.side,
				A:            t.a.clone(),
				B:            t.b.clone(),
				Episodes:     base.Episodes + ep,
				TrainingTime: base.TrainingTime + time.Since(start),
				TrainedAt:    time.Now().UTC(),
			}
			a.handle.Store(snap)

			p.Episode = ep
			p.Epsilon = t.epsilon
			p.States = snap.States()
			p.Elapsed = time.Since(start)
			log.Info().
				Str("side", t.side.String()).
				Int("episode", ep).
				Int("states", p.States).
				Float64("epsilon", t.epsilon).
				Int("wins", p.Wins).
				Int("losses", p.Losses).
				Int("draws", p.Draws).
				Msg("Training snapshot published")
			if progress != nil {
				progress(p)
			}
		}
	}
	return a.handle.Load(), nil
}

// episode plays one game and applies a double Q update for every decision
// the trained side made. The update for a decision happens once the trained
// side is to move again, or at the end of the game.
func (t *trainer) episode(opponent bot.Strategy) (baghchal.Side, error) {
	gs := baghchal.NewInitialState()
	var (
		prevKey    string
		prevAction string
		pending    bool
		shaping    float64
	)
	for {
		over, winner := baghchal.IsGameOver(gs)
		if !over && gs.Ply >= t.params.MaxPlies {
			over, winner = true, baghchal.None
		}
		if over {
			if pending {
				t.update(prevKey, prevAction, t.terminalReward(winner), "", nil)
			}
			return winner, nil
		}

		if gs.SideToMove != t.side {
			dec, ok := opponent.ChooseMove(gs)
			if !ok {
				return baghchal.None, fmt.Errorf("opponent found no move at ply %d", gs.Ply)
			}
			next, err := baghchal.Apply(gs, dec.Move)
			if err != nil {
				return baghchal.None, fmt.Errorf("opponent: %w", err)
			}
			shaping += t.shape(gs, next)
			gs = next
			continue
		}

		key := gs.Key()
		moves := baghchal.LegalMoves(gs)
		if pending {
			t.update(prevKey, prevAction, shaping, key, moves)
		}
		m := moves[t.explore(key, moves)]
		next := gs.Play(m)
		prevKey, prevAction, pending = key, m.String(), true
		shaping = t.shape(gs, next)
		gs = next
	}
}

// explore picks a move index epsilon-greedily over QA+QB. Ties among the
// best are broken at random so unseen actions all get tried.
func (t *trainer) explore(key string, moves []baghchal.Move) int {
	if t.rng.Float64() < t.epsilon {
		return t.rng.Intn(len(moves))
	}
	bestV := 0.0
	var best []int
	for i, m := range moves {
		v := t.a.get(key, m.String()) + t.b.get(key, m.String())
		switch {
		case len(best) == 0 || v > bestV:
			best, bestV = append(best[:0], i), v
		case v == bestV:
			best = append(best, i)
		}
	}
	return best[t.rng.Intn(len(best))]
}

// update applies one double Q-learning step, choosing at random which
// table learns. next == "" marks a terminal transition.
func (t *trainer) update(state, action string, reward float64, next string, nextMoves []baghchal.Move) {
	learn, judge := t.a, t.b
	if t.rng.Float64() < 0.5 {
		learn, judge = t.b, t.a
	}
	var nextActions []string
	for _, m := range nextMoves {
		nextActions = append(nextActions, m.String())
	}
	doubleUpdate(learn, judge, state, action, reward, next, nextActions, t.params.Alpha, t.params.Gamma)
}

// doubleUpdate moves learn[state][action] toward
// reward + gamma * judge[next][argmax_a learn[next][a]].
// The table being updated picks the next action and the other table
// values it. A terminal transition (no next actions) uses the reward alone.
func doubleUpdate(learn, judge Table, state, action string, reward float64, next string, nextActions []string, alpha, gamma float64) {
	target := reward
	if next != "" && len(nextActions) > 0 {
		best, bestV := nextActions[0], learn.get(next, nextActions[0])
		for _, a := range nextActions[1:] {
			if v := learn.get(next, a); v > bestV {
				best, bestV = a, v
			}
		}
		target += gamma * judge.get(next, best)
	}
	q := learn.get(state, action)
	learn.set(state, action, q+alpha*(target-q))
}

func (t *trainer) terminalReward(winner baghchal.Side) float64 {
	switch winner {
	case t.side:
		return 1
	case baghchal.None:
		return 0
	default:
		return -1
	}
}

// shape returns the shaping reward for the trained side over one ply:
// captures favour tigers, newly trapped tigers favour goats.
func (t *trainer) shape(before, after *baghchal.State) float64 {
	captures := float64(after.GoatsCaptured - before.GoatsCaptured)
	trapped := float64(baghchal.TrappedTigers(after) - baghchal.TrappedTigers(before))
	r := t.params.CaptureReward*captures - t.params.BlockReward*trapped
	if t.side == baghchal.Goat {
		return -r
	}
	return r
}
