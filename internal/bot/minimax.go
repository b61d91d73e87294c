package bot

import (
	"cmp"
	"math"
	"slices"
	"time"

	"golang.org/x/exp/rand"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// MinimaxOption configures a MinimaxStrategy.
type MinimaxOption func(*MinimaxStrategy)

// WithDepth sets the search depth in plies.
func WithDepth(depth int) MinimaxOption {
	return func(s *MinimaxStrategy) {
		if depth > 0 {
			s.depth = depth
		}
	}
}

// WithRandomMargin makes the strategy pick uniformly among root moves
// scoring within margin of the best one. Zero means always the first best.
func WithRandomMargin(margin int) MinimaxOption {
	return func(s *MinimaxStrategy) { s.margin = margin }
}

// WithTimeBudget bounds the time spent per move. The search deepens one ply
// at a time and keeps the move of the last depth it finished.
func WithTimeBudget(d time.Duration) MinimaxOption {
	return func(s *MinimaxStrategy) { s.budget = d }
}

// WithSeed seeds the tie-break source.
func WithSeed(seed int64) MinimaxOption {
	return func(s *MinimaxStrategy) { s.seed = seed }
}

// MinimaxStrategy is a depth-limited minimax search with alpha-beta
// pruning. Captures are searched first; among equal moves the first in
// notation order wins unless a random margin is set.
//
// A MinimaxStrategy is not safe for concurrent use; give each game its own.
type MinimaxStrategy struct {
	depth  int
	margin int
	budget time.Duration
	seed   int64
	rng    *rand.Rand

	nodes    int64
	deadline time.Time
	aborted  bool

	// move lists, one per ply below the root
	bufs [][]baghchal.Move
}

// NewMinimaxStrategy returns a minimax searcher, depth 4 unless configured.
func NewMinimaxStrategy(opts ...MinimaxOption) *MinimaxStrategy {
	s := &MinimaxStrategy{depth: 4}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = newRng(s.seed)
	return s
}

func (*MinimaxStrategy) Name() string { return "minimax" }

// Depth returns the configured search depth.
func (s *MinimaxStrategy) Depth() int { return s.depth }

func (s *MinimaxStrategy) ChooseMove(gs *baghchal.State) (Decision, bool) {
	start := time.Now()
	moves := baghchal.LegalMoves(gs)
	if len(moves) == 0 {
		return Decision{}, false
	}
	orderMoves(moves)

	s.nodes = 0
	s.aborted = false
	if s.budget > 0 {
		s.deadline = start.Add(s.budget)
	}

	first := s.depth
	if s.budget > 0 {
		first = 1
	}
	best, bestScore, completed := moves[0], 0, 0
	for depth := first; depth <= s.depth; depth++ {
		scores, ok := s.searchRoot(gs, moves, depth)
		if !ok {
			break
		}
		best, bestScore = s.pick(moves, scores, gs.SideToMove == baghchal.Tiger)
		completed = depth
	}

	return Decision{
		Move: best,
		Stats: SearchStats{
			Depth:   completed,
			Nodes:   s.nodes,
			Elapsed: time.Since(start),
			Score:   bestScore,
		},
	}, true
}

// searchRoot scores every root move. With a random margin each move gets a
// full window so near-best scores are exact; otherwise later moves are
// searched against the best found so far and may return bounds. The window
// is widened by one so a score equal to the best is always exact.
func (s *MinimaxStrategy) searchRoot(gs *baghchal.State, moves []baghchal.Move, depth int) ([]int, bool) {
	scores := make([]int, len(moves))
	alpha, beta := math.MinInt, math.MaxInt
	maximizing := gs.SideToMove == baghchal.Tiger
	for i, m := range moves {
		var v int
		switch {
		case s.margin > 0:
			v = s.minimax(gs.Play(m), depth-1, 1, math.MinInt, math.MaxInt)
		case maximizing && alpha > math.MinInt:
			v = s.minimax(gs.Play(m), depth-1, 1, alpha-1, beta)
		case !maximizing && beta < math.MaxInt:
			v = s.minimax(gs.Play(m), depth-1, 1, alpha, beta+1)
		default:
			v = s.minimax(gs.Play(m), depth-1, 1, alpha, beta)
		}
		if s.aborted {
			return nil, false
		}
		scores[i] = v
		if maximizing {
			alpha = max(alpha, v)
		} else {
			beta = min(beta, v)
		}
	}
	return scores, true
}

func (s *MinimaxStrategy) pick(moves []baghchal.Move, scores []int, maximizing bool) (baghchal.Move, int) {
	bestIdx := 0
	for i := 1; i < len(scores); i++ {
		better := (maximizing && scores[i] > scores[bestIdx]) || (!maximizing && scores[i] < scores[bestIdx])
		if better || (scores[i] == scores[bestIdx] && notationLess(moves[i], moves[bestIdx])) {
			bestIdx = i
		}
	}
	if s.margin <= 0 {
		return moves[bestIdx], scores[bestIdx]
	}
	var near []int
	for i, v := range scores {
		diff := scores[bestIdx] - v
		if !maximizing {
			diff = -diff
		}
		if diff <= s.margin {
			near = append(near, i)
		}
	}
	idx := near[s.rng.Intn(len(near))]
	return moves[idx], scores[idx]
}

func (s *MinimaxStrategy) minimax(gs *baghchal.State, depth, ply, alpha, beta int) int {
	s.nodes++
	if s.budget > 0 && s.nodes&1023 == 0 && time.Now().After(s.deadline) {
		s.aborted = true
	}
	if s.aborted {
		return 0
	}
	if over, winner := baghchal.IsGameOver(gs); over {
		return terminalScore(gs, winner, ply)
	}
	if depth == 0 {
		return Evaluate(gs)
	}

	moves := s.movesAt(gs, ply)
	orderMoves(moves)

	if gs.SideToMove == baghchal.Tiger {
		best := math.MinInt
		for _, m := range moves {
			best = max(best, s.minimax(gs.Play(m), depth-1, ply+1, alpha, beta))
			alpha = max(alpha, best)
			if alpha >= beta {
				break
			}
		}
		return best
	}
	best := math.MaxInt
	for _, m := range moves {
		best = min(best, s.minimax(gs.Play(m), depth-1, ply+1, alpha, beta))
		beta = min(beta, best)
		if alpha >= beta {
			break
		}
	}
	return best
}

// movesAt generates the moves of gs into the buffer owned by ply. The
// slice stays valid until the search next visits the same ply.
func (s *MinimaxStrategy) movesAt(gs *baghchal.State, ply int) []baghchal.Move {
	for len(s.bufs) <= ply {
		s.bufs = append(s.bufs, nil)
	}
	s.bufs[ply] = baghchal.AppendLegalMoves(s.bufs[ply][:0], gs)
	return s.bufs[ply]
}

// orderMoves puts captures first, each group in notation order.
func orderMoves(moves []baghchal.Move) {
	slices.SortFunc(moves, func(a, b baghchal.Move) int {
		if ca, cb := a.IsCapture(), b.IsCapture(); ca != cb {
			if ca {
				return -1
			}
			return 1
		}
		return cmp.Compare(notationKey(a), notationKey(b))
	})
}

// notationLess orders a side's moves as their notation strings sort,
// without building the strings.
func notationLess(a, b baghchal.Move) bool {
	return notationKey(a) < notationKey(b)
}

// notationKey ranks a move by the column then row of its origin, steps
// before captures, then by its destination. Placements have no origin.
func notationKey(m baghchal.Move) int {
	dest := m.Dest.Col()*baghchal.BoardSize + m.Dest.Row()
	if m.IsPlacement() {
		return dest
	}
	origin := 2 * (m.Origin.Col()*baghchal.BoardSize + m.Origin.Row())
	if m.IsCapture() {
		origin++
	}
	return (origin+1)*baghchal.NumPoints + dest
}
