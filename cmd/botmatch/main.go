package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/bot/qlearn"
	"github.com/freeeve/baghchal/api/internal/logger"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

func main() {
	var (
		aArg     string
		bArg     string
		numGames int
		workers  int
		seed     int64
		sides    string
		maxPlies int
		budget   time.Duration
		jsonOut  bool
		debug    bool
	)

	flag.StringVar(&aArg, "a", "hard", "Contestant A: easy, medium, hard, random or q:<policy.json>[,<policy.json>]")
	flag.StringVar(&bArg, "b", "easy", "Contestant B, same forms as -a")
	flag.IntVar(&numGames, "n", 10, "Number of games to run")
	flag.IntVar(&workers, "workers", 1, "Concurrency (parallel games)")
	flag.Int64Var(&seed, "seed", 0, "Base seed (0 = random)")
	flag.StringVar(&sides, "sides", "alternate", "Side assignment: alternate, a-tiger or a-goat")
	flag.IntVar(&maxPlies, "max-plies", bot.DefaultMaxPlies, "Plies before a game is drawn")
	flag.DurationVar(&budget, "budget", 0, "Minimax time budget per move (0 = depth only)")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.BoolVar(&debug, "debug", false, "Log each game")

	flag.Parse()
	logger.InitCLI(debug)

	var opts []bot.MinimaxOption
	if budget > 0 {
		opts = append(opts, bot.WithTimeBudget(budget))
	}
	a, err := parseContestant(aArg, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -a")
	}
	b, err := parseContestant(bArg, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -b")
	}
	if a.Name == b.Name {
		a.Name += "#a"
		b.Name += "#b"
	}
	assign, err := bot.ParseSideAssignment(sides)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -sides")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	start := time.Now()
	results, err := bot.PlayMatch(ctx, bot.MatchConfig{
		A:        a,
		B:        b,
		Games:    numGames,
		Sides:    assign,
		Seed:     seed,
		Workers:  workers,
		MaxPlies: maxPlies,
	})
	if err != nil {
		log.Error().Err(err).Int("completed", len(results)).Msg("Match stopped early")
	}
	for _, r := range results {
		log.Debug().
			Int("game", r.Game+1).
			Str("tiger", r.Tiger.Name).
			Str("goat", r.Goat.Name).
			Str("winner", r.WinnerName()).
			Str("reason", r.EndReason).
			Int("moves", r.Moves).
			Msg("Game completed")
	}

	summaries := []summary{summarize(a.Name, results), summarize(b.Name, results)}
	if jsonOut {
		printJSON(results, summaries, numGames)
	} else {
		printSummary(summaries, len(results), numGames, time.Since(start))
	}
	if err != nil {
		os.Exit(1)
	}
}

// parseContestant resolves a difficulty name or a q:<files> policy list.
func parseContestant(arg string, opts []bot.MinimaxOption) (bot.Contestant, error) {
	files, ok := strings.CutPrefix(arg, "q:")
	if !ok {
		d, err := bot.ParseDifficulty(arg)
		if err != nil {
			return bot.Contestant{}, err
		}
		return bot.ContestantForDifficulty(d, opts...), nil
	}

	var agents []*qlearn.Agent
	for _, path := range strings.Split(files, ",") {
		data, err := os.ReadFile(path)
		if err != nil {
			return bot.Contestant{}, err
		}
		snap, err := qlearn.Decode(data)
		if err != nil {
			return bot.Contestant{}, fmt.Errorf("%s: %w", path, err)
		}
		agent := qlearn.NewAgent(snap.Side)
		agent.Handle().Store(snap)
		agents = append(agents, agent)
		log.Info().Str("file", path).Str("side", snap.Side.String()).Int("states", snap.States()).Msg("Policy loaded")
	}
	return qlearn.Contestant(agents...), nil
}

type summary struct {
	Name       string  `json:"name"`
	Games      int     `json:"games"`
	TigerGames int     `json:"tiger_games"`
	TigerWins  int     `json:"tiger_wins"`
	GoatGames  int     `json:"goat_games"`
	GoatWins   int     `json:"goat_wins"`
	Draws      int     `json:"draws"`
	AvgMoveMS  float64 `json:"avg_move_ms"`
	Nodes      int64   `json:"nodes"`
	Fallbacks  int64   `json:"fallbacks"`
}

func (s summary) Wins() int { return s.TigerWins + s.GoatWins }

func summarize(name string, results []bot.MatchResult) summary {
	s := summary{Name: name}
	var decisions int
	var thinking time.Duration
	for i := range results {
		r := &results[i]
		p, ok := r.Player(name)
		if !ok {
			continue
		}
		s.Games++
		won := r.Winner == p.Side
		switch p.Side {
		case baghchal.Tiger:
			s.TigerGames++
			if won {
				s.TigerWins++
			}
		case baghchal.Goat:
			s.GoatGames++
			if won {
				s.GoatWins++
			}
		}
		if r.Winner == baghchal.None {
			s.Draws++
		}
		decisions += p.Decisions
		thinking += p.DecisionTime
		s.Nodes += p.Nodes
		s.Fallbacks += p.Fallbacks
	}
	if decisions > 0 {
		s.AvgMoveMS = float64(thinking.Microseconds()) / float64(decisions) / 1000
	}
	return s
}

func printSummary(summaries []summary, completed, total int, elapsed time.Duration) {
	fmt.Printf("\nResults (%d of %d games, %s):\n", completed, total, elapsed.Round(time.Millisecond))
	for _, s := range summaries {
		fmt.Printf("  %-20s %d wins (tiger %d/%d, goat %d/%d), %d draws  -- %.2f ms/move, %d nodes",
			s.Name, s.Wins(), s.TigerWins, s.TigerGames, s.GoatWins, s.GoatGames, s.Draws, s.AvgMoveMS, s.Nodes)
		if s.Fallbacks > 0 {
			fmt.Printf(", %d unseen states", s.Fallbacks)
		}
		fmt.Println()
	}
}

func printJSON(results []bot.MatchResult, summaries []summary, total int) {
	out := struct {
		Total     int               `json:"total"`
		Completed int               `json:"completed"`
		Summary   []summary         `json:"summary"`
		Results   []bot.MatchResult `json:"results"`
	}{
		Total:     total,
		Completed: len(results),
		Summary:   summaries,
		Results:   results,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
