package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/bot/qlearn"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

func game(tiger, goat string, winner baghchal.Side, moves int) bot.MatchResult {
	return bot.MatchResult{
		Winner: winner,
		Moves:  moves,
		Tiger: bot.PlayerStats{
			Name: tiger, Side: baghchal.Tiger,
			Decisions: moves / 2, DecisionTime: time.Duration(moves/2) * time.Millisecond, Nodes: 100,
		},
		Goat: bot.PlayerStats{
			Name: goat, Side: baghchal.Goat,
			Decisions: moves - moves/2, DecisionTime: time.Duration(moves-moves/2) * 3 * time.Millisecond, Nodes: 50,
		},
	}
}

func TestBuildComparisonCountsOutcomes(t *testing.T) {
	// 10 games alternating sides: q wins 6, guest wins 3, one draw.
	results := []bot.MatchResult{
		game(qlearn.Name, "hard", baghchal.Tiger, 40),
		game("hard", qlearn.Name, baghchal.Goat, 60),
		game(qlearn.Name, "hard", baghchal.Tiger, 40),
		game("hard", qlearn.Name, baghchal.Goat, 60),
		game(qlearn.Name, "hard", baghchal.Tiger, 40),
		game("hard", qlearn.Name, baghchal.Goat, 60),
		game(qlearn.Name, "hard", baghchal.Goat, 80),
		game("hard", qlearn.Name, baghchal.Tiger, 20),
		game(qlearn.Name, "hard", baghchal.Goat, 80),
		game("hard", qlearn.Name, baghchal.None, 300),
	}

	resp, err := BuildComparison(ComparisonInput{
		Difficulty:   "hard",
		QName:        qlearn.Name,
		GuestName:    "hard",
		Results:      results,
		TrainingTime: 90 * time.Second,
		QStates:      1234,
	})
	require.NoError(t, err)

	require.Equal(t, "hard", resp.GuestAIDifficulty)
	require.Equal(t, 10, resp.NumGames)
	require.Equal(t, 6, resp.QLearningWins)
	require.Equal(t, 3, resp.GuestAIWins)
	require.Equal(t, 1, resp.Draws)
	require.Equal(t, resp.NumGames, resp.QLearningWins+resp.GuestAIWins+resp.Draws)
	require.Len(t, resp.Results, 1)

	q := resp.Results[0].AlgorithmComparison.DoubleQLearning
	mm := resp.Results[0].AlgorithmComparison.Minimax
	require.InDelta(t, 60, q.WinRateAsTiger, 1e-9) // 3 of 5
	require.InDelta(t, 60, q.WinRateAsGoat, 1e-9)  // 3 of 5
	require.InDelta(t, 20, mm.WinRateAsTiger, 1e-9)
	require.InDelta(t, 40, mm.WinRateAsGoat, 1e-9)
	require.InDelta(t, 78, q.AvgGameLength, 1e-9)
	require.Equal(t, q.AvgGameLength, mm.AvgGameLength)
	require.InDelta(t, 1.5, q.TrainingTimeMinutes, 1e-9)
	require.Zero(t, mm.TrainingTimeMinutes)
	require.EqualValues(t, 1234, q.StatesExplored)
	require.EqualValues(t, 750, mm.StatesExplored)
	require.Positive(t, q.DecisionTimeMS)
	require.Positive(t, mm.DecisionTimeMS)

	for _, s := range []float64{q.AdaptivenessScore, mm.AdaptivenessScore} {
		require.GreaterOrEqual(t, s, 0.0)
		require.LessOrEqual(t, s, 100.0)
	}
}

func TestBuildComparisonPlaysRealMatch(t *testing.T) {
	results, err := bot.PlayMatch(context.Background(), bot.MatchConfig{
		A:       qlearn.Contestant(qlearn.NewAgent(baghchal.Tiger), qlearn.NewAgent(baghchal.Goat)),
		B:       bot.ContestantForDifficulty(bot.Easy),
		Games:   10,
		Sides:   bot.AlternateSides,
		Seed:    7,
		Workers: 2,
	})
	require.NoError(t, err)

	resp, err := BuildComparison(ComparisonInput{
		Difficulty: "easy",
		QName:      qlearn.Name,
		GuestName:  "easy",
		Results:    results,
	})
	require.NoError(t, err)
	require.Equal(t, 10, resp.NumGames)
	require.Equal(t, 10, resp.QLearningWins+resp.GuestAIWins+resp.Draws)
}

func TestBuildComparisonRejectsSameName(t *testing.T) {
	_, err := BuildComparison(ComparisonInput{QName: "hard", GuestName: "hard"})
	require.ErrorIs(t, err, ErrSameName)
}

func TestBuildComparisonEmpty(t *testing.T) {
	resp, err := BuildComparison(ComparisonInput{Difficulty: "easy", QName: qlearn.Name, GuestName: "easy"})
	require.NoError(t, err)
	require.Zero(t, resp.NumGames)
	q := resp.Results[0].AlgorithmComparison.DoubleQLearning
	require.Zero(t, q.WinRateAsTiger)
	require.Zero(t, q.AvgGameLength)
	require.Zero(t, q.DecisionTimeMS)
}

func TestProbesFeedOnlyAdaptiveness(t *testing.T) {
	results := []bot.MatchResult{
		game(qlearn.Name, "medium", baghchal.Tiger, 40),
		game("medium", qlearn.Name, baghchal.Goat, 40),
	}
	base := ComparisonInput{Difficulty: "medium", QName: qlearn.Name, GuestName: "medium", Results: results, QStates: 10}
	without, err := BuildComparison(base)
	require.NoError(t, err)

	base.Probes = map[string][]bot.MatchResult{
		"easy": {game("easy", qlearn.Name, baghchal.Tiger, 30)},
		"hard": {game(qlearn.Name, "hard", baghchal.Goat, 30)},
	}
	with, err := BuildComparison(base)
	require.NoError(t, err)

	a := without.Results[0].AlgorithmComparison.DoubleQLearning
	b := with.Results[0].AlgorithmComparison.DoubleQLearning
	require.Equal(t, a.WinRateAsTiger, b.WinRateAsTiger)
	require.Equal(t, without.QLearningWins, with.QLearningWins)
	// Perfect record, then two losses: less stable and lower performance.
	require.Less(t, b.AdaptivenessScore, a.AdaptivenessScore)
}

func TestAdaptiveness(t *testing.T) {
	w := DefaultAdaptivenessWeights
	tests := []struct {
		name   string
		rates  []float64
		states int64
		want   float64
	}{
		{"no samples", nil, 0, 0},
		{"perfect and broad", []float64{100, 100}, 100000, 100},
		{"zero everything", []float64{0, 0}, 0, 40},
		{"unstable", []float64{0, 100}, 0, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Adaptiveness(tt.rates, tt.states, w), 1e-9)
		})
	}
	require.LessOrEqual(t, Adaptiveness([]float64{100}, 1e9, w), 100.0)
}

func TestSummarizeTable(t *testing.T) {
	snap := &qlearn.Snapshot{
		Side:     baghchal.Goat,
		Episodes: 42,
		A: qlearn.Table{
			"s1": {"a": 1, "b": -1},
			"s2": {"a": 0.5},
		},
		B: qlearn.Table{
			"s1": {"a": 2, "c": 3},
			"s3": {"a": 0.1234},
		},
	}
	resp := SummarizeTable(snap, 2)

	require.Equal(t, "goat", resp.Player)
	require.Equal(t, 3, resp.QTableSize)
	require.Equal(t, 5, resp.TotalStateActionPairs)
	require.Equal(t, 42, resp.Episodes)
	require.Len(t, resp.SampleEntries, 2)
	require.Contains(t, resp.SampleEntries, "s1")
	require.Contains(t, resp.SampleEntries, "s2")
	require.InDelta(t, 1.5, resp.SampleEntries["s1"]["a"], 1e-9)

	// combined: s1 a=1.5 b=-0.5 c=1.5, s2 a=0.25, s3 a=0.0617
	st := resp.Statistics
	require.InDelta(t, 1.5, st.MaxQValue, 1e-9)
	require.InDelta(t, -0.5, st.MinQValue, 1e-9)
	require.InDelta(t, 0.562, st.AvgQValue, 1e-9)
	require.LessOrEqual(t, st.MinQValue, st.AvgQValue)
	require.LessOrEqual(t, st.AvgQValue, st.MaxQValue)
}

func TestSummarizeEmptyTable(t *testing.T) {
	resp := SummarizeTable(qlearn.EmptySnapshot(baghchal.Tiger), DefaultSampleSize)
	require.Equal(t, "tiger", resp.Player)
	require.Zero(t, resp.QTableSize)
	require.Zero(t, resp.TotalStateActionPairs)
	require.Empty(t, resp.SampleEntries)
	require.Zero(t, resp.Statistics)
}
