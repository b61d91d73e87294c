package qlearn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

func quickParams() Hyperparameters {
	p := DefaultHyperparameters()
	p.CommitEvery = 20
	p.EpsilonDecay = 0.95
	return p
}

func trainConfig(episodes int) TrainConfig {
	return TrainConfig{
		Opponent: bot.ContestantForDifficulty(bot.Random),
		Episodes: episodes,
		Params:   quickParams(),
		Seed:     1,
	}
}

func TestDoubleUpdate(t *testing.T) {
	t.Run("selects with the learning table and evaluates with the other", func(t *testing.T) {
		learn := Table{"next": {"x": 10, "y": 0}}
		judge := Table{"next": {"x": -5, "y": 100}}

		doubleUpdate(learn, judge, "s", "a", 0, "next", []string{"x", "y"}, 0.5, 1)

		// argmax of learn at next is x; judge values x at -5.
		require.InDelta(t, 0.5*-5, learn.get("s", "a"), 1e-9)
		require.Empty(t, judge["s"], "the judging table must not change")
	})

	t.Run("terminal transition uses the reward alone", func(t *testing.T) {
		learn := Table{"s": {"a": 0.2}}
		judge := Table{"next": {"x": 100}}

		doubleUpdate(learn, judge, "s", "a", 1, "", nil, 0.5, 0.9)

		require.InDelta(t, 0.2+0.5*(1-0.2), learn.get("s", "a"), 1e-9)
	})

	t.Run("unknown next actions count as zero", func(t *testing.T) {
		learn, judge := Table{}, Table{}

		doubleUpdate(learn, judge, "s", "a", -0.1, "next", []string{"x"}, 1, 0.9)

		require.InDelta(t, -0.1, learn.get("s", "a"), 1e-9)
	})
}

func TestTrainerUpdatesBothTables(t *testing.T) {
	tr := &trainer{side: baghchal.Tiger, a: Table{}, b: Table{}, params: DefaultHyperparameters(), rng: newRand(5)}
	for i := 0; i < 200; i++ {
		tr.update("s", "a", 1, "", nil)
	}
	require.NotZero(t, tr.a.get("s", "a"))
	require.NotZero(t, tr.b.get("s", "a"))
}

func TestTrainPublishesSnapshots(t *testing.T) {
	agent := NewAgent(baghchal.Tiger)
	var reports []Progress

	snap, err := agent.Train(context.Background(), trainConfig(60), func(p Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	require.Same(t, snap, agent.Snapshot())
	require.Equal(t, 60, snap.Episodes)
	require.Positive(t, snap.TrainingTime)
	require.Positive(t, snap.States())
	require.Len(t, reports, 3)
	require.Equal(t, 60, reports[2].Episode)
	require.Equal(t, 60, reports[2].Wins+reports[2].Losses+reports[2].Draws)

	for _, key := range snap.StateKeys() {
		gs, err := baghchal.ParseKey(key)
		require.NoError(t, err)
		require.Equal(t, baghchal.Tiger, gs.SideToMove, "tiger table holds a goat-to-move state")
	}
}

func TestTrainContinuesFromCurrentPolicy(t *testing.T) {
	agent := NewAgent(baghchal.Goat)
	first, err := agent.Train(context.Background(), trainConfig(20), nil)
	require.NoError(t, err)

	second, err := agent.Train(context.Background(), trainConfig(20), nil)
	require.NoError(t, err)
	require.Equal(t, 40, second.Episodes)
	require.GreaterOrEqual(t, second.States(), first.States())
	require.Greater(t, second.TrainingTime, first.TrainingTime)
}

func TestTrainCancelledKeepsLastSnapshot(t *testing.T) {
	agent := NewAgent(baghchal.Tiger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := agent.Train(ctx, trainConfig(200), func(p Progress) {
		if p.Episode == 20 {
			cancel()
		}
	})
	require.ErrorIs(t, err, ErrTrainingInterrupted)
	require.Equal(t, 20, agent.Snapshot().Episodes)
}

func TestTrainRequiresOpponent(t *testing.T) {
	_, err := NewAgent(baghchal.Tiger).Train(context.Background(), TrainConfig{Episodes: 1}, nil)
	require.Error(t, err)
}

func TestPlayerFallsBackOnUnseenState(t *testing.T) {
	agent := NewAgent(baghchal.Goat)
	p := agent.Player(3)
	gs := baghchal.NewInitialState()

	dec, ok := p.ChooseMove(gs)
	require.True(t, ok)
	_, err := baghchal.Apply(gs, dec.Move)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.Fallbacks())
	require.EqualValues(t, 1, agent.CoverageGaps())
}

func TestPlayerIsGreedy(t *testing.T) {
	gs := baghchal.NewInitialState()
	key := gs.Key()
	agent := NewAgent(baghchal.Goat)
	agent.Handle().Store(&Snapshot{
		Side: baghchal.Goat,
		A:    Table{key: {"a2": 0.1, "c3": 0.4}},
		B:    Table{key: {"a2": 0.2, "c3": -0.3}},
	})

	dec, ok := agent.Player(1).ChooseMove(gs)
	require.True(t, ok)
	// a2 sums to 0.3, c3 to 0.1.
	require.Equal(t, "a2", dec.Move.String())
	require.Zero(t, agent.CoverageGaps())
}

func TestPlayerReturnsFalseWithoutMoves(t *testing.T) {
	gs, err := baghchal.ParseKey("TGGGTGG.GGG.G.GGG.GGTGGGT/P03t")
	require.NoError(t, err)
	_, ok := NewAgent(baghchal.Tiger).Player(1).ChooseMove(gs)
	require.False(t, ok)
}

func TestContestantPlaysBothSides(t *testing.T) {
	tiger := NewAgent(baghchal.Tiger)
	_, err := tiger.Train(context.Background(), trainConfig(20), nil)
	require.NoError(t, err)

	result, err := bot.RunGame(context.Background(), bot.GameConfig{
		Tiger: Contestant(tiger),
		Goat:  Contestant(tiger),
		Seed:  4,
	})
	require.NoError(t, err)
	require.Equal(t, Name, result.Tiger.Name)
	require.Equal(t, Name, result.Goat.Name)
	// No goat agent was given, so every goat decision is a fallback.
	require.EqualValues(t, result.Goat.Decisions, result.Goat.Fallbacks)
}

func TestSnapshotCounts(t *testing.T) {
	s := &Snapshot{
		A: Table{"s1": {"a": 1, "b": -1}, "s2": {"a": 0.5}},
		B: Table{"s1": {"a": 2, "c": 3}, "s3": {"a": 1}},
	}
	require.Equal(t, 3, s.States())
	require.Equal(t, 5, s.Pairs()) // s1: a b c, s2: a, s3: a
	require.Equal(t, []string{"s1", "s2", "s3"}, s.StateKeys())
	require.InDelta(t, 1.5, s.Combined("s1")["a"], 1e-9)
	require.InDelta(t, 1.5, s.Combined("s1")["c"], 1e-9)
	require.True(t, s.Seen("s3"))
	require.False(t, s.Seen("s4"))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	agent := NewAgent(baghchal.Tiger)
	snap, err := agent.Train(context.Background(), trainConfig(20), nil)
	require.NoError(t, err)

	data, err := Encode(snap)
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)

	require.Equal(t, snap.Side, back.Side)
	require.Equal(t, snap.Episodes, back.Episodes)
	require.Equal(t, snap.A, back.A)
	require.Equal(t, snap.B, back.B)
	require.Equal(t, snap.TrainingTime.Milliseconds(), back.TrainingTime.Milliseconds())
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]string{
		"not json":      "{",
		"wrong version": `{"version":9,"side":"tiger"}`,
		"no side":       `{"version":1}`,
		"bad state key": `{"version":1,"side":"tiger","qa":{"nonsense":{"a1-b2":1}}}`,
		"wrong side":    `{"version":1,"side":"tiger","qa":{"T...T...............T...T/P20g":{"c3":1}}}`,
		"bad action":    `{"version":1,"side":"goat","qb":{"T...T...............T...T/P20g":{"zz":1}}}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(data))
			require.ErrorIs(t, err, ErrBadFormat)
		})
	}
}

func TestJobCompletes(t *testing.T) {
	agent := NewAgent(baghchal.Goat)
	job := StartJob(context.Background(), agent, trainConfig(40))

	var seen []Progress
	for p := range job.Progress() {
		seen = append(seen, p)
	}
	snap, err := job.Wait()
	require.NoError(t, err)
	require.Equal(t, 40, snap.Episodes)
	require.NotEmpty(t, seen)
	require.Equal(t, JobCompleted, job.Status().State)
	require.Equal(t, 40, job.Status().Progress.Episode)
}

func TestJobCancel(t *testing.T) {
	agent := NewAgent(baghchal.Tiger)
	job := StartJob(context.Background(), agent, trainConfig(100000))
	<-job.Progress()
	job.Cancel()

	_, err := job.Wait()
	require.True(t, errors.Is(err, ErrTrainingInterrupted))
	require.Equal(t, JobCancelled, job.Status().State)
	require.GreaterOrEqual(t, agent.Snapshot().Episodes, 20)
}

func TestConcurrentReadersDuringTraining(t *testing.T) {
	agent := NewAgent(baghchal.Tiger)
	job := StartJob(context.Background(), agent, trainConfig(100))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			for {
				select {
				case <-job.Done():
					return
				default:
				}
				snap := agent.Snapshot()
				_ = snap.States()
				_ = snap.Pairs()
				_, _ = agent.Player(seed).ChooseMove(baghchal.NewInitialState().Play(baghchal.Place(baghchal.PointAt(2, 2))))
			}
		}(int64(i + 1))
	}
	_, err := job.Wait()
	wg.Wait()
	require.NoError(t, err)
}
