package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/bot/qlearn"
	"github.com/freeeve/baghchal/api/internal/model"
	"github.com/freeeve/baghchal/api/internal/repository"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

type memPolicyStore struct {
	mu    sync.Mutex
	data  map[baghchal.Side][]byte
	saves int
}

func newMemPolicyStore() *memPolicyStore {
	return &memPolicyStore{data: make(map[baghchal.Side][]byte)}
}

func (m *memPolicyStore) SavePolicy(_ context.Context, side baghchal.Side, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[side] = data
	m.saves++
	return nil
}

func (m *memPolicyStore) LoadPolicy(_ context.Context, side baghchal.Side) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[side], nil
}

type recordedEvent struct {
	side, eventType string
	data            any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) BroadcastTrainingEvent(side, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{side, eventType, data})
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.eventType)
	}
	return out
}

func testConfig() Config {
	params := qlearn.DefaultHyperparameters()
	params.CommitEvery = 10
	params.EpsilonDecay = 0.95
	return Config{
		Analysis: AnalysisConfig{Games: 4, ProbeGames: 2, Workers: 2, Seed: 3},
		Training: TrainingConfig{Episodes: 30, Opponent: bot.Random, Params: params},
	}
}

func waitForState(t *testing.T, svc *AnalysisService, player, state string) model.TrainingStatus {
	t.Helper()
	var st model.TrainingStatus
	require.Eventually(t, func() bool {
		var err error
		st, err = svc.TrainingStatus(context.Background(), player)
		return err == nil && st.State == state
	}, 30*time.Second, 10*time.Millisecond)
	return st
}

func TestRunAnalysis(t *testing.T) {
	svc := NewAnalysisService(testConfig(), nil, nil)

	resp, err := svc.RunAnalysis(context.Background(), "Easy")
	require.NoError(t, err)
	require.Equal(t, "easy", resp.GuestAIDifficulty)
	require.Equal(t, 4, resp.NumGames)
	require.Equal(t, resp.NumGames, resp.QLearningWins+resp.GuestAIWins+resp.Draws)
	require.Len(t, resp.Results, 1)

	for _, stats := range []model.AlgorithmStats{
		resp.Results[0].AlgorithmComparison.DoubleQLearning,
		resp.Results[0].AlgorithmComparison.Minimax,
	} {
		for _, pct := range []float64{stats.WinRateAsTiger, stats.WinRateAsGoat, stats.AdaptivenessScore} {
			require.GreaterOrEqual(t, pct, 0.0)
			require.LessOrEqual(t, pct, 100.0)
		}
	}
	require.Positive(t, resp.Results[0].AlgorithmComparison.Minimax.StatesExplored)
	// Untrained agents fall back to random moves on every decision.
	require.Positive(t, svc.Agent(baghchal.Tiger).CoverageGaps()+svc.Agent(baghchal.Goat).CoverageGaps())
}

func TestRunAnalysisRejectsUnknownDifficulty(t *testing.T) {
	svc := NewAnalysisService(testConfig(), nil, nil)
	for _, d := range []string{"", "impossible", "random"} {
		_, err := svc.RunAnalysis(context.Background(), d)
		require.ErrorIs(t, err, bot.ErrUnknownDifficulty, d)
	}
}

func TestRunAnalysisCancelled(t *testing.T) {
	svc := NewAnalysisService(testConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.RunAnalysis(ctx, "hard")
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetQTable(t *testing.T) {
	svc := NewAnalysisService(testConfig(), nil, nil)

	resp, err := svc.GetQTable(context.Background(), "TIGER")
	require.NoError(t, err)
	require.Equal(t, "tiger", resp.Player)
	require.Zero(t, resp.QTableSize)

	_, err = svc.GetQTable(context.Background(), "lion")
	require.ErrorIs(t, err, baghchal.ErrUnknownSide)
}

func TestTrainingLifecycle(t *testing.T) {
	store := newMemPolicyStore()
	events := &recordingBroadcaster{}
	svc := NewAnalysisService(testConfig(), store, events)
	ctx := context.Background()

	_, err := svc.TrainingStatus(ctx, "goat")
	require.ErrorIs(t, err, ErrNoTrainingJob)

	st, err := svc.StartTraining(ctx, model.TrainingRequest{Player: "goat"})
	require.NoError(t, err)
	require.Equal(t, "goat", st.Player)
	require.Equal(t, "random", st.Opponent)
	require.Equal(t, 30, st.Episodes)

	st = waitForState(t, svc, "goat", string(qlearn.JobCompleted))
	require.Equal(t, 30, st.Episode)
	require.NoError(t, svc.Shutdown(ctx))

	require.Contains(t, events.types(), EventTrainingProgress)
	require.Equal(t, EventTrainingCompleted, events.types()[len(events.types())-1])

	data, err := store.LoadPolicy(ctx, baghchal.Goat)
	require.NoError(t, err)
	snap, err := qlearn.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 30, snap.Episodes)

	table, err := svc.GetQTable(ctx, "goat")
	require.NoError(t, err)
	require.Equal(t, 30, table.Episodes)
	require.Positive(t, table.QTableSize)
	require.LessOrEqual(t, table.Statistics.MinQValue, table.Statistics.AvgQValue)
	require.LessOrEqual(t, table.Statistics.AvgQValue, table.Statistics.MaxQValue)
}

func TestTrainingOnePerSide(t *testing.T) {
	cfg := testConfig()
	cfg.Training.Episodes = 1000000
	svc := NewAnalysisService(cfg, nil, nil)
	ctx := context.Background()

	_, err := svc.StartTraining(ctx, model.TrainingRequest{Player: "tiger"})
	require.NoError(t, err)
	_, err = svc.StartTraining(ctx, model.TrainingRequest{Player: "tiger"})
	require.ErrorIs(t, err, ErrTrainingInProgress)

	st, err := svc.CancelTraining(ctx, "tiger")
	require.NoError(t, err)
	require.Equal(t, string(qlearn.JobCancelled), st.State)

	_, err = svc.CancelTraining(ctx, "tiger")
	require.ErrorIs(t, err, ErrNoTrainingJob)
	require.NoError(t, svc.Shutdown(ctx))
}

func TestStartTrainingValidates(t *testing.T) {
	svc := NewAnalysisService(testConfig(), nil, nil)
	ctx := context.Background()

	_, err := svc.StartTraining(ctx, model.TrainingRequest{Player: "lion"})
	require.ErrorIs(t, err, baghchal.ErrUnknownSide)
	_, err = svc.StartTraining(ctx, model.TrainingRequest{Player: "tiger", Opponent: "grandmaster"})
	require.ErrorIs(t, err, bot.ErrUnknownDifficulty)
	_, err = svc.StartTraining(ctx, model.TrainingRequest{Player: "tiger", Episodes: -5})
	require.ErrorIs(t, err, ErrInvalidEpisodes)
}

func TestRestorePolicies(t *testing.T) {
	trained := qlearn.NewAgent(baghchal.Tiger)
	_, err := trained.Train(context.Background(), qlearn.TrainConfig{
		Opponent: bot.ContestantForDifficulty(bot.Random),
		Episodes: 10,
		Seed:     2,
	}, nil)
	require.NoError(t, err)
	data, err := qlearn.Encode(trained.Snapshot())
	require.NoError(t, err)

	store := newMemPolicyStore()
	store.data[baghchal.Tiger] = data
	svc := NewAnalysisService(testConfig(), store, nil)

	require.NoError(t, svc.RestorePolicies(context.Background()))
	require.Equal(t, 10, svc.Agent(baghchal.Tiger).Snapshot().Episodes)
	require.Equal(t, trained.Snapshot().States(), svc.Agent(baghchal.Tiger).Snapshot().States())
	require.Zero(t, svc.Agent(baghchal.Goat).Snapshot().Episodes)

	require.ErrorIs(t, svc.LoadPolicy(context.Background(), baghchal.Goat), ErrPolicyNotFound)
}

func TestRestoreRejectsWrongSide(t *testing.T) {
	data, err := qlearn.Encode(qlearn.EmptySnapshot(baghchal.Goat))
	require.NoError(t, err)
	store := newMemPolicyStore()
	store.data[baghchal.Tiger] = data

	svc := NewAnalysisService(testConfig(), store, nil)
	require.ErrorIs(t, svc.RestorePolicies(context.Background()), qlearn.ErrBadFormat)
}

func TestPolicyStoreRequired(t *testing.T) {
	svc := NewAnalysisService(testConfig(), nil, nil)
	require.NoError(t, svc.RestorePolicies(context.Background()))
	require.ErrorIs(t, svc.SavePolicy(context.Background(), baghchal.Tiger), ErrNoPolicyStore)
	require.ErrorIs(t, svc.LoadPolicy(context.Background(), baghchal.Tiger), ErrNoPolicyStore)
}

type listingPolicyStore struct {
	*memPolicyStore
	infos []repository.PolicyInfo
}

func (l listingPolicyStore) ListPolicies(context.Context) ([]repository.PolicyInfo, error) {
	return l.infos, nil
}

func TestListPoliciesReadsEachSide(t *testing.T) {
	store := newMemPolicyStore()
	svc := NewAnalysisService(testConfig(), store, nil)
	ctx := context.Background()

	resp, err := svc.ListPolicies(ctx)
	require.NoError(t, err)
	require.Empty(t, resp.Policies)

	require.NoError(t, svc.SavePolicy(ctx, baghchal.Goat))
	resp, err = svc.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Policies, 1)
	require.Equal(t, "goat", resp.Policies[0].Player)
	require.Equal(t, len(store.data[baghchal.Goat]), resp.Policies[0].SizeBytes)
	require.True(t, resp.Policies[0].UpdatedAt.IsZero())
}

func TestListPoliciesUsesLister(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := listingPolicyStore{
		memPolicyStore: newMemPolicyStore(),
		infos: []repository.PolicyInfo{
			{Side: baghchal.Tiger, Episodes: 500, Size: 2048, UpdatedAt: updated},
		},
	}
	svc := NewAnalysisService(testConfig(), store, nil)

	resp, err := svc.ListPolicies(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.PolicyInfo{
		{Player: "tiger", Episodes: 500, SizeBytes: 2048, UpdatedAt: updated},
	}, resp.Policies)
}

func TestListPoliciesFallsBackWhenUnsupported(t *testing.T) {
	cache := newMemPolicyStore()
	data, err := qlearn.Encode(qlearn.EmptySnapshot(baghchal.Tiger))
	require.NoError(t, err)
	cache.data[baghchal.Tiger] = data

	svc := NewAnalysisService(testConfig(), &repository.TieredPolicyStore{Cache: memCache{cache}}, nil)
	resp, err := svc.ListPolicies(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.PolicyInfo{{Player: "tiger", SizeBytes: len(data)}}, resp.Policies)
}

type memCache struct {
	*memPolicyStore
}

func (c memCache) DeletePolicy(_ context.Context, side baghchal.Side) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, side)
	return nil
}

func TestListPoliciesNeedsStore(t *testing.T) {
	_, err := NewAnalysisService(testConfig(), nil, nil).ListPolicies(context.Background())
	require.ErrorIs(t, err, ErrNoPolicyStore)
}
